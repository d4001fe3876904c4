// Command parley is a voice agent for Discord voice channels. It listens,
// transcribes what it hears, decides whether it was spoken to, and answers
// out loud.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/nvoss/parley/internal/config"
	"github.com/nvoss/parley/internal/dispatch"
	"github.com/nvoss/parley/internal/health"
	"github.com/nvoss/parley/internal/listen"
	"github.com/nvoss/parley/internal/observe"
	"github.com/nvoss/parley/internal/resilience"
	"github.com/nvoss/parley/internal/translog"
	"github.com/nvoss/parley/internal/trigger"
	"github.com/nvoss/parley/internal/voice"
	"github.com/nvoss/parley/internal/workerpool"
	"github.com/nvoss/parley/pkg/audio"
	audiodiscord "github.com/nvoss/parley/pkg/audio/discord"
	"github.com/nvoss/parley/pkg/provider/gen"
	"github.com/nvoss/parley/pkg/provider/stt"
	"github.com/nvoss/parley/pkg/provider/tts"
	"github.com/nvoss/parley/pkg/provider/voiceconv"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "parley.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parley: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(logLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("parley starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
		"channel", cfg.Discord.ChannelID,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "parley"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeProviders(providers)

	// ── Transcript log (optional) ─────────────────────────────────────────────
	var (
		store translog.Store
		pg    *translog.PostgresStore
	)
	if cfg.Log.PostgresDSN != "" {
		pg, err = translog.New(ctx, cfg.Log.PostgresDSN)
		if err != nil {
			slog.Error("failed to open transcript store", "err", err)
			return 1
		}
		defer pg.Close()
		store = pg
		slog.Info("transcript store connected")
	}

	pool := workerpool.New(0)

	// ── Discord ───────────────────────────────────────────────────────────────
	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		slog.Error("failed to create Discord session", "err", err)
		return 1
	}
	dg.Identify.Intents = discordgo.IntentsGuildVoiceStates
	if err := dg.Open(); err != nil {
		slog.Error("failed to connect to Discord", "err", err)
		return 1
	}
	defer dg.Close()
	slog.Info("discord connected", "guild", cfg.Discord.GuildID)

	router := &frameRouter{}
	conn, err := audiodiscord.Join(dg, cfg.Discord.GuildID, cfg.Discord.ChannelID, router, logger)
	if err != nil {
		slog.Error("failed to join voice channel", "err", err)
		return 1
	}
	defer conn.Close()

	// ── Voice session ─────────────────────────────────────────────────────────
	registry := voice.NewRegistry(logger)
	deps := voice.Deps{
		Device:      conn.Device(),
		Transcriber: providers.stt,
		Synthesizer: providers.tts,
		Generator:   providers.llm,
		VoiceConv:   providers.conv,
		Log:         store,
		Pool:        pool,
		Metrics:     metrics,
		Logger:      logger,
	}
	session, err := registry.Start(ctx, sessionConfig(cfg), deps)
	if err != nil {
		slog.Error("failed to start voice session", "err", err)
		return 1
	}
	router.set(session)
	go consumeEvents(session)

	if err := session.PlayEffect(joinChime()); err != nil {
		slog.Debug("join chime skipped", "err", err)
	}

	// ── Metrics and health endpoints ──────────────────────────────────────────
	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		checkers := []health.Checker{health.VoiceSessions(registry)}
		if pg != nil {
			checkers = append(checkers, health.Postgres(pg))
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		health.New(checkers...).Register(mux)
		metricsSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
		go func() {
			slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if !d.Any() {
			return
		}
		if d.LogLevelChanged {
			level.Set(logLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.TriggerWordsChanged || d.InterruptPhrasesChanged || d.ThresholdsChanged {
			slog.Info("pipeline tuning changed, restarting voice session")
			router.set(nil)
			if err := registry.Stop(new.Discord.ChannelID); err != nil {
				slog.Warn("session stop during reload", "err", err)
			}
			s, err := registry.Start(ctx, sessionConfig(new), deps)
			if err != nil {
				slog.Error("session restart after reload failed", "err", err)
				return
			}
			router.set(s)
			go consumeEvents(s)
		}
		if d.SystemPromptChanged {
			slog.Warn("system prompt changed; a full restart is required to apply it")
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("parley ready, press Ctrl+C to shut down")
	<-ctx.Done()

	slog.Info("shutdown signal received, stopping")
	router.set(nil)
	registry.StopAll()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown error", "err", err)
		}
	}
	slog.Info("goodbye")
	return 0
}

// frameRouter forwards captured frames to the active session. The session is
// swapped atomically during config reloads.
type frameRouter struct {
	session atomic.Pointer[voice.Session]
}

func (r *frameRouter) set(s *voice.Session) { r.session.Store(s) }

func (r *frameRouter) Observe(frame audio.Frame) {
	if s := r.session.Load(); s != nil {
		s.Observe(frame)
	}
}

// consumeEvents drains a session's event stream into the log. The loop ends
// when the session is stopped.
func consumeEvents(s *voice.Session) {
	for ev := range s.Events() {
		switch ev.Kind {
		case voice.EventTranscript:
			slog.Info("heard", "text", ev.Text, "rule", ev.Rule, "speakers", ev.Speakers)
		case voice.EventInterrupt:
			slog.Info("interrupted", "text", ev.Text)
		case voice.EventBargeIn:
			slog.Debug("barge-in")
		case voice.EventResponseStarted:
			slog.Debug("reply started")
		case voice.EventResponseFinished:
			slog.Info("replied", "text", ev.Text)
		}
	}
}

// builtProviders bundles the pipeline stages instantiated from config.
type builtProviders struct {
	stt  stt.Provider
	tts  tts.Provider
	llm  gen.Generator
	conv voiceconv.Converter

	// closers are the underlying backends that hold resources, such as the
	// native whisper model.
	closers []io.Closer
}

func (ps *builtProviders) track(p any) {
	if c, ok := p.(io.Closer); ok {
		ps.closers = append(ps.closers, c)
	}
}

func buildProviders(cfg *config.Config) (*builtProviders, error) {
	reg := config.DefaultRegistry()
	ps := &builtProviders{}

	// A pipeline-level system prompt applies unless the provider entry
	// carries its own.
	llmEntry := cfg.Providers.LLM
	if cfg.Pipeline.SystemPrompt != "" {
		if _, ok := llmEntry.Options["system_prompt"]; !ok {
			if llmEntry.Options == nil {
				llmEntry.Options = map[string]any{}
			}
			llmEntry.Options["system_prompt"] = cfg.Pipeline.SystemPrompt
		}
	}

	breaker := resilience.BreakerConfig{}

	sttPrimary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	sttChain := resilience.NewSTT(cfg.Providers.STT.Name, sttPrimary, breaker)
	if fb := cfg.Providers.STT.Fallback; fb != nil {
		alt, err := reg.CreateSTT(*fb)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
		}
		sttChain.Add(fb.Name, alt)
		ps.track(alt)
	}
	ps.track(sttPrimary)
	ps.stt = sttChain
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	ttsPrimary, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ttsChain := resilience.NewTTS(cfg.Providers.TTS.Name, ttsPrimary, breaker)
	if fb := cfg.Providers.TTS.Fallback; fb != nil {
		alt, err := reg.CreateTTS(*fb)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
		}
		ttsChain.Add(fb.Name, alt)
		ps.track(alt)
	}
	ps.track(ttsPrimary)
	ps.tts = ttsChain
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	llmPrimary, err := reg.CreateLLM(llmEntry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	llmChain := resilience.NewGenerator(cfg.Providers.LLM.Name, llmPrimary, breaker)
	if fb := cfg.Providers.LLM.Fallback; fb != nil {
		alt, err := reg.CreateLLM(*fb)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
		}
		llmChain.Add(fb.Name, alt)
		ps.track(alt)
	}
	ps.track(llmPrimary)
	ps.llm = llmChain
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	if ps.conv, err = reg.CreateVoiceConv(cfg.Providers.VoiceConv); err != nil {
		return nil, fmt.Errorf("create voiceconv provider %q: %w", cfg.Providers.VoiceConv.Name, err)
	}
	if ps.conv != nil {
		ps.track(ps.conv)
		slog.Info("provider created", "kind", "voiceconv", "name", cfg.Providers.VoiceConv.Name)
	}

	return ps, nil
}

// closeProviders releases backends that hold resources.
func closeProviders(ps *builtProviders) {
	for _, c := range ps.closers {
		if err := c.Close(); err != nil {
			slog.Warn("provider close error", "err", err)
		}
	}
}

// sessionConfig maps the file configuration onto a voice session config.
func sessionConfig(cfg *config.Config) voice.Config {
	p := cfg.Pipeline
	return voice.Config{
		ChannelID: cfg.Discord.ChannelID,
		Listen: listen.Config{
			EnergyThreshold:   p.EnergyThreshold,
			SilenceThreshold:  p.SilenceThreshold(),
			MaxSpeechDuration: p.MaxSpeechDuration(),
			TickInterval:      p.TickInterval(),
		},
		Dispatch: dispatch.Config{
			MinSegmentDuration: p.MinSegmentDuration(),
			TranscribeTimeout:  p.TranscribeTimeout(),
			InterruptPhrases:   p.InterruptPhrases,
		},
		Trigger: trigger.Config{
			TriggerWords:       p.TriggerWords,
			PhoneticSimilarity: p.PhoneticSimilarity,
		},
		Parallelism: p.ParallelSynthesis,
	}
}

// joinChime renders a short two-note tone at the playback format so the
// channel hears when the agent arrives.
func joinChime() []byte {
	const (
		rate     = 48000
		channels = 2
		noteMs   = 120
	)
	notes := []float64{660, 880}
	samples := rate * noteMs / 1000
	buf := make([]byte, 0, len(notes)*samples*channels*2)
	for _, freq := range notes {
		for i := 0; i < samples; i++ {
			// Ramp the edges of each note to avoid clicks.
			env := 1.0
			if edge := samples / 8; i < edge {
				env = float64(i) / float64(edge)
			} else if i > samples-edge {
				env = float64(samples-i) / float64(edge)
			}
			v := int16(6000 * env * math.Sin(2*math.Pi*freq*float64(i)/rate))
			for c := 0; c < channels; c++ {
				buf = append(buf, byte(v), byte(v>>8))
			}
		}
	}
	return buf
}

func logLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
