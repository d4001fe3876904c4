// Package voice assembles the full listening pipeline for one voice
// channel: capture, segmentation, transcription dispatch, response
// generation, and ordered speech playback. A Registry keeps at most one
// Session per channel.
package voice

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nvoss/parley/internal/capture"
	"github.com/nvoss/parley/internal/dispatch"
	"github.com/nvoss/parley/internal/listen"
	"github.com/nvoss/parley/internal/observe"
	"github.com/nvoss/parley/internal/playback"
	"github.com/nvoss/parley/internal/speak"
	"github.com/nvoss/parley/internal/translog"
	"github.com/nvoss/parley/internal/trigger"
	"github.com/nvoss/parley/internal/workerpool"
	"github.com/nvoss/parley/pkg/audio"
	"github.com/nvoss/parley/pkg/provider/gen"
	"github.com/nvoss/parley/pkg/provider/stt"
	"github.com/nvoss/parley/pkg/provider/tts"
	"github.com/nvoss/parley/pkg/provider/voiceconv"
)

const eventBuffer = 64

// Deps are the external components a Session is built from.
type Deps struct {
	// Device is the audio output of the voice channel.
	Device playback.Device

	// Transcriber, Synthesizer and Generator are required.
	Transcriber stt.Provider
	Synthesizer tts.Provider
	Generator   gen.Generator

	// VoiceConv routes replies through voice conversion. Optional.
	VoiceConv voiceconv.Converter

	// Log persists the conversation. Optional.
	Log translog.Store

	// Pool bounds CPU-bound audio work. Optional.
	Pool *workerpool.Pool

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Config holds per-session identity and tuning.
type Config struct {
	ID        string
	ChannelID string

	// CaptureFormat is the transport's input format. Zero selects
	// 48 kHz stereo.
	CaptureFormat audio.Format

	// OutputFormat is the playback format. Zero selects 48 kHz stereo.
	OutputFormat audio.Format

	Listen   listen.Config
	Dispatch dispatch.Config
	Trigger  trigger.Config

	// Parallelism bounds concurrent synthesis per reply. Zero selects the
	// speaker's default.
	Parallelism int
}

func (c Config) withDefaults() Config {
	if c.CaptureFormat.SampleRate == 0 {
		c.CaptureFormat = audio.Format{SampleRate: 48000, Channels: 2}
	}
	if c.OutputFormat.SampleRate == 0 {
		c.OutputFormat = audio.Format{SampleRate: 48000, Channels: 2}
	}
	return c
}

// Session is one live listening pipeline. Frames go in through Observe;
// everything else happens on internal goroutines. All exported methods
// are safe for concurrent use.
type Session struct {
	cfg     Config
	deps    Deps
	log     *slog.Logger
	metrics *observe.Metrics

	monitor    *listen.Monitor
	dispatcher *dispatch.Dispatcher
	arbiter    *playback.Arbiter
	speaker    *speak.Speaker
	barge      *playback.BargeInController

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stateMu sync.Mutex
	closed  bool

	replyMu sync.Mutex
	reply   *replyHandle

	stopOnce sync.Once
}

// NewSession wires a pipeline for one channel. It does not start
// listening; call Start.
func NewSession(cfg Config, deps Deps) *Session {
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.Default()
	}
	log := deps.Logger.With(
		slog.String("session", cfg.ID),
		slog.String("channel", cfg.ChannelID))

	s := &Session{
		cfg:     cfg,
		deps:    deps,
		log:     log,
		metrics: deps.Metrics,
		events:  make(chan Event, eventBuffer),
	}

	s.arbiter = playback.NewArbiter(deps.Device, log)
	s.barge = playback.NewBargeInController(s.arbiter, s.onBargeIn, log)

	speakOpts := []speak.Option{speak.WithMetrics(deps.Metrics)}
	if cfg.Parallelism > 0 {
		speakOpts = append(speakOpts, speak.WithParallelism(cfg.Parallelism))
	}
	if deps.VoiceConv != nil {
		speakOpts = append(speakOpts, speak.WithVoiceConversion(deps.VoiceConv))
	}
	s.speaker = speak.New(deps.Synthesizer, s.arbiter, cfg.OutputFormat, log, speakOpts...)

	classifier := trigger.New(cfg.Trigger)
	dispatchOpts := []dispatch.Option{dispatch.WithMetrics(deps.Metrics)}
	if deps.Pool != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithPool(deps.Pool))
	}
	s.dispatcher = dispatch.New(cfg.Dispatch, deps.Transcriber, classifier, s.arbiter, log, dispatchOpts...)

	sink := capture.New(cfg.CaptureFormat, 0)
	monitorOpts := []listen.Option{listen.WithOnSpeechStart(s.barge.OnSpeechStart)}
	if deps.Pool != nil {
		monitorOpts = append(monitorOpts, listen.WithPool(deps.Pool))
	}
	s.monitor = listen.New(sink, cfg.Listen, s.handleSegment, monitorOpts...)

	return s
}

// Observe feeds one captured frame into the pipeline. Never blocks.
func (s *Session) Observe(frame audio.Frame) {
	s.monitor.Observe(frame)
}

// Events returns the session's event stream. The channel is closed by
// Stop after the pipeline has drained.
func (s *Session) Events() <-chan Event { return s.events }

// Arbiter exposes the playback arbiter so callers can play music or sound
// effects into the same channel under arbitration.
func (s *Session) Arbiter() *playback.Arbiter { return s.arbiter }

// PlayEffect plays a short one-shot clip into the channel. The clip runs
// under arbitration: it is refused while anything else is playing and is
// never cut by barge-in.
func (s *Session) PlayEffect(pcm []byte) error {
	_, err := s.arbiter.Play(pcm, playback.TagSoundEffect)
	return err
}

// ChannelID returns the channel this session listens on.
func (s *Session) ChannelID() string { return s.cfg.ChannelID }

// ID returns the session ID.
func (s *Session) ID() string { return s.cfg.ID }

// Start begins detection. ctx bounds the whole session; cancelling it is
// equivalent to Stop.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.monitor.Start(s.ctx)
	s.log.Info("session started")
}

// Stop tears the session down: detection stops, the in-flight reply is
// abandoned, playback is cut, and the event channel closes once pending
// segment handlers finish. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.monitor.Stop()
		if s.cancel != nil {
			s.cancel()
		}
		s.abandonReply()
		s.arbiter.Stop()
		s.wg.Wait()
		s.stateMu.Lock()
		s.closed = true
		close(s.events)
		s.stateMu.Unlock()
		s.log.Info("session stopped")
	})
}

// handleSegment is the monitor's segment callback. It runs on a fresh
// goroutine per segment; the session refuses segments after Stop.
func (s *Session) handleSegment(seg listen.Segment) {
	s.stateMu.Lock()
	if s.closed || s.ctx == nil || s.ctx.Err() != nil {
		s.stateMu.Unlock()
		return
	}
	s.wg.Add(1)
	s.stateMu.Unlock()
	defer s.wg.Done()

	out, err := s.dispatcher.Handle(s.ctx, seg)
	if err != nil {
		s.log.Error("segment dispatch failed", slog.String("error", err.Error()))
		return
	}
	if out.Discarded {
		return
	}

	s.logEntry(translog.Entry{
		Kind:      entryKind(out),
		SpeakerID: firstSpeaker(out.Speakers),
		Text:      out.Transcript.Text,
		Language:  out.Transcript.Language,
		Rule:      out.Rule,
	})

	if out.Interrupt {
		// The dispatcher already silenced playback; abandon the rest of
		// the reply so it does not resume with the next sentence.
		s.abandonReply()
		s.emit(Event{Kind: EventInterrupt, Text: out.Transcript.Text, Speakers: out.Speakers})
		return
	}

	s.emit(Event{Kind: EventTranscript, Text: out.Transcript.Text, Rule: out.Rule, Speakers: out.Speakers})

	if out.Respond {
		s.respond(out)
	}
}

// respond generates and speaks one reply. A new reply supersedes any
// reply still playing.
func (s *Session) respond(out dispatch.Outcome) {
	rctx, cancel := context.WithCancel(s.ctx)
	handle := &replyHandle{cancel: cancel}
	s.replyMu.Lock()
	if s.reply != nil {
		s.reply.cancel()
	}
	s.reply = handle
	s.replyMu.Unlock()
	defer func() {
		cancel()
		s.replyMu.Lock()
		if s.reply == handle {
			s.reply = nil
		}
		s.replyMu.Unlock()
	}()

	s.emit(Event{Kind: EventResponseStarted, Text: out.Transcript.Text, Rule: out.Rule})

	fragments, err := s.deps.Generator.Generate(rctx, gen.Request{
		Text:      out.Transcript.Text,
		SpeakerID: firstSpeaker(out.Speakers),
		ChannelID: s.cfg.ChannelID,
	})
	if err != nil {
		s.log.Error("response generation failed", slog.String("error", err.Error()))
		s.emit(Event{Kind: EventResponseFinished})
		return
	}

	// Tee the stream so the full reply text can be logged after playback.
	var reply strings.Builder
	teed := make(chan string, 4)
	go func() {
		defer close(teed)
		for f := range fragments {
			reply.WriteString(f)
			select {
			case teed <- f:
			case <-rctx.Done():
				// Keep draining so the generator goroutine exits.
			}
		}
	}()

	if err := s.speaker.Speak(rctx, teed); err != nil && rctx.Err() == nil {
		s.log.Warn("reply playback ended early", slog.String("error", err.Error()))
	}

	if text := strings.TrimSpace(reply.String()); text != "" {
		s.logEntry(translog.Entry{Kind: translog.KindAgent, Text: text, Rule: out.Rule})
	}
	s.emit(Event{Kind: EventResponseFinished, Text: reply.String(), Rule: out.Rule})
}

// replyHandle identifies one in-flight reply so that finishing a reply
// never clobbers a newer one.
type replyHandle struct {
	cancel context.CancelFunc
}

// abandonReply cancels the in-flight reply, if any.
func (s *Session) abandonReply() {
	s.replyMu.Lock()
	handle := s.reply
	s.reply = nil
	s.replyMu.Unlock()
	if handle != nil {
		handle.cancel()
	}
}

// onBargeIn runs after the barge-in controller has cut agent speech.
func (s *Session) onBargeIn() {
	s.abandonReply()
	if s.metrics != nil {
		s.metrics.BargeIns.Add(context.Background(), 1)
	}
	s.emit(Event{Kind: EventBargeIn})
}

// emit publishes an event without blocking; a full buffer drops, and
// events after Stop are swallowed.
func (s *Session) emit(ev Event) {
	ev.SessionID = s.cfg.ID
	ev.ChannelID = s.cfg.ChannelID
	ev.At = time.Now()
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Debug("event dropped", slog.String("kind", ev.Kind.String()))
	}
}

// logEntry persists one conversation entry, best effort.
func (s *Session) logEntry(e translog.Entry) {
	if s.deps.Log == nil {
		return
	}
	e.SessionID = s.cfg.ID
	e.ChannelID = s.cfg.ChannelID
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deps.Log.Append(ctx, e); err != nil {
		s.log.Warn("transcript log write failed", slog.String("error", err.Error()))
	}
}

func entryKind(out dispatch.Outcome) string {
	if out.Interrupt {
		return translog.KindInterrupt
	}
	return translog.KindUser
}

func firstSpeaker(speakers []string) string {
	if len(speakers) == 0 {
		return ""
	}
	return speakers[0]
}
