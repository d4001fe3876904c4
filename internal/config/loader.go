package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"whisper", "whisper-native"},
	"tts":       {"elevenlabs"},
	"llm":       {"openai"},
	"voiceconv": {"rvc"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}
	if cfg.Discord.GuildID == "" {
		errs = append(errs, errors.New("discord.guild_id is required"))
	}
	if cfg.Discord.ChannelID == "" {
		errs = append(errs, errors.New("discord.channel_id is required"))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("voiceconv", cfg.Providers.VoiceConv.Name)

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required"))
	}

	p := cfg.Pipeline
	if p.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("pipeline.energy_threshold %.1f must not be negative", p.EnergyThreshold))
	}
	if p.SilenceMs < 0 || p.MaxSpeechMs < 0 || p.TickMs < 0 || p.MinSegmentMs < 0 || p.TranscribeTimeoutMs < 0 {
		errs = append(errs, errors.New("pipeline durations must not be negative"))
	}
	if p.PhoneticSimilarity != 0 && (p.PhoneticSimilarity < 0 || p.PhoneticSimilarity > 1) {
		errs = append(errs, fmt.Errorf("pipeline.phonetic_similarity %.2f is out of range [0, 1]", p.PhoneticSimilarity))
	}
	if p.ParallelSynthesis < 0 {
		errs = append(errs, fmt.Errorf("pipeline.parallel_synthesis %d must not be negative", p.ParallelSynthesis))
	}
	if p.TickMs > 0 && p.SilenceMs > 0 && p.SilenceMs < p.TickMs {
		slog.Warn("pipeline.silence_ms is shorter than pipeline.tick_ms; segments will finalize on the first quiet tick",
			"silence_ms", p.SilenceMs, "tick_ms", p.TickMs)
	}
	if len(p.TriggerWords) == 0 {
		slog.Warn("pipeline.trigger_words is empty; the agent will only respond to questions and long remarks")
	}

	if cfg.Log.PostgresDSN == "" {
		slog.Warn("log.postgres_dsn is empty; transcripts will not be persisted")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
