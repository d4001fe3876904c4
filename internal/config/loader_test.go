package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/nvoss/parley/internal/config"
)

const validYAML = `
server:
  metrics_addr: ":9091"
  log_level: info
discord:
  token: bot-token
  guild_id: g1
  channel_id: c1
providers:
  stt:
    name: whisper
    base_url: http://localhost:8081
    model: ggml-base.en.bin
  tts:
    name: elevenlabs
    api_key: xi-key
    options:
      voice_id: v123
  llm:
    name: openai
    api_key: sk-key
    model: gpt-4o-mini
pipeline:
  energy_threshold: 500
  silence_ms: 700
  tick_ms: 100
  min_segment_ms: 500
  trigger_words: [parley, bot]
  interrupt_phrases: [stop, be quiet]
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Discord.Token != "bot-token" {
		t.Errorf("token = %q", cfg.Discord.Token)
	}
	if cfg.Providers.STT.BaseURL != "http://localhost:8081" {
		t.Errorf("stt base_url = %q", cfg.Providers.STT.BaseURL)
	}
	if got := cfg.Providers.TTS.Options["voice_id"]; got != "v123" {
		t.Errorf("voice_id option = %v", got)
	}
	if got := cfg.Pipeline.SilenceThreshold(); got != 700*time.Millisecond {
		t.Errorf("SilenceThreshold = %v", got)
	}
	if len(cfg.Pipeline.TriggerWords) != 2 {
		t.Errorf("trigger_words = %v", cfg.Pipeline.TriggerWords)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := validYAML + "\nbogus_section:\n  x: 1\n"
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestValidate_MissingDiscordCredentials(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt:
    name: whisper
  tts:
    name: elevenlabs
  llm:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing discord settings, got nil")
	}
	for _, want := range []string{"discord.token", "discord.guild_id", "discord.channel_id"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_MissingProviders(t *testing.T) {
	t.Parallel()
	yaml := `
discord:
  token: t
  guild_id: g
  channel_id: c
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing providers, got nil")
	}
	for _, want := range []string{"providers.stt", "providers.tts", "providers.llm"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	t.Parallel()
	yaml := strings.Replace(validYAML, "log_level: info", "log_level: loud", 1)
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_PhoneticSimilarityRange(t *testing.T) {
	t.Parallel()
	yaml := validYAML + "  phonetic_similarity: 1.5\n"
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range similarity, got nil")
	}
	if !strings.Contains(err.Error(), "phonetic_similarity") {
		t.Errorf("error should mention phonetic_similarity, got: %v", err)
	}
}

func TestValidate_NegativeDurations(t *testing.T) {
	t.Parallel()
	yaml := strings.Replace(validYAML, "silence_ms: 700", "silence_ms: -1", 1)
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative duration, got nil")
	}
}
