package config_test

import (
	"errors"
	"testing"

	"github.com/nvoss/parley/internal/config"
	"github.com/nvoss/parley/pkg/provider/stt"
	sttmock "github.com/nvoss/parley/pkg/provider/stt/mock"
)

func TestRegistry_UnregisteredProvider(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	_, err := r.CreateSTT(config.ProviderEntry{Name: "deepgram"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestDefaultRegistry_CreatesBuiltins(t *testing.T) {
	t.Parallel()
	r := config.DefaultRegistry()

	sttProvider, err := r.CreateSTT(config.ProviderEntry{
		Name:    "whisper",
		BaseURL: "http://localhost:8081",
	})
	if err != nil {
		t.Fatalf("CreateSTT whisper: %v", err)
	}
	if sttProvider == nil {
		t.Fatal("CreateSTT returned nil provider")
	}

	ttsProvider, err := r.CreateTTS(config.ProviderEntry{
		Name:    "elevenlabs",
		APIKey:  "xi-key",
		Options: map[string]any{"voice_id": "v1", "output_format": "pcm_22050"},
	})
	if err != nil {
		t.Fatalf("CreateTTS elevenlabs: %v", err)
	}
	if ttsProvider == nil {
		t.Fatal("CreateTTS returned nil provider")
	}

	llm, err := r.CreateLLM(config.ProviderEntry{
		Name:   "openai",
		APIKey: "sk-key",
		Model:  "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("CreateLLM openai: %v", err)
	}
	if llm == nil {
		t.Fatal("CreateLLM returned nil generator")
	}
}

func TestDefaultRegistry_VoiceConvOptional(t *testing.T) {
	t.Parallel()
	r := config.DefaultRegistry()

	conv, err := r.CreateVoiceConv(config.ProviderEntry{})
	if err != nil {
		t.Fatalf("CreateVoiceConv zero entry: %v", err)
	}
	if conv != nil {
		t.Error("zero entry should yield no converter")
	}

	conv, err = r.CreateVoiceConv(config.ProviderEntry{
		Name:    "rvc",
		BaseURL: "http://localhost:7865",
		Model:   "speaker.pth",
		Options: map[string]any{"pitch_shift": 2},
	})
	if err != nil {
		t.Fatalf("CreateVoiceConv rvc: %v", err)
	}
	if conv == nil {
		t.Fatal("CreateVoiceConv returned nil converter")
	}
}

func TestRegistry_CustomRegistration(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	mock := &sttmock.Provider{}
	r.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return mock, nil
	})

	got, err := r.CreateSTT(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateSTT mock: %v", err)
	}
	if got != mock {
		t.Error("CreateSTT returned a different provider")
	}
}
