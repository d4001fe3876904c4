package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nvoss/parley/pkg/provider/gen"
	genopenai "github.com/nvoss/parley/pkg/provider/gen/openai"
	"github.com/nvoss/parley/pkg/provider/stt"
	"github.com/nvoss/parley/pkg/provider/stt/whisper"
	"github.com/nvoss/parley/pkg/provider/tts"
	"github.com/nvoss/parley/pkg/provider/tts/elevenlabs"
	"github.com/nvoss/parley/pkg/provider/voiceconv"
	"github.com/nvoss/parley/pkg/provider/voiceconv/rvc"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	stt       map[string]func(ProviderEntry) (stt.Provider, error)
	tts       map[string]func(ProviderEntry) (tts.Provider, error)
	llm       map[string]func(ProviderEntry) (gen.Generator, error)
	voiceconv map[string]func(ProviderEntry) (voiceconv.Converter, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:       make(map[string]func(ProviderEntry) (stt.Provider, error)),
		tts:       make(map[string]func(ProviderEntry) (tts.Provider, error)),
		llm:       make(map[string]func(ProviderEntry) (gen.Generator, error)),
		voiceconv: make(map[string]func(ProviderEntry) (voiceconv.Converter, error)),
	}
}

// DefaultRegistry returns a [Registry] with all built-in providers
// registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterSTT("whisper", newWhisperServer)
	r.RegisterSTT("whisper-native", newWhisperNative)
	r.RegisterTTS("elevenlabs", newElevenLabs)
	r.RegisterLLM("openai", newOpenAI)
	r.RegisterVoiceConv("rvc", newRVC)
	return r
}

// RegisterSTT registers a speech-to-text provider constructor under name.
func (r *Registry) RegisterSTT(name string, fn func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = fn
}

// RegisterTTS registers a text-to-speech provider constructor under name.
func (r *Registry) RegisterTTS(name string, fn func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = fn
}

// RegisterLLM registers a reply generator constructor under name.
func (r *Registry) RegisterLLM(name string, fn func(ProviderEntry) (gen.Generator, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = fn
}

// RegisterVoiceConv registers a voice conversion constructor under name.
func (r *Registry) RegisterVoiceConv(name string, fn func(ProviderEntry) (voiceconv.Converter, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.voiceconv[name] = fn
}

// CreateSTT constructs the speech-to-text provider selected by entry.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	fn, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt %q", ErrProviderNotRegistered, entry.Name)
	}
	return fn(entry)
}

// CreateTTS constructs the text-to-speech provider selected by entry.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	fn, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts %q", ErrProviderNotRegistered, entry.Name)
	}
	return fn(entry)
}

// CreateLLM constructs the reply generator selected by entry.
func (r *Registry) CreateLLM(entry ProviderEntry) (gen.Generator, error) {
	r.mu.RLock()
	fn, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm %q", ErrProviderNotRegistered, entry.Name)
	}
	return fn(entry)
}

// CreateVoiceConv constructs the voice converter selected by entry. A zero
// entry (no name) returns nil without error; voice conversion is optional.
func (r *Registry) CreateVoiceConv(entry ProviderEntry) (voiceconv.Converter, error) {
	if entry.Name == "" {
		return nil, nil
	}
	r.mu.RLock()
	fn, ok := r.voiceconv[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: voiceconv %q", ErrProviderNotRegistered, entry.Name)
	}
	return fn(entry)
}

func newWhisperServer(e ProviderEntry) (stt.Provider, error) {
	var opts []whisper.Option
	if e.Model != "" {
		opts = append(opts, whisper.WithModel(e.Model))
	}
	if lang := stringOption(e, "language"); lang != "" {
		opts = append(opts, whisper.WithLanguage(lang))
	}
	return whisper.New(e.BaseURL, opts...)
}

func newWhisperNative(e ProviderEntry) (stt.Provider, error) {
	var opts []whisper.NativeOption
	if lang := stringOption(e, "language"); lang != "" {
		opts = append(opts, whisper.WithNativeLanguage(lang))
	}
	return whisper.NewNative(e.Model, opts...)
}

func newElevenLabs(e ProviderEntry) (tts.Provider, error) {
	var opts []elevenlabs.Option
	if e.Model != "" {
		opts = append(opts, elevenlabs.WithModel(e.Model))
	}
	if format := stringOption(e, "output_format"); format != "" {
		opts = append(opts, elevenlabs.WithOutputFormat(format))
	}
	return elevenlabs.New(e.APIKey, stringOption(e, "voice_id"), opts...)
}

func newOpenAI(e ProviderEntry) (gen.Generator, error) {
	var opts []genopenai.Option
	if e.BaseURL != "" {
		opts = append(opts, genopenai.WithBaseURL(e.BaseURL))
	}
	if prompt := stringOption(e, "system_prompt"); prompt != "" {
		opts = append(opts, genopenai.WithSystemPrompt(prompt))
	}
	return genopenai.New(e.APIKey, e.Model, opts...)
}

func newRVC(e ProviderEntry) (voiceconv.Converter, error) {
	var opts []rvc.Option
	if pitch, ok := intOption(e, "pitch_shift"); ok {
		opts = append(opts, rvc.WithPitchShift(pitch))
	}
	return rvc.New(e.BaseURL, e.Model, opts...)
}

// stringOption reads a string value from the provider's options map.
func stringOption(e ProviderEntry, key string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return ""
}

// intOption reads an integer value from the provider's options map.
// YAML decodes whole numbers as int.
func intOption(e ProviderEntry, key string) (int, bool) {
	switch v := e.Options[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}
