package resilience

import (
	"context"

	"github.com/nvoss/parley/pkg/provider/gen"
	"github.com/nvoss/parley/pkg/provider/stt"
	"github.com/nvoss/parley/pkg/provider/tts"
)

// STT implements [stt.Provider] with failover across multiple transcription
// backends.
type STT struct {
	chain *Chain[stt.Provider]
}

var _ stt.Provider = (*STT)(nil)

// NewSTT wraps primary in a failover chain.
func NewSTT(name string, primary stt.Provider, breaker BreakerConfig) *STT {
	return &STT{chain: NewChain(name, primary, breaker)}
}

// Add registers an alternate transcription backend.
func (s *STT) Add(name string, p stt.Provider) { s.chain.Add(name, p) }

func (s *STT) Transcribe(ctx context.Context, wav []byte) (stt.Result, error) {
	return TryResult(s.chain, func(p stt.Provider) (stt.Result, error) {
		return p.Transcribe(ctx, wav)
	})
}

// TTS implements [tts.Provider] with failover across multiple synthesis
// backends.
type TTS struct {
	chain *Chain[tts.Provider]
}

var _ tts.Provider = (*TTS)(nil)

// NewTTS wraps primary in a failover chain.
func NewTTS(name string, primary tts.Provider, breaker BreakerConfig) *TTS {
	return &TTS{chain: NewChain(name, primary, breaker)}
}

// Add registers an alternate synthesis backend.
func (t *TTS) Add(name string, p tts.Provider) { t.chain.Add(name, p) }

func (t *TTS) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	return TryResult(t.chain, func(p tts.Provider) (tts.Clip, error) {
		return p.Synthesize(ctx, text)
	})
}

// Generator implements [gen.Generator] with failover across multiple reply
// backends. Failover only covers opening the stream; once fragments are
// flowing, errors surface to the consumer as a closed channel.
type Generator struct {
	chain *Chain[gen.Generator]
}

var _ gen.Generator = (*Generator)(nil)

// NewGenerator wraps primary in a failover chain.
func NewGenerator(name string, primary gen.Generator, breaker BreakerConfig) *Generator {
	return &Generator{chain: NewChain(name, primary, breaker)}
}

// Add registers an alternate reply backend.
func (g *Generator) Add(name string, p gen.Generator) { g.chain.Add(name, p) }

func (g *Generator) Generate(ctx context.Context, req gen.Request) (<-chan string, error) {
	return TryResult(g.chain, func(p gen.Generator) (<-chan string, error) {
		return p.Generate(ctx, req)
	})
}
