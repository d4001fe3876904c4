// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/nvoss/parley/pkg/audio"
	"github.com/nvoss/parley/pkg/provider/tts"
)

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

// Provider is a mock implementation of tts.Provider. The zero value
// returns a short fixed clip for every sentence.
type Provider struct {
	mu sync.Mutex

	// Clip is returned from Synthesize when Fn is nil. A zero Clip is
	// replaced with 20 ms of silence at 16 kHz mono.
	Clip tts.Clip

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// Fn, if non-nil, computes the clip per call and overrides Clip/Err.
	Fn func(ctx context.Context, text string) (tts.Clip, error)

	// Texts records every sentence passed to Synthesize.
	Texts []string
}

// Synthesize records the call and returns the configured clip.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	p.mu.Lock()
	p.Texts = append(p.Texts, text)
	fn, clip, err := p.Fn, p.Clip, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if err != nil {
		return tts.Clip{}, err
	}
	if len(clip.PCM) == 0 {
		clip = tts.Clip{
			PCM:    make([]byte, 640),
			Format: audio.Format{SampleRate: 16000, Channels: 1},
		}
	}
	return clip, nil
}

// Synthesized returns a copy of all recorded sentences. Thread-safe.
func (p *Provider) Synthesized() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Texts))
	copy(out, p.Texts)
	return out
}
