// Package tts defines the Provider interface for Text-to-Speech backends.
//
// Providers synthesize one sentence at a time: the speaking pipeline splits
// a response into sentences and synthesizes them concurrently, so a small
// per-call unit is what enables playback to start before the full response
// is rendered. Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/nvoss/parley/pkg/audio"
)

// Clip is one synthesized sentence.
type Clip struct {
	// PCM is raw 16-bit little-endian signed PCM audio.
	PCM []byte

	// Format describes the sample rate and channel count of PCM.
	Format audio.Format
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as speech. It blocks until the full clip is
	// available or ctx is done.
	Synthesize(ctx context.Context, text string) (Clip, error)
}
