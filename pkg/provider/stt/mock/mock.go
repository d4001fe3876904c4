// Package mock provides a test double for the stt.Provider interface.
//
// Configure Result and Err to control what Transcribe returns, and inspect
// Calls to verify which clips were submitted. A nil Fn uses the static
// Result; a non-nil Fn computes the answer per call.
package mock

import (
	"context"
	"sync"

	"github.com/nvoss/parley/pkg/provider/stt"
)

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// WAV is a copy of the clip passed to Transcribe.
	WAV []byte
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned from Transcribe when Fn is nil.
	Result stt.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Fn, if non-nil, computes the result per call and overrides Result/Err.
	Fn func(ctx context.Context, wav []byte) (stt.Result, error)

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the configured result.
func (p *Provider) Transcribe(ctx context.Context, wav []byte) (stt.Result, error) {
	p.mu.Lock()
	cp := make([]byte, len(wav))
	copy(cp, wav)
	p.Calls = append(p.Calls, TranscribeCall{WAV: cp})
	fn, res, err := p.Fn, p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, wav)
	}
	return res, err
}

// CallCount returns how many times Transcribe has been invoked. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
