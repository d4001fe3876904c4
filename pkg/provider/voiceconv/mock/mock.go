// Package mock provides a test double for the voiceconv.Converter interface.
package mock

import (
	"context"
	"sync"

	"github.com/nvoss/parley/pkg/provider/voiceconv"
)

// Ensure Converter implements voiceconv.Converter at compile time.
var _ voiceconv.Converter = (*Converter)(nil)

// Converter is a mock implementation of voiceconv.Converter. The zero
// value returns the input path unchanged.
type Converter struct {
	mu sync.Mutex

	// Err, if non-nil, is returned as the error from Convert.
	Err error

	// Fn, if non-nil, computes the output path per call and overrides Err.
	Fn func(ctx context.Context, inPath string) (string, error)

	// Inputs records every path passed to Convert.
	Inputs []string
}

// Convert records the call and returns the configured result.
func (c *Converter) Convert(ctx context.Context, inPath string) (string, error) {
	c.mu.Lock()
	c.Inputs = append(c.Inputs, inPath)
	fn, err := c.Fn, c.Err
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, inPath)
	}
	if err != nil {
		return "", err
	}
	return inPath, nil
}

// CallCount returns how many times Convert has been invoked. Thread-safe.
func (c *Converter) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Inputs)
}
