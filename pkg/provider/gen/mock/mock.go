// Package mock provides a test double for the gen.Generator interface.
package mock

import (
	"context"
	"sync"

	"github.com/nvoss/parley/pkg/provider/gen"
)

// Ensure Generator implements gen.Generator at compile time.
var _ gen.Generator = (*Generator)(nil)

// Generator is a mock implementation of gen.Generator that streams the
// configured fragments for every request.
type Generator struct {
	mu sync.Mutex

	// Fragments are emitted in order on the reply channel.
	Fragments []string

	// Err, if non-nil, is returned as the error from Generate.
	Err error

	// Requests records every request passed to Generate.
	Requests []gen.Request
}

// Generate records the call and streams Fragments.
func (g *Generator) Generate(ctx context.Context, req gen.Request) (<-chan string, error) {
	g.mu.Lock()
	g.Requests = append(g.Requests, req)
	fragments, err := g.Fragments, g.Err
	g.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ch := make(chan string, len(fragments))
	go func() {
		defer close(ch)
		for _, f := range fragments {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// RequestCount returns how many times Generate has been invoked. Thread-safe.
func (g *Generator) RequestCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Requests)
}
