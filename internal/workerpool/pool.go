// Package workerpool provides the single bounded pool used for CPU-bound
// pipeline steps (downmix, resample, WAV encode). Offloading these keeps the
// frame-receive path and the monitor's tick loop free of heavy work while the
// pool's bound keeps a burst of segments from fanning out unbounded.
package workerpool

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool is a semaphore-bounded executor. All methods are safe for concurrent
// use.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// New creates a Pool running at most n tasks concurrently. n <= 0 selects
// GOMAXPROCS.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(n)), size: n}
}

// Do runs fn on the pool and waits for it to finish. It blocks while the pool
// is saturated; ctx bounds that wait. fn itself is not interrupted once
// started.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("workerpool: acquire: %w", err)
	}
	done := make(chan struct{})
	go func() {
		defer p.sem.Release(1)
		defer close(done)
		fn()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// The task keeps running to completion; the caller just stops waiting.
		return ctx.Err()
	}
}

// TryDo runs fn on the pool without waiting for capacity. It reports false if
// the pool is saturated, in which case fn is not run. Completion is not
// awaited.
func (p *Pool) TryDo(fn func()) bool {
	if !p.sem.TryAcquire(1) {
		return false
	}
	go func() {
		defer p.sem.Release(1)
		fn()
	}()
	return true
}

// Size returns the pool's concurrency bound.
func (p *Pool) Size() int { return p.size }
