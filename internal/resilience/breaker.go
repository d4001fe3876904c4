// Package resilience protects the pipeline from flaky speech and language
// backends. A [Breaker] is a three-state circuit breaker; a [Chain] composes
// several instances of one provider type behind per-entry breakers so a
// failing primary is bypassed in favour of healthy alternates.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker is open and
// the cooldown has not elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects calls until the cooldown elapses.
	Open

	// HalfOpen lets a bounded number of probe calls through to decide
	// whether the backend has recovered.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. Zero fields select defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// Trip is the number of consecutive failures that opens the breaker.
	// Default 5.
	Trip int

	// Cooldown is how long the breaker stays open before probing.
	// Default 30s.
	Cooldown time.Duration

	// Probes is the half-open probe budget. Default 3.
	Probes int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Trip <= 0 {
		c.Trip = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.Probes <= 0 {
		c.Probes = 3
	}
	return c
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	probeErrs int
}

// NewBreaker creates a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// Do runs fn unless the breaker rejects the call. A rejected call returns
// ErrBreakerOpen without invoking fn; otherwise fn's error is returned and
// counted.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.fail(probe)
	} else {
		b.succeed(probe)
	}
	return err
}

// admit decides whether a call may proceed. It returns whether the call
// counts as a half-open probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.cfg.Cooldown {
			return false, ErrBreakerOpen
		}
		b.state = HalfOpen
		b.probes = 0
		b.probeErrs = 0
		slog.Info("breaker half-open", "name", b.cfg.Name)
	case HalfOpen:
		if b.probes >= b.cfg.Probes {
			return false, ErrBreakerOpen
		}
	}

	if b.state == HalfOpen {
		b.probes++
		return true, nil
	}
	return false, nil
}

// fail records a failed call. Caller holds b.mu.
func (b *Breaker) fail(probe bool) {
	b.openedAt = time.Now()
	if probe {
		// One bad probe re-opens.
		b.probeErrs++
		b.state = Open
		b.failures = b.cfg.Trip
		slog.Warn("breaker re-opened", "name", b.cfg.Name)
		return
	}
	b.failures++
	if b.failures >= b.cfg.Trip {
		b.state = Open
		slog.Warn("breaker opened", "name", b.cfg.Name, "failures", b.failures)
	}
}

// succeed records a successful call. Caller holds b.mu.
func (b *Breaker) succeed(probe bool) {
	if probe {
		if b.probes-b.probeErrs >= b.cfg.Probes {
			b.state = Closed
			b.failures = 0
			slog.Info("breaker closed", "name", b.cfg.Name)
		}
		return
	}
	b.failures = 0
}

// State returns the breaker's state. An open breaker whose cooldown elapsed
// reports HalfOpen; the transition itself happens on the next Do.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.openedAt) >= b.cfg.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probes = 0
	b.probeErrs = 0
}
