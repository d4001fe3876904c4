// Package listen implements voice activity segmentation over the capture
// sink. A fixed-cadence tick loop classifies buffered audio into Idle,
// Speaking, and Finalizing, producing finalized speech segments for the
// transcription dispatcher. Running detection on the tick rather than on
// frame arrival bounds finalize latency to one tick period regardless of how
// fast frames come in.
package listen

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nvoss/parley/internal/capture"
	"github.com/nvoss/parley/internal/workerpool"
	"github.com/nvoss/parley/pkg/audio"
)

// State is the monitor's detection state.
type State int

const (
	// Idle means no speech is being tracked.
	Idle State = iota

	// Speaking means an open segment is accumulating frames.
	Speaking

	// Finalizing means the open segment is being handed off.
	Finalizing
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Speaking:
		return "speaking"
	case Finalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Segment is a finalized span of speech bounded by detected onset and
// offset. The PCM is the sink's combined audio at capture format; it is
// handed off exactly once and owned by the receiver afterwards.
type Segment struct {
	PCM      []byte
	Format   audio.Format
	Speakers []string
	Start    time.Time
	Duration time.Duration

	// ForcedCutoff is set when the segment was closed by the max-duration
	// cap rather than by silence.
	ForcedCutoff bool
}

// Config holds the detection thresholds.
type Config struct {
	// EnergyThreshold is the RMS level (in int16 sample units) above which a
	// frame counts as speech.
	EnergyThreshold float64

	// SilenceThreshold is how long energy must stay below threshold after
	// speech before the segment is finalized.
	SilenceThreshold time.Duration

	// MaxSpeechDuration force-finalizes a segment that never goes silent,
	// guarding against continuous noise or music bleed.
	MaxSpeechDuration time.Duration

	// TickInterval is the detection cadence.
	TickInterval time.Duration
}

// withDefaults fills zero fields with the stock thresholds.
func (c Config) withDefaults() Config {
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = 500
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = 1500 * time.Millisecond
	}
	if c.MaxSpeechDuration <= 0 {
		c.MaxSpeechDuration = 8 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	return c
}

// Option configures a Monitor during construction.
type Option func(*Monitor)

// WithPool offloads per-frame energy computation to the given pool. When the
// pool is saturated the computation runs inline; it must never block the
// frame-arrival path.
func WithPool(p *workerpool.Pool) Option {
	return func(m *Monitor) { m.pool = p }
}

// WithOnSpeechStart registers fn to be invoked on every Idle→Speaking
// transition. This is the barge-in hook. fn runs on its own goroutine and
// must not block.
func WithOnSpeechStart(fn func()) Option {
	return func(m *Monitor) { m.onSpeechStart = fn }
}

// Monitor owns the segmentation state machine for one session.
// Observe is called from the transport's receive path; the tick loop runs on
// its own goroutine started by Start. All exported methods are safe for
// concurrent use.
type Monitor struct {
	cfg  Config
	sink *capture.Sink
	pool *workerpool.Pool

	onSegment     func(Segment)
	onSpeechStart func()

	mu          sync.Mutex
	state       State
	firstSpeech time.Time
	lastSpeech  time.Time
	segStart    time.Time

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Monitor over sink that delivers finalized segments to
// onSegment. onSegment is invoked on its own goroutine per segment so a slow
// consumer cannot stall the tick loop.
func New(sink *capture.Sink, cfg Config, onSegment func(Segment), opts ...Option) *Monitor {
	m := &Monitor{
		cfg:       cfg.withDefaults(),
		sink:      sink,
		onSegment: onSegment,
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Observe ingests a captured frame: it is written to the sink and its RMS
// energy recorded for the next tick's classification. Observe never blocks;
// energy computation goes to the pool when one is configured and runs inline
// when the pool is saturated.
func (m *Monitor) Observe(frame audio.Frame) {
	m.sink.Write(frame)

	job := func() {
		if audio.RMS(frame.Data) < m.cfg.EnergyThreshold {
			return
		}
		at := frame.ReceivedAt
		if at.IsZero() {
			at = time.Now()
		}
		m.mu.Lock()
		m.lastSpeech = at
		m.mu.Unlock()
	}
	if m.pool == nil || !m.pool.TryDo(job) {
		job()
	}
}

// Start launches the tick loop. It returns immediately; the loop runs until
// ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)
}

// Stop cancels the tick loop and finalizes any mid-flight segment exactly
// once. Safe to call multiple times.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
			<-m.done
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state == Speaking {
			m.finalizeLocked(time.Now())
		}
	})
}

// State returns the current detection state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// run is the fixed-cadence detection loop.
func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.tick(now)
		}
	}
}

// tick advances the state machine once.
func (m *Monitor) tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Idle:
		if m.lastSpeech.IsZero() {
			// Nothing but silence since the last boundary; discard it so the
			// next segment starts at (roughly) its onset.
			m.sink.Clear()
			return
		}
		m.state = Speaking
		m.firstSpeech = m.lastSpeech
		m.segStart = m.lastSpeech
		if m.onSpeechStart != nil {
			go m.onSpeechStart()
		}
		slog.Debug("listen: speech onset", "at", m.firstSpeech)

	case Speaking:
		silentFor := now.Sub(m.lastSpeech)
		speakingFor := now.Sub(m.firstSpeech)
		if silentFor >= m.cfg.SilenceThreshold || speakingFor >= m.cfg.MaxSpeechDuration {
			m.finalizeLocked(now)
		}
	}
}

// finalizeLocked hands off the open segment and resets to Idle.
// Must be called with m.mu held and state == Speaking.
func (m *Monitor) finalizeLocked(now time.Time) {
	m.state = Finalizing

	forced := now.Sub(m.firstSpeech) >= m.cfg.MaxSpeechDuration

	seg := Segment{
		PCM:          m.sink.Combined(),
		Format:       m.sink.Format(),
		Speakers:     m.sink.SpeakerIDs(),
		Start:        m.segStart,
		Duration:     m.sink.Duration(),
		ForcedCutoff: forced,
	}
	m.sink.Clear()

	m.state = Idle
	m.firstSpeech = time.Time{}
	m.lastSpeech = time.Time{}
	m.segStart = time.Time{}

	slog.Debug("listen: segment finalized",
		"duration", seg.Duration,
		"speakers", len(seg.Speakers),
		"forced_cutoff", seg.ForcedCutoff,
	)

	if m.onSegment != nil && len(seg.PCM) > 0 {
		go m.onSegment(seg)
	}
}
