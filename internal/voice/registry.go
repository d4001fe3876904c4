package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nvoss/parley/internal/observe"
)

var (
	// ErrSessionNotFound is returned when no session exists for a channel.
	ErrSessionNotFound = errors.New("voice: no session for channel")

	// ErrSessionActive is returned when a channel already has a session.
	ErrSessionActive = errors.New("voice: channel already has an active session")
)

// Registry tracks at most one Session per voice channel. All methods are
// safe for concurrent use.
type Registry struct {
	log     *slog.Logger
	metrics *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
	seq      int
}

// NewRegistry creates an empty Registry. logger may be nil.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		log:      logger,
		metrics:  observe.Default(),
		sessions: make(map[string]*Session),
	}
}

// Start creates and starts a session for cfg.ChannelID. A missing cfg.ID
// is filled with a sequence-derived one. Returns ErrSessionActive if the
// channel already has a session.
func (r *Registry) Start(ctx context.Context, cfg Config, deps Deps) (*Session, error) {
	r.mu.Lock()
	if _, ok := r.sessions[cfg.ChannelID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionActive, cfg.ChannelID)
	}
	r.seq++
	if cfg.ID == "" {
		cfg.ID = fmt.Sprintf("session-%d", r.seq)
	}
	s := NewSession(cfg, deps)
	r.sessions[cfg.ChannelID] = s
	r.mu.Unlock()

	s.Start(ctx)
	r.metrics.ActiveSessions.Add(ctx, 1)
	r.log.Info("voice session registered",
		slog.String("session", cfg.ID), slog.String("channel", cfg.ChannelID))
	return s, nil
}

// Get returns the session for channelID, or ErrSessionNotFound.
func (r *Registry) Get(channelID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[channelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, channelID)
	}
	return s, nil
}

// Stop tears down the session for channelID. Returns ErrSessionNotFound
// if the channel has none.
func (r *Registry) Stop(channelID string) error {
	r.mu.Lock()
	s, ok := r.sessions[channelID]
	if ok {
		delete(r.sessions, channelID)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, channelID)
	}
	s.Stop()
	r.metrics.ActiveSessions.Add(context.Background(), -1)
	return nil
}

// StopAll tears down every session. Used during shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
		r.metrics.ActiveSessions.Add(context.Background(), -1)
	}
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
