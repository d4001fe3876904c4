package health

import (
	"context"
	"fmt"
)

// Pinger is satisfied by *pgxpool.Pool and anything else that can probe its
// backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Postgres returns a [Checker] that pings the transcript store.
func Postgres(p Pinger) Checker {
	return Checker{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			return p.Ping(ctx)
		},
	}
}

// sessionCounter is satisfied by the voice session registry.
type sessionCounter interface {
	Len() int
}

// VoiceSessions returns a [Checker] that fails when no voice session is
// running. The agent is not ready to serve anyone while disconnected from
// its channel.
func VoiceSessions(reg sessionCounter) Checker {
	return Checker{
		Name: "voice_sessions",
		Check: func(_ context.Context) error {
			if n := reg.Len(); n == 0 {
				return fmt.Errorf("no active voice sessions")
			}
			return nil
		},
	}
}
