// Package translog persists the conversation log of a voice session to
// PostgreSQL. Every transcribed utterance and every agent reply is written
// as one row, so a session can be reviewed or replayed after the fact.
//
// The store shares a single [pgxpool.Pool]. Migrate installs the schema
// and is idempotent.
package translog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Kind distinguishes who produced a log entry.
const (
	KindUser      = "user"
	KindAgent     = "agent"
	KindInterrupt = "interrupt"
)

// Entry is one utterance in the conversation log.
type Entry struct {
	SessionID string
	ChannelID string
	SpeakerID string
	Kind      string // KindUser, KindAgent or KindInterrupt
	Text      string
	Language  string
	Rule      string // classifier rule that triggered a reply, if any
	Timestamp time.Time
}

// Store is the conversation log sink. The dispatcher and voice session
// write through this interface; Postgres backs it in production.
type Store interface {
	Append(ctx context.Context, entry Entry) error
}

// PostgresStore implements Store on a pgx connection pool. All methods
// are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const ddlTranscriptEntries = `
CREATE TABLE IF NOT EXISTS transcript_entries (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    channel_id  TEXT         NOT NULL DEFAULT '',
    speaker_id  TEXT         NOT NULL DEFAULT '',
    kind        TEXT         NOT NULL DEFAULT 'user',
    text        TEXT         NOT NULL,
    language    TEXT         NOT NULL DEFAULT '',
    rule        TEXT         NOT NULL DEFAULT '',
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_session
    ON transcript_entries (session_id, timestamp);
`

// New connects to PostgreSQL at dsn, installs the schema, and returns the
// store. Call Close when done.
func New(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("translog: connect: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, ddlTranscriptEntries); err != nil {
		return fmt.Errorf("translog: migrate: %w", err)
	}
	return nil
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	const q = `
		INSERT INTO transcript_entries
		    (session_id, channel_id, speaker_id, kind, text, language, rule, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.pool.Exec(ctx, q,
		entry.SessionID,
		entry.ChannelID,
		entry.SpeakerID,
		entry.Kind,
		entry.Text,
		entry.Language,
		entry.Rule,
		ts,
	)
	if err != nil {
		return fmt.Errorf("translog: append: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for sessionID, oldest first.
func (s *PostgresStore) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	const q = `
		SELECT session_id, channel_id, speaker_id, kind, text, language, rule, timestamp
		FROM (
		    SELECT *
		    FROM   transcript_entries
		    WHERE  session_id = $1
		    ORDER  BY timestamp DESC
		    LIMIT  $2
		) latest
		ORDER BY timestamp`

	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("translog: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.SessionID, &e.ChannelID, &e.SpeakerID, &e.Kind,
			&e.Text, &e.Language, &e.Rule, &e.Timestamp)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("translog: scan rows: %w", err)
	}
	return entries, nil
}

// Ping probes the database connection. Used by readiness checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
