// Package audit provides a write-only analytics trail of committed turns.
// It is never read back into a session: conversation memory lives
// exclusively in internal/state for the lifetime of the session, per the
// no-cross-restart-persistence constraint. This sink exists purely so an
// operator can inspect historical turns out of band.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duetvoice/bridge/internal/policy"
)

// TurnRecord is one committed turn. PostgresSink redacts its text fields
// before writing them.
type TurnRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	AgentID     string    `json:"agent_id"`
	UserText    string    `json:"user_text"`
	ReplyText   string    `json:"reply_text"`
	Blocked     bool      `json:"blocked"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Sink persists committed turns for offline inspection.
type Sink interface {
	Record(ctx context.Context, rec TurnRecord) error
	Close() error
}

// NewSink creates a postgres-backed sink when configured, otherwise a noop.
func NewSink(ctx context.Context, databaseURL string) (Sink, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NoopSink{}, nil
	}
	return NewPostgresSink(ctx, databaseURL)
}

// NoopSink discards every record; used when DATABASE_URL is unset.
type NoopSink struct{}

func (NoopSink) Record(context.Context, TurnRecord) error { return nil }
func (NoopSink) Close() error                             { return nil }

// PostgresSink writes committed turns to an append-only table, redacting
// common PII patterns before the insert.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to databaseURL and ensures the schema exists.
func NewPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresSink{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS turn_audit (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			user_text TEXT NOT NULL,
			reply_text TEXT NOT NULL,
			blocked BOOLEAN NOT NULL DEFAULT FALSE,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_turn_audit_session ON turn_audit (session_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("init audit schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) Record(ctx context.Context, rec TurnRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	userText, userChanged := policy.RedactPII(rec.UserText)
	replyText, replyChanged := policy.RedactPII(rec.ReplyText)
	rec.PIIRedacted = userChanged || replyChanged

	_, err := s.pool.Exec(ctx,
		`INSERT INTO turn_audit (id, session_id, agent_id, user_text, reply_text, blocked, pii_redacted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.SessionID, rec.AgentID, userText, replyText, rec.Blocked, rec.PIIRedacted, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
