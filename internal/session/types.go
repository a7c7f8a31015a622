package session

import (
	"time"

	"github.com/duetvoice/bridge/internal/router"
)

// Status is the lifecycle state of a session record.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Session is the Manager's record of one browser connection: its current
// persona, turn counter and activity timestamps. The connection actor in
// session.go owns the live pipeline state (adapters, conversation state,
// in-flight turn); this struct is what survives for inspection and
// inactivity bookkeeping between turns.
type Session struct {
	ID             string        `json:"session_id"`
	AgentID        router.AgentID `json:"agent_id"`
	Status         Status        `json:"status"`
	TurnCounter    int64         `json:"turn_counter"`
	StartedAt      time.Time     `json:"started_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	DeafUntil      time.Time     `json:"-"`
}

// CreateResponse is returned from the session-creation endpoint.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	Status          Status    `json:"status"`
	AgentID         string    `json:"agent_id"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
