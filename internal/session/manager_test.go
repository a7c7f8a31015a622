package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/duetvoice/bridge/internal/router"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create()
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AgentID != router.Bob || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
}

func TestManagerNextTurnIDIncrements(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create()

	for want := int64(1); want <= 3; want++ {
		got, err := m.NextTurnID(s.ID)
		if err != nil {
			t.Fatalf("NextTurnID() error = %v", err)
		}
		if got != want {
			t.Fatalf("NextTurnID() = %d, want %d", got, want)
		}
	}
}

func TestManagerSetAgentPersists(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create()
	if err := m.SetAgent(s.ID, router.Alice); err != nil {
		t.Fatalf("SetAgent() error = %v", err)
	}
	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AgentID != router.Alice {
		t.Fatalf("AgentID = %v, want alice", got.AgentID)
	}
}

func TestManagerSetDeafUntil(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create()
	until := time.Now().Add(700 * time.Millisecond)
	if err := m.SetDeafUntil(s.ID, until); err != nil {
		t.Fatalf("SetDeafUntil() error = %v", err)
	}
	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.DeafUntil.Equal(until) {
		t.Fatalf("DeafUntil = %v, want %v", got.DeafUntil, until)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	s := m.Create()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusEnded {
		t.Fatalf("Status = %q, want %q", got.Status, StatusEnded)
	}
}

func TestManagerExpireHookFiresOnce(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	var fired []string
	m.SetExpireHook(func(s *Session) {
		fired = append(fired, s.ID)
	})
	s := m.Create()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	if len(fired) != 1 || fired[0] != s.ID {
		t.Fatalf("fired = %v, want exactly one hook call for %s", fired, s.ID)
	}
}

func TestManagerGetUnknownSessionReturnsErrNotFound(t *testing.T) {
	m := NewManager(time.Minute)
	if _, err := m.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want %v", err, ErrNotFound)
	}
}
