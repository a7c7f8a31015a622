package agent

import (
	"strings"
	"testing"

	"github.com/duetvoice/bridge/internal/router"
	"github.com/duetvoice/bridge/internal/state"
)

func TestNewManagerStartsAtBob(t *testing.T) {
	m := NewManager("alloy", "shimmer")
	if m.Current().ID != router.Bob {
		t.Fatalf("Current().ID = %v, want bob", m.Current().ID)
	}
}

func TestSwitchChangesCurrentPersonaOnly(t *testing.T) {
	m := NewManager("alloy", "shimmer")
	m.Switch(router.Alice)
	if m.Current().ID != router.Alice {
		t.Fatalf("Current().ID = %v, want alice", m.Current().ID)
	}
}

func TestBuildHandoffNoteRecommendedFocusByTarget(t *testing.T) {
	snap := state.Snapshot{Summary: "Renovating kitchen, budget $25k."}
	alice := BuildHandoffNote(snap, "Transfer me to Alice", router.Alice)
	if !strings.Contains(alice.RecommendedFocus, "permits") {
		t.Fatalf("Alice focus = %q, want mention of permits", alice.RecommendedFocus)
	}
	bob := BuildHandoffNote(snap, "Go back to Bob", router.Bob)
	if !strings.Contains(bob.RecommendedFocus, "checklist") {
		t.Fatalf("Bob focus = %q, want mention of checklist", bob.RecommendedFocus)
	}
}

func TestBuildMessagesOrderWithoutHandoffNote(t *testing.T) {
	m := NewManager("alloy", "shimmer")
	snap := state.Snapshot{Summary: "Renovating kitchen, budget $25k."}

	messages, err := BuildMessages(m.Current(), false, snap, "Hi Bob", nil)
	if err != nil {
		t.Fatalf("BuildMessages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("len(messages) = %d, want 3", len(messages))
	}
	if messages[0].Role != "system" || !strings.Contains(messages[0].Text, "Bob") {
		t.Fatalf("messages[0] = %+v, want Bob persona prompt", messages[0])
	}
	if messages[1].Role != "system" || !strings.Contains(messages[1].Text, "Project:") {
		t.Fatalf("messages[1] = %+v, want context message", messages[1])
	}
	if messages[2].Role != "user" || messages[2].Text != "Hi Bob" {
		t.Fatalf("messages[2] = %+v, want user message", messages[2])
	}
}

func TestBuildMessagesIncludesHandoffNoteWhenPresent(t *testing.T) {
	m := NewManager("alloy", "shimmer")
	m.Switch(router.Alice)
	snap := state.Snapshot{Summary: "Renovating kitchen, budget $25k.", Risks: []string{"load-bearing"}}
	note := BuildHandoffNote(snap, "Transfer me to Alice", router.Alice)

	messages, err := BuildMessages(m.Current(), false, snap, "Transfer me to Alice", &note)
	if err != nil {
		t.Fatalf("BuildMessages: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("len(messages) = %d, want 4", len(messages))
	}
	if !strings.Contains(messages[2].Text, "Do not reintroduce yourself") {
		t.Fatalf("handoff note message = %q, want reintroduction directive", messages[2].Text)
	}
	if !strings.Contains(messages[2].Text, "load-bearing") {
		t.Fatalf("handoff note message = %q, want known risk", messages[2].Text)
	}
}

func TestBuildMessagesSuppressesReintroductionWhenAlreadySeen(t *testing.T) {
	m := NewManager("alloy", "shimmer")
	snap := state.Snapshot{}

	messages, err := BuildMessages(m.Current(), true, snap, "Go back to Bob", nil)
	if err != nil {
		t.Fatalf("BuildMessages: %v", err)
	}
	if !strings.Contains(messages[0].Text, "Do not reintroduce yourself") {
		t.Fatalf("persona prompt = %q, want reintroduction directive appended", messages[0].Text)
	}
}
