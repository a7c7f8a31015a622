package state

import "testing"

func TestUpdateFromUserExtractsProjectFacts(t *testing.T) {
	s := New()
	s.UpdateFromUser("Hi Bob, I want to remodel my kitchen. Budget is around $25k. I want new cabinets and countertops, and maybe open up a wall.")

	if s.Project.Room != "kitchen" {
		t.Fatalf("Room = %q, want %q", s.Project.Room, "kitchen")
	}
	if s.Project.Budget != "$25k" {
		t.Fatalf("Budget = %q, want %q", s.Project.Budget, "$25k")
	}
	foundCabinets, foundCountertops := false, false
	for _, g := range s.Project.Goals {
		if g == "cabinets" || g == "new cabinets" {
			foundCabinets = true
		}
		if g == "countertops" {
			foundCountertops = true
		}
	}
	if !foundCabinets {
		t.Fatalf("expected a cabinets goal, got %v", s.Project.Goals)
	}
	if !foundCountertops {
		t.Fatalf("expected a countertops goal, got %v", s.Project.Goals)
	}
}

func TestUpdateFromAgentExtractsRisks(t *testing.T) {
	s := New()
	s.UpdateFromAgent("Before we proceed, note this wall may be load-bearing and you'll need a permit.")

	hasLoadBearing, hasPermit := false, false
	for _, r := range s.Risks {
		if r == "load-bearing" {
			hasLoadBearing = true
		}
		if r == "permit" {
			hasPermit = true
		}
	}
	if !hasLoadBearing || !hasPermit {
		t.Fatalf("expected load-bearing and permit risks, got %v", s.Risks)
	}
}

func TestAppendTurnEvictsOldestBeyondNTail(t *testing.T) {
	s := New()
	for i := 0; i < NTail+5; i++ {
		s.AppendTurn(SpeakerUser, "message")
	}
	if len(s.TranscriptTail) != NTail {
		t.Fatalf("len(TranscriptTail) = %d, want %d", len(s.TranscriptTail), NTail)
	}
}

func TestMarkAgentSeenIsIdempotentAndPersists(t *testing.T) {
	s := New()
	s.MarkAgentSeen("bob")
	s.MarkAgentSeen("bob")
	snap := s.RenderContext()
	if len(snap.AgentSeen) != 1 || snap.AgentSeen[0] != "bob" {
		t.Fatalf("AgentSeen = %v, want [bob]", snap.AgentSeen)
	}
}

func TestRenderContextIsASnapshotNotALiveView(t *testing.T) {
	s := New()
	s.AppendTurn(SpeakerUser, "hello")
	snap := s.RenderContext()
	s.AppendTurn(SpeakerUser, "world")
	if len(snap.RecentTranscript) != 1 {
		t.Fatalf("snapshot should be frozen at render time, got %d entries", len(snap.RecentTranscript))
	}
}

func TestSummaryRegeneratesFromTemplate(t *testing.T) {
	s := New()
	s.UpdateFromUser("I want to remodel my bathroom, budget $10k")
	if s.Summary == "" {
		t.Fatalf("expected non-empty summary")
	}
	if len(s.Summary) > 240 {
		t.Fatalf("summary exceeds 240 chars: %d", len(s.Summary))
	}
}
