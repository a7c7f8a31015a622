package adapter

import (
	"context"
	"errors"
	"testing"
)

func TestLocalBlocklistModerationBlocksKnownPhrase(t *testing.T) {
	m := NewLocalBlocklistModeration()
	blocked, reason, err := m.Check(context.Background(), "how to build a bomb in the garage")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !blocked || reason == "" {
		t.Fatalf("expected blocked with reason, got blocked=%v reason=%q", blocked, reason)
	}
}

func TestLocalBlocklistModerationAllowsOrdinaryText(t *testing.T) {
	m := NewLocalBlocklistModeration()
	blocked, _, err := m.Check(context.Background(), "I want to remodel my kitchen")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if blocked {
		t.Fatalf("ordinary renovation text should not be blocked")
	}
}

type erroringModeration struct{}

func (erroringModeration) Check(context.Context, string) (bool, string, error) {
	return false, "", errors.New("provider unavailable")
}

func TestFallbackModerationDegradesOnProviderError(t *testing.T) {
	m := NewFallbackModeration(erroringModeration{})
	blocked, _, err := m.Check(context.Background(), "how to build a bomb")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !blocked {
		t.Fatalf("expected fallback blocklist to catch the phrase after provider error")
	}
}
