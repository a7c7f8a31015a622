package adapter

import (
	"context"
	"regexp"
	"strings"
)

// blockedPatterns is the local fallback blocklist used when a provider
// moderation call fails or no provider is configured, narrowed to the
// phrases this service must never act on.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(kill|hurt|attack)\s+(myself|someone|you)\b`),
	regexp.MustCompile(`(?i)\bhow\s+(to|do\s+i)\s+(build|make)\s+a\s+(bomb|weapon)\b`),
	regexp.MustCompile(`(?i)\b(bypass|disable)\s+(smoke|fire)\s+(alarm|detector)\b`),
}

// LocalBlocklistModeration is the degraded-mode moderation predicate the
// session falls back to when the configured provider is unavailable.
type LocalBlocklistModeration struct{}

func NewLocalBlocklistModeration() *LocalBlocklistModeration {
	return &LocalBlocklistModeration{}
}

func (m *LocalBlocklistModeration) Check(_ context.Context, text string) (bool, string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false, "", nil
	}
	for _, re := range blockedPatterns {
		if re.MatchString(trimmed) {
			return true, "content violates safety policy", nil
		}
	}
	return false, "", nil
}

// FallbackModeration wraps a primary provider and degrades to the local
// blocklist if the provider call itself errors, so a moderation outage
// never silently lets everything through.
type FallbackModeration struct {
	Primary  Moderation
	Fallback Moderation
}

func NewFallbackModeration(primary Moderation) *FallbackModeration {
	return &FallbackModeration{Primary: primary, Fallback: NewLocalBlocklistModeration()}
}

func (m *FallbackModeration) Check(ctx context.Context, text string) (bool, string, error) {
	if m.Primary != nil {
		blocked, reason, err := m.Primary.Check(ctx, text)
		if err == nil {
			return blocked, reason, nil
		}
	}
	return m.Fallback.Check(ctx, text)
}
