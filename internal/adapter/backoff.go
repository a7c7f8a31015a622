package adapter

import (
	"context"
	"time"

	"github.com/duetvoice/bridge/internal/reliability"
)

// RetryPolicy governs the exponential backoff retry loop wrapped around a
// one-shot adapter call such as STT.Transcribe.
type RetryPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy matches the adapter retry discipline: base 1s, cap 8s,
// at most 3 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: time.Second, Cap: 8 * time.Second, MaxAttempts: 3}
}

// Retry calls fn until it succeeds, a permanent error is returned, the
// context is cancelled, or MaxAttempts is exhausted. isTransient decides
// whether a given error is worth retrying.
func Retry(ctx context.Context, policy RetryPolicy, isTransient func(error) bool, fn func() error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if isTransient == nil || !isTransient(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}
		wait := reliability.ExponentialBackoff(attempt, policy.Base, policy.Cap)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}
