package migration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rendis/flowgraph/pkg/schema"
)

// RetryPolicy bounds retries of store writes that failed transiently.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	Delay       time.Duration `json:"delay"`
	MaxDelay    time.Duration `json:"max_delay"`
}

// DefaultRetryPolicy retries a locked database a few times with exponential backoff.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 4, Delay: 25 * time.Millisecond, MaxDelay: time.Second}

// IsRetryableError reports whether a store error is worth retrying.
// Only lock contention qualifies; domain errors (conflict, not found, invalid
// document) never change on retry.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch schema.ErrorCode(err) {
	case schema.ErrCodeConflict, schema.ErrCodeNotFound, schema.ErrCodeValidation:
		return false
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := strings.ToLower(e.Error())
		if strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy") {
			return true
		}
	}
	return false
}

// ComputeBackoff returns the exponential delay before retry number attempt (0-based), capped at MaxDelay.
func ComputeBackoff(policy RetryPolicy, attempt int) time.Duration {
	if policy.Delay <= 0 {
		return 0
	}
	delay := policy.Delay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if policy.MaxDelay > 0 && delay >= policy.MaxDelay {
			return policy.MaxDelay
		}
	}
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	return delay
}

// withRetry calls fn until it succeeds, fails with a non-retryable error, or the
// policy runs out of attempts.
func withRetry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil || !IsRetryableError(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		if werr := waitForBackoff(ctx, ComputeBackoff(policy, attempt)); werr != nil {
			return werr
		}
	}
	return err
}

func waitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
