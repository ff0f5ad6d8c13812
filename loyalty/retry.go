package loyalty

import (
	"context"
	"fmt"
	"strings"
	"time"

	"loyaltyd/observability"
)

const allocatorMaxAttempts = 5

// retryable reports whether an error is a transient storage race worth
// retrying: a lost row lock, a serialization failure or a busy database.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"deadlock",
		"could not serialize",
		"serialization failure",
		"40001",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// withRetry runs fn up to allocatorMaxAttempts times, backing off briefly
// between attempts. Non-retryable errors propagate immediately; exhausted
// retries surface as ErrConflictRetryable so the caller re-runs the whole
// operation.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < allocatorMaxAttempts; attempt++ {
		if attempt > 0 {
			observability.Engine().RecordCounterRetry()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 20 * time.Millisecond):
			}
		}
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrConflictRetryable, err)
}
