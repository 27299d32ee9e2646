package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentdeck/logging"
)

// isConflictError reports SQLITE_BUSY and "database is locked" failures,
// both of which warrant a retry.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// withRetry runs op, retrying lock conflicts with exponential backoff
// (100ms, 200ms, ...).
func withRetry(ctx context.Context, logger logging.Logger, name string, maxRetries int, op func() error) error {
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		if err = op(); err == nil || !isConflictError(err) {
			return err
		}

		if i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i)
		logger.Debug("store.retry", "op", name, "attempt", i+1, "delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, maxRetries, err)
}
