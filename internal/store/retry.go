package store

import (
	"context"
	"time"

	reperr "github.com/expertsure/expertsure/internal/errors"
)

// retry policy for transient write conflicts.
const (
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// WithRetry runs op, retrying on retryable errors with capped
// exponential backoff. Non-retryable errors return immediately.
func WithRetry(ctx context.Context, op func() error) error {
	backoff := initialBackoff
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
		err = op()
		if err == nil || !reperr.IsRetryable(err) {
			return err
		}
	}
	return err
}
