// Package ingest pkg/ingest/retry.go bounds persistence retries.
package ingest

import (
	"context"
	"time"

	"github.com/cgplatform/dbwriter/pkg/db"
)

const (
	retryBackoffBase = 250 * time.Millisecond
	retryBackoffCap  = 5 * time.Second
)

// withRetry runs op under the configured timeout, retrying transient store
// failures with exponential backoff. Fatal errors and context cancellation
// return immediately; the final transient error is returned after the last
// attempt.
func (h *Handler) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retryBackoffBase

	var err error

	for attempt := 0; attempt <= h.opRetries; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, h.opTimeout)
		err = op(opCtx)

		cancel()

		if err == nil {
			return nil
		}

		if db.IsFatal(err) {
			return err
		}

		if attempt == h.opRetries {
			break
		}

		h.stats.RetryAttempts.Add(1)
		h.log.WithError(err).WithField("attempt", attempt+1).
			Warn("Transient store failure, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > retryBackoffCap {
			backoff = retryBackoffCap
		}
	}

	return err
}
