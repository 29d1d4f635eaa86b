package ledger

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"invest-engine-go/internal/store"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrConflict is returned when a ledger operation loses the optimistic
// concurrency race more times than the configured attempt budget.
var ErrConflict = errors.New("concurrent-mutation retries exhausted")

const (
	defaultMaxAttempts = 5
	defaultRetryBase   = 10 * time.Millisecond
)

// withRetry runs op, retrying on optimistic-lock conflicts with jittered
// backoff. Every other error surfaces immediately. The transactions being
// retried are short local read-modify-write cycles, so a small fixed
// budget is enough; exhausting it means real contention and the caller
// gets ErrConflict.
func withRetry(ctx context.Context, maxAttempts int, retryBase time.Duration, op func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, store.ErrConcurrentModification) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		backoff := time.Duration(attempt) * retryBase
		jitter := time.Duration(rand.Int63n(int64(retryBase)))
		zap.L().Debug("Ledger conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff+jitter))

		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return multierr.Append(ErrConflict, err)
}
