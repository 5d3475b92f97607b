package docstore

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/hupe1980/brandmesh/core"
)

// RetryOnConflict executes fn, retrying up to maxRetries times when it fails
// with core.ErrConflict. Retries use jittered exponential backoff starting at
// baseDelay. fn must re-read the document on every attempt.
func RetryOnConflict(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := range maxRetries + 1 {
		err = fn()
		if err == nil || !errors.Is(err, core.ErrConflict) {
			return err
		}

		if attempt == maxRetries {
			break
		}

		delay := baseDelay
		if baseDelay > 0 {
			delay += time.Duration(rand.Int64N(int64(baseDelay))) //nolint:gosec // jitter only
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		baseDelay *= 2
	}

	return err
}
