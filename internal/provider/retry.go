package provider

import (
	"context"
	"math/rand"
	"time"
)

const (
	retryMaxAttempts = 3
	retryBaseDelay   = 500 * time.Millisecond
)

// withRetry runs fn with bounded exponential backoff and jitter. Only
// transient network/5xx errors are retried; auth and rate-limit errors
// return immediately. Streaming calls never go through here: once a stream
// has emitted a delta a retry would duplicate output.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	delay := retryBaseDelay

	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		if attempt > 0 {
			jittered := delay/2 + time.Duration(rand.Int63n(int64(delay)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jittered):
			}
			delay *= 2
		}

		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}

	return err
}
