// Package retry provides policy-driven retries with jittered exponential
// backoff for transient exchange failures.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy defines how an operation is retried.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is a sensible default for exchange calls.
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// IsTransientFunc decides whether an error is worth retrying.
type IsTransientFunc func(error) bool

// Do executes fn, retrying transient failures per the policy. The last error
// is returned when attempts are exhausted or a permanent error occurs.
func Do(ctx context.Context, policy Policy, isTransient IsTransientFunc, fn func() error) error {
	backoff := policy.InitialBackoff
	var err error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if isTransient != nil && !isTransient(err) {
			return err
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		// backoff + random(0, 50% of backoff)
		sleep := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		if backoff *= 2; backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
	return err
}
