// Package retry provides the one shared exponential-backoff-with-jitter
// primitive used by the LLM adapter's provider calls (the Ollama client and
// the hosted-provider clients), so transient I/O errors are retried the same
// way on every call rather than each client rolling its own loop. Tool runs
// in the Orchestrator do not go through it and are not retried.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy configures exponential backoff with jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
	JitterFrac  float64
}

// DefaultPolicy matches the error-handling design's transient-I/O policy: 3
// attempts starting at 100ms, capped at 5s, doubling each attempt, ±10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Factor:      2.0,
		JitterFrac:  0.10,
	}
}

// Retryable marks an error as eligible for retry. Errors that don't
// implement this are treated as terminal.
type Retryable interface {
	Retryable() bool
}

// Do runs fn, retrying on error up to policy.MaxAttempts times with
// exponential backoff and jitter. Only an error that implements Retryable
// and reports true is retried; any other error is returned immediately
// without further attempts. ctx cancellation aborts the wait between
// attempts.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := policy.BaseDelay

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var r Retryable
		if !errors.As(lastErr, &r) || !r.Retryable() {
			return lastErr
		}

		if attempt == policy.MaxAttempts {
			break
		}

		jitter := 1.0 + (rand.Float64()*2-1)*policy.JitterFrac
		wait := time.Duration(float64(delay) * jitter)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * policy.Factor)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return lastErr
}
