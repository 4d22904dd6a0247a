// Package retry wraps exponential-backoff retry for LLM and embedding calls.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy controls how an operation is retried. The zero value is not usable;
// construct with DefaultPolicy or fill all fields.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration
	// MaxInterval caps the exponential backoff delay.
	MaxInterval time.Duration
	// Retryable reports whether an error is worth retrying. A nil predicate
	// retries every error.
	Retryable func(error) bool
}

// DefaultPolicy returns the retry policy used for model calls: up to attempts
// tries with exponential backoff starting at one second.
func DefaultPolicy(attempts int) Policy {
	if attempts < 1 {
		attempts = 1
	}
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// Do runs op, retrying per the policy until it succeeds, a non-retryable
// error occurs, attempts are exhausted, or ctx is cancelled.
func (p Policy) Do(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	retries := uint64(0)
	if p.MaxAttempts > 1 {
		retries = uint64(p.MaxAttempts - 1)
	}

	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx))
}
