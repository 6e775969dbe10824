// Package retry reruns transient failures with exponential backoff.
// By default only rate-limit and network errors are retried; everything
// else fails on the first attempt.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/strandlabs/loom/internal/errdefs"
)

// Policy configures the retry loop.
type Policy struct {
	// MaxAttempts counts the first try. Zero or negative means one
	// attempt, i.e. no retries.
	MaxAttempts int

	// InitialDelay is the pause after the first failure. Each further
	// failure multiplies it by Factor, capped at MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64

	// Jitter randomizes each delay into [0.5x, 1.5x] to avoid
	// synchronized retries.
	Jitter bool

	// ShouldRetry decides whether an error deserves another attempt.
	// Nil uses Transient.
	ShouldRetry func(error) bool
}

// DefaultPolicy suits provider calls: a rate-limited request gets two
// more tries with growing pauses.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Factor:       2.0,
		Jitter:       true,
	}
}

// Transient reports whether err is the kind of failure that tends to
// clear on its own.
func Transient(err error) bool {
	switch errdefs.CodeOf(err) {
	case errdefs.CodeProviderRateLimit, errdefs.CodeNetworkError:
		return true
	}
	return false
}

// Do runs op until it succeeds, exhausts the attempts, or hits a
// non-retryable error. The last error is returned as-is.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Factor <= 0 {
		p.Factor = 2.0
	}
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = Transient
	}

	var err error
	delay := p.InitialDelay
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || !shouldRetry(err) {
			return err
		}

		sleep := delay
		if p.Jitter {
			sleep = time.Duration(float64(delay) * (0.5 + rand.Float64()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * p.Factor)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var value T
	err := Do(ctx, p, func(ctx context.Context) error {
		var opErr error
		value, opErr = op(ctx)
		return opErr
	})
	return value, err
}
