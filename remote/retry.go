package remote

import (
	"context"
	"math/rand"
	"time"
)

// Policy controls retry behavior for remote calls: exponential backoff with
// a cap, bounded attempts, and ±Jitter randomization of each delay.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	Jitter      float64

	// Sleep waits for the given duration or until ctx is done. Nil uses a
	// real timer; tests inject their own.
	Sleep func(ctx context.Context, d time.Duration) error

	// Rand drives jitter. Nil uses the shared global source.
	Rand *rand.Rand
}

// DefaultPolicy matches the documented budget: base 250ms doubling per
// attempt, capped at 10s, five attempts, ±20% jitter.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		MaxAttempts: 5,
		Jitter:      0.2,
	}
}

// delay computes the backoff before attempt n (1-based; attempt 1 has no
// delay). A provider-suggested Retry-After overrides the computed value.
func (p Policy) delay(attempt int, suggested time.Duration) time.Duration {
	if suggested > 0 {
		return suggested
	}
	d := p.BaseDelay << (attempt - 2)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		f := 1 - p.Jitter + 2*p.Jitter*p.random()
		d = time.Duration(float64(d) * f)
	}
	return d
}

func (p Policy) random() float64 {
	if p.Rand != nil {
		return p.Rand.Float64()
	}
	return rand.Float64()
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Do runs fn under the policy. Terminal failures return immediately; a
// retryable failure on the final attempt is returned to the caller as-is,
// so the caller can inspect the last response and decide for itself.
func Do[T any](ctx context.Context, policy Policy, fn func() (T, error)) (T, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := policy.sleep(ctx, policy.delay(attempt, retryAfter(lastErr))); err != nil {
				return zero, err
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !Retryable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}
