// Package retry repeats read-only bridge operations that fail transiently.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	// Attempts is the total number of attempts. Values below 1 mean one
	// attempt, i.e. no retries.
	Attempts int

	// Delay is the wait before the first retry.
	Delay time.Duration

	// MaxDelay caps the wait between retries.
	MaxDelay time.Duration

	// Multiplier grows the delay after each retry.
	Multiplier float64

	// Jitter randomizes each delay by +/- this fraction.
	Jitter float64

	// Retryable reports whether err warrants another attempt. If nil,
	// every error does.
	Retryable func(error) bool
}

// None performs a single attempt.
func None() Policy {
	return Policy{Attempts: 1}
}

// Default retries twice with a short backoff.
func Default() Policy {
	return Policy{
		Attempts:   3,
		Delay:      200 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// Do calls fn until it succeeds, the policy is exhausted, an error is not
// retryable, or ctx is done. It returns the last error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Multiplier == 0 {
		p.Multiplier = 2.0
	}

	var lastErr error
	delay := p.Delay

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return errors.Join(err, lastErr)
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == p.Attempts {
			break
		}

		timer := time.NewTimer(p.jittered(delay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), lastErr)
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 {
			delay = time.Duration(math.Min(float64(delay), float64(p.MaxDelay)))
		}
	}

	return lastErr
}

// DoValue is Do for functions returning a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

func (p Policy) jittered(d time.Duration) time.Duration {
	if p.Jitter <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * p.Jitter
	return d + time.Duration(rand.Float64()*2*spread-spread)
}

// On returns a Retryable func matching errors that wrap any of targets.
func On(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}
