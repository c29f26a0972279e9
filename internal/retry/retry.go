// Package retry runs an operation a bounded number of times with a pause
// between failed attempts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultMaxAttempts matches the generation.max_retries default
const DefaultMaxAttempts = 2

// DefaultDelay is the pause after an attempt that returned an error
const DefaultDelay = time.Second

// Attempt is one try of an operation. done reports success; err reports a
// failure worth pausing for before the next try. An attempt may return
// done=false with a nil error, in which case the next try starts at once.
type Attempt func(ctx context.Context, n int) (done bool, err error)

// Policy bounds attempts and spaces them with a backoff schedule
type Policy struct {
	MaxAttempts int
	NewBackOff  func() backoff.BackOff
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Default tries twice with a constant one second pause
func Default() Policy {
	return Constant(DefaultMaxAttempts, DefaultDelay)
}

// Constant tries up to attempts times with a fixed pause
func Constant(attempts int, d time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		NewBackOff:  func() backoff.BackOff { return backoff.NewConstantBackOff(d) },
		Sleep:       SleepContext,
	}
}

// Exponential tries up to attempts times with a growing, jittered pause
func Exponential(attempts int, initial, maxDelay time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = maxDelay
			return b
		},
		Sleep: SleepContext,
	}
}

// Immediate tries up to attempts times without pausing
func Immediate(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		NewBackOff:  func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

// Do runs fn until it reports done or the attempts are used up. It returns
// the number of attempts made and the error of the last attempt, which is
// nil when the last attempt merely did not succeed. Cancellation of ctx
// stops the loop between attempts and returns ctx.Err().
func (p Policy) Do(ctx context.Context, fn Attempt) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if p.NewBackOff != nil {
		b = p.NewBackOff()
	}
	b.Reset()

	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			return n - 1, err
		}

		done, err := fn(ctx, n)
		if done {
			return n, nil
		}
		lastErr = err
		if err == nil || n == attempts {
			continue
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			return n, lastErr
		}
		if err := sleep(ctx, next); err != nil {
			return n, err
		}
	}
	return attempts, lastErr
}

// SleepContext pauses for d or until ctx is done
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
