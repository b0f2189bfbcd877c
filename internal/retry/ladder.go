// Package retry runs an operation on a bounded exponential ladder.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var ErrExhausted = errors.New("retry attempts exhausted")

const (
	DefaultMaxAttempts  = 10
	DefaultInitialDelay = time.Second
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Ladder calls an operation at most MaxAttempts times. The wait before the
// k-th retry is InitialDelay * 2^(k-1).
type Ladder struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Sleep        SleepFunc
	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func New(maxAttempts int, initialDelay time.Duration) *Ladder {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}
	return &Ladder{MaxAttempts: maxAttempts, InitialDelay: initialDelay}
}

// Delays returns the waits the ladder performs between attempts.
func (l *Ladder) Delays() []time.Duration {
	b := l.schedule()
	delays := make([]time.Duration, 0, l.MaxAttempts-1)
	for i := 1; i < l.MaxAttempts; i++ {
		delays = append(delays, b.NextBackOff())
	}
	return delays
}

func (l *Ladder) schedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.InitialDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 24 * time.Hour
	b.Reset()
	return b
}

// Do runs fn until it succeeds, the attempts run out, or ctx is done. fn
// receives the 1-based attempt number.
func (l *Ladder) Do(ctx context.Context, fn func(attempt int) error) error {
	sleep := l.Sleep
	if sleep == nil {
		sleep = contextSleep
	}

	b := l.schedule()
	var lastErr error

	for attempt := 1; attempt <= l.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == l.MaxAttempts {
			break
		}

		delay := b.NextBackOff()
		if l.OnRetry != nil {
			l.OnRetry(attempt, delay, lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, l.MaxAttempts, lastErr)
}

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
