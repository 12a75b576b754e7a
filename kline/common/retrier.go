package common

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// RetryStrategy configures a Retrier, mirroring the teacher's
// RequesterWithRetry's RetryStrategy field names and defaulting behaviour.
type RetryStrategy struct {
	Attempts            int
	FirstSleepTime      time.Duration
	SleepTimeMultiplier float64
	MaxSleepTime        time.Duration
}

// Retrier runs a fallible operation with a supplied retry strategy, backed
// by github.com/cenkalti/backoff/v4 instead of the teacher's hand-rolled
// multiplier loop.
type Retrier struct {
	Strategy RetryStrategy
	Debug    bool
	Name     string
}

// NewRetrier constructs a Retrier, applying the teacher's defaulting
// convention (zero-value fields fall back to sane defaults).
func NewRetrier(name string, strategy RetryStrategy, debug bool) Retrier {
	if strategy.Attempts == 0 {
		strategy.Attempts = 3
	}
	if strategy.FirstSleepTime == 0 {
		strategy.FirstSleepTime = 1 * time.Second
	}
	if strategy.SleepTimeMultiplier == 0.0 {
		strategy.SleepTimeMultiplier = 2.0
	}
	if strategy.MaxSleepTime == 0 {
		strategy.MaxSleepTime = 60 * time.Second
	}
	return Retrier{Strategy: strategy, Debug: debug, Name: name}
}

// Do runs fn, retrying on errors that are not RemoteError.IsNotRetryable and
// are not the ctx's own cancellation. On RemoteError.RetryAfter > 0, that
// duration is honored for the next sleep instead of the computed backoff.
func (r Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.Strategy.FirstSleepTime
	b.Multiplier = r.Strategy.SleepTimeMultiplier
	b.MaxInterval = r.Strategy.MaxSleepTime
	b.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	attempts := r.Strategy.Attempts
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var remoteErr RemoteError
		if errors.As(err, &remoteErr) && remoteErr.IsNotRetryable {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		sleep := b.NextBackOff()
		if errors.As(err, &remoteErr) && remoteErr.RetryAfter > 0 {
			sleep = remoteErr.RetryAfter
		}
		if r.Debug {
			log.Info().Str("retrier", r.Name).Int("attempt", attempt+1).Err(err).Dur("sleep", sleep).Msg("retrying after error")
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ErrCancelled
		}
	}
	return lastErr
}
