// Package retry provides the backoff helper shared by the extraction client
// and the review store. Both callers use the same policy shape: a bounded
// number of attempts with exponential delay, and a predicate that decides
// whether a failure is worth retrying at all.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Policy describes a bounded retry loop.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt. Subsequent delays
	// double: base, 2*base, 4*base, ...
	BaseDelay time.Duration

	// Retryable reports whether the error from an attempt is transient.
	// A nil predicate retries every error.
	Retryable func(error) bool
}

// Delay returns the backoff duration after the given 1-based attempt number.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Do runs op until it succeeds, fails permanently, or the policy is
// exhausted. The last error is returned. Backoff waits are context-aware so
// a cancelled caller never sits in a sleep.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		log.Warn().
			Str("op", name).
			Int("attempt", attempt).
			Int("maxAttempts", attempts).
			Dur("delay", delay).
			Err(err).
			Msg("Transient failure, backing off before retry")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
