// Package retry runs an operation a bounded number of times with a fixed
// delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"payadvice/internal/logger"
)

type Policy struct {
	Attempts  int
	Delay     time.Duration
	Retryable func(error) bool
}

func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{Attempts: attempts, Delay: delay}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// retryable does not look for context errors in the chain: a client-side
// timeout wraps context.DeadlineExceeded but is still a transient failure.
// Cancellation is decided by the caller's context in Do.
func (p Policy) retryable(err error) bool {
	if IsPermanent(err) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

func (p Policy) backOff(ctx context.Context) backoff.BackOffContext {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1))
	return backoff.WithContext(b, ctx)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. The last error is returned wrapped with the count.
func (p Policy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	log := logger.FromContext(ctx)

	calls := 0
	var stop error
	err := backoff.RetryNotify(func() error {
		calls++
		err := fn(ctx)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			stop = errors.Join(ctx.Err(), err)
			return backoff.Permanent(stop)
		case !p.retryable(err):
			stop = err
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx), func(err error, next time.Duration) {
		log.Warn().Err(err).Str("op", name).Int("attempt", calls).Dur("wait", next).Msg("attempt failed")
	})

	switch {
	case err == nil:
		return nil
	case stop != nil:
		return stop
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, calls, err)
}
