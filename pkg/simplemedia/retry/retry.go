// Package retry runs an operation a bounded number of times and reports
// exhaustion as a distinct error.
package retry

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is matched by errors.Is for every ExhaustedError
var ErrExhausted = errors.New("retry attempts exhausted")

// ExhaustedError is returned when every attempt failed with a retryable error
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Do calls fn up to limit times with no delay between attempts. fn receives
// the 1-based attempt number. Errors for which retryable returns false stop
// the loop and are returned unchanged.
func Do[T any](ctx context.Context, limit int, retryable func(error) bool, fn func(attempt int) (T, error)) (T, error) {
	if limit < 1 {
		limit = 1
	}

	attempt := 0
	exhausting := false
	op := func() (T, error) {
		attempt++
		v, err := fn(attempt)
		if err == nil {
			return v, nil
		}
		if retryable != nil && !retryable(err) {
			exhausting = false
			return v, backoff.Permanent(err)
		}
		exhausting = true
		return v, err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(limit-1)), ctx)
	v, err := backoff.RetryWithData(op, policy)
	if err == nil {
		return v, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return v, err
	}
	if exhausting && attempt >= limit {
		var zero T
		return zero, &ExhaustedError{Attempts: attempt, Last: err}
	}
	return v, err
}

// Always treats every error as retryable.
func Always(error) bool { return true }

// On returns a predicate that retries only errors matching one of targets.
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
