// Package taskpoll drives vendor task status checks on a fixed schedule.
package taskpoll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrTimeout is returned when the attempt budget runs out before the task finishes.
var ErrTimeout = errors.New("task polling timed out")

var errPending = errors.New("task pending")

const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 120
)

// Status is one observation of a vendor task.
type Status struct {
	Done bool
	// URL is the media location once Done. Some vendors serve content
	// from a separate endpoint and leave it empty.
	URL string
	// Err marks a terminal failure reported by the vendor.
	Err error
	// State is the raw vendor status, kept for logs.
	State string
}

// CheckFunc queries the vendor once. attempt starts at 1.
type CheckFunc func(ctx context.Context, attempt int) (Status, error)

// Options controls the schedule.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	// OnAttempt is called after every check.
	OnAttempt func(attempt int, st Status, err error)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks a check error as retryable within the attempt budget,
// e.g. a 5xx or a dropped connection on the status endpoint.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Poll calls check until it reports Done, a terminal error, or the budget
// of MaxAttempts checks is spent. Checks are spaced by Interval.
func Poll(ctx context.Context, opts Options, check CheckFunc) (Status, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	var (
		final   Status
		attempt int
		lastErr error
	)
	backoff := retry.WithMaxRetries(uint64(opts.MaxAttempts-1), retry.NewConstant(opts.Interval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		st, err := check(ctx, attempt)
		if opts.OnAttempt != nil {
			opts.OnAttempt(attempt, st, err)
		}
		if err != nil {
			if IsTransient(err) {
				lastErr = err
				return retry.RetryableError(err)
			}
			return err
		}
		if st.Err != nil {
			return st.Err
		}
		if st.Done {
			final = st
			return nil
		}
		lastErr = nil
		return retry.RetryableError(errPending)
	})
	if err == nil {
		return final, nil
	}
	if errors.Is(err, errPending) {
		return Status{}, fmt.Errorf("%w after %d attempts", ErrTimeout, attempt)
	}
	if lastErr != nil && errors.Is(err, lastErr) {
		return Status{}, fmt.Errorf("%w after %d attempts: %w", ErrTimeout, attempt, lastErr)
	}
	return Status{}, err
}
