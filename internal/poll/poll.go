// Package poll waits for a condition on a page with a bounded number of checks.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

var errPending = errors.New("condition not met")

// Options bounds a poll. Total wait is roughly Attempts*Interval.
type Options struct {
	Attempts uint
	Interval time.Duration
	// WaitFirst sleeps one interval before the first check
	WaitFirst bool
}

// Check reports whether the condition holds. A non-nil error aborts the poll
// and is returned as is.
type Check func(ctx context.Context) (bool, error)

// Until runs check until it reports true, returns an error, or the attempts
// run out. It returns false with a nil error on exhaustion and ctx.Err() when
// the context ends first.
func Until(ctx context.Context, opts Options, check Check) (bool, error) {
	attempts := opts.Attempts
	if attempts == 0 {
		attempts = 1
	}

	if opts.WaitFirst {
		if err := Sleep(ctx, opts.Interval); err != nil {
			return false, err
		}
	}

	var abort error
	err := retry.Do(
		func() error {
			ok, err := check(ctx)
			if err != nil {
				abort = err
				return retry.Unrecoverable(err)
			}
			if !ok {
				return errPending
			}
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(opts.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
	)
	switch {
	case err == nil:
		return true, nil
	case abort != nil:
		return false, abort
	case ctx.Err() != nil:
		return false, ctx.Err()
	default:
		return false, nil
	}
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
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
