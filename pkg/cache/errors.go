package cache

import (
	"context"
	"errors"
	"time"
)

// Errors shared by the remote clients that sit behind a cache.
var (
	ErrNotFound = errors.New("not found")
	ErrNetwork  = errors.New("network error")
)

// maxRetryDelay caps the doubling delay between attempts.
const maxRetryDelay = 30 * time.Second

// retryable marks an error as transient.
type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

// Retryable marks err as transient so that [Retry] tries again. It returns
// nil for a nil error.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryable{err: err}
}

// IsRetryable reports whether err, or anything it wraps, was marked with
// [Retryable].
func IsRetryable(err error) bool {
	var r retryable
	return errors.As(err, &r)
}

// Retry calls fn until it succeeds, returns an error not marked with
// [Retryable], or has been called attempts times. The wait starts at delay
// and doubles up to a 30s cap. A context that ends while waiting returns
// ctx.Err().
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for n := 1; ; n++ {
		if err = fn(); err == nil || !IsRetryable(err) || n >= attempts {
			return err
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay = min(2*delay, maxRetryDelay)
	}
}
