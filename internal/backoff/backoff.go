// Package backoff retries network calls with bounded exponential backoff.
package backoff

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"
)

const (
	DefaultBase     = 200 * time.Millisecond
	DefaultMaxDelay = 5 * time.Second
)

// Policy bounds the number of attempts and the delay between them.
type Policy struct {
	MaxRetries int
	Base       time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy returns five retries starting at 200ms, capped at 5s.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 5, Base: DefaultBase, MaxDelay: DefaultMaxDelay}
}

// Delay returns the wait before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.Base
	if base <= 0 {
		base = DefaultBase
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	// guard the shift against overflow
	if attempt > 30 {
		return maxDelay
	}
	d := base << attempt
	if d > maxDelay || d <= 0 {
		d = maxDelay
	}
	return d
}

// RetryableError marks a failure worth another attempt. After, when set,
// overrides the computed delay (e.g. from a Retry-After header).
type RetryableError struct {
	Err   error
	After time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so that Do retries it.
func Retryable(err error) error {
	return &RetryableError{Err: err}
}

// RetryableAfter wraps err with an explicit wait before the next attempt.
func RetryableAfter(err error, after time.Duration) error {
	return &RetryableError{Err: err, After: after}
}

// Do runs fn until it succeeds, returns a non-retryable error, retries are
// exhausted, or ctx is done. The last error is returned unwrapped.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var re *RetryableError
		if !errors.As(err, &re) {
			return err
		}
		last = re.Err
		if attempt == p.MaxRetries {
			break
		}
		wait := re.After
		if wait <= 0 {
			wait = p.Delay(attempt)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
	return last
}

// ShouldRetryStatus reports whether an HTTP status is transient.
func ShouldRetryStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// RetryAfter parses a Retry-After header given in seconds.
func RetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}
	secs, err := strconv.Atoi(ra)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
