package resilience

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutError reports that an operation did not settle within its window.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("operation timed out after %s", e.Timeout)
	}
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// Retryable marks timeouts as worth another attempt.
func (e *TimeoutError) Retryable() bool { return true }

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that WithRetry returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// classifier is implemented by errors that know whether a retry can help.
type classifier interface {
	Retryable() bool
}

// DefaultRetryable retries timeouts and unclassified failures, and fails fast on
// permanent errors, caller cancellation and errors that classify themselves as
// non-retryable.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	var c classifier
	if errors.As(err, &c) {
		return c.Retryable()
	}
	return true
}

// Unmark removes a top-level Permanent marker so callers see the original error.
func Unmark(err error) error {
	if pe, ok := err.(*permanentError); ok {
		return pe.err
	}
	return err
}
