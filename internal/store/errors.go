package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/clinicops/pkg/resilience"
)

// ConfigurationError is returned by every call when no backing store is configured.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "store: not configured: " + e.Reason
}

func (e *ConfigurationError) Retryable() bool { return false }

// ErrNotConfigured is the error surfaced by the Unconfigured client.
var ErrNotConfigured = &ConfigurationError{Reason: "DATABASE_URL is not set"}

// Kind narrows a BackendError for retry decisions and HTTP mapping.
type Kind string

const (
	KindConstraint Kind = "constraint"
	KindNotFound   Kind = "not_found"
	KindPermission Kind = "permission"
	KindInvalid    Kind = "invalid"
	KindTransient  Kind = "transient"
	KindUnknown    Kind = "unknown"
)

// BackendError wraps an error payload returned by the backing store.
type BackendError struct {
	Op   string
	Kind Kind
	Code string
	Err  error
}

func (e *BackendError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("store: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("store: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could plausibly succeed.
func (e *BackendError) Retryable() bool {
	switch e.Kind {
	case KindTransient, KindUnknown:
		return true
	default:
		return false
	}
}

// Classify maps a raw pgx error into the store taxonomy. Errors that are
// already classified, and caller cancellations, pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	var ce *ConfigurationError
	if errors.As(err, &be) || errors.As(err, &ce) || resilience.IsTimeout(err) || resilience.IsPermanent(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &BackendError{Op: op, Kind: KindNotFound, Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &BackendError{Op: op, Kind: kindForCode(pgErr.Code), Code: pgErr.Code, Err: err}
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return &BackendError{Op: op, Kind: KindTransient, Err: err}
	}
	return &BackendError{Op: op, Kind: KindUnknown, Err: err}
}

func kindForCode(code string) Kind {
	switch {
	case code == "42501" || strings.HasPrefix(code, "28"):
		return KindPermission
	case strings.HasPrefix(code, "23"):
		return KindConstraint
	case strings.HasPrefix(code, "22"), strings.HasPrefix(code, "42"):
		return KindInvalid
	case strings.HasPrefix(code, "40"), strings.HasPrefix(code, "53"),
		strings.HasPrefix(code, "57"), strings.HasPrefix(code, "08"):
		return KindTransient
	default:
		return KindUnknown
	}
}

// IsNotFound reports whether err is a not-found backend error.
func IsNotFound(err error) bool {
	return kindOf(err) == KindNotFound || errors.Is(err, pgx.ErrNoRows)
}

// IsConstraint reports whether err is a constraint violation.
func IsConstraint(err error) bool {
	return kindOf(err) == KindConstraint
}

// IsNotConfigured reports whether err came from the Unconfigured client.
func IsNotConfigured(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func kindOf(err error) Kind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// Decode marks a row that was read but could not be mapped onto its Go type.
// Such failures are deterministic and never retried.
func Decode(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Kind: KindInvalid, Err: err}
}
