package store

import (
	"context"
	"time"

	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/pkg/logging"
	"github.com/wolfman30/clinicops/pkg/resilience"
)

// Runner applies the call policy (per-attempt timeout, error-kind aware retry)
// to data-access operations and records their outcome.
type Runner struct {
	policy  resilience.Policy
	metrics *metrics.ClinicMetrics
	logger  *logging.Logger
}

// NewRunner creates a runner. A nil runner is valid and runs each operation
// once with classification only.
func NewRunner(policy resilience.Policy, m *metrics.ClinicMetrics, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{policy: policy, metrics: m, logger: logger}
}

// Call runs fn under the runner's policy, classifying every failure.
func Call[T any](ctx context.Context, r *Runner, op string, fn func(context.Context) (T, error)) (T, error) {
	classified := func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		return v, Classify(op, err)
	}
	if r == nil {
		v, err := classified(ctx)
		return v, resilience.Unmark(err)
	}

	p := r.policy.Named(op)
	p.OnAttempt = func(attempt int, err error) {
		r.metrics.ObserveAttempt(op, outcome(err))
		if err != nil {
			r.logger.Debug("store call attempt failed", "op", op, "attempt", attempt+1, "error", err)
		}
	}
	start := time.Now()
	v, err := resilience.Call(ctx, p, classified)
	r.metrics.ObserveCallDuration(op, time.Since(start).Seconds())
	return v, err
}

// Exec is Call for operations without a result.
func Exec(ctx context.Context, r *Runner, op string, fn func(context.Context) error) error {
	_, err := Call(ctx, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case resilience.IsTimeout(err):
		return "timeout"
	case IsNotConfigured(err):
		return "not_configured"
	}
	if k := kindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

// ListOrEmpty implements the degrade-to-empty policy for list reads: a failed
// read is logged and reported as an empty, non-nil slice.
func ListOrEmpty[T any](logger *logging.Logger, op string, items []T, err error, attrs ...any) []T {
	if err != nil {
		if logger == nil {
			logger = logging.Default()
		}
		logger.Error("list read failed, returning empty result", append([]any{"op", op, "error", err}, attrs...)...)
		return []T{}
	}
	if items == nil {
		return []T{}
	}
	return items
}
