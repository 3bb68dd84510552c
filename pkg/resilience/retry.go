// Package resilience bounds remote calls in time and retries them with capped,
// jittered exponential backoff.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy configures Call and WithRetry.
type Policy struct {
	// Name labels timeout errors and attempt callbacks.
	Name string
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter is the fractional spread applied to each delay (0.2 = ±20%).
	Jitter float64
	// Timeout bounds each individual attempt in Call. Zero disables it.
	Timeout time.Duration

	Retryable func(error) bool
	Sleep     func(ctx context.Context, d time.Duration) error
	OnAttempt func(attempt int, err error)
	Rand      func() float64
}

// DefaultPolicy mirrors the call budget used across the data layer:
// three retries, 1s base delay doubling to a 5s cap, ±20% jitter and a 10s
// per-attempt timeout.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   5 * time.Second,
		Jitter:     0.2,
		Timeout:    10 * time.Second,
	}
}

// Named returns a copy of p labelled with name.
func (p Policy) Named(name string) Policy {
	p.Name = name
	return p
}

// Backoff returns the jittered delay to wait after the given zero-based attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := p.BaseDelay * time.Duration(1<<attempt)
	if p.MaxDelay > 0 && (delay > p.MaxDelay || delay <= 0) {
		delay = p.MaxDelay
	}
	if p.Jitter <= 0 || delay <= 0 {
		return delay
	}
	rnd := p.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	spread := (rnd()*2 - 1) * p.Jitter
	return time.Duration(float64(delay) * (1 + spread))
}

// WithRetry invokes op and retries retryable failures up to p.MaxRetries more
// times. The last error is returned unchanged once attempts are exhausted.
func WithRetry[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		val, err := op(ctx)
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, err)
		}
		if err == nil {
			return val, nil
		}
		if attempt >= maxRetries || !retryable(err) || ctx.Err() != nil {
			return zero, Unmark(err)
		}
		if serr := sleep(ctx, p.Backoff(attempt)); serr != nil {
			return zero, errors.Join(Unmark(err), serr)
		}
	}
}

// WithTimeout runs op and fails with a *TimeoutError if it has not settled
// within d. The context handed to op is cancelled when the window closes; a
// result that arrives later is discarded. If ctx itself ends first, ctx.Err()
// is returned marked Permanent.
func WithTimeout[T any](ctx context.Context, name string, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return op(ctx)
	}
	var zero T
	child, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := op(child)
		done <- result{val: val, err: err}
	}()

	timedOut := func() (T, error) {
		if err := ctx.Err(); err != nil {
			return zero, Permanent(err)
		}
		return zero, &TimeoutError{Op: name, Timeout: d}
	}

	select {
	case res := <-done:
		if res.err != nil && child.Err() != nil && errors.Is(res.err, child.Err()) {
			return timedOut()
		}
		return res.val, res.err
	case <-child.Done():
		return timedOut()
	}
}

// Call composes WithRetry around WithTimeout so every attempt gets a fresh
// timeout window.
func Call[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	return WithRetry(ctx, p, func(ctx context.Context) (T, error) {
		return WithTimeout(ctx, p.Name, p.Timeout, op)
	})
}

// Do is Call for operations without a result value.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := Call(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
