package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func testPolicy(maxRetries int) Policy {
	p := DefaultPolicy()
	p.MaxRetries = maxRetries
	p.Sleep = noSleep
	return p
}

func TestWithRetryAlwaysFailingInvokesNPlusOneTimes(t *testing.T) {
	for n := 0; n <= 5; n++ {
		var calls int
		boom := errors.New("boom")
		_, err := WithRetry(context.Background(), testPolicy(n), func(context.Context) (int, error) {
			calls++
			return 0, boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, n+1, calls, "maxRetries=%d", n)
	}
}

func TestWithRetrySucceedsOnAttemptK(t *testing.T) {
	const n = 4
	for k := 1; k <= n+1; k++ {
		var calls int
		val, err := WithRetry(context.Background(), testPolicy(n), func(context.Context) (string, error) {
			calls++
			if calls < k {
				return "", errors.New("transient")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", val)
		assert.Equal(t, k, calls)
	}
}

func TestWithRetryFailsFastOnPermanent(t *testing.T) {
	var calls int
	cause := errors.New("constraint violated")
	_, err := WithRetry(context.Background(), testPolicy(3), func(context.Context) (int, error) {
		calls++
		return 0, Permanent(cause)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Same(t, cause, err)
}

type classified struct{ retry bool }

func (c classified) Error() string   { return "classified" }
func (c classified) Retryable() bool { return c.retry }

func TestWithRetryHonoursClassifier(t *testing.T) {
	var calls int
	_, err := WithRetry(context.Background(), testPolicy(3), func(context.Context) (int, error) {
		calls++
		return 0, classified{retry: false}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	_, _ = WithRetry(context.Background(), testPolicy(2), func(context.Context) (int, error) {
		calls++
		return 0, classified{retry: true}
	})
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultPolicy()
	p.MaxRetries = 5
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	var calls int
	_, err := WithRetry(ctx, p, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffIsCappedAndJittered(t *testing.T) {
	p := DefaultPolicy()
	p.Jitter = 0
	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 5*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(40))

	p.Jitter = 0.2
	p.Rand = func() float64 { return 0 }
	assert.Equal(t, 800*time.Millisecond, p.Backoff(0))
	p.Rand = func() float64 { return 1 }
	assert.Equal(t, 1200*time.Millisecond, p.Backoff(0))

	p.Rand = nil
	for i := 0; i < 100; i++ {
		d := p.Backoff(3)
		assert.GreaterOrEqual(t, d, 4*time.Second)
		assert.LessOrEqual(t, d, 6*time.Second)
	}
}

func TestWithTimeoutRejectsEvenIfOperationSettlesLater(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	_, err := WithTimeout(context.Background(), "slow", 10*time.Millisecond, func(context.Context) (int, error) {
		defer close(finished)
		<-release
		return 42, nil
	})
	close(release)
	<-finished

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "slow", te.Op)
	assert.Equal(t, 10*time.Millisecond, te.Timeout)
	assert.True(t, IsTimeout(err))
}

func TestWithTimeoutCancelsOperationContext(t *testing.T) {
	cancelled := make(chan struct{})
	_, err := WithTimeout(context.Background(), "op", 5*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	})
	require.True(t, IsTimeout(err))
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("operation context was not cancelled")
	}
}

func TestWithTimeoutPassesThroughResultAndError(t *testing.T) {
	val, err := WithTimeout(context.Background(), "fast", time.Second, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, val)

	boom := errors.New("backend says no")
	_, err = WithTimeout(context.Background(), "fast", time.Second, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.Same(t, boom, err)
}

func TestCallGivesEachAttemptFreshTimeout(t *testing.T) {
	p := testPolicy(2)
	p.Timeout = 20 * time.Millisecond
	var calls atomic.Int32
	val, err := Call(context.Background(), p, func(ctx context.Context) (int, error) {
		if calls.Add(1) < 3 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 99, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 99, val)
	assert.EqualValues(t, 3, calls.Load())
}

func TestCallDoesNotRetryAfterCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	err := Do(ctx, testPolicy(3), func(ctx context.Context) error {
		calls.Add(1)
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.False(t, IsTimeout(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, context.Canceled.Error(), err.Error())
	assert.LessOrEqual(t, calls.Load(), int32(1))
}

func TestWithTimeoutReportsCallerContextError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, err := WithTimeout(ctx, "clinics.get", time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.Error(t, err)
	assert.False(t, IsTimeout(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, context.DeadlineExceeded.Error(), err.Error())
	assert.False(t, DefaultRetryable(err))
}
