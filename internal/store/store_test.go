package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/pkg/logging"
	"github.com/wolfman30/clinicops/pkg/resilience"
)

func fastPolicy(retries int) resilience.Policy {
	p := resilience.DefaultPolicy()
	p.MaxRetries = retries
	p.Timeout = time.Second
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestOpenWithoutURLReturnsUnconfigured(t *testing.T) {
	db, closeFn, err := Open(context.Background(), Options{})
	require.NoError(t, err)
	defer closeFn()

	_, err = db.Exec(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = db.Query(context.Background(), "SELECT 1")
	assert.True(t, IsNotConfigured(err))

	var n int
	err = db.QueryRow(context.Background(), "SELECT 1").Scan(&n)
	assert.True(t, IsNotConfigured(err))

	_, err = db.Begin(context.Background())
	assert.True(t, IsNotConfigured(err))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		kind  Kind
		retry bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, KindConstraint, false},
		{"insufficient privilege", &pgconn.PgError{Code: "42501"}, KindPermission, false},
		{"invalid input", &pgconn.PgError{Code: "22P02"}, KindInvalid, false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, KindTransient, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, KindTransient, true},
		{"no rows", pgx.ErrNoRows, KindNotFound, false},
		{"network", errors.New("connection reset by peer"), KindUnknown, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Classify("op", tc.err)
			var be *BackendError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tc.kind, be.Kind)
			assert.Equal(t, tc.retry, be.Retryable())
			assert.ErrorIs(t, err, tc.err)
		})
	}

	assert.Nil(t, Classify("op", nil))
	assert.Same(t, ErrNotConfigured, Classify("op", ErrNotConfigured))
	assert.ErrorIs(t, Classify("op", context.Canceled), context.Canceled)
}

func TestCallFailsFastOnConstraintViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO patients").WithArgs(1).WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	reg := prometheus.NewRegistry()
	r := NewRunner(fastPolicy(3), metrics.NewClinicMetrics(reg), logging.Discard())
	err = Exec(context.Background(), r, "patients.create", func(ctx context.Context) error {
		_, err := mock.Exec(ctx, "INSERT INTO patients VALUES ($1)", 1)
		return err
	})
	require.True(t, IsConstraint(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCallRetriesTransientFailures(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT COUNT").WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("connection reset"))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(12))

	r := NewRunner(fastPolicy(3), nil, logging.Discard())
	n, err := Call(context.Background(), r, "patients.count", func(ctx context.Context) (int, error) {
		var n int
		err := mock.QueryRow(ctx, "SELECT COUNT(*) FROM patients").Scan(&n)
		return n, err
	})
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCallNilRunnerRunsOnce(t *testing.T) {
	var calls int
	_, err := Call(context.Background(), nil, "op", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	})
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, KindUnknown, be.Kind)
	assert.Equal(t, 1, calls)
}

func TestListOrEmpty(t *testing.T) {
	got := ListOrEmpty(logging.Discard(), "op", []int{1, 2}, errors.New("down"))
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got = ListOrEmpty[int](logging.Discard(), "op", nil, nil)
	assert.NotNil(t, got)

	assert.Equal(t, []int{3}, ListOrEmpty(logging.Discard(), "op", []int{3}, nil))
}
