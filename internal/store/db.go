// Package store owns the backing-store connection: the pgx query interface
// shared by every repository, pool construction, the unconfigured stand-in and
// the error classification applied to every call.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the pgx query surface shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB abstracts the pgx pool for testing. *pgxpool.Pool and pgxmock pools
// both satisfy it.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Options configures Open.
type Options struct {
	URL             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// Open builds the pool. An empty URL yields the Unconfigured client so that
// processes without database credentials still start and fail per call.
func Open(ctx context.Context, opts Options) (DB, func(), error) {
	if opts.URL == "" {
		return Unconfigured{}, func() {}, nil
	}
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("store: parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("store: ping: %w", err)
	}
	return pool, pool.Close, nil
}

// InTx runs fn inside a transaction, committing on success and rolling back
// on any error.
func InTx(ctx context.Context, db DB, fn func(pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Unconfigured stands in for the pool when no database URL was supplied.
// Every method fails with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, ErrNotConfigured
}

func (Unconfigured) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{err: ErrNotConfigured}
}

func (Unconfigured) Begin(context.Context) (pgx.Tx, error) {
	return nil, ErrNotConfigured
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error { return r.err }
