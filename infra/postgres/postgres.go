// Package postgres is the PostgreSQL backend of the matching engine. It
// implements store.Backend on top of a pgx connection pool and ships its
// schema as embedded migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/wavematch/core/store"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a connection pool and verifies it with a ping.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

// Backend bundles the PostgreSQL stores.
type Backend struct {
	pool *Pool
}

var _ store.Backend = (*Backend)(nil)

// Open connects to dsn and applies the migrations.
func Open(ctx context.Context, dsn string) (*Backend, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewBackend(pool), nil
}

// NewBackend uses an already migrated pool.
func NewBackend(pool *Pool) *Backend { return &Backend{pool: pool} }

func (b *Backend) Profiles() store.ProfileStore         { return &ProfileStore{pool: b.pool} }
func (b *Backend) Opportunities() store.OpportunityStore { return &OpportunityStore{pool: b.pool} }
func (b *Backend) Offers() store.OfferStore              { return &OfferStore{pool: b.pool} }

func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505"
)

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// unavailable marks an unexpected database error as retryable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", store.ErrStoreUnavailable, op, err)
}
