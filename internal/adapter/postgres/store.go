package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grcplatform/grc/internal/modelhook"
	"github.com/grcplatform/grc/internal/port/database"
)

var _ database.Store = (*Store)(nil)

// dbtx is satisfied by both the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool  *pgxpool.Pool
	hooks *modelhook.Chain
}

// NewStore creates a new Store backed by the given connection pool. hooks run
// before every insert of a tenant-bound model.
func NewStore(pool *pgxpool.Pool, hooks *modelhook.Chain) *Store {
	return &Store{pool: pool, hooks: hooks}
}

// db returns the transaction bound to ctx, or the pool.
func (s *Store) db(ctx context.Context) dbtx {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// InTx runs fn inside one transaction. Nested calls join the outer one.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// queryAll runs a built query and scans every row.
func queryAll[T any](ctx context.Context, db dbtx, q *Query, scan func(scannable) (T, error)) ([]T, error) {
	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.table, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.table, err)
	}
	return orEmpty(out), nil
}

// queryOne runs a built query expected to return a single row.
func queryOne[T any](ctx context.Context, db dbtx, q *Query, scan func(scannable) (T, error)) (T, error) {
	var zero T
	sql, args, err := q.Build(ctx)
	if err != nil {
		return zero, err
	}
	return scan(db.QueryRow(ctx, sql, args...))
}
