// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

// Package postgres provides PostgreSQL implementations of the auth
// repositories, attempt store, audit writer, and transactor.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultQueryTimeout bounds every repository call.
const DefaultQueryTimeout = 5 * time.Second

// Pool is the subset of *pgxpool.Pool the repositories use.
// pgxmock.PgxPoolIface satisfies it.
type Pool interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// querier abstracts query execution for both a pool and a pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// Option configures a repository.
type Option func(*db)

// WithQueryTimeout overrides DefaultQueryTimeout. Non-positive values are ignored.
func WithQueryTimeout(d time.Duration) Option {
	return func(b *db) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// db is embedded by every repository.
type db struct {
	pool    Pool
	timeout time.Duration
}

func newDB(pool Pool, opts []Option) db {
	b := db{pool: pool, timeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// conn returns the transaction stored in ctx by Transactor, or the pool.
func (b db) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return b.pool
}

// begin applies the query timeout and picks the connection.
func (b db) begin(ctx context.Context) (context.Context, context.CancelFunc, querier) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	return ctx, cancel, b.conn(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
