// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/vtufest/festreg/internal/auth"
)

// AttemptStore implements auth.AttemptStore using PostgreSQL.
type AttemptStore struct {
	db
}

// NewAttemptStore creates a new AttemptStore.
func NewAttemptStore(pool Pool, opts ...Option) *AttemptStore {
	return &AttemptStore{db: newDB(pool, opts)}
}

// Get retrieves the counter for identifier.
func (s *AttemptStore) Get(ctx context.Context, identifier string) (*auth.LoginAttempt, error) {
	ctx, cancel, q := s.begin(ctx)
	defer cancel()

	row := q.QueryRow(ctx, `
		SELECT identifier, attempt_count, last_attempt_at, locked_until
		FROM login_attempts
		WHERE identifier = $1
	`, identifier)

	attempt, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ATTEMPTS_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ATTEMPTS_GET_FAILED").
			With("operation", "get login attempts").
			Wrap(err)
	}
	return attempt, nil
}

// RecordFailure increments the counter in one statement so concurrent
// failures never lose an update.
func (s *AttemptStore) RecordFailure(ctx context.Context, identifier string, policy auth.RateLimitPolicy, now time.Time) (*auth.LoginAttempt, error) {
	ctx, cancel, q := s.begin(ctx)
	defer cancel()

	row := q.QueryRow(ctx, `
		INSERT INTO login_attempts AS la (identifier, attempt_count, last_attempt_at, locked_until)
		VALUES ($1, 1, $2, CASE WHEN 1 >= $3::int THEN $4::timestamptz END)
		ON CONFLICT (identifier) DO UPDATE
		SET attempt_count   = la.attempt_count + 1,
		    last_attempt_at = EXCLUDED.last_attempt_at,
		    locked_until    = CASE WHEN la.attempt_count + 1 >= $3::int THEN $4::timestamptz END
		RETURNING identifier, attempt_count, last_attempt_at, locked_until
	`, identifier, now, policy.MaxAttempts, now.Add(policy.Cooldown))

	attempt, err := scanAttempt(row)
	if err != nil {
		return nil, oops.Code("ATTEMPTS_RECORD_FAILED").
			With("operation", "record login failure").
			Wrap(err)
	}
	return attempt, nil
}

// Reset deletes the counter for identifier.
func (s *AttemptStore) Reset(ctx context.Context, identifier string) error {
	ctx, cancel, q := s.begin(ctx)
	defer cancel()

	if _, err := q.Exec(ctx, `DELETE FROM login_attempts WHERE identifier = $1`, identifier); err != nil {
		return oops.Code("ATTEMPTS_RESET_FAILED").Wrap(err)
	}
	return nil
}

func scanAttempt(row pgx.Row) (*auth.LoginAttempt, error) {
	var a auth.LoginAttempt
	if err := row.Scan(&a.Identifier, &a.Count, &a.LastAttemptAt, &a.LockedUntil); err != nil {
		return nil, err
	}
	return &a, nil
}

var _ auth.AttemptStore = (*AttemptStore)(nil)
