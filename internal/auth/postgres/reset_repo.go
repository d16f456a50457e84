// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/vtufest/festreg/internal/auth"
)

// ResetTokenRepository implements auth.ResetTokenRepository using PostgreSQL.
type ResetTokenRepository struct {
	db
}

// NewResetTokenRepository creates a new ResetTokenRepository.
func NewResetTokenRepository(pool Pool, opts ...Option) *ResetTokenRepository {
	return &ResetTokenRepository{db: newDB(pool, opts)}
}

// Create stores a new reset token. A second unconsumed token for the same
// account violates the partial unique index and returns auth.ErrDuplicate.
func (r *ResetTokenRepository) Create(ctx context.Context, token *auth.ResetToken) error {
	ctx, cancel, q := r.begin(ctx)
	defer cancel()

	_, err := q.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, account_id, purpose, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, token.ID.String(), token.AccountID, string(token.Purpose), token.TokenHash, token.ExpiresAt, token.CreatedAt)
	if isUniqueViolation(err) {
		return oops.Code("RESET_TOKEN_DUPLICATE").
			With("account_id", token.AccountID).
			Wrap(auth.ErrDuplicate)
	}
	if err != nil {
		return oops.Code("RESET_TOKEN_CREATE_FAILED").
			With("operation", "insert reset token").
			With("account_id", token.AccountID).
			Wrap(err)
	}
	return nil
}

// GetActive returns the unconsumed token for an account.
func (r *ResetTokenRepository) GetActive(ctx context.Context, accountID int64) (*auth.ResetToken, error) {
	ctx, cancel, q := r.begin(ctx)
	defer cancel()

	row := q.QueryRow(ctx, `
		SELECT id, account_id, purpose, token_hash, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE account_id = $1 AND used_at IS NULL
	`, accountID)

	token, err := scanResetToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_TOKEN_NOT_FOUND").
			With("account_id", accountID).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_TOKEN_GET_FAILED").
			With("operation", "get active reset token").
			With("account_id", accountID).
			Wrap(err)
	}
	return token, nil
}

// LockAccount takes a row lock on the account. It only serializes callers
// when ctx carries a transaction.
func (r *ResetTokenRepository) LockAccount(ctx context.Context, accountID int64) error {
	ctx, cancel, q := r.begin(ctx)
	defer cancel()

	if _, err := q.Exec(ctx, `SELECT 1 FROM accounts WHERE id = $1 FOR UPDATE`, accountID); err != nil {
		return oops.Code("RESET_TOKEN_LOCK_FAILED").
			With("account_id", accountID).
			Wrap(err)
	}
	return nil
}

// MarkUsed stamps every unconsumed token for the account.
func (r *ResetTokenRepository) MarkUsed(ctx context.Context, accountID int64, at time.Time) (int64, error) {
	ctx, cancel, q := r.begin(ctx)
	defer cancel()

	tag, err := q.Exec(ctx, `
		UPDATE password_reset_tokens
		SET used_at = $2
		WHERE account_id = $1 AND used_at IS NULL
	`, accountID, at)
	if err != nil {
		return 0, oops.Code("RESET_TOKEN_MARK_USED_FAILED").
			With("account_id", accountID).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// PurgeBefore deletes tokens consumed or expired before cutoff.
func (r *ResetTokenRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel, q := r.begin(ctx)
	defer cancel()

	tag, err := q.Exec(ctx, `
		DELETE FROM password_reset_tokens
		WHERE expires_at < $1 OR (used_at IS NOT NULL AND used_at < $1)
	`, cutoff)
	if err != nil {
		return 0, oops.Code("RESET_TOKEN_PURGE_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanResetToken(row pgx.Row) (*auth.ResetToken, error) {
	var (
		t       auth.ResetToken
		idStr   string
		purpose string
	)
	if err := row.Scan(&idStr, &t.AccountID, &purpose, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("operation", "parse reset token id").With("id", idStr).Wrap(err)
	}
	t.ID = id
	t.Purpose = auth.ResetPurpose(purpose)
	return &t, nil
}

var _ auth.ResetTokenRepository = (*ResetTokenRepository)(nil)
