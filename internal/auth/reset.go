// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes       = 32 // 32 bytes = 64 hex chars
	DefaultResetTokenTTL  = 15 * time.Minute
	DefaultResetRetention = 24 * time.Hour
)

// ResetPurpose records why a reset token was issued.
type ResetPurpose string

// Reset purposes.
const (
	PurposeForgotPassword ResetPurpose = "FORGOT_PASSWORD"
	PurposeForcedReset    ResetPurpose = "FORCED_RESET"
)

// ResetToken is a stored, hashed password-reset token.
type ResetToken struct {
	ID        ulid.ULID
	AccountID int64
	Purpose   ResetPurpose
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsExpiredAt returns true if the token has expired at t.
func (r *ResetToken) IsExpiredAt(t time.Time) bool {
	return t.After(r.ExpiresAt)
}

// GenerateResetToken returns a random 256-bit token, hex encoded.
func GenerateResetToken() (string, error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	return hex.EncodeToString(tokenBytes), nil
}

// ResetTokenRepository manages reset token persistence.
type ResetTokenRepository interface {
	// Create stores a new token. At most one unconsumed token may exist per
	// account; callers mark prior tokens used first.
	Create(ctx context.Context, token *ResetToken) error

	// GetActive returns the unconsumed token for an account, expired or not,
	// or ErrNotFound.
	GetActive(ctx context.Context, accountID int64) (*ResetToken, error)

	// LockAccount serializes token issuance for one account until the
	// surrounding transaction ends.
	LockAccount(ctx context.Context, accountID int64) error

	// MarkUsed stamps every unconsumed token for the account and returns how
	// many were affected. Zero is not an error.
	MarkUsed(ctx context.Context, accountID int64, at time.Time) (int64, error)

	// PurgeBefore deletes tokens that were consumed or expired before cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ResetTokenManager issues, validates, and consumes single-use reset tokens.
// Raw tokens are hashed with the PasswordHasher before storage.
type ResetTokenManager struct {
	repo   ResetTokenRepository
	hasher PasswordHasher
	tx     Transactor
	ttl    time.Duration
	opts   options
}

// NewResetTokenManager creates a ResetTokenManager. A ttl of zero selects
// DefaultResetTokenTTL.
func NewResetTokenManager(
	repo ResetTokenRepository,
	hasher PasswordHasher,
	tx Transactor,
	ttl time.Duration,
	opts ...Option,
) (*ResetTokenManager, error) {
	if repo == nil {
		return nil, oops.Errorf("reset token repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if ttl < 0 {
		return nil, oops.Code(CodeConfig).With("ttl", ttl).Errorf("reset token ttl must not be negative")
	}
	if ttl == 0 {
		ttl = DefaultResetTokenTTL
	}
	return &ResetTokenManager{
		repo:   repo,
		hasher: hasher,
		tx:     tx,
		ttl:    ttl,
		opts:   buildOptions(opts),
	}, nil
}

// TTL returns how long issued tokens stay valid.
func (m *ResetTokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue replaces any outstanding token for the account with a fresh one and
// returns the raw token with its expiry. Only the hash is persisted.
func (m *ResetTokenManager) Issue(ctx context.Context, accountID int64, purpose ResetPurpose) (string, time.Time, error) {
	raw, err := GenerateResetToken()
	if err != nil {
		return "", time.Time{}, err
	}

	digest, err := m.hasher.Hash(raw)
	if err != nil {
		return "", time.Time{}, oops.Code("RESET_TOKEN_HASH_FAILED").
			With("account_id", accountID).
			Wrap(err)
	}

	now := m.opts.now()
	token := &ResetToken{
		ID:        ulid.Make(),
		AccountID: accountID,
		Purpose:   purpose,
		TokenHash: digest,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}

	err = m.tx.InTransaction(ctx, func(ctx context.Context) error {
		// Without the lock two issuers both see no live token and the second
		// insert trips the one-unconsumed-token index.
		if err := m.repo.LockAccount(ctx, accountID); err != nil {
			return oops.With("operation", "lock account for reset").Wrap(err)
		}
		if _, err := m.repo.MarkUsed(ctx, accountID, now); err != nil {
			return oops.With("operation", "invalidate previous reset tokens").Wrap(err)
		}
		if err := m.repo.Create(ctx, token); err != nil {
			return oops.With("operation", "create reset token").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return "", time.Time{}, oops.Code("RESET_TOKEN_ISSUE_FAILED").
			With("account_id", accountID).
			Wrap(err)
	}

	return raw, token.ExpiresAt, nil
}

// Validate checks raw against the account's outstanding token without
// consuming it. Failures carry CodeNoActiveToken, CodeTokenExpired, or
// CodeTokenMismatch; storage faults carry CodeInternal.
func (m *ResetTokenManager) Validate(ctx context.Context, accountID int64, raw string) error {
	stored, err := m.repo.GetActive(ctx, accountID)
	if errors.Is(err, ErrNotFound) {
		return oops.Code(CodeNoActiveToken).
			With("account_id", accountID).
			Errorf("no active reset token")
	}
	if err != nil {
		return oops.Code(CodeInternal).
			With("operation", "get active reset token").
			With("account_id", accountID).
			Wrap(err)
	}

	if stored.IsExpiredAt(m.opts.now()) {
		return oops.Code(CodeTokenExpired).
			With("account_id", accountID).
			With("expired_at", stored.ExpiresAt).
			Errorf("reset token has expired")
	}

	ok, err := m.hasher.Verify(raw, stored.TokenHash)
	if err != nil {
		return oops.Code(CodeInternal).
			With("operation", "verify reset token").
			With("account_id", accountID).
			Wrap(err)
	}
	if !ok {
		return oops.Code(CodeTokenMismatch).
			With("account_id", accountID).
			Errorf("reset token does not match")
	}
	return nil
}

// Consume marks the account's outstanding token used. It is idempotent, and
// must run in the same transaction as the password change it authorises.
func (m *ResetTokenManager) Consume(ctx context.Context, accountID int64) error {
	if _, err := m.repo.MarkUsed(ctx, accountID, m.opts.now()); err != nil {
		return oops.Code("RESET_TOKEN_CONSUME_FAILED").
			With("account_id", accountID).
			Wrap(err)
	}
	return nil
}

// Purge deletes tokens that have been dead for longer than retention.
func (m *ResetTokenManager) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := m.repo.PurgeBefore(ctx, m.opts.now().Add(-retention))
	if err != nil {
		return 0, oops.Code("RESET_TOKEN_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}
