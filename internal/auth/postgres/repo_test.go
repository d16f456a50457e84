// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtufest/festreg/internal/auth"
	"github.com/vtufest/festreg/internal/auth/postgres"
	"github.com/vtufest/festreg/pkg/errutil"
)

var (
	accountCols = []string{
		"id", "kind", "identifier", "name", "email", "phone", "password_hash", "active",
		"role", "college_id", "force_password_reset", "last_login_at", "created_at", "updated_at",
	}
	resetCols   = []string{"id", "account_id", "purpose", "token_hash", "expires_at", "used_at", "created_at"}
	attemptCols = []string{"identifier", "attempt_count", "last_attempt_at", "locked_until"}
	fixedTime   = time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock
}

func strPtr(s string) *string { return &s }
func int64Ptr(i int64) *int64 { return &i }

func uniqueViolation() error {
	return &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_email_key"}
}

func TestAccountRepository_GetByIdentifier(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`(?s)SELECT .+ FROM accounts\s+WHERE kind = \$1 AND identifier = \$2`).
			WithArgs("student", "1VT21CS001").
			WillReturnRows(pgxmock.NewRows(accountCols).AddRow(
				int64(7), "student", "1VT21CS001", "Asha", "asha@example.com", strPtr("9876543210"), "$2a$10$hash", true,
				"STUDENT", int64Ptr(3), false, (*time.Time)(nil), fixedTime, fixedTime,
			))

		repo := postgres.NewAccountRepository(mock)
		account, err := repo.GetByIdentifier(ctx, auth.KindStudent, "1VT21CS001")
		require.NoError(t, err)
		assert.Equal(t, int64(7), account.ID)
		assert.Equal(t, auth.KindStudent, account.Kind)
		assert.Equal(t, auth.RoleStudent, account.Role)
		assert.Equal(t, "9876543210", account.Phone)
		require.NotNil(t, account.CollegeID)
		assert.Equal(t, int64(3), *account.CollegeID)
		assert.Nil(t, account.LastLoginAt)
	})

	t.Run("null phone", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`(?s)SELECT .+ FROM accounts`).
			WithArgs("staff", "admin@vtufest.in").
			WillReturnRows(pgxmock.NewRows(accountCols).AddRow(
				int64(1), "staff", "admin@vtufest.in", "Admin", "admin@vtufest.in", (*string)(nil), "$2a$10$hash", true,
				"ADMIN", (*int64)(nil), true, &fixedTime, fixedTime, fixedTime,
			))

		account, err := postgres.NewAccountRepository(mock).GetByIdentifier(ctx, auth.KindStaff, "admin@vtufest.in")
		require.NoError(t, err)
		assert.Empty(t, account.Phone)
		assert.Nil(t, account.CollegeID)
		assert.True(t, account.ForcePasswordReset)
		require.NotNil(t, account.LastLoginAt)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`(?s)SELECT .+ FROM accounts`).
			WithArgs("student", "NOPE").
			WillReturnRows(pgxmock.NewRows(accountCols))

		_, err := postgres.NewAccountRepository(mock).GetByIdentifier(ctx, auth.KindStudent, "NOPE")
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "ACCOUNT_NOT_FOUND")
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`(?s)SELECT .+ FROM accounts`).
			WithArgs("student", "X").
			WillReturnError(errors.New("connection refused"))

		_, err := postgres.NewAccountRepository(mock).GetByIdentifier(ctx, auth.KindStudent, "X")
		errutil.AssertErrorCode(t, err, "ACCOUNT_GET_FAILED")
		assert.NotErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestAccountRepository_GetByID(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(`(?s)SELECT .+ FROM accounts\s+WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnRows(pgxmock.NewRows(accountCols))

	_, err := postgres.NewAccountRepository(mock).GetByID(context.Background(), 99)
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestAccountRepository_Create(t *testing.T) {
	ctx := context.Background()
	newAccount := func() *auth.Account {
		return &auth.Account{
			Kind: auth.KindStudent, Identifier: "1VT21CS001", Name: "Asha", Email: "asha@example.com",
			Phone: "9876543210", PasswordHash: "$2a$10$hash", Active: true, Role: auth.RoleStudent,
			CollegeID: int64Ptr(3), CreatedAt: fixedTime, UpdatedAt: fixedTime,
		}
	}

	t.Run("sets id", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`INSERT INTO accounts`).
			WithArgs("student", "1VT21CS001", "Asha", "asha@example.com", pgxmock.AnyArg(), "$2a$10$hash", true,
				"STUDENT", pgxmock.AnyArg(), false, fixedTime, fixedTime).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

		account := newAccount()
		require.NoError(t, postgres.NewAccountRepository(mock).Create(ctx, account))
		assert.Equal(t, int64(42), account.ID)
	})

	t.Run("unique violation", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`INSERT INTO accounts`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(uniqueViolation())

		err := postgres.NewAccountRepository(mock).Create(ctx, newAccount())
		require.ErrorIs(t, err, auth.ErrDuplicate)
		errutil.AssertErrorCode(t, err, "ACCOUNT_DUPLICATE")
	})

	t.Run("other error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`INSERT INTO accounts`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("disk full"))

		err := postgres.NewAccountRepository(mock).Create(ctx, newAccount())
		errutil.AssertErrorCode(t, err, "ACCOUNT_CREATE_FAILED")
		assert.NotErrorIs(t, err, auth.ErrDuplicate)
	})
}

func TestAccountRepository_Exists(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("student", "1VT21CS001", "asha@example.com", "9876543210").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	taken, err := postgres.NewAccountRepository(mock).
		Exists(context.Background(), auth.KindStudent, "1VT21CS001", "asha@example.com", "9876543210")
	require.NoError(t, err)
	assert.True(t, taken)
}

func TestAccountRepository_Updates(t *testing.T) {
	ctx := context.Background()

	t.Run("update password clears flag", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE accounts\s+SET password_hash = \$2, force_password_reset = FALSE`).
			WithArgs(int64(7), "$2a$10$new").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, postgres.NewAccountRepository(mock).UpdatePassword(ctx, 7, "$2a$10$new"))
	})

	t.Run("rehash leaves flag", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE accounts\s+SET password_hash = \$2, updated_at`).
			WithArgs(int64(7), "$2a$10$new").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, postgres.NewAccountRepository(mock).RehashPassword(ctx, 7, "$2a$10$new"))
	})

	t.Run("missing account", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE accounts SET last_login_at`).
			WithArgs(int64(8), fixedTime).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := postgres.NewAccountRepository(mock).TouchLastLogin(ctx, 8, fixedTime)
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("exec error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE accounts`).
			WithArgs(int64(7), "$2a$10$new").
			WillReturnError(errors.New("deadlock detected"))

		err := postgres.NewAccountRepository(mock).UpdatePassword(ctx, 7, "$2a$10$new")
		errutil.AssertErrorCode(t, err, "ACCOUNT_UPDATE_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "update password")
	})
}

func TestCollegeRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("get", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT id, code, name, active FROM colleges WHERE id = \$1`).
			WithArgs(int64(3)).
			WillReturnRows(pgxmock.NewRows([]string{"id", "code", "name", "active"}).
				AddRow(int64(3), "1RV", "RV College of Engineering", true))

		college, err := postgres.NewCollegeRepository(mock).Get(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, "1RV", college.Code)
		assert.True(t, college.Active)
	})

	t.Run("get missing", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM colleges`).
			WithArgs(int64(4)).
			WillReturnRows(pgxmock.NewRows([]string{"id", "code", "name", "active"}))

		_, err := postgres.NewCollegeRepository(mock).Get(ctx, 4)
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("upsert", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`(?s)INSERT INTO colleges .+ ON CONFLICT \(code\) DO UPDATE`).
			WithArgs("1BM", "BMS College of Engineering", true).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(5)))

		college := &auth.College{Code: "1BM", Name: "BMS College of Engineering", Active: true}
		require.NoError(t, postgres.NewCollegeRepository(mock).Upsert(ctx, college))
		assert.Equal(t, int64(5), college.ID)
	})
}

func TestResetTokenRepository(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	t.Run("create", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`INSERT INTO password_reset_tokens`).
			WithArgs(id.String(), int64(7), "FORGOT_PASSWORD", "$2a$10$tok", fixedTime.Add(15*time.Minute), fixedTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := postgres.NewResetTokenRepository(mock).Create(ctx, &auth.ResetToken{
			ID: id, AccountID: 7, Purpose: auth.PurposeForgotPassword, TokenHash: "$2a$10$tok",
			ExpiresAt: fixedTime.Add(15 * time.Minute), CreatedAt: fixedTime,
		})
		require.NoError(t, err)
	})

	t.Run("create second active token", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`INSERT INTO password_reset_tokens`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(uniqueViolation())

		err := postgres.NewResetTokenRepository(mock).Create(ctx, &auth.ResetToken{ID: id, AccountID: 7})
		require.ErrorIs(t, err, auth.ErrDuplicate)
	})

	t.Run("get active", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM password_reset_tokens\s+WHERE account_id = \$1 AND used_at IS NULL`).
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows(resetCols).AddRow(
				id.String(), int64(7), "FORCED_RESET", "$2a$10$tok", fixedTime.Add(15*time.Minute), (*time.Time)(nil), fixedTime,
			))

		token, err := postgres.NewResetTokenRepository(mock).GetActive(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, id, token.ID)
		assert.Equal(t, auth.PurposeForcedReset, token.Purpose)
		assert.Nil(t, token.UsedAt)
	})

	t.Run("get active bad id", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM password_reset_tokens`).
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows(resetCols).AddRow(
				"not-a-ulid", int64(7), "FORCED_RESET", "$2a$10$tok", fixedTime, (*time.Time)(nil), fixedTime,
			))

		_, err := postgres.NewResetTokenRepository(mock).GetActive(ctx, 7)
		errutil.AssertErrorCode(t, err, "RESET_TOKEN_GET_FAILED")
	})

	t.Run("get active none", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM password_reset_tokens`).
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows(resetCols))

		_, err := postgres.NewResetTokenRepository(mock).GetActive(ctx, 7)
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("lock account", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`SELECT 1 FROM accounts WHERE id = \$1 FOR UPDATE`).
			WithArgs(int64(7)).
			WillReturnResult(pgxmock.NewResult("SELECT", 1))

		require.NoError(t, postgres.NewResetTokenRepository(mock).LockAccount(ctx, 7))
	})

	t.Run("lock account failure", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`FOR UPDATE`).
			WithArgs(int64(7)).
			WillReturnError(errors.New("lock timeout"))

		err := postgres.NewResetTokenRepository(mock).LockAccount(ctx, 7)
		errutil.AssertErrorCode(t, err, "RESET_TOKEN_LOCK_FAILED")
	})

	t.Run("mark used", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE password_reset_tokens\s+SET used_at = \$2`).
			WithArgs(int64(7), fixedTime).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		n, err := postgres.NewResetTokenRepository(mock).MarkUsed(ctx, 7, fixedTime)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("purge", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM password_reset_tokens`).
			WithArgs(fixedTime).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))

		n, err := postgres.NewResetTokenRepository(mock).PurgeBefore(ctx, fixedTime)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})
}

func TestAttemptStore(t *testing.T) {
	ctx := context.Background()
	policy := auth.DefaultRateLimitPolicy()

	t.Run("get missing", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM login_attempts`).
			WithArgs("1VT21CS001").
			WillReturnRows(pgxmock.NewRows(attemptCols))

		_, err := postgres.NewAttemptStore(mock).Get(ctx, "1VT21CS001")
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("record failure is one upsert", func(t *testing.T) {
		lockedUntil := fixedTime.Add(policy.Cooldown)
		mock := newMockPool(t)
		mock.ExpectQuery(`(?s)INSERT INTO login_attempts .+ ON CONFLICT \(identifier\) DO UPDATE`).
			WithArgs("1VT21CS001", fixedTime, policy.MaxAttempts, lockedUntil).
			WillReturnRows(pgxmock.NewRows(attemptCols).AddRow("1VT21CS001", 5, fixedTime, &lockedUntil))

		attempt, err := postgres.NewAttemptStore(mock).RecordFailure(ctx, "1VT21CS001", policy, fixedTime)
		require.NoError(t, err)
		assert.Equal(t, 5, attempt.Count)
		require.NotNil(t, attempt.LockedUntil)
		assert.Equal(t, lockedUntil, *attempt.LockedUntil)
		assert.Equal(t, auth.StateLocked, policy.State(attempt, fixedTime))
	})

	t.Run("record failure error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`INSERT INTO login_attempts`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("timeout"))

		_, err := postgres.NewAttemptStore(mock).RecordFailure(ctx, "X", policy, fixedTime)
		errutil.AssertErrorCode(t, err, "ATTEMPTS_RECORD_FAILED")
	})

	t.Run("reset", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM login_attempts WHERE identifier = \$1`).
			WithArgs("1VT21CS001").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		require.NoError(t, postgres.NewAttemptStore(mock).Reset(ctx, "1VT21CS001"))
	})
}

func TestAuditWriter(t *testing.T) {
	mock := newMockPool(t)
	entry := auth.AuditEntry{
		ID:          ulid.Make(),
		Action:      auth.AuditPasswordReset,
		EntityType:  "account",
		EntityID:    "7",
		Description: "password reset via reset token",
		CreatedAt:   fixedTime,
	}
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs(entry.ID.String(), pgxmock.AnyArg(), pgxmock.AnyArg(), "PASSWORD_RESET", "account",
			pgxmock.AnyArg(), "password reset via reset token", pgxmock.AnyArg(), fixedTime).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, postgres.NewAuditWriter(mock).Write(context.Background(), entry))
}
