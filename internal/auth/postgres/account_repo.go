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

const accountColumns = `id, kind, identifier, name, email, phone, password_hash, active,
	role, college_id, force_password_reset, last_login_at, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool Pool, opts ...Option) *AccountRepository {
	return &AccountRepository{db: newDB(pool, opts)}
}

// GetByIdentifier retrieves an account by its normalised identifier.
func (r *AccountRepository) GetByIdentifier(ctx context.Context, kind auth.AccountKind, identifier string) (*auth.Account, error) {
	ctx, cancel, q := r.begin(ctx)
	defer cancel()

	row := q.QueryRow(ctx, `SELECT `+accountColumns+`
		FROM accounts
		WHERE kind = $1 AND identifier = $2`, string(kind), identifier)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("kind", kind).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by identifier").
			Wrap(err)
	}
	return account, nil
}

// GetByID retrieves an account by id.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*auth.Account, error) {
	ctx, cancel, q := r.begin(ctx)
	defer cancel()

	row := q.QueryRow(ctx, `SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1`, id)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("account_id", id).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by id").
			With("account_id", id).
			Wrap(err)
	}
	return account, nil
}

// Create inserts account and sets its ID.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	ctx, cancel, q := r.begin(ctx)
	defer cancel()

	err := q.QueryRow(ctx, `
		INSERT INTO accounts (
			kind, identifier, name, email, phone, password_hash, active,
			role, college_id, force_password_reset, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`,
		string(account.Kind),
		account.Identifier,
		account.Name,
		account.Email,
		nullString(account.Phone),
		account.PasswordHash,
		account.Active,
		string(account.Role),
		account.CollegeID,
		account.ForcePasswordReset,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID)
	if isUniqueViolation(err) {
		return oops.Code("ACCOUNT_DUPLICATE").
			With("kind", account.Kind).
			Wrap(auth.ErrDuplicate)
	}
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			Wrap(err)
	}
	return nil
}

// Exists reports whether any account already holds the identifier, email,
// or phone.
func (r *AccountRepository) Exists(ctx context.Context, kind auth.AccountKind, identifier, email, phone string) (bool, error) {
	ctx, cancel, q := r.begin(ctx)
	defer cancel()

	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM accounts
			WHERE (kind = $1 AND identifier = $2)
			   OR email = $3
			   OR ($4 <> '' AND phone = $4)
		)
	`, string(kind), identifier, email, phone).Scan(&exists)
	if err != nil {
		return false, oops.Code("ACCOUNT_EXISTS_FAILED").
			With("operation", "check account uniqueness").
			Wrap(err)
	}
	return exists, nil
}

// UpdatePassword stores a new digest and clears the forced-reset flag.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.update(ctx, "update password", `
		UPDATE accounts
		SET password_hash = $2, force_password_reset = FALSE, updated_at = now()
		WHERE id = $1
	`, id, passwordHash)
}

// RehashPassword replaces the digest for the same password.
func (r *AccountRepository) RehashPassword(ctx context.Context, id int64, passwordHash string) error {
	return r.update(ctx, "rehash password", `
		UPDATE accounts
		SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, id, passwordHash)
}

// TouchLastLogin records a successful login.
func (r *AccountRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.update(ctx, "touch last login", `
		UPDATE accounts SET last_login_at = $2 WHERE id = $1
	`, id, at)
}

func (r *AccountRepository) update(ctx context.Context, operation, sql string, id int64, arg any) error {
	ctx, cancel, q := r.begin(ctx)
	defer cancel()

	tag, err := q.Exec(ctx, sql, id, arg)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", operation).
			With("account_id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("account_id", id).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		a     auth.Account
		kind  string
		role  string
		phone *string
	)
	err := row.Scan(
		&a.ID, &kind, &a.Identifier, &a.Name, &a.Email, &phone, &a.PasswordHash, &a.Active,
		&role, &a.CollegeID, &a.ForcePasswordReset, &a.LastLoginAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Kind = auth.AccountKind(kind)
	a.Role = auth.Role(role)
	a.Phone = derefString(phone)
	return &a, nil
}

// CollegeRepository implements auth.CollegeRepository using PostgreSQL.
type CollegeRepository struct {
	db
}

// NewCollegeRepository creates a new CollegeRepository.
func NewCollegeRepository(pool Pool, opts ...Option) *CollegeRepository {
	return &CollegeRepository{db: newDB(pool, opts)}
}

// Get retrieves a college by id.
func (r *CollegeRepository) Get(ctx context.Context, id int64) (*auth.College, error) {
	ctx, cancel, q := r.begin(ctx)
	defer cancel()

	var c auth.College
	err := q.QueryRow(ctx, `SELECT id, code, name, active FROM colleges WHERE id = $1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("COLLEGE_NOT_FOUND").
			With("college_id", id).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("COLLEGE_GET_FAILED").
			With("college_id", id).
			Wrap(err)
	}
	return &c, nil
}

// Upsert inserts or updates a college keyed by code and sets its ID.
func (r *CollegeRepository) Upsert(ctx context.Context, college *auth.College) error {
	ctx, cancel, q := r.begin(ctx)
	defer cancel()

	err := q.QueryRow(ctx, `
		INSERT INTO colleges (code, name, active)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name, active = EXCLUDED.active, updated_at = now()
		RETURNING id
	`, college.Code, college.Name, college.Active).Scan(&college.ID)
	if err != nil {
		return oops.Code("COLLEGE_UPSERT_FAILED").
			With("code", college.Code).
			Wrap(err)
	}
	return nil
}

var (
	_ auth.AccountRepository = (*AccountRepository)(nil)
	_ auth.CollegeRepository = (*CollegeRepository)(nil)
)
