// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RegisterRequest describes a new account.
//
// Students supply their USN as Identifier and must name a college. Staff are
// identified by Email; Identifier is ignored for them. A staff request with
// an empty Password is provisioned with the default password (or a fixed
// default digest) and must change it at first login.
type RegisterRequest struct {
	Kind       AccountKind
	Name       string
	Identifier string
	Email      string
	Phone      string
	CollegeID  *int64
	Role       Role
	Password   string
}

// RegistrationService creates accounts.
type RegistrationService struct {
	accounts AccountRepository
	colleges CollegeRepository
	hasher   PasswordHasher
	tx       Transactor
	audit    AuditWriter
	opts     options
}

// NewRegistrationService creates a new RegistrationService.
func NewRegistrationService(
	accounts AccountRepository,
	colleges CollegeRepository,
	hasher PasswordHasher,
	tx Transactor,
	audit AuditWriter,
	opts ...Option,
) (*RegistrationService, error) {
	if accounts == nil {
		return nil, oops.Errorf("account repository is required")
	}
	if colleges == nil {
		return nil, oops.Errorf("college repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if audit == nil {
		return nil, oops.Errorf("audit writer is required")
	}
	return &RegistrationService{
		accounts: accounts,
		colleges: colleges,
		hasher:   hasher,
		tx:       tx,
		audit:    audit,
		opts:     buildOptions(opts),
	}, nil
}

// Register validates req and creates the account in one transaction.
// Failures carry CodeValidation, CodeInvalidTenant, CodeDuplicateAccount, or
// CodeInternal.
func (s *RegistrationService) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	ctx, span := s.opts.tracer.Start(ctx, spanRegister,
		trace.WithAttributes(attribute.String("account.kind", string(req.Kind))))
	account, err := s.register(ctx, req)
	if account != nil {
		span.SetAttributes(attribute.Int64("account.id", account.ID))
	}
	endSpan(span, err)
	s.opts.metrics.RegistrationOutcome(registrationOutcome(err))
	return account, err
}

func (s *RegistrationService) register(ctx context.Context, req RegisterRequest) (*Account, error) {
	account, err := s.buildAccount(req)
	if err != nil {
		return nil, err
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if account.CollegeID != nil {
			if err := s.checkCollege(ctx, *account.CollegeID); err != nil {
				return err
			}
		}

		taken, err := s.accounts.Exists(ctx, account.Kind, account.Identifier, account.Email, account.Phone)
		if err != nil {
			return oops.Code(CodeInternal).
				With("operation", "check account uniqueness").
				Wrap(err)
		}
		if taken {
			return duplicateAccountError()
		}

		if account.PasswordHash == "" {
			secret := req.Password
			if secret == "" {
				secret = s.opts.defaultPassword
			}
			digest, err := s.hasher.Hash(secret)
			if err != nil {
				return err
			}
			account.PasswordHash = digest
		}

		now := s.opts.now()
		account.CreatedAt = now
		account.UpdatedAt = now
		if err := s.accounts.Create(ctx, account); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return duplicateAccountError()
			}
			return oops.Code(CodeInternal).
				With("operation", "create account").
				Wrap(err)
		}

		action := AuditRegisterStudent
		if account.Kind == KindStaff {
			action = AuditCreateStaff
		}
		entry := newAuditEntry(ctx, now, account, action, string(account.Kind)+" account created")
		if err := s.audit.Write(ctx, entry); err != nil {
			return oops.Code(CodeInternal).
				With("operation", "write audit entry").
				Wrap(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.opts.logger.InfoContext(ctx, "account registered",
		"account_id", account.ID,
		"kind", account.Kind,
		"role", account.Role)
	return account, nil
}

// buildAccount validates req without touching storage.
func (s *RegistrationService) buildAccount(req RegisterRequest) (*Account, error) {
	account := &Account{
		Kind:   req.Kind,
		Name:   strings.TrimSpace(req.Name),
		Email:  strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:  strings.TrimSpace(req.Phone),
		Active: true,
	}

	if !account.Kind.Valid() {
		return nil, validationError("kind", "account kind must be student or staff")
	}
	if account.Name == "" {
		return nil, validationError("name", "name is required")
	}
	if err := ValidateEmail(account.Email); err != nil {
		return nil, err
	}
	if err := ValidatePhone(account.Phone); err != nil {
		return nil, err
	}

	switch account.Kind {
	case KindStudent:
		account.Role = RoleStudent
		account.Identifier = NormalizeIdentifier(KindStudent, req.Identifier)
		if account.Identifier == "" {
			return nil, validationError("identifier", "USN is required")
		}
		if KindForIdentifier(account.Identifier) != KindStudent {
			return nil, validationError("identifier", "USN must not contain @")
		}
	case KindStaff:
		if !req.Role.IsStaff() {
			return nil, validationError("role", "role is not a staff role")
		}
		account.Role = req.Role
		account.Identifier = account.Email
	}

	if account.Role.HasTenant() {
		if req.CollegeID == nil || *req.CollegeID <= 0 {
			return nil, validationError("college_id", "college is required")
		}
		id := *req.CollegeID
		account.CollegeID = &id
	}

	switch {
	case req.Password != "":
		if minLength := s.hasher.MinLength(); len([]rune(req.Password)) < minLength {
			return nil, validationError("password", fmt.Sprintf("password must be at least %d characters", minLength))
		}
	case account.Kind == KindStaff && s.opts.defaultPasswordHash != "":
		account.PasswordHash = s.opts.defaultPasswordHash
		account.ForcePasswordReset = true
	case account.Kind == KindStaff && s.opts.defaultPassword != "":
		// Hashed in the transaction like a chosen password.
		account.ForcePasswordReset = true
	default:
		return nil, validationError("password", "password is required")
	}

	return account, nil
}

func (s *RegistrationService) checkCollege(ctx context.Context, id int64) error {
	college, err := s.colleges.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return oops.Code(CodeInvalidTenant).
			With("college_id", id).
			Errorf("college does not exist")
	}
	if err != nil {
		return oops.Code(CodeInternal).
			With("operation", "get college").
			With("college_id", id).
			Wrap(err)
	}
	if !college.Active {
		return oops.Code(CodeInvalidTenant).
			With("college_id", id).
			Errorf("college is not active")
	}
	return nil
}

func validationError(field, msg string) error {
	return oops.Code(CodeValidation).With("field", field).Errorf("%s", msg)
}

func duplicateAccountError() error {
	return oops.Code(CodeDuplicateAccount).Errorf("an account with these details already exists")
}

func registrationOutcome(err error) string {
	if err == nil {
		return outcomeSuccess
	}
	switch code := PublicCode(err); code {
	case CodeInternal:
		return outcomeError
	default:
		return strings.ToLower(code)
	}
}
