// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vtufest/festreg/internal/token"
	"github.com/vtufest/festreg/pkg/errutil"
)

// SessionIssuer signs session tokens.
type SessionIssuer interface {
	Issue(claims token.Claims) (string, time.Time, error)
}

// LoginStatus distinguishes a completed login from one that must first
// change its password.
type LoginStatus string

// Login statuses.
const (
	LoginOK         LoginStatus = "OK"
	LoginForceReset LoginStatus = "FORCE_RESET"
)

const invalidLoginText = "invalid identifier or password"

// Login outcomes reported to metrics.
const (
	outcomeSuccess     = "success"
	outcomeForceReset  = "force_reset"
	outcomeInvalid     = "invalid_credentials"
	outcomeDisabled    = "account_disabled"
	outcomeRateLimited = "rate_limited"
	outcomeValidation  = "validation_error"
	outcomeError       = "error"
)

// LoginRequest carries login credentials.
type LoginRequest struct {
	Identifier string
	Secret     string
}

// LoginResult is the outcome of a successful Login call.
// For LoginOK, Token holds the session token. For LoginForceReset, ResetToken
// holds a raw reset token and no session is issued. ExpiresAt applies to
// whichever token was returned.
type LoginResult struct {
	Status     LoginStatus
	Token      string
	ResetToken string
	ExpiresAt  time.Time
	Account    *Account
}

// Service provides login.
type Service struct {
	accounts AccountRepository
	hasher   PasswordHasher
	limiter  *RateLimiter
	resets   *ResetTokenManager
	sessions SessionIssuer
	opts     options
}

// NewAuthService creates a new Service.
func NewAuthService(
	accounts AccountRepository,
	hasher PasswordHasher,
	limiter *RateLimiter,
	resets *ResetTokenManager,
	sessions SessionIssuer,
	opts ...Option,
) (*Service, error) {
	if accounts == nil {
		return nil, oops.Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if limiter == nil {
		return nil, oops.Errorf("rate limiter is required")
	}
	if resets == nil {
		return nil, oops.Errorf("reset token manager is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session issuer is required")
	}
	return &Service{
		accounts: accounts,
		hasher:   hasher,
		limiter:  limiter,
		resets:   resets,
		sessions: sessions,
		opts:     buildOptions(opts),
	}, nil
}

// dummyPasswordHash is verified against when the account does not exist so
// the missing-account path does the same bcrypt work as a wrong password.
// It is not a credential; no input matches it.
//
//nolint:gosec // G101: intentionally fake hash for timing equalisation
const dummyPasswordHash = "$2a$12$C6UzMDM.H6dfI/f/IKxGhuAe3mZ5JxPt2Y3oUvGcB9ZdH1Bq1ZMy6"

// Login authenticates identifier and secret.
//
// A locked identifier is refused before any account lookup. Unknown
// identifiers and wrong passwords produce the same CodeInvalidCredentials
// error and both count toward the lockout; disabled accounts do not.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	ctx, span := s.opts.tracer.Start(ctx, spanLogin)
	result, err := s.login(ctx, req)
	if result != nil {
		span.SetAttributes(
			attribute.String("auth.login_status", string(result.Status)),
			attribute.Int64("account.id", result.Account.ID),
		)
	}
	endSpan(span, err)
	s.opts.metrics.LoginOutcome(loginOutcome(result, err))
	return result, err
}

func (s *Service) login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	raw := strings.TrimSpace(req.Identifier)
	if raw == "" || req.Secret == "" {
		return nil, oops.Code(CodeValidation).Errorf("identifier and password are required")
	}
	kind := KindForIdentifier(raw)
	identifier := NormalizeIdentifier(kind, raw)

	if err := s.limiter.Check(ctx, identifier); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByIdentifier(ctx, kind, identifier)
	if errors.Is(err, ErrNotFound) {
		//nolint:errcheck // result is irrelevant; the call only spends time
		s.hasher.Verify(req.Secret, dummyPasswordHash)
		return nil, s.rejectCredentials(ctx, identifier)
	}
	if err != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "get account by identifier").
			Wrap(err)
	}

	if !account.Active {
		return nil, oops.Code(CodeAccountDisabled).
			With("account_id", account.ID).
			Errorf("account is disabled")
	}

	ok, err := s.hasher.Verify(req.Secret, account.PasswordHash)
	if err != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "verify password").
			With("account_id", account.ID).
			Wrap(err)
	}
	if !ok {
		return nil, s.rejectCredentials(ctx, identifier)
	}

	if s.requiresForcedReset(account, req.Secret) {
		resetToken, expiresAt, err := s.resets.Issue(ctx, account.ID, PurposeForcedReset)
		if err != nil {
			return nil, oops.Code(CodeInternal).
				With("operation", "issue forced reset token").
				With("account_id", account.ID).
				Wrap(err)
		}
		return &LoginResult{
			Status:     LoginForceReset,
			ResetToken: resetToken,
			ExpiresAt:  expiresAt,
			Account:    account,
		}, nil
	}

	if err := s.limiter.RecordSuccess(ctx, identifier); err != nil {
		return nil, err
	}

	claims := token.Claims{
		AccountID:  account.ID,
		Role:       string(account.Role),
		Kind:       string(account.Kind),
		Identifier: account.Identifier,
	}
	if account.Role.HasTenant() {
		claims.CollegeID = account.CollegeID
	}
	sessionToken, expiresAt, err := s.sessions.Issue(claims)
	if err != nil {
		return nil, oops.Code(CodeInternal).
			With("operation", "issue session token").
			With("account_id", account.ID).
			Wrap(err)
	}

	s.afterLogin(ctx, account, req.Secret)

	return &LoginResult{
		Status:    LoginOK,
		Token:     sessionToken,
		ExpiresAt: expiresAt,
		Account:   account,
	}, nil
}

// rejectCredentials counts a failed attempt and returns the shared
// invalid-credentials error. A failure to count is an internal error.
func (s *Service) rejectCredentials(ctx context.Context, identifier string) error {
	if err := s.limiter.RecordFailure(ctx, identifier); err != nil {
		return err
	}
	return oops.Code(CodeInvalidCredentials).Errorf(invalidLoginText)
}

// requiresForcedReset reports whether a flagged staff account still holds the
// placeholder credential. secret has already been verified against the
// stored digest, so a secret equal to the default password means the digest
// is the placeholder even though each process salts it differently.
func (s *Service) requiresForcedReset(account *Account, secret string) bool {
	if account.Kind != KindStaff || !account.ForcePasswordReset {
		return false
	}
	if s.opts.defaultPassword != "" &&
		subtle.ConstantTimeCompare([]byte(secret), []byte(s.opts.defaultPassword)) == 1 {
		return true
	}
	return s.opts.defaultPasswordHash != "" &&
		subtle.ConstantTimeCompare([]byte(account.PasswordHash), []byte(s.opts.defaultPasswordHash)) == 1
}

// afterLogin performs best-effort bookkeeping that must not fail the login.
func (s *Service) afterLogin(ctx context.Context, account *Account, secret string) {
	if err := s.accounts.TouchLastLogin(ctx, account.ID, s.opts.now()); err != nil {
		s.opts.logger.WarnContext(ctx, "failed to update last login",
			append(errutil.Attrs(err), "account_id", account.ID)...)
	}

	if !s.hasher.NeedsUpgrade(account.PasswordHash) {
		return
	}
	upgraded, err := s.hasher.Hash(secret)
	if err != nil {
		// Legacy passwords may be shorter than the current minimum.
		return
	}
	if err := s.accounts.RehashPassword(ctx, account.ID, upgraded); err != nil {
		s.opts.logger.WarnContext(ctx, "failed to upgrade password hash",
			append(errutil.Attrs(err), "account_id", account.ID)...)
	}
}

func loginOutcome(result *LoginResult, err error) string {
	if err == nil {
		if result != nil && result.Status == LoginForceReset {
			return outcomeForceReset
		}
		return outcomeSuccess
	}
	switch PublicCode(err) {
	case CodeInvalidCredentials:
		return outcomeInvalid
	case CodeAccountDisabled:
		return outcomeDisabled
	case CodeRateLimited:
		return outcomeRateLimited
	case CodeValidation:
		return outcomeValidation
	default:
		return outcomeError
	}
}
