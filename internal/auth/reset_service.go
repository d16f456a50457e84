// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vtufest/festreg/pkg/errutil"
)

// PasswordResetService handles forgot-password and reset-password.
type PasswordResetService struct {
	accounts AccountRepository
	resets   *ResetTokenManager
	hasher   PasswordHasher
	tx       Transactor
	audit    AuditWriter
	notifier ResetNotifier
	opts     options
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(
	accounts AccountRepository,
	resets *ResetTokenManager,
	hasher PasswordHasher,
	tx Transactor,
	audit AuditWriter,
	notifier ResetNotifier,
	opts ...Option,
) (*PasswordResetService, error) {
	if accounts == nil {
		return nil, oops.Errorf("account repository is required")
	}
	if resets == nil {
		return nil, oops.Errorf("reset token manager is required")
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
	if notifier == nil {
		return nil, oops.Errorf("reset notifier is required")
	}
	return &PasswordResetService{
		accounts: accounts,
		resets:   resets,
		hasher:   hasher,
		tx:       tx,
		audit:    audit,
		notifier: notifier,
		opts:     buildOptions(opts),
	}, nil
}

// RequestReset issues a reset token for an active account and hands it to
// the notifier. It returns the raw token, or "" with a nil error when the
// account is unknown or disabled so callers cannot tell the cases apart.
func (s *PasswordResetService) RequestReset(ctx context.Context, identifier string) (string, error) {
	ctx, span := s.opts.tracer.Start(ctx, spanRequestReset)
	resetToken, err := s.requestReset(ctx, identifier)
	span.SetAttributes(attribute.Bool("auth.reset_issued", resetToken != ""))
	endSpan(span, err)
	return resetToken, err
}

func (s *PasswordResetService) requestReset(ctx context.Context, identifier string) (string, error) {
	raw := strings.TrimSpace(identifier)
	if raw == "" {
		return "", oops.Code(CodeValidation).Errorf("identifier is required")
	}
	kind := KindForIdentifier(raw)

	account, err := s.accounts.GetByIdentifier(ctx, kind, NormalizeIdentifier(kind, raw))
	if errors.Is(err, ErrNotFound) {
		s.opts.metrics.ResetOutcome("request", "unknown_account")
		return "", nil
	}
	if err != nil {
		s.opts.metrics.ResetOutcome("request", outcomeError)
		return "", oops.Code(CodeInternal).
			With("operation", "get account by identifier").
			Wrap(err)
	}
	if !account.Active {
		s.opts.metrics.ResetOutcome("request", "account_disabled")
		return "", nil
	}

	resetToken, expiresAt, err := s.resets.Issue(ctx, account.ID, PurposeForgotPassword)
	if err != nil {
		s.opts.metrics.ResetOutcome("request", outcomeError)
		return "", oops.Code(CodeInternal).
			With("operation", "issue reset token").
			With("account_id", account.ID).
			Wrap(err)
	}

	if err := s.notifier.NotifyPasswordReset(ctx, account, resetToken, expiresAt); err != nil {
		errutil.LogError(ctx, s.opts.logger, "failed to deliver reset token", err)
	}

	s.opts.metrics.ResetOutcome("request", "issued")
	return resetToken, nil
}

// ResetPassword sets a new password using a reset token. Every token problem
// and an unknown or disabled account collapse to CodeInvalidOrExpiredToken.
func (s *PasswordResetService) ResetPassword(ctx context.Context, identifier, resetToken, newPassword string) error {
	ctx, span := s.opts.tracer.Start(ctx, spanResetPassword)
	err := s.resetPassword(ctx, identifier, resetToken, newPassword)
	endSpan(span, err)
	outcome := outcomeSuccess
	if err != nil {
		outcome = strings.ToLower(PublicCode(err))
	}
	s.opts.metrics.ResetOutcome("complete", outcome)
	return err
}

func (s *PasswordResetService) resetPassword(ctx context.Context, identifier, resetToken, newPassword string) error {
	raw := strings.TrimSpace(identifier)
	if raw == "" || resetToken == "" || newPassword == "" {
		return oops.Code(CodeValidation).Errorf("identifier, token and new password are required")
	}
	if minLength := s.hasher.MinLength(); len([]rune(newPassword)) < minLength {
		return oops.Code(CodeValidation).
			With("field", "new_password").
			Errorf("password must be at least %d characters", minLength)
	}
	kind := KindForIdentifier(raw)

	account, err := s.accounts.GetByIdentifier(ctx, kind, NormalizeIdentifier(kind, raw))
	if errors.Is(err, ErrNotFound) {
		return invalidTokenError("ACCOUNT_NOT_FOUND")
	}
	if err != nil {
		return oops.Code(CodeInternal).
			With("operation", "get account by identifier").
			Wrap(err)
	}
	// Disabled accounts get the same answer as unknown ones.
	if !account.Active {
		return invalidTokenError("ACCOUNT_DISABLED")
	}

	if err := s.resets.Validate(ctx, account.ID, resetToken); err != nil {
		reason := errutil.Code(err)
		switch reason {
		case CodeNoActiveToken, CodeTokenExpired, CodeTokenMismatch:
			errutil.LogDebug(ctx, s.opts.logger, "reset token rejected", err)
			return invalidTokenError(reason)
		default:
			return oops.Code(CodeInternal).Wrap(err)
		}
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.accounts.UpdatePassword(ctx, account.ID, digest); err != nil {
			return oops.Code(CodeInternal).
				With("operation", "update password").
				Wrap(err)
		}
		if err := s.resets.Consume(ctx, account.ID); err != nil {
			return oops.Code(CodeInternal).
				With("operation", "consume reset token").
				Wrap(err)
		}
		entry := newAuditEntry(ctx, s.opts.now(), account, AuditPasswordReset, "password reset via reset token")
		if err := s.audit.Write(ctx, entry); err != nil {
			return oops.Code(CodeInternal).
				With("operation", "write audit entry").
				Wrap(err)
		}
		return nil
	})
	if err != nil {
		return oops.With("account_id", account.ID).Wrap(err)
	}

	if s.opts.limiter != nil {
		if err := s.opts.limiter.RecordSuccess(ctx, account.Identifier); err != nil {
			s.opts.logger.WarnContext(ctx, "failed to clear login attempts after reset",
				append(errutil.Attrs(err), "account_id", account.ID)...)
		}
	}

	s.opts.logger.InfoContext(ctx, "password reset completed", "account_id", account.ID)
	return nil
}

func invalidTokenError(reason string) error {
	return oops.Code(CodeInvalidOrExpiredToken).
		With("reason", reason).
		Errorf("reset token is invalid or has expired")
}
