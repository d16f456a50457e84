// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package auth

import (
	"context"
	"log/slog"
	"time"
)

// ResetNotifier delivers a raw reset token to the account holder.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, account *Account, rawToken string, expiresAt time.Time) error
}

// LogNotifier records that a reset was issued without delivering it. It never
// writes the token itself.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// NotifyPasswordReset logs the issuance.
func (n *LogNotifier) NotifyPasswordReset(ctx context.Context, account *Account, _ string, expiresAt time.Time) error {
	n.logger.InfoContext(ctx, "password reset issued",
		"account_id", account.ID,
		"kind", account.Kind,
		"expires_at", expiresAt)
	return nil
}

var _ ResetNotifier = (*LogNotifier)(nil)
