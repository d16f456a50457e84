// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package postgres

import (
	"context"

	"github.com/samber/oops"

	"github.com/vtufest/festreg/internal/auth"
)

// AuditWriter implements auth.AuditWriter using PostgreSQL.
type AuditWriter struct {
	db
}

// NewAuditWriter creates a new AuditWriter.
func NewAuditWriter(pool Pool, opts ...Option) *AuditWriter {
	return &AuditWriter{db: newDB(pool, opts)}
}

// Write appends entry to audit_logs.
func (w *AuditWriter) Write(ctx context.Context, entry auth.AuditEntry) error {
	ctx, cancel, q := w.begin(ctx)
	defer cancel()

	_, err := q.Exec(ctx, `
		INSERT INTO audit_logs (
			id, actor_account_id, actor_role, action, entity_type,
			entity_id, description, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		entry.ID.String(),
		entry.ActorAccountID,
		nullString(string(entry.ActorRole)),
		string(entry.Action),
		entry.EntityType,
		nullString(entry.EntityID),
		entry.Description,
		nullString(entry.RequestID),
		entry.CreatedAt,
	)
	if err != nil {
		return oops.Code("AUDIT_WRITE_FAILED").
			With("action", entry.Action).
			Wrap(err)
	}
	return nil
}

var _ auth.AuditWriter = (*AuditWriter)(nil)
