// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vtufest/festreg/internal/logging"
)

// AuditAction names an audited state change.
type AuditAction string

// Audited actions.
const (
	AuditRegisterStudent AuditAction = "REGISTER_STUDENT"
	AuditCreateStaff     AuditAction = "CREATE_STAFF"
	AuditPasswordReset   AuditAction = "PASSWORD_RESET"
)

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	ID             ulid.ULID
	ActorAccountID *int64
	ActorRole      Role
	Action         AuditAction
	EntityType     string
	EntityID       string
	Description    string
	RequestID      string
	CreatedAt      time.Time
}

// AuditWriter appends audit entries. Writes made with a transactional ctx
// commit or roll back with that transaction.
type AuditWriter interface {
	Write(ctx context.Context, entry AuditEntry) error
}

func newAuditEntry(ctx context.Context, now time.Time, actor *Account, action AuditAction, description string) AuditEntry {
	entry := AuditEntry{
		ID:          ulid.Make(),
		Action:      action,
		EntityType:  "account",
		Description: description,
		RequestID:   logging.RequestID(ctx),
		CreatedAt:   now,
	}
	if actor != nil {
		id := actor.ID
		entry.ActorAccountID = &id
		entry.ActorRole = actor.Role
		entry.EntityID = formatID(actor.ID)
	}
	return entry
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
