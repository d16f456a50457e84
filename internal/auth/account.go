// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/samber/oops"
)

// AccountKind distinguishes the two account populations.
type AccountKind string

// Account kinds.
const (
	KindStudent AccountKind = "student"
	KindStaff   AccountKind = "staff"
)

// Valid reports whether k is a known kind.
func (k AccountKind) Valid() bool {
	return k == KindStudent || k == KindStaff
}

// Role is a staff or student role.
type Role string

// Roles recognised by the registration desk.
const (
	RoleAdmin                 Role = "ADMIN"
	RoleSubAdmin              Role = "SUB_ADMIN"
	RolePrincipal             Role = "PRINCIPAL"
	RoleTeamManager           Role = "TEAM_MANAGER"
	RoleVolunteerRegistration Role = "VOLUNTEER_REGISTRATION"
	RoleVolunteerHelpdesk     Role = "VOLUNTEER_HELPDESK"
	RoleVolunteerEvent        Role = "VOLUNTEER_EVENT"
	RoleStudent               Role = "STUDENT"
)

var staffRoles = map[Role]bool{
	RoleAdmin:                 true,
	RoleSubAdmin:              true,
	RolePrincipal:             true,
	RoleTeamManager:           true,
	RoleVolunteerRegistration: true,
	RoleVolunteerHelpdesk:     true,
	RoleVolunteerEvent:        true,
}

// IsStaff reports whether r is one of the staff roles.
func (r Role) IsStaff() bool {
	return staffRoles[r]
}

// HasTenant reports whether accounts with this role belong to a college.
func (r Role) HasTenant() bool {
	return r == RolePrincipal || r == RoleTeamManager || r == RoleStudent
}

// Account is a student or staff login.
type Account struct {
	ID                 int64
	Kind               AccountKind
	Identifier         string // USN for students, email for staff
	Name               string
	Email              string
	Phone              string
	PasswordHash       string
	Active             bool
	Role               Role
	CollegeID          *int64
	ForcePasswordReset bool
	LastLoginAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// College is the tenant a student or college-bound staff member belongs to.
type College struct {
	ID     int64
	Code   string
	Name   string
	Active bool
}

// KindForIdentifier infers the account population from a login identifier.
// Staff sign in with an email address; students sign in with their USN.
func KindForIdentifier(identifier string) AccountKind {
	if strings.Contains(identifier, "@") {
		return KindStaff
	}
	return KindStudent
}

// NormalizeIdentifier canonicalises identifier for storage and lookup.
// USNs are case-insensitive and stored upper-case; emails are stored lower-case.
func NormalizeIdentifier(kind AccountKind, identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if kind == KindStaff {
		return strings.ToLower(identifier)
	}
	return strings.ToUpper(identifier)
}

// phoneRegex accepts an optional leading + followed by 10 to 15 digits.
var phoneRegex = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// ValidatePhone checks a contact number.
func ValidatePhone(phone string) error {
	if !phoneRegex.MatchString(phone) {
		return oops.Code(CodeValidation).
			With("field", "phone").
			Errorf("phone must be 10 to 15 digits")
	}
	return nil
}

// ValidateEmail performs a shallow shape check on an email address.
func ValidateEmail(email string) error {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return oops.Code(CodeValidation).
			With("field", "email").
			Errorf("email is not valid")
	}
	return nil
}

// AccountRepository persists accounts.
type AccountRepository interface {
	// GetByIdentifier returns ErrNotFound when no account matches.
	GetByIdentifier(ctx context.Context, kind AccountKind, identifier string) (*Account, error)
	GetByID(ctx context.Context, id int64) (*Account, error)

	// Create inserts account and sets account.ID. It returns ErrDuplicate on
	// a unique-key collision.
	Create(ctx context.Context, account *Account) error

	// Exists reports whether any account already uses the identifier (within
	// kind), the email, or the phone number.
	Exists(ctx context.Context, kind AccountKind, identifier, email, phone string) (bool, error)

	// UpdatePassword stores a new hash and clears the forced-reset flag.
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error

	// RehashPassword replaces the stored hash without touching any flags.
	RehashPassword(ctx context.Context, id int64, passwordHash string) error

	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// CollegeRepository reads and seeds colleges.
type CollegeRepository interface {
	// Get returns ErrNotFound when the college does not exist.
	Get(ctx context.Context, id int64) (*College, error)

	// Upsert inserts or updates a college by code and sets college.ID.
	Upsert(ctx context.Context, college *College) error
}
