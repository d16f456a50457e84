// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package auth

import (
	"errors"

	"github.com/vtufest/festreg/pkg/errutil"
)

// Error codes returned to callers. The HTTP boundary maps each to a status.
const (
	CodeValidation            = "VALIDATION_ERROR"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeAccountDisabled       = "ACCOUNT_DISABLED"
	CodeRateLimited           = "RATE_LIMITED"
	CodeInvalidTenant         = "INVALID_TENANT"
	CodeDuplicateAccount      = "DUPLICATE_ACCOUNT"
	CodeInvalidOrExpiredToken = "INVALID_OR_EXPIRED_TOKEN"
	CodeConfig                = "CONFIG_ERROR"
	CodeInternal              = "INTERNAL_ERROR"
)

// Reset-token and hashing codes. These stay inside the service layer and are
// collapsed before reaching a caller.
const (
	CodeNoActiveToken   = "NO_ACTIVE_TOKEN"
	CodeTokenExpired    = "TOKEN_EXPIRED"
	CodeTokenMismatch   = "TOKEN_MISMATCH"
	CodeMalformedDigest = "MALFORMED_DIGEST"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by repositories when a unique key is already taken.
var ErrDuplicate = errors.New("duplicate")

var publicCodes = map[string]bool{
	CodeValidation:            true,
	CodeInvalidCredentials:    true,
	CodeAccountDisabled:       true,
	CodeRateLimited:           true,
	CodeInvalidTenant:         true,
	CodeDuplicateAccount:      true,
	CodeInvalidOrExpiredToken: true,
	CodeConfig:                true,
	CodeInternal:              true,
}

// PublicCode returns the caller-facing code for err. Anything that is not a
// deliberately constructed business failure is reported as CodeInternal.
func PublicCode(err error) string {
	if err == nil {
		return ""
	}
	code := errutil.Code(err)
	if publicCodes[code] && code != CodeConfig {
		return code
	}
	return CodeInternal
}

// IsBusinessError reports whether err is an expected outcome rather than a fault.
func IsBusinessError(err error) bool {
	code := PublicCode(err)
	return code != "" && code != CodeInternal
}
