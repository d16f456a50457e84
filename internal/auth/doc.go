// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

// Package auth implements the credential lifecycle for festival registration:
// password hashing, login with lockout, single-use reset tokens, and account
// registration.
//
// # Services
//
//   - Service - login, including the forced-reset branch for provisioned staff
//   - RegistrationService - transactional account creation
//   - PasswordResetService - forgot-password and reset-password
//
// Supporting types:
//   - RateLimiter - per-identifier failure counting over an AttemptStore
//   - ResetTokenManager - issue, validate, and consume reset tokens
//   - BcryptHasher - PasswordHasher for passwords and raw reset tokens
//
// Every service error carries an oops code. Business outcomes use the Code*
// constants in errors.go; anything else is an internal fault and PublicCode
// reports it as CodeInternal.
package auth
