// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt work factor bounds accepted from configuration.
const (
	MinBcryptCost     = 10
	MaxBcryptCost     = 12
	DefaultBcryptCost = 12

	// DefaultMinSecretLength is the shortest password accepted.
	DefaultMinSecretLength = 8

	// bcrypt ignores input past this many bytes, so longer secrets are refused.
	maxSecretBytes = 72
)

// PasswordHasher provides one-way hashing of secrets.
type PasswordHasher interface {
	// Hash produces a self-describing digest of secret.
	Hash(secret string) (string, error)

	// Verify checks secret against digest.
	// Returns (true, nil) on match, (false, nil) on mismatch, or an error when
	// digest was not produced by this hasher.
	Verify(secret, digest string) (bool, error)

	// NeedsUpgrade returns true if digest was produced with different parameters.
	NeedsUpgrade(digest string) bool

	// MinLength is the shortest secret Hash accepts.
	MinLength() int
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	cost      int
	minLength int
}

// NewBcryptHasher creates a BcryptHasher. cost must be within
// [MinBcryptCost, MaxBcryptCost]; minLength below 1 selects the default.
func NewBcryptHasher(cost, minLength int) (*BcryptHasher, error) {
	if cost < MinBcryptCost || cost > MaxBcryptCost {
		return nil, oops.Code(CodeConfig).
			With("cost", cost).
			Errorf("bcrypt cost must be between %d and %d", MinBcryptCost, MaxBcryptCost)
	}
	if minLength < 1 {
		minLength = DefaultMinSecretLength
	}
	return &BcryptHasher{cost: cost, minLength: minLength}, nil
}

// MinLength returns the shortest secret Hash accepts.
func (h *BcryptHasher) MinLength() int {
	return h.minLength
}

// Hash produces a bcrypt digest of secret.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", oops.Code(CodeValidation).Errorf("password cannot be empty")
	}
	if len([]rune(secret)) < h.minLength {
		return "", oops.Code(CodeValidation).
			With("min_length", h.minLength).
			Errorf("password must be at least %d characters", h.minLength)
	}
	if len(secret) > maxSecretBytes {
		return "", oops.Code(CodeValidation).
			With("max_bytes", maxSecretBytes).
			Errorf("password must be at most %d bytes", maxSecretBytes)
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", oops.Code("HASH_FAILED").Wrap(err)
	}
	return string(digest), nil
}

// Verify checks secret against a bcrypt digest.
func (h *BcryptHasher) Verify(secret, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code(CodeMalformedDigest).Wrap(err)
	}
}

// NeedsUpgrade returns true if digest is not bcrypt at the configured cost.
func (h *BcryptHasher) NeedsUpgrade(digest string) bool {
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return true
	}
	return cost != h.cost
}

var _ PasswordHasher = (*BcryptHasher)(nil)
