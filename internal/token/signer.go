// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

// Package token issues and verifies stateless session tokens (HS256 JWTs).
package token

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Error codes.
const (
	CodeExpired = "TOKEN_EXPIRED"
	CodeInvalid = "TOKEN_INVALID"
	CodeConfig  = "CONFIG_ERROR"
)

// Signer defaults.
const (
	DefaultSessionTTL = 4 * time.Hour
	MinSecretBytes    = 32
	DefaultIssuer     = "festreg"
)

// Claims is the payload of a session token.
type Claims struct {
	AccountID  int64  `json:"account_id"`
	Role       string `json:"role"`
	Kind       string `json:"kind"`
	Identifier string `json:"identifier"`
	CollegeID  *int64 `json:"college_id,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and verifies session tokens with a process-wide secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// WithIssuer sets the iss claim written and required.
func WithIssuer(issuer string) Option {
	return func(s *Signer) { s.issuer = issuer }
}

// NewSigner creates a Signer. A missing or short secret is a configuration
// error; callers treat it as fatal at startup.
func NewSigner(secret []byte, ttl time.Duration, opts ...Option) (*Signer, error) {
	if len(secret) == 0 {
		return nil, oops.Code(CodeConfig).Errorf("token signing secret is not set")
	}
	if len(secret) < MinSecretBytes {
		return nil, oops.Code(CodeConfig).
			With("min_bytes", MinSecretBytes).
			Errorf("token signing secret must be at least %d bytes", MinSecretBytes)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	s := &Signer{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the session lifetime.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Issue signs claims, stamping issue time, expiry, and a unique token id.
// It returns the signed token and its expiry.
func (s *Signer) Issue(claims Claims) (string, time.Time, error) {
	if claims.AccountID == 0 || claims.Role == "" {
		return "", time.Time{}, oops.Code(CodeInvalid).Errorf("claims must carry account id and role")
	}

	now := s.now().Truncate(time.Second)
	expiresAt := now.Add(s.ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   strconv.FormatInt(claims.AccountID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        ulid.Make().String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, expiresAt, nil
}

// Verify parses raw and returns its claims. Expired tokens fail with
// CodeExpired; anything else that does not verify fails with CodeInvalid.
func (s *Signer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code(CodeExpired).Wrap(err)
		}
		return nil, oops.Code(CodeInvalid).Wrap(err)
	}
	if claims.Subject != strconv.FormatInt(claims.AccountID, 10) {
		return nil, oops.Code(CodeInvalid).Errorf("subject does not match account id")
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
