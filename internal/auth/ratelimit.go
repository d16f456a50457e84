// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package auth

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Rate limiting defaults.
const (
	DefaultMaxAttempts = 5
	DefaultCooldown    = 15 * time.Minute
)

// RateLimitPolicy bounds failed logins per identifier.
type RateLimitPolicy struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// DefaultRateLimitPolicy returns five attempts with a fifteen minute cooldown.
func DefaultRateLimitPolicy() RateLimitPolicy {
	return RateLimitPolicy{MaxAttempts: DefaultMaxAttempts, Cooldown: DefaultCooldown}
}

// Validate checks the policy is usable.
func (p RateLimitPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return oops.Code(CodeConfig).With("max_attempts", p.MaxAttempts).Errorf("max attempts must be positive")
	}
	if p.Cooldown <= 0 {
		return oops.Code(CodeConfig).With("cooldown", p.Cooldown).Errorf("cooldown must be positive")
	}
	return nil
}

// LoginAttempt is the failure counter for one login identifier.
type LoginAttempt struct {
	Identifier    string
	Count         int
	LastAttemptAt time.Time
	LockedUntil   *time.Time
}

// LimitState classifies an identifier's counter.
type LimitState int

// Limit states.
const (
	StateClean LimitState = iota
	StateWarned
	StateLocked
)

func (s LimitState) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateWarned:
		return "warned"
	case StateLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// LockExpiry returns when a lock on attempt lapses. Stores that do not record
// an explicit lockout time fall back to the last attempt plus the cooldown.
func (p RateLimitPolicy) LockExpiry(attempt *LoginAttempt) time.Time {
	if attempt.LockedUntil != nil {
		return *attempt.LockedUntil
	}
	return attempt.LastAttemptAt.Add(p.Cooldown)
}

// State classifies attempt at now. A counter at or past the limit whose
// cooldown has lapsed is Warned: the next attempt is allowed and another
// failure locks it again.
func (p RateLimitPolicy) State(attempt *LoginAttempt, now time.Time) LimitState {
	if attempt == nil || attempt.Count <= 0 {
		return StateClean
	}
	if attempt.Count >= p.MaxAttempts && now.Before(p.LockExpiry(attempt)) {
		return StateLocked
	}
	return StateWarned
}

// AttemptStore persists login attempt counters.
type AttemptStore interface {
	// Get returns ErrNotFound when identifier has no counter.
	Get(ctx context.Context, identifier string) (*LoginAttempt, error)

	// RecordFailure increments the counter for identifier as one atomic
	// storage operation, setting the lockout time when the new count reaches
	// policy.MaxAttempts, and returns the updated counter.
	RecordFailure(ctx context.Context, identifier string, policy RateLimitPolicy, now time.Time) (*LoginAttempt, error)

	// Reset clears the counter. Resetting a missing counter is not an error.
	Reset(ctx context.Context, identifier string) error
}

// RateLimiter enforces temporary lockout after repeated failed logins.
type RateLimiter struct {
	store  AttemptStore
	policy RateLimitPolicy
	opts   options
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(store AttemptStore, policy RateLimitPolicy, opts ...Option) (*RateLimiter, error) {
	if store == nil {
		return nil, oops.Errorf("attempt store is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &RateLimiter{store: store, policy: policy, opts: buildOptions(opts)}, nil
}

// Policy returns the configured policy.
func (l *RateLimiter) Policy() RateLimitPolicy {
	return l.policy
}

// Check fails with CodeRateLimited while identifier is locked. The error
// carries the minutes until the lock lapses but never the attempts left.
func (l *RateLimiter) Check(ctx context.Context, identifier string) error {
	attempt, err := l.store.Get(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return oops.Code(CodeInternal).
			With("operation", "get login attempts").
			Wrap(err)
	}

	now := l.opts.now()
	if l.policy.State(attempt, now) != StateLocked {
		return nil
	}

	remaining := l.policy.LockExpiry(attempt).Sub(now)
	minutes := int(math.Ceil(remaining.Minutes()))
	trace.SpanFromContext(ctx).AddEvent(eventLockedOut, trace.WithAttributes(
		attribute.Int("auth.attempts", attempt.Count),
		attribute.Int64("auth.retry_after_ms", remaining.Milliseconds()),
	))
	return oops.Code(CodeRateLimited).
		With("retry_after_minutes", minutes).
		With("retry_after_seconds", int(math.Ceil(remaining.Seconds()))).
		Errorf("too many failed attempts, try again in %d minutes", minutes)
}

// RecordFailure counts one failed attempt for identifier.
func (l *RateLimiter) RecordFailure(ctx context.Context, identifier string) error {
	attempt, err := l.store.RecordFailure(ctx, identifier, l.policy, l.opts.now())
	if err != nil {
		return oops.Code(CodeInternal).
			With("operation", "record login failure").
			Wrap(err)
	}
	if attempt != nil && attempt.Count >= l.policy.MaxAttempts {
		trace.SpanFromContext(ctx).AddEvent(eventLockoutBegins, trace.WithAttributes(
			attribute.Int("auth.attempts", attempt.Count),
			attribute.String("auth.locked_until", l.policy.LockExpiry(attempt).Format(time.RFC3339)),
		))
		l.opts.logger.InfoContext(ctx, "login identifier locked",
			"attempts", attempt.Count,
			"locked_until", l.policy.LockExpiry(attempt))
	}
	return nil
}

// RecordSuccess returns identifier to the clean state.
func (l *RateLimiter) RecordSuccess(ctx context.Context, identifier string) error {
	if err := l.store.Reset(ctx, identifier); err != nil {
		return oops.Code(CodeInternal).
			With("operation", "reset login attempts").
			Wrap(err)
	}
	return nil
}

// RetryAfter extracts the lockout remainder from a CodeRateLimited error.
func RetryAfter(err error) (time.Duration, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return 0, false
	}
	seconds, ok := oopsErr.Context()["retry_after_seconds"].(int)
	if !ok {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
