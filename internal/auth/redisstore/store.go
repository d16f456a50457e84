// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

// Package redisstore keeps login attempt counters in Redis. It is an
// alternative to the PostgreSQL attempt store for deployments that run
// several API replicas against a shared Redis.
package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/vtufest/festreg/internal/auth"
)

// Defaults.
const (
	DefaultPrefix    = "festreg:attempts"
	DefaultRetention = 24 * time.Hour
)

// recordFailureScript increments the counter and stamps the lockout in one
// round trip. Redis runs scripts atomically, so concurrent failures for the
// same identifier never lose an update.
//
// KEYS[1] counter hash
// ARGV[1] now (unix ms), ARGV[2] max attempts, ARGV[3] lock expiry (unix ms), ARGV[4] ttl ms
var recordFailureScript = redis.NewScript(`
local max_attempts = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[4])

local count = redis.call("HINCRBY", KEYS[1], "count", 1)
local locked = "0"
if count >= max_attempts then
  locked = ARGV[3]
end
redis.call("HSET", KEYS[1], "last_ms", ARGV[1], "locked_ms", locked)
redis.call("PEXPIRE", KEYS[1], ttl_ms)
return {count, tonumber(locked)}
`)

// Store implements auth.AttemptStore on Redis hashes. Counters expire after
// the retention window once failures stop arriving.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRetention sets how long an idle counter survives. It is never shorter
// than the policy cooldown.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

// New creates a Store.
func New(client redis.UniversalClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, oops.Code(auth.CodeConfig).Errorf("redis client is required")
	}
	s := &Store{client: client, prefix: DefaultPrefix, retention: DefaultRetention}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) key(identifier string) string {
	return s.prefix + ":" + identifier
}

// Get returns the counter for identifier, or auth.ErrNotFound.
func (s *Store) Get(ctx context.Context, identifier string) (*auth.LoginAttempt, error) {
	fields, err := s.client.HGetAll(ctx, s.key(identifier)).Result()
	if err != nil {
		return nil, oops.Code("ATTEMPTS_GET_FAILED").
			With("operation", "get login attempts").
			Wrap(err)
	}
	if len(fields) == 0 {
		return nil, oops.Code("ATTEMPTS_NOT_FOUND").Wrap(auth.ErrNotFound)
	}

	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		return nil, oops.Code("ATTEMPTS_GET_FAILED").With("field", "count").Wrap(err)
	}
	lastMs, err := strconv.ParseInt(fields["last_ms"], 10, 64)
	if err != nil {
		return nil, oops.Code("ATTEMPTS_GET_FAILED").With("field", "last_ms").Wrap(err)
	}
	var lockedMs int64
	if raw, ok := fields["locked_ms"]; ok {
		if lockedMs, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, oops.Code("ATTEMPTS_GET_FAILED").With("field", "locked_ms").Wrap(err)
		}
	}
	return newAttempt(identifier, int64(count), lastMs, lockedMs), nil
}

// RecordFailure increments the counter atomically and returns it.
func (s *Store) RecordFailure(ctx context.Context, identifier string, policy auth.RateLimitPolicy, now time.Time) (*auth.LoginAttempt, error) {
	ttl := max(s.retention, policy.Cooldown)
	res, err := recordFailureScript.Run(ctx, s.client,
		[]string{s.key(identifier)},
		now.UnixMilli(), policy.MaxAttempts, now.Add(policy.Cooldown).UnixMilli(), ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, oops.Code("ATTEMPTS_RECORD_FAILED").
			With("operation", "record login failure").
			Wrap(err)
	}
	if len(res) != 2 {
		return nil, oops.Code("ATTEMPTS_RECORD_FAILED").
			With("result_len", len(res)).
			Errorf("unexpected script result")
	}
	return newAttempt(identifier, res[0], now.UnixMilli(), res[1]), nil
}

// Reset deletes the counter for identifier.
func (s *Store) Reset(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, s.key(identifier)).Err(); err != nil {
		return oops.Code("ATTEMPTS_RESET_FAILED").Wrap(err)
	}
	return nil
}

func newAttempt(identifier string, count, lastMs, lockedMs int64) *auth.LoginAttempt {
	attempt := &auth.LoginAttempt{
		Identifier:    identifier,
		Count:         int(count),
		LastAttemptAt: time.UnixMilli(lastMs).UTC(),
	}
	if lockedMs > 0 {
		locked := time.UnixMilli(lockedMs).UTC()
		attempt.LockedUntil = &locked
	}
	return attempt
}

var _ auth.AttemptStore = (*Store)(nil)
