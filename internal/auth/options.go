// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "festreg/auth"

// Transactor runs fn inside a storage transaction. Repository calls made with
// the ctx passed to fn participate in that transaction; fn returning an error
// rolls it back.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// MetricsRecorder receives outcome counts from the services.
type MetricsRecorder interface {
	LoginOutcome(outcome string)
	RegistrationOutcome(outcome string)
	ResetOutcome(stage, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) LoginOutcome(string)         {}
func (noopMetrics) RegistrationOutcome(string)  {}
func (noopMetrics) ResetOutcome(string, string) {}

type options struct {
	now                 func() time.Time
	logger              *slog.Logger
	metrics             MetricsRecorder
	tracer              trace.Tracer
	defaultPasswordHash string
	defaultPassword     string
	limiter             *RateLimiter
}

func buildOptions(opts []Option) options {
	o := options{
		now:     time.Now,
		logger:  slog.Default(),
		metrics: noopMetrics{},
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a service.
type Option func(*options)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the outcome recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer used for service spans. The default comes from
// the global otel provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithDefaultPasswordHash sets the placeholder digest assigned to newly
// provisioned staff. A staff login whose stored digest still equals it, with
// the forced-reset flag set, must change its password before a session is issued.
func WithDefaultPasswordHash(digest string) Option {
	return func(o *options) {
		o.defaultPasswordHash = digest
	}
}

// WithDefaultPassword sets the initial password for provisioned staff.
// Registration hashes it for each staff account it creates, and login
// treats a flagged staff account that signs in with it as still holding the
// placeholder. Unlike WithDefaultPasswordHash it needs no digest shared
// between processes.
func WithDefaultPassword(password string) Option {
	return func(o *options) {
		o.defaultPassword = password
	}
}

// WithAttemptReset makes a successful password reset clear the login
// attempt counter for the account's identifier.
func WithAttemptReset(limiter *RateLimiter) Option {
	return func(o *options) {
		o.limiter = limiter
	}
}
