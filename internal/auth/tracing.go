// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package auth

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span and event names.
const (
	spanLogin         = "auth.login"
	spanRegister      = "auth.register"
	spanRequestReset  = "auth.request_reset"
	spanResetPassword = "auth.reset_password"

	eventLockedOut     = "login.locked_out"
	eventLockoutBegins = "login.lockout_started"
)

// endSpan records err with its public code, then ends span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("auth.error_code", PublicCode(err)))
	}
	span.End()
}
