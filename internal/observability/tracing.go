// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InstallTracing makes a sampling tracer provider the global one so service
// spans carry real ids and log records can be correlated by trace_id. No
// exporter is attached. The returned func flushes and stops the provider.
func InstallTracing() func(context.Context) error {
	provider := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(provider)
	return provider.Shutdown
}
