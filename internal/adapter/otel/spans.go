package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "grc"

// StartTenantResolveSpan starts a span around tenant resolution.
func StartTenantResolveSpan(ctx context.Context, host string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tenant.resolve",
		trace.WithAttributes(attribute.String("http.host", host)),
	)
}

// StartConsentSpan starts a span for a consent gate check.
func StartConsentSpan(ctx context.Context, actionType string, tenantID int64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "consent.check",
		trace.WithAttributes(
			attribute.String("consent.action_type", actionType),
			attribute.Int64("tenant.id", tenantID),
		),
	)
}

// StartActionLogSpan starts a span for an action log write.
func StartActionLogSpan(ctx context.Context, module, actionType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "actionlog.write",
		trace.WithAttributes(
			attribute.String("actionlog.module", module),
			attribute.String("actionlog.action_type", actionType),
		),
	)
}
