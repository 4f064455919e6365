package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "grc"

// Metrics holds the request pipeline instruments.
type Metrics struct {
	TenantResolutions metric.Int64Counter
	TenantRejections  metric.Int64Counter
	ConsentDenials    metric.Int64Counter
	ConsentFailOpen   metric.Int64Counter
	ConsentAccepted   metric.Int64Counter
	ActionLogWrites   metric.Int64Counter
	ActionLogFailures metric.Int64Counter
	FieldCryptErrors  metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}

	for _, c := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.TenantResolutions, "grc.tenant.resolutions", "Requests bound to a tenant, by resolution source"},
		{&m.TenantRejections, "grc.tenant.rejections", "Authenticated requests without a tenant, by outcome"},
		{&m.ConsentDenials, "grc.consent.denials", "Requests refused for missing consent, by action"},
		{&m.ConsentFailOpen, "grc.consent.fail_open", "Requests forwarded because the consent store was unavailable"},
		{&m.ConsentAccepted, "grc.consent.accepted", "Consent acceptances recorded, by action"},
		{&m.ActionLogWrites, "grc.actionlog.writes", "Action log entries written, by module"},
		{&m.ActionLogFailures, "grc.actionlog.failures", "Action log writes that failed, by stage"},
		{&m.FieldCryptErrors, "grc.fieldcrypt.errors", "Swallowed field encryption failures, by model and op"},
	} {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

// Inc adds one to counter with the given string attributes as key/value pairs.
// A nil Metrics or counter is ignored so callers need no guards.
func Inc(ctx context.Context, counter metric.Int64Counter, kv ...string) {
	if counter == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
