package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics mirrors the authorization metrics onto the global OTel meter
// provider so they reach the OTLP collector alongside traces
type OTelMetrics struct {
	decisionsTotal     metric.Int64Counter
	decisionDuration   metric.Float64Histogram
	mutationsTotal     metric.Int64Counter
	sideEffectFailures metric.Int64Counter
	cacheLookupsTotal  metric.Int64Counter
}

// NewOTelMetrics creates the instruments from the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/platinummonkey/tenantguard")

	m := &OTelMetrics{}
	var err error

	m.decisionsTotal, err = meter.Int64Counter(
		"tenantguard.authz.decisions",
		metric.WithDescription("Authorization decisions by result"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}

	m.decisionDuration, err = meter.Float64Histogram(
		"tenantguard.authz.decision.duration",
		metric.WithDescription("Authorization decision latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision duration histogram: %w", err)
	}

	m.mutationsTotal, err = meter.Int64Counter(
		"tenantguard.role.mutations",
		metric.WithDescription("Role mutations by operation and outcome"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mutations counter: %w", err)
	}

	m.sideEffectFailures, err = meter.Int64Counter(
		"tenantguard.role.mutation.side_effect_failures",
		metric.WithDescription("Post-commit side effects that failed"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create side effect counter: %w", err)
	}

	m.cacheLookupsTotal, err = meter.Int64Counter(
		"tenantguard.role_cache.lookups",
		metric.WithDescription("Role cache lookups by backend and result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache lookups counter: %w", err)
	}

	return m, nil
}

func (m *OTelMetrics) recordDecision(ctx context.Context, grantedBy, result string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("authz.result", result),
		attribute.String("authz.granted_by", grantedBy),
	)
	m.decisionsTotal.Add(ctx, 1, attrs)
	m.decisionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("authz.result", result)))
}

func (m *OTelMetrics) recordMutation(ctx context.Context, operation, outcome string) {
	m.mutationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mutation.operation", operation),
		attribute.String("mutation.outcome", outcome),
	))
}

func (m *OTelMetrics) recordSideEffectFailure(ctx context.Context, effect string) {
	m.sideEffectFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("mutation.effect", effect)))
}

func (m *OTelMetrics) recordCacheLookup(ctx context.Context, backend, result string) {
	m.cacheLookupsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.backend", backend),
		attribute.String("cache.result", result),
	))
}
