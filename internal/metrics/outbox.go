package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OutboxMetrics defines the interface for recording outbox processing metrics.
// The processor flushes these once per polling pass, not per event, to bound
// write amplification.
type OutboxMetrics interface {
	// RecordProcessed adds to the completed-event counter for an event type and tenant.
	RecordProcessed(ctx context.Context, eventType, tenantID string, count int64)

	// RecordFailed adds to the failed-dispatch counter for an event type and tenant.
	// Failures that end in the dead-letter store and failures that will retry both count.
	RecordFailed(ctx context.Context, eventType, tenantID string, count int64)

	// RecordDeadLettered adds to the dead-letter escalation counter.
	RecordDeadLettered(ctx context.Context, eventType, tenantID string, count int64)

	// RecordPassDuration records the duration of one full polling pass.
	RecordPassDuration(ctx context.Context, duration time.Duration)
}

// LedgerMetrics defines the interface for recording ledger RPC metrics.
type LedgerMetrics interface {
	// RecordRPC records a ledger RPC call duration with its method and status.
	// Status examples: "ok", "error", "timeout".
	RecordRPC(ctx context.Context, method string, duration time.Duration, status string)
}

// outboxMetrics implements OutboxMetrics using OpenTelemetry metrics.
type outboxMetrics struct {
	processedCounter    metric.Int64Counter
	failedCounter       metric.Int64Counter
	deadLetteredCounter metric.Int64Counter
	passDurationHisto   metric.Float64Histogram
}

// NewOutboxMetrics creates an OutboxMetrics implementation using the provided meter provider.
// The namespace parameter is used as a prefix for all metric names.
func NewOutboxMetrics(meterProvider metric.MeterProvider, namespace string) (OutboxMetrics, error) {
	meter := meterProvider.Meter(namespace)

	processedCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_outbox_events_processed_total", namespace),
		metric.WithDescription("Total number of outbox events dispatched successfully"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create processed counter: %w", err)
	}

	failedCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_outbox_events_failed_total", namespace),
		metric.WithDescription("Total number of failed outbox dispatch attempts"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failed counter: %w", err)
	}

	deadLetteredCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_outbox_events_dead_lettered_total", namespace),
		metric.WithDescription("Total number of outbox events escalated to the dead letter store"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dead letter counter: %w", err)
	}

	passDurationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_outbox_pass_duration_seconds", namespace),
		metric.WithDescription("Duration of outbox polling passes in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pass duration histogram: %w", err)
	}

	return &outboxMetrics{
		processedCounter:    processedCounter,
		failedCounter:       failedCounter,
		deadLetteredCounter: deadLetteredCounter,
		passDurationHisto:   passDurationHisto,
	}, nil
}

// RecordProcessed increments the processed counter with event type and tenant labels.
func (m *outboxMetrics) RecordProcessed(ctx context.Context, eventType, tenantID string, count int64) {
	m.processedCounter.Add(ctx, count,
		metric.WithAttributes(
			attribute.String("event_type", eventType),
			attribute.String("tenant_id", tenantID),
		),
	)
}

// RecordFailed increments the failed counter with event type and tenant labels.
func (m *outboxMetrics) RecordFailed(ctx context.Context, eventType, tenantID string, count int64) {
	m.failedCounter.Add(ctx, count,
		metric.WithAttributes(
			attribute.String("event_type", eventType),
			attribute.String("tenant_id", tenantID),
		),
	)
}

// RecordDeadLettered increments the dead-letter counter with event type and tenant labels.
func (m *outboxMetrics) RecordDeadLettered(ctx context.Context, eventType, tenantID string, count int64) {
	m.deadLetteredCounter.Add(ctx, count,
		metric.WithAttributes(
			attribute.String("event_type", eventType),
			attribute.String("tenant_id", tenantID),
		),
	)
}

// RecordPassDuration records the polling pass duration in seconds.
func (m *outboxMetrics) RecordPassDuration(ctx context.Context, duration time.Duration) {
	m.passDurationHisto.Record(ctx, duration.Seconds())
}

// ledgerMetrics implements LedgerMetrics using OpenTelemetry metrics.
type ledgerMetrics struct {
	rpcDurationHisto metric.Float64Histogram
}

// NewLedgerMetrics creates a LedgerMetrics implementation using the provided meter provider.
func NewLedgerMetrics(meterProvider metric.MeterProvider, namespace string) (LedgerMetrics, error) {
	meter := meterProvider.Meter(namespace)

	rpcDurationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_ledger_rpc_duration_seconds", namespace),
		metric.WithDescription("Duration of ledger RPC calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger RPC histogram: %w", err)
	}

	return &ledgerMetrics{rpcDurationHisto: rpcDurationHisto}, nil
}

// RecordRPC records the RPC duration with method and status labels.
func (m *ledgerMetrics) RecordRPC(ctx context.Context, method string, duration time.Duration, status string) {
	m.rpcDurationHisto.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("status", status),
		),
	)
}

// NoOpOutboxMetrics is a no-op implementation of OutboxMetrics for when metrics are disabled.
type NoOpOutboxMetrics struct{}

// NewNoOpOutboxMetrics creates a no-op OutboxMetrics implementation.
func NewNoOpOutboxMetrics() OutboxMetrics {
	return &NoOpOutboxMetrics{}
}

// RecordProcessed does nothing when metrics are disabled.
func (n *NoOpOutboxMetrics) RecordProcessed(ctx context.Context, eventType, tenantID string, count int64) {
	// No-op
}

// RecordFailed does nothing when metrics are disabled.
func (n *NoOpOutboxMetrics) RecordFailed(ctx context.Context, eventType, tenantID string, count int64) {
	// No-op
}

// RecordDeadLettered does nothing when metrics are disabled.
func (n *NoOpOutboxMetrics) RecordDeadLettered(ctx context.Context, eventType, tenantID string, count int64) {
	// No-op
}

// RecordPassDuration does nothing when metrics are disabled.
func (n *NoOpOutboxMetrics) RecordPassDuration(ctx context.Context, duration time.Duration) {
	// No-op
}

// NoOpLedgerMetrics is a no-op implementation of LedgerMetrics for when metrics are disabled.
type NoOpLedgerMetrics struct{}

// NewNoOpLedgerMetrics creates a no-op LedgerMetrics implementation.
func NewNoOpLedgerMetrics() LedgerMetrics {
	return &NoOpLedgerMetrics{}
}

// RecordRPC does nothing when metrics are disabled.
func (n *NoOpLedgerMetrics) RecordRPC(ctx context.Context, method string, duration time.Duration, status string) {
	// No-op
}
