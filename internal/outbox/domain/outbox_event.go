// Package domain defines the transactional outbox entities: pending events,
// dead-letter entries, and processing metrics.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryEffectivelyOnce names the delivery guarantee this outbox provides:
// at-least-once dispatch combined with idempotent handlers. The observable
// effect is equivalent to exactly-once, but the dispatch itself is not — a
// handler may see the same event more than once and must tolerate it.
const DeliveryEffectivelyOnce = "effectively_once"

// EventType classifies an outbox event. The set is closed: handler
// registration and priority assignment are both keyed on it.
type EventType string

const (
	EventTypePaymentVerified      EventType = "payment_verified"
	EventTypePaymentFailed        EventType = "payment_failed"
	EventTypeTransactionProcessed EventType = "transaction_processed"
	EventTypeWebhookReceived      EventType = "webhook_received"
)

// IsValid reports whether the event type belongs to the closed set.
func (e EventType) IsValid() bool {
	switch e {
	case EventTypePaymentVerified,
		EventTypePaymentFailed,
		EventTypeTransactionProcessed,
		EventTypeWebhookReceived:
		return true
	}
	return false
}

// EventStatus tracks an event through the processing state machine:
// pending → processing → {completed | pending(retry) | dead-lettered}.
type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusProcessing EventStatus = "processing"
	EventStatusCompleted  EventStatus = "completed"
	EventStatusFailed     EventStatus = "failed"
)

// Priority orders dispatch under backlog: higher values first. Failure events
// outrank verification events, which outrank informational events, so that
// user-impacting outcomes are delivered before best-effort logging.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 10
)

// PriorityFor returns the dispatch priority for an event type. Failure events
// outrank verification events; transaction_processed and webhook_received are
// informational and dispatch last.
func PriorityFor(eventType EventType) Priority {
	switch eventType {
	case EventTypePaymentFailed:
		return PriorityHigh
	case EventTypePaymentVerified:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// OutboxEvent is a pending unit of work: a fact that occurred, persisted in
// the same transaction as the business-state mutation that produced it.
type OutboxEvent struct {
	ID                   uuid.UUID
	IdempotencyKey       string
	EventType            EventType
	AggregateType        string
	AggregateID          string
	EventVersion         int
	EventData            map[string]any
	Priority             Priority
	Status               EventStatus
	RetryCount           int
	MaxRetries           int
	CorrelationID        string
	SourceService        string
	TenantID             string
	NotificationChannels []string
	ErrorMessage         string
	ErrorDetails         string
	CreatedAt            time.Time
	ScheduledAt          time.Time
	NextRetryAt          *time.Time
	ProcessedAt          *time.Time
	// ClaimedAt is stamped when a worker claims the event. A processing row
	// whose claim is older than the visibility timeout is treated as abandoned
	// by a crashed worker and reclaimed for dispatch.
	ClaimedAt *time.Time
}

// DeadLetterEntry is the terminal record of an event that exhausted its retry
// budget. It carries enough payload and context for manual replay or diagnosis;
// nothing retries from here automatically.
type DeadLetterEntry struct {
	ID            uuid.UUID
	OutboxID      uuid.UUID
	EventType     EventType
	EventData     map[string]any
	FailureReason string
	ErrorDetails  string
	RetryCount    int
	TenantID      string
	FailedAt      time.Time
}

// MetricsCounters holds per event type and tenant processing counters,
// aggregated once per processing pass to bound write amplification.
type MetricsCounters struct {
	EventType    EventType
	TenantID     string
	Processed    int64
	Failed       int64
	DeadLettered int64
}
