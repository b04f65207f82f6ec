// Package usecase implements the transactional outbox business logic: event
// publishing, the polling/dispatch processor, and periodic cleanup.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
)

// OutboxEventRepository defines the interface for OutboxEvent persistence operations.
type OutboxEventRepository interface {
	// Create inserts an event; a duplicate idempotency key returns the
	// existing event's id instead of inserting a second row.
	Create(ctx context.Context, event *outboxDomain.OutboxEvent) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*outboxDomain.OutboxEvent, error)
	FetchDue(ctx context.Context, limit int, now time.Time) ([]*outboxDomain.OutboxEvent, error)
	// Claim transitions pending → processing. The compare-and-set covers the
	// status, the caller's retry-count snapshot, and due-ness, so a claim on a
	// row another worker has since retried or rescheduled fails cleanly.
	Claim(ctx context.Context, id uuid.UUID, retryCount int, now time.Time) (bool, error)
	// ReclaimStale reverts processing rows claimed before the cutoff back to
	// pending. Rows stranded by a worker crash become dispatchable again.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	ScheduleRetry(
		ctx context.Context,
		id uuid.UUID,
		retryCount int,
		nextRetryAt time.Time,
		errorMessage string,
		errorDetails string,
	) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeadLetterRepository defines the interface for DeadLetterEntry persistence operations.
type DeadLetterRepository interface {
	Create(ctx context.Context, entry *outboxDomain.DeadLetterEntry) error
	List(ctx context.Context, offset, limit int) ([]*outboxDomain.DeadLetterEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MetricsRepository defines the interface for durable processing counters.
type MetricsRepository interface {
	IncrementCounters(
		ctx context.Context,
		counters []outboxDomain.MetricsCounters,
		metricDate time.Time,
	) error
}

// Publisher defines the interface for writing events to the outbox.
type Publisher interface {
	// Publish persists one event. Publishing twice with the same idempotency
	// key is a no-op returning the existing event's id.
	Publish(ctx context.Context, request *outboxDomain.PublishRequest) (uuid.UUID, error)

	// PublishBatch persists multiple events with all-or-nothing durability.
	PublishBatch(
		ctx context.Context,
		requests []*outboxDomain.PublishRequest,
	) ([]uuid.UUID, error)
}

// ProcessorUseCase defines the interface for the outbox polling processor.
type ProcessorUseCase interface {
	Start(ctx context.Context) error
	ProcessPass(ctx context.Context) error
}

// CleanupUseCase defines the interface for the retention sweep.
type CleanupUseCase interface {
	Run(ctx context.Context, retention time.Duration) (int64, error)
}
