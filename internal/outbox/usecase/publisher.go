package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/ledgerhook/internal/database"
	apperrors "github.com/allisson/ledgerhook/internal/errors"
	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
	customValidation "github.com/allisson/ledgerhook/internal/validation"
)

// PublisherConfig holds event publisher configuration.
type PublisherConfig struct {
	MaxRetries    int
	SourceService string
	TenantID      string
}

// EventPublisher writes events to the transactional outbox. Callers that need
// the event and a business-state mutation to commit as one unit run the publish
// inside txManager.WithTx; the publisher detects and reuses an ambient
// transaction instead of opening a nested one.
type EventPublisher struct {
	config    PublisherConfig
	txManager database.TxManager
	eventRepo OutboxEventRepository
	logger    *slog.Logger
}

// NewEventPublisher creates a new EventPublisher.
func NewEventPublisher(
	config PublisherConfig,
	txManager database.TxManager,
	eventRepo OutboxEventRepository,
	logger *slog.Logger,
) *EventPublisher {
	return &EventPublisher{
		config:    config,
		txManager: txManager,
		eventRepo: eventRepo,
		logger:    logger,
	}
}

// Publish persists one event. A duplicate idempotency key is a no-op that
// returns the existing event's id, so at-least-once webhook deliveries do not
// produce duplicate downstream effects.
func (p *EventPublisher) Publish(
	ctx context.Context,
	request *outboxDomain.PublishRequest,
) (uuid.UUID, error) {
	if err := request.Validate(); err != nil {
		return uuid.Nil, customValidation.WrapValidationError(err)
	}

	event, err := p.buildEvent(request)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := p.eventRepo.Create(ctx, event)
	if err != nil {
		return uuid.Nil, err
	}

	if id != event.ID && p.logger != nil {
		p.logger.Info("duplicate event publish resolved to existing event",
			slog.String("event_type", string(event.EventType)),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("event_id", id.String()),
		)
	}

	return id, nil
}

// PublishBatch persists multiple events with all-or-nothing durability: if any
// insert fails, none are considered published.
func (p *EventPublisher) PublishBatch(
	ctx context.Context,
	requests []*outboxDomain.PublishRequest,
) ([]uuid.UUID, error) {
	for _, request := range requests {
		if err := request.Validate(); err != nil {
			return nil, customValidation.WrapValidationError(err)
		}
	}

	if database.HasTx(ctx) {
		return p.publishAll(ctx, requests)
	}

	var ids []uuid.UUID
	err := p.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var txErr error
		ids, txErr = p.publishAll(txCtx, requests)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (p *EventPublisher) publishAll(
	ctx context.Context,
	requests []*outboxDomain.PublishRequest,
) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(requests))
	for _, request := range requests {
		event, err := p.buildEvent(request)
		if err != nil {
			return nil, err
		}
		id, err := p.eventRepo.Create(ctx, event)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// buildEvent fills in identity, idempotency key, priority, and scheduling.
func (p *EventPublisher) buildEvent(
	request *outboxDomain.PublishRequest,
) (*outboxDomain.OutboxEvent, error) {
	idempotencyKey := request.IdempotencyKey
	if idempotencyKey == "" {
		key, err := deriveIdempotencyKey(request)
		if err != nil {
			return nil, err
		}
		idempotencyKey = key
	}

	priority := outboxDomain.PriorityFor(request.EventType)
	if request.Priority != nil {
		priority = *request.Priority
	}

	now := time.Now().UTC()
	return &outboxDomain.OutboxEvent{
		ID:                   uuid.Must(uuid.NewV7()),
		IdempotencyKey:       idempotencyKey,
		EventType:            request.EventType,
		AggregateType:        request.AggregateType,
		AggregateID:          request.AggregateID,
		EventVersion:         1,
		EventData:            request.EventData,
		Priority:             priority,
		Status:               outboxDomain.EventStatusPending,
		MaxRetries:           p.config.MaxRetries,
		CorrelationID:        request.CorrelationID,
		SourceService:        p.config.SourceService,
		TenantID:             p.config.TenantID,
		NotificationChannels: request.NotificationChannels,
		CreatedAt:            now,
		ScheduledAt:          now,
	}, nil
}

// deriveIdempotencyKey hashes {aggregateId, eventType, eventData} into a stable
// key. json.Marshal sorts map keys, so logically identical payloads produce the
// same canonical bytes.
func deriveIdempotencyKey(request *outboxDomain.PublishRequest) (string, error) {
	payload, err := json.Marshal(request.EventData)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to canonicalize event data")
	}

	hash := sha256.New()
	hash.Write([]byte(request.AggregateID))
	hash.Write([]byte{'|'})
	hash.Write([]byte(request.EventType))
	hash.Write([]byte{'|'})
	hash.Write(payload)

	return hex.EncodeToString(hash.Sum(nil)), nil
}
