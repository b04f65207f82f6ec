package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/ledgerhook/internal/database"
	"github.com/allisson/ledgerhook/internal/metrics"
	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
)

// Handler processes one outbox event. Handlers must be idempotent with respect
// to the aggregate they mutate: dispatch is at-least-once, so the same event
// may be delivered more than once.
type Handler func(ctx context.Context, event *outboxDomain.OutboxEvent) error

// HandlerRegistry maps event types to their handlers. The event-type set is
// closed, so registration of an unknown type is rejected at wiring time.
type HandlerRegistry struct {
	handlers map[outboxDomain.EventType]Handler
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[outboxDomain.EventType]Handler)}
}

// Register binds a handler to an event type. Unknown event types and duplicate
// registrations are rejected.
func (r *HandlerRegistry) Register(eventType outboxDomain.EventType, handler Handler) error {
	if !eventType.IsValid() {
		return fmt.Errorf("cannot register handler for unknown event type %q", eventType)
	}
	if _, exists := r.handlers[eventType]; exists {
		return fmt.Errorf("handler already registered for event type %q", eventType)
	}
	r.handlers[eventType] = handler
	return nil
}

// Get returns the handler for an event type.
func (r *HandlerRegistry) Get(eventType outboxDomain.EventType) (Handler, bool) {
	handler, ok := r.handlers[eventType]
	return handler, ok
}

// retryBackoff is the exponential delay table. Retries beyond the table's
// length are clamped at the last entry.
var retryBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
}

// backoffDelay returns the delay before retry number retryCount (1-based),
// with up to 10% jitter added to avoid synchronized retry storms when many
// events fail at once.
func backoffDelay(retryCount int) time.Duration {
	idx := retryCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(retryBackoff) {
		idx = len(retryBackoff) - 1
	}

	base := retryBackoff[idx]
	jitter := time.Duration(rand.Int64N(int64(base)/10 + 1))
	return base + jitter
}

// defaultVisibilityTimeout bounds how long a claim may sit in processing
// before the sweep treats its worker as crashed and reclaims the event.
const defaultVisibilityTimeout = 5 * time.Minute

// ProcessorConfig holds outbox processor configuration.
type ProcessorConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// VisibilityTimeout is the age at which a processing claim is considered
	// abandoned. Zero selects the default.
	VisibilityTimeout time.Duration
}

// Processor drains the outbox: it polls for due events, claims them with a
// compare-and-set, dispatches to registered handlers, and manages the retry
// and dead-letter escalation paths. The durable store is the single source of
// truth, so multiple processors may run in separate processes without
// coordination beyond the claim operation.
type Processor struct {
	config         ProcessorConfig
	txManager      database.TxManager
	eventRepo      OutboxEventRepository
	deadLetterRepo DeadLetterRepository
	metricsRepo    MetricsRepository
	registry       *HandlerRegistry
	outboxMetrics  metrics.OutboxMetrics
	logger         *slog.Logger
}

// NewProcessor creates a new outbox Processor.
func NewProcessor(
	config ProcessorConfig,
	txManager database.TxManager,
	eventRepo OutboxEventRepository,
	deadLetterRepo DeadLetterRepository,
	metricsRepo MetricsRepository,
	registry *HandlerRegistry,
	outboxMetrics metrics.OutboxMetrics,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		config:         config,
		txManager:      txManager,
		eventRepo:      eventRepo,
		deadLetterRepo: deadLetterRepo,
		metricsRepo:    metricsRepo,
		registry:       registry,
		outboxMetrics:  outboxMetrics,
		logger:         logger,
	}
}

// Start runs the polling loop until the context is cancelled. A stop signal
// only prevents starting new passes; an in-flight pass runs to completion.
func (p *Processor) Start(ctx context.Context) error {
	if p.logger != nil {
		p.logger.Info("starting outbox processor",
			slog.Duration("poll_interval", p.config.PollInterval),
			slog.Int("batch_size", p.config.BatchSize),
		)
	}

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if p.logger != nil {
				p.logger.Info("stopping outbox processor")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := p.ProcessPass(ctx); err != nil {
				if p.logger != nil {
					p.logger.Error("outbox processing pass failed", slog.Any("error", err))
				}
			}
		}
	}
}

// reclaimStale reverts processing rows whose claim outlived the visibility
// timeout. A crash between claim and outcome write would otherwise strand the
// event in processing forever, since FetchDue only sees pending rows.
func (p *Processor) reclaimStale(ctx context.Context, now time.Time) {
	timeout := p.config.VisibilityTimeout
	if timeout <= 0 {
		timeout = defaultVisibilityTimeout
	}

	reclaimed, err := p.eventRepo.ReclaimStale(ctx, now.Add(-timeout))
	if err != nil {
		if p.logger != nil {
			p.logger.Error("failed to reclaim stale outbox events", slog.Any("error", err))
		}
		return
	}
	if reclaimed > 0 && p.logger != nil {
		p.logger.Warn("reclaimed stale outbox events",
			slog.Int64("count", reclaimed),
			slog.Duration("visibility_timeout", timeout),
		)
	}
}

// counterKey groups pass counters per event type and tenant.
type counterKey struct {
	eventType outboxDomain.EventType
	tenantID  string
}

// ProcessPass runs one polling cycle: reclaim claims abandoned by crashed
// workers, fetch due events ordered by priority then age, claim each, dispatch,
// and flush aggregate counters once at the end.
func (p *Processor) ProcessPass(ctx context.Context) error {
	start := time.Now()
	now := start.UTC()

	p.reclaimStale(ctx, now)

	events, err := p.eventRepo.FetchDue(ctx, p.config.BatchSize, now)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	counters := make(map[counterKey]*outboxDomain.MetricsCounters)
	for _, event := range events {
		claimed, err := p.eventRepo.Claim(ctx, event.ID, event.RetryCount, time.Now().UTC())
		if err != nil {
			if p.logger != nil {
				p.logger.Error("failed to claim outbox event",
					slog.String("event_id", event.ID.String()),
					slog.Any("error", err),
				)
			}
			continue
		}
		if !claimed {
			// Another worker got there first, or the row moved on since the
			// fetch; it will come back in a later pass if still due.
			continue
		}

		p.dispatch(ctx, event, counters)
	}

	p.flushCounters(ctx, counters, now)
	if p.outboxMetrics != nil {
		p.outboxMetrics.RecordPassDuration(ctx, time.Since(start))
	}

	return nil
}

// dispatch invokes the handler for a claimed event and applies the outcome:
// completion, retry scheduling, or dead-letter escalation.
func (p *Processor) dispatch(
	ctx context.Context,
	event *outboxDomain.OutboxEvent,
	counters map[counterKey]*outboxDomain.MetricsCounters,
) {
	counter := passCounter(counters, event)

	handler, ok := p.registry.Get(event.EventType)
	var handlerErr error
	if !ok {
		handlerErr = fmt.Errorf("no handler registered for event type %q", event.EventType)
	} else {
		handlerErr = invokeHandler(ctx, handler, event)
	}

	if handlerErr == nil {
		if err := p.eventRepo.MarkCompleted(ctx, event.ID, time.Now().UTC()); err != nil {
			if p.logger != nil {
				p.logger.Error("failed to mark outbox event completed",
					slog.String("event_id", event.ID.String()),
					slog.Any("error", err),
				)
			}
			return
		}
		counter.Processed++
		return
	}

	if p.logger != nil {
		p.logger.Warn("outbox event dispatch failed",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", string(event.EventType)),
			slog.Int("retry_count", event.RetryCount+1),
			slog.Any("error", handlerErr),
		)
	}

	// Transient and domain errors are not distinguished here: only the
	// exhaustion count decides between retry and dead letter.
	retryCount := event.RetryCount + 1
	if retryCount >= event.MaxRetries {
		if err := p.moveToDeadLetter(ctx, event, retryCount, handlerErr); err != nil {
			if p.logger != nil {
				p.logger.Error("failed to dead-letter outbox event",
					slog.String("event_id", event.ID.String()),
					slog.Any("error", err),
				)
			}
			return
		}
		counter.Failed++
		counter.DeadLettered++
		return
	}

	nextRetryAt := time.Now().UTC().Add(backoffDelay(retryCount))
	err := p.eventRepo.ScheduleRetry(
		ctx,
		event.ID,
		retryCount,
		nextRetryAt,
		handlerErr.Error(),
		fmt.Sprintf("aggregate=%s/%s correlation_id=%s", event.AggregateType, event.AggregateID, event.CorrelationID),
	)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("failed to schedule outbox event retry",
				slog.String("event_id", event.ID.String()),
				slog.Any("error", err),
			)
		}
		return
	}
	counter.Failed++
}

// invokeHandler runs a handler, converting a panic into an ordinary error so a
// misbehaving handler feeds the retry/dead-letter path instead of killing the
// worker with the event stuck in processing.
func invokeHandler(
	ctx context.Context,
	handler Handler,
	event *outboxDomain.OutboxEvent,
) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, event)
}

// moveToDeadLetter deletes the event from the outbox and inserts the dead-letter
// entry in one transaction. The event exists in exactly one of the two stores
// at all times, never both, never neither.
func (p *Processor) moveToDeadLetter(
	ctx context.Context,
	event *outboxDomain.OutboxEvent,
	retryCount int,
	handlerErr error,
) error {
	entry := &outboxDomain.DeadLetterEntry{
		ID:            uuid.Must(uuid.NewV7()),
		OutboxID:      event.ID,
		EventType:     event.EventType,
		EventData:     event.EventData,
		FailureReason: handlerErr.Error(),
		ErrorDetails: fmt.Sprintf(
			"aggregate=%s/%s correlation_id=%s last_error=%+v",
			event.AggregateType, event.AggregateID, event.CorrelationID, handlerErr,
		),
		RetryCount: retryCount,
		TenantID:   event.TenantID,
		FailedAt:   time.Now().UTC(),
	}

	return p.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := p.deadLetterRepo.Create(txCtx, entry); err != nil {
			return err
		}
		return p.eventRepo.Delete(txCtx, event.ID)
	})
}

func passCounter(
	counters map[counterKey]*outboxDomain.MetricsCounters,
	event *outboxDomain.OutboxEvent,
) *outboxDomain.MetricsCounters {
	key := counterKey{eventType: event.EventType, tenantID: event.TenantID}
	counter, ok := counters[key]
	if !ok {
		counter = &outboxDomain.MetricsCounters{
			EventType: event.EventType,
			TenantID:  event.TenantID,
		}
		counters[key] = counter
	}
	return counter
}

// flushCounters writes the pass's aggregate counters to the durable metrics
// table and the telemetry counters, once per pass.
func (p *Processor) flushCounters(
	ctx context.Context,
	counters map[counterKey]*outboxDomain.MetricsCounters,
	now time.Time,
) {
	if len(counters) == 0 {
		return
	}

	rows := make([]outboxDomain.MetricsCounters, 0, len(counters))
	for _, counter := range counters {
		rows = append(rows, *counter)

		if p.outboxMetrics != nil {
			eventType := string(counter.EventType)
			if counter.Processed > 0 {
				p.outboxMetrics.RecordProcessed(ctx, eventType, counter.TenantID, counter.Processed)
			}
			if counter.Failed > 0 {
				p.outboxMetrics.RecordFailed(ctx, eventType, counter.TenantID, counter.Failed)
			}
			if counter.DeadLettered > 0 {
				p.outboxMetrics.RecordDeadLettered(ctx, eventType, counter.TenantID, counter.DeadLettered)
			}
		}
	}

	metricDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if err := p.metricsRepo.IncrementCounters(ctx, rows, metricDate); err != nil {
		if p.logger != nil {
			p.logger.Error("failed to flush outbox processing metrics", slog.Any("error", err))
		}
	}
}
