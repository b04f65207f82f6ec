package usecase

import (
	"context"
	"encoding/json"
	"log/slog"

	apperrors "github.com/allisson/ledgerhook/internal/errors"
	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
)

// notificationUseCase fans dispatched events out to their declared
// notification channels. Publish failures are returned so the outbox retry
// policy applies; an event with no channels completes immediately.
type notificationUseCase struct {
	sink   ChannelPublisher
	logger *slog.Logger
}

// NewNotificationUseCase creates a new NotificationUseCase.
func NewNotificationUseCase(sink ChannelPublisher, logger *slog.Logger) NotificationUseCase {
	return &notificationUseCase{sink: sink, logger: logger}
}

// HandleWebhookReceived forwards a webhook_received event to its channels.
func (u *notificationUseCase) HandleWebhookReceived(
	ctx context.Context,
	event *outboxDomain.OutboxEvent,
) error {
	return u.fanOut(ctx, event)
}

// HandleTransactionProcessed forwards a transaction_processed event to its channels.
func (u *notificationUseCase) HandleTransactionProcessed(
	ctx context.Context,
	event *outboxDomain.OutboxEvent,
) error {
	return u.fanOut(ctx, event)
}

func (u *notificationUseCase) fanOut(ctx context.Context, event *outboxDomain.OutboxEvent) error {
	if len(event.NotificationChannels) == 0 {
		u.logger.Debug("event declares no notification channels",
			slog.String("event_type", string(event.EventType)),
			slog.String("aggregate_id", event.AggregateID),
		)
		return nil
	}

	body, err := json.Marshal(event.EventData)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode notification payload")
	}

	metadata := map[string]string{
		"event_type":     string(event.EventType),
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"correlation_id": event.CorrelationID,
		"tenant_id":      event.TenantID,
	}

	for _, channel := range event.NotificationChannels {
		if err := u.sink.Publish(ctx, channel, body, metadata); err != nil {
			return err
		}
	}

	u.logger.Info("event delivered to notification channels",
		slog.String("event_type", string(event.EventType)),
		slog.String("aggregate_id", event.AggregateID),
		slog.Int("channel_count", len(event.NotificationChannels)),
	)

	return nil
}

var _ NotificationUseCase = (*notificationUseCase)(nil)
