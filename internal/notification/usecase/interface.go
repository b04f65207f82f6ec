// Package usecase implements the notification handlers registered with the
// outbox processor for informational events.
package usecase

import (
	"context"

	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
)

// ChannelPublisher defines the interface for publishing to notification channels.
type ChannelPublisher interface {
	Publish(ctx context.Context, channel string, body []byte, metadata map[string]string) error
}

// NotificationUseCase defines the outbox handlers that fan events out to
// notification channels.
type NotificationUseCase interface {
	HandleWebhookReceived(ctx context.Context, event *outboxDomain.OutboxEvent) error
	HandleTransactionProcessed(ctx context.Context, event *outboxDomain.OutboxEvent) error
}
