package usecase

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/ledgerhook/internal/errors"
	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
)

func newTestPublisher(eventRepo *MockOutboxEventRepository, txManager *MockTxManager) *EventPublisher {
	config := PublisherConfig{
		MaxRetries:    5,
		SourceService: "ledgerhook",
		TenantID:      "default",
	}
	return NewEventPublisher(config, txManager, eventRepo, nil)
}

func TestPublish(t *testing.T) {
	t.Run("fills identity, priority and scheduling", func(t *testing.T) {
		eventRepo := &MockOutboxEventRepository{}
		publisher := newTestPublisher(eventRepo, &MockTxManager{})

		var captured *outboxDomain.OutboxEvent
		eventRepo.On("Create", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				captured = args.Get(1).(*outboxDomain.OutboxEvent)
			}).
			Return(uuid.Nil, nil).
			Once()

		_, err := publisher.Publish(context.Background(), &outboxDomain.PublishRequest{
			EventType:     outboxDomain.EventTypePaymentVerified,
			AggregateType: "payment",
			AggregateID:   "pay_42",
			EventData:     map[string]any{"amount_lamports": int64(1_000_000)},
			CorrelationID: "corr-1",
		})

		require.NoError(t, err)
		require.NotNil(t, captured)
		assert.NotEqual(t, uuid.Nil, captured.ID)
		assert.NotEmpty(t, captured.IdempotencyKey)
		assert.Equal(t, outboxDomain.PriorityNormal, captured.Priority)
		assert.Equal(t, outboxDomain.EventStatusPending, captured.Status)
		assert.Equal(t, 5, captured.MaxRetries)
		assert.Equal(t, "ledgerhook", captured.SourceService)
		assert.Equal(t, "default", captured.TenantID)
		assert.Equal(t, "corr-1", captured.CorrelationID)
		assert.False(t, captured.CreatedAt.IsZero())
		assert.False(t, captured.ScheduledAt.IsZero())
	})

	t.Run("failure events outrank verification events", func(t *testing.T) {
		eventRepo := &MockOutboxEventRepository{}
		publisher := newTestPublisher(eventRepo, &MockTxManager{})

		priorities := make(map[outboxDomain.EventType]outboxDomain.Priority)
		eventRepo.On("Create", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				event := args.Get(1).(*outboxDomain.OutboxEvent)
				priorities[event.EventType] = event.Priority
			}).
			Return(uuid.Nil, nil)

		for _, eventType := range []outboxDomain.EventType{
			outboxDomain.EventTypePaymentFailed,
			outboxDomain.EventTypePaymentVerified,
			outboxDomain.EventTypeTransactionProcessed,
			outboxDomain.EventTypeWebhookReceived,
		} {
			_, err := publisher.Publish(context.Background(), &outboxDomain.PublishRequest{
				EventType:     eventType,
				AggregateType: "payment",
				AggregateID:   "pay_42",
			})
			require.NoError(t, err)
		}

		assert.Greater(t, priorities[outboxDomain.EventTypePaymentFailed], priorities[outboxDomain.EventTypePaymentVerified])
		assert.Greater(t, priorities[outboxDomain.EventTypePaymentVerified], priorities[outboxDomain.EventTypeWebhookReceived])
		// Informational events share the lowest tier.
		assert.Greater(t, priorities[outboxDomain.EventTypePaymentVerified], priorities[outboxDomain.EventTypeTransactionProcessed])
	})

	t.Run("duplicate publish returns existing event id", func(t *testing.T) {
		eventRepo := &MockOutboxEventRepository{}
		publisher := newTestPublisher(eventRepo, &MockTxManager{})

		existingID := uuid.Must(uuid.NewV7())
		eventRepo.On("Create", mock.Anything, mock.Anything).Return(existingID, nil).Once()

		id, err := publisher.Publish(context.Background(), &outboxDomain.PublishRequest{
			EventType:     outboxDomain.EventTypePaymentVerified,
			AggregateType: "payment",
			AggregateID:   "pay_42",
		})

		require.NoError(t, err)
		assert.Equal(t, existingID, id)
	})

	t.Run("invalid request", func(t *testing.T) {
		eventRepo := &MockOutboxEventRepository{}
		publisher := newTestPublisher(eventRepo, &MockTxManager{})

		_, err := publisher.Publish(context.Background(), &outboxDomain.PublishRequest{
			EventType: outboxDomain.EventType("payment_refunded"),
		})

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		eventRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestDeriveIdempotencyKey(t *testing.T) {
	base := &outboxDomain.PublishRequest{
		EventType:     outboxDomain.EventTypePaymentVerified,
		AggregateType: "payment",
		AggregateID:   "pay_42",
		EventData:     map[string]any{"amount": "1000000", "destination": "DestX"},
	}

	key1, err := deriveIdempotencyKey(base)
	require.NoError(t, err)

	// Logically identical payload, different map construction order.
	same, err := deriveIdempotencyKey(&outboxDomain.PublishRequest{
		EventType:     outboxDomain.EventTypePaymentVerified,
		AggregateType: "payment",
		AggregateID:   "pay_42",
		EventData:     map[string]any{"destination": "DestX", "amount": "1000000"},
	})
	require.NoError(t, err)
	assert.Equal(t, key1, same)

	differentAggregate, err := deriveIdempotencyKey(&outboxDomain.PublishRequest{
		EventType:     outboxDomain.EventTypePaymentVerified,
		AggregateType: "payment",
		AggregateID:   "pay_43",
		EventData:     base.EventData,
	})
	require.NoError(t, err)
	assert.NotEqual(t, key1, differentAggregate)

	differentType, err := deriveIdempotencyKey(&outboxDomain.PublishRequest{
		EventType:     outboxDomain.EventTypePaymentFailed,
		AggregateType: "payment",
		AggregateID:   "pay_42",
		EventData:     base.EventData,
	})
	require.NoError(t, err)
	assert.NotEqual(t, key1, differentType)
}

func TestPublishBatch(t *testing.T) {
	t.Run("publishes all events in one transaction", func(t *testing.T) {
		eventRepo := &MockOutboxEventRepository{}
		txManager := &MockTxManager{}
		publisher := newTestPublisher(eventRepo, txManager)

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil).Once()
		eventRepo.On("Create", mock.Anything, mock.Anything).Return(uuid.Nil, nil).Times(2)

		ids, err := publisher.PublishBatch(context.Background(), []*outboxDomain.PublishRequest{
			{
				EventType:     outboxDomain.EventTypeWebhookReceived,
				AggregateType: "webhook",
				AggregateID:   "sigA",
			},
			{
				EventType:     outboxDomain.EventTypePaymentVerified,
				AggregateType: "payment",
				AggregateID:   "pay_42",
			},
		})

		require.NoError(t, err)
		assert.Len(t, ids, 2)
		txManager.AssertExpectations(t)
		eventRepo.AssertExpectations(t)
	})

	t.Run("all-or-nothing on insert failure", func(t *testing.T) {
		eventRepo := &MockOutboxEventRepository{}
		txManager := &MockTxManager{}
		publisher := newTestPublisher(eventRepo, txManager)

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil).Once()
		eventRepo.On("Create", mock.Anything, mock.Anything).Return(uuid.Nil, nil).Once()
		eventRepo.On("Create", mock.Anything, mock.Anything).Return(uuid.Nil, assert.AnError).Once()

		ids, err := publisher.PublishBatch(context.Background(), []*outboxDomain.PublishRequest{
			{
				EventType:     outboxDomain.EventTypeWebhookReceived,
				AggregateType: "webhook",
				AggregateID:   "sigA",
			},
			{
				EventType:     outboxDomain.EventTypePaymentVerified,
				AggregateType: "payment",
				AggregateID:   "pay_42",
			},
		})

		assert.Error(t, err)
		assert.Nil(t, ids)
	})

	t.Run("validates every request before publishing any", func(t *testing.T) {
		eventRepo := &MockOutboxEventRepository{}
		txManager := &MockTxManager{}
		publisher := newTestPublisher(eventRepo, txManager)

		_, err := publisher.PublishBatch(context.Background(), []*outboxDomain.PublishRequest{
			{
				EventType:     outboxDomain.EventTypeWebhookReceived,
				AggregateType: "webhook",
				AggregateID:   "sigA",
			},
			{
				EventType: outboxDomain.EventType("bogus"),
			},
		})

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		eventRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		txManager.AssertNotCalled(t, "WithTx", mock.Anything, mock.Anything)
	})
}
