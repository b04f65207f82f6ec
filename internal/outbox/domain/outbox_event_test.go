package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventTypeIsValid(t *testing.T) {
	valid := []EventType{
		EventTypePaymentVerified,
		EventTypePaymentFailed,
		EventTypeTransactionProcessed,
		EventTypeWebhookReceived,
	}
	for _, eventType := range valid {
		assert.True(t, eventType.IsValid(), string(eventType))
	}

	assert.False(t, EventType("payment_refunded").IsValid())
	assert.False(t, EventType("").IsValid())
}

func TestPriorityFor(t *testing.T) {
	assert.Equal(t, PriorityHigh, PriorityFor(EventTypePaymentFailed))
	assert.Equal(t, PriorityNormal, PriorityFor(EventTypePaymentVerified))
	assert.Equal(t, PriorityLow, PriorityFor(EventTypeTransactionProcessed))
	assert.Equal(t, PriorityLow, PriorityFor(EventTypeWebhookReceived))

	// Informational events never outrank verification outcomes.
	assert.Less(t, PriorityFor(EventTypeTransactionProcessed), PriorityFor(EventTypePaymentVerified))
	assert.Less(t, PriorityFor(EventTypeWebhookReceived), PriorityFor(EventTypePaymentVerified))
}

func TestPublishRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		request PublishRequest
		wantErr bool
	}{
		{
			name: "valid",
			request: PublishRequest{
				EventType:     EventTypePaymentVerified,
				AggregateType: "payment",
				AggregateID:   "pay_42",
			},
			wantErr: false,
		},
		{
			name: "missing event type",
			request: PublishRequest{
				AggregateType: "payment",
				AggregateID:   "pay_42",
			},
			wantErr: true,
		},
		{
			name: "unknown event type",
			request: PublishRequest{
				EventType:     EventType("payment_refunded"),
				AggregateType: "payment",
				AggregateID:   "pay_42",
			},
			wantErr: true,
		},
		{
			name: "missing aggregate id",
			request: PublishRequest{
				EventType:     EventTypePaymentVerified,
				AggregateType: "payment",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
