package domain

import (
	validation "github.com/jellydator/validation"
)

// PublishRequest carries the caller-supplied fields of a new outbox event.
// The publisher fills in identity, idempotency key, priority, and scheduling.
type PublishRequest struct {
	EventType            EventType
	AggregateType        string
	AggregateID          string
	EventData            map[string]any
	IdempotencyKey       string
	CorrelationID        string
	NotificationChannels []string
	Priority             *Priority
}

// Validate checks the publish request is well formed.
func (r *PublishRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.EventType,
			validation.Required,
			validation.By(func(value interface{}) error {
				eventType, _ := value.(EventType)
				if !eventType.IsValid() {
					return validation.NewError(
						"validation_event_type",
						"unknown event type",
					)
				}
				return nil
			}),
		),
		validation.Field(&r.AggregateType, validation.Required),
		validation.Field(&r.AggregateID, validation.Required),
	)
}
