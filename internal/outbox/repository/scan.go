package repository

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/ledgerhook/internal/errors"
	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
)

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

// marshalEventJSON serializes the JSON columns of an outbox event.
// Nil maps and slices become database NULL.
func marshalEventJSON(event *outboxDomain.OutboxEvent) ([]byte, []byte, error) {
	var eventData, channels []byte
	var err error

	if event.EventData != nil {
		eventData, err = json.Marshal(event.EventData)
		if err != nil {
			return nil, nil, apperrors.Wrap(err, "failed to marshal outbox event data")
		}
	}
	if event.NotificationChannels != nil {
		channels, err = json.Marshal(event.NotificationChannels)
		if err != nil {
			return nil, nil, apperrors.Wrap(err, "failed to marshal notification channels")
		}
	}

	return eventData, channels, nil
}

// scanOutboxEvent scans a row using native UUID columns (PostgreSQL).
func scanOutboxEvent(s rowScanner) (*outboxDomain.OutboxEvent, error) {
	var event outboxDomain.OutboxEvent
	var eventType, status string
	var priority int
	var eventData, channels []byte
	var nextRetryAt, processedAt, claimedAt *time.Time

	err := s.Scan(
		&event.ID,
		&event.IdempotencyKey,
		&eventType,
		&event.AggregateType,
		&event.AggregateID,
		&event.EventVersion,
		&eventData,
		&priority,
		&status,
		&event.RetryCount,
		&event.MaxRetries,
		&event.CorrelationID,
		&event.SourceService,
		&event.TenantID,
		&channels,
		&event.ErrorMessage,
		&event.ErrorDetails,
		&event.CreatedAt,
		&event.ScheduledAt,
		&nextRetryAt,
		&processedAt,
		&claimedAt,
	)
	if err != nil {
		return nil, err
	}

	event.EventType = outboxDomain.EventType(eventType)
	event.Priority = outboxDomain.Priority(priority)
	event.Status = outboxDomain.EventStatus(status)
	event.NextRetryAt = nextRetryAt
	event.ProcessedAt = processedAt
	event.ClaimedAt = claimedAt

	if err := unmarshalEventJSON(&event, eventData, channels); err != nil {
		return nil, err
	}

	return &event, nil
}

// scanOutboxEventBinaryID scans a row using BINARY(16) UUID columns (MySQL).
func scanOutboxEventBinaryID(s rowScanner) (*outboxDomain.OutboxEvent, error) {
	var event outboxDomain.OutboxEvent
	var id []byte
	var eventType, status string
	var priority int
	var eventData, channels []byte
	var nextRetryAt, processedAt, claimedAt *time.Time

	err := s.Scan(
		&id,
		&event.IdempotencyKey,
		&eventType,
		&event.AggregateType,
		&event.AggregateID,
		&event.EventVersion,
		&eventData,
		&priority,
		&status,
		&event.RetryCount,
		&event.MaxRetries,
		&event.CorrelationID,
		&event.SourceService,
		&event.TenantID,
		&channels,
		&event.ErrorMessage,
		&event.ErrorDetails,
		&event.CreatedAt,
		&event.ScheduledAt,
		&nextRetryAt,
		&processedAt,
		&claimedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := uuid.FromBytes(id)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to parse outbox event id")
	}

	event.ID = parsedID
	event.EventType = outboxDomain.EventType(eventType)
	event.Priority = outboxDomain.Priority(priority)
	event.Status = outboxDomain.EventStatus(status)
	event.NextRetryAt = nextRetryAt
	event.ProcessedAt = processedAt
	event.ClaimedAt = claimedAt

	if err := unmarshalEventJSON(&event, eventData, channels); err != nil {
		return nil, err
	}

	return &event, nil
}

func unmarshalEventJSON(event *outboxDomain.OutboxEvent, eventData, channels []byte) error {
	if eventData != nil {
		decoded, err := decodeEventData(eventData)
		if err != nil {
			return apperrors.Wrap(err, "failed to unmarshal outbox event data")
		}
		event.EventData = decoded
	}
	if channels != nil {
		if err := json.Unmarshal(channels, &event.NotificationChannels); err != nil {
			return apperrors.Wrap(err, "failed to unmarshal notification channels")
		}
	}
	return nil
}

// decodeEventData decodes a stored event payload keeping numbers as
// json.Number. Lamport amounts exceed float64's 53-bit integer range, so a
// plain unmarshal into map[string]any would silently round them.
func decodeEventData(data []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var decoded map[string]any
	if err := decoder.Decode(&decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}
