package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/allisson/ledgerhook/internal/database"
	apperrors "github.com/allisson/ledgerhook/internal/errors"
	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
)

// mysqlForeignKeyViolation is the MySQL error number for foreign key violations
// on delete (ER_ROW_IS_REFERENCED_2).
const mysqlForeignKeyViolation = 1451

// MySQLOutboxEventRepository implements OutboxEvent persistence for MySQL.
// Uses BINARY(16) for UUID storage.
type MySQLOutboxEventRepository struct {
	db *sql.DB
}

// NewMySQLOutboxEventRepository creates a new MySQL OutboxEvent repository.
func NewMySQLOutboxEventRepository(db *sql.DB) *MySQLOutboxEventRepository {
	return &MySQLOutboxEventRepository{db: db}
}

// Create inserts a new outbox event. A duplicate idempotency key is not an
// error: the insert becomes a no-op and the existing event's id is returned.
func (m *MySQLOutboxEventRepository) Create(
	ctx context.Context,
	event *outboxDomain.OutboxEvent,
) (uuid.UUID, error) {
	querier := database.GetTx(ctx, m.db)

	eventData, channels, err := marshalEventJSON(event)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := event.ID.MarshalBinary()
	if err != nil {
		return uuid.Nil, apperrors.Wrap(err, "failed to marshal outbox event id")
	}

	query := `INSERT IGNORE INTO transactional_outbox (` + outboxColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := querier.ExecContext(
		ctx,
		query,
		id,
		event.IdempotencyKey,
		string(event.EventType),
		event.AggregateType,
		event.AggregateID,
		event.EventVersion,
		eventData,
		int(event.Priority),
		string(event.Status),
		event.RetryCount,
		event.MaxRetries,
		event.CorrelationID,
		event.SourceService,
		event.TenantID,
		channels,
		event.ErrorMessage,
		event.ErrorDetails,
		event.CreatedAt,
		event.ScheduledAt,
		event.NextRetryAt,
		event.ProcessedAt,
		event.ClaimedAt,
	)
	if err != nil {
		return uuid.Nil, apperrors.Wrap(err, "failed to create outbox event")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return uuid.Nil, apperrors.Wrap(err, "failed to create outbox event")
	}
	if affected == 0 {
		var existingID []byte
		err := querier.QueryRowContext(
			ctx,
			`SELECT id FROM transactional_outbox WHERE idempotency_key = ?`,
			event.IdempotencyKey,
		).Scan(&existingID)
		if err != nil {
			return uuid.Nil, apperrors.Wrap(err, "failed to resolve duplicate outbox event")
		}
		parsed, err := uuid.FromBytes(existingID)
		if err != nil {
			return uuid.Nil, apperrors.Wrap(err, "failed to parse outbox event id")
		}
		return parsed, nil
	}

	return event.ID, nil
}

// Get retrieves an outbox event by id.
func (m *MySQLOutboxEventRepository) Get(
	ctx context.Context,
	id uuid.UUID,
) (*outboxDomain.OutboxEvent, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal outbox event id")
	}

	query := `SELECT ` + outboxColumns + ` FROM transactional_outbox WHERE id = ?`

	event, err := scanOutboxEventBinaryID(querier.QueryRowContext(ctx, query, idBytes))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get outbox event")
	}
	return event, nil
}

// FetchDue retrieves pending events due for dispatch, priority descending then
// creation time ascending. Batches from concurrent workers may overlap; the
// per-row compare-and-set in Claim decides ownership.
func (m *MySQLOutboxEventRepository) FetchDue(
	ctx context.Context,
	limit int,
	now time.Time,
) ([]*outboxDomain.OutboxEvent, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + outboxColumns + `
			  FROM transactional_outbox
			  WHERE status = ? AND scheduled_at <= ?
			    AND (next_retry_at IS NULL OR next_retry_at <= ?)
			  ORDER BY priority DESC, created_at ASC
			  LIMIT ?`

	rows, err := querier.QueryContext(
		ctx,
		query,
		string(outboxDomain.EventStatusPending),
		now,
		now,
		limit,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to fetch due outbox events")
	}
	defer rows.Close() //nolint:errcheck

	events := make([]*outboxDomain.OutboxEvent, 0)
	for rows.Next() {
		event, err := scanOutboxEventBinaryID(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox event")
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox events")
	}

	return events, nil
}

// Claim transitions an event from pending to processing. The compare-and-set
// covers status, the caller's retry-count snapshot, and due-ness, so a claim
// from a stale snapshot fails cleanly. Returns false when the claim loses.
func (m *MySQLOutboxEventRepository) Claim(
	ctx context.Context,
	id uuid.UUID,
	retryCount int,
	now time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal outbox event id")
	}

	query := `UPDATE transactional_outbox
			  SET status = ?, claimed_at = ?
			  WHERE id = ? AND status = ? AND retry_count = ?
			    AND scheduled_at <= ?
			    AND (next_retry_at IS NULL OR next_retry_at <= ?)`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(outboxDomain.EventStatusProcessing),
		now,
		idBytes,
		string(outboxDomain.EventStatusPending),
		retryCount,
		now,
		now,
	)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to claim outbox event")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to claim outbox event")
	}
	return affected == 1, nil
}

// ReclaimStale reverts processing events claimed before the cutoff back to
// pending, making events stranded by a crashed worker dispatchable again.
func (m *MySQLOutboxEventRepository) ReclaimStale(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE transactional_outbox
			  SET status = ?, claimed_at = NULL
			  WHERE status = ? AND claimed_at IS NOT NULL AND claimed_at < ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(outboxDomain.EventStatusPending),
		string(outboxDomain.EventStatusProcessing),
		cutoff,
	)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to reclaim stale outbox events")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to reclaim stale outbox events")
	}
	return affected, nil
}

// MarkCompleted marks a processing event as completed and stamps processed_at.
func (m *MySQLOutboxEventRepository) MarkCompleted(
	ctx context.Context,
	id uuid.UUID,
	processedAt time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outbox event id")
	}

	query := `UPDATE transactional_outbox
			  SET status = ?, processed_at = ?, claimed_at = NULL
			  WHERE id = ? AND status = ?`

	_, err = querier.ExecContext(
		ctx,
		query,
		string(outboxDomain.EventStatusCompleted),
		processedAt,
		idBytes,
		string(outboxDomain.EventStatusProcessing),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox event completed")
	}
	return nil
}

// ScheduleRetry reverts a processing event to pending with an incremented retry
// count, a future next_retry_at, and the failure captured on the row.
func (m *MySQLOutboxEventRepository) ScheduleRetry(
	ctx context.Context,
	id uuid.UUID,
	retryCount int,
	nextRetryAt time.Time,
	errorMessage string,
	errorDetails string,
) error {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outbox event id")
	}

	query := `UPDATE transactional_outbox
			  SET status = ?, retry_count = ?, next_retry_at = ?, error_message = ?, error_details = ?,
			      claimed_at = NULL
			  WHERE id = ? AND status = ?`

	_, err = querier.ExecContext(
		ctx,
		query,
		string(outboxDomain.EventStatusPending),
		retryCount,
		nextRetryAt,
		errorMessage,
		errorDetails,
		idBytes,
		string(outboxDomain.EventStatusProcessing),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to schedule outbox event retry")
	}
	return nil
}

// Delete removes an outbox event. A foreign key violation surfaces as
// ErrIntegrityViolation rather than being silently ignored.
func (m *MySQLOutboxEventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outbox event id")
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM transactional_outbox WHERE id = ?`, idBytes)
	if err != nil {
		if mysqlErr, ok := err.(*mysql.MySQLError); ok && mysqlErr.Number == mysqlForeignKeyViolation {
			return apperrors.Wrap(apperrors.ErrIntegrityViolation, "outbox event is still referenced")
		}
		return apperrors.Wrap(err, "failed to delete outbox event")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to delete outbox event")
	}
	if affected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// DeleteCompletedBefore removes completed events processed before the cutoff.
// Returns the number of rows removed.
func (m *MySQLOutboxEventRepository) DeleteCompletedBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM transactional_outbox
			  WHERE status = ? AND processed_at IS NOT NULL AND processed_at < ?`

	result, err := querier.ExecContext(ctx, query, string(outboxDomain.EventStatusCompleted), cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete completed outbox events")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete completed outbox events")
	}
	return affected, nil
}
