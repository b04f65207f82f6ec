// Package repository implements data persistence for outbox events, dead-letter
// entries, and processing metrics. Repositories support both PostgreSQL and MySQL
// with transaction support via database.GetTx().
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/ledgerhook/internal/database"
	apperrors "github.com/allisson/ledgerhook/internal/errors"
	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
)

const outboxColumns = `id, idempotency_key, event_type, aggregate_type, aggregate_id,
	event_version, event_data, priority, status, retry_count, max_retries,
	correlation_id, source_service, tenant_id, notification_channels,
	error_message, error_details, created_at, scheduled_at, next_retry_at, processed_at,
	claimed_at`

// pqForeignKeyViolation is the PostgreSQL error code for foreign key violations.
const pqForeignKeyViolation = "23503"

// PostgreSQLOutboxEventRepository implements OutboxEvent persistence for PostgreSQL.
type PostgreSQLOutboxEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxEventRepository creates a new PostgreSQL OutboxEvent repository.
func NewPostgreSQLOutboxEventRepository(db *sql.DB) *PostgreSQLOutboxEventRepository {
	return &PostgreSQLOutboxEventRepository{db: db}
}

// Create inserts a new outbox event. A duplicate idempotency key is not an
// error: the insert becomes a no-op and the existing event's id is returned,
// so publishing the same logical event twice yields exactly one row.
func (p *PostgreSQLOutboxEventRepository) Create(
	ctx context.Context,
	event *outboxDomain.OutboxEvent,
) (uuid.UUID, error) {
	querier := database.GetTx(ctx, p.db)

	eventData, channels, err := marshalEventJSON(event)
	if err != nil {
		return uuid.Nil, err
	}

	query := `INSERT INTO transactional_outbox (` + outboxColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
			  ON CONFLICT (idempotency_key) DO NOTHING`

	result, err := querier.ExecContext(
		ctx,
		query,
		event.ID,
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
		var existingID uuid.UUID
		err := querier.QueryRowContext(
			ctx,
			`SELECT id FROM transactional_outbox WHERE idempotency_key = $1`,
			event.IdempotencyKey,
		).Scan(&existingID)
		if err != nil {
			return uuid.Nil, apperrors.Wrap(err, "failed to resolve duplicate outbox event")
		}
		return existingID, nil
	}

	return event.ID, nil
}

// Get retrieves an outbox event by id.
func (p *PostgreSQLOutboxEventRepository) Get(
	ctx context.Context,
	id uuid.UUID,
) (*outboxDomain.OutboxEvent, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + outboxColumns + ` FROM transactional_outbox WHERE id = $1`

	event, err := scanOutboxEvent(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get outbox event")
	}
	return event, nil
}

// FetchDue retrieves pending events that are due for dispatch, ordered by
// priority descending then creation time ascending. High-priority events never
// starve behind older low-priority ones; within the same priority, FIFO.
// Batches from concurrent workers may overlap; the per-row compare-and-set in
// Claim decides ownership, so the read takes no row locks.
func (p *PostgreSQLOutboxEventRepository) FetchDue(
	ctx context.Context,
	limit int,
	now time.Time,
) ([]*outboxDomain.OutboxEvent, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + outboxColumns + `
			  FROM transactional_outbox
			  WHERE status = $1 AND scheduled_at <= $2
			    AND (next_retry_at IS NULL OR next_retry_at <= $2)
			  ORDER BY priority DESC, created_at ASC
			  LIMIT $3`

	rows, err := querier.QueryContext(ctx, query, string(outboxDomain.EventStatusPending), now, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to fetch due outbox events")
	}
	defer rows.Close() //nolint:errcheck

	events := make([]*outboxDomain.OutboxEvent, 0)
	for rows.Next() {
		event, err := scanOutboxEvent(rows)
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
// covers status, the caller's retry-count snapshot, and due-ness: a row another
// worker has since retried (retry_count moved on) or rescheduled (next_retry_at
// in the future) is not claimable from a stale snapshot. Returns false when the
// claim loses.
func (p *PostgreSQLOutboxEventRepository) Claim(
	ctx context.Context,
	id uuid.UUID,
	retryCount int,
	now time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE transactional_outbox
			  SET status = $1, claimed_at = $2
			  WHERE id = $3 AND status = $4 AND retry_count = $5
			    AND scheduled_at <= $2
			    AND (next_retry_at IS NULL OR next_retry_at <= $2)`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(outboxDomain.EventStatusProcessing),
		now,
		id,
		string(outboxDomain.EventStatusPending),
		retryCount,
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
// pending. A claim that old means the owning worker crashed between claiming
// and writing an outcome; the event becomes dispatchable again with its retry
// count intact.
func (p *PostgreSQLOutboxEventRepository) ReclaimStale(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE transactional_outbox
			  SET status = $1, claimed_at = NULL
			  WHERE status = $2 AND claimed_at IS NOT NULL AND claimed_at < $3`

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
func (p *PostgreSQLOutboxEventRepository) MarkCompleted(
	ctx context.Context,
	id uuid.UUID,
	processedAt time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE transactional_outbox
			  SET status = $1, processed_at = $2, claimed_at = NULL
			  WHERE id = $3 AND status = $4`

	_, err := querier.ExecContext(
		ctx,
		query,
		string(outboxDomain.EventStatusCompleted),
		processedAt,
		id,
		string(outboxDomain.EventStatusProcessing),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox event completed")
	}
	return nil
}

// ScheduleRetry reverts a processing event to pending with an incremented retry
// count, a future next_retry_at, and the failure captured on the row.
func (p *PostgreSQLOutboxEventRepository) ScheduleRetry(
	ctx context.Context,
	id uuid.UUID,
	retryCount int,
	nextRetryAt time.Time,
	errorMessage string,
	errorDetails string,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE transactional_outbox
			  SET status = $1, retry_count = $2, next_retry_at = $3, error_message = $4, error_details = $5,
			      claimed_at = NULL
			  WHERE id = $6 AND status = $7`

	_, err := querier.ExecContext(
		ctx,
		query,
		string(outboxDomain.EventStatusPending),
		retryCount,
		nextRetryAt,
		errorMessage,
		errorDetails,
		id,
		string(outboxDomain.EventStatusProcessing),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to schedule outbox event retry")
	}
	return nil
}

// Delete removes an outbox event. A foreign key violation means something still
// references the row; that surfaces as ErrIntegrityViolation rather than being
// silently ignored.
func (p *PostgreSQLOutboxEventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM transactional_outbox WHERE id = $1`, id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pqForeignKeyViolation {
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
func (p *PostgreSQLOutboxEventRepository) DeleteCompletedBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM transactional_outbox
			  WHERE status = $1 AND processed_at IS NOT NULL AND processed_at < $2`

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
