package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/ledgerhook/internal/errors"
	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
	"github.com/allisson/ledgerhook/internal/testutil"
)

func newOutboxEvent(eventType outboxDomain.EventType, priority outboxDomain.Priority, idempotencyKey string) *outboxDomain.OutboxEvent {
	now := time.Now().UTC()
	return &outboxDomain.OutboxEvent{
		ID:             uuid.Must(uuid.NewV7()),
		IdempotencyKey: idempotencyKey,
		EventType:      eventType,
		AggregateType:  "payment",
		AggregateID:    "pay_42",
		EventVersion:   1,
		EventData:      map[string]any{"reference_key": "pay_42"},
		Priority:       priority,
		Status:         outboxDomain.EventStatusPending,
		MaxRetries:     5,
		SourceService:  "ledgerhook",
		TenantID:       "default",
		CreatedAt:      now,
		ScheduledAt:    now,
	}
}

func TestPostgreSQLOutboxEventRepository_CreateIdempotency(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOutboxEventRepository(db)
	ctx := context.Background()

	event := newOutboxEvent(outboxDomain.EventTypePaymentVerified, outboxDomain.PriorityNormal, "key-1")
	id, err := repo.Create(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, event.ID, id)

	// Same idempotency key: no second row, the existing id comes back.
	duplicate := newOutboxEvent(outboxDomain.EventTypePaymentVerified, outboxDomain.PriorityNormal, "key-1")
	dupID, err := repo.Create(ctx, duplicate)
	require.NoError(t, err)
	assert.Equal(t, event.ID, dupID)

	events, err := repo.FetchDue(ctx, 10, time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestPostgreSQLOutboxEventRepository_FetchDueOrdering(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOutboxEventRepository(db)
	ctx := context.Background()

	lowOld := newOutboxEvent(outboxDomain.EventTypeWebhookReceived, outboxDomain.PriorityLow, "key-low-old")
	lowOld.CreatedAt = time.Now().UTC().Add(-time.Hour)
	highNew := newOutboxEvent(outboxDomain.EventTypePaymentFailed, outboxDomain.PriorityHigh, "key-high-new")
	normalOld := newOutboxEvent(outboxDomain.EventTypePaymentVerified, outboxDomain.PriorityNormal, "key-normal-old")
	normalOld.CreatedAt = time.Now().UTC().Add(-30 * time.Minute)
	normalNew := newOutboxEvent(outboxDomain.EventTypePaymentVerified, outboxDomain.PriorityNormal, "key-normal-new")

	for _, event := range []*outboxDomain.OutboxEvent{lowOld, highNew, normalOld, normalNew} {
		_, err := repo.Create(ctx, event)
		require.NoError(t, err)
	}

	events, err := repo.FetchDue(ctx, 10, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, events, 4)

	// Priority descending, then FIFO within the same priority.
	assert.Equal(t, highNew.ID, events[0].ID)
	assert.Equal(t, normalOld.ID, events[1].ID)
	assert.Equal(t, normalNew.ID, events[2].ID)
	assert.Equal(t, lowOld.ID, events[3].ID)
}

func TestPostgreSQLOutboxEventRepository_FetchDueSkipsFutureRetries(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOutboxEventRepository(db)
	ctx := context.Background()

	due := newOutboxEvent(outboxDomain.EventTypePaymentVerified, outboxDomain.PriorityNormal, "key-due")
	notDue := newOutboxEvent(outboxDomain.EventTypePaymentVerified, outboxDomain.PriorityNormal, "key-not-due")
	future := time.Now().UTC().Add(time.Hour)
	notDue.NextRetryAt = &future

	_, err := repo.Create(ctx, due)
	require.NoError(t, err)
	_, err = repo.Create(ctx, notDue)
	require.NoError(t, err)

	events, err := repo.FetchDue(ctx, 10, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, due.ID, events[0].ID)
}

func TestPostgreSQLOutboxEventRepository_ClaimIsCompareAndSet(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOutboxEventRepository(db)
	ctx := context.Background()

	event := newOutboxEvent(outboxDomain.EventTypePaymentVerified, outboxDomain.PriorityNormal, "key-claim")
	_, err := repo.Create(ctx, event)
	require.NoError(t, err)

	claimed, err := repo.Claim(ctx, event.ID, 0, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, claimed)

	// A second claim loses the race.
	claimed, err = repo.Claim(ctx, event.ID, 0, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestPostgreSQLOutboxEventRepository_ClaimGuardsStaleSnapshots(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOutboxEventRepository(db)
	ctx := context.Background()

	event := newOutboxEvent(outboxDomain.EventTypePaymentVerified, outboxDomain.PriorityNormal, "key-stale")
	_, err := repo.Create(ctx, event)
	require.NoError(t, err)

	// One worker claims, fails, and schedules a retry with a future backoff.
	claimed, err := repo.Claim(ctx, event.ID, 0, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, claimed)
	nextRetryAt := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.ScheduleRetry(ctx, event.ID, 1, nextRetryAt, "handler failed", ""))

	// A claim carrying the pre-retry snapshot must not win: the retry count
	// moved on, so redispatching from it would regress the counter.
	claimed, err = repo.Claim(ctx, event.ID, 0, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, claimed)

	// Even with the current retry count, the event is not claimable before
	// its backoff elapses.
	claimed, err = repo.Claim(ctx, event.ID, 1, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, claimed)

	// Once the backoff has passed, the claim wins.
	claimed, err = repo.Claim(ctx, event.ID, 1, nextRetryAt.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, claimed)

	stored, err := repo.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxDomain.EventStatusProcessing, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

func TestPostgreSQLOutboxEventRepository_ReclaimStale(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOutboxEventRepository(db)
	ctx := context.Background()

	event := newOutboxEvent(outboxDomain.EventTypePaymentVerified, outboxDomain.PriorityNormal, "key-reclaim")
	_, err := repo.Create(ctx, event)
	require.NoError(t, err)

	claimTime := time.Now().UTC().Add(-10 * time.Minute)
	claimed, err := repo.Claim(ctx, event.ID, 0, claimTime)
	require.NoError(t, err)
	require.True(t, claimed)

	// A fresh claim survives a sweep with an older cutoff.
	reclaimed, err := repo.ReclaimStale(ctx, claimTime.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), reclaimed)

	// A claim older than the cutoff is swept back to pending with its retry
	// count intact, so the event dispatches again after a worker crash.
	reclaimed, err = repo.ReclaimStale(ctx, time.Now().UTC().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)

	stored, err := repo.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxDomain.EventStatusPending, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.Nil(t, stored.ClaimedAt)

	events, err := repo.FetchDue(ctx, 10, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.ID, events[0].ID)
}

func TestPostgreSQLOutboxEventRepository_RetryLifecycle(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOutboxEventRepository(db)
	ctx := context.Background()

	event := newOutboxEvent(outboxDomain.EventTypePaymentVerified, outboxDomain.PriorityNormal, "key-retry")
	_, err := repo.Create(ctx, event)
	require.NoError(t, err)

	claimed, err := repo.Claim(ctx, event.ID, 0, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, claimed)

	nextRetryAt := time.Now().UTC().Add(2 * time.Second)
	err = repo.ScheduleRetry(ctx, event.ID, 1, nextRetryAt, "handler failed", "aggregate=payment/pay_42")
	require.NoError(t, err)

	stored, err := repo.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxDomain.EventStatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, "handler failed", stored.ErrorMessage)
	require.NotNil(t, stored.NextRetryAt)
	assert.WithinDuration(t, nextRetryAt, *stored.NextRetryAt, time.Second)

	// Complete on the next attempt, once the backoff has elapsed.
	claimed, err = repo.Claim(ctx, event.ID, 1, nextRetryAt.Add(time.Second))
	require.NoError(t, err)
	require.True(t, claimed)

	err = repo.MarkCompleted(ctx, event.ID, time.Now().UTC())
	require.NoError(t, err)

	stored, err = repo.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxDomain.EventStatusCompleted, stored.Status)
	require.NotNil(t, stored.ProcessedAt)
}

func TestPostgreSQLOutboxEventRepository_Delete(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOutboxEventRepository(db)
	ctx := context.Background()

	event := newOutboxEvent(outboxDomain.EventTypePaymentVerified, outboxDomain.PriorityNormal, "key-delete")
	_, err := repo.Create(ctx, event)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, event.ID))

	_, err = repo.Get(ctx, event.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, event.ID), apperrors.ErrNotFound)
}

func TestPostgreSQLOutboxEventRepository_DeleteCompletedBefore(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOutboxEventRepository(db)
	ctx := context.Background()

	old := newOutboxEvent(outboxDomain.EventTypePaymentVerified, outboxDomain.PriorityNormal, "key-old")
	_, err := repo.Create(ctx, old)
	require.NoError(t, err)
	claimed, err := repo.Claim(ctx, old.ID, 0, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, repo.MarkCompleted(ctx, old.ID, time.Now().UTC().Add(-8*24*time.Hour)))

	pending := newOutboxEvent(outboxDomain.EventTypePaymentVerified, outboxDomain.PriorityNormal, "key-pending")
	_, err = repo.Create(ctx, pending)
	require.NoError(t, err)

	removed, err := repo.DeleteCompletedBefore(ctx, time.Now().UTC().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.Get(ctx, pending.ID)
	assert.NoError(t, err)
}

func TestPostgreSQLDeadLetterRepository(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLDeadLetterRepository(db)
	ctx := context.Background()

	entry := &outboxDomain.DeadLetterEntry{
		ID:            uuid.Must(uuid.NewV7()),
		OutboxID:      uuid.Must(uuid.NewV7()),
		EventType:     outboxDomain.EventTypePaymentVerified,
		EventData:     map[string]any{"reference_key": "pay_42"},
		FailureReason: "handler failed",
		ErrorDetails:  "aggregate=payment/pay_42",
		RetryCount:    5,
		TenantID:      "default",
		FailedAt:      time.Now().UTC(),
	}

	require.NoError(t, repo.Create(ctx, entry))

	entries, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Equal(t, entry.OutboxID, entries[0].OutboxID)
	assert.Equal(t, entry.EventType, entries[0].EventType)
	assert.Equal(t, "pay_42", entries[0].EventData["reference_key"])
	assert.Equal(t, 5, entries[0].RetryCount)

	removed, err := repo.DeleteBefore(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestPostgreSQLMetricsRepository_IncrementCounters(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLMetricsRepository(db)
	ctx := context.Background()
	metricDate := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	counters := []outboxDomain.MetricsCounters{
		{
			EventType: outboxDomain.EventTypePaymentVerified,
			TenantID:  "default",
			Processed: 3,
			Failed:    1,
		},
	}

	require.NoError(t, repo.IncrementCounters(ctx, counters, metricDate))
	// Second pass accumulates onto the same row.
	require.NoError(t, repo.IncrementCounters(ctx, counters, metricDate))

	var processed, failed int64
	err := db.QueryRow(
		`SELECT processed_count, failed_count FROM outbox_processing_metrics
		 WHERE event_type = $1 AND tenant_id = $2 AND metric_date = $3`,
		string(outboxDomain.EventTypePaymentVerified), "default", metricDate,
	).Scan(&processed, &failed)
	require.NoError(t, err)
	assert.Equal(t, int64(6), processed)
	assert.Equal(t, int64(2), failed)
}
