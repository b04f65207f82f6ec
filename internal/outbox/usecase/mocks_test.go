package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
)

// MockTxManager is a mock implementation of database.TxManager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	// Execute the function to test the logic inside
	return fn(ctx)
}

// MockOutboxEventRepository is a mock implementation of OutboxEventRepository
type MockOutboxEventRepository struct {
	mock.Mock
}

func (m *MockOutboxEventRepository) Create(
	ctx context.Context,
	event *outboxDomain.OutboxEvent,
) (uuid.UUID, error) {
	args := m.Called(ctx, event)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockOutboxEventRepository) Get(
	ctx context.Context,
	id uuid.UUID,
) (*outboxDomain.OutboxEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outboxDomain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxEventRepository) FetchDue(
	ctx context.Context,
	limit int,
	now time.Time,
) ([]*outboxDomain.OutboxEvent, error) {
	args := m.Called(ctx, limit, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outboxDomain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxEventRepository) Claim(
	ctx context.Context,
	id uuid.UUID,
	retryCount int,
	now time.Time,
) (bool, error) {
	args := m.Called(ctx, id, retryCount, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxEventRepository) ReclaimStale(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxEventRepository) MarkCompleted(
	ctx context.Context,
	id uuid.UUID,
	processedAt time.Time,
) error {
	args := m.Called(ctx, id, processedAt)
	return args.Error(0)
}

func (m *MockOutboxEventRepository) ScheduleRetry(
	ctx context.Context,
	id uuid.UUID,
	retryCount int,
	nextRetryAt time.Time,
	errorMessage string,
	errorDetails string,
) error {
	args := m.Called(ctx, id, retryCount, nextRetryAt, errorMessage, errorDetails)
	return args.Error(0)
}

func (m *MockOutboxEventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxEventRepository) DeleteCompletedBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockDeadLetterRepository is a mock implementation of DeadLetterRepository
type MockDeadLetterRepository struct {
	mock.Mock
}

func (m *MockDeadLetterRepository) Create(
	ctx context.Context,
	entry *outboxDomain.DeadLetterEntry,
) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockDeadLetterRepository) List(
	ctx context.Context,
	offset, limit int,
) ([]*outboxDomain.DeadLetterEntry, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outboxDomain.DeadLetterEntry), args.Error(1)
}

func (m *MockDeadLetterRepository) DeleteBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockMetricsRepository is a mock implementation of MetricsRepository
type MockMetricsRepository struct {
	mock.Mock
}

func (m *MockMetricsRepository) IncrementCounters(
	ctx context.Context,
	counters []outboxDomain.MetricsCounters,
	metricDate time.Time,
) error {
	args := m.Called(ctx, counters, metricDate)
	return args.Error(0)
}
