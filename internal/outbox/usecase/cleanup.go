package usecase

import (
	"context"
	"log/slog"
	"time"
)

// Cleanup sweeps completed outbox rows and old dead-letter rows past a
// retention horizon. Housekeeping only: correctness never depends on it.
type Cleanup struct {
	eventRepo      OutboxEventRepository
	deadLetterRepo DeadLetterRepository
	logger         *slog.Logger
}

// NewCleanup creates a new Cleanup.
func NewCleanup(
	eventRepo OutboxEventRepository,
	deadLetterRepo DeadLetterRepository,
	logger *slog.Logger,
) *Cleanup {
	return &Cleanup{
		eventRepo:      eventRepo,
		deadLetterRepo: deadLetterRepo,
		logger:         logger,
	}
}

// Run deletes completed outbox events and dead-letter entries older than the
// retention window. Returns the total number of rows removed.
func (c *Cleanup) Run(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	completedRemoved, err := c.eventRepo.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	deadLetterRemoved, err := c.deadLetterRepo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return completedRemoved, err
	}

	if c.logger != nil {
		c.logger.Info("outbox cleanup finished",
			slog.Time("cutoff", cutoff),
			slog.Int64("completed_events_removed", completedRemoved),
			slog.Int64("dead_letter_entries_removed", deadLetterRemoved),
		)
	}

	return completedRemoved + deadLetterRemoved, nil
}

// interface guards
var (
	_ Publisher        = (*EventPublisher)(nil)
	_ ProcessorUseCase = (*Processor)(nil)
	_ CleanupUseCase   = (*Cleanup)(nil)
)
