package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/ledgerhook/internal/database"
	apperrors "github.com/allisson/ledgerhook/internal/errors"
	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
	paymentDomain "github.com/allisson/ledgerhook/internal/payment/domain"
)

// paymentUseCase settles payments from dispatched outbox events. Handlers are
// idempotent: redelivering the same event to a payment that already left the
// pending state is a no-op with no duplicate downstream notification, which is
// what makes at-least-once dispatch effectively once at the aggregate.
type paymentUseCase struct {
	txManager   database.TxManager
	paymentRepo PaymentRepository
	notifier    StatusNotifier
	logger      *slog.Logger
}

// NewPaymentUseCase creates a new PaymentUseCase.
func NewPaymentUseCase(
	txManager database.TxManager,
	paymentRepo PaymentRepository,
	notifier StatusNotifier,
	logger *slog.Logger,
) PaymentUseCase {
	return &paymentUseCase{
		txManager:   txManager,
		paymentRepo: paymentRepo,
		notifier:    notifier,
		logger:      logger,
	}
}

// HandlePaymentVerified marks the referenced payment verified, records
// verification metadata, and notifies the status stream. The status update and
// metadata rows commit as one transaction; the notification happens after
// commit and its failure is logged, not returned.
func (u *paymentUseCase) HandlePaymentVerified(
	ctx context.Context,
	event *outboxDomain.OutboxEvent,
) error {
	txSignature := eventString(event.EventData, "tx_signature")
	if txSignature == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "payment_verified event missing tx_signature")
	}
	referenceKey := eventString(event.EventData, "reference_key")

	payment, created, err := u.resolvePayment(ctx, referenceKey, txSignature, event)
	if err != nil {
		return err
	}

	if !created && payment.IsSettled() {
		u.logSkip("payment_verified", payment)
		return nil
	}

	finalizedAt := time.Now().UTC()
	metadata := verificationMetadata(event, payment.ID)

	err = u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if created {
			if err := u.paymentRepo.Create(txCtx, payment); err != nil {
				return err
			}
		}
		if err := u.paymentRepo.UpdateStatus(
			txCtx,
			payment.ID,
			paymentDomain.PaymentStatusVerified,
			txSignature,
			&finalizedAt,
		); err != nil {
			return err
		}
		return u.paymentRepo.CreateMetadata(txCtx, metadata)
	})
	if err != nil {
		return err
	}

	u.notify(ctx, payment, paymentDomain.PaymentStatusVerified, map[string]string{
		"tx_signature": txSignature,
		"amount":       strconv.FormatInt(eventInt64(event.EventData, "amount_lamports"), 10),
	})

	return nil
}

// HandlePaymentFailed marks the referenced payment failed and notifies the
// status stream. Like HandlePaymentVerified, redelivery to a settled payment
// is a no-op.
func (u *paymentUseCase) HandlePaymentFailed(
	ctx context.Context,
	event *outboxDomain.OutboxEvent,
) error {
	txSignature := eventString(event.EventData, "tx_signature")
	if txSignature == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "payment_failed event missing tx_signature")
	}
	referenceKey := eventString(event.EventData, "reference_key")

	payment, created, err := u.resolvePayment(ctx, referenceKey, txSignature, event)
	if err != nil {
		return err
	}

	if !created && payment.IsSettled() {
		u.logSkip("payment_failed", payment)
		return nil
	}

	err = u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if created {
			if err := u.paymentRepo.Create(txCtx, payment); err != nil {
				return err
			}
		}
		return u.paymentRepo.UpdateStatus(
			txCtx,
			payment.ID,
			paymentDomain.PaymentStatusFailed,
			txSignature,
			nil,
		)
	})
	if err != nil {
		return err
	}

	u.notify(ctx, payment, paymentDomain.PaymentStatusFailed, map[string]string{
		"tx_signature":   txSignature,
		"failure_reason": eventString(event.EventData, "failure_reason"),
	})

	return nil
}

// resolvePayment finds the payment this event settles, preferring the
// reference key over the tx signature. A webhook can legitimately arrive
// before any payment request was recorded; in that case a fresh pending
// payment is built (not yet persisted) and created=true is returned so the
// caller inserts it inside the settling transaction.
func (u *paymentUseCase) resolvePayment(
	ctx context.Context,
	referenceKey string,
	txSignature string,
	event *outboxDomain.OutboxEvent,
) (*paymentDomain.Payment, bool, error) {
	if referenceKey != "" {
		payment, err := u.paymentRepo.GetByReferenceKey(ctx, referenceKey)
		if err == nil {
			return payment, false, nil
		}
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, false, err
		}
	}

	payment, err := u.paymentRepo.GetByTxSignature(ctx, txSignature)
	if err == nil {
		return payment, false, nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, false, err
	}

	if referenceKey == "" {
		referenceKey = txSignature
	}
	now := time.Now().UTC()
	return &paymentDomain.Payment{
		ID:             uuid.Must(uuid.NewV7()),
		TxSignature:    txSignature,
		ReferenceKey:   referenceKey,
		AmountLamports: eventInt64(event.EventData, "amount_lamports"),
		Status:         paymentDomain.PaymentStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, true, nil
}

func (u *paymentUseCase) notify(
	ctx context.Context,
	payment *paymentDomain.Payment,
	status paymentDomain.PaymentStatus,
	metadata map[string]string,
) {
	if u.notifier == nil {
		return
	}
	if err := u.notifier.NotifyStatus(ctx, payment.ReferenceKey, status, metadata); err != nil {
		u.logger.Error("status stream notification failed",
			slog.String("reference_key", payment.ReferenceKey),
			slog.String("status", string(status)),
			slog.Any("error", err),
		)
	}
}

func (u *paymentUseCase) logSkip(eventType string, payment *paymentDomain.Payment) {
	u.logger.Info("payment already settled, skipping redelivery",
		slog.String("event_type", eventType),
		slog.String("reference_key", payment.ReferenceKey),
		slog.String("status", string(payment.Status)),
	)
}

// verificationMetadata builds the payment_metadata rows written on verification.
func verificationMetadata(event *outboxDomain.OutboxEvent, paymentID uuid.UUID) []*paymentDomain.Metadata {
	now := time.Now().UTC()
	values := map[string]string{
		"tx_signature": eventString(event.EventData, "tx_signature"),
		"destination":  eventString(event.EventData, "destination"),
		"slot":         strconv.FormatInt(eventInt64(event.EventData, "slot"), 10),
	}

	entries := make([]*paymentDomain.Metadata, 0, len(values))
	for _, key := range []string{"tx_signature", "destination", "slot"} {
		if values[key] == "" {
			continue
		}
		entries = append(entries, &paymentDomain.Metadata{
			ID:        uuid.Must(uuid.NewV7()),
			PaymentID: paymentID,
			Key:       key,
			Value:     values[key],
			CreatedAt: now,
		})
	}
	return entries
}

// eventString reads a string field from event data, tolerating absence.
func eventString(data map[string]any, key string) string {
	if value, ok := data[key].(string); ok {
		return value
	}
	return ""
}

// eventInt64 reads an integer field from event data. Event data round-trips
// through JSON, so numbers may arrive as float64 or json.Number depending on
// where the event came from.
func eventInt64(data map[string]any, key string) int64 {
	switch value := data[key].(type) {
	case int64:
		return value
	case int:
		return int64(value)
	case uint64:
		return int64(value)
	case float64:
		return int64(value)
	case json.Number:
		parsed, err := value.Int64()
		if err != nil {
			return 0
		}
		return parsed
	case string:
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

var _ PaymentUseCase = (*paymentUseCase)(nil)
