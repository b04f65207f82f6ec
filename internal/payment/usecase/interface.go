// Package usecase implements the payment aggregate's business logic. Payment
// status transitions are driven exclusively by outbox-dispatched handlers, so
// the handlers here are registered with the outbox processor rather than being
// called from any HTTP surface.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
	paymentDomain "github.com/allisson/ledgerhook/internal/payment/domain"
)

// PaymentRepository defines the interface for payment persistence.
type PaymentRepository interface {
	Create(ctx context.Context, payment *paymentDomain.Payment) error
	GetByReferenceKey(ctx context.Context, referenceKey string) (*paymentDomain.Payment, error)
	GetByTxSignature(ctx context.Context, txSignature string) (*paymentDomain.Payment, error)
	UpdateStatus(
		ctx context.Context,
		id uuid.UUID,
		status paymentDomain.PaymentStatus,
		txSignature string,
		finalizedAt *time.Time,
	) error
	CreateMetadata(ctx context.Context, entries []*paymentDomain.Metadata) error
	ListMetadata(ctx context.Context, paymentID uuid.UUID) ([]*paymentDomain.Metadata, error)
}

// StatusNotifier pushes a payment's settled status to the status-stream
// collaborator. Failures are logged, never propagated: outbox completion does
// not depend on the callback succeeding.
type StatusNotifier interface {
	NotifyStatus(
		ctx context.Context,
		reference string,
		status paymentDomain.PaymentStatus,
		metadata map[string]string,
	) error
}

// PaymentUseCase defines the outbox handlers that settle payments.
type PaymentUseCase interface {
	HandlePaymentVerified(ctx context.Context, event *outboxDomain.OutboxEvent) error
	HandlePaymentFailed(ctx context.Context, event *outboxDomain.OutboxEvent) error
}
