// Package domain defines the payment aggregate protected by the outbox.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents where a payment sits in its lifecycle.
type PaymentStatus string

const (
	// PaymentStatusPending is the initial state, set when a payment request is issued.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusVerified means a finalized on-ledger transfer matched the request.
	PaymentStatusVerified PaymentStatus = "verified"
	// PaymentStatusProvisioned means a downstream fulfillment step completed.
	PaymentStatusProvisioned PaymentStatus = "provisioned"
	// PaymentStatusFailed means verification failed; the payment will not be fulfilled.
	PaymentStatusFailed PaymentStatus = "failed"
)

// Payment is the aggregate whose state changes are announced through the outbox.
// Status moves from pending to verified or failed exactly once, driven solely by
// outbox-dispatched handlers, then optionally to provisioned by fulfillment.
type Payment struct {
	ID             uuid.UUID
	TxSignature    string
	ReferenceKey   string
	AmountLamports int64
	Status         PaymentStatus
	FinalizedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsSettled reports whether the payment already left the pending state.
// A settled payment never transitions again from a verification handler.
func (p *Payment) IsSettled() bool {
	return p.Status != PaymentStatusPending
}

// Metadata is one key/value row attached to a payment, written on verification.
type Metadata struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	Key       string
	Value     string
	CreatedAt time.Time
}
