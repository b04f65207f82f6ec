// Package usecase implements the webhook ingress flow: authentication,
// transfer extraction, ledger verification, and the atomic audit+outbox write.
package usecase

import (
	"context"

	ledgerDomain "github.com/allisson/ledgerhook/internal/ledger/domain"
	webhookDomain "github.com/allisson/ledgerhook/internal/webhook/domain"
)

// AuditLogRepository defines the interface for webhook AuditLog persistence operations.
type AuditLogRepository interface {
	Create(ctx context.Context, auditLog *webhookDomain.AuditLog) error
	List(ctx context.Context, offset, limit int) ([]*webhookDomain.AuditLog, error)
}

// SignatureVerifier authenticates a raw webhook body against its signature header.
type SignatureVerifier interface {
	Verify(body []byte, signature string) bool
}

// Extractor normalizes a parsed webhook payload into a transfer record.
type Extractor interface {
	Extract(payload *webhookDomain.WebhookPayload) *webhookDomain.TransferDetails
}

// LedgerVerifier confirms a transaction against the ledger at finalized commitment.
type LedgerVerifier interface {
	Verify(
		ctx context.Context,
		signature string,
		expect ledgerDomain.Expectation,
	) (*ledgerDomain.VerificationResult, error)
}

// WebhookUseCase defines the interface for webhook ingress.
type WebhookUseCase interface {
	// ProcessWebhook runs the full ingress flow for one webhook delivery.
	// Returns ErrUnauthorized for a bad signature, with no durable side effect.
	ProcessWebhook(
		ctx context.Context,
		rawBody []byte,
		signature string,
		correlationID string,
	) (*webhookDomain.IngressResult, error)

	// ListAuditLogs pages through the append-only webhook audit trail.
	ListAuditLogs(ctx context.Context, offset, limit int) ([]*webhookDomain.AuditLog, error)
}
