package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/ledgerhook/internal/database"
	apperrors "github.com/allisson/ledgerhook/internal/errors"
	ledgerDomain "github.com/allisson/ledgerhook/internal/ledger/domain"
	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
	outboxUseCase "github.com/allisson/ledgerhook/internal/outbox/usecase"
	webhookDomain "github.com/allisson/ledgerhook/internal/webhook/domain"
)

// webhookUseCase implements the WebhookUseCase interface.
//
// The ingress path is synchronous only through signature verification, ledger
// verification, and the atomic write of the audit row plus outbox events.
// Downstream delivery is fully decoupled: a slow consumer never blocks webhook
// acknowledgment.
type webhookUseCase struct {
	txManager         database.TxManager
	auditRepo         AuditLogRepository
	signatureVerifier SignatureVerifier
	extractor         Extractor
	ledgerVerifier    LedgerVerifier
	publisher         outboxUseCase.Publisher
	logger            *slog.Logger
}

// NewWebhookUseCase creates a new WebhookUseCase.
func NewWebhookUseCase(
	txManager database.TxManager,
	auditRepo AuditLogRepository,
	signatureVerifier SignatureVerifier,
	extractor Extractor,
	ledgerVerifier LedgerVerifier,
	publisher outboxUseCase.Publisher,
	logger *slog.Logger,
) WebhookUseCase {
	return &webhookUseCase{
		txManager:         txManager,
		auditRepo:         auditRepo,
		signatureVerifier: signatureVerifier,
		extractor:         extractor,
		ledgerVerifier:    ledgerVerifier,
		publisher:         publisher,
		logger:            logger,
	}
}

// ProcessWebhook authenticates, parses, verifies, and durably records one
// webhook delivery. A forged signature is rejected before any durable effect:
// not even an audit row is written for unverified content.
func (w *webhookUseCase) ProcessWebhook(
	ctx context.Context,
	rawBody []byte,
	signature string,
	correlationID string,
) (*webhookDomain.IngressResult, error) {
	if !w.signatureVerifier.Verify(rawBody, signature) {
		return nil, apperrors.Wrap(apperrors.ErrUnauthorized, "webhook signature mismatch")
	}

	var payload webhookDomain.WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		// Authenticated but unparseable: record the attempt, acknowledge
		// the request as "nothing to do".
		if auditErr := w.writeAudit(ctx, &payload, false, "malformed payload: "+err.Error()); auditErr != nil {
			return nil, auditErr
		}
		return &webhookDomain.IngressResult{Success: true, Processed: false, Error: "malformed payload"}, nil
	}

	transfer := w.extractor.Extract(&payload)
	if transfer == nil {
		if auditErr := w.writeAudit(ctx, &payload, false, "no processable transfer"); auditErr != nil {
			return nil, auditErr
		}
		return &webhookDomain.IngressResult{Success: true, Processed: false}, nil
	}

	// The webhook asserts amount and destination; the ledger decides.
	verification, err := w.ledgerVerifier.Verify(ctx, transfer.TxSignature, ledgerDomain.Expectation{
		AmountLamports: transfer.AmountLamports,
		Destination:    transfer.Destination,
		ReferenceKey:   transfer.ReferenceKey,
	})
	if err != nil {
		return nil, err
	}

	events := w.buildEvents(&payload, transfer, verification, correlationID)

	// The audit row and the outbox events commit as one unit.
	err = w.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := w.writeAudit(txCtx, &payload, true, ""); err != nil {
			return err
		}
		_, err := w.publisher.PublishBatch(txCtx, events)
		return err
	})
	if err != nil {
		return nil, err
	}

	if w.logger != nil {
		w.logger.Info("webhook processed",
			slog.String("tx_signature", transfer.TxSignature),
			slog.String("reference_key", transfer.ReferenceKey),
			slog.Bool("verified", verification.IsValid),
			slog.String("verification_status", string(verification.Status)),
		)
	}

	return &webhookDomain.IngressResult{Success: true, Processed: true}, nil
}

// ListAuditLogs pages through the webhook audit trail.
func (w *webhookUseCase) ListAuditLogs(
	ctx context.Context,
	offset, limit int,
) ([]*webhookDomain.AuditLog, error) {
	return w.auditRepo.List(ctx, offset, limit)
}

func (w *webhookUseCase) writeAudit(
	ctx context.Context,
	payload *webhookDomain.WebhookPayload,
	processed bool,
	errorMessage string,
) error {
	var payloadMap map[string]any
	if payload.Type != "" || payload.Signature != "" {
		raw, err := json.Marshal(payload)
		if err != nil {
			return apperrors.Wrap(err, "failed to serialize webhook payload for audit")
		}
		if err := json.Unmarshal(raw, &payloadMap); err != nil {
			return apperrors.Wrap(err, "failed to serialize webhook payload for audit")
		}
	}

	return w.auditRepo.Create(ctx, &webhookDomain.AuditLog{
		ID:          uuid.Must(uuid.NewV7()),
		EventType:   payload.Type,
		TxSignature: payload.Signature,
		Payload:     payloadMap,
		Processed:   processed,
		Error:       errorMessage,
		CreatedAt:   time.Now().UTC(),
	})
}

// buildEvents constructs the outbox events for one processed webhook: the
// audit-grade webhook_received and transaction_processed events, plus the
// payment outcome event decided by the ledger verification.
func (w *webhookUseCase) buildEvents(
	payload *webhookDomain.WebhookPayload,
	transfer *webhookDomain.TransferDetails,
	verification *ledgerDomain.VerificationResult,
	correlationID string,
) []*outboxDomain.PublishRequest {
	paymentAggregateID := transfer.ReferenceKey
	if paymentAggregateID == "" {
		paymentAggregateID = transfer.TxSignature
	}

	events := []*outboxDomain.PublishRequest{
		{
			EventType:     outboxDomain.EventTypeWebhookReceived,
			AggregateType: "webhook",
			AggregateID:   transfer.TxSignature,
			CorrelationID: correlationID,
			EventData: map[string]any{
				"event_type":    payload.Type,
				"tx_signature":  transfer.TxSignature,
				"slot":          transfer.Slot,
				"reference_key": transfer.ReferenceKey,
			},
		},
		{
			EventType:     outboxDomain.EventTypeTransactionProcessed,
			AggregateType: "transaction",
			AggregateID:   transfer.TxSignature,
			CorrelationID: correlationID,
			EventData: map[string]any{
				"tx_signature":        transfer.TxSignature,
				"verification_status": string(verification.Status),
				"amount_lamports":     verification.AmountLamports,
				"destination":         verification.Destination,
			},
		},
	}

	if verification.IsValid {
		events = append(events, &outboxDomain.PublishRequest{
			EventType:     outboxDomain.EventTypePaymentVerified,
			AggregateType: "payment",
			AggregateID:   paymentAggregateID,
			CorrelationID: correlationID,
			EventData: map[string]any{
				"reference_key":   transfer.ReferenceKey,
				"tx_signature":    transfer.TxSignature,
				"amount_lamports": verification.AmountLamports,
				"destination":     verification.Destination,
				"slot":            verification.Slot,
			},
		})
		return events
	}

	events = append(events, &outboxDomain.PublishRequest{
		EventType:     outboxDomain.EventTypePaymentFailed,
		AggregateType: "payment",
		AggregateID:   paymentAggregateID,
		CorrelationID: correlationID,
		EventData: map[string]any{
			"reference_key":       transfer.ReferenceKey,
			"tx_signature":        transfer.TxSignature,
			"verification_status": string(verification.Status),
			"failure_reason":      verification.FailureReason,
		},
	})
	return events
}
