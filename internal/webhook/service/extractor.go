package service

import (
	"log/slog"
	"regexp"

	webhookDomain "github.com/allisson/ledgerhook/internal/webhook/domain"
)

// referenceKeyRegex matches the ref:<token> convention in memo/description
// fields, correlating an application-side payment request to a transfer.
var referenceKeyRegex = regexp.MustCompile(`ref:([A-Za-z0-9_-]+)`)

// TransferExtractor normalizes provider payload shapes into TransferDetails.
type TransferExtractor struct {
	logger *slog.Logger
}

// NewTransferExtractor creates a new TransferExtractor.
func NewTransferExtractor(logger *slog.Logger) *TransferExtractor {
	return &TransferExtractor{logger: logger}
}

// Extract pulls a normalized transfer record out of a parsed webhook payload.
// Returns nil when there is nothing to process: a non-TRANSFER event type, no
// transfer entries, or malformed amounts. Callers must treat nil as "nothing
// to do", not an error.
func (e *TransferExtractor) Extract(payload *webhookDomain.WebhookPayload) *webhookDomain.TransferDetails {
	if payload == nil {
		return nil
	}

	if payload.Type != webhookDomain.EventTypeTransfer {
		if e.logger != nil {
			e.logger.Info("discarding webhook with unhandled event type",
				slog.String("event_type", payload.Type),
			)
		}
		return nil
	}

	referenceKey := ExtractReferenceKey(payload.Description)

	// Native transfers take precedence over token transfers.
	for _, transfer := range payload.NativeTransfers {
		amount, err := transfer.Amount.Int64()
		if err != nil || amount <= 0 {
			continue
		}
		return &webhookDomain.TransferDetails{
			Kind:           webhookDomain.TransferKindNative,
			TxSignature:    payload.Signature,
			Slot:           payload.Slot,
			AmountLamports: amount,
			Source:         transfer.FromUserAccount,
			Destination:    transfer.ToUserAccount,
			ReferenceKey:   referenceKey,
		}
	}

	for _, transfer := range payload.TokenTransfers {
		amount, err := transfer.TokenAmount.Int64()
		if err != nil || amount <= 0 {
			continue
		}
		return &webhookDomain.TransferDetails{
			Kind:           webhookDomain.TransferKindToken,
			TxSignature:    payload.Signature,
			Slot:           payload.Slot,
			AmountLamports: amount,
			Source:         transfer.FromUserAccount,
			Destination:    transfer.ToUserAccount,
			TokenMint:      transfer.Mint,
			ReferenceKey:   referenceKey,
		}
	}

	if e.logger != nil {
		e.logger.Info("webhook transfer payload contained no usable transfer",
			slog.String("tx_signature", payload.Signature),
		)
	}
	return nil
}

// ExtractReferenceKey pulls the first ref:<token> match out of a memo or
// description field. Returns "" when absent.
func ExtractReferenceKey(description string) string {
	match := referenceKeyRegex.FindStringSubmatch(description)
	if match == nil {
		return ""
	}
	return match[1]
}
