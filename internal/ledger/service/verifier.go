package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/allisson/ledgerhook/internal/ledger/domain"
	"github.com/allisson/ledgerhook/internal/validation"
)

// RPCGateway defines the ledger node operations the verifier depends on.
type RPCGateway interface {
	GetTransaction(ctx context.Context, signature string) (*domain.TransactionDetail, error)
	GetHealth(ctx context.Context) error
	AverageResponseTime() time.Duration
}

// TransactionVerifier confirms transactions against the ledger at finalized
// commitment. The webhook payload is only a hint; the ledger is the source
// of truth for amount and destination.
type TransactionVerifier struct {
	rpc    RPCGateway
	logger *slog.Logger
}

// NewTransactionVerifier creates a new TransactionVerifier.
func NewTransactionVerifier(rpc RPCGateway, logger *slog.Logger) *TransactionVerifier {
	return &TransactionVerifier{
		rpc:    rpc,
		logger: logger,
	}
}

// Verify checks a transaction signature against the ledger and the caller's
// expectations. Ordinary verification failures come back as a result with
// IsValid=false; only unexpected I/O or parse errors return a non-nil error.
func (v *TransactionVerifier) Verify(
	ctx context.Context,
	signature string,
	expect domain.Expectation,
) (*domain.VerificationResult, error) {
	// Malformed signatures are rejected without any network call.
	if !validation.IsValidTxSignature(signature) {
		return &domain.VerificationResult{
			Status:        domain.VerificationStatusInvalidSignature,
			Signature:     signature,
			FailureReason: "malformed transaction signature",
		}, nil
	}

	tx, err := v.rpc.GetTransaction(ctx, signature)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return &domain.VerificationResult{
			Status:        domain.VerificationStatusNotFound,
			Signature:     signature,
			FailureReason: "transaction not found at finalized commitment",
		}, nil
	}

	if tx.Err != nil {
		return &domain.VerificationResult{
			Status:        domain.VerificationStatusFailedOnChain,
			Signature:     signature,
			Slot:          tx.Slot,
			FailureReason: fmt.Sprintf("transaction failed on chain: %s", *tx.Err),
		}, nil
	}

	amount, destination := detectTransfer(tx)

	result := &domain.VerificationResult{
		Signature:      signature,
		Slot:           tx.Slot,
		AmountLamports: amount,
		Destination:    destination,
		Metadata: map[string]string{
			"slot": fmt.Sprintf("%d", tx.Slot),
			"fee":  fmt.Sprintf("%d", tx.Fee),
		},
	}
	if expect.ReferenceKey != "" {
		result.Metadata["reference_key"] = expect.ReferenceKey
	}

	if expect.AmountLamports > 0 && amount != expect.AmountLamports {
		result.Status = domain.VerificationStatusAmountMismatch
		result.FailureReason = fmt.Sprintf(
			"amount mismatch: expected %d lamports, ledger shows %d",
			expect.AmountLamports, amount,
		)
		return result, nil
	}

	if expect.Destination != "" && destination != expect.Destination {
		result.Status = domain.VerificationStatusDestinationMismatch
		result.FailureReason = fmt.Sprintf(
			"destination mismatch: expected %s, ledger shows %s",
			expect.Destination, destination,
		)
		return result, nil
	}

	result.IsValid = true
	result.Status = domain.VerificationStatusFinalized
	return result, nil
}

// Health reports ledger connectivity and average RPC response time.
func (v *TransactionVerifier) Health(ctx context.Context) *domain.HealthStatus {
	err := v.rpc.GetHealth(ctx)
	if err != nil && v.logger != nil {
		v.logger.Warn("ledger health check failed", slog.Any("error", err))
	}
	return &domain.HealthStatus{
		Healthy:         err == nil,
		AvgResponseTime: v.rpc.AverageResponseTime(),
	}
}

// detectTransfer derives the delivered amount and destination account from the
// transaction's pre/post balances: the first account whose balance increased.
// Fields asserted by the webhook payload are deliberately ignored here.
func detectTransfer(tx *domain.TransactionDetail) (int64, string) {
	for i := range tx.PostBalances {
		if i >= len(tx.PreBalances) || i >= len(tx.AccountKeys) {
			break
		}
		if tx.PostBalances[i] > tx.PreBalances[i] {
			return int64(tx.PostBalances[i] - tx.PreBalances[i]), tx.AccountKeys[i]
		}
	}
	return 0, ""
}
