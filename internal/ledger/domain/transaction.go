// Package domain defines the core ledger domain entities and types.
package domain

import "time"

// CommitmentFinalized is the strongest finality level the ledger offers.
// Verification only ever queries at this level: a transaction that is
// "confirmed" but not finalized is treated identically to not found, as a
// defense against chain-reorganization double-spend.
const CommitmentFinalized = "finalized"

// TransactionDetail is a finalized transaction as reported by the ledger node.
type TransactionDetail struct {
	Signature    string
	Slot         uint64
	BlockTime    *time.Time
	Fee          uint64
	Err          *string
	AccountKeys  []string
	PreBalances  []uint64
	PostBalances []uint64
}

// VerificationStatus classifies the outcome of a transaction verification.
type VerificationStatus string

const (
	VerificationStatusFinalized           VerificationStatus = "finalized"
	VerificationStatusInvalidSignature    VerificationStatus = "invalid_signature"
	VerificationStatusNotFound            VerificationStatus = "not_found"
	VerificationStatusFailedOnChain       VerificationStatus = "failed_on_chain"
	VerificationStatusAmountMismatch      VerificationStatus = "amount_mismatch"
	VerificationStatusDestinationMismatch VerificationStatus = "destination_mismatch"
)

// Expectation carries the caller-supplied values a verified transaction must match.
// Zero values mean "not supplied": an expectation that is present and does not
// match is a hard failure, with no tolerance threshold.
type Expectation struct {
	AmountLamports int64
	Destination    string
	ReferenceKey   string
}

// VerificationResult is the structured outcome of a verification. Ordinary
// verification failures are expressed here, never as errors; errors are
// reserved for unexpected I/O or parse problems.
type VerificationResult struct {
	IsValid        bool
	Status         VerificationStatus
	Signature      string
	AmountLamports int64
	Destination    string
	Slot           uint64
	FailureReason  string
	Metadata       map[string]string
}

// HealthStatus reports ledger node connectivity for the health endpoint.
type HealthStatus struct {
	Healthy         bool
	AvgResponseTime time.Duration
}
