// Package domain defines the inbound webhook payload shapes, the normalized
// transfer record, and the webhook audit log.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventTypeTransfer is the only provider event type this service processes.
// Other types are discarded with a log, not an error.
const EventTypeTransfer = "TRANSFER"

// NativeTransfer is a native-asset transfer as reported by the provider.
// Amounts arrive as strings or numbers depending on the provider version,
// so json.Number covers both.
type NativeTransfer struct {
	Amount          json.Number `json:"amount"`
	FromUserAccount string      `json:"fromUserAccount"`
	ToUserAccount   string      `json:"toUserAccount"`
}

// TokenTransfer is a fungible-token transfer as reported by the provider.
type TokenTransfer struct {
	TokenAmount     json.Number `json:"tokenAmount"`
	Mint            string      `json:"mint"`
	FromUserAccount string      `json:"fromUserAccount"`
	ToUserAccount   string      `json:"toUserAccount"`
}

// WebhookPayload is the recognized shape of an inbound webhook body.
type WebhookPayload struct {
	Type            string           `json:"type"`
	Signature       string           `json:"signature"`
	Timestamp       int64            `json:"timestamp"`
	Slot            uint64           `json:"slot"`
	Description     string           `json:"description"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers"`
}

// TransferKind distinguishes native-asset transfers from token transfers.
type TransferKind string

const (
	TransferKindNative TransferKind = "native"
	TransferKindToken  TransferKind = "token"
)

// TransferDetails is the normalized transfer record extracted from a webhook
// payload. The payload is only a hint: the ledger verifier recomputes amount
// and destination from on-chain balances before anything is trusted.
type TransferDetails struct {
	Kind           TransferKind
	TxSignature    string
	Slot           uint64
	AmountLamports int64
	Source         string
	Destination    string
	TokenMint      string
	ReferenceKey   string
}

// AuditLog is the append-only record of one inbound webhook attempt, processed
// or not. It never drives delivery decisions.
type AuditLog struct {
	ID          uuid.UUID
	EventType   string
	TxSignature string
	Payload     map[string]any
	Processed   bool
	Error       string
	CreatedAt   time.Time
}

// IngressResult is the structured outcome of one webhook ingress attempt.
// Processed=false with Success=true means "nothing to do", not an error.
type IngressResult struct {
	Success   bool   `json:"success"`
	Processed bool   `json:"processed"`
	Error     string `json:"error,omitempty"`
}
