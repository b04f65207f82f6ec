package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	webhookDomain "github.com/allisson/ledgerhook/internal/webhook/domain"
)

func TestExtract(t *testing.T) {
	extractor := NewTransferExtractor(nil)

	t.Run("native transfer with reference key", func(t *testing.T) {
		payload := &webhookDomain.WebhookPayload{
			Type:        webhookDomain.EventTypeTransfer,
			Signature:   "sigA",
			Slot:        1234,
			Description: "payment ref:pay_42 confirmed",
			NativeTransfers: []webhookDomain.NativeTransfer{
				{Amount: json.Number("1000000"), FromUserAccount: "SourceAcc", ToUserAccount: "DestX"},
			},
		}

		transfer := extractor.Extract(payload)

		require.NotNil(t, transfer)
		assert.Equal(t, webhookDomain.TransferKindNative, transfer.Kind)
		assert.Equal(t, "sigA", transfer.TxSignature)
		assert.Equal(t, uint64(1234), transfer.Slot)
		assert.Equal(t, int64(1_000_000), transfer.AmountLamports)
		assert.Equal(t, "SourceAcc", transfer.Source)
		assert.Equal(t, "DestX", transfer.Destination)
		assert.Equal(t, "pay_42", transfer.ReferenceKey)
	})

	t.Run("token transfer", func(t *testing.T) {
		payload := &webhookDomain.WebhookPayload{
			Type:      webhookDomain.EventTypeTransfer,
			Signature: "sigB",
			TokenTransfers: []webhookDomain.TokenTransfer{
				{TokenAmount: json.Number("500"), Mint: "MintAcc", ToUserAccount: "DestY"},
			},
		}

		transfer := extractor.Extract(payload)

		require.NotNil(t, transfer)
		assert.Equal(t, webhookDomain.TransferKindToken, transfer.Kind)
		assert.Equal(t, int64(500), transfer.AmountLamports)
		assert.Equal(t, "MintAcc", transfer.TokenMint)
		assert.Empty(t, transfer.ReferenceKey)
	})

	t.Run("native transfers take precedence over token transfers", func(t *testing.T) {
		payload := &webhookDomain.WebhookPayload{
			Type:      webhookDomain.EventTypeTransfer,
			Signature: "sigC",
			NativeTransfers: []webhookDomain.NativeTransfer{
				{Amount: json.Number("100"), ToUserAccount: "DestNative"},
			},
			TokenTransfers: []webhookDomain.TokenTransfer{
				{TokenAmount: json.Number("200"), ToUserAccount: "DestToken"},
			},
		}

		transfer := extractor.Extract(payload)

		require.NotNil(t, transfer)
		assert.Equal(t, webhookDomain.TransferKindNative, transfer.Kind)
		assert.Equal(t, "DestNative", transfer.Destination)
	})

	t.Run("non-transfer event type is discarded", func(t *testing.T) {
		payload := &webhookDomain.WebhookPayload{
			Type:      "NFT_SALE",
			Signature: "sigD",
			NativeTransfers: []webhookDomain.NativeTransfer{
				{Amount: json.Number("100"), ToUserAccount: "DestX"},
			},
		}

		assert.Nil(t, extractor.Extract(payload))
	})

	t.Run("malformed amount yields nothing to process", func(t *testing.T) {
		payload := &webhookDomain.WebhookPayload{
			Type:      webhookDomain.EventTypeTransfer,
			Signature: "sigE",
			NativeTransfers: []webhookDomain.NativeTransfer{
				{Amount: json.Number("not-a-number"), ToUserAccount: "DestX"},
			},
		}

		assert.Nil(t, extractor.Extract(payload))
	})

	t.Run("zero and negative amounts are skipped", func(t *testing.T) {
		payload := &webhookDomain.WebhookPayload{
			Type:      webhookDomain.EventTypeTransfer,
			Signature: "sigF",
			NativeTransfers: []webhookDomain.NativeTransfer{
				{Amount: json.Number("0"), ToUserAccount: "DestX"},
				{Amount: json.Number("-5"), ToUserAccount: "DestY"},
				{Amount: json.Number("250"), ToUserAccount: "DestZ"},
			},
		}

		transfer := extractor.Extract(payload)

		require.NotNil(t, transfer)
		assert.Equal(t, int64(250), transfer.AmountLamports)
		assert.Equal(t, "DestZ", transfer.Destination)
	})

	t.Run("no transfers at all", func(t *testing.T) {
		payload := &webhookDomain.WebhookPayload{
			Type:      webhookDomain.EventTypeTransfer,
			Signature: "sigG",
		}

		assert.Nil(t, extractor.Extract(payload))
	})

	t.Run("nil payload", func(t *testing.T) {
		assert.Nil(t, extractor.Extract(nil))
	})
}

func TestExtractReferenceKey(t *testing.T) {
	tests := []struct {
		description string
		want        string
	}{
		{"ref:pay_42", "pay_42"},
		{"payment ref:abc-123_XYZ done", "abc-123_XYZ"},
		{"ref:first ref:second", "first"},
		{"no reference here", ""},
		{"ref:", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractReferenceKey(tt.description), tt.description)
	}
}
