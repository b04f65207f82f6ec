package repository

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	outboxDomain "github.com/allisson/ledgerhook/internal/outbox/domain"
)

func TestDecodeEventDataKeepsLargeAmountsExact(t *testing.T) {
	// 2^53+1 is not representable as float64; a plain unmarshal into
	// map[string]any would round it to 2^53.
	event := &outboxDomain.OutboxEvent{
		EventData: map[string]any{
			"reference_key":   "pay_42",
			"amount_lamports": int64(9007199254740993),
		},
	}

	eventData, _, err := marshalEventJSON(event)
	require.NoError(t, err)

	decoded, err := decodeEventData(eventData)
	require.NoError(t, err)

	amount, ok := decoded["amount_lamports"].(json.Number)
	require.True(t, ok)
	parsed, err := amount.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), parsed)

	assert.Equal(t, "pay_42", decoded["reference_key"])
}

func TestDecodeEventDataRejectsMalformedPayload(t *testing.T) {
	_, err := decodeEventData([]byte(`{"amount_lamports":`))
	assert.Error(t, err)
}
