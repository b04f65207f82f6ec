package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	t.Run("wraps error with context", func(t *testing.T) {
		err := Wrap(ErrNotFound, "payment lookup")
		assert.Error(t, err)
		assert.True(t, Is(err, ErrNotFound))
		assert.Equal(t, "payment lookup: not found", err.Error())
	})

	t.Run("returns nil for nil error", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, "context"))
	})

	t.Run("preserves chain through multiple wraps", func(t *testing.T) {
		err := Wrap(Wrap(ErrConflict, "inner"), "outer")
		assert.True(t, Is(err, ErrConflict))
	})
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("outbox insert: %w", ErrIntegrityViolation)
	assert.True(t, Is(err, ErrIntegrityViolation))
	assert.False(t, Is(err, ErrNotFound))
}

func TestNew(t *testing.T) {
	err := New("boom")
	assert.EqualError(t, err, "boom")
}
