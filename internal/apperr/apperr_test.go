package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Is(t *testing.T) {
	errCartNotFound := New(KindNotFound, "cart not found")

	t.Run("MatchesKindSentinel", func(t *testing.T) {
		assert.True(t, errors.Is(errCartNotFound, ErrNotFound))
		assert.False(t, errors.Is(errCartNotFound, ErrConflict))
	})

	t.Run("MatchesItself", func(t *testing.T) {
		assert.True(t, errors.Is(errCartNotFound, errCartNotFound))
	})

	t.Run("DoesNotMatchOtherErrorOfSameKind", func(t *testing.T) {
		errOrderNotFound := New(KindNotFound, "order not found")
		assert.False(t, errors.Is(errCartNotFound, errOrderNotFound))
	})

	t.Run("Wrapped", func(t *testing.T) {
		wrapped := fmt.Errorf("checkout: %w", errCartNotFound)
		assert.True(t, errors.Is(wrapped, ErrNotFound))
		assert.True(t, errors.Is(wrapped, errCartNotFound))
	})
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "conflict", err: New(KindConflict, "cart already completed"), want: KindConflict},
		{name: "wrapped validation", err: fmt.Errorf("add item: %w", New(KindValidation, "bad qty")), want: KindValidation},
		{name: "plain error", err: errors.New("db down"), want: ""},
		{name: "nil", err: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_Error(t *testing.T) {
	assert.Equal(t, "cart not found", New(KindNotFound, "cart not found").Error())
	assert.Equal(t, "UNAUTHORIZED", ErrUnauthorized.Error())
}
