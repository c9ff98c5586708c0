package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateError(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		operation string
		err       error
		wantMsg   string
	}{
		{
			name:      "basic state error",
			key:       KeyKernel.Name(),
			operation: "Get",
			err:       ErrKeyNotFound,
			wantMsg:   "state error: operation=Get, key=kernel, err=key not found",
		},
		{
			name:      "with wrapped error",
			key:       KeyPrecedenceA.Name(),
			operation: "With",
			err:       ErrTypeMismatch,
			wantMsg:   "state error: operation=With, key=precedence.a, err=type mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewStateError(tt.key, tt.operation, tt.err)

			assert.Equal(t, tt.wantMsg, err.Error(), "Error message mismatch")
			assert.Equal(t, tt.key, err.Key, "Key mismatch")
			assert.Equal(t, tt.operation, err.Operation, "Operation mismatch")
			assert.True(t, errors.Is(err, tt.err), "Should unwrap to underlying error")
		})
	}
}

func TestRankingError(t *testing.T) {
	tests := []struct {
		name    string
		side    string
		pos     int
		err     error
		wantMsg string
	}{
		{
			name:    "positioned error",
			side:    "a",
			pos:     2,
			err:     ErrDuplicateObject,
			wantMsg: "ranking error: side=a, position=2, err=duplicate object",
		},
		{
			name:    "document error",
			side:    "b",
			pos:     -1,
			err:     ErrMissingRanking,
			wantMsg: "ranking error: side=b, err=missing ranking",
		},
		{
			name:    "unknown side",
			pos:     0,
			err:     ErrMalformedRanking,
			wantMsg: "ranking error: side=?, position=0, err=malformed ranking",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRankingError(tt.side, tt.pos, tt.err)

			assert.Equal(t, tt.wantMsg, err.Error())
			assert.ErrorIs(t, err, tt.err)
		})
	}

	t.Run("errors.As through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("engine: %w", NewRankingError("a", 1, ErrInvalidObjectID))

		var rankErr *RankingError
		assert.True(t, errors.As(wrapped, &rankErr))
		assert.Equal(t, "a", rankErr.Side)
		assert.Equal(t, 1, rankErr.Position)
	})
}

func TestAttributeSide(t *testing.T) {
	err := AttributeSide(NewRankingError("", 3, ErrInvalidObjectID), SideB)
	assert.Equal(t, "ranking error: side=b, position=3, err=invalid object identifier", err.Error())
	assert.ErrorIs(t, err, ErrInvalidObjectID)

	kept := NewRankingError("a", 0, ErrDuplicateObject)
	assert.Same(t, kept, AttributeSide(kept, SideB), "an attributed error keeps its side")

	plain := errors.New("plain")
	assert.Same(t, plain, AttributeSide(plain, SideA))
	assert.Nil(t, AttributeSide(nil, SideA))
}

func TestSizeLimitError(t *testing.T) {
	err := NewSizeLimitError(100, 250)

	assert.Equal(t, "universe too large: 250 objects exceeds limit of 100", err.Error())
	assert.ErrorIs(t, err, ErrUniverseTooLarge)

	var sizeErr *SizeLimitError
	require.True(t, errors.As(fmt.Errorf("reconcile: %w", err), &sizeErr))
	assert.Equal(t, 100, sizeErr.Limit)
	assert.Equal(t, 250, sizeErr.Size)
}

func TestCommonDomainErrors(t *testing.T) {
	tests := []struct {
		err     error
		message string
	}{
		{ErrInvalidState, "invalid state"},
		{ErrKeyNotFound, "key not found"},
		{ErrTypeMismatch, "type mismatch"},
		{ErrInvalidConfiguration, "invalid configuration"},
		{ErrMalformedRanking, "malformed ranking"},
		{ErrMissingRanking, "missing ranking"},
		{ErrInvalidObjectID, "invalid object identifier"},
		{ErrDuplicateObject, "duplicate object"},
		{ErrUniverseTooLarge, "universe too large"},
		{ErrDimensionMismatch, "relation dimension mismatch"},
		{ErrCyclicConsensus, "consensus cluster graph is cyclic"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error(), "Error message mismatch")
		})
	}
}
