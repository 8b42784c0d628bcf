package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-exchange/internal/errs"
)

func newListing() *Listing {
	return &Listing{
		AmountSourceTotal:          1000,
		AmountSourceRemaining:      1000,
		AmountDestinationTotal:     2000,
		AmountDestinationRemaining: 2000,
		Status:                     ListingActive,
		ExpiresAt:                  500,
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to ListingStatus
		ok       bool
	}{
		{ListingPending, ListingActive, true},
		{ListingPending, ListingExpired, true},
		{ListingActive, ListingPartiallyFilled, true},
		{ListingActive, ListingCompleted, true},
		{ListingPartiallyFilled, ListingPartiallyFilled, true},
		{ListingPartiallyFilled, ListingCancelled, true},
		{ListingPartiallyFilled, ListingActive, false},
		{ListingActive, ListingPending, false},
		{ListingCompleted, ListingCancelled, false},
		{ListingCancelled, ListingExpired, false},
		{ListingExpired, ListingActive, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range []ListingStatus{ListingCompleted, ListingCancelled, ListingExpired} {
		assert.True(t, s.IsTerminal())
		assert.False(t, s.IsTradable())
		assert.False(t, s.CanBeCancelled())
	}
	assert.False(t, ListingPending.IsTradable())
	assert.True(t, ListingPartiallyFilled.IsTradable())
	assert.False(t, ListingStatus("OPEN").Valid())
}

func TestApplyFill(t *testing.T) {
	l := newListing()
	require.NoError(t, l.ApplyFill(500, 1000, 10))
	assert.Equal(t, ListingPartiallyFilled, l.Status)
	assert.Equal(t, uint64(500), l.AmountSourceRemaining)
	assert.Equal(t, uint64(1000), l.AmountDestinationRemaining)
	assert.Equal(t, uint32(1), l.FillCount)

	require.NoError(t, l.ApplyFill(500, 1000, 11))
	assert.Equal(t, ListingCompleted, l.Status)
	assert.Zero(t, l.AmountSourceRemaining)
	assert.Zero(t, l.AmountDestinationRemaining)

	err := l.ApplyFill(1, 1, 12)
	assert.ErrorIs(t, err, errs.ErrArithmeticUnderflow)
}

func TestApplyFillRejectsOverfill(t *testing.T) {
	l := newListing()
	err := l.ApplyFill(1001, 2000, 10)
	assert.ErrorIs(t, err, errs.ErrArithmeticUnderflow)
	assert.Equal(t, uint64(1000), l.AmountSourceRemaining)
	assert.Equal(t, ListingActive, l.Status)
}

func TestReprice(t *testing.T) {
	l := newListing()
	require.NoError(t, l.Reprice(3000, 5))
	assert.Equal(t, uint64(3000), l.AmountDestinationRemaining)

	l = newListing()
	require.NoError(t, l.ApplyFill(500, 1000, 5))
	require.NoError(t, l.Reprice(3000, 6))
	assert.Equal(t, uint64(3000), l.AmountDestinationTotal)
	assert.Equal(t, uint64(1500), l.AmountDestinationRemaining)

	l = newListing()
	require.NoError(t, l.ApplyFill(999, 1998, 5))
	err := l.Reprice(1, 6)
	assert.ErrorIs(t, err, errs.ErrInvalidCalculation)
}

func TestExpiry(t *testing.T) {
	l := newListing()
	assert.False(t, l.IsExpired(499))
	assert.True(t, l.IsExpired(500))
	assert.True(t, l.CanBeTraded(499))
	assert.False(t, l.CanBeTraded(500))

	r, err := l.Rate()
	require.NoError(t, err)
	assert.Equal(t, uint64(20_000), r)
}
