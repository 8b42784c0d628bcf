package events

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"

	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
)

func TestFanoutDeliversToAllSinks(t *testing.T) {
	var got []Kind
	sink := EmitterFunc(func(_ context.Context, rec Record) { got = append(got, rec.Kind) })
	bad := EmitterFunc(func(context.Context, Record) { panic("boom") })

	f := NewFanout(sink, bad)
	f.Add(sink)
	f.Emit(context.Background(), New(KindListingCreated, pda.Zero, 1))

	assert.Equal(t, []Kind{KindListingCreated, KindListingCreated}, got)
}

func TestForListing(t *testing.T) {
	l := &model.Listing{
		Address: pda.Address(sha256.Sum256([]byte("l"))),
		Maker:   pda.Address(sha256.Sum256([]byte("m"))),
		ID:      9,
		Status:  model.ListingActive,
	}
	rec := New(KindListingCreated, l.Maker, 5).ForListing(l).With("k", 1)
	assert.Equal(t, l.Address, *rec.Listing)
	assert.Equal(t, l.Maker, *rec.Maker)
	assert.Equal(t, uint64(9), rec.ListingID)
	assert.Equal(t, model.ListingActive, rec.Status)
	assert.Equal(t, 1, rec.Attrs["k"])
	assert.NotEmpty(t, rec.ID)
}
