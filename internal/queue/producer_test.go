package queue

import (
	"crypto/sha256"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-exchange/internal/events"
	"otc-exchange/internal/pda"
)

func addr(s string) pda.Address { return pda.Address(sha256.Sum256([]byte(s))) }

func TestMessageKeys(t *testing.T) {
	actor, platform, listing := addr("actor"), addr("platform"), addr("listing")

	rec := events.New(events.KindSwapExecuted, actor, 1_700_000_000)
	rec.Platform, rec.Listing = &platform, &listing
	rec.AmountSource = 500

	msg, err := messageFor(rec)
	require.NoError(t, err)
	assert.Equal(t, listing.String(), string(msg.Key))
	assert.Equal(t, int64(1_700_000_000), msg.Time.Unix())
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "swap.executed", string(msg.Headers[0].Value))
	assert.Equal(t, rec.ID, string(msg.Headers[1].Value))

	var decoded events.Record
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, uint64(500), decoded.AmountSource)

	rec.Listing = nil
	msg, err = messageFor(rec)
	require.NoError(t, err)
	assert.Equal(t, platform.String(), string(msg.Key))

	rec.Platform = nil
	msg, err = messageFor(rec)
	require.NoError(t, err)
	assert.Equal(t, actor.String(), string(msg.Key))
}
