package cache

import (
	"context"
	"crypto/sha256"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-exchange/internal/calc"
	"otc-exchange/internal/events"
	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
)

func TestStatsKey(t *testing.T) {
	p := pda.Address(sha256.Sum256([]byte("platform")))
	assert.Equal(t, "otc:stats:"+p.String(), statsKey(p))
}

// Runs against a real server when OTC_TEST_REDIS_ADDR is set.
func TestStatsCacheRoundTripAndInvalidate(t *testing.T) {
	addr := os.Getenv("OTC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("OTC_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c := NewStatsCacheWithClient(redis.NewClient(&redis.Options{Addr: addr}), time.Minute)
	defer c.Close()
	require.NoError(t, c.Ping(ctx))

	p := pda.Address(sha256.Sum256([]byte("stats-platform")))
	require.NoError(t, c.Invalidate(ctx, p))

	got, err := c.Get(ctx, p)
	require.NoError(t, err)
	assert.Nil(t, got)

	stats := &model.PlatformStats{Platform: p, FeeBps: 25, TotalSwapsExecuted: 3, TotalVolumeTraded: calc.NewVolume(6000)}
	require.NoError(t, c.Set(ctx, stats))
	got, err = c.Get(ctx, p)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(3), got.TotalSwapsExecuted)
	assert.Equal(t, "6000", got.TotalVolumeTraded.String())

	rec := events.New(events.KindSwapExecuted, p, 1)
	rec.Platform = &p
	c.Emit(ctx, rec)
	require.Eventually(t, func() bool {
		got, err := c.Get(ctx, p)
		return err == nil && got == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEmitDoesNotWaitOnRedis(t *testing.T) {
	// Nothing answers on this address, so any synchronous call would stall until its timeout.
	c := NewStatsCache("10.255.255.1:6379", "", 0, time.Minute)

	p := pda.Address(sha256.Sum256([]byte("unreachable")))
	rec := events.New(events.KindListingCreated, p, 1)
	rec.Platform = &p

	begin := time.Now()
	for i := 0; i < 4*invalidateBacklog; i++ {
		c.Emit(context.Background(), rec)
	}
	assert.Less(t, time.Since(begin), 100*time.Millisecond)

	require.NoError(t, c.Close())
	c.Emit(context.Background(), rec)
}
