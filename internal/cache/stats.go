// Package cache keeps platform statistics in Redis between settlements.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"otc-exchange/internal/events"
	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
)

const logModule = "cache"

const (
	DefaultTTL = 30 * time.Second

	invalidateTimeout = 250 * time.Millisecond
	invalidateBacklog = 256
)

// StatsCache stores one PlatformStats document per platform. Every committed record
// scoped to a platform drops that platform's entry, so readers rebuild it on the next miss.
// Drops run on a background worker; Emit never waits on Redis.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration

	pending   chan pda.Address
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewStatsCache(addr, password string, db int, ttl time.Duration) *StatsCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewStatsCacheWithClient(client, ttl)
}

func NewStatsCacheWithClient(client *redis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &StatsCache{
		client:  client,
		ttl:     ttl,
		pending: make(chan pda.Address, invalidateBacklog),
		done:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.invalidateLoop()
	return c
}

func (c *StatsCache) invalidateLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case p := <-c.pending:
			ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
			if err := c.Invalidate(ctx, p); err != nil {
				log.WithFields(log.Fields{"module": logModule, "platform": p, "err": err}).Warn("stats invalidation failed")
			}
			cancel()
		}
	}
}

func statsKey(platform pda.Address) string {
	return fmt.Sprintf("otc:stats:%s", platform)
}

func (c *StatsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close stops the invalidation worker and closes the client. Queued drops that have
// not run yet are discarded; the TTL bounds how stale those entries get.
func (c *StatsCache) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
	return c.client.Close()
}

// Get returns nil, nil on a miss.
func (c *StatsCache) Get(ctx context.Context, platform pda.Address) (*model.PlatformStats, error) {
	data, err := c.client.Get(ctx, statsKey(platform)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stats model.PlatformStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	return &stats, nil
}

func (c *StatsCache) Set(ctx context.Context, stats *model.PlatformStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	return c.client.Set(ctx, statsKey(stats.Platform), data, c.ttl).Err()
}

func (c *StatsCache) Invalidate(ctx context.Context, platform pda.Address) error {
	return c.client.Del(ctx, statsKey(platform)).Err()
}

// Emit queues a drop of the record's platform entry. A full backlog sheds the drop.
func (c *StatsCache) Emit(_ context.Context, rec events.Record) {
	if rec.Platform == nil {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.pending <- *rec.Platform:
	default:
		log.WithFields(log.Fields{"module": logModule, "platform": *rec.Platform}).Warn("stats invalidation backlog full")
	}
}
