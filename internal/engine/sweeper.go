package engine

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
)

// Sweeper closes expired listings on behalf of a keeper so escrow does not sit
// idle until the maker comes back.
type Sweeper struct {
	m        *Manager
	keeper   pda.Address
	interval time.Duration
	batch    int
}

func NewSweeper(m *Manager, keeper pda.Address, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{m: m, keeper: keeper, interval: interval, batch: 100}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log.WithFields(log.Fields{"module": logModule, "keeper": s.keeper, "interval": s.interval}).Info("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				log.WithFields(log.Fields{"module": logModule, "err": err}).Warn("sweep failed")
			}
		}
	}
}

// SweepOnce closes up to one batch of expired listings and reports how many it closed.
// Listings that fail to close are left for the next pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.m.clock.Now()
	expired, err := s.m.store.ListListings(ctx, model.ListingFilter{ExpiredAt: now, Limit: s.batch})
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, l := range expired {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		addr := l.Address
		_, err := s.m.CloseExpired(ctx, s.keeper, model.ListingRef{Maker: l.Maker, ID: l.ID, Address: &addr})
		if err != nil {
			log.WithFields(log.Fields{"module": logModule, "listing": l.Address, "err": err}).Warn("could not close expired listing")
			continue
		}
		closed++
	}
	if closed > 0 {
		log.WithFields(log.Fields{"module": logModule, "closed": closed}).Info("expired listings swept")
	}
	return closed, nil
}
