package engine

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"otc-exchange/internal/errs"
	"otc-exchange/internal/events"
	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
	"otc-exchange/internal/store"
	"otc-exchange/internal/validate"
)

// InitializePlatform creates the platform owned by authority and starts its engine.
func (m *Manager) InitializePlatform(ctx context.Context, authority pda.Address, req model.InitPlatformReq) (*model.Platform, error) {
	if err := checkPlatformParams(req.FeeBps, req.MinListingDuration, req.MaxListingDuration, req.MinTradeAmount, req.MaxListingsPerUser); err != nil {
		return nil, err
	}
	addr, bump, err := m.derive.Platform(authority)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	p := &model.Platform{
		Address:            addr,
		Authority:          authority,
		FeeCollector:       req.FeeCollector,
		FeeBps:             req.FeeBps,
		MinListingDuration: req.MinListingDuration,
		MaxListingDuration: req.MaxListingDuration,
		MinTradeAmount:     req.MinTradeAmount,
		MaxListingsPerUser: req.MaxListingsPerUser,
		CreatedAt:          now,
		UpdatedAt:          now,
		Bump:               bump,
	}
	if p.FeeCollector.IsZero() {
		p.FeeCollector = authority
	}
	err = m.atomically(ctx, "initialize_platform", func(tx store.Tx) ([]events.Record, error) {
		if err := tx.InsertPlatform(ctx, p); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				return nil, errs.ErrPlatformAlreadyInitialized
			}
			return nil, err
		}
		rec := events.New(events.KindPlatformInitialized, authority, now)
		rec.Platform = &p.Address
		rec = rec.With("fee_bps", p.FeeBps).
			With("fee_collector", p.FeeCollector.String()).
			With("min_listing_duration", p.MinListingDuration).
			With("max_listing_duration", p.MaxListingDuration)
		return []events.Record{rec}, nil
	})
	if err != nil {
		return nil, err
	}
	m.startEngine(p.Address, p.Authority)
	log.WithFields(log.Fields{"module": logModule, "platform": p.Address, "authority": authority}).Info("platform initialized")
	return p, nil
}

func checkPlatformParams(feeBps uint16, minDur, maxDur int64, minTrade uint64, maxListings uint32) error {
	if err := validate.FeeBps(feeBps); err != nil {
		return err
	}
	if err := validate.DurationBounds(minDur, maxDur); err != nil {
		return err
	}
	if minTrade == 0 {
		return errs.ErrInvalidAmount.Withf("minimum trade amount must be positive")
	}
	if maxListings == 0 {
		return errs.ErrInvalidAmount.Withf("listing limit must be positive")
	}
	return nil
}

// Governance calls route by the platform's authority; governed checks the caller.

func (m *Manager) UpdateConfig(ctx context.Context, caller, platformAuthority pda.Address, req model.UpdateConfigReq) (*model.Platform, error) {
	eng, err := m.Engine(ctx, platformAuthority)
	if err != nil {
		return nil, err
	}
	return eng.UpdateConfig(ctx, caller, req)
}

func (m *Manager) SetPaused(ctx context.Context, caller, platformAuthority pda.Address, paused bool) (*model.Platform, error) {
	eng, err := m.Engine(ctx, platformAuthority)
	if err != nil {
		return nil, err
	}
	return eng.SetPaused(ctx, caller, paused)
}

func (m *Manager) SetFeeCollector(ctx context.Context, caller, platformAuthority, collector pda.Address) (*model.Platform, error) {
	eng, err := m.Engine(ctx, platformAuthority)
	if err != nil {
		return nil, err
	}
	return eng.SetFeeCollector(ctx, caller, collector)
}

func (m *Manager) ManageWhitelist(ctx context.Context, caller, platformAuthority, mint pda.Address, whitelisted bool) (*model.WhitelistEntry, error) {
	eng, err := m.Engine(ctx, platformAuthority)
	if err != nil {
		return nil, err
	}
	return eng.ManageWhitelist(ctx, caller, mint, whitelisted)
}

// governed runs fn against the platform after checking caller is its authority, then saves it.
func (e *PlatformEngine) governed(ctx context.Context, op string, caller pda.Address, fn func(tx store.Tx, p *model.Platform, now int64) ([]events.Record, error)) (*model.Platform, error) {
	var out *model.Platform
	err := e.submit(ctx, func(ctx context.Context) error {
		return e.m.atomically(ctx, op, func(tx store.Tx) ([]events.Record, error) {
			now := e.m.clock.Now()
			p, err := e.loadPlatform(ctx, tx)
			if err != nil {
				return nil, err
			}
			if p.Authority != caller {
				return nil, errs.ErrUnauthorized
			}
			recs, err := fn(tx, p, now)
			if err != nil {
				return nil, err
			}
			p.UpdatedAt = now
			if err := tx.PutPlatform(ctx, p); err != nil {
				return nil, err
			}
			out = p
			return recs, nil
		})
	})
	return out, err
}

// UpdateConfig applies the supplied fields. The merged configuration is validated as a whole.
func (e *PlatformEngine) UpdateConfig(ctx context.Context, caller pda.Address, req model.UpdateConfigReq) (*model.Platform, error) {
	return e.governed(ctx, "update_config", caller, func(tx store.Tx, p *model.Platform, now int64) ([]events.Record, error) {
		next := *p
		if req.FeeBps != nil {
			next.FeeBps = *req.FeeBps
		}
		if req.MinListingDuration != nil {
			next.MinListingDuration = *req.MinListingDuration
		}
		if req.MaxListingDuration != nil {
			next.MaxListingDuration = *req.MaxListingDuration
		}
		if req.MinTradeAmount != nil {
			next.MinTradeAmount = *req.MinTradeAmount
		}
		if req.MaxListingsPerUser != nil {
			next.MaxListingsPerUser = *req.MaxListingsPerUser
		}
		if req.WhitelistEnabled != nil {
			next.WhitelistEnabled = *req.WhitelistEnabled
		}
		if err := checkPlatformParams(next.FeeBps, next.MinListingDuration, next.MaxListingDuration, next.MinTradeAmount, next.MaxListingsPerUser); err != nil {
			return nil, err
		}
		*p = next

		rec := events.New(events.KindPlatformConfigUpdated, caller, now)
		rec.Platform = &p.Address
		rec = rec.With("fee_bps", p.FeeBps).
			With("min_listing_duration", p.MinListingDuration).
			With("max_listing_duration", p.MaxListingDuration).
			With("min_trade_amount", p.MinTradeAmount).
			With("max_listings_per_user", p.MaxListingsPerUser).
			With("whitelist_enabled", p.WhitelistEnabled)
		return []events.Record{rec}, nil
	})
}

// SetPaused pauses or resumes the platform. Asking for the current state is an error.
func (e *PlatformEngine) SetPaused(ctx context.Context, caller pda.Address, paused bool) (*model.Platform, error) {
	op, kind := "pause", events.KindPlatformPaused
	if !paused {
		op, kind = "resume", events.KindPlatformResumed
	}
	p, err := e.governed(ctx, op, caller, func(tx store.Tx, p *model.Platform, now int64) ([]events.Record, error) {
		if p.Paused == paused {
			if paused {
				return nil, errs.ErrPlatformPaused
			}
			return nil, errs.ErrPlatformNotPaused
		}
		p.Paused = paused
		rec := events.New(kind, caller, now)
		rec.Platform = &p.Address
		return []events.Record{rec}, nil
	})
	if err == nil {
		log.WithFields(log.Fields{"module": logModule, "platform": p.Address, "paused": paused}).Warn("platform pause state changed")
	}
	return p, err
}

func (e *PlatformEngine) SetFeeCollector(ctx context.Context, caller, collector pda.Address) (*model.Platform, error) {
	return e.governed(ctx, "set_fee_collector", caller, func(tx store.Tx, p *model.Platform, now int64) ([]events.Record, error) {
		if collector.IsZero() {
			return nil, errs.ErrInvalidPDA.Withf("fee collector must be set")
		}
		old := p.FeeCollector
		p.FeeCollector = collector
		rec := events.New(events.KindFeeCollectorUpdated, caller, now)
		rec.Platform = &p.Address
		rec = rec.With("old_fee_collector", old.String()).With("new_fee_collector", collector.String())
		return []events.Record{rec}, nil
	})
}

// ManageWhitelist creates or flips the whitelist entry of mint.
func (e *PlatformEngine) ManageWhitelist(ctx context.Context, caller, mint pda.Address, whitelisted bool) (*model.WhitelistEntry, error) {
	var out *model.WhitelistEntry
	_, err := e.governed(ctx, "manage_whitelist", caller, func(tx store.Tx, p *model.Platform, now int64) ([]events.Record, error) {
		addr, bump, err := e.m.derive.Whitelist(mint)
		if err != nil {
			return nil, err
		}
		entry := &model.WhitelistEntry{Address: addr, Mint: mint, Whitelisted: whitelisted, UpdatedAt: now, Bump: bump}
		if err := tx.PutWhitelist(ctx, entry); err != nil {
			return nil, err
		}
		out = entry
		rec := events.New(events.KindWhitelistUpdated, caller, now)
		rec.Platform = &p.Address
		rec = rec.With("mint", mint.String()).With("whitelisted", whitelisted)
		return []events.Record{rec}, nil
	})
	return out, err
}
