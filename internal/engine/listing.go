package engine

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"otc-exchange/internal/calc"
	"otc-exchange/internal/errs"
	"otc-exchange/internal/events"
	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
	"otc-exchange/internal/store"
	"otc-exchange/internal/validate"
)

// ── Routing ──────────────────────────────────────────

func (m *Manager) CreateListing(ctx context.Context, maker, platformAuthority pda.Address, req model.CreateListingReq) (*model.Listing, error) {
	eng, err := m.Engine(ctx, platformAuthority)
	if err != nil {
		return nil, err
	}
	return eng.CreateListing(ctx, maker, req)
}

func (m *Manager) UpdateListing(ctx context.Context, maker pda.Address, ref model.ListingRef, req model.UpdateListingReq) (*model.Listing, error) {
	eng, err := m.engineForListing(ctx, ref)
	if err != nil {
		return nil, err
	}
	return eng.UpdateListing(ctx, maker, ref, req)
}

func (m *Manager) CancelListing(ctx context.Context, maker pda.Address, ref model.ListingRef) (*model.ReclaimResult, error) {
	eng, err := m.engineForListing(ctx, ref)
	if err != nil {
		return nil, err
	}
	return eng.CancelListing(ctx, maker, ref)
}

func (m *Manager) CloseExpired(ctx context.Context, closer pda.Address, ref model.ListingRef) (*model.ReclaimResult, error) {
	eng, err := m.engineForListing(ctx, ref)
	if err != nil {
		return nil, err
	}
	return eng.CloseExpired(ctx, closer, ref)
}

// ── Create ───────────────────────────────────────────

// CreateListing validates the offer, moves the maker's source amount into a fresh
// vault and activates the listing.
func (e *PlatformEngine) CreateListing(ctx context.Context, maker pda.Address, req model.CreateListingReq) (*model.Listing, error) {
	var out *model.Listing
	err := e.submit(ctx, func(ctx context.Context) error {
		return e.m.atomically(ctx, "create_listing", func(tx store.Tx) ([]events.Record, error) {
			l, err := e.createListing(ctx, tx, maker, req)
			if err != nil {
				return nil, err
			}
			out = l
			rec := events.New(events.KindListingCreated, maker, l.CreatedAt).ForListing(l)
			rec.AmountSource = l.AmountSourceTotal
			rec.AmountDestination = l.AmountDestinationTotal
			rec = rec.With("min_fill_amount", l.MinFillAmount).With("expires_at", l.ExpiresAt)
			return []events.Record{rec}, nil
		})
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"module": logModule, "listing": out.Address, "id": out.ID, "maker": maker}).Info("listing created")
	return out, nil
}

func (e *PlatformEngine) createListing(ctx context.Context, tx store.Tx, maker pda.Address, req model.CreateListingReq) (*model.Listing, error) {
	now := e.m.clock.Now()
	p, err := e.loadPlatform(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := validate.NotPaused(p); err != nil {
		return nil, err
	}
	profile, err := e.loadProfile(ctx, tx, maker)
	if err != nil {
		return nil, err
	}

	duration := req.Duration
	if duration == 0 {
		duration = model.DefaultListingDuration
		if profile != nil && profile.DefaultListingDuration > 0 {
			duration = profile.DefaultListingDuration
		}
	}
	slippage := model.DefaultSlippageBps
	if req.MaxSlippageBps != nil {
		slippage = *req.MaxSlippageBps
	} else if profile != nil {
		slippage = profile.DefaultSlippageBps
	}

	if err := validate.Amount(req.AmountSource, p.MinTradeAmount); err != nil {
		return nil, err
	}
	if err := validate.Amount(req.AmountDestination, p.MinTradeAmount); err != nil {
		return nil, err
	}
	if err := validate.MinFillAmount(req.MinFillAmount, req.AmountSource); err != nil {
		return nil, err
	}
	if err := validate.DifferentMints(req.SourceMint, req.DestinationMint); err != nil {
		return nil, err
	}
	if err := validate.Duration(duration, p); err != nil {
		return nil, err
	}
	if err := validate.SlippageBps(slippage); err != nil {
		return nil, err
	}
	if p.WhitelistEnabled {
		for _, mint := range []pda.Address{req.SourceMint, req.DestinationMint} {
			if err := e.checkWhitelisted(ctx, tx, mint); err != nil {
				return nil, err
			}
		}
	}
	live, err := tx.CountLiveListings(ctx, p.Address, maker)
	if err != nil {
		return nil, err
	}
	if err := validate.ListingLimit(live, p.MaxListingsPerUser); err != nil {
		return nil, err
	}

	addr, bump, err := e.m.derive.Listing(maker, req.ID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Listing(ctx, addr); err == nil {
		return nil, errs.ErrListingAlreadyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	makerSrc, err := e.m.derive.Holding(maker, req.SourceMint)
	if err != nil {
		return nil, err
	}
	bal, err := balanceOrZero(ctx, tx, makerSrc)
	if err != nil {
		return nil, err
	}
	if bal < req.AmountSource {
		return nil, errs.ErrInsufficientMakerBalance.Withf("have %d, need %d", bal, req.AmountSource)
	}

	vault, vaultBump, err := e.m.derive.Vault(addr)
	if err != nil {
		return nil, err
	}
	if err := tx.Open(ctx, vault, addr, req.SourceMint); err != nil {
		return nil, err
	}
	if err := tx.Move(ctx, req.SourceMint, makerSrc, vault, maker, req.AmountSource); err != nil {
		return nil, err
	}

	l := &model.Listing{
		Address:                    addr,
		Platform:                   p.Address,
		ID:                         req.ID,
		Maker:                      maker,
		SourceMint:                 req.SourceMint,
		DestinationMint:            req.DestinationMint,
		AmountSourceTotal:          req.AmountSource,
		AmountSourceRemaining:      req.AmountSource,
		AmountDestinationTotal:     req.AmountDestination,
		AmountDestinationRemaining: req.AmountDestination,
		MinFillAmount:              req.MinFillAmount,
		MaxSlippageBps:             slippage,
		ExpiresAt:                  now + duration,
		CreatedAt:                  now,
		UpdatedAt:                  now,
		Status:                     model.ListingPending,
		Vault:                      vault,
		Bump:                       bump,
		VaultBump:                  vaultBump,
	}
	// funded; open for fills
	if err := l.Transition(model.ListingActive, now); err != nil {
		return nil, err
	}
	if err := checkVault(ctx, tx, l); err != nil {
		return nil, err
	}
	if err := tx.InsertListing(ctx, l); err != nil {
		return nil, err
	}

	p.TotalListingsCreated = calc.SaturatingAdd(p.TotalListingsCreated, 1)
	if err := tx.PutPlatform(ctx, p); err != nil {
		return nil, err
	}
	if profile != nil {
		profile.ListingsCreated = calc.SaturatingAdd(profile.ListingsCreated, 1)
		profile.ActiveListings = calc.SaturatingAdd32(profile.ActiveListings, 1)
		profile.LastActivityAt = now
		if err := tx.PutProfile(ctx, profile); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (e *PlatformEngine) checkWhitelisted(ctx context.Context, tx store.Tx, mint pda.Address) error {
	addr, _, err := e.m.derive.Whitelist(mint)
	if err != nil {
		return err
	}
	entry, err := tx.Whitelist(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return errs.ErrTokenNotWhitelisted.Withf("asset %s has no whitelist entry", mint)
	}
	if err != nil {
		return err
	}
	return validate.Whitelisted(entry, addr)
}

// checkVault enforces vault balance == remaining source.
func checkVault(ctx context.Context, tx store.Tx, l *model.Listing) error {
	bal, err := tx.BalanceOf(ctx, l.Vault)
	if err != nil {
		return err
	}
	if bal != l.AmountSourceRemaining {
		return errs.ErrVaultBalanceMismatch.Withf("vault %s holds %d, listing expects %d", l.Vault, bal, l.AmountSourceRemaining)
	}
	return nil
}

// ── Update ───────────────────────────────────────────

func (e *PlatformEngine) UpdateListing(ctx context.Context, maker pda.Address, ref model.ListingRef, req model.UpdateListingReq) (*model.Listing, error) {
	var out *model.Listing
	err := e.submit(ctx, func(ctx context.Context) error {
		return e.m.atomically(ctx, "update_listing", func(tx store.Tx) ([]events.Record, error) {
			now := e.m.clock.Now()
			p, err := e.loadPlatform(ctx, tx)
			if err != nil {
				return nil, err
			}
			if err := validate.NotPaused(p); err != nil {
				return nil, err
			}
			l, err := e.loadListing(ctx, tx, ref)
			if err != nil {
				return nil, err
			}
			if l.Maker != maker {
				return nil, errs.ErrUnauthorized
			}
			if !l.Status.IsTradable() {
				return nil, errs.ErrInvalidListingStatus
			}
			if l.IsExpired(now) {
				return nil, errs.ErrListingExpired
			}

			oldDst := l.AmountDestinationRemaining
			if req.NewAmountDestination != nil {
				if err := validate.Amount(*req.NewAmountDestination, p.MinTradeAmount); err != nil {
					return nil, err
				}
				if err := l.Reprice(*req.NewAmountDestination, now); err != nil {
					return nil, err
				}
			}
			if req.NewMinFillAmount != nil {
				if err := validate.MinFillAmount(*req.NewMinFillAmount, l.AmountSourceRemaining); err != nil {
					return nil, err
				}
				l.MinFillAmount = *req.NewMinFillAmount
			}
			if req.NewMaxSlippageBps != nil {
				if err := validate.SlippageBps(*req.NewMaxSlippageBps); err != nil {
					return nil, err
				}
				l.MaxSlippageBps = *req.NewMaxSlippageBps
			}
			if req.ExtendDuration != nil {
				if *req.ExtendDuration <= 0 {
					return nil, errs.ErrInvalidAmount.Withf("extension must be positive")
				}
				expires := l.ExpiresAt + *req.ExtendDuration
				if expires < l.ExpiresAt || expires > now+p.MaxListingDuration {
					return nil, errs.ErrDurationTooLong.Withf("new expiry %d beyond %d", expires, now+p.MaxListingDuration)
				}
				l.ExpiresAt = expires
			}
			l.UpdatedAt = now
			if err := tx.PutListing(ctx, l); err != nil {
				return nil, err
			}
			out = l

			rec := events.New(events.KindListingUpdated, maker, now).ForListing(l)
			rec.AmountDestination = l.AmountDestinationRemaining
			rec = rec.With("old_amount_destination", oldDst).
				With("min_fill_amount", l.MinFillAmount).
				With("max_slippage_bps", l.MaxSlippageBps).
				With("expires_at", l.ExpiresAt)
			return []events.Record{rec}, nil
		})
	})
	return out, err
}

// ── Cancel & expiry ──────────────────────────────────

// CancelListing returns the vault to the maker and retires the listing. It is
// allowed while the platform is paused so escrowed funds stay recoverable.
func (e *PlatformEngine) CancelListing(ctx context.Context, maker pda.Address, ref model.ListingRef) (*model.ReclaimResult, error) {
	var out *model.ReclaimResult
	err := e.submit(ctx, func(ctx context.Context) error {
		return e.m.atomically(ctx, "cancel_listing", func(tx store.Tx) ([]events.Record, error) {
			now := e.m.clock.Now()
			l, err := e.loadListing(ctx, tx, ref)
			if err != nil {
				return nil, err
			}
			if l.Maker != maker {
				return nil, errs.ErrUnauthorized
			}
			if !l.Status.CanBeCancelled() {
				return nil, errs.ErrInvalidListingStatus
			}
			res, err := e.reclaim(ctx, tx, l, model.ListingCancelled, now)
			if err != nil {
				return nil, err
			}
			profile, err := e.loadProfile(ctx, tx, l.Maker)
			if err != nil {
				return nil, err
			}
			if profile != nil {
				profile.ListingsCancelled = calc.SaturatingAdd(profile.ListingsCancelled, 1)
				profile.ActiveListings = calc.SaturatingSub32(profile.ActiveListings, 1)
				profile.LastActivityAt = now
				if err := tx.PutProfile(ctx, profile); err != nil {
					return nil, err
				}
			}
			out = res

			rec := events.New(events.KindListingCancelled, maker, now).ForListing(&res.Listing)
			rec.AmountSource = res.AmountReturned
			return []events.Record{rec.With("amount_returned", res.AmountReturned)}, nil
		})
	})
	if err == nil {
		log.WithFields(log.Fields{"module": logModule, "listing": out.Listing.Address, "returned": out.AmountReturned}).Info("listing cancelled")
	}
	return out, err
}

// CloseExpired retires a listing whose expiry has passed. Anyone may call it; the
// vault always goes back to the maker.
func (e *PlatformEngine) CloseExpired(ctx context.Context, closer pda.Address, ref model.ListingRef) (*model.ReclaimResult, error) {
	var out *model.ReclaimResult
	err := e.submit(ctx, func(ctx context.Context) error {
		return e.m.atomically(ctx, "close_expired", func(tx store.Tx) ([]events.Record, error) {
			now := e.m.clock.Now()
			l, err := e.loadListing(ctx, tx, ref)
			if err != nil {
				return nil, err
			}
			if !l.IsExpired(now) {
				return nil, errs.ErrListingNotExpired.Withf("expires at %d, now %d", l.ExpiresAt, now)
			}
			res, err := e.reclaim(ctx, tx, l, model.ListingExpired, now)
			if err != nil {
				return nil, err
			}
			profile, err := e.loadProfile(ctx, tx, l.Maker)
			if err != nil {
				return nil, err
			}
			if profile != nil {
				profile.ActiveListings = calc.SaturatingSub32(profile.ActiveListings, 1)
				if err := tx.PutProfile(ctx, profile); err != nil {
					return nil, err
				}
			}
			out = res

			rec := events.New(events.KindListingExpired, closer, now).ForListing(&res.Listing)
			rec.AmountSource = res.AmountReturned
			return []events.Record{rec.With("amount_returned", res.AmountReturned).With("closer", closer.String())}, nil
		})
	})
	if err == nil {
		log.WithFields(log.Fields{"module": logModule, "listing": out.Listing.Address, "closer": closer}).Info("expired listing closed")
	}
	return out, err
}

// reclaim drains the vault to the maker, closes it and retires the listing as status.
func (e *PlatformEngine) reclaim(ctx context.Context, tx store.Tx, l *model.Listing, status model.ListingStatus, now int64) (*model.ReclaimResult, error) {
	amount, err := tx.BalanceOf(ctx, l.Vault)
	if err != nil {
		return nil, err
	}
	if amount != l.AmountSourceRemaining {
		// the maker still gets everything in the vault
		log.WithFields(log.Fields{"module": logModule, "listing": l.Address, "vault": amount, "remaining": l.AmountSourceRemaining}).
			Error("vault balance differs from remaining amount")
	}
	if amount > 0 {
		makerSrc, err := e.openHolding(ctx, tx, l.Maker, l.SourceMint)
		if err != nil {
			return nil, err
		}
		if err := tx.Move(ctx, l.SourceMint, l.Vault, makerSrc, l.Address, amount); err != nil {
			return nil, err
		}
	}
	if err := tx.Close(ctx, l.Vault, l.Maker, l.Address); err != nil {
		return nil, err
	}
	if err := l.Transition(status, now); err != nil {
		return nil, err
	}
	l.RetiredAt = now
	if err := tx.RetireListing(ctx, l); err != nil {
		return nil, err
	}
	return &model.ReclaimResult{Listing: *l, AmountReturned: amount}, nil
}
