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

// Profiles are not platform scoped, so these operations run directly on the store.

func checkProfileDefaults(duration int64, slippage uint16) error {
	if duration < model.MinListingDuration {
		return errs.ErrDurationTooShort.Withf("default duration %ds below %ds", duration, model.MinListingDuration)
	}
	if duration > model.MaxListingDuration {
		return errs.ErrDurationTooLong.Withf("default duration %ds above %ds", duration, model.MaxListingDuration)
	}
	return validate.SlippageBps(slippage)
}

func (m *Manager) InitializeUser(ctx context.Context, user pda.Address, req model.InitUserReq) (*model.UserProfile, error) {
	duration, slippage := model.DefaultListingDuration, model.DefaultSlippageBps
	if req.DefaultListingDuration != nil {
		duration = *req.DefaultListingDuration
	}
	if req.DefaultSlippageBps != nil {
		slippage = *req.DefaultSlippageBps
	}
	if err := checkProfileDefaults(duration, slippage); err != nil {
		return nil, err
	}
	if req.Referrer != nil && *req.Referrer == user {
		return nil, errs.ErrInvalidReferrer
	}
	addr, bump, err := m.derive.UserProfile(user)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	prof := &model.UserProfile{
		Address:                addr,
		User:                   user,
		Referrer:               req.Referrer,
		DefaultListingDuration: duration,
		DefaultSlippageBps:     slippage,
		CreatedAt:              now,
		LastActivityAt:         now,
		Bump:                   bump,
	}
	err = m.atomically(ctx, "initialize_user", func(tx store.Tx) ([]events.Record, error) {
		if err := tx.InsertProfile(ctx, prof); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				return nil, errs.ErrUserProfileAlreadyExists
			}
			return nil, err
		}
		rec := events.New(events.KindUserProfileCreated, user, now)
		if req.Referrer != nil {
			rec = rec.With("referrer", req.Referrer.String())
		}
		return []events.Record{rec}, nil
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"module": logModule, "user": user}).Info("user profile created")
	return prof, nil
}

func (m *Manager) UpdatePreferences(ctx context.Context, user pda.Address, req model.UpdatePreferencesReq) (*model.UserProfile, error) {
	addr, _, err := m.derive.UserProfile(user)
	if err != nil {
		return nil, err
	}
	var out *model.UserProfile
	err = m.atomically(ctx, "update_preferences", func(tx store.Tx) ([]events.Record, error) {
		prof, err := tx.Profile(ctx, addr)
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.ErrUserProfileNotFound
		}
		if err != nil {
			return nil, err
		}
		if prof.User != user {
			return nil, errs.ErrUnauthorized
		}
		if req.DefaultListingDuration != nil {
			prof.DefaultListingDuration = *req.DefaultListingDuration
		}
		if req.DefaultSlippageBps != nil {
			prof.DefaultSlippageBps = *req.DefaultSlippageBps
		}
		if err := checkProfileDefaults(prof.DefaultListingDuration, prof.DefaultSlippageBps); err != nil {
			return nil, err
		}
		now := m.clock.Now()
		prof.LastActivityAt = now
		if err := tx.PutProfile(ctx, prof); err != nil {
			return nil, err
		}
		out = prof
		rec := events.New(events.KindUserPreferences, user, now).
			With("default_listing_duration", prof.DefaultListingDuration).
			With("default_slippage_bps", prof.DefaultSlippageBps)
		return []events.Record{rec}, nil
	})
	return out, err
}

// ── Operator supply ──────────────────────────────────

// Faucet opens owner's holding of asset if needed and mints amount into it.
func (m *Manager) Faucet(ctx context.Context, owner, asset pda.Address, amount uint64) (*model.Holding, error) {
	if amount == 0 {
		return nil, errs.ErrInvalidAmount
	}
	acct, err := m.derive.Holding(owner, asset)
	if err != nil {
		return nil, err
	}
	var bal uint64
	err = m.atomically(ctx, "faucet", func(tx store.Tx) ([]events.Record, error) {
		if err := tx.Open(ctx, acct, owner, asset); err != nil {
			return nil, err
		}
		if err := tx.Credit(ctx, acct, amount); err != nil {
			return nil, err
		}
		bal, err = tx.BalanceOf(ctx, acct)
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"module": logModule, "owner": owner, "asset": asset, "amount": amount}).Info("faucet credit")
	return &model.Holding{Address: acct, Owner: owner, Asset: asset, Balance: bal}, nil
}

// SetFrozen freezes or thaws owner's holding of asset. A frozen holding can neither send nor receive.
func (m *Manager) SetFrozen(ctx context.Context, owner, asset pda.Address, frozen bool) error {
	acct, err := m.derive.Holding(owner, asset)
	if err != nil {
		return err
	}
	return m.atomically(ctx, "set_frozen", func(tx store.Tx) ([]events.Record, error) {
		return nil, tx.SetFrozen(ctx, acct, frozen)
	})
}
