package engine

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"otc-exchange/internal/calc"
	"otc-exchange/internal/errs"
	"otc-exchange/internal/events"
	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
	"otc-exchange/internal/store"
	"otc-exchange/internal/validate"
)

func (m *Manager) ExecuteSwap(ctx context.Context, taker pda.Address, ref model.ListingRef, req model.SwapReq) (*model.SwapResult, error) {
	eng, err := m.engineForListing(ctx, ref)
	if err != nil {
		return nil, err
	}
	return eng.ExecuteSwap(ctx, taker, ref, req)
}

// ExecuteSwap fills part or all of a listing at its remaining ratio. The taker pays
// the destination amount, of which the platform fee goes to the fee collector and
// the rest to the maker; the taker receives the source amount from the vault.
func (e *PlatformEngine) ExecuteSwap(ctx context.Context, taker pda.Address, ref model.ListingRef, req model.SwapReq) (*model.SwapResult, error) {
	var out *model.SwapResult
	err := e.submit(ctx, func(ctx context.Context) error {
		return e.m.atomically(ctx, "execute_swap", func(tx store.Tx) ([]events.Record, error) {
			res, err := e.settle(ctx, tx, taker, ref, req)
			if err != nil {
				return nil, err
			}
			out = res
			f := res.Fill
			rec := events.New(events.KindSwapExecuted, taker, f.ExecutedAt).ForListing(&res.Listing)
			rec.Taker = &taker
			rec.AmountSource = f.AmountSource
			rec.AmountDestination = f.AmountDestination
			rec.FeeAmount = f.FeeAmount
			rec = rec.With("fill_id", f.ID).
				With("is_partial", res.Listing.Status != model.ListingCompleted).
				With("remaining_source", f.SourceRemaining)
			return []events.Record{rec}, nil
		})
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"module": logModule, "listing": out.Listing.Address, "taker": taker,
		"src": out.Fill.AmountSource, "dst": out.Fill.AmountDestination, "fee": out.Fill.FeeAmount,
		"status": out.Listing.Status,
	}).Info("swap executed")
	return out, nil
}

func (e *PlatformEngine) settle(ctx context.Context, tx store.Tx, taker pda.Address, ref model.ListingRef, req model.SwapReq) (*model.SwapResult, error) {
	now := e.m.clock.Now()
	p, err := e.loadPlatform(ctx, tx)
	if err != nil {
		return nil, err
	}
	l, err := e.loadListing(ctx, tx, ref)
	if err != nil {
		return nil, err
	}

	if p.Paused {
		return nil, errs.ErrPlatformPaused
	}
	if !l.Status.IsTradable() {
		return nil, errs.ErrListingNotActive
	}
	if l.IsExpired(now) {
		return nil, errs.ErrListingExpired
	}
	if taker == l.Maker {
		return nil, errs.ErrCannotSwapOwnListing
	}

	if req.AmountSource > l.AmountSourceRemaining {
		return nil, errs.ErrSwapAmountExceedsRemaining.Withf("requested %d, remaining %d", req.AmountSource, l.AmountSourceRemaining)
	}
	if req.AmountSource < l.MinFillAmount || req.AmountSource == 0 {
		return nil, errs.ErrFillAmountTooSmall.Withf("requested %d, minimum %d", req.AmountSource, l.MinFillAmount)
	}

	src, dst, err := calc.ProportionalFill(l.AmountSourceRemaining, l.AmountDestinationRemaining, req.AmountSource)
	if err != nil {
		return nil, err
	}
	if dst == 0 {
		return nil, errs.ErrInvalidCalculation.Withf("fill of %d source units prices to zero", src)
	}
	if dst > req.MaxAmountDestination {
		return nil, errs.ErrSlippageExceeded.Withf("fill costs %d, taker accepts at most %d", dst, req.MaxAmountDestination)
	}
	if req.ExpectedRate != nil {
		if err := validate.SlippageBps(req.SlippageBps); err != nil {
			return nil, err
		}
		actual, err := calc.Rate(src, dst)
		if err != nil {
			return nil, err
		}
		ok, err := calc.WithinSlippage(*req.ExpectedRate, actual, req.SlippageBps)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errs.ErrSlippageExceeded.Withf("rate %d outside %d bps of %d", actual, req.SlippageBps, *req.ExpectedRate)
		}
	}

	fee, err := calc.Fee(dst, p.FeeBps)
	if err != nil {
		return nil, err
	}
	toMaker, err := calc.CheckedSub(dst, fee)
	if err != nil {
		return nil, err
	}

	takerDst, err := e.m.derive.Holding(taker, l.DestinationMint)
	if err != nil {
		return nil, err
	}
	bal, err := balanceOrZero(ctx, tx, takerDst)
	if err != nil {
		return nil, err
	}
	if bal < dst {
		return nil, errs.ErrInsufficientTakerBalance.Withf("have %d, need %d", bal, dst)
	}

	takerSrc, err := e.openHolding(ctx, tx, taker, l.SourceMint)
	if err != nil {
		return nil, err
	}
	makerDst, err := e.openHolding(ctx, tx, l.Maker, l.DestinationMint)
	if err != nil {
		return nil, err
	}

	// vault -> taker, signed by the listing
	if err := tx.Move(ctx, l.SourceMint, l.Vault, takerSrc, l.Address, src); err != nil {
		return nil, err
	}
	if err := tx.Move(ctx, l.DestinationMint, takerDst, makerDst, taker, toMaker); err != nil {
		return nil, err
	}
	if fee > 0 {
		feeDst, err := e.openHolding(ctx, tx, p.FeeCollector, l.DestinationMint)
		if err != nil {
			return nil, err
		}
		// a collector trading on its own platform pays the fee to itself
		if feeDst != takerDst {
			if err := tx.Move(ctx, l.DestinationMint, takerDst, feeDst, taker, fee); err != nil {
				return nil, err
			}
		}
	}

	if err := l.ApplyFill(src, dst, now); err != nil {
		return nil, err
	}
	if err := checkVault(ctx, tx, l); err != nil {
		return nil, err
	}
	completed := l.Status == model.ListingCompleted

	p.TotalSwapsExecuted = calc.SaturatingAdd(p.TotalSwapsExecuted, 1)
	if p.TotalVolumeTraded, err = p.TotalVolumeTraded.Add(dst); err != nil {
		return nil, err
	}
	if p.TotalFeesCollected, err = calc.CheckedAdd(p.TotalFeesCollected, fee); err != nil {
		return nil, err
	}
	if err := tx.PutPlatform(ctx, p); err != nil {
		return nil, err
	}
	if err := e.recordTaker(ctx, tx, taker, dst, fee, now); err != nil {
		return nil, err
	}
	if err := e.recordMaker(ctx, tx, l.Maker, toMaker, completed, now); err != nil {
		return nil, err
	}

	if completed {
		if err := tx.Close(ctx, l.Vault, l.Maker, l.Address); err != nil {
			return nil, err
		}
		l.RetiredAt = now
		if err := tx.RetireListing(ctx, l); err != nil {
			return nil, err
		}
	} else if err := tx.PutListing(ctx, l); err != nil {
		return nil, err
	}

	fill := model.Fill{
		ID:                uuid.NewString(),
		Listing:           l.Address,
		ListingID:         l.ID,
		Platform:          p.Address,
		Maker:             l.Maker,
		Taker:             taker,
		AmountSource:      src,
		AmountDestination: dst,
		FeeAmount:         fee,
		AmountToMaker:     toMaker,
		StatusAfter:       l.Status,
		SourceRemaining:   l.AmountSourceRemaining,
		ExecutedAt:        now,
	}
	if err := tx.InsertFill(ctx, &fill); err != nil {
		return nil, err
	}
	return &model.SwapResult{Fill: fill, Listing: *l}, nil
}

func (e *PlatformEngine) recordTaker(ctx context.Context, tx store.Tx, taker pda.Address, volume, fee uint64, now int64) error {
	prof, err := e.loadProfile(ctx, tx, taker)
	if err != nil || prof == nil {
		return err
	}
	prof.SwapsExecuted = calc.SaturatingAdd(prof.SwapsExecuted, 1)
	if prof.VolumeAsTaker, err = prof.VolumeAsTaker.Add(volume); err != nil {
		return err
	}
	if prof.TotalFeesPaid, err = calc.CheckedAdd(prof.TotalFeesPaid, fee); err != nil {
		return err
	}
	prof.LastActivityAt = now
	return tx.PutProfile(ctx, prof)
}

func (e *PlatformEngine) recordMaker(ctx context.Context, tx store.Tx, maker pda.Address, volume uint64, completed bool, now int64) error {
	prof, err := e.loadProfile(ctx, tx, maker)
	if err != nil || prof == nil {
		return err
	}
	prof.SwapsReceived = calc.SaturatingAdd(prof.SwapsReceived, 1)
	if prof.VolumeAsMaker, err = prof.VolumeAsMaker.Add(volume); err != nil {
		return err
	}
	if completed {
		prof.ActiveListings = calc.SaturatingSub32(prof.ActiveListings, 1)
	}
	prof.LastActivityAt = now
	return tx.PutProfile(ctx, prof)
}
