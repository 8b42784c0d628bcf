package api

import (
	"strconv"

	"github.com/shopspring/decimal"

	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
)

// Prices are destination units per source unit, in base units, and never feed settlement.
const pricePlaces = 8

func dec(n uint64) decimal.Decimal {
	d, _ := decimal.NewFromString(strconv.FormatUint(n, 10))
	return d
}

func ratio(num, den uint64) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return dec(num).DivRound(dec(den), pricePlaces)
}

type listingView struct {
	model.Listing
	Price          string `json:"price"`
	RemainingPrice string `json:"remaining_price"`
	FilledPercent  string `json:"filled_percent"`
}

func toListingView(l model.Listing) listingView {
	filled := decimal.Zero
	if l.AmountSourceTotal > 0 {
		filled = dec(l.Filled()).Mul(decimal.NewFromInt(100)).DivRound(dec(l.AmountSourceTotal), 2)
	}
	return listingView{
		Listing:        l,
		Price:          ratio(l.AmountDestinationTotal, l.AmountSourceTotal).String(),
		RemainingPrice: ratio(l.AmountDestinationRemaining, l.AmountSourceRemaining).String(),
		FilledPercent:  filled.StringFixed(2),
	}
}

func toListingViews(ls []model.Listing) []listingView {
	out := make([]listingView, len(ls))
	for i, l := range ls {
		out[i] = toListingView(l)
	}
	return out
}

type fillView struct {
	model.Fill
	Price string `json:"price"`
}

func toFillViews(fs []model.Fill) []fillView {
	out := make([]fillView, len(fs))
	for i, f := range fs {
		out[i] = fillView{Fill: f, Price: ratio(f.AmountDestination, f.AmountSource).String()}
	}
	return out
}

type reclaimView struct {
	Listing        listingView `json:"listing"`
	AmountReturned uint64      `json:"amount_returned"`
}

func toReclaimView(r *model.ReclaimResult) reclaimView {
	return reclaimView{Listing: toListingView(r.Listing), AmountReturned: r.AmountReturned}
}

type swapView struct {
	Fill    fillView    `json:"fill"`
	Listing listingView `json:"listing"`
}

func toSwapView(r *model.SwapResult) swapView {
	return swapView{Fill: toFillViews([]model.Fill{r.Fill})[0], Listing: toListingView(r.Listing)}
}

func toStats(p *model.Platform, active int) *model.PlatformStats {
	return &model.PlatformStats{
		Platform:             p.Address,
		Paused:               p.Paused,
		FeeBps:               p.FeeBps,
		TotalListingsCreated: p.TotalListingsCreated,
		TotalSwapsExecuted:   p.TotalSwapsExecuted,
		TotalVolumeTraded:    p.TotalVolumeTraded,
		TotalFeesCollected:   p.TotalFeesCollected,
		ActiveListings:       active,
		UpdatedAt:            p.UpdatedAt,
	}
}

type userView struct {
	Address pda.Address `json:"address"`
	Role    model.Role  `json:"role"`
}
