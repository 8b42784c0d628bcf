package db

import (
	"otc-exchange/internal/model"
)

// Column lists double as the scan and argument order of the functions below.

var platformCols = []string{
	"address", "authority", "fee_collector", "fee_bps", "min_listing_duration", "max_listing_duration",
	"min_trade_amount", "max_listings_per_user", "paused", "whitelist_enabled",
	"total_listings_created", "total_swaps_executed", "total_volume_traded", "total_fees_collected",
	"created_at", "updated_at", "bump",
}

func scanPlatform(row scanner) (*model.Platform, error) {
	var p model.Platform
	err := row.Scan(&p.Address, &p.Authority, &p.FeeCollector, &p.FeeBps, &p.MinListingDuration, &p.MaxListingDuration,
		(*num)(&p.MinTradeAmount), &p.MaxListingsPerUser, &p.Paused, &p.WhitelistEnabled,
		(*num)(&p.TotalListingsCreated), (*num)(&p.TotalSwapsExecuted), &p.TotalVolumeTraded, (*num)(&p.TotalFeesCollected),
		&p.CreatedAt, &p.UpdatedAt, &p.Bump)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func platformArgs(p *model.Platform) []any {
	return []any{p.Address, p.Authority, p.FeeCollector, p.FeeBps, p.MinListingDuration, p.MaxListingDuration,
		num(p.MinTradeAmount), p.MaxListingsPerUser, p.Paused, p.WhitelistEnabled,
		num(p.TotalListingsCreated), num(p.TotalSwapsExecuted), p.TotalVolumeTraded, num(p.TotalFeesCollected),
		p.CreatedAt, p.UpdatedAt, p.Bump}
}

var listingCols = []string{
	"address", "platform", "listing_id", "maker", "source_mint", "destination_mint",
	"amount_source_total", "amount_source_remaining", "amount_destination_total", "amount_destination_remaining",
	"min_fill_amount", "max_slippage_bps", "expires_at", "created_at", "updated_at",
	"status", "fill_count", "vault", "bump", "vault_bump",
}

// retiredCols extends listingCols; retired rows are keyed by a serial id since
// a listing address can be reused once its predecessor is retired.
var retiredCols = append(append([]string{}, listingCols...), "retired_at")

func listingDest(l *model.Listing) []any {
	return []any{&l.Address, &l.Platform, (*num)(&l.ID), &l.Maker, &l.SourceMint, &l.DestinationMint,
		(*num)(&l.AmountSourceTotal), (*num)(&l.AmountSourceRemaining), (*num)(&l.AmountDestinationTotal), (*num)(&l.AmountDestinationRemaining),
		(*num)(&l.MinFillAmount), &l.MaxSlippageBps, &l.ExpiresAt, &l.CreatedAt, &l.UpdatedAt,
		&l.Status, &l.FillCount, &l.Vault, &l.Bump, &l.VaultBump}
}

func scanListing(row scanner) (*model.Listing, error) {
	var l model.Listing
	if err := row.Scan(listingDest(&l)...); err != nil {
		return nil, err
	}
	return &l, nil
}

func scanRetired(row scanner) (*model.Listing, error) {
	var l model.Listing
	if err := row.Scan(append(listingDest(&l), &l.RetiredAt)...); err != nil {
		return nil, err
	}
	return &l, nil
}

func listingArgs(l *model.Listing) []any {
	return []any{l.Address, l.Platform, num(l.ID), l.Maker, l.SourceMint, l.DestinationMint,
		num(l.AmountSourceTotal), num(l.AmountSourceRemaining), num(l.AmountDestinationTotal), num(l.AmountDestinationRemaining),
		num(l.MinFillAmount), l.MaxSlippageBps, l.ExpiresAt, l.CreatedAt, l.UpdatedAt,
		string(l.Status), l.FillCount, l.Vault, l.Bump, l.VaultBump}
}

var profileCols = []string{
	"address", "user_address", "referrer", "listings_created", "listings_cancelled",
	"swaps_executed", "swaps_received", "active_listings", "volume_as_maker", "volume_as_taker",
	"total_fees_paid", "default_listing_duration", "default_slippage_bps", "created_at", "last_activity_at", "bump",
}

func scanProfile(row scanner) (*model.UserProfile, error) {
	var p model.UserProfile
	err := row.Scan(&p.Address, &p.User, nullAddr{&p.Referrer}, (*num)(&p.ListingsCreated), (*num)(&p.ListingsCancelled),
		(*num)(&p.SwapsExecuted), (*num)(&p.SwapsReceived), &p.ActiveListings, &p.VolumeAsMaker, &p.VolumeAsTaker,
		(*num)(&p.TotalFeesPaid), &p.DefaultListingDuration, &p.DefaultSlippageBps, &p.CreatedAt, &p.LastActivityAt, &p.Bump)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func profileArgs(p *model.UserProfile) []any {
	return []any{p.Address, p.User, p.Referrer, num(p.ListingsCreated), num(p.ListingsCancelled),
		num(p.SwapsExecuted), num(p.SwapsReceived), p.ActiveListings, p.VolumeAsMaker, p.VolumeAsTaker,
		num(p.TotalFeesPaid), p.DefaultListingDuration, p.DefaultSlippageBps, p.CreatedAt, p.LastActivityAt, p.Bump}
}

var whitelistCols = []string{"address", "mint", "whitelisted", "updated_at", "bump"}

func scanWhitelist(row scanner) (*model.WhitelistEntry, error) {
	var e model.WhitelistEntry
	if err := row.Scan(&e.Address, &e.Mint, &e.Whitelisted, &e.UpdatedAt, &e.Bump); err != nil {
		return nil, err
	}
	return &e, nil
}

var fillCols = []string{
	"id", "listing", "listing_id", "platform", "maker", "taker", "amount_source", "amount_destination",
	"fee_amount", "amount_to_maker", "status_after", "source_remaining", "executed_at",
}

func scanFill(row scanner) (*model.Fill, error) {
	var f model.Fill
	err := row.Scan(&f.ID, &f.Listing, (*num)(&f.ListingID), &f.Platform, &f.Maker, &f.Taker, (*num)(&f.AmountSource), (*num)(&f.AmountDestination),
		(*num)(&f.FeeAmount), (*num)(&f.AmountToMaker), &f.StatusAfter, (*num)(&f.SourceRemaining), &f.ExecutedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func fillArgs(f *model.Fill) []any {
	return []any{f.ID, f.Listing, num(f.ListingID), f.Platform, f.Maker, f.Taker, num(f.AmountSource), num(f.AmountDestination),
		num(f.FeeAmount), num(f.AmountToMaker), string(f.StatusAfter), num(f.SourceRemaining), f.ExecutedAt}
}

var accountCols = []string{"address", "owner", "asset", "balance", "frozen"}
