package model

import (
	"time"

	"otc-exchange/internal/calc"
	"otc-exchange/internal/pda"
)

// ── Limits ───────────────────────────────────────────

const (
	DefaultFeeBps             uint16 = 25
	DefaultListingDuration    int64  = 86_400
	MinListingDuration        int64  = 300
	MaxListingDuration        int64  = 2_592_000
	DefaultMinTradeAmount     uint64 = 1_000
	DefaultMaxListingsPerUser uint32 = 100
	DefaultSlippageBps        uint16 = 100
)

// ── Enums ────────────────────────────────────────────

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ── Domain Objects ───────────────────────────────────

// User is an API login bound to a wallet address.
type User struct {
	Address      pda.Address `json:"address"`
	PasswordHash string      `json:"-"`
	Role         Role        `json:"role"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Platform is the venue configuration and its running totals. One exists per authority.
type Platform struct {
	Address              pda.Address `json:"address"`
	Authority            pda.Address `json:"authority"`
	FeeCollector         pda.Address `json:"fee_collector"`
	FeeBps               uint16      `json:"fee_bps"`
	MinListingDuration   int64       `json:"min_listing_duration"`
	MaxListingDuration   int64       `json:"max_listing_duration"`
	MinTradeAmount       uint64      `json:"min_trade_amount"`
	MaxListingsPerUser   uint32      `json:"max_listings_per_user"`
	Paused               bool        `json:"paused"`
	WhitelistEnabled     bool        `json:"whitelist_enabled"`
	TotalListingsCreated uint64      `json:"total_listings_created"`
	TotalSwapsExecuted   uint64      `json:"total_swaps_executed"`
	TotalVolumeTraded    calc.Volume `json:"total_volume_traded"`
	TotalFeesCollected   uint64      `json:"total_fees_collected"`
	CreatedAt            int64       `json:"created_at"`
	UpdatedAt            int64       `json:"updated_at"`
	Bump                 uint8       `json:"bump"`
}

func (p *Platform) ValidDuration(d int64) bool {
	return d >= p.MinListingDuration && d <= p.MaxListingDuration
}

// PlatformStats is the cached, read-only slice of a platform shown to clients.
type PlatformStats struct {
	Platform             pda.Address `json:"platform"`
	Paused               bool        `json:"paused"`
	FeeBps               uint16      `json:"fee_bps"`
	TotalListingsCreated uint64      `json:"total_listings_created"`
	TotalSwapsExecuted   uint64      `json:"total_swaps_executed"`
	TotalVolumeTraded    calc.Volume `json:"total_volume_traded"`
	TotalFeesCollected   uint64      `json:"total_fees_collected"`
	ActiveListings       int         `json:"active_listings"`
	UpdatedAt            int64       `json:"updated_at"`
}

// UserProfile holds optional per-user statistics and listing defaults.
type UserProfile struct {
	Address                pda.Address  `json:"address"`
	User                   pda.Address  `json:"user"`
	Referrer               *pda.Address `json:"referrer,omitempty"`
	ListingsCreated        uint64       `json:"listings_created"`
	ListingsCancelled      uint64       `json:"listings_cancelled"`
	SwapsExecuted          uint64       `json:"swaps_executed"`
	SwapsReceived          uint64       `json:"swaps_received"`
	ActiveListings         uint32       `json:"active_listings"`
	VolumeAsMaker          calc.Volume  `json:"volume_as_maker"`
	VolumeAsTaker          calc.Volume  `json:"volume_as_taker"`
	TotalFeesPaid          uint64       `json:"total_fees_paid"`
	DefaultListingDuration int64        `json:"default_listing_duration"`
	DefaultSlippageBps     uint16       `json:"default_slippage_bps"`
	CreatedAt              int64        `json:"created_at"`
	LastActivityAt         int64        `json:"last_activity_at"`
	Bump                   uint8        `json:"bump"`
}

// WhitelistEntry records whether an asset may be listed while the whitelist is on.
type WhitelistEntry struct {
	Address     pda.Address `json:"address"`
	Mint        pda.Address `json:"mint"`
	Whitelisted bool        `json:"whitelisted"`
	UpdatedAt   int64       `json:"updated_at"`
	Bump        uint8       `json:"bump"`
}

// Fill is one executed swap against a listing.
type Fill struct {
	ID                string        `json:"id"`
	Listing           pda.Address   `json:"listing"`
	ListingID         uint64        `json:"listing_id"`
	Platform          pda.Address   `json:"platform"`
	Maker             pda.Address   `json:"maker"`
	Taker             pda.Address   `json:"taker"`
	AmountSource      uint64        `json:"amount_source"`
	AmountDestination uint64        `json:"amount_destination"`
	FeeAmount         uint64        `json:"fee_amount"`
	AmountToMaker     uint64        `json:"amount_to_maker"`
	StatusAfter       ListingStatus `json:"status_after"`
	SourceRemaining   uint64        `json:"source_remaining"`
	ExecutedAt        int64         `json:"executed_at"`
}

// Holding is one ledger account: an owner's balance of an asset.
type Holding struct {
	Address pda.Address `json:"address"`
	Owner   pda.Address `json:"owner"`
	Asset   pda.Address `json:"asset"`
	Balance uint64      `json:"balance"`
	Frozen  bool        `json:"frozen"`
}

type EventLog struct {
	ID        int64          `json:"id"`
	EventID   string         `json:"event_id"`
	Platform  *pda.Address   `json:"platform,omitempty"`
	Listing   *pda.Address   `json:"listing,omitempty"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// ── API Types ────────────────────────────────────────

// ListingRef names a listing by its seeds. Address, when set, must match the derived one.
type ListingRef struct {
	Maker   pda.Address  `json:"maker"`
	ID      uint64       `json:"id"`
	Address *pda.Address `json:"address,omitempty"`
}

type CreateListingReq struct {
	ID                uint64      `json:"id"`
	SourceMint        pda.Address `json:"source_mint"`
	DestinationMint   pda.Address `json:"destination_mint"`
	AmountSource      uint64      `json:"amount_source"`
	AmountDestination uint64      `json:"amount_destination"`
	MinFillAmount     uint64      `json:"min_fill_amount"`
	// Zero falls back to the maker profile default, then the platform default.
	Duration       int64   `json:"duration"`
	MaxSlippageBps *uint16 `json:"max_slippage_bps,omitempty"`
}

type UpdateListingReq struct {
	NewAmountDestination *uint64 `json:"new_amount_destination,omitempty"`
	NewMinFillAmount     *uint64 `json:"new_min_fill_amount,omitempty"`
	NewMaxSlippageBps    *uint16 `json:"new_max_slippage_bps,omitempty"`
	ExtendDuration       *int64  `json:"extend_duration,omitempty"`
}

type SwapReq struct {
	AmountSource         uint64 `json:"amount_source"`
	MaxAmountDestination uint64 `json:"max_amount_destination"`
	// When ExpectedRate is set the fill's rate (destination per source x10000)
	// must lie within SlippageBps of it.
	ExpectedRate *uint64 `json:"expected_rate,omitempty"`
	SlippageBps  uint16  `json:"slippage_bps,omitempty"`
}

type SwapResult struct {
	Fill    Fill    `json:"fill"`
	Listing Listing `json:"listing"`
}

// ReclaimResult reports a cancel or expiry closure.
type ReclaimResult struct {
	Listing        Listing `json:"listing"`
	AmountReturned uint64  `json:"amount_returned"`
}

type InitPlatformReq struct {
	FeeCollector       pda.Address `json:"fee_collector"`
	FeeBps             uint16      `json:"fee_bps"`
	MinListingDuration int64       `json:"min_listing_duration"`
	MaxListingDuration int64       `json:"max_listing_duration"`
	MinTradeAmount     uint64      `json:"min_trade_amount"`
	MaxListingsPerUser uint32      `json:"max_listings_per_user"`
}

// DefaultPlatformParams mirrors the venue defaults.
func DefaultPlatformParams(feeCollector pda.Address) InitPlatformReq {
	return InitPlatformReq{
		FeeCollector:       feeCollector,
		FeeBps:             DefaultFeeBps,
		MinListingDuration: MinListingDuration,
		MaxListingDuration: MaxListingDuration,
		MinTradeAmount:     DefaultMinTradeAmount,
		MaxListingsPerUser: DefaultMaxListingsPerUser,
	}
}

type UpdateConfigReq struct {
	FeeBps             *uint16 `json:"fee_bps,omitempty"`
	MinListingDuration *int64  `json:"min_listing_duration,omitempty"`
	MaxListingDuration *int64  `json:"max_listing_duration,omitempty"`
	MinTradeAmount     *uint64 `json:"min_trade_amount,omitempty"`
	MaxListingsPerUser *uint32 `json:"max_listings_per_user,omitempty"`
	WhitelistEnabled   *bool   `json:"whitelist_enabled,omitempty"`
}

type InitUserReq struct {
	Referrer               *pda.Address `json:"referrer,omitempty"`
	DefaultListingDuration *int64       `json:"default_listing_duration,omitempty"`
	DefaultSlippageBps     *uint16      `json:"default_slippage_bps,omitempty"`
}

type UpdatePreferencesReq struct {
	DefaultListingDuration *int64  `json:"default_listing_duration,omitempty"`
	DefaultSlippageBps     *uint16 `json:"default_slippage_bps,omitempty"`
}

// ListingFilter narrows listing queries. Zero fields match everything.
type ListingFilter struct {
	Platform *pda.Address
	Maker    *pda.Address
	Status   ListingStatus
	// ExpiredAt selects listings with expires_at <= ExpiredAt when non-zero.
	ExpiredAt int64
	Limit     int
}
