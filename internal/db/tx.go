package db

import (
	"context"
	"encoding/json"
	"time"

	"otc-exchange/internal/events"
	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
)

const forUpdate = " FOR UPDATE"

// ── Platforms ────────────────────────────────────────

func (t *pgTx) Platform(ctx context.Context, addr pda.Address) (*model.Platform, error) {
	return getPlatform(ctx, t.tx, addr, forUpdate)
}

func (t *pgTx) InsertPlatform(ctx context.Context, p *model.Platform) error {
	return exec(ctx, t.tx, insertSQL("platforms", platformCols), platformArgs(p)...)
}

func (t *pgTx) PutPlatform(ctx context.Context, p *model.Platform) error {
	return execOne(ctx, t.tx, updateSQL("platforms", platformCols), platformArgs(p)...)
}

// ── Listings ─────────────────────────────────────────

func (t *pgTx) Listing(ctx context.Context, addr pda.Address) (*model.Listing, error) {
	return getListing(ctx, t.tx, addr, forUpdate)
}

func (t *pgTx) InsertListing(ctx context.Context, l *model.Listing) error {
	return exec(ctx, t.tx, insertSQL("listings", listingCols), listingArgs(l)...)
}

func (t *pgTx) PutListing(ctx context.Context, l *model.Listing) error {
	return execOne(ctx, t.tx, updateSQL("listings", listingCols), listingArgs(l)...)
}

func (t *pgTx) RetireListing(ctx context.Context, l *model.Listing) error {
	if err := execOne(ctx, t.tx, `DELETE FROM listings WHERE address=$1`, l.Address); err != nil {
		return err
	}
	return exec(ctx, t.tx, insertSQL("retired_listings", retiredCols), append(listingArgs(l), l.RetiredAt)...)
}

func (t *pgTx) CountLiveListings(ctx context.Context, platform, maker pda.Address) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings WHERE platform=$1 AND maker=$2`, platform, maker).Scan(&n)
	return n, err
}

// ── Profiles & whitelist ─────────────────────────────

func (t *pgTx) Profile(ctx context.Context, addr pda.Address) (*model.UserProfile, error) {
	return getProfile(ctx, t.tx, addr, forUpdate)
}

func (t *pgTx) InsertProfile(ctx context.Context, p *model.UserProfile) error {
	return exec(ctx, t.tx, insertSQL("user_profiles", profileCols), profileArgs(p)...)
}

func (t *pgTx) PutProfile(ctx context.Context, p *model.UserProfile) error {
	return execOne(ctx, t.tx, updateSQL("user_profiles", profileCols), profileArgs(p)...)
}

func (t *pgTx) Whitelist(ctx context.Context, addr pda.Address) (*model.WhitelistEntry, error) {
	return getWhitelist(ctx, t.tx, addr, forUpdate)
}

func (t *pgTx) PutWhitelist(ctx context.Context, e *model.WhitelistEntry) error {
	return exec(ctx, t.tx,
		insertSQL("whitelist_entries", whitelistCols)+
			` ON CONFLICT (address) DO UPDATE SET whitelisted=EXCLUDED.whitelisted, updated_at=EXCLUDED.updated_at`,
		e.Address, e.Mint, e.Whitelisted, e.UpdatedAt, e.Bump)
}

// ── Fills & events ───────────────────────────────────

func (t *pgTx) InsertFill(ctx context.Context, f *model.Fill) error {
	return exec(ctx, t.tx, insertSQL("fills", fillCols), fillArgs(f)...)
}

func (t *pgTx) AppendEvent(ctx context.Context, rec events.Record) error {
	payload, err := rec.Payload()
	if err != nil {
		return err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return exec(ctx, t.tx,
		`INSERT INTO event_log (event_id, platform, listing, kind, payload_json, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		rec.ID, rec.Platform, rec.Listing, string(rec.Kind), b, time.Unix(rec.Timestamp, 0).UTC())
}
