package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"

	"otc-exchange/internal/ledger"
	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
	"otc-exchange/internal/store"
)

// ── Platforms ────────────────────────────────────────

func getPlatform(ctx context.Context, q querier, addr pda.Address, lock string) (*model.Platform, error) {
	p, err := scanPlatform(q.QueryRowContext(ctx, selectSQL("platforms", platformCols)+` WHERE address=$1`+lock, addr))
	return p, notFound(err)
}

func (s *Store) GetPlatform(ctx context.Context, addr pda.Address) (*model.Platform, error) {
	return getPlatform(ctx, s.DB, addr, "")
}

func (s *Store) ListPlatforms(ctx context.Context) ([]model.Platform, error) {
	rows, err := s.DB.QueryContext(ctx, selectSQL("platforms", platformCols)+` ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Platform
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ── Listings ─────────────────────────────────────────

func getListing(ctx context.Context, q querier, addr pda.Address, lock string) (*model.Listing, error) {
	l, err := scanListing(q.QueryRowContext(ctx, selectSQL("listings", listingCols)+` WHERE address=$1`+lock, addr))
	return l, notFound(err)
}

func (s *Store) GetListing(ctx context.Context, addr pda.Address) (*model.Listing, error) {
	return getListing(ctx, s.DB, addr, "")
}

// GetRetiredListing returns the most recent retirement at addr.
func (s *Store) GetRetiredListing(ctx context.Context, addr pda.Address) (*model.Listing, error) {
	l, err := scanRetired(s.DB.QueryRowContext(ctx,
		selectSQL("retired_listings", retiredCols)+` WHERE address=$1 ORDER BY seq DESC LIMIT 1`, addr))
	return l, notFound(err)
}

func (s *Store) ListListings(ctx context.Context, f model.ListingFilter) ([]model.Listing, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, cond+"$"+strconv.Itoa(len(args)))
	}
	if f.Platform != nil {
		add("platform=", *f.Platform)
	}
	if f.Maker != nil {
		add("maker=", *f.Maker)
	}
	if f.Status != "" {
		add("status=", string(f.Status))
	}
	if f.ExpiredAt != 0 {
		add("expires_at<=", f.ExpiredAt)
	}
	q := selectSQL("listings", listingCols)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, address"
	if f.Limit > 0 {
		q += " LIMIT " + strconv.Itoa(f.Limit)
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// ListFills returns the latest limit fills of listing, oldest first.
func (s *Store) ListFills(ctx context.Context, listing pda.Address, limit int) ([]model.Fill, error) {
	q := selectSQL("fills", fillCols) + ` WHERE listing=$1 ORDER BY seq DESC`
	if limit > 0 {
		q += " LIMIT " + strconv.Itoa(limit)
	}
	rows, err := s.DB.QueryContext(ctx, q, listing)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Fill
	for rows.Next() {
		f, err := scanFill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ── Profiles & whitelist ─────────────────────────────

func getProfile(ctx context.Context, q querier, addr pda.Address, lock string) (*model.UserProfile, error) {
	p, err := scanProfile(q.QueryRowContext(ctx, selectSQL("user_profiles", profileCols)+` WHERE address=$1`+lock, addr))
	return p, notFound(err)
}

func (s *Store) GetProfile(ctx context.Context, addr pda.Address) (*model.UserProfile, error) {
	return getProfile(ctx, s.DB, addr, "")
}

func getWhitelist(ctx context.Context, q querier, addr pda.Address, lock string) (*model.WhitelistEntry, error) {
	e, err := scanWhitelist(q.QueryRowContext(ctx, selectSQL("whitelist_entries", whitelistCols)+` WHERE address=$1`+lock, addr))
	return e, notFound(err)
}

func (s *Store) GetWhitelist(ctx context.Context, addr pda.Address) (*model.WhitelistEntry, error) {
	return getWhitelist(ctx, s.DB, addr, "")
}

// ── Holdings ─────────────────────────────────────────

func scanAccount(row scanner) (*ledger.Account, error) {
	var a ledger.Account
	if err := row.Scan(&a.Address, &a.Owner, &a.Asset, (*num)(&a.Balance), &a.Frozen); err != nil {
		return nil, err
	}
	return &a, nil
}

func toHolding(a *ledger.Account) model.Holding {
	return model.Holding{Address: a.Address, Owner: a.Owner, Asset: a.Asset, Balance: a.Balance, Frozen: a.Frozen}
}

func (s *Store) GetHolding(ctx context.Context, addr pda.Address) (*model.Holding, error) {
	a, err := scanAccount(s.DB.QueryRowContext(ctx, selectSQL("ledger_accounts", accountCols)+` WHERE address=$1`, addr))
	if err != nil {
		return nil, notFound(err)
	}
	h := toHolding(a)
	return &h, nil
}

func (s *Store) ListHoldings(ctx context.Context, owner pda.Address) ([]model.Holding, error) {
	rows, err := s.DB.QueryContext(ctx, selectSQL("ledger_accounts", accountCols)+` WHERE owner=$1 ORDER BY asset`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Holding
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, toHolding(a))
	}
	return out, rows.Err()
}

// ── Event Log ────────────────────────────────────────

func (s *Store) ListEvents(ctx context.Context, listing *pda.Address, limit int) ([]model.EventLog, error) {
	q := `SELECT id, event_id, platform, listing, kind, payload_json, created_at FROM event_log`
	var args []any
	if listing != nil {
		q += ` WHERE listing=$1`
		args = append(args, *listing)
	}
	q += ` ORDER BY id DESC`
	if limit > 0 {
		q += " LIMIT " + strconv.Itoa(limit)
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.EventLog
	for rows.Next() {
		var e model.EventLog
		var raw []byte
		if err := rows.Scan(&e.ID, &e.EventID, nullAddr{&e.Platform}, nullAddr{&e.Listing}, &e.Kind, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(raw, &e.Payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ── Users ────────────────────────────────────────────

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO users (address, password_hash, role) VALUES ($1,$2,$3) RETURNING created_at`,
		u.Address, u.PasswordHash, string(u.Role),
	).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicateKey
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, addr pda.Address) (*model.User, error) {
	u := &model.User{}
	err := s.DB.QueryRowContext(ctx,
		`SELECT address, password_hash, role, created_at FROM users WHERE address=$1`, addr,
	).Scan(&u.Address, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return u, err
}
