// Package memory is an in-process implementation of store.Store. Transactions run
// one at a time and see a private copy-on-write view until they commit.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"otc-exchange/internal/errs"
	"otc-exchange/internal/events"
	"otc-exchange/internal/ledger"
	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
	"otc-exchange/internal/store"
)

var errTxDone = errors.New("memory: transaction already finished")

type Store struct {
	writer chan struct{} // one slot, held by the open transaction
	mu     sync.RWMutex

	platforms map[pda.Address]model.Platform
	listings  map[pda.Address]model.Listing
	retired   map[pda.Address]model.Listing
	profiles  map[pda.Address]model.UserProfile
	whitelist map[pda.Address]model.WhitelistEntry
	accounts  map[pda.Address]ledger.Account
	users     map[pda.Address]model.User
	fills     []model.Fill
	events    []model.EventLog
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		writer:    make(chan struct{}, 1),
		platforms: make(map[pda.Address]model.Platform),
		listings:  make(map[pda.Address]model.Listing),
		retired:   make(map[pda.Address]model.Listing),
		profiles:  make(map[pda.Address]model.UserProfile),
		whitelist: make(map[pda.Address]model.WhitelistEntry),
		accounts:  make(map[pda.Address]ledger.Account),
		users:     make(map[pda.Address]model.User),
	}
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &tx{
		s:         s,
		platforms: newTable(s.platforms),
		listings:  newTable(s.listings),
		retired:   newTable(s.retired),
		profiles:  newTable(s.profiles),
		whitelist: newTable(s.whitelist),
		accounts:  newTable(s.accounts),
	}, nil
}

// ── Reads ────────────────────────────────────────────

func (s *Store) GetPlatform(_ context.Context, addr pda.Address) (*model.Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.platforms[addr]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListPlatforms(_ context.Context) ([]model.Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Platform, 0, len(s.platforms))
	for _, p := range s.platforms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Store) GetListing(_ context.Context, addr pda.Address) (*model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[addr]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &l, nil
}

func (s *Store) GetRetiredListing(_ context.Context, addr pda.Address) (*model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.retired[addr]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &l, nil
}

func (s *Store) ListListings(_ context.Context, f model.ListingFilter) ([]model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Listing
	for _, l := range s.listings {
		if matches(&l, f) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].Address.String() < out[j].Address.String()
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(l *model.Listing, f model.ListingFilter) bool {
	if f.Platform != nil && l.Platform != *f.Platform {
		return false
	}
	if f.Maker != nil && l.Maker != *f.Maker {
		return false
	}
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if f.ExpiredAt != 0 && l.ExpiresAt > f.ExpiredAt {
		return false
	}
	return true
}

func (s *Store) ListFills(_ context.Context, listing pda.Address, limit int) ([]model.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Fill
	for _, f := range s.fills {
		if f.Listing == listing {
			out = append(out, f)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) GetProfile(_ context.Context, addr pda.Address) (*model.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[addr]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetWhitelist(_ context.Context, addr pda.Address) (*model.WhitelistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.whitelist[addr]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (s *Store) GetHolding(_ context.Context, addr pda.Address) (*model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[addr]
	if !ok {
		return nil, store.ErrNotFound
	}
	h := toHolding(a)
	return &h, nil
}

func (s *Store) ListHoldings(_ context.Context, owner pda.Address) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Holding
	for _, a := range s.accounts {
		if a.Owner == owner {
			out = append(out, toHolding(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset.String() < out[j].Asset.String() })
	return out, nil
}

func (s *Store) ListEvents(_ context.Context, listing *pda.Address, limit int) ([]model.EventLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.EventLog
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if listing != nil && (ev.Listing == nil || *ev.Listing != *listing) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Address]; ok {
		return store.ErrDuplicateKey
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.Address] = *u
	return nil
}

func (s *Store) GetUser(_ context.Context, addr pda.Address) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[addr]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func toHolding(a ledger.Account) model.Holding {
	return model.Holding{Address: a.Address, Owner: a.Owner, Asset: a.Asset, Balance: a.Balance, Frozen: a.Frozen}
}

// ── Transaction ──────────────────────────────────────

type tx struct {
	s    *Store
	done bool

	platforms *table[model.Platform]
	listings  *table[model.Listing]
	retired   *table[model.Listing]
	profiles  *table[model.UserProfile]
	whitelist *table[model.WhitelistEntry]
	accounts  *table[ledger.Account]
	fills     []model.Fill
	events    []model.EventLog
}

func (t *tx) Commit() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.s.mu.Lock()
	t.platforms.apply()
	t.listings.apply()
	t.retired.apply()
	t.profiles.apply()
	t.whitelist.apply()
	t.accounts.apply()
	t.s.fills = append(t.s.fills, t.fills...)
	for _, ev := range t.events {
		ev.ID = int64(len(t.s.events) + 1)
		t.s.events = append(t.s.events, ev)
	}
	t.s.mu.Unlock()
	<-t.s.writer
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	<-t.s.writer
	return nil
}

func (t *tx) Platform(_ context.Context, addr pda.Address) (*model.Platform, error) {
	p, ok := t.platforms.get(addr)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *tx) InsertPlatform(_ context.Context, p *model.Platform) error {
	if _, ok := t.platforms.get(p.Address); ok {
		return store.ErrDuplicateKey
	}
	t.platforms.put(p.Address, *p)
	return nil
}

func (t *tx) PutPlatform(_ context.Context, p *model.Platform) error {
	if _, ok := t.platforms.get(p.Address); !ok {
		return store.ErrNotFound
	}
	t.platforms.put(p.Address, *p)
	return nil
}

func (t *tx) Listing(_ context.Context, addr pda.Address) (*model.Listing, error) {
	l, ok := t.listings.get(addr)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &l, nil
}

func (t *tx) InsertListing(_ context.Context, l *model.Listing) error {
	if _, ok := t.listings.get(l.Address); ok {
		return store.ErrDuplicateKey
	}
	t.listings.put(l.Address, *l)
	return nil
}

func (t *tx) PutListing(_ context.Context, l *model.Listing) error {
	if _, ok := t.listings.get(l.Address); !ok {
		return store.ErrNotFound
	}
	t.listings.put(l.Address, *l)
	return nil
}

func (t *tx) RetireListing(_ context.Context, l *model.Listing) error {
	if _, ok := t.listings.get(l.Address); !ok {
		return store.ErrNotFound
	}
	t.listings.del(l.Address)
	t.retired.put(l.Address, *l)
	return nil
}

func (t *tx) CountLiveListings(_ context.Context, platform, maker pda.Address) (int, error) {
	n := 0
	t.listings.each(func(_ pda.Address, l model.Listing) {
		if l.Platform == platform && l.Maker == maker {
			n++
		}
	})
	return n, nil
}

func (t *tx) Profile(_ context.Context, addr pda.Address) (*model.UserProfile, error) {
	p, ok := t.profiles.get(addr)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *tx) InsertProfile(_ context.Context, p *model.UserProfile) error {
	if _, ok := t.profiles.get(p.Address); ok {
		return store.ErrDuplicateKey
	}
	t.profiles.put(p.Address, *p)
	return nil
}

func (t *tx) PutProfile(_ context.Context, p *model.UserProfile) error {
	if _, ok := t.profiles.get(p.Address); !ok {
		return store.ErrNotFound
	}
	t.profiles.put(p.Address, *p)
	return nil
}

func (t *tx) Whitelist(_ context.Context, addr pda.Address) (*model.WhitelistEntry, error) {
	e, ok := t.whitelist.get(addr)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (t *tx) PutWhitelist(_ context.Context, e *model.WhitelistEntry) error {
	t.whitelist.put(e.Address, *e)
	return nil
}

func (t *tx) InsertFill(_ context.Context, f *model.Fill) error {
	t.fills = append(t.fills, *f)
	return nil
}

func (t *tx) AppendEvent(_ context.Context, rec events.Record) error {
	payload, err := rec.Payload()
	if err != nil {
		return err
	}
	t.events = append(t.events, model.EventLog{
		EventID:   rec.ID,
		Platform:  rec.Platform,
		Listing:   rec.Listing,
		Kind:      string(rec.Kind),
		Payload:   payload,
		CreatedAt: time.Unix(rec.Timestamp, 0).UTC(),
	})
	return nil
}

// ── Ledger ───────────────────────────────────────────

func (t *tx) Open(_ context.Context, account, owner, asset pda.Address) error {
	if a, ok := t.accounts.get(account); ok {
		return ledger.CheckOpen(&a, owner, asset)
	}
	t.accounts.put(account, ledger.Account{Address: account, Owner: owner, Asset: asset})
	return nil
}

func (t *tx) Move(_ context.Context, asset, from, to, authority pda.Address, amount uint64) error {
	src, ok := t.accounts.get(from)
	if !ok {
		return errs.ErrTransferFailed.Withf("source account %s not found", from)
	}
	dst, ok := t.accounts.get(to)
	if !ok {
		return errs.ErrTransferFailed.Withf("destination account %s not found", to)
	}
	if err := ledger.ApplyMove(&src, &dst, asset, authority, amount); err != nil {
		return err
	}
	t.accounts.put(from, src)
	t.accounts.put(to, dst)
	return nil
}

func (t *tx) Close(_ context.Context, account, rentDestination, authority pda.Address) error {
	a, ok := t.accounts.get(account)
	if !ok {
		return errs.ErrVaultClosureFailed.Withf("account %s not found", account)
	}
	if rentDestination.IsZero() {
		return errs.ErrVaultClosureFailed.Withf("missing rent destination")
	}
	if err := ledger.CheckClose(&a, authority); err != nil {
		return err
	}
	t.accounts.del(account)
	return nil
}

func (t *tx) BalanceOf(_ context.Context, account pda.Address) (uint64, error) {
	a, ok := t.accounts.get(account)
	if !ok {
		return 0, errs.ErrAccountNotInitialized.Withf("account %s", account)
	}
	return a.Balance, nil
}

func (t *tx) Credit(_ context.Context, account pda.Address, amount uint64) error {
	a, ok := t.accounts.get(account)
	if !ok {
		return errs.ErrAccountNotInitialized.Withf("account %s", account)
	}
	if err := ledger.ApplyCredit(&a, amount); err != nil {
		return err
	}
	t.accounts.put(account, a)
	return nil
}

func (t *tx) SetFrozen(_ context.Context, account pda.Address, frozen bool) error {
	a, ok := t.accounts.get(account)
	if !ok {
		return errs.ErrAccountNotInitialized.Withf("account %s", account)
	}
	a.Frozen = frozen
	t.accounts.put(account, a)
	return nil
}
