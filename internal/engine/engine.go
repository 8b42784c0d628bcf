package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"otc-exchange/internal/errs"
	"otc-exchange/internal/events"
	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
	"otc-exchange/internal/store"
	"otc-exchange/internal/validate"
)

const logModule = "engine"

var ErrEngineStopped = errors.New("engine stopped")

// Clock supplies the current unix time in seconds.
type Clock interface{ Now() int64 }

type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// WallClock reads the system clock.
var WallClock = ClockFunc(func() int64 { return time.Now().Unix() })

// Observer is notified after every operation, committed or not.
type Observer interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
}

// ── Manager ──────────────────────────────────────────

// Manager owns one PlatformEngine per platform and routes operations to it.
type Manager struct {
	engines map[pda.Address]*PlatformEngine
	mu      sync.RWMutex
	store   store.Store
	derive  pda.Deriver
	emit    events.Emitter
	clock   Clock
	obs     Observer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(st store.Store, derive pda.Deriver, emit events.Emitter) *Manager {
	if emit == nil {
		emit = events.NoopEmitter{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		engines: make(map[pda.Address]*PlatformEngine),
		store:   st,
		derive:  derive,
		emit:    emit,
		clock:   WallClock,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetClock replaces the time source. Call before serving operations.
func (m *Manager) SetClock(c Clock) { m.clock = c }

func (m *Manager) SetObserver(o Observer) { m.obs = o }

func (m *Manager) Deriver() pda.Deriver { return m.derive }

// Boot starts an engine for every stored platform.
func (m *Manager) Boot(ctx context.Context) error {
	platforms, err := m.store.ListPlatforms(ctx)
	if err != nil {
		return err
	}
	for _, p := range platforms {
		m.startEngine(p.Address, p.Authority)
	}
	log.WithFields(log.Fields{"module": logModule, "platforms": len(platforms)}).Info("booted platform engines")
	return nil
}

// Stop terminates every engine goroutine and waits for them to exit.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) startEngine(platform, authority pda.Address) *PlatformEngine {
	m.mu.Lock()
	defer m.mu.Unlock()
	if eng, ok := m.engines[platform]; ok {
		return eng
	}
	eng := &PlatformEngine{
		platform:  platform,
		authority: authority,
		cmdCh:     make(chan command, 64),
		m:         m,
	}
	m.engines[platform] = eng
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		eng.run(m.ctx)
	}()
	return eng
}

func (m *Manager) engineAt(ctx context.Context, platform pda.Address) (*PlatformEngine, error) {
	m.mu.RLock()
	eng := m.engines[platform]
	m.mu.RUnlock()
	if eng != nil {
		return eng, nil
	}
	p, err := m.store.GetPlatform(ctx, platform)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrPlatformNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.startEngine(p.Address, p.Authority), nil
}

// Engine returns the engine of the platform owned by authority.
func (m *Manager) Engine(ctx context.Context, authority pda.Address) (*PlatformEngine, error) {
	addr, _, err := m.derive.Platform(authority)
	if err != nil {
		return nil, err
	}
	return m.engineAt(ctx, addr)
}

// listingAddress derives the address named by ref and checks any address the caller supplied.
func (m *Manager) listingAddress(ref model.ListingRef) (pda.Address, uint8, error) {
	addr, bump, err := m.derive.Listing(ref.Maker, ref.ID)
	if err != nil {
		return pda.Zero, 0, err
	}
	if err := validate.SuppliedAddress(addr, ref.Address); err != nil {
		return pda.Zero, 0, err
	}
	return addr, bump, nil
}

// engineForListing finds the engine of the platform a live listing was created on.
func (m *Manager) engineForListing(ctx context.Context, ref model.ListingRef) (*PlatformEngine, error) {
	addr, _, err := m.listingAddress(ref)
	if err != nil {
		return nil, err
	}
	l, err := m.store.GetListing(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.engineAt(ctx, l.Platform)
}

// atomically runs fn inside one store transaction. The records fn returns are written
// to the event log in the same transaction and emitted only after commit.
func (m *Manager) atomically(ctx context.Context, op string, fn func(tx store.Tx) ([]events.Record, error)) error {
	start := time.Now()
	err := m.runTx(ctx, fn)
	if m.obs != nil {
		m.obs.ObserveOperation(op, err, time.Since(start))
	}
	if err != nil {
		entry := log.WithFields(log.Fields{"module": logModule, "op": op, "code": errs.Code(err), "err": err})
		if errs.ClassOf(err) == errs.ClassInternal {
			entry.Error("operation failed")
		} else {
			entry.Debug("operation rejected")
		}
	}
	return err
}

func (m *Manager) runTx(ctx context.Context, fn func(tx store.Tx) ([]events.Record, error)) error {
	tx, err := m.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	recs, err := fn(tx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := tx.AppendEvent(ctx, rec); err != nil {
			return fmt.Errorf("append event %s: %w", rec.Kind, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	emitCtx := context.WithoutCancel(ctx)
	for _, rec := range recs {
		m.emit.Emit(emitCtx, rec)
	}
	return nil
}

// ── PlatformEngine ───────────────────────────────────

// PlatformEngine applies the operations of one platform in arrival order.
type PlatformEngine struct {
	platform  pda.Address
	authority pda.Address
	cmdCh     chan command
	m         *Manager
}

func (e *PlatformEngine) Address() pda.Address   { return e.platform }
func (e *PlatformEngine) Authority() pda.Address { return e.authority }

func (e *PlatformEngine) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-e.cmdCh:
			cmd.exec(e)
		}
	}
}

// ── Commands ─────────────────────────────────────────

type command interface{ exec(e *PlatformEngine) }

// call wraps one operation. done is buffered so exec never blocks on a departed caller.
type call struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

func (c call) exec(e *PlatformEngine) {
	if err := c.ctx.Err(); err != nil {
		c.done <- err
		return
	}
	c.done <- c.fn(c.ctx)
}

// submit queues fn on the engine goroutine and waits for its result. An operation
// whose ctx has ended by the time the engine reaches it is skipped and reports
// ctx.Err(); one that has started always runs to completion.
func (e *PlatformEngine) submit(ctx context.Context, fn func(ctx context.Context) error) error {
	c := call{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case e.cmdCh <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.m.ctx.Done():
		return ErrEngineStopped
	}
	select {
	case err := <-c.done:
		return err
	case <-e.m.ctx.Done():
		return ErrEngineStopped
	}
}

// ── Shared loaders ───────────────────────────────────

func (e *PlatformEngine) loadPlatform(ctx context.Context, tx store.Tx) (*model.Platform, error) {
	p, err := tx.Platform(ctx, e.platform)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrPlatformNotFound
	}
	return p, err
}

// loadListing reads the live listing named by ref and checks it belongs to this platform.
func (e *PlatformEngine) loadListing(ctx context.Context, tx store.Tx, ref model.ListingRef) (*model.Listing, error) {
	addr, _, err := e.m.listingAddress(ref)
	if err != nil {
		return nil, err
	}
	l, err := tx.Listing(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	if l.Platform != e.platform {
		return nil, errs.ErrInvalidPDA.Withf("listing %s belongs to platform %s", l.Address, l.Platform)
	}
	if !pda.Verify(l.Vault, l.VaultBump, pda.VaultSeeds(l.Address), e.m.derive.Program) {
		return nil, errs.ErrInvalidPDA.Withf("vault %s does not derive from listing %s", l.Vault, l.Address)
	}
	return l, nil
}

// loadProfile returns the user's profile, or nil when the user never created one.
func (e *PlatformEngine) loadProfile(ctx context.Context, tx store.Tx, user pda.Address) (*model.UserProfile, error) {
	addr, _, err := e.m.derive.UserProfile(user)
	if err != nil {
		return nil, err
	}
	p, err := tx.Profile(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// openHolding derives and opens owner's account for asset.
func (e *PlatformEngine) openHolding(ctx context.Context, tx store.Tx, owner, asset pda.Address) (pda.Address, error) {
	acct, err := e.m.derive.Holding(owner, asset)
	if err != nil {
		return pda.Zero, err
	}
	if err := tx.Open(ctx, acct, owner, asset); err != nil {
		return pda.Zero, err
	}
	return acct, nil
}

// balanceOrZero treats a missing account as empty.
func balanceOrZero(ctx context.Context, tx store.Tx, acct pda.Address) (uint64, error) {
	bal, err := tx.BalanceOf(ctx, acct)
	if errors.Is(err, errs.ErrAccountNotInitialized) {
		return 0, nil
	}
	return bal, err
}
