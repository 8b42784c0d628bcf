package memory

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-exchange/internal/errs"
	"otc-exchange/internal/events"
	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
	"otc-exchange/internal/store"
)

func addr(s string) pda.Address { return pda.Address(sha256.Sum256([]byte(s))) }

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Open(ctx, addr("acct"), addr("alice"), addr("usdc")))
	require.NoError(t, tx.Credit(ctx, addr("acct"), 50))
	require.NoError(t, tx.InsertPlatform(ctx, &model.Platform{Address: addr("p")}))
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback())

	_, err = s.GetHolding(ctx, addr("acct"))
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetPlatform(ctx, addr("p"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCommitAppliesWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	usdc := addr("usdc")

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Open(ctx, addr("a"), addr("alice"), usdc))
	require.NoError(t, tx.Open(ctx, addr("b"), addr("bob"), usdc))
	require.NoError(t, tx.Credit(ctx, addr("a"), 100))
	require.NoError(t, tx.Move(ctx, usdc, addr("a"), addr("b"), addr("alice"), 30))

	bal, err := tx.BalanceOf(ctx, addr("b"))
	require.NoError(t, err)
	assert.Equal(t, uint64(30), bal)

	// not visible to readers before commit
	_, err = s.GetHolding(ctx, addr("a"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, tx.AppendEvent(ctx, events.New(events.KindListingCreated, addr("alice"), 1)))
	require.NoError(t, tx.Commit())
	assert.Error(t, tx.Commit())

	h, err := s.GetHolding(ctx, addr("a"))
	require.NoError(t, err)
	assert.Equal(t, uint64(70), h.Balance)

	hs, err := s.ListHoldings(ctx, addr("bob"))
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, uint64(30), hs[0].Balance)

	evs, err := s.ListEvents(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "listing.created", evs[0].Kind)
	assert.Equal(t, int64(1), evs[0].ID)
}

func TestLedgerRulesInsideTx(t *testing.T) {
	ctx := context.Background()
	s := New()
	usdc := addr("usdc")

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, tx.Open(ctx, addr("a"), addr("alice"), usdc))
	require.NoError(t, tx.Open(ctx, addr("a"), addr("alice"), usdc))
	assert.ErrorIs(t, tx.Open(ctx, addr("a"), addr("bob"), usdc), errs.ErrTransferFailed)

	require.NoError(t, tx.Open(ctx, addr("b"), addr("bob"), usdc))
	assert.ErrorIs(t, tx.Move(ctx, usdc, addr("a"), addr("b"), addr("alice"), 1), errs.ErrTransferFailed)
	assert.ErrorIs(t, tx.Move(ctx, usdc, addr("a"), addr("missing"), addr("alice"), 0), errs.ErrTransferFailed)

	require.NoError(t, tx.Credit(ctx, addr("a"), 5))
	require.NoError(t, tx.SetFrozen(ctx, addr("b"), true))
	assert.ErrorIs(t, tx.Move(ctx, usdc, addr("a"), addr("b"), addr("alice"), 1), errs.ErrTransferFailed)

	assert.ErrorIs(t, tx.Close(ctx, addr("a"), addr("alice"), addr("alice")), errs.ErrVaultClosureFailed)
	assert.NoError(t, tx.Close(ctx, addr("b"), addr("bob"), addr("bob")))
	_, err = tx.BalanceOf(ctx, addr("b"))
	assert.ErrorIs(t, err, errs.ErrAccountNotInitialized)
}

func TestRetireListing(t *testing.T) {
	ctx := context.Background()
	s := New()
	maker := addr("maker")
	platform, other := addr("platform"), addr("other-platform")
	l := &model.Listing{Address: addr("l1"), Platform: platform, Maker: maker, Status: model.ListingActive}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertListing(ctx, l))
	assert.ErrorIs(t, tx.InsertListing(ctx, l), store.ErrDuplicateKey)
	require.NoError(t, tx.InsertListing(ctx, &model.Listing{Address: addr("l2"), Platform: platform, Maker: maker}))
	require.NoError(t, tx.InsertListing(ctx, &model.Listing{Address: addr("l3"), Platform: other, Maker: maker}))
	n, err := tx.CountLiveListings(ctx, platform, maker)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = tx.CountLiveListings(ctx, other, maker)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	l.Status = model.ListingCancelled
	require.NoError(t, tx.RetireListing(ctx, l))
	n, err = tx.CountLiveListings(ctx, platform, maker)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, tx.Commit())

	_, err = s.GetListing(ctx, l.Address)
	assert.ErrorIs(t, err, store.ErrNotFound)
	got, err := s.GetRetiredListing(ctx, l.Address)
	require.NoError(t, err)
	assert.Equal(t, model.ListingCancelled, got.Status)

	live, err := s.ListListings(ctx, model.ListingFilter{Maker: &maker})
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := &model.User{Address: addr("alice"), PasswordHash: "x", Role: model.RoleUser}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.ErrorIs(t, s.CreateUser(ctx, u), store.ErrDuplicateKey)
	got, err := s.GetUser(ctx, u.Address)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, got.Role)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestBeginHonoursContextWhileWaiting(t *testing.T) {
	s := New()
	held, err := s.Begin(context.Background())
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Begin(cancelled)
	assert.ErrorIs(t, err, context.Canceled)

	waiting, cancelWait := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelWait()
	_, err = s.Begin(waiting)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, held.Rollback())
	next, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, next.Rollback())
}
