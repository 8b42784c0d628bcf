package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-exchange/internal/engine"
	"otc-exchange/internal/metrics"
	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
	"otc-exchange/internal/store/memory"
	"otc-exchange/internal/ws"
)

func addr(label string) pda.Address { return pda.Address(sha256.Sum256([]byte(label))) }

var (
	admin  = addr("admin")
	admin2 = addr("admin-2")
	maker  = addr("maker")
	taker  = addr("taker")
	assetA = addr("asset-a")
	assetB = addr("asset-b")
)

type mapCache struct {
	mu   sync.Mutex
	m    map[pda.Address]model.PlatformStats
	sets int
}

func (c *mapCache) Get(_ context.Context, p pda.Address) (*model.PlatformStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.m[p]; ok {
		return &s, nil
	}
	return nil, nil
}

func (c *mapCache) Set(_ context.Context, s *model.PlatformStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[s.Platform] = *s
	c.sets++
	return nil
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
	cache   *mapCache
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	st := memory.New()
	m := metrics.New()
	mgr := engine.NewManager(st, pda.NewDeriver(addr("program")), nil)
	mgr.SetObserver(m)
	t.Cleanup(mgr.Stop)
	cache := &mapCache{m: map[pda.Address]model.PlatformStats{}}
	srv := NewServer(st, mgr, ws.NewHub(), "test-secret-at-least-32-characters!").
		WithCache(cache).
		WithMetrics(m).
		WithAdmins(func(a pda.Address) bool { return a == admin || a == admin2 }).
		WithAccessLog(false)
	return &testAPI{t: t, handler: srv.Router(), cache: cache}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) register(who pda.Address) string {
	a.t.Helper()
	rr := a.do(http.MethodPost, "/api/register", "", map[string]string{"address": who.String(), "password": "hunter22"})
	require.Equal(a.t, http.StatusOK, rr.Code, rr.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(a.t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out.Token
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
}

func TestAuthFlow(t *testing.T) {
	a := newTestAPI(t)
	a.register(maker)

	rr := a.do(http.MethodPost, "/api/register", "", map[string]string{"address": maker.String(), "password": "hunter22"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = a.do(http.MethodPost, "/api/login", "", map[string]string{"address": maker.String(), "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = a.do(http.MethodPost, "/api/login", "", map[string]string{"address": maker.String(), "password": "hunter22"})
	require.Equal(t, http.StatusOK, rr.Code)
	var login struct {
		Token string   `json:"token"`
		User  userView `json:"user"`
	}
	decodeBody(t, rr, &login)
	assert.Equal(t, model.RoleUser, login.User.Role)

	rr = a.do(http.MethodGet, "/api/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var me userView
	decodeBody(t, rr, &me)
	assert.Equal(t, maker, me.Address)

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/me", "garbage", nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/api/admin/faucet", login.Token, map[string]any{}).Code)
}

func TestListingLifecycleOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	adminTok := a.register(admin)
	makerTok := a.register(maker)
	takerTok := a.register(taker)

	rr := a.do(http.MethodPost, "/api/admin/platform", adminTok, model.DefaultPlatformParams(admin))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	fund := func(owner, asset pda.Address, amount uint64) {
		rr := a.do(http.MethodPost, "/api/admin/faucet", adminTok, map[string]any{
			"owner": owner.String(), "asset": asset.String(), "amount": amount})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
	fund(maker, assetA, 1000)
	fund(taker, assetB, 2000)

	rr = a.do(http.MethodPost, "/api/platforms/"+admin.String()+"/listings", makerTok, map[string]any{
		"id": 1, "source_mint": assetA.String(), "destination_mint": assetB.String(),
		"amount_source": 1000, "amount_destination": 2000, "min_fill_amount": 100, "duration": 3600,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created listingView
	decodeBody(t, rr, &created)
	assert.Equal(t, "2", created.Price)
	assert.Equal(t, "0.00", created.FilledPercent)

	listingPath := "/api/listings/" + maker.String() + "/1"

	rr = a.do(http.MethodPost, listingPath+"/swap", makerTok, map[string]any{"amount_source": 500, "max_amount_destination": 1000})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var e map[string]string
	decodeBody(t, rr, &e)
	assert.Equal(t, "CannotSwapOwnListing", e["code"])

	rr = a.do(http.MethodPost, listingPath+"/swap", takerTok, map[string]any{"amount_source": 500, "max_amount_destination": 1000})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var swap swapView
	decodeBody(t, rr, &swap)
	assert.Equal(t, uint64(2), swap.Fill.FeeAmount)
	assert.Equal(t, uint64(998), swap.Fill.AmountToMaker)
	assert.Equal(t, "2", swap.Fill.Price)
	assert.Equal(t, "50.00", swap.Listing.FilledPercent)

	rr = a.do(http.MethodGet, listingPath+"/fills", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var fills []fillView
	decodeBody(t, rr, &fills)
	require.Len(t, fills, 1)
	assert.Equal(t, taker, fills[0].Taker)

	rr = a.do(http.MethodGet, "/api/balances", takerTok, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var holdings []model.Holding
	decodeBody(t, rr, &holdings)
	balances := map[pda.Address]uint64{}
	for _, h := range holdings {
		balances[h.Asset] = h.Balance
	}
	assert.Equal(t, uint64(500), balances[assetA])
	assert.Equal(t, uint64(1000), balances[assetB])

	statsPath := "/api/platforms/" + admin.String() + "/stats"
	rr = a.do(http.MethodGet, statsPath, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats model.PlatformStats
	decodeBody(t, rr, &stats)
	assert.Equal(t, uint64(1), stats.TotalSwapsExecuted)
	assert.Equal(t, 1, stats.ActiveListings)
	assert.Equal(t, 1, a.cache.sets)
	a.do(http.MethodGet, statsPath, "", nil)
	assert.Equal(t, 1, a.cache.sets)

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodDelete, listingPath, takerTok, nil).Code)

	rr = a.do(http.MethodDelete, listingPath, makerTok, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var reclaim reclaimView
	decodeBody(t, rr, &reclaim)
	assert.Equal(t, uint64(500), reclaim.AmountReturned)
	assert.Equal(t, model.ListingCancelled, reclaim.Listing.Status)

	// Retired listings stay readable.
	rr = a.do(http.MethodGet, listingPath, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var retired listingView
	decodeBody(t, rr, &retired)
	assert.Equal(t, model.ListingCancelled, retired.Status)

	rr = a.do(http.MethodGet, "/api/admin/events?limit=10", adminTok, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var evs []model.EventLog
	decodeBody(t, rr, &evs)
	assert.NotEmpty(t, evs)

	rr = a.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `otc_engine_operations_total{code="ok",op="execute_swap"} 1`)
}

func TestRequestValidation(t *testing.T) {
	a := newTestAPI(t)
	tok := a.register(maker)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/listings/not-an-address/1", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/listings/"+maker.String()+"/x", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/listings/"+maker.String()+"/9", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/platforms/"+admin.String(), "", nil).Code)
	assert.Equal(t, http.StatusBadRequest,
		a.do(http.MethodGet, "/api/platforms/"+admin.String()+"/listings?status=Bogus", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/profile", tok, nil).Code)

	rr := a.do(http.MethodPost, "/api/profile", tok, map[string]any{"default_slippage_bps": 50})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = a.do(http.MethodPatch, "/api/profile", tok, map[string]any{"default_slippage_bps": 5000})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestGovernanceRequiresPlatformAuthority(t *testing.T) {
	a := newTestAPI(t)
	adminTok := a.register(admin)
	otherTok := a.register(admin2)

	rr := a.do(http.MethodPost, "/api/admin/platform", adminTok, model.DefaultPlatformParams(admin))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	base := "/api/admin/platforms/" + admin.String()
	rr = a.do(http.MethodPost, base+"/pause", otherTok, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	var e map[string]string
	decodeBody(t, rr, &e)
	assert.Equal(t, "UnauthorizedAuthority", e["code"])

	fee := 100
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPatch, base+"/config", otherTok, map[string]any{"fee_bps": fee}).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, base+"/whitelist", otherTok,
		map[string]any{"mint": assetA.String(), "whitelisted": true}).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/api/admin/platforms/"+admin2.String()+"/pause", otherTok, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/admin/platforms/bogus/pause", adminTok, nil).Code)

	rr = a.do(http.MethodPost, base+"/pause", adminTok, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var p model.Platform
	decodeBody(t, rr, &p)
	assert.True(t, p.Paused)

	rr = a.do(http.MethodPatch, base+"/config", adminTok, map[string]any{"fee_bps": fee})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decodeBody(t, rr, &p)
	assert.Equal(t, uint16(100), p.FeeBps)
}
