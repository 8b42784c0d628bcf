package api

import (
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
	"otc-exchange/internal/store"
)

// ── Platforms ────────────────────────────────────────

func (s *Server) platformAddress(w http.ResponseWriter, r *http.Request) (pda.Address, bool) {
	authority, ok := pathAddr(w, r, "authority")
	if !ok {
		return pda.Zero, false
	}
	addr, _, err := s.manager.Deriver().Platform(authority)
	if err != nil {
		writeErr(w, r, err)
		return pda.Zero, false
	}
	return addr, true
}

func (s *Server) getPlatform(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.platformAddress(w, r)
	if !ok {
		return
	}
	p, err := s.store.GetPlatform(r.Context(), addr)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json200(w, p)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.platformAddress(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if s.cache != nil {
		stats, err := s.cache.Get(ctx, addr)
		if err != nil {
			log.WithFields(log.Fields{"module": logModule, "platform": addr, "err": err}).Warn("stats cache read failed")
		} else if stats != nil {
			json200(w, stats)
			return
		}
	}

	p, err := s.store.GetPlatform(ctx, addr)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	live, err := s.store.ListListings(ctx, model.ListingFilter{Platform: &addr})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	stats := toStats(p, len(live))
	if s.cache != nil {
		if err := s.cache.Set(ctx, stats); err != nil {
			log.WithFields(log.Fields{"module": logModule, "platform": addr, "err": err}).Warn("stats cache write failed")
		}
	}
	json200(w, stats)
}

func (s *Server) listListings(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.platformAddress(w, r)
	if !ok {
		return
	}
	f := model.ListingFilter{Platform: &addr, Limit: queryLimit(r, 100, 500)}
	q := r.URL.Query()
	if v := q.Get("maker"); v != "" {
		maker, err := pda.ParseAddress(v)
		if err != nil {
			jsonErr(w, 400, "invalid maker")
			return
		}
		f.Maker = &maker
	}
	if v := q.Get("status"); v != "" {
		f.Status = model.ListingStatus(v)
		if !f.Status.Valid() {
			jsonErr(w, 400, "invalid status")
			return
		}
	}
	listings, err := s.store.ListListings(r.Context(), f)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json200(w, toListingViews(listings))
}

// ── Listings ─────────────────────────────────────────

// getListing serves live listings first and falls back to the archive of retired ones.
func (s *Server) getListing(w http.ResponseWriter, r *http.Request) {
	ref, ok := listingRef(w, r)
	if !ok {
		return
	}
	addr, _, err := s.manager.Deriver().Listing(ref.Maker, ref.ID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	l, err := s.store.GetListing(r.Context(), addr)
	if errors.Is(err, store.ErrNotFound) {
		l, err = s.store.GetRetiredListing(r.Context(), addr)
	}
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json200(w, toListingView(*l))
}

func (s *Server) listFills(w http.ResponseWriter, r *http.Request) {
	ref, ok := listingRef(w, r)
	if !ok {
		return
	}
	addr, _, err := s.manager.Deriver().Listing(ref.Maker, ref.ID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	fills, err := s.store.ListFills(r.Context(), addr, queryLimit(r, 50, 200))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json200(w, toFillViews(fills))
}

func (s *Server) createListing(w http.ResponseWriter, r *http.Request) {
	authority, ok := pathAddr(w, r, "authority")
	if !ok {
		return
	}
	var req model.CreateListingReq
	if !decode(w, r, &req) {
		return
	}
	l, err := s.manager.CreateListing(r.Context(), caller(r), authority, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json201(w, toListingView(*l))
}

func (s *Server) updateListing(w http.ResponseWriter, r *http.Request) {
	ref, ok := listingRef(w, r)
	if !ok {
		return
	}
	var req model.UpdateListingReq
	if !decode(w, r, &req) {
		return
	}
	l, err := s.manager.UpdateListing(r.Context(), caller(r), ref, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json200(w, toListingView(*l))
}

func (s *Server) cancelListing(w http.ResponseWriter, r *http.Request) {
	ref, ok := listingRef(w, r)
	if !ok {
		return
	}
	res, err := s.manager.CancelListing(r.Context(), caller(r), ref)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json200(w, toReclaimView(res))
}

func (s *Server) closeExpired(w http.ResponseWriter, r *http.Request) {
	ref, ok := listingRef(w, r)
	if !ok {
		return
	}
	res, err := s.manager.CloseExpired(r.Context(), caller(r), ref)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json200(w, toReclaimView(res))
}

func (s *Server) executeSwap(w http.ResponseWriter, r *http.Request) {
	ref, ok := listingRef(w, r)
	if !ok {
		return
	}
	var req model.SwapReq
	if !decode(w, r, &req) {
		return
	}
	res, err := s.manager.ExecuteSwap(r.Context(), caller(r), ref, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json200(w, toSwapView(res))
}

// ── Profile & balances ───────────────────────────────

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	addr, _, err := s.manager.Deriver().UserProfile(caller(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	p, err := s.store.GetProfile(r.Context(), addr)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json200(w, p)
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	var req model.InitUserReq
	if !decode(w, r, &req) {
		return
	}
	p, err := s.manager.InitializeUser(r.Context(), caller(r), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json201(w, p)
}

func (s *Server) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var req model.UpdatePreferencesReq
	if !decode(w, r, &req) {
		return
	}
	p, err := s.manager.UpdatePreferences(r.Context(), caller(r), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json200(w, p)
}

func (s *Server) listBalances(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.store.ListHoldings(r.Context(), caller(r))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if holdings == nil {
		holdings = []model.Holding{}
	}
	json200(w, holdings)
}
