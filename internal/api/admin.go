package api

import (
	"net/http"

	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
)

// Governance routes name the platform by its authority; only that authority may change it.

func (s *Server) initPlatform(w http.ResponseWriter, r *http.Request) {
	var req model.InitPlatformReq
	if !decode(w, r, &req) {
		return
	}
	p, err := s.manager.InitializePlatform(r.Context(), caller(r), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json201(w, p)
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	authority, ok := pathAddr(w, r, "authority")
	if !ok {
		return
	}
	var req model.UpdateConfigReq
	if !decode(w, r, &req) {
		return
	}
	p, err := s.manager.UpdateConfig(r.Context(), caller(r), authority, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json200(w, p)
}

func (s *Server) setPaused(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authority, ok := pathAddr(w, r, "authority")
		if !ok {
			return
		}
		p, err := s.manager.SetPaused(r.Context(), caller(r), authority, paused)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		json200(w, p)
	}
}

func (s *Server) setFeeCollector(w http.ResponseWriter, r *http.Request) {
	authority, ok := pathAddr(w, r, "authority")
	if !ok {
		return
	}
	var req struct {
		FeeCollector pda.Address `json:"fee_collector"`
	}
	if !decode(w, r, &req) {
		return
	}
	p, err := s.manager.SetFeeCollector(r.Context(), caller(r), authority, req.FeeCollector)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json200(w, p)
}

func (s *Server) manageWhitelist(w http.ResponseWriter, r *http.Request) {
	authority, ok := pathAddr(w, r, "authority")
	if !ok {
		return
	}
	var req struct {
		Mint        pda.Address `json:"mint"`
		Whitelisted bool        `json:"whitelisted"`
	}
	if !decode(w, r, &req) {
		return
	}
	e, err := s.manager.ManageWhitelist(r.Context(), caller(r), authority, req.Mint, req.Whitelisted)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json200(w, e)
}

func (s *Server) faucet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner  pda.Address `json:"owner"`
		Asset  pda.Address `json:"asset"`
		Amount uint64      `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Owner.IsZero() || req.Asset.IsZero() {
		jsonErr(w, 400, "owner and asset required")
		return
	}
	h, err := s.manager.Faucet(r.Context(), req.Owner, req.Asset, req.Amount)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	json200(w, h)
}

func (s *Server) freeze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner  pda.Address `json:"owner"`
		Asset  pda.Address `json:"asset"`
		Frozen bool        `json:"frozen"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.manager.SetFrozen(r.Context(), req.Owner, req.Asset, req.Frozen); err != nil {
		writeErr(w, r, err)
		return
	}
	json200(w, map[string]bool{"frozen": req.Frozen})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	var listing *pda.Address
	if v := r.URL.Query().Get("listing"); v != "" {
		addr, err := pda.ParseAddress(v)
		if err != nil {
			jsonErr(w, 400, "invalid listing")
			return
		}
		listing = &addr
	}
	evs, err := s.store.ListEvents(r.Context(), listing, queryLimit(r, 100, 500))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if evs == nil {
		evs = []model.EventLog{}
	}
	json200(w, evs)
}
