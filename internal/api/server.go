package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"otc-exchange/internal/engine"
	"otc-exchange/internal/errs"
	"otc-exchange/internal/metrics"
	"otc-exchange/internal/model"
	"otc-exchange/internal/pda"
	"otc-exchange/internal/store"
	"otc-exchange/internal/ws"
)

const logModule = "api"

// StatsCache holds platform stats between settlements. Get returns nil, nil on a miss.
type StatsCache interface {
	Get(ctx context.Context, platform pda.Address) (*model.PlatformStats, error)
	Set(ctx context.Context, stats *model.PlatformStats) error
}

type Server struct {
	store     store.Reader
	manager   *engine.Manager
	hub       *ws.Hub
	secret    []byte
	cache     StatsCache
	metrics   *metrics.Metrics
	isAdmin   func(pda.Address) bool
	accessLog bool
}

func NewServer(st store.Reader, mgr *engine.Manager, hub *ws.Hub, secret string) *Server {
	return &Server{
		store:     st,
		manager:   mgr,
		hub:       hub,
		secret:    []byte(secret),
		isAdmin:   func(pda.Address) bool { return false },
		accessLog: true,
	}
}

func (s *Server) WithCache(c StatsCache) *Server { s.cache = c; return s }

func (s *Server) WithMetrics(m *metrics.Metrics) *Server { s.metrics = m; return s }

// WithAdmins decides which registering addresses receive the admin role.
func (s *Server) WithAdmins(fn func(pda.Address) bool) *Server { s.isAdmin = fn; return s }

func (s *Server) WithAccessLog(on bool) *Server { s.accessLog = on; return s }

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if s.accessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(corsMiddleware)

	// Health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json200(w, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// WebSocket sits outside the timeout middleware; the connection outlives the request.
	r.Get("/ws", s.hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		// Auth (public)
		r.Post("/api/register", s.register)
		r.Post("/api/login", s.login)

		// Public reads
		r.Get("/api/platforms/{authority}", s.getPlatform)
		r.Get("/api/platforms/{authority}/stats", s.getStats)
		r.Get("/api/platforms/{authority}/listings", s.listListings)
		r.Get("/api/listings/{maker}/{id}", s.getListing)
		r.Get("/api/listings/{maker}/{id}/fills", s.listFills)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/api/me", s.me)
			r.Get("/api/balances", s.listBalances)

			// Profile
			r.Get("/api/profile", s.getProfile)
			r.Post("/api/profile", s.createProfile)
			r.Patch("/api/profile", s.updatePreferences)

			// Listings
			r.Post("/api/platforms/{authority}/listings", s.createListing)
			r.Patch("/api/listings/{maker}/{id}", s.updateListing)
			r.Delete("/api/listings/{maker}/{id}", s.cancelListing)
			r.Post("/api/listings/{maker}/{id}/close", s.closeExpired)
			r.Post("/api/listings/{maker}/{id}/swap", s.executeSwap)

			// Admin
			r.Group(func(r chi.Router) {
				r.Use(s.adminOnly)
				r.Post("/api/admin/platform", s.initPlatform)
				r.Patch("/api/admin/platforms/{authority}/config", s.updateConfig)
				r.Post("/api/admin/platforms/{authority}/pause", s.setPaused(true))
				r.Post("/api/admin/platforms/{authority}/resume", s.setPaused(false))
				r.Post("/api/admin/platforms/{authority}/fee-collector", s.setFeeCollector)
				r.Post("/api/admin/platforms/{authority}/whitelist", s.manageWhitelist)
				r.Post("/api/admin/faucet", s.faucet)
				r.Post("/api/admin/freeze", s.freeze)
				r.Get("/api/admin/events", s.listEvents)
			})
		})
	})

	return r
}

// ── Auth ─────────────────────────────────────────────

type credentials struct {
	Address  string `json:"address"`
	Password string `json:"password"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	addr, err := pda.ParseAddress(req.Address)
	if err != nil || len(req.Password) < 6 {
		jsonErr(w, 400, "address and password (min 6 chars) required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonErr(w, 500, "hash failed")
		return
	}
	role := model.RoleUser
	if s.isAdmin(addr) {
		role = model.RoleAdmin
	}
	user := &model.User{Address: addr, PasswordHash: string(hash), Role: role}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			jsonErr(w, 409, "address already registered")
			return
		}
		jsonErr(w, 500, "create user failed: "+err.Error())
		return
	}

	token := s.makeToken(user.Address, user.Role)
	json200(w, map[string]any{"user": userView{Address: user.Address, Role: user.Role}, "token": token})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	addr, err := pda.ParseAddress(req.Address)
	if err != nil {
		jsonErr(w, 401, "invalid credentials")
		return
	}

	user, err := s.store.GetUser(r.Context(), addr)
	if err != nil || user == nil {
		jsonErr(w, 401, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		jsonErr(w, 401, "invalid credentials")
		return
	}

	token := s.makeToken(user.Address, user.Role)
	json200(w, map[string]any{"user": userView{Address: user.Address, Role: user.Role}, "token": token})
}

func (s *Server) makeToken(addr pda.Address, role model.Role) string {
	claims := jwt.MapClaims{
		"sub":  addr.String(),
		"role": string(role),
		"exp":  time.Now().Add(72 * time.Hour).Unix(),
	}
	t, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	return t
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	role, _ := r.Context().Value(ctxRole).(string)
	json200(w, userView{Address: caller(r), Role: model.Role(role)})
}

// ── Middleware ────────────────────────────────────────

type ctxKey string

const (
	ctxAddress ctxKey = "address"
	ctxRole    ctxKey = "role"
)

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			jsonErr(w, 401, "missing token")
			return
		}
		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return s.secret, nil
		})
		if err != nil || !token.Valid {
			jsonErr(w, 401, "invalid token")
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			jsonErr(w, 401, "invalid claims")
			return
		}
		sub, _ := claims["sub"].(string)
		addr, err := pda.ParseAddress(sub)
		if err != nil {
			jsonErr(w, 401, "invalid subject")
			return
		}
		role, _ := claims["role"].(string)
		ctx := context.WithValue(r.Context(), ctxAddress, addr)
		ctx = context.WithValue(ctx, ctxRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := r.Context().Value(ctxRole).(string)
		if role != string(model.RoleAdmin) {
			jsonErr(w, 403, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(204)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func caller(r *http.Request) pda.Address {
	addr, _ := r.Context().Value(ctxAddress).(pda.Address)
	return addr
}

// ── Helpers ──────────────────────────────────────────

func json200(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func json201(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(201)
	json.NewEncoder(w).Encode(data)
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeErr answers with the status of a coded engine error. Uncoded errors are
// logged and hidden behind a generic message.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		jsonErr(w, 404, "not found")
		return
	}
	code := errs.Code(err)
	if code == "" {
		log.WithFields(log.Fields{"module": logModule, "path": r.URL.Path, "err": err}).Error("request failed")
		jsonErr(w, 500, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errs.HTTPStatus(err))
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error(), "code": code})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonErr(w, 400, "invalid json")
		return false
	}
	return true
}

func pathAddr(w http.ResponseWriter, r *http.Request, name string) (pda.Address, bool) {
	addr, err := pda.ParseAddress(chi.URLParam(r, name))
	if err != nil {
		jsonErr(w, 400, "invalid "+name)
		return pda.Zero, false
	}
	return addr, true
}

// listingRef reads the {maker}/{id} pair of a listing route.
func listingRef(w http.ResponseWriter, r *http.Request) (model.ListingRef, bool) {
	maker, ok := pathAddr(w, r, "maker")
	if !ok {
		return model.ListingRef{}, false
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonErr(w, 400, "invalid id")
		return model.ListingRef{}, false
	}
	return model.ListingRef{Maker: maker, ID: id}, true
}

func queryLimit(r *http.Request, def, max int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= max {
		return n
	}
	return def
}
