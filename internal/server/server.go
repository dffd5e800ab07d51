// Package server exposes the HTTP API: lowest-price lookup, bulk snapshot,
// batched report ingestion, and health.
package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/pricepatrol/community-low/internal/cache"
	"github.com/pricepatrol/community-low/internal/ingest"
)

// Config tunes the HTTP layer.
type Config struct {
	Port           int     `yaml:"port" mapstructure:"port"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// Server holds the handler dependencies.
type Server struct {
	prices  *cache.ReadThrough
	ingestr *ingest.Service
	limiter *identityLimiter
}

// New creates a Server. A zero rate limit disables ingestion throttling.
func New(prices *cache.ReadThrough, ingestr *ingest.Service, cfg Config) *Server {
	var limiter *identityLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = newIdentityLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return &Server{prices: prices, ingestr: ingestr, limiter: limiter}
}

// Router builds the chi router with permissive CORS. Any origin may read and
// report; OPTIONS preflights are answered by the middleware with no body.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/lowest", s.handleLowest)
	r.Get("/snapshot", s.handleSnapshot)
	r.Post("/ingest", s.handleIngest)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// lowestResponse is the wire shape for GET /lowest. Null fields mean the
// product has no record yet.
type lowestResponse struct {
	ProdID     string   `json:"prodId"`
	MinPrice   *float64 `json:"minPrice"`
	TrustLevel *int     `json:"trustLevel"`
	UpdatedAt  *string  `json:"updatedAt"`
}

func (s *Server) handleLowest(w http.ResponseWriter, r *http.Request) {
	prodID := r.URL.Query().Get("prodId")
	if prodID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing prodId"})
		return
	}

	resp := lowestResponse{ProdID: prodID}
	lp, err := s.prices.Lowest(r.Context(), prodID)
	if err != nil {
		// Degrade to the absent shape rather than failing the reader.
		zap.L().Error("lowest lookup failed", zap.String("prodId", prodID), zap.Error(err))
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if lp != nil {
		price := lp.Price
		trust := int(lp.Trust)
		updated := lp.UpdatedAt.UTC().Format(time.RFC3339)
		resp.MinPrice = &price
		resp.TrustLevel = &trust
		resp.UpdatedAt = &updated
		w.Header().Set("Cache-Control", "public, max-age=1800")
	}
	writeJSON(w, http.StatusOK, resp)
}

// snapshotEntry is one product inside the bulk snapshot.
type snapshotEntry struct {
	P float64 `json:"p"`
	T int     `json:"t"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	all, err := s.prices.Snapshot(r.Context())
	if err != nil {
		zap.L().Error("snapshot failed", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":     true,
			"last":   time.Now().UTC().Format(time.RFC3339),
			"prices": map[string]snapshotEntry{},
		})
		return
	}

	prices := make(map[string]snapshotEntry, len(all))
	for _, lp := range all {
		prices[lp.ProdID] = snapshotEntry{P: lp.Price, T: int(lp.Trust)}
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"last":   time.Now().UTC().Format(time.RFC3339),
		"prices": prices,
	})
}

type ingestRequest struct {
	Items []ingest.Item `json:"items"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Items == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid"})
		return
	}

	identity := clientIdentity(r)
	if s.limiter != nil && !s.limiter.allow(identity) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
		return
	}

	res := s.ingestr.ProcessBatch(r.Context(), identity, req.Items)
	// count keeps the original "items processed" meaning for existing
	// clients; accepted is additive and reflects store changes.
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"count":    res.Processed,
		"accepted": res.Accepted,
	})
}

// clientIdentity extracts the reporting client's network identity: the first
// X-Forwarded-For hop when present, else the remote address host.
func clientIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("write response failed", zap.Error(err))
	}
}
