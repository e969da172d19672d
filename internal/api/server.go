// Package api serves the radar's read-only HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"solana-token-radar/internal/discovery"
	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/observability"
	"solana-token-radar/internal/publish"
	"solana-token-radar/internal/storage"
)

const (
	defaultK = 10
	maxK     = 100
)

// Engine is the query side of *discovery.Engine.
type Engine interface {
	GetStats() discovery.Stats
	BestCandidates(k int, minScore *float64) []*domain.Candidate
}

// Options for creating Server.
type Options struct {
	Addr     string
	RunID    string
	Engine   Engine                 // required
	Cache    storage.ShortlistCache // optional
	Recorder func() publish.RecorderStats
	Gatherer prometheus.Gatherer // nil: default registry
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Server exposes /health, /metrics, /status, /candidates and /shortlist.
type Server struct {
	opts    Options
	router  *mux.Router
	server  *http.Server
	started time.Time
	logger  zerolog.Logger
}

// NewServer builds the router. Call ListenAndServe to serve.
func NewServer(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		opts:    opts,
		router:  mux.NewRouter(),
		started: opts.Now(),
		logger:  opts.Logger.With().Str("component", "api").Logger(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestID, s.logRequests)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", observability.Handler(s.opts.Gatherer)).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/candidates", s.handleCandidates).Methods(http.MethodGet)
	s.router.HandleFunc("/shortlist", s.handleShortlist).Methods(http.MethodGet)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until the server stops. It returns nil after
// Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.opts.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString()[:8])
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("request_id", w.Header().Get("X-Request-ID")).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// StatusResponse is the JSON body of /status.
type StatusResponse struct {
	RunID    string                 `json:"run_id"`
	Uptime   string                 `json:"uptime"`
	Engine   discovery.Stats        `json:"engine"`
	Recorder *publish.RecorderStats `json:"recorder,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		RunID:  s.opts.RunID,
		Uptime: s.opts.Now().Sub(s.started).Truncate(time.Second).String(),
		Engine: s.opts.Engine.GetStats(),
	}
	if s.opts.Recorder != nil {
		stats := s.opts.Recorder()
		resp.Recorder = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// CandidateView is the JSON form of a ranked candidate.
type CandidateView struct {
	Rank              int      `json:"rank"`
	Mint              string   `json:"mint"`
	Symbol            string   `json:"symbol,omitempty"`
	Name              string   `json:"name,omitempty"`
	Source            string   `json:"source"`
	SeenFrom          []string `json:"seen_from,omitempty"`
	LiquidityUSD      float64  `json:"liquidity_usd"`
	Top10Share        *float64 `json:"top10_share,omitempty"`
	UniqueBuyers      int      `json:"unique_buyers"`
	Buys              int      `json:"buys"`
	Sells             int      `json:"sells"`
	NoveltyScore      float64  `json:"novelty_score"`
	LiquidityScore    float64  `json:"liquidity_score"`
	DistributionScore float64  `json:"distribution_score"`
	RugRiskScore      float64  `json:"rug_risk_score"`
	OverallScore      float64  `json:"overall_score"`
	Enriched          bool     `json:"enriched"`
	FirstSeen         int64    `json:"first_seen"` // Unix ms
}

func candidateView(rank int, c *domain.Candidate) CandidateView {
	v := CandidateView{
		Rank:              rank,
		Mint:              c.Mint,
		Symbol:            c.Symbol,
		Name:              c.Name,
		Source:            c.SourceName(),
		SeenFrom:          c.Telemetry.SeenFrom,
		LiquidityUSD:      c.LiquidityUSD,
		Top10Share:        c.Top10HolderShare,
		UniqueBuyers:      c.UniqueBuyers,
		Buys:              c.Buys,
		Sells:             c.Sells,
		NoveltyScore:      c.NoveltyScore,
		LiquidityScore:    c.LiquidityScore,
		DistributionScore: c.DistributionScore,
		RugRiskScore:      c.RugRiskScore,
		OverallScore:      c.OverallScore,
		Enriched:          c.Telemetry.Enriched,
	}
	if !c.FirstSeen.IsZero() {
		v.FirstSeen = c.FirstSeen.UnixMilli()
	}
	return v
}

// handleCandidates serves GET /candidates?k=10&min_score=0.5. Without
// min_score the engine's dynamic threshold applies.
func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	k, err := parseK(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var minScore *float64
	if raw := r.URL.Query().Get("min_score"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			writeError(w, http.StatusBadRequest, "min_score must be a number in [0, 1]")
			return
		}
		minScore = &v
	}

	best := s.opts.Engine.BestCandidates(k, minScore)
	views := make([]CandidateView, 0, len(best))
	for i, c := range best {
		views = append(views, candidateView(i+1, c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":      len(views),
		"candidates": views,
	})
}

// handleShortlist serves the last published shortlist from the cache.
func (s *Server) handleShortlist(w http.ResponseWriter, r *http.Request) {
	if s.opts.Cache == nil {
		writeError(w, http.StatusServiceUnavailable, "shortlist cache not configured")
		return
	}
	k, err := parseK(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.opts.Cache.Top(r.Context(), k)
	if err != nil {
		s.logger.Warn().Err(err).Msg("read shortlist")
		writeError(w, http.StatusBadGateway, "shortlist unavailable")
		return
	}
	if entries == nil {
		entries = []domain.ShortlistEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(entries),
		"shortlist": entries,
	})
}

func parseK(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("k")
	if raw == "" {
		return defaultK, nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k <= 0 {
		return 0, errors.New("k must be a positive integer")
	}
	return min(k, maxK), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
