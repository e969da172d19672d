package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-radar/internal/discovery"
	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/observability"
	"solana-token-radar/internal/publish"
	"solana-token-radar/internal/storage/memory"
)

type stubEngine struct {
	cands   []*domain.Candidate
	lastK   int
	lastMin *float64
	stats   discovery.Stats
}

func (e *stubEngine) GetStats() discovery.Stats { return e.stats }

func (e *stubEngine) BestCandidates(k int, minScore *float64) []*domain.Candidate {
	e.lastK, e.lastMin = k, minScore
	if k < len(e.cands) {
		return e.cands[:k]
	}
	return e.cands
}

func newTestServer(t *testing.T, engine *stubEngine) (*Server, *memory.ShortlistCache, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	observability.NewPrometheus(reg, "test").CandidateIn(domain.SourcePumpPortalWS)

	cache := memory.NewShortlistCache(nil)
	srv := NewServer(Options{
		RunID:    "run-1",
		Engine:   engine,
		Cache:    cache,
		Recorder: func() publish.RecorderStats { return publish.RecorderStats{Recorded: 7} },
		Gatherer: reg,
	})
	return srv, cache, reg
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubEngine{})
	rec := get(t, srv.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubEngine{})
	rec := get(t, srv.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_")
}

func TestStatus(t *testing.T) {
	engine := &stubEngine{stats: discovery.Stats{State: discovery.StateRunning, Running: true, QueueCapacity: 1000}}
	srv, _, _ := newTestServer(t, engine)

	rec := get(t, srv.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.True(t, resp.Engine.Running)
	assert.Equal(t, 1000, resp.Engine.QueueCapacity)
	require.NotNil(t, resp.Recorder)
	assert.Equal(t, uint64(7), resp.Recorder.Recorded)
}

func TestCandidates(t *testing.T) {
	engine := &stubEngine{cands: []*domain.Candidate{
		{Mint: "A", Source: domain.SourceHeliusLogs, OverallScore: 0.9, FirstSeen: time.UnixMilli(1000)},
		{Mint: "B", Source: domain.SourceFirehose, OverallScore: 0.8},
	}}
	srv, _, _ := newTestServer(t, engine)

	rec := get(t, srv.Handler(), "/candidates?k=5&min_score=0.4")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, engine.lastK)
	require.NotNil(t, engine.lastMin)
	assert.Equal(t, 0.4, *engine.lastMin)

	var body struct {
		Count      int             `json:"count"`
		Candidates []CandidateView `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	assert.Equal(t, 1, body.Candidates[0].Rank)
	assert.Equal(t, "A", body.Candidates[0].Mint)
	assert.Equal(t, domain.SourceHeliusLogs, body.Candidates[0].Source)
	assert.Equal(t, int64(1000), body.Candidates[0].FirstSeen)
	assert.Equal(t, 2, body.Candidates[1].Rank)
}

func TestCandidates_Defaults(t *testing.T) {
	engine := &stubEngine{}
	srv, _, _ := newTestServer(t, engine)

	rec := get(t, srv.Handler(), "/candidates")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultK, engine.lastK)
	assert.Nil(t, engine.lastMin, "dynamic threshold applies without min_score")
	assert.JSONEq(t, `{"count":0,"candidates":[]}`, rec.Body.String())

	get(t, srv.Handler(), "/candidates?k=1000")
	assert.Equal(t, maxK, engine.lastK)
}

func TestCandidates_BadParams(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubEngine{})
	for _, target := range []string{"/candidates?k=0", "/candidates?k=x", "/candidates?min_score=2", "/candidates?min_score=abc"} {
		rec := get(t, srv.Handler(), target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestShortlist(t *testing.T) {
	srv, cache, _ := newTestServer(t, &stubEngine{})
	require.NoError(t, cache.Publish(context.Background(), []domain.ShortlistEntry{
		{Rank: 1, Mint: "A", Score: 0.9},
		{Rank: 2, Mint: "B", Score: 0.8},
	}))

	rec := get(t, srv.Handler(), "/shortlist?k=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count     int                     `json:"count"`
		Shortlist []domain.ShortlistEntry `json:"shortlist"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "A", body.Shortlist[0].Mint)
}

func TestShortlist_NoCache(t *testing.T) {
	srv := NewServer(Options{Engine: &stubEngine{}})
	rec := get(t, srv.Handler(), "/shortlist")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubEngine{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/candidates", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
