package ingestion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-radar/internal/domain"
)

func TestPollingSource_DeduplicatesAndRecovers(t *testing.T) {
	var calls atomic.Int32
	poller := PollerFunc(func(context.Context) ([]*domain.Candidate, error) {
		switch calls.Add(1) {
		case 1:
			return []*domain.Candidate{{Mint: "a"}, {Mint: "b"}, nil, {Mint: ""}}, nil
		case 2:
			return nil, errors.New("503")
		default:
			return []*domain.Candidate{{Mint: "a"}, {Mint: "c", Source: "custom"}}, nil
		}
	})

	src := NewPollingSource(poller, PollingConfig{
		Name:       "pumpportal_http",
		Interval:   5 * time.Millisecond,
		ErrorDelay: 5 * time.Millisecond,
	})
	assert.Equal(t, "pumpportal_http", src.Name())

	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, sink) }()

	require.Eventually(t, func() bool { return len(sink.Candidates()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	cands := sink.Candidates()
	assert.Len(t, cands, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{cands[0].Mint, cands[1].Mint, cands[2].Mint})
	assert.Equal(t, "pumpportal_http", cands[0].Source)
	assert.Equal(t, "pumpportal_http", cands[0].Telemetry.Source)
	assert.Equal(t, "custom", cands[2].Source)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestPollingSource_Defaults(t *testing.T) {
	src := NewPollingSource(PollerFunc(func(context.Context) ([]*domain.Candidate, error) { return nil, nil }), PollingConfig{})
	assert.Equal(t, "poller", src.Name())
	assert.Equal(t, time.Second, src.cfg.Interval)
	assert.Equal(t, 5*time.Second, src.cfg.ErrorDelay)
	assert.NoError(t, src.Start(context.Background()))
	assert.NoError(t, src.Stop(context.Background()))
}

func TestHTTPRecentPoller(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recent", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"mint": "m1", "symbol": "ONE", "name": "One", "firstTradeAt": 1700000000000, "poolAddress": "p1"},
			{"tokenAddress": "m2", "ticker": "TWO", "createdAt": "2026-01-02T03:04:05Z"},
			{"symbol": "nomint"}
		]`))
	}))
	defer server.Close()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := NewHTTPRecentPoller(server.URL+"/", 50, "pumpportal_http")
	p.Now = func() time.Time { return now }

	cands, err := p.NewTokens(context.Background())
	require.NoError(t, err)
	require.Len(t, cands, 2)

	assert.Equal(t, "m1", cands[0].Mint)
	assert.Equal(t, "ONE", cands[0].Symbol)
	assert.Equal(t, "p1", cands[0].Telemetry.PoolAddress)
	require.NotNil(t, cands[0].Telemetry.FirstTradeAt)
	assert.Equal(t, int64(1700000000000), cands[0].Telemetry.FirstTradeAt.UnixMilli())
	assert.True(t, now.Equal(cands[0].FirstSeen))

	assert.Equal(t, "m2", cands[1].Mint)
	assert.Equal(t, "TWO", cands[1].Symbol)
	require.NotNil(t, cands[1].Telemetry.FirstTradeAt)
	assert.Equal(t, 2026, cands[1].Telemetry.FirstTradeAt.Year())
}

func TestHTTPRecentPoller_Errors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	p := NewHTTPRecentPoller(server.URL, 0, "http")
	_, err := p.NewTokens(context.Background())
	assert.ErrorContains(t, err, "status 500")

	status.Store(http.StatusOK)
	_, err = p.NewTokens(context.Background())
	assert.ErrorContains(t, err, "invalid json")
}
