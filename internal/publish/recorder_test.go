package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-radar/internal/discovery"
	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/idhash"
	"solana-token-radar/internal/observability"
	"solana-token-radar/internal/storage/memory"
)

type sinkErrorMetrics struct {
	observability.Nop
	mu     sync.Mutex
	errors map[string]int
}

func (m *sinkErrorMetrics) SinkError(sink string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = make(map[string]int)
	}
	m.errors[sink]++
}

func (m *sinkErrorMetrics) count(sink string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[sink]
}

type failingEvents struct{}

func (failingEvents) InsertBulk(context.Context, []*domain.CandidateSnapshot) error {
	return errors.New("clickhouse unavailable")
}

func (failingEvents) GetByMint(context.Context, string) ([]*domain.CandidateSnapshot, error) {
	return nil, nil
}

func (failingEvents) GetByTimeRange(context.Context, int64, int64) ([]*domain.CandidateSnapshot, error) {
	return nil, nil
}

func scored(mint string, score float64) *domain.Candidate {
	return &domain.Candidate{
		Mint:                     mint,
		Source:                   domain.SourcePumpPortalWS,
		OverallScore:             score,
		MintAuthorityRenounced:   true,
		FreezeAuthorityRenounced: true,
	}
}

func TestRecorder_WritesBatches(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	store := memory.NewSnapshotStore()
	events := memory.NewSnapshotStore()
	rec := NewRecorder(RecorderOptions{
		RunID:         "run-1",
		Snapshots:     store,
		Events:        events,
		BatchSize:     2,
		FlushInterval: 10 * time.Millisecond,
		Now: func() time.Time {
			now = now.Add(time.Millisecond)
			return now
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	rec.Observe(scored("mint-a", 0.7), discovery.Threshold{Effective: 0.6})
	rec.Observe(scored("mint-b", 0.5), discovery.Threshold{Effective: 0.6})
	rec.Observe(scored("mint-a", 0.75), discovery.Threshold{Effective: 0.62})

	require.Eventually(t, func() bool { return store.Len() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, events.Len())

	snaps, err := store.GetByMint(context.Background(), "mint-a")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "run-1", snaps[0].RunID)
	assert.Equal(t, 0.6, snaps[0].Threshold)
	assert.True(t, snaps[0].AuthorityOK)
	assert.True(t, snaps[0].AboveThreshold())
	assert.Equal(t, idhash.ComputeSnapshotID("run-1", "mint-a", domain.SourcePumpPortalWS, snaps[0].ScoredAt), snaps[0].SnapshotID)
	assert.Equal(t, 0.75, snaps[1].OverallScore)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, uint64(3), rec.Stats().Recorded)
}

func TestRecorder_FlushesOnShutdown(t *testing.T) {
	store := memory.NewSnapshotStore()
	rec := NewRecorder(RecorderOptions{
		RunID:         "run-1",
		Snapshots:     store,
		BatchSize:     100,
		FlushInterval: time.Hour,
	})
	for i, mint := range []string{"a", "b", "c"} {
		rec.Observe(scored(mint, float64(i)/10), discovery.Threshold{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, 0, rec.Stats().Buffered)
}

func TestRecorder_DropsWhenBufferFull(t *testing.T) {
	metrics := &sinkErrorMetrics{}
	rec := NewRecorder(RecorderOptions{BufferSize: 2, Metrics: metrics})

	for i := 0; i < 5; i++ {
		rec.Observe(scored("m", 0.5), discovery.Threshold{})
	}
	stats := rec.Stats()
	assert.Equal(t, 2, stats.Buffered)
	assert.Equal(t, uint64(3), stats.Dropped)
	assert.Equal(t, 3, metrics.count(SinkBuffer))
}

func TestRecorder_CountsStoreFailures(t *testing.T) {
	metrics := &sinkErrorMetrics{}
	store := memory.NewSnapshotStore()
	rec := NewRecorder(RecorderOptions{
		Snapshots: store,
		Events:    failingEvents{},
		Metrics:   metrics,
	})
	rec.Observe(scored("m", 0.5), discovery.Threshold{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, metrics.count(SinkScoreEvents))
	assert.Equal(t, 0, metrics.count(SinkSnapshots))
	assert.Equal(t, uint64(1), rec.Stats().Failed)
}
