package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-radar/internal/domain"
)

func runFirehose(t *testing.T, cfg FirehoseConfig) []*domain.Candidate {
	t.Helper()
	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewFirehose(cfg).Run(ctx, sink) }()

	require.Eventually(t, func() bool { return len(sink.Candidates()) == cfg.Limit }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond) // generation must stop at the limit
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	return sink.Candidates()
}

func TestFirehose_DeterministicAndBounded(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg := FirehoseConfig{RatePerSecond: 10000, Burst: 10, Seed: 42, Limit: 25, Now: func() time.Time { return now }}

	first := runFirehose(t, cfg)
	second := runFirehose(t, cfg)
	require.Len(t, first, 25)
	require.Len(t, second, 25)

	for i := range first {
		assert.Equal(t, first[i].Mint, second[i].Mint)
		assert.Equal(t, first[i].LiquidityUSD, second[i].LiquidityUSD)
		assert.Equal(t, *first[i].Top10HolderShare, *second[i].Top10HolderShare)
	}

	c := first[0]
	assert.Equal(t, "MockMint00000001", c.Mint)
	assert.Equal(t, domain.SourceFirehose, c.Source)
	assert.GreaterOrEqual(t, c.LiquidityUSD, 1000.0)
	assert.Less(t, c.LiquidityUSD, 100000.0)
	require.NotNil(t, c.Telemetry.FirstPoolAt)
	assert.False(t, c.Telemetry.FirstPoolAt.After(now))
	assert.True(t, now.Sub(*c.Telemetry.FirstPoolAt) <= time.Hour)
}

func TestFirehose_Defaults(t *testing.T) {
	f := NewFirehose(FirehoseConfig{Jitter: -time.Second})
	assert.Equal(t, 500, f.cfg.RatePerSecond)
	assert.Equal(t, 10, f.cfg.Burst)
	assert.Equal(t, time.Duration(0), f.cfg.Jitter)
	assert.Equal(t, domain.SourceFirehose, f.Name())
}
