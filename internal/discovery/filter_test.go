package discovery

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-radar/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newFilter(cfg Config) (*FastFilter, *TradeBook) {
	trades := NewTradeBook()
	return NewFastFilter(cfg, NewBurstGuard(cfg.Burst), trades), trades
}

func recordBuys(b *TradeBook, mint string, buyers, buys int, at time.Time) {
	for i := 0; i < buys; i++ {
		b.Record(domain.TradeUpdate{
			Mint:      mint,
			Trader:    fmt.Sprintf("buyer-%d", i%buyers),
			Side:      domain.SideBuy,
			Timestamp: at,
		})
	}
}

func TestFastFilter_FreshPassAdmitsActiveCandidate(t *testing.T) {
	f, trades := newFilter(DefaultConfig())
	recordBuys(trades, "mintA", 5, 6, t0)

	c := &domain.Candidate{
		Mint:      "mintA",
		Source:    domain.SourcePumpPortalWS,
		Telemetry: domain.Telemetry{FirstPoolAt: domain.Ptr(t0.Add(-30 * time.Second))},
	}

	d := f.Evaluate(c, t0)
	assert.True(t, d.Admitted)
	assert.Equal(t, PathFreshPass, d.Path)
	assert.True(t, d.Fresh)
	assert.Equal(t, 30*time.Second, d.Age)
}

func TestFastFilter_NoOnChainTimestampIsNeverFresh(t *testing.T) {
	f, trades := newFilter(DefaultConfig())
	recordBuys(trades, "mintB", 10, 10, t0)

	c := &domain.Candidate{
		Mint:      "mintB",
		Source:    domain.SourcePumpPortalWS,
		FirstSeen: t0, // bookkeeping time only
	}

	assert.False(t, f.IsFresh(c, t0))
	d := f.Evaluate(c, t0)
	assert.False(t, d.Admitted)
	assert.False(t, d.Fresh)
	assert.Equal(t, domain.ReasonLowLiquidity, d.Reason)
}

func TestFastFilter_StandardPathRejections(t *testing.T) {
	tests := []struct {
		name   string
		c      domain.Candidate
		reason domain.FilterReason
	}{
		{
			name:   "low liquidity",
			c:      domain.Candidate{Mint: "m", Source: domain.SourceFirehose, LiquidityUSD: 100},
			reason: domain.ReasonLowLiquidity,
		},
		{
			name: "rug controls missing",
			c: domain.Candidate{
				Mint: "m", Source: domain.SourceFirehose, LiquidityUSD: 5000,
				MintAuthorityRenounced: true, FreezeAuthorityRenounced: true,
				Top10HolderShare: domain.Ptr(0.2),
			},
			reason: domain.ReasonRugControlsMissing,
		},
		{
			name: "authority not renounced",
			c: domain.Candidate{
				Mint: "m", Source: domain.SourceFirehose, LiquidityUSD: 5000, LPBurned: true,
				MintAuthorityRenounced: true,
				Top10HolderShare:       domain.Ptr(0.2),
			},
			reason: domain.ReasonRugControlsMissing,
		},
		{
			name: "unknown holder share counts as fully concentrated",
			c: domain.Candidate{
				Mint: "m", Source: domain.SourceFirehose, LiquidityUSD: 5000, LPLocked: true,
				MintAuthorityRenounced: true, FreezeAuthorityRenounced: true,
			},
			reason: domain.ReasonConcentratedHolders,
		},
		{
			name: "concentrated holders",
			c: domain.Candidate{
				Mint: "m", Source: domain.SourceFirehose, LiquidityUSD: 5000, LPLocked: true,
				MintAuthorityRenounced: true, FreezeAuthorityRenounced: true,
				Top10HolderShare: domain.Ptr(0.96),
			},
			reason: domain.ReasonConcentratedHolders,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newFilter(DefaultConfig())
			c := tt.c
			d := f.Evaluate(&c, t0)
			assert.False(t, d.Admitted)
			assert.Equal(t, PathStandard, d.Path)
			assert.Equal(t, tt.reason, d.Reason)
			assert.True(t, d.Recordable())
		})
	}
}

func TestFastFilter_StandardPathAdmitsSafeCandidate(t *testing.T) {
	f, _ := newFilter(DefaultConfig())
	c := &domain.Candidate{
		Mint: "m", Source: domain.SourceFirehose, LiquidityUSD: 5000, LPLocked: true,
		MintAuthorityRenounced: true, FreezeAuthorityRenounced: true,
		Top10HolderShare: domain.Ptr(0.4),
	}
	d := f.Evaluate(c, t0)
	assert.True(t, d.Admitted)
	assert.Equal(t, PathStandard, d.Path)
}

func TestFastFilter_FreshCandidateDefersRugControls(t *testing.T) {
	f, _ := newFilter(DefaultConfig())
	c := &domain.Candidate{
		Mint:             "m",
		Source:           domain.SourceFirehose,
		LiquidityUSD:     1500, // above the fresh floor, below the standard one
		Top10HolderShare: domain.Ptr(0.97),
		Telemetry:        domain.Telemetry{FirstTradeAt: domain.Ptr(t0.Add(-2 * time.Minute))},
	}

	d := f.Evaluate(c, t0)
	require.True(t, d.Admitted, "reason: %s", d.Reason)
	assert.True(t, d.Fresh)
	assert.Equal(t, PathStandard, d.Path)
}

func TestFastFilter_SecondaryFreshWindow(t *testing.T) {
	f, _ := newFilter(DefaultConfig())
	c := &domain.Candidate{
		Mint:   "m",
		Source: domain.SourceFirehose,
		Telemetry: domain.Telemetry{
			FirstPoolAt:       domain.Ptr(t0.Add(-30 * time.Second)),
			TradeUniqueBuyers: 3,
		},
	}

	d := f.Evaluate(c, t0)
	assert.True(t, d.Admitted)
	assert.Equal(t, PathFreshWindow, d.Path)
}

func TestFastFilter_FreshPassOnlyForAllowedSources(t *testing.T) {
	cfg := DefaultConfig()
	f, trades := newFilter(cfg)
	recordBuys(trades, "m", 1, 1, t0)

	c := &domain.Candidate{
		Mint:      "m",
		Source:    domain.SourceFirehose,
		Telemetry: domain.Telemetry{FirstPoolAt: domain.Ptr(t0.Add(-10 * time.Second))},
	}
	d := f.Evaluate(c, t0)
	assert.NotEqual(t, PathFreshPass, d.Path)
}

func TestFastFilter_FreshPassBurstDropIsNotRecorded(t *testing.T) {
	f, trades := newFilter(DefaultConfig())
	recordBuys(trades, "m", 2, 2, t0)
	c := &domain.Candidate{
		Mint:      "m",
		Source:    domain.SourceHeliusLogs,
		Telemetry: domain.Telemetry{FirstPoolAt: domain.Ptr(t0.Add(-5 * time.Second))},
	}

	require.True(t, f.Evaluate(c, t0).Admitted)

	d := f.Evaluate(c, t0.Add(300*time.Millisecond))
	assert.False(t, d.Admitted)
	assert.Equal(t, domain.ReasonBurstSkip, d.Reason)
	assert.False(t, d.Recordable())
}

func TestBurstGuard(t *testing.T) {
	g := NewBurstGuard(DefaultConfig().Burst)

	assert.Empty(t, g.Allow("m", t0))
	assert.Equal(t, domain.ReasonBurstSkip, g.Allow("m", t0.Add(500*time.Millisecond)))
	assert.Empty(t, g.Allow("m", t0.Add(1*time.Second)))
	assert.Empty(t, g.Allow("m", t0.Add(2*time.Second)))
	assert.Empty(t, g.Allow("m", t0.Add(3*time.Second)))
	assert.Equal(t, domain.ReasonBurstThrottle, g.Allow("m", t0.Add(4*time.Second)))

	// window elapsed: counters reset
	assert.Empty(t, g.Allow("m", t0.Add(11*time.Second)))
	assert.Empty(t, g.Allow("other", t0))
	assert.Equal(t, 2, g.Len())

	g.Forget("m")
	assert.Equal(t, 1, g.Len())
}

func TestTradeBook(t *testing.T) {
	b := NewTradeBook()
	b.Record(domain.TradeUpdate{Mint: "m", Trader: "a", Side: domain.SideBuy, Timestamp: t0})
	b.Record(domain.TradeUpdate{Mint: "m", Trader: "a", Side: domain.SideBuy, Timestamp: t0.Add(time.Second)})
	b.Record(domain.TradeUpdate{Mint: "m", Trader: "b", Side: domain.SideBuy, Timestamp: t0.Add(2 * time.Second)})
	b.Record(domain.TradeUpdate{Mint: "m", Trader: "dev", Side: domain.SideSell, Timestamp: t0.Add(3 * time.Second)})
	b.Record(domain.TradeUpdate{Side: domain.SideBuy}) // no mint, ignored

	counts, ok := b.Counts("m")
	require.True(t, ok)
	assert.Equal(t, 2, counts.UniqueBuyers)
	assert.Equal(t, 3, counts.Buys)
	assert.Equal(t, 1, counts.Sells)
	assert.Equal(t, 4, counts.Trades())
	assert.Equal(t, t0, counts.FirstTrade)
	assert.Equal(t, t0.Add(3*time.Second), counts.LastTrade)

	assert.True(t, b.SoldBy("m", "dev"))
	assert.False(t, b.SoldBy("m", "a"))
	assert.False(t, b.SoldBy("m", ""))

	b.Prune(t0.Add(time.Hour), func(string) bool { return true })
	assert.Equal(t, 1, b.Len(), "kept mints survive pruning")
	b.Prune(t0.Add(time.Hour), nil)
	assert.Equal(t, 0, b.Len())
}
