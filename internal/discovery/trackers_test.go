package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-radar/internal/domain"
)

func newTrackers() (*Trackers, *TradeBook) {
	trades := NewTradeBook()
	return NewTrackers(DefaultConfig().Trackers, trades), trades
}

func TestTrackers_MultiSourceBonus(t *testing.T) {
	tr, _ := newTrackers()

	first := &domain.Candidate{Mint: "m", Source: domain.SourcePumpPortalWS, OverallScore: 0.5}
	assert.Empty(t, tr.Apply(first, t0))
	assert.Equal(t, []string{domain.SourcePumpPortalWS}, first.Telemetry.SeenFrom)

	second := &domain.Candidate{Mint: "m", Source: domain.SourceHeliusLogs, OverallScore: 0.5}
	events := tr.Apply(second, t0.Add(30*time.Second))
	require.Len(t, events, 1)
	assert.InDelta(t, 0.52, second.OverallScore, 1e-9)
	assert.Equal(t, []string{domain.SourcePumpPortalWS, domain.SourceHeliusLogs}, second.Telemetry.SeenFrom)

	late := &domain.Candidate{Mint: "m", Source: domain.SourceFirehose, OverallScore: 0.5}
	assert.Empty(t, tr.Apply(late, t0.Add(90*time.Second)), "outside the window")
	assert.Equal(t, 0.5, late.OverallScore)
}

func TestTrackers_DevWalletSoldEarly(t *testing.T) {
	tr, trades := newTrackers()
	trades.Record(domain.TradeUpdate{Mint: "m", Trader: "dev", Side: domain.SideSell, Timestamp: t0})

	c := &domain.Candidate{
		Mint:         "m",
		OverallScore: 0.5,
		Telemetry: domain.Telemetry{
			DevWallet:   "dev",
			FirstPoolAt: domain.Ptr(t0.Add(-2 * time.Minute)),
		},
	}
	events := tr.Apply(c, t0)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ReasonDevWalletSoldEarly, events[0].Reason)
	assert.InDelta(t, 0.4, c.OverallScore, 1e-9)
	assert.InDelta(t, 0.3, c.RugRiskScore, 1e-9)

	again := &domain.Candidate{Mint: "m", OverallScore: 0.5, Telemetry: c.Telemetry}
	events = tr.Apply(again, t0.Add(time.Second))
	require.Len(t, events, 1)
	assert.Empty(t, events[0].Reason, "reason is counted once per mint")
	assert.InDelta(t, 0.4, again.OverallScore, 1e-9)
}

func TestTrackers_DevWalletIgnoredWhenOld(t *testing.T) {
	tr, trades := newTrackers()
	trades.Record(domain.TradeUpdate{Mint: "m", Trader: "dev", Side: domain.SideSell, Timestamp: t0})

	c := &domain.Candidate{
		Mint:         "m",
		OverallScore: 0.5,
		Telemetry: domain.Telemetry{
			DevWallet:   "dev",
			FirstPoolAt: domain.Ptr(t0.Add(-30 * time.Minute)),
		},
	}
	assert.Empty(t, tr.Apply(c, t0))
	assert.Equal(t, 0.5, c.OverallScore)
}

func TestTrackers_LPLockDelayPenalty(t *testing.T) {
	tr, _ := newTrackers()

	tr.Apply(&domain.Candidate{Mint: "m"}, t0)

	c := &domain.Candidate{Mint: "m", LPLocked: true, OverallScore: 0.5}
	events := tr.Apply(c, t0.Add(15*time.Minute))
	require.Len(t, events, 1)
	assert.Equal(t, domain.ReasonLPLockDelayed, events[0].Reason)
	assert.InDelta(t, 0.4, c.OverallScore, 1e-9)
	require.NotNil(t, c.Telemetry.LPLockDelayMinutes)
	assert.InDelta(t, 15.0, *c.Telemetry.LPLockDelayMinutes, 1e-9)

	// measured once
	c2 := &domain.Candidate{Mint: "m", LPLocked: true, OverallScore: 0.5}
	assert.Empty(t, tr.Apply(c2, t0.Add(20*time.Minute)))
}

func TestTrackers_LPLockedInTime(t *testing.T) {
	tr, _ := newTrackers()
	c := &domain.Candidate{Mint: "m", LPLocked: true, OverallScore: 0.5}
	assert.Empty(t, tr.Apply(c, t0))
	require.NotNil(t, c.Telemetry.LPLockDelayMinutes)
	assert.Equal(t, 0.0, *c.Telemetry.LPLockDelayMinutes)
}

func TestTrackers_BuyerAcceleration(t *testing.T) {
	tr, _ := newTrackers()
	tr.Apply(&domain.Candidate{Mint: "m", UniqueBuyers: 10}, t0)

	c := &domain.Candidate{Mint: "m", UniqueBuyers: 20, OverallScore: 0.5}
	events := tr.Apply(c, t0.Add(time.Minute))
	require.Len(t, events, 1)
	assert.InDelta(t, 0.55, c.OverallScore, 1e-9, "bonus capped at 0.05")
	require.NotNil(t, c.Telemetry.BuyerAcceleration)
	assert.InDelta(t, 10.0, *c.Telemetry.BuyerAcceleration, 1e-9)

	slower := &domain.Candidate{Mint: "m", UniqueBuyers: 15, OverallScore: 0.5}
	assert.Empty(t, tr.Apply(slower, t0.Add(2*time.Minute)), "negative acceleration earns nothing")
}

func TestTrackers_SpreadPenalty(t *testing.T) {
	tr, _ := newTrackers()

	wide := &domain.Candidate{Mint: "a", OverallScore: 0.5, Telemetry: domain.Telemetry{SpreadPercent: domain.Ptr(4.0)}}
	events := tr.Apply(wide, t0)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ReasonHighSpread, events[0].Reason)
	assert.InDelta(t, 0.4, wide.OverallScore, 1e-9)

	extreme := &domain.Candidate{Mint: "b", OverallScore: 0.5, Telemetry: domain.Telemetry{SpreadPercent: domain.Ptr(50.0)}}
	tr.Apply(extreme, t0)
	assert.InDelta(t, 0.35, extreme.OverallScore, 1e-9)

	unknown := &domain.Candidate{Mint: "c", OverallScore: 0.5}
	assert.Empty(t, tr.Apply(unknown, t0))
	assert.Equal(t, 0.5, unknown.OverallScore)
}

func TestTrackers_ForgetAndPrune(t *testing.T) {
	tr, _ := newTrackers()
	tr.Apply(&domain.Candidate{Mint: "a"}, t0)
	tr.Apply(&domain.Candidate{Mint: "b"}, t0.Add(time.Minute))

	seen, ok := tr.FirstSeen("a")
	require.True(t, ok)
	assert.Equal(t, t0, seen)

	tr.Prune(t0.Add(30*time.Second), nil)
	_, ok = tr.FirstSeen("a")
	assert.False(t, ok)

	tr.Forget("b")
	assert.Equal(t, 0, tr.Len())
}
