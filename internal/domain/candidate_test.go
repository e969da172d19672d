package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidate_OnChainTime_PrefersPool(t *testing.T) {
	pool := time.Unix(1_700_000_000, 0)
	trade := pool.Add(time.Minute)

	c := &Candidate{Mint: "m"}
	_, ok := c.OnChainTime()
	assert.False(t, ok, "no on-chain timestamp must not be reported")

	c.Telemetry.FirstTradeAt = &trade
	ts, ok := c.OnChainTime()
	require.True(t, ok)
	assert.Equal(t, trade, ts)

	c.Telemetry.FirstPoolAt = &pool
	ts, ok = c.OnChainTime()
	require.True(t, ok)
	assert.Equal(t, pool, ts)
}

func TestCandidate_OnChainAge_NeverNegative(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	future := now.Add(5 * time.Second)
	c := &Candidate{Telemetry: Telemetry{FirstTradeAt: &future}}

	age, ok := c.OnChainAge(now)
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), age)
}

func TestCandidate_CloneIsDeep(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	c := &Candidate{
		Mint:             "m",
		Top10HolderShare: Ptr(0.4),
		Telemetry: Telemetry{
			FirstPoolAt: &ts,
			SeenFrom:    []string{"a"},
		},
	}

	cp := c.Clone()
	*cp.Top10HolderShare = 0.9
	cp.Telemetry.SeenFrom[0] = "b"
	*cp.Telemetry.FirstPoolAt = ts.Add(time.Hour)

	assert.Equal(t, 0.4, *c.Top10HolderShare)
	assert.Equal(t, "a", c.Telemetry.SeenFrom[0])
	assert.Equal(t, ts, *c.Telemetry.FirstPoolAt)
}

func TestCandidate_ClampScores(t *testing.T) {
	c := &Candidate{OverallScore: 1.7, RugRiskScore: 1.2, NoveltyScore: -0.3}
	c.ClampScores()

	assert.Equal(t, 1.0, c.OverallScore)
	assert.Equal(t, 1.0, c.RugRiskScore)
	assert.Equal(t, 0.0, c.NoveltyScore)
}

func TestFlowStats_BuySellRatio(t *testing.T) {
	assert.Equal(t, 1.0, FlowStats{}.BuySellRatio())
	assert.True(t, math.IsInf(FlowStats{Buys: 3}.BuySellRatio(), 1))
	assert.Equal(t, 2.0, FlowStats{Buys: 4, Sells: 2}.BuySellRatio())
}

func TestSnapshotFromCandidate(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123)
	c := &Candidate{
		Mint:                     "mint1",
		Source:                   "fallback",
		MintAuthorityRenounced:   true,
		FreezeAuthorityRenounced: true,
		LPBurned:                 true,
		OverallScore:             0.7,
		Telemetry: Telemetry{
			Source:      SourcePumpPortalWS,
			FirstPoolAt: &ts,
			SeenFrom:    []string{SourcePumpPortalWS, SourceHeliusLogs},
		},
	}

	s := SnapshotFromCandidate(c, "run-1", 0.6, 42)
	assert.Equal(t, SourcePumpPortalWS, s.Source)
	assert.True(t, s.AuthorityOK)
	assert.True(t, s.LPLockedOrBurned)
	assert.True(t, s.AboveThreshold())
	require.NotNil(t, s.OnChainAt)
	assert.Equal(t, ts.UnixMilli(), *s.OnChainAt)
	assert.Equal(t, "pumpportal_ws,helius_logs", s.SeenFromCSV())
}
