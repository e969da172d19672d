package reporting

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"solana-token-radar/internal/domain"
)

func TestComputePercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty", nil, 0.5, 0},
		{"single", []float64{0.4}, 0.9, 0.4},
		{"median odd", []float64{1, 2, 3}, 0.5, 2},
		{"median even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{0, 10}, 0.1, 1},
		{"max", []float64{1, 2, 3}, 1, 3},
		{"min", []float64{1, 2, 3}, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, computePercentile(tt.sorted, tt.p), 1e-9)
		})
	}
}

func TestComputeStddev(t *testing.T) {
	assert.Equal(t, 0.0, computeStddev(nil, 0))
	assert.Equal(t, 0.0, computeStddev([]float64{5}, 5))

	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mean := computeMean(values)
	assert.InDelta(t, 5.0, mean, 1e-9)
	assert.InDelta(t, math.Sqrt(32.0/7.0), computeStddev(values, mean), 1e-9)
}

func TestComputeRate(t *testing.T) {
	assert.Equal(t, 0.0, computeRate(3, 0))
	assert.InDelta(t, 0.25, computeRate(1, 4), 1e-9)
}

func TestComputeTopMints(t *testing.T) {
	snaps := []*domain.CandidateSnapshot{
		{Mint: "A", Symbol: "AAA", Source: "s1", OverallScore: 0.5, LiquidityUSD: 100, ScoredAt: 200},
		{Mint: "A", Symbol: "AAA", Source: "s2", OverallScore: 0.8, LiquidityUSD: 900, ScoredAt: 300},
		{Mint: "B", Symbol: "BBB", Source: "s1", OverallScore: 0.8, LiquidityUSD: 50, ScoredAt: 100},
		{Mint: "C", Symbol: "CCC", Source: "s1", OverallScore: 0.1, ScoredAt: 150},
	}

	rows := computeTopMints(snaps, 2)
	if assert.Len(t, rows, 2) {
		assert.Equal(t, "A", rows[0].Mint, "ties broken by mint")
		assert.Equal(t, 0.8, rows[0].BestScore)
		assert.Equal(t, "s2", rows[0].Source)
		assert.Equal(t, 900.0, rows[0].LiquidityUSD)
		assert.Equal(t, 2, rows[0].Snapshots)
		assert.Equal(t, int64(200), rows[0].FirstScoredAt)
		assert.Equal(t, "B", rows[1].Mint)
	}

	assert.Len(t, computeTopMints(snaps, 0), 3)
}
