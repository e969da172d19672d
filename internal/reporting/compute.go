package reporting

import (
	"math"
	"sort"

	"solana-token-radar/internal/domain"
)

// summarize builds the range summary.
func summarize(snaps []*domain.CandidateSnapshot) Summary {
	s := Summary{Snapshots: len(snaps)}
	if len(snaps) == 0 {
		return s
	}
	mints := make(map[string]struct{})
	runs := make(map[string]struct{})
	s.FirstScoredAt, s.LastScoredAt = snaps[0].ScoredAt, snaps[0].ScoredAt
	for _, snap := range snaps {
		mints[snap.Mint] = struct{}{}
		runs[snap.RunID] = struct{}{}
		if snap.AboveThreshold() {
			s.AboveThreshold++
		}
		if snap.Enriched {
			s.Enriched++
		}
		s.FirstScoredAt = min(s.FirstScoredAt, snap.ScoredAt)
		s.LastScoredAt = max(s.LastScoredAt, snap.ScoredAt)
	}
	s.UniqueMints = len(mints)
	s.Runs = len(runs)
	return s
}

// computeSourceRows groups snapshots by source.
func computeSourceRows(snaps []*domain.CandidateSnapshot) []SourceRow {
	bySource := make(map[string][]*domain.CandidateSnapshot)
	for _, s := range snaps {
		bySource[s.Source] = append(bySource[s.Source], s)
	}

	rows := make([]SourceRow, 0, len(bySource))
	for source, group := range bySource {
		rows = append(rows, computeSourceRow(source, group))
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Snapshots != rows[j].Snapshots {
			return rows[i].Snapshots > rows[j].Snapshots
		}
		return rows[i].Source < rows[j].Source
	})
	return rows
}

func computeSourceRow(source string, group []*domain.CandidateSnapshot) SourceRow {
	n := len(group)
	scores := make([]float64, n)
	liquidity := make([]float64, n)
	rug := make([]float64, n)
	mints := make(map[string]struct{})
	above, enriched := 0, 0
	for i, s := range group {
		scores[i] = s.OverallScore
		liquidity[i] = s.LiquidityUSD
		rug[i] = s.RugRiskScore
		mints[s.Mint] = struct{}{}
		if s.AboveThreshold() {
			above++
		}
		if s.Enriched {
			enriched++
		}
	}

	mean := computeMean(scores)
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	sort.Float64s(liquidity)

	return SourceRow{
		Source:             source,
		Snapshots:          n,
		UniqueMints:        len(mints),
		ScoreMean:          mean,
		ScoreStddev:        computeStddev(scores, mean),
		ScoreMedian:        computePercentile(sorted, 0.50),
		ScoreP10:           computePercentile(sorted, 0.10),
		ScoreP90:           computePercentile(sorted, 0.90),
		AboveThresholdRate: computeRate(above, n),
		EnrichedRate:       computeRate(enriched, n),
		RugRiskMean:        computeMean(rug),
		LiquidityMedianUSD: computePercentile(liquidity, 0.50),
	}
}

// computeTopMints keeps each mint's best snapshot and returns the limit best.
// limit <= 0 returns every mint.
func computeTopMints(snaps []*domain.CandidateSnapshot, limit int) []MintRow {
	byMint := make(map[string]*MintRow)
	for _, s := range snaps {
		row, ok := byMint[s.Mint]
		if !ok {
			row = &MintRow{Mint: s.Mint, BestScore: -1, FirstScoredAt: s.ScoredAt}
			byMint[s.Mint] = row
		}
		row.Snapshots++
		row.FirstScoredAt = min(row.FirstScoredAt, s.ScoredAt)
		if s.OverallScore > row.BestScore {
			row.BestScore = s.OverallScore
			row.Symbol = s.Symbol
			row.Source = s.Source
			row.LiquidityUSD = s.LiquidityUSD
		}
	}

	rows := make([]MintRow, 0, len(byMint))
	for _, r := range byMint {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].BestScore != rows[j].BestScore {
			return rows[i].BestScore > rows[j].BestScore
		}
		return rows[i].Mint < rows[j].Mint
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func computeRate(hits, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev is the sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile interpolates linearly; sorted must be ascending and p in
// [0, 1].
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
