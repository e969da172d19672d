// Package reporting summarizes recorded candidate snapshots: score
// distribution per source, threshold pass rates and the best mints of a
// time range.
package reporting

import "time"

// Report is a snapshot analytics report for one time range.
type Report struct {
	GeneratedAt time.Time
	RangeStart  int64 // Unix ms, inclusive
	RangeEnd    int64 // Unix ms, inclusive

	Summary Summary

	// Sources is sorted by snapshot count DESC, then source ASC.
	Sources []SourceRow

	// TopMints is sorted by best score DESC, then mint ASC.
	TopMints []MintRow
}

// Summary describes the whole range.
type Summary struct {
	Snapshots      int
	UniqueMints    int
	Runs           int
	AboveThreshold int
	Enriched       int
	FirstScoredAt  int64 // Unix ms
	LastScoredAt   int64 // Unix ms
}

// SourceRow aggregates the snapshots reported by one source.
type SourceRow struct {
	Source             string
	Snapshots          int
	UniqueMints        int
	ScoreMean          float64
	ScoreStddev        float64
	ScoreMedian        float64
	ScoreP10           float64
	ScoreP90           float64
	AboveThresholdRate float64
	EnrichedRate       float64
	RugRiskMean        float64
	LiquidityMedianUSD float64
}

// MintRow is the best observation of one mint.
type MintRow struct {
	Mint          string
	Symbol        string
	Source        string
	BestScore     float64
	Snapshots     int
	LiquidityUSD  float64 // at the best score
	FirstScoredAt int64   // Unix ms
}
