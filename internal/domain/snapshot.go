package domain

import "strings"

// CandidateSnapshot is the persisted view of a scored candidate.
// Corresponds to candidate_snapshots table in PostgreSQL and score_events
// table in ClickHouse.
type CandidateSnapshot struct {
	SnapshotID string // deterministic hash of (mint, source, scored_at)
	RunID      string // engine process identifier
	Mint       string
	Symbol     string
	Name       string
	Source     string
	SeenFrom   []string

	LiquidityUSD     float64
	Top10Share       *float64
	UniqueBuyers     int
	Buys             int
	Sells            int
	BuySellRatio     float64
	AuthorityOK      bool // both authorities renounced
	LPLockedOrBurned bool
	Enriched         bool

	NoveltyScore      float64
	LiquidityScore    float64
	DistributionScore float64
	RugRiskScore      float64
	OverallScore      float64
	Threshold         float64

	OnChainAt *int64 // Unix ms, nil when unknown
	ScoredAt  int64  // Unix ms
	CreatedAt int64  // record creation timestamp (ms)
}

// AboveThreshold reports whether the snapshot cleared the threshold in
// effect when it was scored.
func (s *CandidateSnapshot) AboveThreshold() bool {
	return s.OverallScore >= s.Threshold
}

// SeenFromCSV joins SeenFrom for column storage.
func (s *CandidateSnapshot) SeenFromCSV() string {
	return strings.Join(s.SeenFrom, ",")
}

// SnapshotFromCandidate flattens c. SnapshotID is left to the caller.
func SnapshotFromCandidate(c *Candidate, runID string, threshold float64, scoredAtMs int64) *CandidateSnapshot {
	s := &CandidateSnapshot{
		RunID:             runID,
		Mint:              c.Mint,
		Symbol:            c.Symbol,
		Name:              c.Name,
		Source:            c.SourceName(),
		LiquidityUSD:      c.LiquidityUSD,
		Top10Share:        clonePtr(c.Top10HolderShare),
		UniqueBuyers:      c.UniqueBuyers,
		Buys:              c.Buys,
		Sells:             c.Sells,
		BuySellRatio:      c.BuySellRatio,
		AuthorityOK:       c.MintAuthorityRenounced && c.FreezeAuthorityRenounced,
		LPLockedOrBurned:  c.LPLocked || c.LPBurned,
		Enriched:          c.Telemetry.Enriched,
		NoveltyScore:      c.NoveltyScore,
		LiquidityScore:    c.LiquidityScore,
		DistributionScore: c.DistributionScore,
		RugRiskScore:      c.RugRiskScore,
		OverallScore:      c.OverallScore,
		Threshold:         threshold,
		ScoredAt:          scoredAtMs,
	}
	if len(c.Telemetry.SeenFrom) > 0 {
		s.SeenFrom = append([]string(nil), c.Telemetry.SeenFrom...)
	}
	if ts, ok := c.OnChainTime(); ok {
		ms := ts.UnixMilli()
		s.OnChainAt = &ms
	}
	return s
}
