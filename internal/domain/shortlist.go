package domain

// ShortlistEntry is one ranked row of a published shortlist.
type ShortlistEntry struct {
	Rank         int     `json:"rank"` // 1-based
	Mint         string  `json:"mint"`
	Symbol       string  `json:"symbol,omitempty"`
	Name         string  `json:"name,omitempty"`
	Source       string  `json:"source"`
	Score        float64 `json:"score"`
	LiquidityUSD float64 `json:"liquidity_usd"`
	RugRiskScore float64 `json:"rug_risk_score"`
	RunID        string  `json:"run_id"`
	PublishedAt  int64   `json:"published_at"` // Unix ms
}

// ShortlistFromCandidates ranks cands in the order given.
func ShortlistFromCandidates(cands []*Candidate, runID string, publishedAtMs int64) []ShortlistEntry {
	out := make([]ShortlistEntry, 0, len(cands))
	for _, c := range cands {
		if c == nil {
			continue
		}
		out = append(out, ShortlistEntry{
			Rank:         len(out) + 1,
			Mint:         c.Mint,
			Symbol:       c.Symbol,
			Name:         c.Name,
			Source:       c.SourceName(),
			Score:        c.OverallScore,
			LiquidityUSD: c.LiquidityUSD,
			RugRiskScore: c.RugRiskScore,
			RunID:        runID,
			PublishedAt:  publishedAtMs,
		})
	}
	return out
}
