package reporting

import (
	"bytes"
	"encoding/csv"
	"strconv"
)

// RenderSourcesCSV renders the per-source rows as CSV.
func RenderSourcesCSV(rows []SourceRow) (string, error) {
	records := [][]string{{
		"source", "snapshots", "unique_mints",
		"score_mean", "score_stddev", "score_median", "score_p10", "score_p90",
		"above_threshold_rate", "enriched_rate", "rug_risk_mean", "liquidity_median_usd",
	}}
	for _, r := range rows {
		records = append(records, []string{
			r.Source, strconv.Itoa(r.Snapshots), strconv.Itoa(r.UniqueMints),
			ftoa(r.ScoreMean), ftoa(r.ScoreStddev), ftoa(r.ScoreMedian), ftoa(r.ScoreP10), ftoa(r.ScoreP90),
			ftoa(r.AboveThresholdRate), ftoa(r.EnrichedRate), ftoa(r.RugRiskMean), ftoa(r.LiquidityMedianUSD),
		})
	}
	return writeCSV(records)
}

// RenderTopMintsCSV renders the top mint rows as CSV.
func RenderTopMintsCSV(rows []MintRow) (string, error) {
	records := [][]string{{
		"rank", "mint", "symbol", "source", "best_score", "snapshots", "liquidity_usd", "first_scored_at",
	}}
	for i, m := range rows {
		records = append(records, []string{
			strconv.Itoa(i + 1), m.Mint, m.Symbol, m.Source, ftoa(m.BestScore),
			strconv.Itoa(m.Snapshots), ftoa(m.LiquidityUSD), strconv.FormatInt(m.FirstScoredAt, 10),
		})
	}
	return writeCSV(records)
}

func writeCSV(records [][]string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
