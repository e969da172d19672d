package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders the report as Markdown.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Candidate Snapshot Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Range: %s to %s\n\n", formatMs(r.RangeStart), formatMs(r.RangeEnd)))

	s := r.Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Snapshots | %d |\n", s.Snapshots))
	sb.WriteString(fmt.Sprintf("| Unique Mints | %d |\n", s.UniqueMints))
	sb.WriteString(fmt.Sprintf("| Runs | %d |\n", s.Runs))
	sb.WriteString(fmt.Sprintf("| Above Threshold | %d |\n", s.AboveThreshold))
	sb.WriteString(fmt.Sprintf("| Enriched | %d |\n", s.Enriched))
	if s.Snapshots > 0 {
		sb.WriteString(fmt.Sprintf("| First Scored | %s |\n", formatMs(s.FirstScoredAt)))
		sb.WriteString(fmt.Sprintf("| Last Scored | %s |\n", formatMs(s.LastScoredAt)))
	}
	sb.WriteString("\n")

	sb.WriteString("## Sources\n\n")
	if len(r.Sources) > 0 {
		sb.WriteString("| Source | Snapshots | Mints | Mean | Stddev | Median | P10 | P90 | Above% | Enriched% | RugRisk | MedianLiqUSD |\n")
		sb.WriteString("|--------|-----------|-------|------|--------|--------|-----|-----|--------|-----------|---------|--------------|\n")
		for _, row := range r.Sources {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %.1f | %.1f | %.4f | %.2f |\n",
				row.Source, row.Snapshots, row.UniqueMints,
				row.ScoreMean, row.ScoreStddev, row.ScoreMedian, row.ScoreP10, row.ScoreP90,
				row.AboveThresholdRate*100, row.EnrichedRate*100, row.RugRiskMean, row.LiquidityMedianUSD))
		}
	} else {
		sb.WriteString("No snapshots in range.\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Top Mints\n\n")
	if len(r.TopMints) > 0 {
		sb.WriteString("| # | Mint | Symbol | Source | Best Score | Snapshots | LiqUSD | First Scored |\n")
		sb.WriteString("|---|------|--------|--------|------------|-----------|--------|--------------|\n")
		for i, m := range r.TopMints {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %.4f | %d | %.2f | %s |\n",
				i+1, m.Mint, escapeCell(m.Symbol), m.Source, m.BestScore, m.Snapshots,
				m.LiquidityUSD, formatMs(m.FirstScoredAt)))
		}
	} else {
		sb.WriteString("No mints in range.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// escapeCell keeps token symbols from breaking the table.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
