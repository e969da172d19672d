package clickhouse

import (
	"context"
	"fmt"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/storage"
)

// ScoreEventStore implements storage.ScoreEventStore on the score_events
// MergeTree table.
type ScoreEventStore struct {
	conn *Conn
}

// NewScoreEventStore creates a ScoreEventStore.
func NewScoreEventStore(conn *Conn) *ScoreEventStore {
	return &ScoreEventStore{conn: conn}
}

var _ storage.ScoreEventStore = (*ScoreEventStore)(nil)

const selectScoreEventSQL = `
	SELECT snapshot_id, run_id, mint, symbol, source, seen_from,
		liquidity_usd, top10_share, unique_buyers, buys, sells, buy_sell_ratio,
		authority_ok, lp_locked_or_burned, enriched,
		novelty_score, liquidity_score, distribution_score, rug_risk_score,
		overall_score, threshold, on_chain_at, scored_at
	FROM score_events
`

// InsertBulk appends events in one batch. MergeTree does not enforce keys,
// so duplicates are checked within the batch and against stored rows first.
func (s *ScoreEventStore) InsertBulk(ctx context.Context, events []*domain.CandidateSnapshot) error {
	if len(events) == 0 {
		return nil
	}

	ids := make([]string, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.SnapshotID == "" {
			return storage.ErrInvalidInput
		}
		if _, dup := seen[e.SnapshotID]; dup {
			return storage.ErrDuplicateKey
		}
		seen[e.SnapshotID] = struct{}{}
		ids = append(ids, e.SnapshotID)
	}

	var existing uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM score_events WHERE snapshot_id IN (?)`, ids).Scan(&existing); err != nil {
		return fmt.Errorf("check existing: %w", err)
	}
	if existing > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO score_events (
			snapshot_id, run_id, mint, symbol, source, seen_from,
			liquidity_usd, top10_share, unique_buyers, buys, sells, buy_sell_ratio,
			authority_ok, lp_locked_or_burned, enriched,
			novelty_score, liquidity_score, distribution_score, rug_risk_score,
			overall_score, threshold, on_chain_at, scored_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		seenFrom := e.SeenFrom
		if seenFrom == nil {
			seenFrom = []string{}
		}
		err = batch.Append(
			e.SnapshotID, e.RunID, e.Mint, e.Symbol, e.Source, seenFrom,
			e.LiquidityUSD, e.Top10Share, uint32(e.UniqueBuyers), uint32(e.Buys), uint32(e.Sells), e.BuySellRatio,
			boolToUInt8(e.AuthorityOK), boolToUInt8(e.LPLockedOrBurned), boolToUInt8(e.Enriched),
			e.NoveltyScore, e.LiquidityScore, e.DistributionScore, e.RugRiskScore,
			e.OverallScore, e.Threshold, e.OnChainAt, e.ScoredAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByMint returns events for a mint ordered by scored_at.
func (s *ScoreEventStore) GetByMint(ctx context.Context, mint string) ([]*domain.CandidateSnapshot, error) {
	rows, err := s.conn.Query(ctx, selectScoreEventSQL+`
		WHERE mint = ?
		ORDER BY scored_at ASC, snapshot_id ASC
	`, mint)
	if err != nil {
		return nil, fmt.Errorf("query by mint: %w", err)
	}
	defer rows.Close()
	return scanScoreEvents(rows)
}

// GetByTimeRange returns events within [start, end].
func (s *ScoreEventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.CandidateSnapshot, error) {
	rows, err := s.conn.Query(ctx, selectScoreEventSQL+`
		WHERE scored_at >= ? AND scored_at <= ?
		ORDER BY scored_at ASC, snapshot_id ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()
	return scanScoreEvents(rows)
}

func scanScoreEvents(rows chRows) ([]*domain.CandidateSnapshot, error) {
	var events []*domain.CandidateSnapshot
	for rows.Next() {
		var e domain.CandidateSnapshot
		var uniqueBuyers, buys, sells uint32
		var authorityOK, lpOK, enriched uint8

		err := rows.Scan(
			&e.SnapshotID, &e.RunID, &e.Mint, &e.Symbol, &e.Source, &e.SeenFrom,
			&e.LiquidityUSD, &e.Top10Share, &uniqueBuyers, &buys, &sells, &e.BuySellRatio,
			&authorityOK, &lpOK, &enriched,
			&e.NoveltyScore, &e.LiquidityScore, &e.DistributionScore, &e.RugRiskScore,
			&e.OverallScore, &e.Threshold, &e.OnChainAt, &e.ScoredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan score event row: %w", err)
		}

		e.UniqueBuyers = int(uniqueBuyers)
		e.Buys = int(buys)
		e.Sells = int(sells)
		e.AuthorityOK = authorityOK == 1
		e.LPLockedOrBurned = lpOK == 1
		e.Enriched = enriched == 1
		if len(e.SeenFrom) == 0 {
			e.SeenFrom = nil
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score event rows: %w", err)
	}
	return events, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
