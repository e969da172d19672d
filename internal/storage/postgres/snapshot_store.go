package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore on the candidate_snapshots
// table.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

const insertSnapshotSQL = `
	INSERT INTO candidate_snapshots (
		snapshot_id, run_id, mint, symbol, name, source, seen_from,
		liquidity_usd, top10_share, unique_buyers, buys, sells, buy_sell_ratio,
		authority_ok, lp_locked_or_burned, enriched,
		novelty_score, liquidity_score, distribution_score, rug_risk_score,
		overall_score, threshold, on_chain_at, scored_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, $9, $10, $11, $12, $13,
		$14, $15, $16,
		$17, $18, $19, $20,
		$21, $22, $23, $24
	)
`

const selectSnapshotSQL = `
	SELECT snapshot_id, run_id, mint, symbol, name, source, seen_from,
		liquidity_usd, top10_share, unique_buyers, buys, sells, buy_sell_ratio,
		authority_ok, lp_locked_or_burned, enriched,
		novelty_score, liquidity_score, distribution_score, rug_risk_score,
		overall_score, threshold, on_chain_at, scored_at, created_at
	FROM candidate_snapshots
`

// Insert adds a snapshot. Returns ErrDuplicateKey if snapshot_id exists.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.CandidateSnapshot) error {
	if snap == nil || snap.SnapshotID == "" {
		return storage.ErrInvalidInput
	}
	if _, err := s.pool.Exec(ctx, insertSnapshotSQL, snapshotArgs(snap)...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// InsertBulk adds snapshots in one transaction.
func (s *SnapshotStore) InsertBulk(ctx context.Context, snaps []*domain.CandidateSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	for _, snap := range snaps {
		if snap == nil || snap.SnapshotID == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, snap := range snaps {
		batch.Queue(insertSnapshotSQL, snapshotArgs(snap)...)
	}
	results := tx.SendBatch(ctx, batch)
	for range snaps {
		if _, err := results.Exec(); err != nil {
			results.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert snapshot in bulk: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID returns ErrNotFound if the snapshot does not exist.
func (s *SnapshotStore) GetByID(ctx context.Context, snapshotID string) (*domain.CandidateSnapshot, error) {
	row := s.pool.QueryRow(ctx, selectSnapshotSQL+` WHERE snapshot_id = $1`, snapshotID)
	snap, err := scanSnapshot(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot by id: %w", err)
	}
	return snap, nil
}

// GetByMint returns every snapshot of a mint ordered by scored_at.
func (s *SnapshotStore) GetByMint(ctx context.Context, mint string) ([]*domain.CandidateSnapshot, error) {
	rows, err := s.pool.Query(ctx, selectSnapshotSQL+`
		WHERE mint = $1
		ORDER BY scored_at ASC, snapshot_id ASC
	`, mint)
	if err != nil {
		return nil, fmt.Errorf("query snapshots by mint: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// GetByTimeRange returns snapshots scored within [start, end].
func (s *SnapshotStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.CandidateSnapshot, error) {
	rows, err := s.pool.Query(ctx, selectSnapshotSQL+`
		WHERE scored_at >= $1 AND scored_at <= $2
		ORDER BY scored_at ASC, snapshot_id ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query snapshots by time range: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func snapshotArgs(snap *domain.CandidateSnapshot) []any {
	seenFrom := snap.SeenFrom
	if seenFrom == nil {
		seenFrom = []string{}
	}
	return []any{
		snap.SnapshotID, snap.RunID, snap.Mint, snap.Symbol, snap.Name, snap.Source, seenFrom,
		snap.LiquidityUSD, snap.Top10Share, snap.UniqueBuyers, snap.Buys, snap.Sells, snap.BuySellRatio,
		snap.AuthorityOK, snap.LPLockedOrBurned, snap.Enriched,
		snap.NoveltyScore, snap.LiquidityScore, snap.DistributionScore, snap.RugRiskScore,
		snap.OverallScore, snap.Threshold, snap.OnChainAt, snap.ScoredAt,
	}
}

func scanSnapshot(row pgx.Row) (*domain.CandidateSnapshot, error) {
	var snap domain.CandidateSnapshot
	err := row.Scan(
		&snap.SnapshotID, &snap.RunID, &snap.Mint, &snap.Symbol, &snap.Name, &snap.Source, &snap.SeenFrom,
		&snap.LiquidityUSD, &snap.Top10Share, &snap.UniqueBuyers, &snap.Buys, &snap.Sells, &snap.BuySellRatio,
		&snap.AuthorityOK, &snap.LPLockedOrBurned, &snap.Enriched,
		&snap.NoveltyScore, &snap.LiquidityScore, &snap.DistributionScore, &snap.RugRiskScore,
		&snap.OverallScore, &snap.Threshold, &snap.OnChainAt, &snap.ScoredAt, &snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(snap.SeenFrom) == 0 {
		snap.SeenFrom = nil
	}
	return &snap, nil
}

func scanSnapshots(rows pgx.Rows) ([]*domain.CandidateSnapshot, error) {
	var snaps []*domain.CandidateSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return snaps, nil
}
