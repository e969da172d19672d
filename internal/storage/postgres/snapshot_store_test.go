package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/storage"
)

func testSnapshot(id, mint string, scoredAt int64) *domain.CandidateSnapshot {
	return &domain.CandidateSnapshot{
		SnapshotID:        id,
		RunID:             "run-1",
		Mint:              mint,
		Symbol:            "RDR",
		Name:              "Radar",
		Source:            domain.SourcePumpPortalWS,
		SeenFrom:          []string{domain.SourcePumpPortalWS, domain.SourceHeliusLogs},
		LiquidityUSD:      12500,
		Top10Share:        ptr(0.42),
		UniqueBuyers:      7,
		Buys:              9,
		Sells:             3,
		BuySellRatio:      3,
		AuthorityOK:       true,
		LPLockedOrBurned:  true,
		Enriched:          true,
		NoveltyScore:      0.9,
		LiquidityScore:    0.5,
		DistributionScore: 0.58,
		RugRiskScore:      0.1,
		OverallScore:      0.71,
		Threshold:         0.62,
		OnChainAt:         ptr(scoredAt - 30000),
		ScoredAt:          scoredAt,
	}
}

func TestSnapshotStore_InsertAndGetByID(t *testing.T) {
	pool := setupTestDB(t)
	store := NewSnapshotStore(pool)
	ctx := context.Background()

	snap := testSnapshot("snap-001", "MintA", 1700000000000)
	require.NoError(t, store.Insert(ctx, snap))

	got, err := store.GetByID(ctx, "snap-001")
	require.NoError(t, err)
	assert.Equal(t, snap.Mint, got.Mint)
	assert.Equal(t, snap.SeenFrom, got.SeenFrom)
	require.NotNil(t, got.Top10Share)
	assert.InDelta(t, 0.42, *got.Top10Share, 1e-9)
	require.NotNil(t, got.OnChainAt)
	assert.Equal(t, *snap.OnChainAt, *got.OnChainAt)
	assert.Equal(t, snap.OverallScore, got.OverallScore)
	assert.True(t, got.AuthorityOK)
	assert.NotZero(t, got.CreatedAt)
}

func TestSnapshotStore_NullableFields(t *testing.T) {
	pool := setupTestDB(t)
	store := NewSnapshotStore(pool)
	ctx := context.Background()

	snap := testSnapshot("snap-null", "MintN", 1700000000000)
	snap.Top10Share = nil
	snap.OnChainAt = nil
	snap.SeenFrom = nil
	require.NoError(t, store.Insert(ctx, snap))

	got, err := store.GetByID(ctx, "snap-null")
	require.NoError(t, err)
	assert.Nil(t, got.Top10Share)
	assert.Nil(t, got.OnChainAt)
	assert.Nil(t, got.SeenFrom)
}

func TestSnapshotStore_Errors(t *testing.T) {
	pool := setupTestDB(t)
	store := NewSnapshotStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testSnapshot("snap-dup", "MintA", 1)))
	assert.ErrorIs(t, store.Insert(ctx, testSnapshot("snap-dup", "MintA", 2)), storage.ErrDuplicateKey)

	_, err := store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.Insert(ctx, &domain.CandidateSnapshot{}), storage.ErrInvalidInput)
}

func TestSnapshotStore_InsertBulkIsAtomic(t *testing.T) {
	pool := setupTestDB(t)
	store := NewSnapshotStore(pool)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.CandidateSnapshot{
		testSnapshot("b-1", "MintA", 3000),
		testSnapshot("b-2", "MintA", 1000),
		testSnapshot("b-3", "MintB", 2000),
	}))

	err := store.InsertBulk(ctx, []*domain.CandidateSnapshot{
		testSnapshot("b-4", "MintC", 4000),
		testSnapshot("b-1", "MintA", 5000),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	_, err = store.GetByID(ctx, "b-4")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	byMint, err := store.GetByMint(ctx, "MintA")
	require.NoError(t, err)
	require.Len(t, byMint, 2)
	assert.Equal(t, "b-2", byMint[0].SnapshotID)
	assert.Equal(t, "b-1", byMint[1].SnapshotID)

	inRange, err := store.GetByTimeRange(ctx, 1000, 2000)
	require.NoError(t, err)
	require.Len(t, inRange, 2)
	assert.Equal(t, "b-2", inRange[0].SnapshotID)
	assert.Equal(t, "b-3", inRange[1].SnapshotID)
}
