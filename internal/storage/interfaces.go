package storage

import (
	"context"
	"time"

	"solana-token-radar/internal/domain"
)

// SnapshotStore persists scored candidate snapshots (PostgreSQL).
// Snapshots are append-only and keyed by SnapshotID.
type SnapshotStore interface {
	// Insert adds a snapshot. Returns ErrDuplicateKey if SnapshotID exists.
	Insert(ctx context.Context, s *domain.CandidateSnapshot) error

	// InsertBulk adds snapshots atomically. Returns ErrDuplicateKey if any
	// SnapshotID exists, in which case nothing is written.
	InsertBulk(ctx context.Context, snaps []*domain.CandidateSnapshot) error

	// GetByID returns ErrNotFound if the snapshot does not exist.
	GetByID(ctx context.Context, snapshotID string) (*domain.CandidateSnapshot, error)

	// GetByMint returns every snapshot of a mint, ordered by scored_at ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.CandidateSnapshot, error)

	// GetByTimeRange returns snapshots scored within [start, end] (Unix ms,
	// inclusive), ordered by scored_at ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.CandidateSnapshot, error)
}

// ScoreEventStore stores the score stream for analytics (ClickHouse).
type ScoreEventStore interface {
	// InsertBulk appends events. Returns ErrDuplicateKey on a repeated
	// SnapshotID, in which case nothing is written.
	InsertBulk(ctx context.Context, events []*domain.CandidateSnapshot) error

	// GetByMint returns events for a mint ordered by scored_at ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.CandidateSnapshot, error)

	// GetByTimeRange returns events within [start, end] (Unix ms, inclusive).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.CandidateSnapshot, error)
}

// ShortlistCache holds the latest published shortlist (Redis).
type ShortlistCache interface {
	// Publish replaces the current shortlist.
	Publish(ctx context.Context, entries []domain.ShortlistEntry) error

	// Top returns up to k entries of the current shortlist by rank.
	Top(ctx context.Context, k int) ([]domain.ShortlistEntry, error)

	// MarkSeen records that mint has been announced. It reports true only
	// the first time within ttl.
	MarkSeen(ctx context.Context, mint string, ttl time.Duration) (bool, error)
}
