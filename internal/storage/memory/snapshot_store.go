package memory

import (
	"context"
	"sort"
	"sync"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/storage"
)

// SnapshotStore is an in-memory storage.SnapshotStore. It also satisfies
// storage.ScoreEventStore, so one type backs both roles when no database is
// configured.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*domain.CandidateSnapshot // keyed by snapshot id
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[string]*domain.CandidateSnapshot)}
}

var (
	_ storage.SnapshotStore   = (*SnapshotStore)(nil)
	_ storage.ScoreEventStore = (*SnapshotStore)(nil)
)

// Insert adds a snapshot. Returns ErrDuplicateKey if the id exists.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.CandidateSnapshot) error {
	return s.InsertBulk(ctx, []*domain.CandidateSnapshot{snap})
}

// InsertBulk adds all snapshots or none.
func (s *SnapshotStore) InsertBulk(_ context.Context, snaps []*domain.CandidateSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(snaps))
	for _, snap := range snaps {
		if snap == nil || snap.SnapshotID == "" {
			return storage.ErrInvalidInput
		}
		if _, ok := s.data[snap.SnapshotID]; ok {
			return storage.ErrDuplicateKey
		}
		if _, ok := batch[snap.SnapshotID]; ok {
			return storage.ErrDuplicateKey
		}
		batch[snap.SnapshotID] = struct{}{}
	}
	for _, snap := range snaps {
		s.data[snap.SnapshotID] = copySnapshot(snap)
	}
	return nil
}

// GetByID returns ErrNotFound if the snapshot does not exist.
func (s *SnapshotStore) GetByID(_ context.Context, snapshotID string) (*domain.CandidateSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[snapshotID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copySnapshot(snap), nil
}

// GetByMint returns snapshots of mint ordered by scored_at.
func (s *SnapshotStore) GetByMint(_ context.Context, mint string) ([]*domain.CandidateSnapshot, error) {
	return s.collect(func(snap *domain.CandidateSnapshot) bool { return snap.Mint == mint }), nil
}

// GetByTimeRange returns snapshots scored within [start, end].
func (s *SnapshotStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.CandidateSnapshot, error) {
	return s.collect(func(snap *domain.CandidateSnapshot) bool {
		return snap.ScoredAt >= start && snap.ScoredAt <= end
	}), nil
}

// Len returns the number of stored snapshots.
func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *SnapshotStore) collect(match func(*domain.CandidateSnapshot) bool) []*domain.CandidateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CandidateSnapshot
	for _, snap := range s.data {
		if match(snap) {
			result = append(result, copySnapshot(snap))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ScoredAt != result[j].ScoredAt {
			return result[i].ScoredAt < result[j].ScoredAt
		}
		return result[i].SnapshotID < result[j].SnapshotID
	})
	return result
}

func copySnapshot(snap *domain.CandidateSnapshot) *domain.CandidateSnapshot {
	cp := *snap
	if snap.SeenFrom != nil {
		cp.SeenFrom = append([]string(nil), snap.SeenFrom...)
	}
	if snap.Top10Share != nil {
		v := *snap.Top10Share
		cp.Top10Share = &v
	}
	if snap.OnChainAt != nil {
		v := *snap.OnChainAt
		cp.OnChainAt = &v
	}
	return &cp
}
