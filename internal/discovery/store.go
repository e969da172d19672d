package discovery

import (
	"sort"
	"time"

	"solana-token-radar/internal/domain"
)

// Store is the bounded working set of scored candidates keyed by mint.
// Not safe for concurrent use; the engine serializes access.
type Store struct {
	items map[string]*domain.Candidate
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{items: make(map[string]*domain.Candidate)}
}

// Get returns the stored candidate for mint.
func (s *Store) Get(mint string) (*domain.Candidate, bool) {
	c, ok := s.items[mint]
	return c, ok
}

// Upsert stores c, replacing any previous entry for the same mint.
func (s *Store) Upsert(c *domain.Candidate) {
	s.items[c.Mint] = c
}

// Delete removes mint.
func (s *Store) Delete(mint string) {
	delete(s.items, mint)
}

// Len returns the number of stored candidates.
func (s *Store) Len() int {
	return len(s.items)
}

// Trim keeps the top capN candidates by overall score and returns the evicted
// mints. Ties are broken by mint so the retained set is deterministic.
// A non-positive capN disables trimming.
func (s *Store) Trim(capN int) []string {
	if capN <= 0 || len(s.items) <= capN {
		return nil
	}
	ranked := s.ranked()
	evicted := make([]string, 0, len(ranked)-capN)
	for _, c := range ranked[capN:] {
		delete(s.items, c.Mint)
		evicted = append(evicted, c.Mint)
	}
	return evicted
}

// Purge removes candidates whose best-known timestamp is at least ttl old and
// returns their mints. firstSeen supplies the last-resort timestamp.
// A zero ttl disables purging.
func (s *Store) Purge(now time.Time, ttl time.Duration, firstSeen func(mint string) (time.Time, bool)) []string {
	if ttl <= 0 {
		return nil
	}
	var removed []string
	for mint, c := range s.items {
		ts, ok := referenceTime(c, firstSeen)
		if !ok {
			continue
		}
		if now.Sub(ts) >= ttl {
			delete(s.items, mint)
			removed = append(removed, mint)
		}
	}
	sort.Strings(removed)
	return removed
}

// Best returns clones of up to k candidates with OverallScore >= minScore,
// highest first.
func (s *Store) Best(k int, minScore float64) []*domain.Candidate {
	if k <= 0 {
		return nil
	}
	out := make([]*domain.Candidate, 0, min(k, len(s.items)))
	for _, c := range s.ranked() {
		if len(out) == k {
			break
		}
		if c.OverallScore >= minScore {
			out = append(out, c.Clone())
		}
	}
	return out
}

// Snapshot returns clones of every stored candidate, highest score first.
func (s *Store) Snapshot() []*domain.Candidate {
	ranked := s.ranked()
	out := make([]*domain.Candidate, len(ranked))
	for i, c := range ranked {
		out[i] = c.Clone()
	}
	return out
}

func (s *Store) ranked() []*domain.Candidate {
	out := make([]*domain.Candidate, 0, len(s.items))
	for _, c := range s.items {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OverallScore != out[j].OverallScore {
			return out[i].OverallScore > out[j].OverallScore
		}
		return out[i].Mint < out[j].Mint
	})
	return out
}

// referenceTime picks on-chain time, then LastUpdated, then FirstSeen, then
// the tracker first-seen time.
func referenceTime(c *domain.Candidate, firstSeen func(string) (time.Time, bool)) (time.Time, bool) {
	if ts, ok := c.OnChainTime(); ok {
		return ts, true
	}
	if !c.LastUpdated.IsZero() {
		return c.LastUpdated, true
	}
	if !c.FirstSeen.IsZero() {
		return c.FirstSeen, true
	}
	if firstSeen != nil {
		return firstSeen(c.Mint)
	}
	return time.Time{}, false
}
