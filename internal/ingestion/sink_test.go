package ingestion

import (
	"sync"

	"solana-token-radar/internal/domain"
)

// recordingSink collects everything a source pushes.
type recordingSink struct {
	mu         sync.Mutex
	candidates []*domain.Candidate
	trades     []domain.TradeUpdate
}

func (s *recordingSink) PushCandidate(c *domain.Candidate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, c)
	return true
}

func (s *recordingSink) PushTrade(t domain.TradeUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
	return true
}

func (s *recordingSink) Candidates() []*domain.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Candidate(nil), s.candidates...)
}

func (s *recordingSink) Trades() []domain.TradeUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TradeUpdate(nil), s.trades...)
}
