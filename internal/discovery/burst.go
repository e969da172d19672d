package discovery

import (
	"time"

	"solana-token-radar/internal/domain"
)

type burstState struct {
	windowStart time.Time
	last        time.Time
	count       int
}

// BurstGuard de-bounces repeated fresh-pass observations of the same mint.
type BurstGuard struct {
	cfg   BurstConfig
	state map[string]*burstState
}

// NewBurstGuard creates a guard with cfg.
func NewBurstGuard(cfg BurstConfig) *BurstGuard {
	return &BurstGuard{cfg: cfg, state: make(map[string]*burstState)}
}

// Allow records an observation of mint at now. It returns "" when the
// observation may proceed, or the drop reason.
func (g *BurstGuard) Allow(mint string, now time.Time) domain.FilterReason {
	st, ok := g.state[mint]
	if !ok {
		g.state[mint] = &burstState{windowStart: now, last: now, count: 1}
		return ""
	}

	if now.Sub(st.last) < g.cfg.MinGap {
		return domain.ReasonBurstSkip
	}
	sinceWindow := now.Sub(st.windowStart)
	if sinceWindow < g.cfg.Window && st.count >= g.cfg.MaxEvents {
		return domain.ReasonBurstThrottle
	}
	if sinceWindow > g.cfg.Window {
		st.windowStart = now
		st.count = 0
	}

	st.last = now
	st.count++
	return ""
}

// Forget drops the state of mint.
func (g *BurstGuard) Forget(mint string) {
	delete(g.state, mint)
}

// Len returns the number of tracked mints.
func (g *BurstGuard) Len() int {
	return len(g.state)
}

// Prune forgets mints last observed before cutoff unless keep reports them
// as still in use.
func (g *BurstGuard) Prune(cutoff time.Time, keep func(mint string) bool) {
	for mint, st := range g.state {
		if st.last.Before(cutoff) && (keep == nil || !keep(mint)) {
			delete(g.state, mint)
		}
	}
}
