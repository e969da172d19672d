package onchain

import (
	"sync"
	"time"
)

// PoolKind distinguishes how a pool's liquidity is read.
type PoolKind string

const (
	// PoolBondingCurve is a pump.fun bonding curve; its SOL reserves cannot be
	// withdrawn by the creator.
	PoolBondingCurve PoolKind = "bonding_curve"
	// PoolAMM is a constant-product AMM pool with an LP mint.
	PoolAMM PoolKind = "amm"
)

// Pool is the liquidity venue of a mint.
type Pool struct {
	Kind    PoolKind
	Address string
	// QuoteVault is the wSOL token account of an AMM pool.
	QuoteVault string
	// BaseVault holds the pool's side of the token; excluded from holder
	// concentration.
	BaseVault string
	LPMint    string

	RegisteredAt time.Time
}

// PoolRegistry maps mints to their pools as sources discover them.
type PoolRegistry struct {
	mu    sync.RWMutex
	pools map[string]Pool
	limit int
}

// NewPoolRegistry creates a registry holding at most limit mints; the oldest
// registration is evicted beyond that. limit <= 0 means 10000.
func NewPoolRegistry(limit int) *PoolRegistry {
	if limit <= 0 {
		limit = 10000
	}
	return &PoolRegistry{pools: make(map[string]Pool), limit: limit}
}

// Register records pool for mint. A later AMM registration replaces a
// bonding curve (migration); a bonding curve never replaces an AMM pool.
func (r *PoolRegistry) Register(mint string, pool Pool) {
	if mint == "" || pool.Address == "" {
		return
	}
	if pool.RegisteredAt.IsZero() {
		pool.RegisteredAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.pools[mint]; ok && existing.Kind == PoolAMM && pool.Kind == PoolBondingCurve {
		return
	}
	r.pools[mint] = pool
	if len(r.pools) > r.limit {
		r.evictOldestLocked()
	}
}

func (r *PoolRegistry) evictOldestLocked() {
	var (
		oldestMint string
		oldest     time.Time
	)
	for mint, p := range r.pools {
		if oldestMint == "" || p.RegisteredAt.Before(oldest) {
			oldestMint, oldest = mint, p.RegisteredAt
		}
	}
	delete(r.pools, oldestMint)
}

// Lookup returns the pool registered for mint.
func (r *PoolRegistry) Lookup(mint string) (Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[mint]
	return p, ok
}

// Forget removes mint.
func (r *PoolRegistry) Forget(mint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pools, mint)
}

// Len returns the number of registered mints.
func (r *PoolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}
