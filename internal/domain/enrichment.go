package domain

import "math"

// MintInfo is the authority state of a token mint.
type MintInfo struct {
	RenouncedMint   bool
	RenouncedFreeze bool
	Decimals        int
	Supply          uint64 // raw units
}

// LPInfo describes the liquidity pool backing a token.
type LPInfo struct {
	LockedOrBurned bool
	LiquidityUSD   float64
	PoolAddress    string
	LPMint         string
}

// Distribution is the top-holder concentration of a token.
type Distribution struct {
	TopShare     float64 // fraction of supply held by the top N accounts
	TotalHolders int     // accounts inspected, not the full holder count
}

// FlowStats are windowed trade-flow statistics.
type FlowStats struct {
	UniqueBuyers  int
	UniqueSellers int
	Buys          int
	Sells         int
}

// BuySellRatio returns buys/sells. With no sells it is +Inf when there are
// buys and 1.0 otherwise.
func (f FlowStats) BuySellRatio() float64 {
	if f.Sells == 0 {
		if f.Buys > 0 {
			return math.Inf(1)
		}
		return 1.0
	}
	return float64(f.Buys) / float64(f.Sells)
}
