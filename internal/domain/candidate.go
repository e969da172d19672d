package domain

import "time"

// Candidate is one discovered token under evaluation, keyed by Mint.
// The engine is the only writer; consumers receive clones.
type Candidate struct {
	Mint   string // token mint address, sole dedup key
	Symbol string // display only
	Name   string // display only

	// Market
	LiquidityUSD             float64
	Top10HolderShare         *float64 // nil when unknown
	LPLocked                 bool
	LPBurned                 bool
	MintAuthorityRenounced   bool
	FreezeAuthorityRenounced bool
	Decimals                 int
	PriceUSD                 *float64
	MarketCapUSD             *float64
	Volume24hUSD             *float64

	// Activity in the recent window
	UniqueBuyers int
	Buys         int
	Sells        int
	BuySellRatio float64

	// Scores, all in [0, 1]
	NoveltyScore      float64
	LiquidityScore    float64
	DistributionScore float64
	RugRiskScore      float64
	OverallScore      float64
	LastScore         float64

	Source      string
	FirstSeen   time.Time // bookkeeping time
	LastUpdated time.Time

	Telemetry Telemetry
}

// Telemetry carries provider hints and tracker-derived values.
type Telemetry struct {
	Source       string
	FirstPoolAt  *time.Time // on-chain pool creation time
	FirstTradeAt *time.Time // on-chain first trade time

	LiquidityHintUSD *float64
	Top10Hint        *float64
	PoolAddress      string
	DevWallet        string

	SpreadPercent      *float64
	BuyerAcceleration  *float64
	LPLockDelayMinutes *float64
	SeenFrom           []string

	// Window counters copied from the engine trade book.
	TradeBuys         int
	TradeSells        int
	TradeUniqueBuyers int

	Enriched         bool
	EnrichmentErrors []string
}

// OnChainTime returns the authoritative on-chain timestamp, preferring pool
// creation over first trade.
func (c *Candidate) OnChainTime() (time.Time, bool) {
	if c.Telemetry.FirstPoolAt != nil && !c.Telemetry.FirstPoolAt.IsZero() {
		return *c.Telemetry.FirstPoolAt, true
	}
	if c.Telemetry.FirstTradeAt != nil && !c.Telemetry.FirstTradeAt.IsZero() {
		return *c.Telemetry.FirstTradeAt, true
	}
	return time.Time{}, false
}

// OnChainAge returns the age relative to now. ok is false when no on-chain
// timestamp is known.
func (c *Candidate) OnChainAge(now time.Time) (age time.Duration, ok bool) {
	ts, ok := c.OnChainTime()
	if !ok {
		return 0, false
	}
	age = now.Sub(ts)
	if age < 0 {
		age = 0
	}
	return age, true
}

// SourceName returns the telemetry source, falling back to Source.
func (c *Candidate) SourceName() string {
	if c.Telemetry.Source != "" {
		return c.Telemetry.Source
	}
	return c.Source
}

// Top10Share returns the top-10 holder share and whether it is known.
func (c *Candidate) Top10Share() (float64, bool) {
	if c.Top10HolderShare == nil {
		return 0, false
	}
	return *c.Top10HolderShare, true
}

// ClampScores forces every score into [0, 1].
func (c *Candidate) ClampScores() {
	c.NoveltyScore = Clamp01(c.NoveltyScore)
	c.LiquidityScore = Clamp01(c.LiquidityScore)
	c.DistributionScore = Clamp01(c.DistributionScore)
	c.RugRiskScore = Clamp01(c.RugRiskScore)
	c.OverallScore = Clamp01(c.OverallScore)
	c.LastScore = Clamp01(c.LastScore)
}

// Clone returns a deep copy.
func (c *Candidate) Clone() *Candidate {
	if c == nil {
		return nil
	}
	out := *c
	out.Top10HolderShare = clonePtr(c.Top10HolderShare)
	out.PriceUSD = clonePtr(c.PriceUSD)
	out.MarketCapUSD = clonePtr(c.MarketCapUSD)
	out.Volume24hUSD = clonePtr(c.Volume24hUSD)

	t := &out.Telemetry
	t.FirstPoolAt = clonePtr(c.Telemetry.FirstPoolAt)
	t.FirstTradeAt = clonePtr(c.Telemetry.FirstTradeAt)
	t.LiquidityHintUSD = clonePtr(c.Telemetry.LiquidityHintUSD)
	t.Top10Hint = clonePtr(c.Telemetry.Top10Hint)
	t.SpreadPercent = clonePtr(c.Telemetry.SpreadPercent)
	t.BuyerAcceleration = clonePtr(c.Telemetry.BuyerAcceleration)
	t.LPLockDelayMinutes = clonePtr(c.Telemetry.LPLockDelayMinutes)
	if c.Telemetry.SeenFrom != nil {
		t.SeenFrom = append([]string(nil), c.Telemetry.SeenFrom...)
	}
	if c.Telemetry.EnrichmentErrors != nil {
		t.EnrichmentErrors = append([]string(nil), c.Telemetry.EnrichmentErrors...)
	}
	return &out
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
