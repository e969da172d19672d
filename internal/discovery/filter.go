package discovery

import (
	"time"

	"solana-token-radar/internal/domain"
)

// Path identifies which admission path accepted a candidate.
type Path string

const (
	PathFreshPass   Path = "fresh_pass"
	PathFreshWindow Path = "fresh_window"
	PathStandard    Path = "standard"
)

// Decision is the outcome of the fast filter.
type Decision struct {
	Admitted bool
	Path     Path
	Reason   domain.FilterReason // set on rejection
	Fresh    bool                // fresh by on-chain age
	Age      time.Duration       // on-chain age, zero when unknown
}

// Recordable reports whether the rejection belongs in the reason history.
// Burst drops are flow control, not quality signals.
func (d Decision) Recordable() bool {
	if d.Admitted {
		return false
	}
	return d.Reason != domain.ReasonBurstSkip && d.Reason != domain.ReasonBurstThrottle
}

// FastFilter decides, before any external call, whether a candidate is
// worth enriching. It performs no I/O.
type FastFilter struct {
	cfg     Config
	burst   *BurstGuard
	trades  *TradeBook
	sources map[string]struct{}
}

// NewFastFilter creates a filter reading trade activity from trades.
func NewFastFilter(cfg Config, burst *BurstGuard, trades *TradeBook) *FastFilter {
	sources := make(map[string]struct{}, len(cfg.FreshPass.Sources))
	for _, s := range cfg.FreshPass.Sources {
		sources[s] = struct{}{}
	}
	return &FastFilter{cfg: cfg, burst: burst, trades: trades, sources: sources}
}

// IsFresh reports whether c is fresh by on-chain age. A candidate without an
// on-chain timestamp is never fresh.
func (f *FastFilter) IsFresh(c *domain.Candidate, now time.Time) bool {
	age, ok := c.OnChainAge(now)
	return ok && age <= f.cfg.FreshAge
}

// Evaluate runs the fresh-pass path, the secondary fresh window and the
// standard path, in that order.
func (f *FastFilter) Evaluate(c *domain.Candidate, now time.Time) Decision {
	age, known := c.OnChainAge(now)
	fresh := known && age <= f.cfg.FreshAge

	if d, done := f.freshPass(c, now, age, known); done {
		d.Fresh = fresh
		return d
	}

	if fresh && age <= f.cfg.FreshWindow {
		buyers := c.Telemetry.TradeUniqueBuyers
		if buyers == 0 {
			buyers = c.UniqueBuyers
		}
		buys := c.Telemetry.TradeBuys
		if buys == 0 {
			buys = c.Buys
		}
		sells := c.Telemetry.TradeSells
		if sells == 0 {
			sells = c.Sells
		}
		if buyers >= f.cfg.TradeMinUniqueBuyers || buys+sells >= f.cfg.TradeMinTrades {
			return Decision{Admitted: true, Path: PathFreshWindow, Fresh: true, Age: age}
		}
	}

	reject := func(r domain.FilterReason) Decision {
		return Decision{Path: PathStandard, Reason: r, Fresh: fresh, Age: age}
	}

	minLiq := f.cfg.MinLiquidityUSD
	if fresh {
		minLiq = f.cfg.MinLiquidityFreshUSD
	}
	if c.LiquidityUSD < minLiq {
		return reject(domain.ReasonLowLiquidity)
	}

	if !fresh && !f.controlsOK(c) {
		return reject(domain.ReasonRugControlsMissing)
	}

	maxShare := f.cfg.MaxTop10Share
	if fresh {
		maxShare = f.cfg.MaxTop10ShareFresh
	}
	share, ok := c.Top10Share()
	if !ok {
		share = 1.0
	}
	if share > maxShare {
		return reject(domain.ReasonConcentratedHolders)
	}

	return Decision{Admitted: true, Path: PathStandard, Fresh: fresh, Age: age}
}

// freshPass returns done=true when the fresh-pass path reached a verdict.
// Candidates that are eligible but lack activity fall through.
func (f *FastFilter) freshPass(c *domain.Candidate, now time.Time, age time.Duration, known bool) (Decision, bool) {
	if !f.cfg.FreshPass.Enabled || !known || age > f.cfg.FreshPass.TTL {
		return Decision{}, false
	}
	if _, ok := f.sources[c.SourceName()]; !ok {
		return Decision{}, false
	}

	if r := f.burst.Allow(c.Mint, now); r != "" {
		return Decision{Path: PathFreshPass, Reason: r, Age: age}, true
	}

	counts, _ := f.trades.Counts(c.Mint)
	minBuyers := max(1, f.cfg.FreshPass.MinUniqueBuyers)
	minTrades := max(1, f.cfg.FreshPass.MinTrades)
	if counts.UniqueBuyers >= minBuyers || counts.Trades() >= minTrades {
		return Decision{Admitted: true, Path: PathFreshPass, Age: age}, true
	}
	return Decision{}, false
}

func (f *FastFilter) controlsOK(c *domain.Candidate) bool {
	if f.cfg.RequireLPLocked && !(c.LPLocked || c.LPBurned) {
		return false
	}
	if f.cfg.RequireRenounced && !(c.MintAuthorityRenounced && c.FreezeAuthorityRenounced) {
		return false
	}
	return true
}
