package discovery

import (
	"math"
	"time"

	"solana-token-radar/internal/domain"
)

// Novelty, liquidity and distribution step values.
const (
	noveltyUltra  = 1.0
	noveltyFresh  = 0.8
	noveltyRecent = 0.6
	noveltyStale  = 0.3

	liquidityHigh = 1.0
	liquidityMid  = 0.8
	liquidityLow  = 0.6

	distributionGood = 1.0
	distributionFair = 0.8
	distributionPoor = 0.5
)

// ScoreBreakdown exposes the intermediate terms of the last Score call.
type ScoreBreakdown struct {
	Base     float64
	Activity float64
	Momentum float64
	AgeKnown bool
	Age      time.Duration
}

// Scorer computes sub-scores and the overall score.
type Scorer struct {
	cfg ScoringConfig
}

// NewScorer creates a scorer with cfg.
func NewScorer(cfg ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score sets every score field of c and returns the breakdown.
// Age comes only from the on-chain timestamp; an unknown age scores as stale
// and earns no momentum bonus.
func (s *Scorer) Score(c *domain.Candidate, now time.Time) ScoreBreakdown {
	cfg := s.cfg
	age, known := c.OnChainAge(now)

	c.NoveltyScore = s.novelty(age, known)
	c.LiquidityScore = s.liquidity(c.LiquidityUSD)

	share, shareKnown := c.Top10Share()
	c.DistributionScore = s.distribution(share, shareKnown)

	rug := 0.0
	if !(c.MintAuthorityRenounced && c.FreezeAuthorityRenounced) {
		rug += cfg.RiskAuthority
	}
	if !(c.LPLocked || c.LPBurned) {
		rug += cfg.RiskUnlockedLP
	}
	if shareKnown && share > cfg.ConcentrationMax {
		rug += cfg.RiskConcentration
	}
	c.RugRiskScore = rug

	uniq, buys, sells := activity(c)
	ratio := c.BuySellRatio
	if ratio <= 0 && buys+sells > 0 {
		ratio = float64(buys) / float64(max(sells, 1))
	}

	base := c.NoveltyScore*cfg.WeightNovelty +
		c.LiquidityScore*cfg.WeightLiquidity +
		c.DistributionScore*cfg.WeightDistribution +
		saturate(float64(uniq), cfg.BuyersSaturation)*cfg.WeightBuyers +
		saturate(ratio, cfg.RatioSaturation)*cfg.WeightRatio

	var activityBonus float64
	switch {
	case uniq >= cfg.ActivityHighMin && buys >= cfg.ActivityHighMin:
		activityBonus = cfg.ActivityHighBonus
	case uniq >= cfg.ActivityLowMin && buys >= cfg.ActivityLowMin:
		activityBonus = cfg.ActivityLowBonus
	}

	var momentum float64
	if known {
		switch {
		case age < cfg.MomentumFastAge:
			if uniq >= cfg.MomentumFastBuyers {
				momentum = cfg.MomentumFastBonus
			}
		case age < cfg.MomentumSlowAge:
			if uniq >= cfg.MomentumSlowBuyers {
				momentum = cfg.MomentumSlowBonus
			}
		}
	}

	c.OverallScore = base - c.RugRiskScore + activityBonus + momentum
	c.ClampScores()
	c.LastScore = c.OverallScore

	return ScoreBreakdown{Base: base, Activity: activityBonus, Momentum: momentum, AgeKnown: known, Age: age}
}

func (s *Scorer) novelty(age time.Duration, known bool) float64 {
	if !known {
		return noveltyStale
	}
	switch {
	case age < s.cfg.NoveltyUltraAge:
		return noveltyUltra
	case age < s.cfg.NoveltyFreshAge:
		return noveltyFresh
	case age < s.cfg.NoveltyRecentAge:
		return noveltyRecent
	default:
		return noveltyStale
	}
}

func (s *Scorer) liquidity(usd float64) float64 {
	switch {
	case usd >= s.cfg.LiquidityHighUSD:
		return liquidityHigh
	case usd >= s.cfg.LiquidityMidUSD:
		return liquidityMid
	default:
		return liquidityLow
	}
}

func (s *Scorer) distribution(share float64, known bool) float64 {
	if !known {
		return distributionPoor
	}
	switch {
	case share <= s.cfg.DistributionGood:
		return distributionGood
	case share <= s.cfg.DistributionFair:
		return distributionFair
	default:
		return distributionPoor
	}
}

// activity returns unique buyers, buys and sells, preferring the candidate's
// window counters and falling back to trade-book telemetry.
func activity(c *domain.Candidate) (uniq, buys, sells int) {
	uniq, buys, sells = c.UniqueBuyers, c.Buys, c.Sells
	if uniq == 0 {
		uniq = c.Telemetry.TradeUniqueBuyers
	}
	if buys == 0 {
		buys = c.Telemetry.TradeBuys
	}
	if sells == 0 {
		sells = c.Telemetry.TradeSells
	}
	return uniq, buys, sells
}

func saturate(v, limit float64) float64 {
	if limit <= 0 || math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0)/limit, 1)
}
