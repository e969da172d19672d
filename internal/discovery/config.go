package discovery

import (
	"errors"
	"fmt"
	"time"

	"solana-token-radar/internal/domain"
)

// Config holds every tunable of the discovery engine.
type Config struct {
	// Standard-path admission
	MinLiquidityUSD      float64 `yaml:"min_liquidity_usd"`
	MinLiquidityFreshUSD float64 `yaml:"min_liquidity_fresh_usd"`
	MaxTop10Share        float64 `yaml:"max_top10_share"`
	MaxTop10ShareFresh   float64 `yaml:"max_top10_share_fresh"`
	RequireLPLocked      bool    `yaml:"require_lp_locked"`
	RequireRenounced     bool    `yaml:"require_renounced"`

	// Dynamic threshold baseline
	ScoreThreshold   float64 `yaml:"score_threshold"`
	MinScoreCapDelta float64 `yaml:"min_score_cap_delta"`

	// Freshness
	FreshAge             time.Duration `yaml:"fresh_age"`    // on-chain age counted as fresh
	FreshWindow          time.Duration `yaml:"fresh_window"` // secondary fresh admission window
	TradeMinUniqueBuyers int           `yaml:"trade_min_unique_buyers"`
	TradeMinTrades       int           `yaml:"trade_min_trades"`

	// Lifecycle and capacity
	MaxQueue      int           `yaml:"max_queue"`
	MaxCandidates int           `yaml:"max_candidates"`
	CandidateTTL  time.Duration `yaml:"candidate_ttl"`

	// Enrichment
	EnrichTimeout time.Duration `yaml:"enrich_timeout"`
	FlowWindow    time.Duration `yaml:"flow_window"`
	HolderTopN    int           `yaml:"holder_top_n"`

	FreshPass FreshPassConfig `yaml:"fresh_pass"`
	Burst     BurstConfig     `yaml:"burst"`
	Fallback  FallbackConfig  `yaml:"fallback"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Trackers  TrackerConfig   `yaml:"trackers"`
	Threshold ThresholdConfig `yaml:"threshold"`
}

// FreshPassConfig configures the permissive path for very new candidates
// reported by low-latency sources.
type FreshPassConfig struct {
	Enabled         bool          `yaml:"enabled"`
	TTL             time.Duration `yaml:"ttl"`
	MinUniqueBuyers int           `yaml:"min_unique_buyers"`
	MinTrades       int           `yaml:"min_trades"`
	Sources         []string      `yaml:"sources"`
}

// BurstConfig configures per-mint de-bouncing on the fresh-pass path.
type BurstConfig struct {
	MinGap    time.Duration `yaml:"min_gap"`
	Window    time.Duration `yaml:"window"`
	MaxEvents int           `yaml:"max_events"`
}

// FallbackConfig holds the permissive defaults used when enrichment fails.
type FallbackConfig struct {
	LiquidityUSD float64 `yaml:"liquidity_usd"`
	Top10Share   float64 `yaml:"top10_share"`
	UniqueBuyers int     `yaml:"unique_buyers"`
	BuySellRatio float64 `yaml:"buy_sell_ratio"`
}

// ScoringConfig holds step boundaries and weights of the scorer.
type ScoringConfig struct {
	NoveltyUltraAge  time.Duration `yaml:"novelty_ultra_age"`
	NoveltyFreshAge  time.Duration `yaml:"novelty_fresh_age"`
	NoveltyRecentAge time.Duration `yaml:"novelty_recent_age"`

	LiquidityHighUSD float64 `yaml:"liquidity_high_usd"`
	LiquidityMidUSD  float64 `yaml:"liquidity_mid_usd"`

	DistributionGood float64 `yaml:"distribution_good"`
	DistributionFair float64 `yaml:"distribution_fair"`

	RiskAuthority     float64 `yaml:"risk_authority"`
	RiskUnlockedLP    float64 `yaml:"risk_unlocked_lp"`
	RiskConcentration float64 `yaml:"risk_concentration"`
	ConcentrationMax  float64 `yaml:"concentration_max"`

	WeightNovelty      float64 `yaml:"weight_novelty"`
	WeightLiquidity    float64 `yaml:"weight_liquidity"`
	WeightDistribution float64 `yaml:"weight_distribution"`
	WeightBuyers       float64 `yaml:"weight_buyers"`
	WeightRatio        float64 `yaml:"weight_ratio"`
	BuyersSaturation   float64 `yaml:"buyers_saturation"`
	RatioSaturation    float64 `yaml:"ratio_saturation"`

	ActivityHighMin   int     `yaml:"activity_high_min"`
	ActivityHighBonus float64 `yaml:"activity_high_bonus"`
	ActivityLowMin    int     `yaml:"activity_low_min"`
	ActivityLowBonus  float64 `yaml:"activity_low_bonus"`

	MomentumFastAge    time.Duration `yaml:"momentum_fast_age"`
	MomentumFastBuyers int           `yaml:"momentum_fast_buyers"`
	MomentumFastBonus  float64       `yaml:"momentum_fast_bonus"`
	MomentumSlowAge    time.Duration `yaml:"momentum_slow_age"`
	MomentumSlowBuyers int           `yaml:"momentum_slow_buyers"`
	MomentumSlowBonus  float64       `yaml:"momentum_slow_bonus"`
}

// TrackerConfig configures the behavioral trackers applied on every
// re-observation.
type TrackerConfig struct {
	MultiSourceWindow time.Duration `yaml:"multi_source_window"`
	MultiSourceBonus  float64       `yaml:"multi_source_bonus"`

	DevSellWindow       time.Duration `yaml:"dev_sell_window"`
	DevSellRugPenalty   float64       `yaml:"dev_sell_rug_penalty"`
	DevSellScorePenalty float64       `yaml:"dev_sell_score_penalty"`

	LPLockGrace            time.Duration `yaml:"lp_lock_grace"`
	LPLockPenaltyPerMinute float64       `yaml:"lp_lock_penalty_per_minute"`
	LPLockPenaltyCap       float64       `yaml:"lp_lock_penalty_cap"`

	AccelWindow        time.Duration `yaml:"accel_window"`
	AccelBonusPerBuyer float64       `yaml:"accel_bonus_per_buyer"`
	AccelBonusCap      float64       `yaml:"accel_bonus_cap"`

	SpreadLimitPercent      float64 `yaml:"spread_limit_percent"`
	SpreadPenaltyPerPercent float64 `yaml:"spread_penalty_per_percent"`
	SpreadPenaltyCap        float64 `yaml:"spread_penalty_cap"`
}

// ThresholdConfig configures the rolling windows of the threshold estimator.
type ThresholdConfig struct {
	ScoreHistorySize     int     `yaml:"score_history_size"`
	ReasonHistorySize    int     `yaml:"reason_history_size"`
	MinScoresForQuantile int     `yaml:"min_scores_for_quantile"`
	Quantile             float64 `yaml:"quantile"`
	EscalationMinReasons int     `yaml:"escalation_min_reasons"`
	EscalationRatio      float64 `yaml:"escalation_ratio"`
	EscalationStep       float64 `yaml:"escalation_step"`
	EscalationCeiling    float64 `yaml:"escalation_ceiling"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinLiquidityUSD:      3000,
		MinLiquidityFreshUSD: 1200,
		MaxTop10Share:        0.95,
		MaxTop10ShareFresh:   0.98,
		RequireLPLocked:      true,
		RequireRenounced:     true,

		ScoreThreshold:   0.65,
		MinScoreCapDelta: 0.10,

		FreshAge:             10 * time.Minute,
		FreshWindow:          90 * time.Second,
		TradeMinUniqueBuyers: 3,
		TradeMinTrades:       5,

		MaxQueue:      2000,
		MaxCandidates: 100,
		CandidateTTL:  600 * time.Second,

		EnrichTimeout: 2 * time.Second,
		FlowWindow:    5 * time.Minute,
		HolderTopN:    10,

		FreshPass: FreshPassConfig{
			Enabled: true,
			TTL:     90 * time.Second,
			Sources: []string{domain.SourcePumpPortalWS, domain.SourceHeliusLogs},
		},
		Burst: BurstConfig{
			MinGap:    800 * time.Millisecond,
			Window:    10 * time.Second,
			MaxEvents: 4,
		},
		Fallback: FallbackConfig{
			LiquidityUSD: 5000,
			Top10Share:   0.08,
			UniqueBuyers: 50,
			BuySellRatio: 1.2,
		},
		Scoring: ScoringConfig{
			NoveltyUltraAge:  5 * time.Minute,
			NoveltyFreshAge:  15 * time.Minute,
			NoveltyRecentAge: 60 * time.Minute,

			LiquidityHighUSD: 10000,
			LiquidityMidUSD:  5000,

			DistributionGood: 0.5,
			DistributionFair: 0.7,

			RiskAuthority:     0.3,
			RiskUnlockedLP:    0.2,
			RiskConcentration: 0.2,
			ConcentrationMax:  0.8,

			WeightNovelty:      0.25,
			WeightLiquidity:    0.20,
			WeightDistribution: 0.20,
			WeightBuyers:       0.20,
			WeightRatio:        0.15,
			BuyersSaturation:   50,
			RatioSaturation:    1.5,

			ActivityHighMin:   20,
			ActivityHighBonus: 0.10,
			ActivityLowMin:    10,
			ActivityLowBonus:  0.05,

			MomentumFastAge:    2 * time.Minute,
			MomentumFastBuyers: 5,
			MomentumFastBonus:  0.05,
			MomentumSlowAge:    5 * time.Minute,
			MomentumSlowBuyers: 15,
			MomentumSlowBonus:  0.03,
		},
		Trackers: TrackerConfig{
			MultiSourceWindow: 60 * time.Second,
			MultiSourceBonus:  0.02,

			DevSellWindow:       10 * time.Minute,
			DevSellRugPenalty:   0.3,
			DevSellScorePenalty: 0.1,

			LPLockGrace:            10 * time.Minute,
			LPLockPenaltyPerMinute: 0.02,
			LPLockPenaltyCap:       0.2,

			AccelWindow:        5 * time.Minute,
			AccelBonusPerBuyer: 0.01,
			AccelBonusCap:      0.05,

			SpreadLimitPercent:      2,
			SpreadPenaltyPerPercent: 0.05,
			SpreadPenaltyCap:        0.15,
		},
		Threshold: ThresholdConfig{
			ScoreHistorySize:     100,
			ReasonHistorySize:    200,
			MinScoresForQuantile: 10,
			Quantile:             0.8,
			EscalationMinReasons: 50,
			EscalationRatio:      0.30,
			EscalationStep:       0.05,
			EscalationCeiling:    0.95,
		},
	}
}

// Validate checks ranges that would otherwise break the engine at runtime.
func (c Config) Validate() error {
	var errs []error
	if c.MinLiquidityUSD < 0 || c.MinLiquidityFreshUSD < 0 {
		errs = append(errs, errors.New("minimum liquidity must be >= 0"))
	}
	if !inUnit(c.MaxTop10Share) || !inUnit(c.MaxTop10ShareFresh) {
		errs = append(errs, errors.New("max top10 share must be in [0, 1]"))
	}
	if !inUnit(c.ScoreThreshold) {
		errs = append(errs, fmt.Errorf("score_threshold %.3f out of [0, 1]", c.ScoreThreshold))
	}
	if c.MinScoreCapDelta < 0 {
		errs = append(errs, errors.New("min_score_cap_delta must be >= 0"))
	}
	if c.MaxQueue <= 0 {
		errs = append(errs, errors.New("max_queue must be > 0"))
	}
	if c.MaxCandidates <= 0 {
		errs = append(errs, errors.New("max_candidates must be > 0"))
	}
	if c.CandidateTTL < 0 {
		errs = append(errs, errors.New("candidate_ttl must be >= 0"))
	}
	if c.EnrichTimeout <= 0 {
		errs = append(errs, errors.New("enrich_timeout must be > 0"))
	}
	if c.Threshold.ScoreHistorySize <= 0 || c.Threshold.ReasonHistorySize <= 0 {
		errs = append(errs, errors.New("threshold history sizes must be > 0"))
	}
	if c.Threshold.Quantile <= 0 || c.Threshold.Quantile >= 1 {
		errs = append(errs, errors.New("threshold quantile must be in (0, 1)"))
	}
	if !inUnit(c.Threshold.EscalationCeiling) {
		errs = append(errs, errors.New("escalation_ceiling must be in [0, 1]"))
	}
	if c.Burst.MaxEvents <= 0 {
		errs = append(errs, errors.New("burst max_events must be > 0"))
	}
	return errors.Join(errs...)
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
