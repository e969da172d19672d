package domain

// Source names emitted by the bundled adapters.
const (
	SourcePumpPortalWS = "pumpportal_ws"
	SourceHeliusLogs   = "helius_logs"
	SourceFirehose     = "firehose"
)

// FilterReason tags why a candidate was rejected or penalized.
type FilterReason string

const (
	ReasonLowLiquidity        FilterReason = "low_liq"
	ReasonRugControlsMissing  FilterReason = "rug_controls_missing"
	ReasonConcentratedHolders FilterReason = "concentrated_holders"
	ReasonFreshPass           FilterReason = "fresh_pass"
	ReasonBurstSkip           FilterReason = "burst_skip"
	ReasonBurstThrottle       FilterReason = "burst_throttle"
	ReasonDuplicateStale      FilterReason = "duplicate_stale"
	ReasonDevWalletSoldEarly  FilterReason = "dev_wallet_sold_early"
	ReasonLPLockDelayed       FilterReason = "lp_lock_delayed"
	ReasonHighSpread          FilterReason = "high_spread"
)

// String returns the string representation of FilterReason.
func (r FilterReason) String() string {
	return string(r)
}
