package discovery

import (
	"slices"
	"time"

	"solana-token-radar/internal/domain"
)

type buyerSample struct {
	at     time.Time
	buyers int
}

type trackerState struct {
	firstSeen      time.Time
	sources        []string
	devSellFlagged bool
	lpLockedAt     time.Time
	samples        []buyerSample
}

// TrackerEvent describes one tracker adjustment applied to a candidate.
type TrackerEvent struct {
	Reason domain.FilterReason // empty for bonuses
	Delta  float64             // change applied to the overall score
	Note   string
}

// Trackers holds per-mint behavioral state updated on every observation.
// Not safe for concurrent use; the engine serializes access.
type Trackers struct {
	cfg    TrackerConfig
	trades *TradeBook
	state  map[string]*trackerState
}

// NewTrackers creates trackers reading dev-wallet sells from trades.
func NewTrackers(cfg TrackerConfig, trades *TradeBook) *Trackers {
	return &Trackers{cfg: cfg, trades: trades, state: make(map[string]*trackerState)}
}

// Apply runs provenance, dev-wallet, LP-lock timing, buyer acceleration and
// spread checks on c, in that order, and returns the adjustments made.
func (t *Trackers) Apply(c *domain.Candidate, now time.Time) []TrackerEvent {
	st, ok := t.state[c.Mint]
	if !ok {
		st = &trackerState{firstSeen: now}
		t.state[c.Mint] = st
	}

	var events []TrackerEvent
	add := func(ev TrackerEvent) {
		events = append(events, ev)
		c.ClampScores()
	}

	if ev, ok := t.provenance(c, st, now); ok {
		add(ev)
	}
	if ev, ok := t.devWallet(c, st, now); ok {
		add(ev)
	}
	if ev, ok := t.lpLockTiming(c, st, now); ok {
		add(ev)
	}
	if ev, ok := t.buyerAcceleration(c, st, now); ok {
		add(ev)
	}
	if ev, ok := t.spread(c); ok {
		add(ev)
	}
	return events
}

func (t *Trackers) provenance(c *domain.Candidate, st *trackerState, now time.Time) (TrackerEvent, bool) {
	src := c.SourceName()
	joined := false
	if src != "" && !slices.Contains(st.sources, src) {
		st.sources = append(st.sources, src)
		joined = true
	}
	c.Telemetry.SeenFrom = slices.Clone(st.sources)

	if !joined || len(st.sources) < 2 || now.Sub(st.firstSeen) > t.cfg.MultiSourceWindow {
		return TrackerEvent{}, false
	}
	c.OverallScore += t.cfg.MultiSourceBonus
	return TrackerEvent{Delta: t.cfg.MultiSourceBonus, Note: "multi_source"}, true
}

func (t *Trackers) devWallet(c *domain.Candidate, st *trackerState, now time.Time) (TrackerEvent, bool) {
	dev := c.Telemetry.DevWallet
	if dev == "" {
		return TrackerEvent{}, false
	}
	age, known := c.OnChainAge(now)
	if !known || age >= t.cfg.DevSellWindow || !t.trades.SoldBy(c.Mint, dev) {
		return TrackerEvent{}, false
	}

	c.RugRiskScore += t.cfg.DevSellRugPenalty
	c.OverallScore -= t.cfg.DevSellScorePenalty
	ev := TrackerEvent{Delta: -t.cfg.DevSellScorePenalty, Note: "dev_wallet_sold"}
	if !st.devSellFlagged {
		st.devSellFlagged = true
		ev.Reason = domain.ReasonDevWalletSoldEarly
	}
	return ev, true
}

func (t *Trackers) lpLockTiming(c *domain.Candidate, st *trackerState, now time.Time) (TrackerEvent, bool) {
	if !c.LPLocked || !st.lpLockedAt.IsZero() {
		return TrackerEvent{}, false
	}
	st.lpLockedAt = now
	delay := now.Sub(st.firstSeen)
	minutes := delay.Minutes()
	c.Telemetry.LPLockDelayMinutes = domain.Ptr(minutes)

	if delay <= t.cfg.LPLockGrace {
		return TrackerEvent{}, false
	}
	late := minutes - t.cfg.LPLockGrace.Minutes()
	penalty := min(t.cfg.LPLockPenaltyCap, late*t.cfg.LPLockPenaltyPerMinute)
	c.OverallScore -= penalty
	return TrackerEvent{Reason: domain.ReasonLPLockDelayed, Delta: -penalty, Note: "lp_lock_delayed"}, true
}

func (t *Trackers) buyerAcceleration(c *domain.Candidate, st *trackerState, now time.Time) (TrackerEvent, bool) {
	st.samples = append(st.samples, buyerSample{at: now, buyers: c.UniqueBuyers})
	cutoff := now.Add(-t.cfg.AccelWindow)
	st.samples = slices.DeleteFunc(st.samples, func(s buyerSample) bool {
		return !s.at.After(cutoff)
	})
	if len(st.samples) < 2 {
		return TrackerEvent{}, false
	}

	prev, last := st.samples[len(st.samples)-2], st.samples[len(st.samples)-1]
	dt := last.at.Sub(prev.at)
	if dt <= 0 {
		return TrackerEvent{}, false
	}
	accel := float64(last.buyers-prev.buyers) / dt.Minutes()
	c.Telemetry.BuyerAcceleration = domain.Ptr(accel)
	if accel <= 0 {
		return TrackerEvent{}, false
	}

	bonus := min(t.cfg.AccelBonusCap, accel*t.cfg.AccelBonusPerBuyer)
	c.OverallScore += bonus
	return TrackerEvent{Delta: bonus, Note: "buyer_acceleration"}, true
}

func (t *Trackers) spread(c *domain.Candidate) (TrackerEvent, bool) {
	if c.Telemetry.SpreadPercent == nil {
		return TrackerEvent{}, false
	}
	spread := *c.Telemetry.SpreadPercent
	if spread <= t.cfg.SpreadLimitPercent {
		return TrackerEvent{}, false
	}
	penalty := min(t.cfg.SpreadPenaltyCap, (spread-t.cfg.SpreadLimitPercent)*t.cfg.SpreadPenaltyPerPercent)
	c.OverallScore -= penalty
	return TrackerEvent{Reason: domain.ReasonHighSpread, Delta: -penalty, Note: "high_spread"}, true
}

// FirstSeen returns when the trackers first saw mint.
func (t *Trackers) FirstSeen(mint string) (time.Time, bool) {
	st, ok := t.state[mint]
	if !ok {
		return time.Time{}, false
	}
	return st.firstSeen, true
}

// Forget drops all state for mint.
func (t *Trackers) Forget(mint string) {
	delete(t.state, mint)
}

// Len returns the number of tracked mints.
func (t *Trackers) Len() int {
	return len(t.state)
}

// Prune forgets mints first seen before cutoff unless keep reports them as
// still in use.
func (t *Trackers) Prune(cutoff time.Time, keep func(mint string) bool) {
	for mint, st := range t.state {
		if st.firstSeen.Before(cutoff) && (keep == nil || !keep(mint)) {
			delete(t.state, mint)
		}
	}
}
