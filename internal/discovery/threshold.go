package discovery

import (
	"slices"

	"solana-token-radar/internal/domain"
)

// Threshold is one evaluation of the dynamic admission bar.
type Threshold struct {
	Effective       float64
	Base            float64 // baseline after any escalation
	Q80             float64
	Cap             float64
	Escalated       bool
	RugMissingRatio float64
}

// ThresholdEstimator derives the effective minimum score from rolling score
// and rejection-reason windows.
// Not safe for concurrent use; the engine serializes access.
type ThresholdEstimator struct {
	cfg     ThresholdConfig
	base    float64
	cap     float64
	scores  *ring[float64]
	reasons *ring[domain.FilterReason]
	last    Threshold
}

// NewThresholdEstimator creates an estimator around the configured baseline.
func NewThresholdEstimator(base, capDelta float64, cfg ThresholdConfig) *ThresholdEstimator {
	return &ThresholdEstimator{
		cfg:     cfg,
		base:    base,
		cap:     capDelta,
		scores:  newRing[float64](cfg.ScoreHistorySize),
		reasons: newRing[domain.FilterReason](cfg.ReasonHistorySize),
		last:    Threshold{Effective: base, Base: base, Q80: base, Cap: capDelta},
	}
}

// ObserveScore appends an overall score to the score window.
func (t *ThresholdEstimator) ObserveScore(score float64) {
	t.scores.push(score)
}

// ObserveReason appends a rejection reason to the reason window.
func (t *ThresholdEstimator) ObserveReason(r domain.FilterReason) {
	t.reasons.push(r)
}

// Compute evaluates the threshold:
// effective = max(base, min(q80, base+cap)), with the baseline escalated when
// rug_controls_missing dominates the reason window.
func (t *ThresholdEstimator) Compute() Threshold {
	base := t.base
	q80 := base

	if n := t.scores.len(); n >= t.cfg.MinScoresForQuantile && n > 0 {
		sorted := t.scores.values()
		slices.Sort(sorted)
		idx := int(t.cfg.Quantile * float64(n))
		if idx >= n {
			idx = n - 1
		}
		q80 = sorted[idx]
	}

	effective := max(base, min(q80, base+t.cap))
	th := Threshold{Effective: effective, Base: base, Q80: q80, Cap: t.cap}

	if n := t.reasons.len(); n >= t.cfg.EscalationMinReasons && n > 0 {
		missing := 0
		for _, r := range t.reasons.values() {
			if r == domain.ReasonRugControlsMissing {
				missing++
			}
		}
		th.RugMissingRatio = float64(missing) / float64(n)
		if th.RugMissingRatio > t.cfg.EscalationRatio {
			th.Base = min(t.cfg.EscalationCeiling, base+t.cfg.EscalationStep)
			th.Effective = max(th.Effective, th.Base)
			th.Escalated = true
		}
	}

	t.last = th
	return th
}

// Last returns the most recent Compute result.
func (t *ThresholdEstimator) Last() Threshold {
	return t.last
}

// ReasonCounts tallies the reason window.
func (t *ThresholdEstimator) ReasonCounts() map[string]int {
	out := make(map[string]int)
	for _, r := range t.reasons.values() {
		out[string(r)]++
	}
	return out
}

// ring is a fixed-size FIFO window that overwrites its oldest entry.
type ring[T any] struct {
	buf  []T
	next int
	full bool
}

func newRing[T any](size int) *ring[T] {
	if size <= 0 {
		size = 1
	}
	return &ring[T]{buf: make([]T, size)}
}

func (r *ring[T]) push(v T) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring[T]) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// values returns a copy in insertion order.
func (r *ring[T]) values() []T {
	if !r.full {
		return slices.Clone(r.buf[:r.next])
	}
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
