package discovery

import (
	"time"

	"solana-token-radar/internal/domain"
)

// TradeCounts is a read-only view of the trade book for one mint.
type TradeCounts struct {
	UniqueBuyers int
	Buys         int
	Sells        int
	FirstTrade   time.Time
	LastTrade    time.Time
}

// Trades returns buys + sells.
func (c TradeCounts) Trades() int {
	return c.Buys + c.Sells
}

type tradeStats struct {
	buys    int
	sells   int
	buyers  map[string]struct{}
	sellers map[string]struct{}
	first   time.Time
	last    time.Time
}

// TradeBook accumulates trade updates per mint.
// Not safe for concurrent use; the engine serializes access.
type TradeBook struct {
	stats map[string]*tradeStats
}

// NewTradeBook creates an empty trade book.
func NewTradeBook() *TradeBook {
	return &TradeBook{stats: make(map[string]*tradeStats)}
}

// Record applies one trade update.
func (b *TradeBook) Record(t domain.TradeUpdate) {
	if t.Mint == "" {
		return
	}
	st, ok := b.stats[t.Mint]
	if !ok {
		st = &tradeStats{
			buyers:  make(map[string]struct{}),
			sellers: make(map[string]struct{}),
			first:   t.Timestamp,
		}
		b.stats[t.Mint] = st
	}

	switch t.Side {
	case domain.SideBuy:
		st.buys++
		if t.Trader != "" {
			st.buyers[t.Trader] = struct{}{}
		}
	case domain.SideSell:
		st.sells++
		if t.Trader != "" {
			st.sellers[t.Trader] = struct{}{}
		}
	}

	if t.Timestamp.Before(st.first) {
		st.first = t.Timestamp
	}
	if t.Timestamp.After(st.last) {
		st.last = t.Timestamp
	}
}

// Counts returns the counters for mint. ok is false when nothing was recorded.
func (b *TradeBook) Counts(mint string) (TradeCounts, bool) {
	st, ok := b.stats[mint]
	if !ok {
		return TradeCounts{}, false
	}
	return TradeCounts{
		UniqueBuyers: len(st.buyers),
		Buys:         st.buys,
		Sells:        st.sells,
		FirstTrade:   st.first,
		LastTrade:    st.last,
	}, true
}

// SoldBy reports whether wallet sold mint.
func (b *TradeBook) SoldBy(mint, wallet string) bool {
	st, ok := b.stats[mint]
	if !ok || wallet == "" {
		return false
	}
	_, sold := st.sellers[wallet]
	return sold
}

// Forget drops all state for mint.
func (b *TradeBook) Forget(mint string) {
	delete(b.stats, mint)
}

// Len returns the number of tracked mints.
func (b *TradeBook) Len() int {
	return len(b.stats)
}

// Prune forgets mints whose last trade is before cutoff unless keep reports
// them as still in use.
func (b *TradeBook) Prune(cutoff time.Time, keep func(mint string) bool) {
	for mint, st := range b.stats {
		last := st.last
		if last.IsZero() {
			last = st.first
		}
		if last.Before(cutoff) && (keep == nil || !keep(mint)) {
			delete(b.stats, mint)
		}
	}
}
