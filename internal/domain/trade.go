package domain

import "time"

// Side is the direction of a trade relative to the token.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide normalizes provider side strings. Unknown values return "".
func ParseSide(s string) Side {
	switch s {
	case "buy", "Buy", "BUY":
		return SideBuy
	case "sell", "Sell", "SELL":
		return SideSell
	default:
		return ""
	}
}

// TradeUpdate is a single trade observation pushed by a source.
type TradeUpdate struct {
	Mint      string
	Trader    string // buyer or seller wallet, may be empty
	Side      Side
	Timestamp time.Time
}
