package models

import "time"

// TradeSide is the direction of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// Trade is a normalized prediction-market trade. Ingestion mechanics are the
// caller's concern; analyzers assume these are already validated upstream
// except for the per-field checks each analyzer documents.
type Trade struct {
	ID             string    `json:"id"`
	MarketID       string    `json:"marketId"`
	MarketCategory string    `json:"marketCategory,omitempty"`
	WalletAddress  string    `json:"walletAddress"`
	Side           TradeSide `json:"side"`
	SizeUsd        float64   `json:"sizeUsd"`
	Price          float64   `json:"price"`
	Timestamp      time.Time `json:"timestamp"`
	IsMaker        bool      `json:"isMaker,omitempty"`
	// PreEvent marks trades executed shortly before a market-moving event,
	// tagged by the ingest layer.
	PreEvent bool `json:"preEvent,omitempty"`
	// Won is set for trades whose market has resolved: true when the position
	// ended in the money. Nil while unresolved.
	Won *bool `json:"won,omitempty"`
	// Flags carries upstream annotations, e.g. "coordinated".
	Flags []string `json:"flags,omitempty"`
}

// HasFlag reports whether the trade carries the given upstream annotation.
func (t *Trade) HasFlag(flag string) bool {
	for _, f := range t.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
