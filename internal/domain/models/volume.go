package models

import "time"

// VolumeWindowStats summarizes trading inside one trailing window of a market.
type VolumeWindowStats struct {
	MarketID      string        `json:"marketId"`
	Window        time.Duration `json:"window"`
	TradeCount    int           `json:"tradeCount"`
	TotalVolume   float64       `json:"totalVolumeUsd"`
	BuyVolume     float64       `json:"buyVolumeUsd"`
	SellVolume    float64       `json:"sellVolumeUsd"`
	MeanTradeSize float64       `json:"meanTradeSizeUsd"`
	StdDevSize    float64       `json:"stdDevTradeSizeUsd"`
	MaxTradeSize  float64       `json:"maxTradeSizeUsd"`
	UniqueWallets int           `json:"uniqueWallets"`
	From          time.Time     `json:"from"`
	To            time.Time     `json:"to"`
}

// MarketSnapshot is the liquidity/volume input for threshold calculation.
type MarketSnapshot struct {
	MarketID     string  `json:"marketId"`
	LiquidityUsd float64 `json:"liquidityUsd"`
	Volume24hUsd float64 `json:"volume24hUsd"`
	AvgTradeUsd  float64 `json:"avgTradeUsd"`
}

// WhaleTier labels a trade size band for a given market.
type WhaleTier string

const (
	TierNone      WhaleTier = "NONE"
	TierNotable   WhaleTier = "NOTABLE"
	TierLarge     WhaleTier = "LARGE"
	TierWhale     WhaleTier = "WHALE"
	TierMegaWhale WhaleTier = "MEGA_WHALE"
)

// WhaleThresholds is the tiered trade-size thresholds for one market,
// derived from its liquidity and recent volume.
type WhaleThresholds struct {
	MarketID     string    `json:"marketId"`
	NotableUsd   float64   `json:"notableUsd"`
	LargeUsd     float64   `json:"largeUsd"`
	WhaleUsd     float64   `json:"whaleUsd"`
	MegaWhaleUsd float64   `json:"megaWhaleUsd"`
	ComputedAt   time.Time `json:"computedAt"`
}

// TierFor classifies a trade size against the thresholds.
func (t *WhaleThresholds) TierFor(sizeUsd float64) WhaleTier {
	switch {
	case sizeUsd >= t.MegaWhaleUsd:
		return TierMegaWhale
	case sizeUsd >= t.WhaleUsd:
		return TierWhale
	case sizeUsd >= t.LargeUsd:
		return TierLarge
	case sizeUsd >= t.NotableUsd:
		return TierNotable
	}
	return TierNone
}
