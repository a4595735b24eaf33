package models

import "time"

// PatternType names a wallet trading archetype.
type PatternType string

const (
	PatternScalper          PatternType = "SCALPER"
	PatternWhale            PatternType = "WHALE"
	PatternMarketMaker      PatternType = "MARKET_MAKER"
	PatternBot              PatternType = "BOT"
	PatternPotentialInsider PatternType = "POTENTIAL_INSIDER"
	PatternRetail           PatternType = "RETAIL"
	PatternUnknown          PatternType = "UNKNOWN"
)

// ConfidenceLevel grades classification confidence by sample size.
type ConfidenceLevel string

const (
	ConfidenceVeryLow  ConfidenceLevel = "VERY_LOW"
	ConfidenceLow      ConfidenceLevel = "LOW"
	ConfidenceMedium   ConfidenceLevel = "MEDIUM"
	ConfidenceHigh     ConfidenceLevel = "HIGH"
	ConfidenceVeryHigh ConfidenceLevel = "VERY_HIGH"
)

// RiskFlag is an independently evaluated risk indicator on a wallet.
type RiskFlag string

const (
	FlagHighWinRate         RiskFlag = "HIGH_WIN_RATE"
	FlagPreNewsTrading      RiskFlag = "PRE_NEWS_TRADING"
	FlagUnusualTiming       RiskFlag = "UNUSUAL_TIMING"
	FlagBotPrecision        RiskFlag = "BOT_PRECISION"
	FlagFreshWalletActivity RiskFlag = "FRESH_WALLET_ACTIVITY"
	FlagCoordinatedTrading  RiskFlag = "COORDINATED_TRADING"
)

// TradingFeatures is the extracted per-wallet feature vector.
type TradingFeatures struct {
	TradeCount          int     `json:"tradeCount"`
	TradesPerDay        float64 `json:"tradesPerDay"`
	WinRate             float64 `json:"winRate"`
	MarketConcentration float64 `json:"marketConcentration"`
	BuyRatio            float64 `json:"buyRatio"`
	MakerRatio          float64 `json:"makerRatio"`
	PreEventRatio       float64 `json:"preEventRatio"`
	SizeConsistency     float64 `json:"sizeConsistency"`
	TimingConsistency   float64 `json:"timingConsistency"`
	AvgTradeSizeUsd     float64 `json:"avgTradeSizeUsd"`
	TotalVolumeUsd      float64 `json:"totalVolumeUsd"`
	DaysActive          float64 `json:"daysActive"`
	DominantMarket      string  `json:"dominantMarket,omitempty"`
}

// PatternMatch is the score of one archetype against a wallet's features.
type PatternMatch struct {
	Pattern PatternType `json:"pattern"`
	Score   float64     `json:"score"`
}

// Classification is a full classifier result for one wallet.
type Classification struct {
	WalletAddress  string          `json:"walletAddress"`
	PrimaryPattern PatternType     `json:"primaryPattern"`
	Confidence     ConfidenceLevel `json:"confidence"`
	Features       TradingFeatures `json:"features"`
	Matches        []PatternMatch  `json:"matches"`
	RiskFlags      []RiskFlag      `json:"riskFlags"`
	RiskScore      float64         `json:"riskScore"`
	ClassifiedAt   time.Time       `json:"classifiedAt"`
	FromCache      bool            `json:"fromCache,omitempty"`
}
