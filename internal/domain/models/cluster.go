package models

import "time"

// CoordinationType classifies the shape of a detected trading cluster.
type CoordinationType string

const (
	CoordinationSplitOrders CoordinationType = "SPLIT_ORDERS"
	CoordinationDirectional CoordinationType = "DIRECTIONAL"
	CoordinationCounter     CoordinationType = "COUNTER_TRADING"
	CoordinationTimed       CoordinationType = "TIMED_COORDINATION"
	CoordinationMixed       CoordinationType = "MIXED"
)

// ClusterSeverity grades a cluster by its coordination score.
type ClusterSeverity string

const (
	SeverityLow      ClusterSeverity = "LOW"
	SeverityMedium   ClusterSeverity = "MEDIUM"
	SeverityHigh     ClusterSeverity = "HIGH"
	SeverityCritical ClusterSeverity = "CRITICAL"
)

// VolumeCluster is a detected coordinated-trading cluster. Ephemeral:
// recomputed per call and optionally retained in a bounded recent ring.
type VolumeCluster struct {
	MarketID          string           `json:"marketId"`
	Wallets           []string         `json:"wallets"`
	WalletCount       int              `json:"walletCount"`
	TradeCount        int              `json:"tradeCount"`
	TotalVolumeUsd    float64          `json:"totalVolumeUsd"`
	BuySellRatio      float64          `json:"buySellRatio"`
	DirectionImbalance float64         `json:"directionImbalance"`
	TimingRegularity  float64          `json:"timingRegularity"`
	CoordinationScore float64          `json:"coordinationScore"`
	CoordinationType  CoordinationType `json:"coordinationType"`
	Severity          ClusterSeverity  `json:"severity"`
	WindowStart       time.Time        `json:"windowStart"`
	WindowEnd         time.Time        `json:"windowEnd"`
	DetectedAt        time.Time        `json:"detectedAt"`
}

// ClusterAnalysis is the total result of one clustering pass. Unmet gates are
// a defined state with diagnostic counts, never an error.
type ClusterAnalysis struct {
	HasCluster     bool           `json:"hasCluster"`
	Cluster        *VolumeCluster `json:"cluster,omitempty"`
	WalletCount    int            `json:"walletCount"`
	TradeCount     int            `json:"tradeCount"`
	TotalVolumeUsd float64        `json:"totalVolumeUsd"`
	// SuppressedByCooldown is set when a cluster met every gate but the
	// per-market cooldown swallowed it.
	SuppressedByCooldown bool   `json:"suppressedByCooldown,omitempty"`
	Reason               string `json:"reason,omitempty"`
}

// MultiMarketClusterSummary aggregates clustering across markets.
type MultiMarketClusterSummary struct {
	MarketsAnalyzed int                         `json:"marketsAnalyzed"`
	ClustersFound   int                         `json:"clustersFound"`
	TotalVolumeUsd  float64                     `json:"totalVolumeUsd"`
	BySeverity      map[ClusterSeverity]int     `json:"bySeverity"`
	ByType          map[CoordinationType]int    `json:"byType"`
	Results         map[string]*ClusterAnalysis `json:"results"`
}
