package models

import "time"

// SignalContribution is one signal's share of a composite score.
type SignalContribution struct {
	Source        SignalSource `json:"source"`
	RawScore      float64      `json:"rawScore"`
	Weight        float64      `json:"weight"`
	WeightedScore float64      `json:"weightedScore"`
}

// CompositeScoreResult is the combined suspicion assessment for one wallet.
// The ranker depends only on this shape, not on how it was computed.
type CompositeScoreResult struct {
	WalletAddress  string               `json:"walletAddress"`
	Score          float64              `json:"score"`
	CalibratedScore *float64            `json:"calibratedScore,omitempty"`
	SuspicionLevel SuspicionLevel       `json:"suspicionLevel"`
	Contributions  []SignalContribution `json:"contributions"`
	IsFlagged      bool                 `json:"isFlagged"`
	InsiderIndicator bool               `json:"insiderIndicator"`
	// Sub-results the contributing analyzers produced, carried by copy.
	Pattern     *Classification   `json:"pattern,omitempty"`
	Accuracy    *AccuracyAnalysis `json:"accuracy,omitempty"`
	Cluster     *VolumeCluster    `json:"cluster,omitempty"`
	SybilCluster bool             `json:"sybilCluster,omitempty"`
	EstimatedPnlUsd *float64      `json:"estimatedPnlUsd,omitempty"`
	AnalyzedAt  time.Time         `json:"analyzedAt"`
}

// FilterResult is the optional false-positive-reducer verdict consumed by the
// priority ranker to discount pattern-match contributions.
type FilterResult struct {
	WalletAddress         string   `json:"walletAddress"`
	IsLikelyFalsePositive bool     `json:"isLikelyFalsePositive"`
	Confidence            float64  `json:"confidence"`
	Reasons               []string `json:"reasons,omitempty"`
}
