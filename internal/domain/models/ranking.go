package models

import "time"

// PriorityFactor names one weighted component of alert priority.
type PriorityFactor string

const (
	FactorSeverity     PriorityFactor = "SEVERITY"
	FactorImpact       PriorityFactor = "IMPACT"
	FactorNetworkRisk  PriorityFactor = "NETWORK_RISK"
	FactorConvergence  PriorityFactor = "CONVERGENCE"
	FactorPatternMatch PriorityFactor = "PATTERN_MATCH"
)

// AllPriorityFactors lists every factor in declaration order.
var AllPriorityFactors = []PriorityFactor{
	FactorSeverity, FactorImpact, FactorNetworkRisk,
	FactorConvergence, FactorPatternMatch,
}

// PriorityLevel buckets a final priority score.
type PriorityLevel string

const (
	PriorityLow      PriorityLevel = "LOW"
	PriorityMedium   PriorityLevel = "MEDIUM"
	PriorityHigh     PriorityLevel = "HIGH"
	PriorityCritical PriorityLevel = "CRITICAL"
)

// UrgencyReason is an independent trigger marking an alert urgent.
type UrgencyReason string

const (
	UrgencyCriticalScore   UrgencyReason = "CRITICAL_SCORE"
	UrgencyInsiderIndicator UrgencyReason = "INSIDER_INDICATOR"
	UrgencyNetworkDetection UrgencyReason = "NETWORK_DETECTION"
	UrgencySybilCluster    UrgencyReason = "SYBIL_CLUSTER"
	UrgencyScoreEscalation UrgencyReason = "SCORE_ESCALATION"
	UrgencyMultiSignal     UrgencyReason = "MULTI_SIGNAL_CONVERGENCE"
)

// FactorContribution records one factor's share of the priority score, for
// explainability.
type FactorContribution struct {
	Factor        PriorityFactor `json:"factor"`
	RawScore      float64        `json:"rawScore"`
	Weight        float64        `json:"weight"`
	WeightedScore float64        `json:"weightedScore"`
	Reason        string         `json:"reason"`
}

// PriorityRanking is the ranked, explainable alert for one wallet.
type PriorityRanking struct {
	WalletAddress       string               `json:"walletAddress"`
	PriorityScore       float64              `json:"priorityScore"`
	PriorityLevel       PriorityLevel        `json:"priorityLevel"`
	IsUrgent            bool                 `json:"isUrgent"`
	IsHighlighted       bool                 `json:"isHighlighted"`
	UrgencyReasons      []UrgencyReason      `json:"urgencyReasons,omitempty"`
	FactorContributions []FactorContribution `json:"factorContributions"`
	TimeDecayMultiplier float64              `json:"timeDecayMultiplier"`
	AdjustedScore       float64              `json:"adjustedScore"`
	Rank                int                  `json:"rank,omitempty"`
	RankedAt            time.Time            `json:"rankedAt"`
	FromCache           bool                 `json:"fromCache,omitempty"`
}

// AlertHistory retains prior scores per wallet for escalation detection.
type AlertHistory struct {
	PreviousScores []float64 `json:"previousScores"`
	TimesRanked    int       `json:"timesRanked"`
	LastRankedAt   time.Time `json:"lastRankedAt"`
}

// RankedAlerts is the aggregate of a batch ranking pass, sorted descending by
// priority score with a stable wallet-address tie-break.
type RankedAlerts struct {
	Alerts           []*PriorityRanking    `json:"alerts"`
	ByLevel          map[PriorityLevel]int `json:"byLevel"`
	UrgentCount      int                   `json:"urgentCount"`
	HighlightedCount int                   `json:"highlightedCount"`
}
