package models

import "time"

// AccuracyWindow is a trailing window over which accuracy is computed.
type AccuracyWindow string

const (
	WindowDay     AccuracyWindow = "DAY"
	WindowWeek    AccuracyWindow = "WEEK"
	WindowMonth   AccuracyWindow = "MONTH"
	WindowQuarter AccuracyWindow = "QUARTER"
	WindowAllTime AccuracyWindow = "ALL_TIME"
)

// Duration returns the window length; zero means unbounded (ALL_TIME).
func (w AccuracyWindow) Duration() time.Duration {
	switch w {
	case WindowDay:
		return 24 * time.Hour
	case WindowWeek:
		return 7 * 24 * time.Hour
	case WindowMonth:
		return 30 * 24 * time.Hour
	case WindowQuarter:
		return 90 * 24 * time.Hour
	}
	return 0
}

// AllAccuracyWindows lists every window in ascending span order.
var AllAccuracyWindows = []AccuracyWindow{
	WindowDay, WindowWeek, WindowMonth, WindowQuarter, WindowAllTime,
}

// AccuracyTier buckets a wallet's all-time raw accuracy.
type AccuracyTier string

const (
	TierExceptional  AccuracyTier = "EXCEPTIONAL"
	TierExcellent    AccuracyTier = "EXCELLENT"
	TierVeryGood     AccuracyTier = "VERY_GOOD"
	TierGood         AccuracyTier = "GOOD"
	TierAboveAverage AccuracyTier = "ABOVE_AVERAGE"
	TierAverage      AccuracyTier = "AVERAGE"
	TierBelowAverage AccuracyTier = "BELOW_AVERAGE"
	TierPoor         AccuracyTier = "POOR"
	TierVeryPoor     AccuracyTier = "VERY_POOR"
	TierUnknown      AccuracyTier = "UNKNOWN"
)

// SuspicionLevel grades how suspicious a wallet looks.
type SuspicionLevel string

const (
	SuspicionNone     SuspicionLevel = "NONE"
	SuspicionLow      SuspicionLevel = "LOW"
	SuspicionHigh     SuspicionLevel = "HIGH"
	SuspicionCritical SuspicionLevel = "CRITICAL"
)

// TrendDirection is the recent-vs-historical accuracy movement.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// WindowAccuracy holds accuracy statistics for one window.
type WindowAccuracy struct {
	Window                 AccuracyWindow `json:"window"`
	ResolvedCount          int            `json:"resolvedCount"`
	CorrectCount           int            `json:"correctCount"`
	RawAccuracy            float64        `json:"rawAccuracy"`
	WeightedAccuracy       float64        `json:"weightedAccuracy"`
	HighConvictionCount    int            `json:"highConvictionCount"`
	HighConvictionAccuracy float64        `json:"highConvictionAccuracy"`
	BrierScore             float64        `json:"brierScore"`
}

// CategoryAccuracy is accuracy within one market category.
type CategoryAccuracy struct {
	Category      string  `json:"category"`
	ResolvedCount int     `json:"resolvedCount"`
	Accuracy      float64 `json:"accuracy"`
}

// AnomalyType names an accuracy anomaly detector.
type AnomalyType string

const (
	AnomalyExceptionalAccuracy   AnomalyType = "exceptional_accuracy"
	AnomalyPerfectHighConviction AnomalyType = "perfect_high_conviction"
	AnomalyCategoryExpertise     AnomalyType = "category_expertise"
	AnomalyTimingAdvantage       AnomalyType = "timing_advantage"
	AnomalyContrarianSuccess     AnomalyType = "contrarian_success"
)

// AccuracyAnomaly is one fired anomaly detector with its evidence.
type AccuracyAnomaly struct {
	Type        AnomalyType `json:"type"`
	Description string      `json:"description"`
	Severity    float64     `json:"severity"`
}

// AccuracyAnalysis is the full accuracy-scorer output for one wallet.
type AccuracyAnalysis struct {
	WalletAddress      string                            `json:"walletAddress"`
	TotalPredictions   int                               `json:"totalPredictions"`
	ResolvedCount      int                               `json:"resolvedCount"`
	PendingCount       int                               `json:"pendingCount"`
	Tier               AccuracyTier                      `json:"tier"`
	Windows            map[AccuracyWindow]WindowAccuracy `json:"windows"`
	Categories         []CategoryAccuracy                `json:"categories"`
	TopCategories      []CategoryAccuracy                `json:"topCategories"`
	Trend              TrendDirection                    `json:"trend"`
	Anomalies          []AccuracyAnomaly                 `json:"anomalies"`
	SuspicionScore     float64                           `json:"suspicionScore"`
	SuspicionLevel     SuspicionLevel                    `json:"suspicionLevel"`
	IsPotentialInsider bool                              `json:"isPotentialInsider"`
	AnalyzedAt         time.Time                         `json:"analyzedAt"`
	FromCache          bool                              `json:"fromCache,omitempty"`
	// Rank is assigned by batch analysis when requested; 1-indexed.
	Rank int `json:"rank,omitempty"`
}

// BatchAccuracyResult is the outcome of analyzing several wallets. Per-wallet
// failures are isolated; one bad address never aborts the batch.
type BatchAccuracyResult struct {
	Analyses map[string]*AccuracyAnalysis `json:"analyses"`
	Failed   map[string]string            `json:"failed,omitempty"`
	Ranked   []string                     `json:"ranked,omitempty"`
}
