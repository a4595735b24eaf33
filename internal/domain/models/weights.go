package models

import "time"

// SignalSource is the closed set of suspicion-signal producers. Every source
// must carry a definition, description and default weight; completeness is
// checked at package init in the weights configurator.
type SignalSource string

const (
	SignalTradingPattern     SignalSource = "TRADING_PATTERN"
	SignalHistoricalAccuracy SignalSource = "HISTORICAL_ACCURACY"
	SignalVolumeClustering   SignalSource = "VOLUME_CLUSTERING"
	SignalWhaleActivity      SignalSource = "WHALE_ACTIVITY"
	SignalTimingAnomaly      SignalSource = "TIMING_ANOMALY"
)

// AllSignalSources lists every source in declaration order.
var AllSignalSources = []SignalSource{
	SignalTradingPattern,
	SignalHistoricalAccuracy,
	SignalVolumeClustering,
	SignalWhaleActivity,
	SignalTimingAnomaly,
}

// SignalCategory groups signals for category-level weighting.
type SignalCategory string

const (
	CategoryBehavioral SignalCategory = "BEHAVIORAL"
	CategoryStatistical SignalCategory = "STATISTICAL"
	CategoryNetwork    SignalCategory = "NETWORK"
)

// AllSignalCategories lists every category in declaration order.
var AllSignalCategories = []SignalCategory{
	CategoryBehavioral, CategoryStatistical, CategoryNetwork,
}

// ValidationMode controls how the configurator treats weight sums.
type ValidationMode string

const (
	ValidationStrict    ValidationMode = "STRICT"
	ValidationNormalize ValidationMode = "NORMALIZE"
	ValidationNone      ValidationMode = "NONE"
)

// WeightPreset names a constant weight table.
type WeightPreset string

const (
	PresetBalanced      WeightPreset = "BALANCED"
	PresetConservative  WeightPreset = "CONSERVATIVE"
	PresetAggressive    WeightPreset = "AGGRESSIVE"
	PresetInsiderFocused WeightPreset = "INSIDER_FOCUSED"
	PresetCustom        WeightPreset = "CUSTOM"
)

// WeightSetting is one mutable weight entry.
type WeightSetting struct {
	Weight  float64 `json:"weight"`
	Enabled bool    `json:"enabled"`
}

// ScoreThresholds are the suspicion-level cutpoints; must be strictly
// increasing low < medium < high < critical.
type ScoreThresholds struct {
	Low      float64 `json:"low"`
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}

// WeightChange is one audit-trail entry of a configuration mutation.
type WeightChange struct {
	Timestamp time.Time `json:"timestamp"`
	Field     string    `json:"field"`
	Previous  float64   `json:"previous"`
	Current   float64   `json:"current"`
	Source    string    `json:"source,omitempty"`
}

// ValidationResult reports configuration validity. Configuration mutations
// return this rather than throwing; invalid input never mutates state.
type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// WeightBalance classifies how evenly effective weight is spread.
type WeightBalance string

const (
	BalanceBalanced WeightBalance = "balanced"
	BalanceSkewed   WeightBalance = "skewed"
	BalanceExtreme  WeightBalance = "extreme"
)

// RankedSignalWeight is one row of a weight-impact analysis.
type RankedSignalWeight struct {
	Source          SignalSource `json:"source"`
	EffectiveWeight float64      `json:"effectiveWeight"`
}

// WeightImpact is the result of analyzing the current weight distribution.
type WeightImpact struct {
	Ranked   []RankedSignalWeight `json:"ranked"`
	Balance  WeightBalance        `json:"balance"`
	MaxMin   float64              `json:"maxMinRatio"`
	Disabled []SignalSource       `json:"disabled,omitempty"`
}

// WeightConfigExport is the versioned serialization contract for the
// configurator.
type WeightConfigExport struct {
	Version         string                           `json:"version"`
	SignalWeights   map[SignalSource]WeightSetting   `json:"signalWeights"`
	CategoryWeights map[SignalCategory]WeightSetting `json:"categoryWeights"`
	Thresholds      ScoreThresholds                  `json:"thresholds"`
	FlagThreshold   float64                          `json:"flagThreshold"`
	InsiderThreshold float64                         `json:"insiderThreshold"`
	ValidationMode  ValidationMode                   `json:"validationMode"`
	Preset          WeightPreset                     `json:"preset"`
	ExportedAt      time.Time                        `json:"exportedAt"`
}
