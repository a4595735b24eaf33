package pattern

import "WalletWatch/internal/domain/models"

// FeatureRequirement constrains one feature to [Min,Max] with a weight.
// A feature inside the range contributes fully; outside, its contribution
// falls off linearly over one range-width of distance.
type FeatureRequirement struct {
	Feature string
	Min     float64
	Max     float64
	Weight  float64
}

// Definition is one named archetype with its weighted feature requirements.
// Declaration order is the tie-break when scores are equal.
type Definition struct {
	Pattern      models.PatternType
	MinScore     float64
	Requirements []FeatureRequirement
}

// score computes the weighted requirement match in [0,100].
func (d Definition) score(f models.TradingFeatures) float64 {
	var total, matched float64
	for _, r := range d.Requirements {
		total += r.Weight
		matched += r.Weight * r.match(featureValue(f, r.Feature))
	}
	if total == 0 {
		return 0
	}
	return matched / total * 100
}

func (r FeatureRequirement) match(v float64) float64 {
	if v >= r.Min && v <= r.Max {
		return 1
	}
	span := r.Max - r.Min
	if span <= 0 {
		span = 1
	}
	var dist float64
	if v < r.Min {
		dist = r.Min - v
	} else {
		dist = v - r.Max
	}
	m := 1 - dist/span
	if m < 0 {
		return 0
	}
	return m
}

func featureValue(f models.TradingFeatures, name string) float64 {
	switch name {
	case "tradesPerDay":
		return f.TradesPerDay
	case "winRate":
		return f.WinRate
	case "marketConcentration":
		return f.MarketConcentration
	case "buyRatio":
		return f.BuyRatio
	case "makerRatio":
		return f.MakerRatio
	case "preEventRatio":
		return f.PreEventRatio
	case "sizeConsistency":
		return f.SizeConsistency
	case "timingConsistency":
		return f.TimingConsistency
	case "avgTradeSizeUsd":
		return f.AvgTradeSizeUsd
	case "daysActive":
		return f.DaysActive
	}
	return 0
}

// defaultDefinitions is the registered archetype table. UNKNOWN is the
// implicit fallback and carries no definition.
func defaultDefinitions() []Definition {
	return []Definition{
		{
			Pattern:  models.PatternScalper,
			MinScore: 65,
			Requirements: []FeatureRequirement{
				{Feature: "tradesPerDay", Min: 5, Max: 500, Weight: 0.4},
				{Feature: "avgTradeSizeUsd", Min: 0, Max: 500, Weight: 0.3},
				{Feature: "marketConcentration", Min: 0, Max: 0.5, Weight: 0.3},
			},
		},
		{
			Pattern:  models.PatternWhale,
			MinScore: 65,
			Requirements: []FeatureRequirement{
				{Feature: "avgTradeSizeUsd", Min: 10_000, Max: 1e12, Weight: 0.6},
				{Feature: "tradesPerDay", Min: 0, Max: 3, Weight: 0.4},
			},
		},
		{
			Pattern:  models.PatternMarketMaker,
			MinScore: 70,
			Requirements: []FeatureRequirement{
				{Feature: "makerRatio", Min: 0.7, Max: 1, Weight: 0.5},
				{Feature: "buyRatio", Min: 0.35, Max: 0.65, Weight: 0.3},
				{Feature: "tradesPerDay", Min: 3, Max: 1000, Weight: 0.2},
			},
		},
		{
			Pattern:  models.PatternBot,
			MinScore: 70,
			Requirements: []FeatureRequirement{
				{Feature: "timingConsistency", Min: 0.85, Max: 1, Weight: 0.35},
				{Feature: "sizeConsistency", Min: 0.85, Max: 1, Weight: 0.35},
				{Feature: "tradesPerDay", Min: 10, Max: 10_000, Weight: 0.3},
			},
		},
		{
			Pattern:  models.PatternPotentialInsider,
			MinScore: 70,
			Requirements: []FeatureRequirement{
				{Feature: "winRate", Min: 0.75, Max: 1, Weight: 0.4},
				{Feature: "preEventRatio", Min: 0.3, Max: 1, Weight: 0.35},
				{Feature: "marketConcentration", Min: 0.5, Max: 1, Weight: 0.25},
			},
		},
		{
			Pattern:  models.PatternRetail,
			MinScore: 50,
			Requirements: []FeatureRequirement{
				{Feature: "tradesPerDay", Min: 0, Max: 2, Weight: 0.4},
				{Feature: "avgTradeSizeUsd", Min: 0, Max: 2_000, Weight: 0.3},
				{Feature: "makerRatio", Min: 0, Max: 0.3, Weight: 0.3},
			},
		},
	}
}
