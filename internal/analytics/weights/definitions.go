package weights

import (
	"fmt"
	"math"

	"WalletWatch/internal/domain/models"
)

// ConfigVersion tags exported configuration snapshots.
const ConfigVersion = "1.0.0"

// signalDefinition is the static metadata behind one signal source.
type signalDefinition struct {
	Category      models.SignalCategory
	Description   string
	DefaultWeight float64
}

// signalDefinitions must cover every models.SignalSource; completeness and
// the default-weight sum are checked once at package init.
var signalDefinitions = map[models.SignalSource]signalDefinition{
	models.SignalTradingPattern: {
		Category:      models.CategoryBehavioral,
		Description:   "archetype match from the trading pattern classifier",
		DefaultWeight: 0.25,
	},
	models.SignalHistoricalAccuracy: {
		Category:      models.CategoryStatistical,
		Description:   "suspicion score from historical prediction accuracy",
		DefaultWeight: 0.25,
	},
	models.SignalVolumeClustering: {
		Category:      models.CategoryNetwork,
		Description:   "coordination score from volume clustering",
		DefaultWeight: 0.20,
	},
	models.SignalWhaleActivity: {
		Category:      models.CategoryBehavioral,
		Description:   "trade sizing relative to market whale thresholds",
		DefaultWeight: 0.15,
	},
	models.SignalTimingAnomaly: {
		Category:      models.CategoryStatistical,
		Description:   "pre-event and resolution-adjacent timing signals",
		DefaultWeight: 0.15,
	},
}

type presetTable struct {
	Signals    map[models.SignalSource]float64
	Categories map[models.SignalCategory]float64
}

// presets is the named constant weight table. Each entry must sum to 1.0 per
// signal set and per category set; checked once at package init.
var presets = map[models.WeightPreset]presetTable{
	models.PresetBalanced: {
		Signals: map[models.SignalSource]float64{
			models.SignalTradingPattern:     0.25,
			models.SignalHistoricalAccuracy: 0.25,
			models.SignalVolumeClustering:   0.20,
			models.SignalWhaleActivity:      0.15,
			models.SignalTimingAnomaly:      0.15,
		},
		Categories: map[models.SignalCategory]float64{
			models.CategoryBehavioral:  0.40,
			models.CategoryStatistical: 0.40,
			models.CategoryNetwork:     0.20,
		},
	},
	models.PresetConservative: {
		Signals: map[models.SignalSource]float64{
			models.SignalTradingPattern:     0.20,
			models.SignalHistoricalAccuracy: 0.20,
			models.SignalVolumeClustering:   0.20,
			models.SignalWhaleActivity:      0.20,
			models.SignalTimingAnomaly:      0.20,
		},
		Categories: map[models.SignalCategory]float64{
			models.CategoryBehavioral:  1.0 / 3,
			models.CategoryStatistical: 1.0 / 3,
			models.CategoryNetwork:     1.0 / 3,
		},
	},
	models.PresetAggressive: {
		Signals: map[models.SignalSource]float64{
			models.SignalTradingPattern:     0.30,
			models.SignalHistoricalAccuracy: 0.30,
			models.SignalVolumeClustering:   0.20,
			models.SignalWhaleActivity:      0.10,
			models.SignalTimingAnomaly:      0.10,
		},
		Categories: map[models.SignalCategory]float64{
			models.CategoryBehavioral:  0.45,
			models.CategoryStatistical: 0.45,
			models.CategoryNetwork:     0.10,
		},
	},
	models.PresetInsiderFocused: {
		Signals: map[models.SignalSource]float64{
			models.SignalTradingPattern:     0.25,
			models.SignalHistoricalAccuracy: 0.35,
			models.SignalVolumeClustering:   0.10,
			models.SignalWhaleActivity:      0.10,
			models.SignalTimingAnomaly:      0.20,
		},
		Categories: map[models.SignalCategory]float64{
			models.CategoryBehavioral:  0.30,
			models.CategoryStatistical: 0.55,
			models.CategoryNetwork:     0.15,
		},
	},
}

const sumTolerance = 1e-6

func init() {
	var defSum float64
	for _, src := range models.AllSignalSources {
		def, ok := signalDefinitions[src]
		if !ok {
			panic(fmt.Sprintf("weights: signal source %s has no definition", src))
		}
		if def.Description == "" {
			panic(fmt.Sprintf("weights: signal source %s has no description", src))
		}
		defSum += def.DefaultWeight
	}
	if math.Abs(defSum-1) > sumTolerance {
		panic(fmt.Sprintf("weights: default signal weights sum to %v, want 1", defSum))
	}

	for name, table := range presets {
		var sigSum float64
		for _, src := range models.AllSignalSources {
			w, ok := table.Signals[src]
			if !ok {
				panic(fmt.Sprintf("weights: preset %s missing signal %s", name, src))
			}
			sigSum += w
		}
		if math.Abs(sigSum-1) > sumTolerance {
			panic(fmt.Sprintf("weights: preset %s signal weights sum to %v, want 1", name, sigSum))
		}
		var catSum float64
		for _, cat := range models.AllSignalCategories {
			w, ok := table.Categories[cat]
			if !ok {
				panic(fmt.Sprintf("weights: preset %s missing category %s", name, cat))
			}
			catSum += w
		}
		if math.Abs(catSum-1) > sumTolerance {
			panic(fmt.Sprintf("weights: preset %s category weights sum to %v, want 1", name, catSum))
		}
	}
}

// SignalDescription returns the static description of a signal source.
func SignalDescription(src models.SignalSource) string {
	return signalDefinitions[src].Description
}

// SignalCategoryOf returns the category a signal source belongs to.
func SignalCategoryOf(src models.SignalSource) models.SignalCategory {
	return signalDefinitions[src].Category
}
