package models

import "time"

// ScoreBucket is one of 10 contiguous ranges partitioning [0,100].
// bucket[i].Max == bucket[i+1].Min; the last bucket includes 100.
type ScoreBucket struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether score falls in the bucket. The upper edge belongs
// to the next bucket, except for the final bucket which is inclusive.
func (b ScoreBucket) Contains(score float64, last bool) bool {
	if last {
		return score >= b.Min && score <= b.Max
	}
	return score >= b.Min && score < b.Max
}

// Midpoint returns the bucket's center score.
func (b ScoreBucket) Midpoint() float64 { return (b.Min + b.Max) / 2 }

// ReliabilityPoint is one bucket of the reliability curve.
type ReliabilityPoint struct {
	Bucket                  ScoreBucket `json:"bucket"`
	AvgPredictedProbability float64     `json:"avgPredictedProbability"`
	ActualPositiveRate      float64     `json:"actualPositiveRate"`
	SampleCount             int         `json:"sampleCount"`
	CalibrationError        float64     `json:"calibrationError"`
	LowConfidence           bool        `json:"lowConfidence,omitempty"`
}

// CalibrationQuality grades overall calibration.
type CalibrationQuality string

const (
	QualityExcellent        CalibrationQuality = "EXCELLENT"
	QualityGood             CalibrationQuality = "GOOD"
	QualityFair             CalibrationQuality = "FAIR"
	QualityPoor             CalibrationQuality = "POOR"
	QualityInsufficientData CalibrationQuality = "INSUFFICIENT_DATA"
)

// CalibrationMetrics holds the statistical quality measures of a calibration.
type CalibrationMetrics struct {
	BrierScore        float64            `json:"brierScore"`
	Precision         float64            `json:"precision"`
	Recall            float64            `json:"recall"`
	F1                float64            `json:"f1"`
	AUCROC            float64            `json:"aucRoc"`
	TruePositiveRate  float64            `json:"truePositiveRate"`
	FalsePositiveRate float64            `json:"falsePositiveRate"`
	ReliabilityCurve  []ReliabilityPoint `json:"reliabilityCurve"`
	Quality           CalibrationQuality `json:"quality"`
	SampleCount       int                `json:"sampleCount"`
	KnownSampleCount  int                `json:"knownSampleCount"`
}

// RecommendationType names a rule-based calibration recommendation.
type RecommendationType string

const (
	RecommendNone              RecommendationType = "NONE"
	RecommendIncreaseThreshold RecommendationType = "INCREASE_THRESHOLD"
	RecommendDecreaseThreshold RecommendationType = "DECREASE_THRESHOLD"
	RecommendRecalibrate       RecommendationType = "RECALIBRATE_BUCKETS"
)

// Recommendation is one actionable suggestion from a calibration pass.
type Recommendation struct {
	Type   RecommendationType `json:"type"`
	Reason string             `json:"reason"`
	Value  float64            `json:"value,omitempty"`
}

// CalibrationResult is the derived output of CalculateCalibration. Recomputed
// on demand; never persisted as an entity.
type CalibrationResult struct {
	Metrics              CalibrationMetrics `json:"metrics"`
	Recommendations      []Recommendation   `json:"recommendations"`
	OptimizedThreshold   float64            `json:"optimizedThreshold"`
	ScoreAdjustmentCurve []float64          `json:"scoreAdjustmentCurve"`
	IsCalibrated         bool               `json:"isCalibrated"`
	CalibratedAt         time.Time          `json:"calibratedAt"`
}

// BrierHistoryEntry is one line of the bounded Brier-score history.
type BrierHistoryEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	BrierScore  float64   `json:"brierScore"`
	SampleCount int       `json:"sampleCount"`
}

// CalibrationExport is the serialization contract for calibrator state.
type CalibrationExport struct {
	Outcomes             []OutcomeRecord     `json:"outcomes"`
	BrierHistory         []BrierHistoryEntry `json:"brierHistory"`
	ScoreAdjustmentCurve []float64           `json:"scoreAdjustmentCurve,omitempty"`
	ExportedAt           time.Time           `json:"exportedAt"`
}

// CalibrationEvent is emitted after each completed calibration pass.
type CalibrationEvent struct {
	Quality     CalibrationQuality `json:"quality"`
	BrierScore  float64            `json:"brierScore"`
	SampleCount int                `json:"sampleCount"`
}
