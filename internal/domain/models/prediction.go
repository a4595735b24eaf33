package models

import "time"

// Conviction is the confidence level behind a tracked prediction.
type Conviction string

const (
	ConvictionVeryLow  Conviction = "VERY_LOW"
	ConvictionLow      Conviction = "LOW"
	ConvictionMedium   Conviction = "MEDIUM"
	ConvictionHigh     Conviction = "HIGH"
	ConvictionVeryHigh Conviction = "VERY_HIGH"
)

// ConvictionWeights weight resolved outcomes when computing weighted accuracy.
var ConvictionWeights = map[Conviction]float64{
	ConvictionVeryLow:  0.2,
	ConvictionLow:      0.5,
	ConvictionMedium:   1.0,
	ConvictionHigh:     1.5,
	ConvictionVeryHigh: 2.0,
}

// PredictionOutcome is the resolution state of a tracked prediction.
type PredictionOutcome string

const (
	PredictionPending   PredictionOutcome = "PENDING"
	PredictionCorrect   PredictionOutcome = "CORRECT"
	PredictionIncorrect PredictionOutcome = "INCORRECT"
	PredictionCancelled PredictionOutcome = "CANCELLED"
)

// IsResolved reports whether the prediction has a final correct/incorrect
// outcome. Cancelled predictions are excluded from accuracy computation.
func (o PredictionOutcome) IsResolved() bool {
	return o == PredictionCorrect || o == PredictionIncorrect
}

// MarketResolution is the final outcome of a prediction market.
type MarketResolution struct {
	MarketID   string    `json:"marketId"`
	Outcome    string    `json:"outcome"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

// TrackedPrediction is one wallet prediction tracked for accuracy scoring.
// Keyed by (WalletAddress, PredictionID); re-adding the same id overwrites.
type TrackedPrediction struct {
	PredictionID        string            `json:"predictionId"`
	WalletAddress       string            `json:"walletAddress"`
	MarketID            string            `json:"marketId"`
	MarketCategory      string            `json:"marketCategory,omitempty"`
	PredictedOutcome    string            `json:"predictedOutcome"`
	ActualOutcome       string            `json:"actualOutcome,omitempty"`
	Outcome             PredictionOutcome `json:"outcome"`
	PositionSize        float64           `json:"positionSize"`
	Conviction          Conviction        `json:"conviction"`
	EntryProbability    float64           `json:"entryProbability"`
	PredictionTimestamp time.Time         `json:"predictionTimestamp"`
	ResolutionTimestamp *time.Time        `json:"resolutionTimestamp,omitempty"`
	RealizedPnl         *float64          `json:"realizedPnl,omitempty"`
}
