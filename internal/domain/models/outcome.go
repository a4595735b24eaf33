package models

import "time"

// OutcomeLabel is the ground-truth label attached to a scored wallet once the
// flagged behavior was (or was not) confirmed.
type OutcomeLabel string

const (
	OutcomeTruePositive  OutcomeLabel = "TRUE_POSITIVE"
	OutcomeFalsePositive OutcomeLabel = "FALSE_POSITIVE"
	OutcomeTrueNegative  OutcomeLabel = "TRUE_NEGATIVE"
	OutcomeFalseNegative OutcomeLabel = "FALSE_NEGATIVE"
	OutcomeUnknown       OutcomeLabel = "UNKNOWN"
)

// IsKnown reports whether the label is a confirmed confusion-matrix cell.
func (l OutcomeLabel) IsKnown() bool {
	switch l {
	case OutcomeTruePositive, OutcomeFalsePositive, OutcomeTrueNegative, OutcomeFalseNegative:
		return true
	}
	return false
}

// IsPositiveTruth reports whether the underlying truth was "suspicious":
// a true positive was correctly flagged, a false negative was missed.
func (l OutcomeLabel) IsPositiveTruth() bool {
	return l == OutcomeTruePositive || l == OutcomeFalseNegative
}

// OutcomeRecord is one labeled scoring outcome used for calibration.
// Immutable once created except through the calibrator's explicit update
// operations.
type OutcomeRecord struct {
	ID                   string                 `json:"id"`
	WalletAddress        string                 `json:"walletAddress"`
	OriginalScore        float64                `json:"originalScore"`
	PredictedProbability float64                `json:"predictedProbability"`
	Outcome              OutcomeLabel           `json:"outcome"`
	ScoredAt             time.Time              `json:"scoredAt"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
}
