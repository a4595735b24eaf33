package composite

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletWatch/internal/analytics/weights"
	"WalletWatch/internal/domain/models"
	"WalletWatch/pkg/util"
)

const testWallet = "0x00000000000000000000000000000000000000dd"

// fixedCalibrator satisfies ScoreCalibrator with a constant shift.
type fixedCalibrator struct {
	calibrated bool
	shift      float64
}

func (f fixedCalibrator) IsCalibrated() bool { return f.calibrated }
func (f fixedCalibrator) CalibrateScore(score float64) float64 {
	out := score + f.shift
	if out > 100 {
		out = 100
	}
	if out < 0 {
		out = 0
	}
	return out
}

func conservativeWeights(t *testing.T) *weights.Configurator {
	t.Helper()
	c := weights.New(weights.DefaultConfig())
	require.True(t, c.ApplyPreset(models.PresetConservative).IsValid)
	return c
}

func fullInput() Input {
	return Input{
		WalletAddress: testWallet,
		Pattern: &models.Classification{
			WalletAddress:  testWallet,
			PrimaryPattern: models.PatternBot,
			Confidence:     models.ConfidenceHigh,
			RiskScore:      80,
			Features:       models.TradingFeatures{PreEventRatio: 0.5},
		},
		Accuracy: &models.AccuracyAnalysis{
			WalletAddress:  testWallet,
			SuspicionScore: 60,
		},
		Cluster: &models.VolumeCluster{
			MarketID:          "mkt",
			CoordinationScore: 70,
		},
		WhaleTier: models.TierWhale,
	}
}

func TestScoreInvalidAddress(t *testing.T) {
	s := New(conservativeWeights(t), nil)
	_, err := s.Score(Input{WalletAddress: "bogus"})
	assert.True(t, errors.Is(err, util.ErrInvalidAddress))
}

func TestScoreEmptyInput(t *testing.T) {
	s := New(conservativeWeights(t), nil)
	res, err := s.Score(Input{WalletAddress: testWallet})
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, models.SuspicionNone, res.SuspicionLevel)
	assert.False(t, res.IsFlagged)
	assert.False(t, res.InsiderIndicator)
	assert.Len(t, res.Contributions, len(models.AllSignalSources))
	assert.False(t, res.AnalyzedAt.IsZero())
}

func TestScoreWeightedSum(t *testing.T) {
	s := New(conservativeWeights(t), nil)
	res, err := s.Score(fullInput())
	require.NoError(t, err)

	// Equal 0.20 weights over raw signals 80, 60, 70, 75 and timing 50.
	assert.InDelta(t, 67.0, res.Score, 1e-9)
	assert.Equal(t, models.SuspicionLow, res.SuspicionLevel)
	assert.False(t, res.IsFlagged)
	assert.Nil(t, res.CalibratedScore)

	bySource := make(map[models.SignalSource]models.SignalContribution)
	for _, c := range res.Contributions {
		bySource[c.Source] = c
	}
	assert.Equal(t, 80.0, bySource[models.SignalTradingPattern].RawScore)
	assert.Equal(t, 60.0, bySource[models.SignalHistoricalAccuracy].RawScore)
	assert.Equal(t, 70.0, bySource[models.SignalVolumeClustering].RawScore)
	assert.Equal(t, 75.0, bySource[models.SignalWhaleActivity].RawScore)
	assert.Equal(t, 50.0, bySource[models.SignalTimingAnomaly].RawScore)
	assert.InDelta(t, 16.0, bySource[models.SignalTradingPattern].WeightedScore, 1e-9)
}

func TestTimingScoreAddsAnomalyBonus(t *testing.T) {
	s := New(conservativeWeights(t), nil)
	in := fullInput()
	in.Accuracy.Anomalies = []models.AccuracyAnomaly{{Type: models.AnomalyTimingAdvantage}}

	res, err := s.Score(in)
	require.NoError(t, err)
	// Timing climbs from 50 to 80; one fifth of the 30-point jump.
	assert.InDelta(t, 73.0, res.Score, 1e-9)
}

func TestFlaggingAndEvent(t *testing.T) {
	s := New(conservativeWeights(t), nil)
	var flagged []models.CompositeScoreResult
	s.OnFlagged(func(r models.CompositeScoreResult) { flagged = append(flagged, r) })

	in := fullInput()
	in.Pattern.RiskScore = 95
	in.Accuracy.SuspicionScore = 95
	in.Cluster.CoordinationScore = 95
	in.WhaleTier = models.TierMegaWhale
	in.Pattern.Features.PreEventRatio = 0.9

	res, err := s.Score(in)
	require.NoError(t, err)
	assert.True(t, res.IsFlagged)
	assert.True(t, res.Score >= 70)
	require.Len(t, flagged, 1)
	assert.Equal(t, testWallet, flagged[0].WalletAddress)
}

func TestDisabledSignalContributesNothing(t *testing.T) {
	w := conservativeWeights(t)
	require.True(t, w.SetSignalEnabled(models.SignalWhaleActivity, false).IsValid)
	s := New(w, nil)

	res, err := s.Score(fullInput())
	require.NoError(t, err)
	assert.Len(t, res.Contributions, len(models.AllSignalSources)-1)
	for _, c := range res.Contributions {
		assert.NotEqual(t, models.SignalWhaleActivity, c.Source)
	}
	// Remaining signals renormalize: (80+60+70+50)/4.
	assert.InDelta(t, 65.0, res.Score, 1e-9)
}

func TestAllSignalsDisabledScoresNone(t *testing.T) {
	w := conservativeWeights(t)
	for _, src := range models.AllSignalSources {
		w.SetSignalEnabled(src, false)
	}
	s := New(w, nil)

	res, err := s.Score(fullInput())
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, models.SuspicionNone, res.SuspicionLevel)
	assert.Empty(t, res.Contributions)
}

func TestCalibratorAdjustsEffectiveScore(t *testing.T) {
	s := New(conservativeWeights(t), fixedCalibrator{calibrated: true, shift: 10})

	res, err := s.Score(fullInput())
	require.NoError(t, err)
	require.NotNil(t, res.CalibratedScore)
	assert.InDelta(t, 77.0, *res.CalibratedScore, 1e-9)
	// Flagging runs on the calibrated score: 77 >= 70.
	assert.True(t, res.IsFlagged)
	assert.Equal(t, models.SuspicionHigh, res.SuspicionLevel)
}

func TestUncalibratedCalibratorIgnored(t *testing.T) {
	s := New(conservativeWeights(t), fixedCalibrator{calibrated: false, shift: 50})

	res, err := s.Score(fullInput())
	require.NoError(t, err)
	assert.Nil(t, res.CalibratedScore)
	assert.False(t, res.IsFlagged)
}

func TestInsiderIndicatorPaths(t *testing.T) {
	s := New(conservativeWeights(t), nil)

	in := fullInput()
	in.Accuracy.IsPotentialInsider = true
	res, err := s.Score(in)
	require.NoError(t, err)
	assert.True(t, res.InsiderIndicator)

	in = fullInput()
	in.Pattern.PrimaryPattern = models.PatternPotentialInsider
	in.Pattern.Confidence = models.ConfidenceVeryHigh
	res, err = s.Score(in)
	require.NoError(t, err)
	assert.True(t, res.InsiderIndicator)

	// Low-confidence insider classification does not trip the indicator.
	in.Pattern.Confidence = models.ConfidenceLow
	res, err = s.Score(in)
	require.NoError(t, err)
	assert.False(t, res.InsiderIndicator)
}

func TestResultCarriesSubResults(t *testing.T) {
	s := New(conservativeWeights(t), nil)
	pnl := 42_000.0
	in := fullInput()
	in.SybilCluster = true
	in.EstimatedPnlUsd = &pnl
	in.Cluster.DetectedAt = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	res, err := s.Score(in)
	require.NoError(t, err)
	assert.True(t, res.SybilCluster)
	require.NotNil(t, res.EstimatedPnlUsd)
	assert.Equal(t, pnl, *res.EstimatedPnlUsd)
	require.NotNil(t, res.Cluster)
	assert.Equal(t, "mkt", res.Cluster.MarketID)
	require.NotNil(t, res.Pattern)
	require.NotNil(t, res.Accuracy)
}
