package calibration

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletWatch/internal/domain/models"
	"WalletWatch/pkg/util"
)

const testWallet = "0x00000000000000000000000000000000000000ee"

func walletN(i int) string {
	return fmt.Sprintf("0x%040x", i+1)
}

// seedHighScoreOutcomes records n outcomes at score 90, tp of them confirmed
// true positives and the rest false positives.
func seedHighScoreOutcomes(t *testing.T, c *Calibrator, n, tp int, base time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		label := models.OutcomeFalsePositive
		if i < tp {
			label = models.OutcomeTruePositive
		}
		_, err := c.RecordOutcome(walletN(i), 90, label, base.Add(time.Duration(i)*time.Minute), nil)
		require.NoError(t, err)
	}
}

func TestScoreProbabilityRoundTrip(t *testing.T) {
	assert.Equal(t, 0.9, ScoreToProbability(90))
	assert.Equal(t, 0.0, ScoreToProbability(-5))
	assert.Equal(t, 1.0, ScoreToProbability(150))
	assert.Equal(t, 90.0, ProbabilityToScore(0.9))
	assert.Equal(t, 0.0, ProbabilityToScore(-0.5))
	assert.Equal(t, 100.0, ProbabilityToScore(2))
}

func TestBucketForScore(t *testing.T) {
	assert.Equal(t, 0, BucketForScore(0))
	assert.Equal(t, 0, BucketForScore(9.99))
	assert.Equal(t, 5, BucketForScore(50))
	assert.Equal(t, 9, BucketForScore(95))
	// 100 lands in the final bucket, not out of range.
	assert.Equal(t, 9, BucketForScore(100))
	assert.Equal(t, 0, BucketForScore(-10))

	b := GetBucketForScore(95)
	assert.Equal(t, 90.0, b.Min)
	assert.Equal(t, 100.0, b.Max)

	buckets := Buckets()
	require.Len(t, buckets, BucketCount)
	for i := 1; i < len(buckets); i++ {
		assert.Equal(t, buckets[i-1].Max, buckets[i].Min)
	}
}

func TestRecordOutcomeValidation(t *testing.T) {
	c := New(DefaultConfig())

	_, err := c.RecordOutcome("bogus", 50, models.OutcomeTruePositive, time.Now(), nil)
	assert.True(t, errors.Is(err, util.ErrInvalidAddress))

	_, err = c.RecordOutcome(testWallet, 50, models.OutcomeLabel("MAYBE"), time.Now(), nil)
	assert.Error(t, err)

	rec, err := c.RecordOutcome(testWallet, 150, "", time.Time{}, map[string]interface{}{"source": "review"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUnknown, rec.Outcome)
	assert.Equal(t, 100.0, rec.OriginalScore)
	assert.Equal(t, 1.0, rec.PredictedProbability)
	assert.False(t, rec.ScoredAt.IsZero())
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "review", rec.Metadata["source"])
}

func TestUpdateOutcome(t *testing.T) {
	c := New(DefaultConfig())
	base := time.Now().Add(-48 * time.Hour)

	assert.Nil(t, c.UpdateOutcome(testWallet, models.OutcomeTruePositive))

	older, err := c.RecordOutcome(testWallet, 40, models.OutcomeUnknown, base, nil)
	require.NoError(t, err)
	newer, err := c.RecordOutcome(testWallet, 60, models.OutcomeUnknown, base.Add(time.Hour), nil)
	require.NoError(t, err)

	// Relabels the most recent record for the wallet.
	updated := c.UpdateOutcome(testWallet, models.OutcomeTruePositive)
	require.NotNil(t, updated)
	assert.Equal(t, newer.ID, updated.ID)

	byID := c.UpdateOutcomeByID(older.ID, models.OutcomeFalsePositive)
	require.NotNil(t, byID)
	assert.Equal(t, models.OutcomeFalsePositive, byID.Outcome)

	assert.Nil(t, c.UpdateOutcomeByID("missing", models.OutcomeTruePositive))
}

func TestCalibrationInsufficientData(t *testing.T) {
	c := New(DefaultConfig())
	base := time.Now().Add(-48 * time.Hour)
	seedHighScoreOutcomes(t, c, 10, 8, base)

	res := c.CalculateCalibration()
	assert.False(t, res.IsCalibrated)
	assert.Equal(t, models.QualityInsufficientData, res.Metrics.Quality)
	require.Len(t, res.Recommendations, 1)
	assert.Equal(t, models.RecommendNone, res.Recommendations[0].Type)
	assert.False(t, c.IsCalibrated())
	// The identity mapping applies until a successful calibration.
	assert.Equal(t, 42.0, c.CalibrateScore(42))
}

func TestCalibrationHighScoreCohort(t *testing.T) {
	c := New(DefaultConfig())
	base := time.Now().Add(-48 * time.Hour)

	var events []models.CalibrationEvent
	c.OnCalibrated(func(e models.CalibrationEvent) { events = append(events, e) })

	// 100 wallets scored 90: 80 confirmed, 20 false alarms.
	seedHighScoreOutcomes(t, c, 100, 80, base)

	res := c.CalculateCalibration()
	require.True(t, res.IsCalibrated)
	assert.Equal(t, 100, res.Metrics.SampleCount)
	assert.Equal(t, 100, res.Metrics.KnownSampleCount)

	// Brier: 80*(0.9-1)^2 + 20*(0.9-0)^2 over 100 samples.
	assert.InDelta(t, 0.17, res.Metrics.BrierScore, 1e-9)
	assert.Equal(t, models.QualityGood, res.Metrics.Quality)

	assert.InDelta(t, 0.8, res.Metrics.Precision, 1e-9)
	assert.Equal(t, 1.0, res.Metrics.Recall)
	assert.Equal(t, 1.0, res.Metrics.FalsePositiveRate)

	require.Len(t, res.Metrics.ReliabilityCurve, BucketCount)
	top := res.Metrics.ReliabilityCurve[BucketCount-1]
	assert.Equal(t, 100, top.SampleCount)
	assert.InDelta(t, 0.8, top.ActualPositiveRate, 1e-9)
	assert.InDelta(t, 0.9, top.AvgPredictedProbability, 1e-9)
	assert.InDelta(t, 0.1, top.CalibrationError, 1e-9)
	assert.False(t, top.LowConfidence)

	// All mass sits at score 90: every sweep threshold at or below it yields
	// the same F1, and ties keep the lowest.
	assert.Equal(t, 5.0, res.OptimizedThreshold)

	types := make(map[models.RecommendationType]bool)
	for _, r := range res.Recommendations {
		types[r.Type] = true
	}
	assert.True(t, types[models.RecommendIncreaseThreshold])
	assert.True(t, types[models.RecommendRecalibrate])

	require.Len(t, events, 1)
	assert.Equal(t, models.QualityGood, events[0].Quality)

	hist := c.BrierHistory()
	require.Len(t, hist, 1)
	assert.InDelta(t, 0.17, hist[0].BrierScore, 1e-9)
}

func TestCalibrateScoreMonotonic(t *testing.T) {
	c := New(DefaultConfig())
	base := time.Now().Add(-48 * time.Hour)
	seedHighScoreOutcomes(t, c, 100, 80, base)
	require.True(t, c.CalculateCalibration().IsCalibrated)
	require.True(t, c.IsCalibrated())

	prev := -1.0
	for score := 0.0; score <= 100; score += 2.5 {
		got := c.CalibrateScore(score)
		assert.GreaterOrEqual(t, got, prev, "score %.1f", score)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 100.0)
		prev = got
	}
	// Out-of-range input clamps before mapping.
	assert.Equal(t, c.CalibrateScore(100), c.CalibrateScore(250))
	assert.Equal(t, c.CalibrateScore(0), c.CalibrateScore(-40))
}

func TestUnknownOutcomesScoreMaximallyWrong(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamplesForCalibration = 10
	c := New(cfg)
	base := time.Now().Add(-48 * time.Hour)

	seedHighScoreOutcomes(t, c, 10, 10, base)
	for i := 0; i < 5; i++ {
		_, err := c.RecordOutcome(walletN(100+i), 90, models.OutcomeUnknown, base, nil)
		require.NoError(t, err)
	}

	res := c.CalculateCalibration()
	require.True(t, res.IsCalibrated)
	assert.Equal(t, 15, res.Metrics.SampleCount)
	assert.Equal(t, 10, res.Metrics.KnownSampleCount)
	// 10*(0.9-1)^2 + 5*1.0 over 15 samples.
	assert.InDelta(t, (10*0.01+5)/15, res.Metrics.BrierScore, 1e-9)
}

func TestAgeRetention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamplesForCalibration = 5
	c := New(cfg)
	now := time.Now()

	for i := 0; i < 5; i++ {
		_, err := c.RecordOutcome(walletN(i), 90, models.OutcomeTruePositive, now.Add(-time.Hour), nil)
		require.NoError(t, err)
	}
	stale := now.Add(-cfg.MaxOutcomeAge - 24*time.Hour)
	_, err := c.RecordOutcome(walletN(99), 10, models.OutcomeFalsePositive, stale, nil)
	require.NoError(t, err)
	require.Len(t, c.Outcomes(), 6)

	res := c.CalculateCalibration()
	assert.Equal(t, 5, res.Metrics.SampleCount)
	assert.Len(t, c.Outcomes(), 5)
}

func TestExportImportRoundTrip(t *testing.T) {
	c := New(DefaultConfig())
	base := time.Now().Add(-48 * time.Hour)
	seedHighScoreOutcomes(t, c, 100, 80, base)
	require.True(t, c.CalculateCalibration().IsCalibrated)

	snap := c.Export()
	require.Len(t, snap.ScoreAdjustmentCurve, BucketCount)
	require.Len(t, snap.Outcomes, 100)

	restored := New(DefaultConfig())
	require.NoError(t, restored.Import(snap))
	assert.True(t, restored.IsCalibrated())
	assert.Len(t, restored.Outcomes(), 100)
	assert.Equal(t, c.CalibrateScore(88), restored.CalibrateScore(88))
}

func TestImportRejectsMalformed(t *testing.T) {
	c := New(DefaultConfig())

	err := c.Import(models.CalibrationExport{
		Outcomes: []models.OutcomeRecord{{WalletAddress: ""}},
	})
	assert.Error(t, err)

	err = c.Import(models.CalibrationExport{
		Outcomes: []models.OutcomeRecord{{WalletAddress: testWallet, Outcome: "MAYBE"}},
	})
	assert.Error(t, err)

	err = c.Import(models.CalibrationExport{
		ScoreAdjustmentCurve: []float64{1, 2, 3},
	})
	assert.Error(t, err)

	assert.Empty(t, c.Outcomes())
}

func TestImportEnforcesCurveMonotonicity(t *testing.T) {
	c := New(DefaultConfig())
	require.NoError(t, c.Import(models.CalibrationExport{
		ScoreAdjustmentCurve: []float64{10, 5, 30, 20, 50, 40, 70, 60, 90, 80},
	}))
	require.True(t, c.IsCalibrated())

	prev := -1.0
	for score := 0.0; score <= 100; score += 5 {
		got := c.CalibrateScore(score)
		assert.GreaterOrEqual(t, got, prev, "score %.1f", score)
		prev = got
	}
}

func TestClearOutcomesKeepsCalibration(t *testing.T) {
	c := New(DefaultConfig())
	base := time.Now().Add(-48 * time.Hour)
	seedHighScoreOutcomes(t, c, 100, 80, base)
	require.True(t, c.CalculateCalibration().IsCalibrated)

	c.ClearOutcomes()
	assert.Empty(t, c.Outcomes())
	assert.True(t, c.IsCalibrated())
	assert.NotNil(t, c.LastCalibration())
	assert.Len(t, c.BrierHistory(), 1)
}
