package accuracy

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletWatch/internal/domain/models"
	"WalletWatch/pkg/util"
)

const testWallet = "0x00000000000000000000000000000000000000bb"

func prediction(id string, outcome models.PredictionOutcome, ts time.Time) models.TrackedPrediction {
	return models.TrackedPrediction{
		PredictionID:        id,
		WalletAddress:       testWallet,
		MarketID:            "mkt-" + id,
		PredictedOutcome:    "YES",
		Outcome:             outcome,
		PositionSize:        1_000,
		Conviction:          models.ConvictionMedium,
		EntryProbability:    0.5,
		PredictionTimestamp: ts,
	}
}

// seedResolved adds total resolved predictions, correct of them CORRECT.
func seedResolved(t *testing.T, s *Scorer, total, correct int, base time.Time) {
	t.Helper()
	for i := 0; i < total; i++ {
		outcome := models.PredictionIncorrect
		if i < correct {
			outcome = models.PredictionCorrect
		}
		p := prediction(fmt.Sprintf("p%03d", i), outcome, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, s.AddPrediction(p))
	}
}

func TestAddPredictionValidation(t *testing.T) {
	s := New(DefaultConfig())

	err := s.AddPrediction(models.TrackedPrediction{WalletAddress: "nope", PredictionID: "p1"})
	assert.True(t, errors.Is(err, util.ErrInvalidAddress))

	err = s.AddPrediction(models.TrackedPrediction{WalletAddress: testWallet})
	assert.Error(t, err)

	// Empty outcome defaults to PENDING.
	require.NoError(t, s.AddPrediction(models.TrackedPrediction{
		WalletAddress: testWallet, PredictionID: "p1", MarketID: "mkt",
	}))
	preds := s.Predictions(testWallet)
	require.Len(t, preds, 1)
	assert.Equal(t, models.PredictionPending, preds[0].Outcome)
}

func TestAddPredictionUpsertsByID(t *testing.T) {
	s := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	p := prediction("p1", models.PredictionPending, base)
	require.NoError(t, s.AddPrediction(p))
	p.PositionSize = 9_999
	require.NoError(t, s.AddPrediction(p))

	preds := s.Predictions(testWallet)
	require.Len(t, preds, 1)
	assert.Equal(t, 9_999.0, preds[0].PositionSize)
}

func TestAnalyzeBelowFloor(t *testing.T) {
	s := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	seedResolved(t, s, 9, 9, base)

	a := s.Analyze(testWallet, AnalyzeOptions{})
	require.NotNil(t, a)
	assert.Equal(t, models.TierUnknown, a.Tier)
	assert.Equal(t, 0.0, a.SuspicionScore)
	assert.Equal(t, models.SuspicionNone, a.SuspicionLevel)
	assert.Equal(t, 9, a.ResolvedCount)
}

func TestTierBoundaries(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	s := New(DefaultConfig())
	seedResolved(t, s, 100, 90, base)
	a := s.Analyze(testWallet, AnalyzeOptions{})
	assert.InDelta(t, 90.0, a.Windows[models.WindowAllTime].RawAccuracy, 1e-9)
	assert.Equal(t, models.TierExceptional, a.Tier)

	s = New(DefaultConfig())
	seedResolved(t, s, 100, 89, base)
	a = s.Analyze(testWallet, AnalyzeOptions{})
	assert.Equal(t, models.TierExcellent, a.Tier)

	s = New(DefaultConfig())
	seedResolved(t, s, 100, 45, base)
	a = s.Analyze(testWallet, AnalyzeOptions{})
	assert.Equal(t, models.TierAverage, a.Tier)
}

func TestUpdatePredictionOutcomeImmutableOnceResolved(t *testing.T) {
	s := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.AddPrediction(prediction("p1", models.PredictionPending, base)))

	pnl := 1_234.5
	updated := s.UpdatePredictionOutcome(testWallet, "p1", models.PredictionCorrect, &pnl)
	require.NotNil(t, updated)
	assert.Equal(t, models.PredictionCorrect, updated.Outcome)
	require.NotNil(t, updated.RealizedPnl)
	assert.Equal(t, pnl, *updated.RealizedPnl)
	assert.NotNil(t, updated.ResolutionTimestamp)

	// Second resolution attempt is a no-op.
	assert.Nil(t, s.UpdatePredictionOutcome(testWallet, "p1", models.PredictionIncorrect, nil))
	// PENDING is not a valid target outcome.
	assert.Nil(t, s.UpdatePredictionOutcome(testWallet, "p1", models.PredictionPending, nil))
	// Unknown prediction.
	assert.Nil(t, s.UpdatePredictionOutcome(testWallet, "missing", models.PredictionCorrect, nil))
}

func TestResolveMarket(t *testing.T) {
	s := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	other := "0x00000000000000000000000000000000000000cc"

	yes := prediction("p1", models.PredictionPending, base)
	yes.MarketID = "mkt-final"
	require.NoError(t, s.AddPrediction(yes))

	no := prediction("p2", models.PredictionPending, base)
	no.WalletAddress = other
	no.MarketID = "mkt-final"
	no.PredictedOutcome = "NO"
	require.NoError(t, s.AddPrediction(no))

	require.Equal(t, []string{"mkt-final"}, s.PendingMarkets())

	resolvedAt := base.Add(48 * time.Hour)
	n := s.ResolveMarket("mkt-final", "YES", resolvedAt)
	assert.Equal(t, 2, n)
	assert.Empty(t, s.PendingMarkets())

	got := s.Predictions(testWallet)[0]
	assert.Equal(t, models.PredictionCorrect, got.Outcome)
	assert.Equal(t, "YES", got.ActualOutcome)
	require.NotNil(t, got.ResolutionTimestamp)
	assert.Equal(t, resolvedAt, *got.ResolutionTimestamp)

	assert.Equal(t, models.PredictionIncorrect, s.Predictions(other)[0].Outcome)

	// Nothing left to resolve.
	assert.Equal(t, 0, s.ResolveMarket("mkt-final", "YES", resolvedAt))
}

func TestAnalyzeCaching(t *testing.T) {
	s := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	seedResolved(t, s, 20, 10, base)

	first := s.Analyze(testWallet, AnalyzeOptions{})
	assert.False(t, first.FromCache)

	second := s.Analyze(testWallet, AnalyzeOptions{})
	assert.True(t, second.FromCache)

	refreshed := s.Analyze(testWallet, AnalyzeOptions{Refresh: true})
	assert.False(t, refreshed.FromCache)

	// Any write invalidates the wallet's cache.
	require.NoError(t, s.AddPrediction(prediction("extra", models.PredictionCorrect, base.Add(100*time.Hour))))
	third := s.Analyze(testWallet, AnalyzeOptions{})
	assert.False(t, third.FromCache)

	stats := s.Stats()
	assert.Equal(t, 1, stats.TrackedWallets)
	assert.Equal(t, 21, stats.TotalPredictions)
	assert.Greater(t, stats.CacheHitRate, 0.0)
}

func TestAnalyzeRecomputesAfterConcurrentMutation(t *testing.T) {
	s := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	seedResolved(t, s, 10, 10, base)

	// Pause the first compute (via the clock hook) so writes can land while
	// its snapshot is in flight.
	computing := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.now = func() time.Time {
		once.Do(func() {
			close(computing)
			<-release
		})
		return time.Now()
	}

	done := make(chan *models.AccuracyAnalysis, 1)
	go func() { done <- s.Analyze(testWallet, AnalyzeOptions{}) }()

	<-computing
	for i := 0; i < 10; i++ {
		p := prediction(fmt.Sprintf("x%03d", i), models.PredictionIncorrect, base.Add(time.Duration(100+i)*time.Hour))
		require.NoError(t, s.AddPrediction(p))
	}
	close(release)

	first := <-done
	assert.Equal(t, 10, first.ResolvedCount)

	// The paused result must not have been cached over the newer writes.
	a := s.Analyze(testWallet, AnalyzeOptions{})
	assert.False(t, a.FromCache)
	assert.Equal(t, 20, a.ResolvedCount)
	assert.InDelta(t, 50.0, a.Windows[models.WindowAllTime].RawAccuracy, 1e-9)
}

func TestInsiderDetection(t *testing.T) {
	cfg := DefaultConfig()
	s := New(cfg)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	var fired []models.AccuracyAnalysis
	s.OnPotentialInsider(func(a models.AccuracyAnalysis) { fired = append(fired, a) })

	// 30 predictions at 90% accuracy: a perfect high-conviction streak and a
	// perfect contrarian streak on top of the exceptional overall rate.
	for i := 0; i < 30; i++ {
		outcome := models.PredictionCorrect
		if i >= 27 {
			outcome = models.PredictionIncorrect
		}
		p := prediction(fmt.Sprintf("p%02d", i), outcome, base.Add(time.Duration(i)*6*time.Hour))
		if i < 10 {
			p.Conviction = models.ConvictionVeryHigh
		}
		if i >= 10 && i < 16 {
			p.EntryProbability = 0.3
		}
		require.NoError(t, s.AddPrediction(p))
	}

	a := s.Analyze(testWallet, AnalyzeOptions{})
	assert.Equal(t, models.TierExceptional, a.Tier)
	assert.Len(t, a.Anomalies, 3)
	assert.Equal(t, 85.0, a.SuspicionScore)
	assert.Equal(t, models.SuspicionCritical, a.SuspicionLevel)
	assert.True(t, a.IsPotentialInsider)
	require.Len(t, fired, 1)
}

func TestSmallSampleNeverCritical(t *testing.T) {
	s := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	// 12 perfect high-conviction predictions: enough to analyze, below the
	// high-confidence floor of 25.
	for i := 0; i < 12; i++ {
		p := prediction(fmt.Sprintf("p%02d", i), models.PredictionCorrect, base.Add(time.Duration(i)*time.Hour))
		p.Conviction = models.ConvictionVeryHigh
		require.NoError(t, s.AddPrediction(p))
	}

	a := s.Analyze(testWallet, AnalyzeOptions{})
	assert.NotEqual(t, models.SuspicionCritical, a.SuspicionLevel)
	assert.False(t, a.IsPotentialInsider)
}

func TestBatchAnalyze(t *testing.T) {
	s := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	strong := testWallet
	weak := "0x00000000000000000000000000000000000000cc"

	seedResolved(t, s, 20, 18, base)
	for i := 0; i < 20; i++ {
		outcome := models.PredictionIncorrect
		if i < 8 {
			outcome = models.PredictionCorrect
		}
		p := prediction(fmt.Sprintf("w%02d", i), outcome, base.Add(time.Duration(i)*time.Hour))
		p.WalletAddress = weak
		require.NoError(t, s.AddPrediction(p))
	}

	res := s.BatchAnalyze([]string{strong, weak, "bad-address"}, BatchAnalyzeOptions{CalculateRank: true})
	assert.Len(t, res.Analyses, 2)
	require.Contains(t, res.Failed, "bad-address")
	require.Equal(t, []string{strong, weak}, res.Ranked)
	assert.Equal(t, 1, res.Analyses[strong].Rank)
	assert.Equal(t, 2, res.Analyses[weak].Rank)
}

func TestPerWalletCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPredictionsPerWallet = 5
	s := New(cfg)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 8; i++ {
		require.NoError(t, s.AddPrediction(prediction(fmt.Sprintf("p%d", i), models.PredictionCorrect, base.Add(time.Duration(i)*time.Hour))))
	}
	preds := s.Predictions(testWallet)
	require.Len(t, preds, 5)
	// Oldest were evicted; the newest survives at the front.
	assert.Equal(t, "p7", preds[0].PredictionID)
	assert.Equal(t, "p3", preds[4].PredictionID)
}
