package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletWatch/internal/domain/models"
)

const testWallet = "0x00000000000000000000000000000000000000ff"

func severityOnly() Config {
	cfg := DefaultConfig()
	cfg.Weights = FactorWeights{models.FactorSeverity: 1}
	return cfg
}

func compositeResult(wallet string, score float64) *models.CompositeScoreResult {
	return &models.CompositeScoreResult{
		WalletAddress:  wallet,
		Score:          score,
		SuspicionLevel: models.SuspicionNone,
		AnalyzedAt:     time.Now(),
	}
}

func TestRankAlertNilResult(t *testing.T) {
	r := New(DefaultConfig())
	assert.Nil(t, r.RankAlert(nil, nil, RankOptions{BypassCache: true}))
}

func TestFactorWeightingDefaults(t *testing.T) {
	r := New(DefaultConfig())

	ranked := r.RankAlert(compositeResult(testWallet, 80), nil, RankOptions{BypassCache: true})
	require.NotNil(t, ranked)

	// Only the severity factor carries signal: 0.35 * 80.
	assert.InDelta(t, 28.0, ranked.PriorityScore, 1e-9)
	assert.InDelta(t, 1.0, ranked.TimeDecayMultiplier, 1e-3)
	assert.Equal(t, models.PriorityLow, ranked.PriorityLevel)
	assert.False(t, ranked.IsUrgent)
	assert.False(t, ranked.IsHighlighted)
	require.Len(t, ranked.FactorContributions, len(models.AllPriorityFactors))

	var weightSum float64
	for _, fc := range ranked.FactorContributions {
		weightSum += fc.Weight
	}
	assert.InDelta(t, 1.0, weightSum, 1e-9)
}

func TestSeverityUsesCalibratedScore(t *testing.T) {
	r := New(severityOnly())

	res := compositeResult(testWallet, 10)
	calibrated := 80.0
	res.CalibratedScore = &calibrated

	ranked := r.RankAlert(res, nil, RankOptions{BypassCache: true})
	assert.InDelta(t, 80.0, ranked.PriorityScore, 1e-9)
	assert.Equal(t, models.PriorityCritical, ranked.PriorityLevel)
}

func TestUrgentEvent(t *testing.T) {
	r := New(severityOnly())
	var urgent []models.PriorityRanking
	r.OnUrgent(func(p models.PriorityRanking) { urgent = append(urgent, p) })

	ranked := r.RankAlert(compositeResult(testWallet, 90), nil, RankOptions{BypassCache: true})
	assert.True(t, ranked.IsUrgent)
	assert.True(t, ranked.IsHighlighted)
	require.Len(t, urgent, 1)
	assert.Equal(t, testWallet, urgent[0].WalletAddress)
}

func TestTimeDecay(t *testing.T) {
	r := New(severityOnly())

	res := compositeResult(testWallet, 100)
	res.AnalyzedAt = time.Now().Add(-12 * time.Hour)
	ranked := r.RankAlert(res, nil, RankOptions{BypassCache: true})
	// One half-life: midway between 1.0 and the 0.5 floor.
	assert.InDelta(t, 0.75, ranked.TimeDecayMultiplier, 1e-3)
	assert.InDelta(t, 75.0, ranked.AdjustedScore, 0.1)
	assert.Equal(t, models.PriorityHigh, ranked.PriorityLevel)

	res = compositeResult(testWallet, 100)
	res.AnalyzedAt = time.Now().Add(-10 * 24 * time.Hour)
	ranked = r.RankAlert(res, nil, RankOptions{BypassCache: true})
	assert.InDelta(t, 0.5, ranked.TimeDecayMultiplier, 1e-3)
}

func TestImpactFactorSaturation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = FactorWeights{models.FactorImpact: 1}
	r := New(cfg)

	pnl := -50_000.0
	res := compositeResult(testWallet, 0)
	res.EstimatedPnlUsd = &pnl
	ranked := r.RankAlert(res, nil, RankOptions{BypassCache: true})
	assert.InDelta(t, 50.0, ranked.PriorityScore, 1e-9)

	big := 2_000_000.0
	res = compositeResult(testWallet, 0)
	res.EstimatedPnlUsd = &big
	ranked = r.RankAlert(res, nil, RankOptions{BypassCache: true})
	assert.InDelta(t, 100.0, ranked.PriorityScore, 1e-9)
}

func TestSybilForcesNetworkFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = FactorWeights{models.FactorNetworkRisk: 1}
	r := New(cfg)

	res := compositeResult(testWallet, 0)
	res.Cluster = &models.VolumeCluster{CoordinationScore: 55}
	res.SybilCluster = true

	ranked := r.RankAlert(res, nil, RankOptions{BypassCache: true})
	assert.InDelta(t, 80.0, ranked.PriorityScore, 1e-9)
	assert.Contains(t, ranked.UrgencyReasons, models.UrgencySybilCluster)
	assert.True(t, ranked.IsUrgent)
}

func TestFalsePositiveDiscount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = FactorWeights{models.FactorPatternMatch: 1}
	r := New(cfg)

	res := compositeResult(testWallet, 0)
	res.Pattern = &models.Classification{PrimaryPattern: models.PatternBot, RiskScore: 100}

	ranked := r.RankAlert(res, nil, RankOptions{BypassCache: true})
	assert.InDelta(t, 100.0, ranked.PriorityScore, 1e-9)

	filter := &models.FilterResult{IsLikelyFalsePositive: true, Confidence: 0.9}
	ranked = r.RankAlert(res, filter, RankOptions{BypassCache: true})
	assert.InDelta(t, 40.0, ranked.PriorityScore, 1e-9)
	assert.Equal(t, models.PriorityMedium, ranked.PriorityLevel)
}

func TestScoreEscalation(t *testing.T) {
	r := New(DefaultConfig())

	first := r.RankAlert(compositeResult(testWallet, 35), nil, RankOptions{BypassCache: true})
	assert.NotContains(t, first.UrgencyReasons, models.UrgencyScoreEscalation)

	second := r.RankAlert(compositeResult(testWallet, 75), nil, RankOptions{BypassCache: true})
	assert.Contains(t, second.UrgencyReasons, models.UrgencyScoreEscalation)
	assert.True(t, second.IsUrgent)

	hist := r.History(testWallet)
	require.NotNil(t, hist)
	assert.Equal(t, 2, hist.TimesRanked)
	assert.Equal(t, []float64{35, 75}, hist.PreviousScores)
}

func TestEscalationComparesLowestPriorScore(t *testing.T) {
	r := New(DefaultConfig())

	// A slow climb: no single step jumps by the delta, but the total does.
	r.RankAlert(compositeResult(testWallet, 30), nil, RankOptions{BypassCache: true})
	mid := r.RankAlert(compositeResult(testWallet, 45), nil, RankOptions{BypassCache: true})
	assert.NotContains(t, mid.UrgencyReasons, models.UrgencyScoreEscalation)

	last := r.RankAlert(compositeResult(testWallet, 58), nil, RankOptions{BypassCache: true})
	assert.Contains(t, last.UrgencyReasons, models.UrgencyScoreEscalation)
}

func TestMultiSignalConvergence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = FactorWeights{models.FactorConvergence: 1}
	r := New(cfg)

	res := compositeResult(testWallet, 0)
	res.Contributions = []models.SignalContribution{
		{Source: models.SignalTradingPattern, RawScore: 70},
		{Source: models.SignalHistoricalAccuracy, RawScore: 65},
		{Source: models.SignalVolumeClustering, RawScore: 60},
		{Source: models.SignalWhaleActivity, RawScore: 10},
		{Source: models.SignalTimingAnomaly, RawScore: 5},
	}

	ranked := r.RankAlert(res, nil, RankOptions{BypassCache: true})
	// 3 of 5 signals clear the floor.
	assert.InDelta(t, 60.0, ranked.PriorityScore, 1e-9)
	assert.Contains(t, ranked.UrgencyReasons, models.UrgencyMultiSignal)
	assert.True(t, ranked.IsUrgent)
}

func TestUrgencyOverridesLowScore(t *testing.T) {
	r := New(DefaultConfig())

	res := compositeResult(testWallet, 5)
	res.SuspicionLevel = models.SuspicionCritical
	ranked := r.RankAlert(res, nil, RankOptions{BypassCache: true})
	assert.Equal(t, models.PriorityLow, ranked.PriorityLevel)
	assert.Contains(t, ranked.UrgencyReasons, models.UrgencyCriticalScore)
	assert.True(t, ranked.IsUrgent)

	res = compositeResult(testWallet, 5)
	res.InsiderIndicator = true
	ranked = r.RankAlert(res, nil, RankOptions{BypassCache: true})
	assert.Contains(t, ranked.UrgencyReasons, models.UrgencyInsiderIndicator)

	res = compositeResult(testWallet, 5)
	res.Cluster = &models.VolumeCluster{CoordinationScore: 40, Severity: models.SeverityHigh}
	ranked = r.RankAlert(res, nil, RankOptions{BypassCache: true})
	assert.Contains(t, ranked.UrgencyReasons, models.UrgencyNetworkDetection)
}

func TestRankingCache(t *testing.T) {
	r := New(DefaultConfig())
	res := compositeResult(testWallet, 50)

	first := r.RankAlert(res, nil, RankOptions{})
	assert.False(t, first.FromCache)

	// Zero-value options serve from cache.
	second := r.RankAlert(res, nil, RankOptions{})
	assert.True(t, second.FromCache)
	assert.Equal(t, first.PriorityScore, second.PriorityScore)

	// A cache hit must not grow the escalation history.
	assert.Equal(t, 1, r.History(testWallet).TimesRanked)

	// BypassCache recomputes even with a live entry.
	bypassed := r.RankAlert(res, nil, RankOptions{BypassCache: true})
	assert.False(t, bypassed.FromCache)
	assert.Equal(t, 2, r.History(testWallet).TimesRanked)

	r.ClearCache()
	third := r.RankAlert(res, nil, RankOptions{})
	assert.False(t, third.FromCache)
	// History survives a cache clear.
	assert.Equal(t, 3, r.History(testWallet).TimesRanked)

	r.Reset()
	assert.Nil(t, r.History(testWallet))
}

func TestCacheEviction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCachedRankings = 2
	r := New(cfg)

	w1 := "0x0000000000000000000000000000000000000001"
	w2 := "0x0000000000000000000000000000000000000002"
	w3 := "0x0000000000000000000000000000000000000003"
	r.RankAlert(compositeResult(w1, 50), nil, RankOptions{BypassCache: true})
	r.RankAlert(compositeResult(w2, 50), nil, RankOptions{BypassCache: true})
	r.RankAlert(compositeResult(w3, 50), nil, RankOptions{BypassCache: true})

	assert.False(t, r.RankAlert(compositeResult(w1, 50), nil, RankOptions{}).FromCache)
	assert.True(t, r.RankAlert(compositeResult(w3, 50), nil, RankOptions{}).FromCache)
}

func TestRankAlertsBatch(t *testing.T) {
	r := New(severityOnly())

	w1 := "0x0000000000000000000000000000000000000001"
	w2 := "0x0000000000000000000000000000000000000002"
	w3 := "0x0000000000000000000000000000000000000003"
	results := []*models.CompositeScoreResult{
		compositeResult(w2, 90),
		nil,
		compositeResult(w3, 50),
		compositeResult(w1, 90),
	}

	batch := r.RankAlerts(results, nil, RankOptions{BypassCache: true})
	require.Len(t, batch.Alerts, 3)

	// Ties on score break by wallet address.
	assert.Equal(t, w1, batch.Alerts[0].WalletAddress)
	assert.Equal(t, w2, batch.Alerts[1].WalletAddress)
	assert.Equal(t, w3, batch.Alerts[2].WalletAddress)
	for i, a := range batch.Alerts {
		assert.Equal(t, i+1, a.Rank)
	}

	assert.Equal(t, 2, batch.ByLevel[models.PriorityCritical])
	assert.Equal(t, 1, batch.ByLevel[models.PriorityMedium])
	assert.Equal(t, 2, batch.UrgentCount)
	assert.Equal(t, 2, batch.HighlightedCount)
}
