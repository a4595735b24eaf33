package weights

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletWatch/internal/domain/models"
)

func TestDefaultsAreBalanced(t *testing.T) {
	c := New(DefaultConfig())

	assert.Equal(t, models.PresetBalanced, c.Preset())
	assert.Equal(t, 70.0, c.FlagThreshold())
	assert.Equal(t, 85.0, c.InsiderThreshold())
	assert.Equal(t, models.ScoreThresholds{Low: 25, Medium: 50, High: 75, Critical: 90}, c.Thresholds())
	require.True(t, c.Validate().IsValid)

	effective, vr := c.EffectiveSignalWeights()
	require.True(t, vr.IsValid)
	var sum float64
	for _, w := range effective {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestConservativePresetEqualWeights(t *testing.T) {
	c := New(DefaultConfig())
	require.True(t, c.ApplyPreset(models.PresetConservative).IsValid)
	assert.Equal(t, models.PresetConservative, c.Preset())

	effective, vr := c.EffectiveSignalWeights()
	require.True(t, vr.IsValid)
	for src, w := range effective {
		assert.InDelta(t, 0.20, w, 1e-9, "signal %s", src)
	}

	impact := c.AnalyzeWeightImpact()
	assert.Equal(t, models.BalanceBalanced, impact.Balance)
	assert.InDelta(t, 1.0, impact.MaxMin, 1e-9)
}

func TestApplyUnknownPreset(t *testing.T) {
	c := New(DefaultConfig())
	assert.False(t, c.ApplyPreset(models.WeightPreset("CUSTOM")).IsValid)
	assert.False(t, c.ApplyPreset(models.WeightPreset("bogus")).IsValid)
	assert.Equal(t, models.PresetBalanced, c.Preset())
}

func TestSetSignalWeightValidation(t *testing.T) {
	c := New(DefaultConfig())

	assert.False(t, c.SetSignalWeight(models.SignalSource("bogus"), 0.5).IsValid)
	assert.False(t, c.SetSignalWeight(models.SignalTradingPattern, -0.1).IsValid)
	assert.False(t, c.SetSignalWeight(models.SignalTradingPattern, 1.1).IsValid)
	// Rejections never mutate.
	assert.Equal(t, models.PresetBalanced, c.Preset())

	res := c.SetSignalWeight(models.SignalTradingPattern, 0.5)
	assert.True(t, res.IsValid)
	assert.Equal(t, models.PresetCustom, c.Preset())
}

func TestNormalizationInvariant(t *testing.T) {
	c := New(DefaultConfig())
	c.SetSignalWeight(models.SignalTradingPattern, 0.9)
	c.SetSignalWeight(models.SignalHistoricalAccuracy, 0.3)
	c.SetSignalWeight(models.SignalVolumeClustering, 0.3)

	effective, vr := c.EffectiveSignalWeights()
	require.True(t, vr.IsValid)
	var sum float64
	for _, w := range effective {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	// 0.9 of a raw total of 1.8.
	assert.InDelta(t, 0.5, effective[models.SignalTradingPattern], 1e-9)
}

func TestDisableAllSignals(t *testing.T) {
	c := New(DefaultConfig())
	for _, src := range models.AllSignalSources {
		c.SetSignalEnabled(src, false)
	}

	effective, vr := c.EffectiveSignalWeights()
	assert.False(t, vr.IsValid)
	assert.Empty(t, effective)
	assert.False(t, c.Validate().IsValid)
}

func TestDisabledSignalExcludedFromEffective(t *testing.T) {
	c := New(DefaultConfig())
	require.True(t, c.SetSignalEnabled(models.SignalWhaleActivity, false).IsValid)

	effective, vr := c.EffectiveSignalWeights()
	require.True(t, vr.IsValid)
	_, present := effective[models.SignalWhaleActivity]
	assert.False(t, present)

	var sum float64
	for _, w := range effective {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	impact := c.AnalyzeWeightImpact()
	assert.Contains(t, impact.Disabled, models.SignalWhaleActivity)
}

func TestStrictValidationMode(t *testing.T) {
	c := New(DefaultConfig())
	require.True(t, c.SetValidationMode(models.ValidationStrict).IsValid)
	// Balanced preset already sums to 1.
	assert.True(t, c.Validate().IsValid)

	c.SetSignalWeight(models.SignalTradingPattern, 0.5)
	res := c.Validate()
	assert.False(t, res.IsValid)
	assert.NotEmpty(t, res.Errors)

	require.True(t, c.SetValidationMode(models.ValidationNone).IsValid)
	assert.True(t, c.Validate().IsValid)

	assert.False(t, c.SetValidationMode(models.ValidationMode("bogus")).IsValid)
}

func TestSetThresholds(t *testing.T) {
	c := New(DefaultConfig())

	assert.False(t, c.SetThresholds(models.ScoreThresholds{Low: 50, Medium: 40, High: 75, Critical: 90}).IsValid)
	assert.False(t, c.SetThresholds(models.ScoreThresholds{Low: -1, Medium: 40, High: 75, Critical: 90}).IsValid)
	assert.False(t, c.SetThresholds(models.ScoreThresholds{Low: 10, Medium: 40, High: 75, Critical: 101}).IsValid)

	require.True(t, c.SetThresholds(models.ScoreThresholds{Low: 20, Medium: 40, High: 60, Critical: 80}).IsValid)
	assert.Equal(t, models.SuspicionCritical, c.SuspicionLevelFor(80))
	assert.Equal(t, models.SuspicionHigh, c.SuspicionLevelFor(79))
	assert.Equal(t, models.SuspicionLow, c.SuspicionLevelFor(20))
	assert.Equal(t, models.SuspicionNone, c.SuspicionLevelFor(19))
}

func TestAnalyzeWeightImpactSkew(t *testing.T) {
	c := New(DefaultConfig())
	c.SetSignalWeight(models.SignalTradingPattern, 1.0)
	c.SetSignalWeight(models.SignalHistoricalAccuracy, 0.1)
	c.SetSignalWeight(models.SignalVolumeClustering, 0.1)
	c.SetSignalWeight(models.SignalWhaleActivity, 0.1)
	c.SetSignalWeight(models.SignalTimingAnomaly, 0.1)

	impact := c.AnalyzeWeightImpact()
	require.NotEmpty(t, impact.Ranked)
	assert.Equal(t, models.SignalTradingPattern, impact.Ranked[0].Source)
	assert.InDelta(t, 10.0, impact.MaxMin, 1e-9)
	assert.Equal(t, models.BalanceExtreme, impact.Balance)
}

func TestHistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHistoryEntries = 3
	c := New(cfg)

	for i := 0; i < 5; i++ {
		c.SetFlagThreshold(float64(60 + i))
	}
	hist := c.History()
	require.Len(t, hist, 3)
	assert.Equal(t, 64.0, hist[2].Current)
	assert.Equal(t, "flagThreshold", hist[2].Field)
}

func TestOnChange(t *testing.T) {
	c := New(DefaultConfig())
	var changes []models.WeightChange
	c.OnChange(func(ch models.WeightChange) { changes = append(changes, ch) })

	c.SetSignalWeight(models.SignalTradingPattern, 0.4)
	c.Reset()

	require.Len(t, changes, 2)
	assert.Equal(t, "signal:"+string(models.SignalTradingPattern), changes[0].Field)
	assert.Equal(t, "reset", changes[1].Source)
	assert.Equal(t, models.PresetBalanced, c.Preset())
}

func TestExportImportRoundTrip(t *testing.T) {
	c := New(DefaultConfig())
	c.ApplyPreset(models.PresetAggressive)
	c.SetFlagThreshold(65)
	c.SetValidationMode(models.ValidationStrict)

	snap := c.Export()
	assert.Equal(t, ConfigVersion, snap.Version)

	restored := New(DefaultConfig())
	require.True(t, restored.Import(snap).IsValid)
	assert.Equal(t, 65.0, restored.FlagThreshold())
	assert.Equal(t, models.ValidationStrict, restored.Export().ValidationMode)

	eff1, _ := c.EffectiveSignalWeights()
	eff2, _ := restored.EffectiveSignalWeights()
	for src, w := range eff1 {
		assert.InDelta(t, w, eff2[src], 1e-9)
	}
}

func TestImportRejectsBadSnapshot(t *testing.T) {
	c := New(DefaultConfig())

	bad := models.WeightConfigExport{
		SignalWeights: map[models.SignalSource]models.WeightSetting{
			models.SignalSource("bogus"): {Weight: 0.5, Enabled: true},
		},
	}
	res := c.Import(bad)
	assert.False(t, res.IsValid)

	bad = models.WeightConfigExport{
		SignalWeights: map[models.SignalSource]models.WeightSetting{
			models.SignalTradingPattern: {Weight: 1.5, Enabled: true},
		},
	}
	assert.False(t, c.Import(bad).IsValid)

	bad = models.WeightConfigExport{
		Thresholds: models.ScoreThresholds{Low: 90, Medium: 50, High: 75, Critical: 95},
	}
	assert.False(t, c.Import(bad).IsValid)

	// Rejections never mutate.
	assert.Equal(t, models.PresetBalanced, c.Preset())
	assert.Equal(t, 70.0, c.FlagThreshold())
}

func TestSignalMetadata(t *testing.T) {
	for _, src := range models.AllSignalSources {
		assert.NotEmpty(t, SignalDescription(src))
		assert.True(t, SignalCategoryKnown(SignalCategoryOf(src)))
	}
	assert.False(t, SignalCategoryKnown(models.SignalCategory("bogus")))
}

func TestEffectiveCategoryWeights(t *testing.T) {
	c := New(DefaultConfig())
	effective, vr := c.EffectiveCategoryWeights()
	require.True(t, vr.IsValid)
	var sum float64
	for _, w := range effective {
		sum += w
	}
	assert.False(t, math.IsNaN(sum))
	assert.InDelta(t, 1.0, sum, 1e-9)
}
