package pattern

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletWatch/internal/domain/models"
)

const testWallet = "0x00000000000000000000000000000000000000aa"

func boolPtr(b bool) *bool { return &b }

// botTrades produces machine-regular trades: identical sizes, identical gaps,
// many per day.
func botTrades(n int, base time.Time) []models.Trade {
	out := make([]models.Trade, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Trade{
			ID:            fmt.Sprintf("bot-%d", i),
			MarketID:      fmt.Sprintf("mkt-%d", i%4),
			WalletAddress: testWallet,
			Side:          models.SideBuy,
			SizeUsd:       2_500,
			Timestamp:     base.Add(time.Duration(i) * 30 * time.Minute),
		})
	}
	return out
}

// insiderTrades produces concentrated, pre-event, winning trades.
func insiderTrades(n int, base time.Time) []models.Trade {
	out := make([]models.Trade, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Trade{
			ID:            fmt.Sprintf("ins-%d", i),
			MarketID:      "mkt-elections",
			WalletAddress: testWallet,
			Side:          models.SideBuy,
			SizeUsd:       float64(1_000 + i*137),
			Timestamp:     base.Add(time.Duration(i*7) * time.Hour),
			PreEvent:      true,
			Won:           boolPtr(true),
		})
	}
	return out
}

func TestClassifyBelowMinTrades(t *testing.T) {
	c := New(DefaultConfig())
	assert.Nil(t, c.Classify(testWallet, botTrades(5, time.Now())))
}

func TestClassifyDropsInvalidTrades(t *testing.T) {
	c := New(DefaultConfig())
	trades := botTrades(12, time.Now())
	trades[0].SizeUsd = 0
	trades[1].Timestamp = time.Time{}
	trades[2].SizeUsd = -1

	// 9 valid trades left, below the floor of 10.
	assert.Nil(t, c.Classify(testWallet, trades))
}

func TestClassifyBotPattern(t *testing.T) {
	c := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	cls := c.Classify(testWallet, botTrades(40, base))
	require.NotNil(t, cls)
	assert.Equal(t, models.PatternBot, cls.PrimaryPattern)
	assert.InDelta(t, 1.0, cls.Features.SizeConsistency, 1e-9)
	assert.InDelta(t, 1.0, cls.Features.TimingConsistency, 1e-9)
	assert.Contains(t, cls.RiskFlags, models.FlagBotPrecision)
	assert.Equal(t, models.ConfidenceVeryHigh, c.confidence(150))
	assert.Equal(t, models.ConfidenceHigh, cls.Confidence)
}

func TestClassifyInsiderPattern(t *testing.T) {
	c := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	var fired []models.Classification
	c.OnPotentialInsider(func(cls models.Classification) { fired = append(fired, cls) })

	cls := c.Classify(testWallet, insiderTrades(20, base))
	require.NotNil(t, cls)
	assert.Equal(t, models.PatternPotentialInsider, cls.PrimaryPattern)
	assert.Equal(t, 1.0, cls.Features.WinRate)
	assert.Equal(t, 1.0, cls.Features.PreEventRatio)
	assert.Equal(t, 1.0, cls.Features.MarketConcentration)
	assert.Contains(t, cls.RiskFlags, models.FlagHighWinRate)
	assert.Contains(t, cls.RiskFlags, models.FlagPreNewsTrading)
	assert.Len(t, fired, 1)
}

func TestRiskScoreAggregation(t *testing.T) {
	c := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	cls := c.Classify(testWallet, insiderTrades(20, base))
	require.NotNil(t, cls)
	// high win rate (25) + pre-news (25) at minimum.
	assert.GreaterOrEqual(t, cls.RiskScore, 50.0)
	assert.LessOrEqual(t, cls.RiskScore, 100.0)
}

func TestCoordinatedFlagFromUpstream(t *testing.T) {
	c := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	trades := botTrades(12, base)
	trades[3].Flags = []string{"coordinated"}

	cls := c.Classify(testWallet, trades)
	require.NotNil(t, cls)
	assert.Contains(t, cls.RiskFlags, models.FlagCoordinatedTrading)
}

func TestCachedClassification(t *testing.T) {
	c := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	assert.Nil(t, c.Cached(testWallet))

	c.Classify(testWallet, botTrades(12, base))
	cached := c.Cached(testWallet)
	require.NotNil(t, cached)
	assert.True(t, cached.FromCache)

	// Address lookup is case-insensitive.
	upper := "0x00000000000000000000000000000000000000AA"
	assert.NotNil(t, c.Cached(upper))

	c.ClearCache()
	assert.Nil(t, c.Cached(testWallet))
	assert.Equal(t, 0, c.CachedCount())
}

func TestUpdateClassificationMergesAndDedups(t *testing.T) {
	c := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	initial := botTrades(12, base)

	cls := c.Classify(testWallet, initial)
	require.NotNil(t, cls)
	require.Equal(t, 12, cls.Features.TradeCount)

	// Re-send the same trades plus two new ones: duplicates collapse.
	extra := botTrades(14, base)
	updated := c.UpdateClassification(testWallet, extra)
	require.NotNil(t, updated)
	assert.Equal(t, 14, updated.Features.TradeCount)
}

func TestCacheEvictionBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCachedClassifications = 2
	c := New(cfg)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		w := fmt.Sprintf("0x%040x", i+1)
		trades := botTrades(12, base)
		for j := range trades {
			trades[j].WalletAddress = w
		}
		require.NotNil(t, c.Classify(w, trades))
	}
	assert.Equal(t, 2, c.CachedCount())
}

func TestConfidenceCutpoints(t *testing.T) {
	c := New(DefaultConfig())
	assert.Equal(t, models.ConfidenceVeryLow, c.confidence(4))
	assert.Equal(t, models.ConfidenceLow, c.confidence(5))
	assert.Equal(t, models.ConfidenceMedium, c.confidence(15))
	assert.Equal(t, models.ConfidenceHigh, c.confidence(30))
	assert.Equal(t, models.ConfidenceVeryHigh, c.confidence(100))
}
