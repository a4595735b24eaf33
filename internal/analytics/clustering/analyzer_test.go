package clustering

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletWatch/internal/domain/models"
)

func wallet(i int) string {
	return fmt.Sprintf("0x%040x", i+1)
}

// coordinatedTrades builds 4 wallets placing 2 buys of $5000 each, 10 seconds
// apart, on one market.
func coordinatedTrades(base time.Time) []models.Trade {
	var out []models.Trade
	for i := 0; i < 8; i++ {
		out = append(out, models.Trade{
			ID:            fmt.Sprintf("t%d", i),
			MarketID:      "mkt",
			WalletAddress: wallet(i % 4),
			Side:          models.SideBuy,
			SizeUsd:       5_000,
			Timestamp:     base.Add(time.Duration(i) * 10 * time.Second),
		})
	}
	return out
}

func TestAnalyzeTradesDetectsDirectionalCluster(t *testing.T) {
	a := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	res := a.AnalyzeTrades(coordinatedTrades(base), AnalyzeOptions{})
	require.True(t, res.HasCluster, "reason: %s", res.Reason)

	c := res.Cluster
	require.NotNil(t, c)
	assert.Equal(t, "mkt", c.MarketID)
	assert.Equal(t, 4, c.WalletCount)
	assert.Equal(t, 8, c.TradeCount)
	assert.Equal(t, 40_000.0, c.TotalVolumeUsd)
	assert.Equal(t, 1.0, c.DirectionImbalance)
	assert.InDelta(t, 1.0, c.TimingRegularity, 1e-9)
	// 2 trades per wallet is below the split-order bar; pure one-sided flow
	// classifies as directional.
	assert.Equal(t, models.CoordinationDirectional, c.CoordinationType)
	assert.InDelta(t, 61.8, c.CoordinationScore, 0.5)
	assert.Equal(t, models.SeverityMedium, c.Severity)
	assert.Len(t, c.Wallets, 4)
}

func TestAnalyzeTradesGates(t *testing.T) {
	a := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	res := a.AnalyzeTrades(nil, AnalyzeOptions{})
	assert.False(t, res.HasCluster)
	assert.Equal(t, "no trades", res.Reason)

	// Two wallets only.
	var few []models.Trade
	for i := 0; i < 6; i++ {
		few = append(few, models.Trade{
			ID: fmt.Sprintf("t%d", i), MarketID: "mkt", WalletAddress: wallet(i % 2),
			Side: models.SideBuy, SizeUsd: 5_000, Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}
	res = a.AnalyzeTrades(few, AnalyzeOptions{})
	assert.False(t, res.HasCluster)
	assert.Contains(t, res.Reason, "wallets 2 below minimum")

	// Enough wallets and trades, not enough volume.
	small := coordinatedTrades(base)
	for i := range small {
		small[i].SizeUsd = 100
	}
	res = a.AnalyzeTrades(small, AnalyzeOptions{})
	assert.False(t, res.HasCluster)
	assert.Contains(t, res.Reason, "volume")
}

func TestCooldownSuppression(t *testing.T) {
	a := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	trades := coordinatedTrades(base)

	first := a.AnalyzeTrades(trades, AnalyzeOptions{})
	require.True(t, first.HasCluster)

	second := a.AnalyzeTrades(trades, AnalyzeOptions{})
	assert.False(t, second.HasCluster)
	assert.True(t, second.SuppressedByCooldown)

	bypassed := a.AnalyzeTrades(trades, AnalyzeOptions{BypassCooldown: true})
	assert.True(t, bypassed.HasCluster)

	a.ClearCooldowns()
	third := a.AnalyzeTrades(trades, AnalyzeOptions{})
	assert.True(t, third.HasCluster)
}

func TestOnClusterEmits(t *testing.T) {
	a := New(DefaultConfig())
	var got []models.VolumeCluster
	a.OnCluster(func(c models.VolumeCluster) { got = append(got, c) })

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	a.AnalyzeTrades(coordinatedTrades(base), AnalyzeOptions{})

	require.Len(t, got, 1)
	assert.Equal(t, "mkt", got[0].MarketID)
}

func TestRecentClustersBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRecentClusters = 2
	cfg.Cooldown = time.Nanosecond
	a := New(cfg)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		res := a.AnalyzeTrades(coordinatedTrades(base.Add(time.Duration(i)*time.Hour)), AnalyzeOptions{BypassCooldown: true})
		require.True(t, res.HasCluster)
	}
	assert.Len(t, a.RecentClusters(), 2)
}

func TestSlidingWindowSweep(t *testing.T) {
	a := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	// Two bursts 20 minutes apart; the sweep must cover both.
	trades := coordinatedTrades(base)
	trades = append(trades, coordinatedTrades(base.Add(20*time.Minute))...)

	results := a.AnalyzeTradesWithSlidingWindow(trades, AnalyzeOptions{BypassCooldown: true})
	require.NotEmpty(t, results)

	found := 0
	for _, r := range results {
		if r.HasCluster {
			found++
		}
	}
	assert.GreaterOrEqual(t, found, 2)
}

func TestAnalyzeMultipleMarkets(t *testing.T) {
	a := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	quiet := []models.Trade{{
		ID: "q1", MarketID: "quiet", WalletAddress: wallet(9),
		Side: models.SideBuy, SizeUsd: 50, Timestamp: base,
	}}
	byMarket := map[string][]models.Trade{
		"mkt":   coordinatedTrades(base),
		"quiet": quiet,
	}
	sum := a.AnalyzeMultipleMarkets(byMarket, AnalyzeOptions{})

	assert.Equal(t, 2, sum.MarketsAnalyzed)
	assert.Equal(t, 1, sum.ClustersFound)
	assert.Equal(t, 1, sum.BySeverity[models.SeverityMedium])
	assert.Equal(t, 1, sum.ByType[models.CoordinationDirectional])
	assert.Equal(t, 40_050.0, sum.TotalVolumeUsd)
	require.Contains(t, sum.Results, "quiet")
	assert.False(t, sum.Results["quiet"].HasCluster)
}

func TestSplitOrderClassification(t *testing.T) {
	a := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	// 3 wallets placing 4 trades each: average 4 trades per wallet.
	var trades []models.Trade
	for i := 0; i < 12; i++ {
		trades = append(trades, models.Trade{
			ID: fmt.Sprintf("s%d", i), MarketID: "mkt", WalletAddress: wallet(i % 3),
			Side: models.SideBuy, SizeUsd: 4_000, Timestamp: base.Add(time.Duration(i) * 5 * time.Second),
		})
	}
	res := a.AnalyzeTrades(trades, AnalyzeOptions{})
	require.True(t, res.HasCluster, "reason: %s", res.Reason)
	assert.Equal(t, models.CoordinationSplitOrders, res.Cluster.CoordinationType)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.True(t, cfg.Validate().IsValid)

	cfg.ScoreWeights.WalletCount = 0.9
	res := cfg.Validate()
	assert.False(t, res.IsValid)
	assert.NotEmpty(t, res.Errors)

	cfg = DefaultConfig()
	cfg.SeverityThresholds = SeverityThresholds{Medium: 80, High: 70, Critical: 90}
	assert.False(t, cfg.Validate().IsValid)
}
