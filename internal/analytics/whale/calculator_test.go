package whale

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WalletWatch/internal/domain/models"
)

func TestCalculateDeepMarket(t *testing.T) {
	c := New(DefaultConfig())
	th := c.Calculate(models.MarketSnapshot{
		MarketID:     "mkt-deep",
		LiquidityUsd: 1_000_000,
		Volume24hUsd: 500_000,
	})

	// base = 0.6*1,000,000 + 0.4*500,000 = 800,000
	assert.InDelta(t, 4_000, th.NotableUsd, 1e-9)
	assert.InDelta(t, 16_000, th.LargeUsd, 1e-9)
	assert.InDelta(t, 40_000, th.WhaleUsd, 1e-9)
	assert.InDelta(t, 120_000, th.MegaWhaleUsd, 1e-9)
}

func TestCalculateThinMarketUsesFloors(t *testing.T) {
	c := New(DefaultConfig())
	th := c.Calculate(models.MarketSnapshot{
		MarketID:     "mkt-thin",
		LiquidityUsd: 2_000,
		Volume24hUsd: 1_000,
	})

	assert.Equal(t, 1_000.0, th.NotableUsd)
	assert.Equal(t, 5_000.0, th.LargeUsd)
	assert.Equal(t, 25_000.0, th.WhaleUsd)
	assert.Equal(t, 100_000.0, th.MegaWhaleUsd)
}

func TestThresholdsStayOrdered(t *testing.T) {
	// Fractions chosen so raw thresholds collapse below the floors.
	cfg := DefaultConfig()
	cfg.LargeFloorUsd = 900
	cfg.WhaleFloorUsd = 900
	cfg.MegaWhaleFloorUsd = 900
	c := New(cfg)

	th := c.Calculate(models.MarketSnapshot{MarketID: "mkt", LiquidityUsd: 100})
	assert.Less(t, th.NotableUsd, th.LargeUsd)
	assert.Less(t, th.LargeUsd, th.WhaleUsd)
	assert.Less(t, th.WhaleUsd, th.MegaWhaleUsd)
}

func TestClassifyTrade(t *testing.T) {
	c := New(DefaultConfig())

	assert.Equal(t, models.TierNone, c.ClassifyTrade("unknown", 1_000_000))

	c.Calculate(models.MarketSnapshot{
		MarketID:     "mkt",
		LiquidityUsd: 1_000_000,
		Volume24hUsd: 500_000,
	})

	cases := []struct {
		size float64
		want models.WhaleTier
	}{
		{3_999, models.TierNone},
		{4_000, models.TierNotable},
		{16_000, models.TierLarge},
		{39_999, models.TierLarge},
		{40_000, models.TierWhale},
		{120_000, models.TierMegaWhale},
		{5_000_000, models.TierMegaWhale},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.ClassifyTrade("mkt", tc.size), "size %.0f", tc.size)
	}
}

func TestCalculateReturnsCached(t *testing.T) {
	c := New(DefaultConfig())
	first := c.Calculate(models.MarketSnapshot{MarketID: "mkt", LiquidityUsd: 1_000_000})
	// A changed snapshot inside the TTL does not recompute.
	second := c.Calculate(models.MarketSnapshot{MarketID: "mkt", LiquidityUsd: 5})
	assert.Equal(t, first.WhaleUsd, second.WhaleUsd)

	c.Invalidate("mkt")
	require.Nil(t, c.Thresholds("mkt"))
	third := c.Calculate(models.MarketSnapshot{MarketID: "mkt", LiquidityUsd: 5})
	assert.NotEqual(t, first.WhaleUsd, third.WhaleUsd)
}

func TestCacheEviction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCachedMarkets = 2
	c := New(cfg)

	for i := 0; i < 3; i++ {
		c.Calculate(models.MarketSnapshot{
			MarketID:     fmt.Sprintf("mkt-%d", i),
			LiquidityUsd: 1_000_000,
		})
	}
	assert.Equal(t, 2, c.CachedMarkets())
	assert.NotNil(t, c.Thresholds("mkt-2"))
}
