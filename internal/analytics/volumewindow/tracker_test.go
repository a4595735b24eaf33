package volumewindow

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

func trade(market, wallet string, side models.TradeSide, size float64, ts time.Time) *models.Trade {
	return &models.Trade{
		ID:            fmt.Sprintf("%s-%s-%d", market, wallet, ts.UnixNano()),
		MarketID:      market,
		WalletAddress: wallet,
		Side:          side,
		SizeUsd:       size,
		Price:         0.5,
		Timestamp:     ts,
	}
}

func TestRecordDropsInvalidTrades(t *testing.T) {
	tr := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tr.Record(nil)
	tr.Record(trade("mkt", wallet(0), models.SideBuy, 0, base))
	tr.Record(trade("mkt", wallet(0), models.SideBuy, -10, base))
	tr.Record(trade("mkt", wallet(0), models.SideBuy, 100, time.Time{}))
	tr.Record(trade("", wallet(0), models.SideBuy, 100, base))

	assert.Equal(t, 0, tr.MarketCount())
}

func TestStatsWindowed(t *testing.T) {
	tr := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	// Two trades outside the 1m window, four inside.
	tr.Record(trade("mkt", wallet(0), models.SideBuy, 999, base.Add(-5*time.Minute)))
	tr.Record(trade("mkt", wallet(1), models.SideSell, 999, base.Add(-3*time.Minute)))
	tr.Record(trade("mkt", wallet(0), models.SideBuy, 100, base.Add(-45*time.Second)))
	tr.Record(trade("mkt", wallet(1), models.SideBuy, 200, base.Add(-30*time.Second)))
	tr.Record(trade("mkt", wallet(2), models.SideSell, 300, base.Add(-15*time.Second)))
	tr.Record(trade("mkt", wallet(0), models.SideBuy, 400, base))

	s := tr.Stats("mkt", time.Minute)
	require.NotNil(t, s)
	assert.Equal(t, 4, s.TradeCount)
	assert.Equal(t, 1000.0, s.TotalVolume)
	assert.Equal(t, 700.0, s.BuyVolume)
	assert.Equal(t, 300.0, s.SellVolume)
	assert.Equal(t, 250.0, s.MeanTradeSize)
	assert.Equal(t, 400.0, s.MaxTradeSize)
	assert.Equal(t, 3, s.UniqueWallets)
	assert.Equal(t, base, s.To)
	assert.Equal(t, base.Add(-time.Minute), s.From)
}

func TestStatsUnknownMarket(t *testing.T) {
	tr := New(DefaultConfig())
	assert.Nil(t, tr.Stats("nope", time.Minute))
}

func TestZScore(t *testing.T) {
	tr := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, size := range []float64{100, 100, 100, 300} {
		tr.Record(trade("mkt", wallet(i), models.SideBuy, size, base.Add(time.Duration(i)*time.Second)))
	}

	// mean 150, population stddev sqrt(7500).
	z := tr.ZScore("mkt", 300, time.Minute)
	assert.InDelta(t, 1.7320, z, 1e-3)
	assert.InDelta(t, 0, tr.ZScore("mkt", 150, time.Minute), 1e-9)
	assert.Equal(t, 0.0, tr.ZScore("unknown", 300, time.Minute))
}

func TestZScoreZeroVariance(t *testing.T) {
	tr := New(DefaultConfig())
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		tr.Record(trade("mkt", wallet(i), models.SideBuy, 500, base.Add(time.Duration(i)*time.Second)))
	}
	assert.Equal(t, 0.0, tr.ZScore("mkt", 10_000, time.Minute))
}

func TestMultiStats(t *testing.T) {
	tr := New(Config{Windows: []time.Duration{time.Minute, 5 * time.Minute}})
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tr.Record(trade("mkt", wallet(0), models.SideBuy, 100, base.Add(-3*time.Minute)))
	tr.Record(trade("mkt", wallet(1), models.SideBuy, 200, base))

	out := tr.MultiStats("mkt")
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].TradeCount)
	assert.Equal(t, 2, out[1].TradeCount)
	assert.Nil(t, tr.MultiStats("unknown"))
}

func TestRingCapKeepsNewest(t *testing.T) {
	tr := New(Config{MaxTradesPerMarket: 4})
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		tr.Record(trade("mkt", wallet(0), models.SideBuy, float64(100 + i), base.Add(time.Duration(i)*time.Second)))
	}

	s := tr.Stats("mkt", time.Hour)
	require.NotNil(t, s)
	assert.Equal(t, 4, s.TradeCount)
	// The two oldest observations were overwritten.
	assert.Equal(t, 102.0+103+104+105, s.TotalVolume)
}

func TestMaxMarketsEviction(t *testing.T) {
	tr := New(Config{MaxMarkets: 2})
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tr.Record(trade("a", wallet(0), models.SideBuy, 100, base))
	tr.Record(trade("b", wallet(0), models.SideBuy, 100, base))
	tr.Record(trade("c", wallet(0), models.SideBuy, 100, base))

	assert.Equal(t, 2, tr.MarketCount())
	assert.NotNil(t, tr.Stats("c", time.Minute))
}

func TestReset(t *testing.T) {
	tr := New(DefaultConfig())
	tr.Record(trade("mkt", wallet(0), models.SideBuy, 100, time.Now()))
	require.Equal(t, 1, tr.MarketCount())
	tr.Reset()
	assert.Equal(t, 0, tr.MarketCount())
}
