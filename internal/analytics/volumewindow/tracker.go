// Package volumewindow tracks per-market trading volume over sliding windows.
// Each market keeps a bounded ring of trade observations from which stats for
// any configured trailing window are derived on demand.
package volumewindow

import (
	"math"
	"sort"
	"sync"
	"time"

	"WalletWatch/internal/analytics/instance"
	"WalletWatch/internal/domain/models"
	"WalletWatch/pkg/util"
)

// Config tunes the tracker. Zero values fall back to defaults.
type Config struct {
	// MaxTradesPerMarket bounds each market's observation ring.
	MaxTradesPerMarket int
	// Windows are the trailing spans Stats/MultiStats compute over.
	Windows []time.Duration
	// MaxMarkets bounds tracked markets; the least recently touched market is
	// evicted synchronously on insert when over capacity.
	MaxMarkets int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxTradesPerMarket: 2048,
		Windows: []time.Duration{
			time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour,
		},
		MaxMarkets: 500,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxTradesPerMarket <= 0 {
		c.MaxTradesPerMarket = d.MaxTradesPerMarket
	}
	if len(c.Windows) == 0 {
		c.Windows = d.Windows
	}
	if c.MaxMarkets <= 0 {
		c.MaxMarkets = d.MaxMarkets
	}
}

type observation struct {
	ts      time.Time
	sizeUsd float64
	side    models.TradeSide
	wallet  string
}

type marketRing struct {
	buf         []observation
	start, size int
	lastTouched time.Time
}

func (r *marketRing) push(o observation, cap_ int) {
	if len(r.buf) < cap_ {
		r.buf = append(r.buf, o)
		r.size++
		return
	}
	// overwrite oldest
	r.buf[r.start] = o
	r.start = (r.start + 1) % len(r.buf)
}

// each returns observations oldest-first.
func (r *marketRing) each(fn func(observation)) {
	for i := 0; i < r.size; i++ {
		fn(r.buf[(r.start+i)%len(r.buf)])
	}
}

// Tracker is the rolling volume tracker. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	cfg     Config
	markets map[string]*marketRing
}

// New creates a tracker with the given config.
func New(cfg Config) *Tracker {
	cfg.applyDefaults()
	return &Tracker{cfg: cfg, markets: make(map[string]*marketRing)}
}

var shared = instance.NewHolder(func() *Tracker { return New(DefaultConfig()) })

// Shared returns the process-wide tracker, constructing a default on first use.
func Shared() *Tracker { return shared.Get() }

// SetShared replaces the process-wide tracker.
func SetShared(t *Tracker) { shared.Set(t) }

// ResetShared clears the process-wide tracker.
func ResetShared() { shared.Reset() }

// Record adds one trade observation. Trades with non-positive size or a zero
// timestamp are silently dropped.
func (t *Tracker) Record(trade *models.Trade) {
	if trade == nil || trade.SizeUsd <= 0 || trade.Timestamp.IsZero() || trade.MarketID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.markets[trade.MarketID]
	if !ok {
		if len(t.markets) >= t.cfg.MaxMarkets {
			t.evictOldestLocked()
		}
		r = &marketRing{}
		t.markets[trade.MarketID] = r
	}
	r.push(observation{
		ts:      trade.Timestamp,
		sizeUsd: trade.SizeUsd,
		side:    trade.Side,
		wallet:  util.NormalizeAddress(trade.WalletAddress),
	}, t.cfg.MaxTradesPerMarket)
	r.lastTouched = time.Now()
}

// Stats computes window statistics for one market, trailing from the latest
// recorded observation. Returns nil for an unknown market.
func (t *Tracker) Stats(marketID string, window time.Duration) *models.VolumeWindowStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.markets[marketID]
	if !ok || r.size == 0 {
		return nil
	}
	return t.statsLocked(marketID, r, window)
}

// MultiStats computes stats for every configured window of a market.
func (t *Tracker) MultiStats(marketID string) []models.VolumeWindowStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.markets[marketID]
	if !ok || r.size == 0 {
		return nil
	}
	out := make([]models.VolumeWindowStats, 0, len(t.cfg.Windows))
	for _, w := range t.cfg.Windows {
		if s := t.statsLocked(marketID, r, w); s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// ZScore returns how many standard deviations sizeUsd sits from the mean trade
// size inside the window. Zero when the market is unknown or variance is zero.
func (t *Tracker) ZScore(marketID string, sizeUsd float64, window time.Duration) float64 {
	s := t.Stats(marketID, window)
	if s == nil || s.StdDevSize == 0 {
		return 0
	}
	return (sizeUsd - s.MeanTradeSize) / s.StdDevSize
}

// MarketCount returns the number of tracked markets.
func (t *Tracker) MarketCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.markets)
}

// Reset drops all tracked markets.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markets = make(map[string]*marketRing)
}

func (t *Tracker) statsLocked(marketID string, r *marketRing, window time.Duration) *models.VolumeWindowStats {
	var latest time.Time
	r.each(func(o observation) {
		if o.ts.After(latest) {
			latest = o.ts
		}
	})
	cutoff := latest.Add(-window)

	stats := models.VolumeWindowStats{
		MarketID: marketID,
		Window:   window,
		From:     cutoff,
		To:       latest,
	}
	var sum, sum2 float64
	wallets := make(map[string]struct{})
	r.each(func(o observation) {
		if o.ts.Before(cutoff) {
			return
		}
		stats.TradeCount++
		stats.TotalVolume += o.sizeUsd
		if o.side == models.SideBuy {
			stats.BuyVolume += o.sizeUsd
		} else {
			stats.SellVolume += o.sizeUsd
		}
		if o.sizeUsd > stats.MaxTradeSize {
			stats.MaxTradeSize = o.sizeUsd
		}
		sum += o.sizeUsd
		sum2 += o.sizeUsd * o.sizeUsd
		wallets[o.wallet] = struct{}{}
	})
	stats.UniqueWallets = len(wallets)
	if stats.TradeCount > 0 {
		n := float64(stats.TradeCount)
		stats.MeanTradeSize = sum / n
		variance := sum2/n - stats.MeanTradeSize*stats.MeanTradeSize
		if variance > 0 {
			stats.StdDevSize = math.Sqrt(variance)
		}
	}
	return &stats
}

func (t *Tracker) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	first := true
	ids := make([]string, 0, len(t.markets))
	for id := range t.markets {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic eviction among equal timestamps
	for _, id := range ids {
		r := t.markets[id]
		if first || r.lastTouched.Before(oldest) {
			oldest = r.lastTouched
			oldestID = id
			first = false
		}
	}
	if oldestID != "" {
		delete(t.markets, oldestID)
	}
}
