// Package whale derives tiered trade-size thresholds per market from its
// liquidity and recent volume. Results are cached per market with a TTL and a
// bounded cache size.
package whale

import (
	"sort"
	"sync"
	"time"

	"WalletWatch/internal/analytics/instance"
	"WalletWatch/internal/domain/models"
)

// Config tunes threshold derivation and caching.
type Config struct {
	// Tier fractions applied to the market's depth base.
	NotableFraction   float64
	LargeFraction     float64
	WhaleFraction     float64
	MegaWhaleFraction float64
	// Absolute floors so thin markets still get sane tiers.
	NotableFloorUsd   float64
	LargeFloorUsd     float64
	WhaleFloorUsd     float64
	MegaWhaleFloorUsd float64
	// VolumeWeight blends 24h volume into the depth base:
	// base = (1-w)*liquidity + w*volume24h.
	VolumeWeight float64

	CacheTTL         time.Duration
	MaxCachedMarkets int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		NotableFraction:   0.005,
		LargeFraction:     0.02,
		WhaleFraction:     0.05,
		MegaWhaleFraction: 0.15,
		NotableFloorUsd:   1_000,
		LargeFloorUsd:     5_000,
		WhaleFloorUsd:     25_000,
		MegaWhaleFloorUsd: 100_000,
		VolumeWeight:      0.4,
		CacheTTL:          10 * time.Minute,
		MaxCachedMarkets:  1_000,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.NotableFraction <= 0 {
		c.NotableFraction = d.NotableFraction
	}
	if c.LargeFraction <= 0 {
		c.LargeFraction = d.LargeFraction
	}
	if c.WhaleFraction <= 0 {
		c.WhaleFraction = d.WhaleFraction
	}
	if c.MegaWhaleFraction <= 0 {
		c.MegaWhaleFraction = d.MegaWhaleFraction
	}
	if c.NotableFloorUsd <= 0 {
		c.NotableFloorUsd = d.NotableFloorUsd
	}
	if c.LargeFloorUsd <= 0 {
		c.LargeFloorUsd = d.LargeFloorUsd
	}
	if c.WhaleFloorUsd <= 0 {
		c.WhaleFloorUsd = d.WhaleFloorUsd
	}
	if c.MegaWhaleFloorUsd <= 0 {
		c.MegaWhaleFloorUsd = d.MegaWhaleFloorUsd
	}
	if c.VolumeWeight <= 0 || c.VolumeWeight > 1 {
		c.VolumeWeight = d.VolumeWeight
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.MaxCachedMarkets <= 0 {
		c.MaxCachedMarkets = d.MaxCachedMarkets
	}
}

type cachedThresholds struct {
	thresholds models.WhaleThresholds
	computedAt time.Time
}

// Calculator caches per-market whale thresholds. Safe for concurrent use.
type Calculator struct {
	mu    sync.Mutex
	cfg   Config
	cache map[string]*cachedThresholds
	now   func() time.Time
}

// New creates a calculator with the given config.
func New(cfg Config) *Calculator {
	cfg.applyDefaults()
	return &Calculator{cfg: cfg, cache: make(map[string]*cachedThresholds), now: time.Now}
}

var shared = instance.NewHolder(func() *Calculator { return New(DefaultConfig()) })

// Shared returns the process-wide calculator.
func Shared() *Calculator { return shared.Get() }

// SetShared replaces the process-wide calculator.
func SetShared(c *Calculator) { shared.Set(c) }

// ResetShared clears the process-wide calculator.
func ResetShared() { shared.Reset() }

// Calculate derives (or returns cached) thresholds for a market snapshot.
func (c *Calculator) Calculate(snap models.MarketSnapshot) models.WhaleThresholds {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.cache[snap.MarketID]; ok && c.now().Sub(e.computedAt) < c.cfg.CacheTTL {
		return e.thresholds
	}

	base := (1-c.cfg.VolumeWeight)*snap.LiquidityUsd + c.cfg.VolumeWeight*snap.Volume24hUsd
	t := models.WhaleThresholds{
		MarketID:     snap.MarketID,
		NotableUsd:   maxF(base*c.cfg.NotableFraction, c.cfg.NotableFloorUsd),
		LargeUsd:     maxF(base*c.cfg.LargeFraction, c.cfg.LargeFloorUsd),
		WhaleUsd:     maxF(base*c.cfg.WhaleFraction, c.cfg.WhaleFloorUsd),
		MegaWhaleUsd: maxF(base*c.cfg.MegaWhaleFraction, c.cfg.MegaWhaleFloorUsd),
		ComputedAt:   c.now(),
	}
	// Tiers must stay strictly ordered even when floors dominate.
	if t.LargeUsd <= t.NotableUsd {
		t.LargeUsd = t.NotableUsd * 2
	}
	if t.WhaleUsd <= t.LargeUsd {
		t.WhaleUsd = t.LargeUsd * 2
	}
	if t.MegaWhaleUsd <= t.WhaleUsd {
		t.MegaWhaleUsd = t.WhaleUsd * 2
	}

	if len(c.cache) >= c.cfg.MaxCachedMarkets {
		c.evictOldestLocked()
	}
	c.cache[snap.MarketID] = &cachedThresholds{thresholds: t, computedAt: c.now()}
	return t
}

// Thresholds returns the cached thresholds for a market, or nil if absent or
// expired.
func (c *Calculator) Thresholds(marketID string) *models.WhaleThresholds {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[marketID]
	if !ok || c.now().Sub(e.computedAt) >= c.cfg.CacheTTL {
		return nil
	}
	t := e.thresholds
	return &t
}

// ClassifyTrade tiers a trade size against a market's cached thresholds.
// Unknown markets classify as TierNone.
func (c *Calculator) ClassifyTrade(marketID string, sizeUsd float64) models.WhaleTier {
	t := c.Thresholds(marketID)
	if t == nil {
		return models.TierNone
	}
	return t.TierFor(sizeUsd)
}

// Invalidate removes a market's cached thresholds.
func (c *Calculator) Invalidate(marketID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, marketID)
}

// CachedMarkets returns the number of markets in the cache.
func (c *Calculator) CachedMarkets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func (c *Calculator) evictOldestLocked() {
	ids := make([]string, 0, len(c.cache))
	for id := range c.cache {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var oldestID string
	var oldest time.Time
	first := true
	for _, id := range ids {
		e := c.cache[id]
		if first || e.computedAt.Before(oldest) {
			oldest = e.computedAt
			oldestID = id
			first = false
		}
	}
	if oldestID != "" {
		delete(c.cache, oldestID)
	}
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
