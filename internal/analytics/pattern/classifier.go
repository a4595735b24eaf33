// Package pattern classifies wallets into trading archetypes from their trade
// history: feature extraction, weighted matching against named pattern
// definitions, and independent risk flags.
package pattern

import (
	"math"
	"sort"
	"sync"
	"time"

	"WalletWatch/internal/analytics/event"
	"WalletWatch/internal/analytics/instance"
	"WalletWatch/internal/domain/models"
	"WalletWatch/pkg/util"
)

// Config tunes classification.
type Config struct {
	// MinTrades is the minimum valid-trade count to classify at all.
	MinTrades int
	// LargeTradeThresholdUsd feeds the FRESH_WALLET_ACTIVITY flag.
	LargeTradeThresholdUsd float64
	// HighRiskThreshold triggers the highRisk event.
	HighRiskThreshold float64
	// MaxCachedClassifications bounds the per-wallet cache.
	MaxCachedClassifications int
	// Confidence cutpoints by trade count, ascending.
	ConfidenceCutpoints ConfidenceCutpoints
}

// ConfidenceCutpoints grade classification confidence by sample size.
type ConfidenceCutpoints struct {
	Low      int // below: VERY_LOW
	Medium   int // below: LOW
	High     int // below: MEDIUM
	VeryHigh int // below: HIGH, at or above: VERY_HIGH
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinTrades:                10,
		LargeTradeThresholdUsd:   5_000,
		HighRiskThreshold:        60,
		MaxCachedClassifications: 2_000,
		ConfidenceCutpoints:      ConfidenceCutpoints{Low: 5, Medium: 15, High: 30, VeryHigh: 100},
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MinTrades <= 0 {
		c.MinTrades = d.MinTrades
	}
	if c.LargeTradeThresholdUsd <= 0 {
		c.LargeTradeThresholdUsd = d.LargeTradeThresholdUsd
	}
	if c.HighRiskThreshold <= 0 {
		c.HighRiskThreshold = d.HighRiskThreshold
	}
	if c.MaxCachedClassifications <= 0 {
		c.MaxCachedClassifications = d.MaxCachedClassifications
	}
	if c.ConfidenceCutpoints.VeryHigh == 0 {
		c.ConfidenceCutpoints = d.ConfidenceCutpoints
	}
}

type cacheEntry struct {
	classification models.Classification
	trades         map[string]models.Trade
	lastAccess     time.Time
}

// Classifier scores wallets against the registered pattern definitions.
// Safe for concurrent use.
type Classifier struct {
	mu    sync.Mutex
	cfg   Config
	defs  []Definition
	cache map[string]*cacheEntry

	onClassified       event.Emitter[models.Classification]
	onHighRisk         event.Emitter[models.Classification]
	onPotentialInsider event.Emitter[models.Classification]

	now func() time.Time
}

// New creates a classifier with the default pattern definitions.
func New(cfg Config) *Classifier {
	cfg.applyDefaults()
	return &Classifier{
		cfg:   cfg,
		defs:  defaultDefinitions(),
		cache: make(map[string]*cacheEntry),
		now:   time.Now,
	}
}

var shared = instance.NewHolder(func() *Classifier { return New(DefaultConfig()) })

// Shared returns the process-wide classifier.
func Shared() *Classifier { return shared.Get() }

// SetShared replaces the process-wide classifier.
func SetShared(c *Classifier) { shared.Set(c) }

// ResetShared clears the process-wide classifier.
func ResetShared() { shared.Reset() }

// OnClassified registers a listener for every completed classification.
func (c *Classifier) OnClassified(fn func(models.Classification)) { c.onClassified.Subscribe(fn) }

// OnHighRisk registers a listener fired when riskScore reaches the threshold.
func (c *Classifier) OnHighRisk(fn func(models.Classification)) { c.onHighRisk.Subscribe(fn) }

// OnPotentialInsider registers a listener fired when the primary pattern is
// POTENTIAL_INSIDER.
func (c *Classifier) OnPotentialInsider(fn func(models.Classification)) {
	c.onPotentialInsider.Subscribe(fn)
}

// Classify extracts features from trades and scores the wallet against every
// registered definition. Invalid trades (non-positive size, zero timestamp)
// are silently dropped; below MinTrades valid trades the result is nil.
func (c *Classifier) Classify(wallet string, trades []models.Trade) *models.Classification {
	valid := filterValid(trades)
	if len(valid) < c.cfg.MinTrades {
		return nil
	}
	key := util.NormalizeAddress(wallet)

	features := extractFeatures(valid, c.cfg.LargeTradeThresholdUsd)
	matches := c.score(features)
	primary := c.pick(matches)

	cls := models.Classification{
		WalletAddress:  wallet,
		PrimaryPattern: primary,
		Confidence:     c.confidence(len(valid)),
		Features:       features,
		Matches:        matches,
		ClassifiedAt:   c.now(),
	}
	cls.RiskFlags, cls.RiskScore = c.riskFlags(valid, features)

	c.mu.Lock()
	entry, ok := c.cache[key]
	if !ok {
		if len(c.cache) >= c.cfg.MaxCachedClassifications {
			c.evictLRULocked()
		}
		entry = &cacheEntry{trades: make(map[string]models.Trade)}
		c.cache[key] = entry
	}
	for i := range valid {
		entry.trades[valid[i].ID] = valid[i]
	}
	entry.classification = cls
	entry.lastAccess = c.now()
	c.mu.Unlock()

	c.onClassified.Publish(cls)
	if cls.RiskScore >= c.cfg.HighRiskThreshold {
		c.onHighRisk.Publish(cls)
	}
	if cls.PrimaryPattern == models.PatternPotentialInsider {
		c.onPotentialInsider.Publish(cls)
	}
	return &cls
}

// UpdateClassification merges new trades (deduplicated by trade id) into the
// wallet's stored set and re-classifies.
func (c *Classifier) UpdateClassification(wallet string, newTrades []models.Trade) *models.Classification {
	key := util.NormalizeAddress(wallet)
	c.mu.Lock()
	merged := make([]models.Trade, 0)
	if entry, ok := c.cache[key]; ok {
		for _, t := range entry.trades {
			merged = append(merged, t)
		}
	}
	c.mu.Unlock()

	seen := make(map[string]struct{}, len(merged))
	for i := range merged {
		seen[merged[i].ID] = struct{}{}
	}
	for i := range newTrades {
		if _, dup := seen[newTrades[i].ID]; !dup {
			merged = append(merged, newTrades[i])
		}
	}
	return c.Classify(wallet, merged)
}

// Cached returns the cached classification for a wallet, or nil.
func (c *Classifier) Cached(wallet string) *models.Classification {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[util.NormalizeAddress(wallet)]
	if !ok {
		return nil
	}
	entry.lastAccess = c.now()
	cls := entry.classification
	cls.FromCache = true
	return &cls
}

// ClearCache drops every cached classification.
func (c *Classifier) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*cacheEntry)
}

// CachedCount returns the number of cached classifications.
func (c *Classifier) CachedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func (c *Classifier) evictLRULocked() {
	keys := make([]string, 0, len(c.cache))
	for k := range c.cache {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var oldestKey string
	var oldest time.Time
	first := true
	for _, k := range keys {
		e := c.cache[k]
		if first || e.lastAccess.Before(oldest) {
			oldest = e.lastAccess
			oldestKey = k
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.cache, oldestKey)
	}
}

func (c *Classifier) confidence(tradeCount int) models.ConfidenceLevel {
	cp := c.cfg.ConfidenceCutpoints
	switch {
	case tradeCount < cp.Low:
		return models.ConfidenceVeryLow
	case tradeCount < cp.Medium:
		return models.ConfidenceLow
	case tradeCount < cp.High:
		return models.ConfidenceMedium
	case tradeCount < cp.VeryHigh:
		return models.ConfidenceHigh
	}
	return models.ConfidenceVeryHigh
}

func (c *Classifier) score(f models.TradingFeatures) []models.PatternMatch {
	out := make([]models.PatternMatch, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, models.PatternMatch{Pattern: d.Pattern, Score: d.score(f)})
	}
	return out
}

// pick returns the highest-scoring definition above its own minScore; ties
// resolve to the earliest declared definition. Falls back to UNKNOWN.
func (c *Classifier) pick(matches []models.PatternMatch) models.PatternType {
	best := models.PatternUnknown
	bestScore := -1.0
	for i, d := range c.defs {
		m := matches[i]
		if m.Score >= d.MinScore && m.Score > bestScore {
			best = m.Pattern
			bestScore = m.Score
		}
	}
	return best
}

// flagSeverities aggregate into riskScore, capped at 100.
var flagSeverities = map[models.RiskFlag]float64{
	models.FlagHighWinRate:         25,
	models.FlagPreNewsTrading:      25,
	models.FlagUnusualTiming:       10,
	models.FlagBotPrecision:        15,
	models.FlagFreshWalletActivity: 15,
	models.FlagCoordinatedTrading:  20,
}

func (c *Classifier) riskFlags(trades []models.Trade, f models.TradingFeatures) ([]models.RiskFlag, float64) {
	var flags []models.RiskFlag

	resolved := 0
	for i := range trades {
		if trades[i].Won != nil {
			resolved++
		}
	}
	if resolved >= 10 && f.WinRate >= 0.8 {
		flags = append(flags, models.FlagHighWinRate)
	}
	if f.PreEventRatio >= 0.3 {
		flags = append(flags, models.FlagPreNewsTrading)
	}
	if nightShare(trades) >= 0.5 && len(trades) >= 10 {
		flags = append(flags, models.FlagUnusualTiming)
	}
	if f.TimingConsistency >= 0.85 && f.SizeConsistency >= 0.85 {
		flags = append(flags, models.FlagBotPrecision)
	}
	if f.DaysActive < 7 && firstTradeSize(trades) >= c.cfg.LargeTradeThresholdUsd {
		flags = append(flags, models.FlagFreshWalletActivity)
	}
	for i := range trades {
		if trades[i].HasFlag("coordinated") {
			flags = append(flags, models.FlagCoordinatedTrading)
			break
		}
	}

	var score float64
	for _, fl := range flags {
		score += flagSeverities[fl]
	}
	return flags, math.Min(score, 100)
}

func filterValid(trades []models.Trade) []models.Trade {
	out := make([]models.Trade, 0, len(trades))
	for i := range trades {
		if trades[i].SizeUsd <= 0 || trades[i].Timestamp.IsZero() {
			continue
		}
		out = append(out, trades[i])
	}
	return out
}

func extractFeatures(trades []models.Trade, largeUsd float64) models.TradingFeatures {
	f := models.TradingFeatures{TradeCount: len(trades)}

	sorted := make([]models.Trade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var (
		buys, makers, preEvent int
		wins, resolved         int
		sizes                  []float64
		totalUsd               float64
		byMarket               = make(map[string]int)
	)
	for i := range sorted {
		t := sorted[i]
		if t.Side == models.SideBuy {
			buys++
		}
		if t.IsMaker {
			makers++
		}
		if t.PreEvent {
			preEvent++
		}
		if t.Won != nil {
			resolved++
			if *t.Won {
				wins++
			}
		}
		sizes = append(sizes, t.SizeUsd)
		totalUsd += t.SizeUsd
		byMarket[t.MarketID]++
	}

	n := float64(len(sorted))
	f.BuyRatio = float64(buys) / n
	f.MakerRatio = float64(makers) / n
	f.PreEventRatio = float64(preEvent) / n
	if resolved > 0 {
		f.WinRate = float64(wins) / float64(resolved)
	}
	f.TotalVolumeUsd = totalUsd
	f.AvgTradeSizeUsd = totalUsd / n

	dominant := 0
	for id, cnt := range byMarket {
		if cnt > dominant || (cnt == dominant && id < f.DominantMarket) {
			dominant = cnt
			f.DominantMarket = id
		}
	}
	f.MarketConcentration = float64(dominant) / n

	span := sorted[len(sorted)-1].Timestamp.Sub(sorted[0].Timestamp)
	f.DaysActive = span.Hours() / 24
	days := f.DaysActive
	if days < 1 {
		days = 1
	}
	f.TradesPerDay = n / days

	f.SizeConsistency = consistency(sizes)
	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].Timestamp.Sub(sorted[i-1].Timestamp).Seconds())
	}
	f.TimingConsistency = consistency(gaps)
	return f
}

// consistency is 1 - coefficient of variation, clamped to [0,1].
func consistency(xs []float64) float64 {
	if len(xs) < 2 {
		return 1
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if mean == 0 {
		return 1
	}
	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(xs))
	cv := math.Sqrt(variance) / math.Abs(mean)
	if cv > 1 {
		return 0
	}
	return 1 - cv
}

func nightShare(trades []models.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	night := 0
	for i := range trades {
		h := trades[i].Timestamp.UTC().Hour()
		if h < 5 {
			night++
		}
	}
	return float64(night) / float64(len(trades))
}

func firstTradeSize(trades []models.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	first := trades[0]
	for i := range trades {
		if trades[i].Timestamp.Before(first.Timestamp) {
			first = trades[i]
		}
	}
	return first.SizeUsd
}
