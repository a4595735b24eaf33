// Package clustering detects coordinated trading clusters inside sliding
// windows of discrete trades: directional pushes, counter-trading, split
// orders spread across wallets, and tightly timed coordination.
package clustering

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"WalletWatch/internal/analytics/event"
	"WalletWatch/internal/analytics/instance"
	"WalletWatch/internal/domain/models"
	"WalletWatch/pkg/util"
)

// ScoreWeights weight the normalized coordination-score components. They
// should sum to 1; Validate enforces it.
type ScoreWeights struct {
	WalletCount         float64
	TradeCount          float64
	DirectionAlignment  float64
	TimingRegularity    float64
	VolumeConcentration float64
}

func (w ScoreWeights) sum() float64 {
	return w.WalletCount + w.TradeCount + w.DirectionAlignment + w.TimingRegularity + w.VolumeConcentration
}

// SeverityThresholds map a coordination score onto a cluster severity.
// Must be increasing medium < high < critical.
type SeverityThresholds struct {
	Medium   float64
	High     float64
	Critical float64
}

// Config tunes the analyzer.
type Config struct {
	// Window is the trailing analysis span measured from the latest trade.
	Window time.Duration
	// Gates: all three must be met before scoring happens.
	MinWallets   int
	MinTrades    int
	MinVolumeUsd float64
	// MinCoordinationScore gates cluster emission after scoring.
	MinCoordinationScore float64
	ScoreWeights         ScoreWeights
	// MinTradesPerWalletForSplit classifies SPLIT_ORDERS when the average
	// trades-per-wallet reaches it.
	MinTradesPerWalletForSplit float64
	SeverityThresholds         SeverityThresholds
	// Cooldown suppresses repeat clusters per market unless bypassed.
	Cooldown time.Duration
	// SlidingStep advances the window during a sliding-window sweep.
	SlidingStep time.Duration
	// MaxRecentClusters bounds the per-analyzer recent-clusters ring.
	MaxRecentClusters int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Window:               5 * time.Minute,
		MinWallets:           3,
		MinTrades:            5,
		MinVolumeUsd:         10_000,
		MinCoordinationScore: 50,
		ScoreWeights: ScoreWeights{
			WalletCount:         0.20,
			TradeCount:          0.15,
			DirectionAlignment:  0.25,
			TimingRegularity:    0.20,
			VolumeConcentration: 0.20,
		},
		MinTradesPerWalletForSplit: 3,
		SeverityThresholds:         SeverityThresholds{Medium: 60, High: 75, Critical: 90},
		Cooldown:                   10 * time.Minute,
		SlidingStep:                time.Minute,
		MaxRecentClusters:          100,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.MinWallets <= 0 {
		c.MinWallets = d.MinWallets
	}
	if c.MinTrades <= 0 {
		c.MinTrades = d.MinTrades
	}
	if c.MinVolumeUsd <= 0 {
		c.MinVolumeUsd = d.MinVolumeUsd
	}
	if c.MinCoordinationScore <= 0 {
		c.MinCoordinationScore = d.MinCoordinationScore
	}
	if c.ScoreWeights.sum() == 0 {
		c.ScoreWeights = d.ScoreWeights
	}
	if c.MinTradesPerWalletForSplit <= 0 {
		c.MinTradesPerWalletForSplit = d.MinTradesPerWalletForSplit
	}
	if c.SeverityThresholds.Critical <= 0 {
		c.SeverityThresholds = d.SeverityThresholds
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.SlidingStep <= 0 {
		c.SlidingStep = d.SlidingStep
	}
	if c.MaxRecentClusters <= 0 {
		c.MaxRecentClusters = d.MaxRecentClusters
	}
}

// Validate reports config problems as a result object.
func (c Config) Validate() models.ValidationResult {
	res := models.ValidationResult{IsValid: true}
	if s := c.ScoreWeights.sum(); math.Abs(s-1.0) > 1e-6 {
		res.IsValid = false
		res.Errors = append(res.Errors, fmt.Sprintf("score weights must sum to 1.0, got %.4f", s))
	}
	st := c.SeverityThresholds
	if !(st.Medium < st.High && st.High < st.Critical) {
		res.IsValid = false
		res.Errors = append(res.Errors, "severity thresholds must be increasing: medium < high < critical")
	}
	return res
}

// AnalyzeOptions tweak one analysis pass.
type AnalyzeOptions struct {
	// BypassCooldown emits a cluster even inside the per-market cooldown.
	BypassCooldown bool
}

// Analyzer detects coordinated trading clusters. Safe for concurrent use.
type Analyzer struct {
	mu        sync.Mutex
	cfg       Config
	lastAlert map[string]time.Time
	recent    []models.VolumeCluster
	onCluster event.Emitter[models.VolumeCluster]
	now       func() time.Time
}

// New creates an analyzer with the given config.
func New(cfg Config) *Analyzer {
	cfg.applyDefaults()
	return &Analyzer{cfg: cfg, lastAlert: make(map[string]time.Time), now: time.Now}
}

var shared = instance.NewHolder(func() *Analyzer { return New(DefaultConfig()) })

// Shared returns the process-wide analyzer.
func Shared() *Analyzer { return shared.Get() }

// SetShared replaces the process-wide analyzer.
func SetShared(a *Analyzer) { shared.Set(a) }

// ResetShared clears the process-wide analyzer.
func ResetShared() { shared.Reset() }

// OnCluster registers a listener invoked synchronously for every emitted
// cluster.
func (a *Analyzer) OnCluster(fn func(models.VolumeCluster)) { a.onCluster.Subscribe(fn) }

// AnalyzeTrades runs one clustering pass over the trades' trailing window.
// Unmet gates or a sub-threshold score produce hasCluster=false with
// diagnostic counts; this is a defined state, never an error.
func (a *Analyzer) AnalyzeTrades(trades []models.Trade, opts AnalyzeOptions) *models.ClusterAnalysis {
	if len(trades) == 0 {
		return &models.ClusterAnalysis{Reason: "no trades"}
	}

	var latest time.Time
	for i := range trades {
		if trades[i].Timestamp.After(latest) {
			latest = trades[i].Timestamp
		}
	}
	cutoff := latest.Add(-a.cfg.Window)

	var (
		windowed   []models.Trade
		totalUsd   float64
		buyUsd     float64
		sellUsd    float64
		marketID   string
		byWallet   = make(map[string][]models.Trade)
		walletVol  = make(map[string]float64)
	)
	for i := range trades {
		t := trades[i]
		if t.Timestamp.Before(cutoff) || t.SizeUsd <= 0 {
			continue
		}
		w := util.NormalizeAddress(t.WalletAddress)
		windowed = append(windowed, t)
		totalUsd += t.SizeUsd
		if t.Side == models.SideBuy {
			buyUsd += t.SizeUsd
		} else {
			sellUsd += t.SizeUsd
		}
		byWallet[w] = append(byWallet[w], t)
		walletVol[w] += t.SizeUsd
		if marketID == "" {
			marketID = t.MarketID
		}
	}

	analysis := &models.ClusterAnalysis{
		WalletCount:    len(byWallet),
		TradeCount:     len(windowed),
		TotalVolumeUsd: totalUsd,
	}

	switch {
	case len(byWallet) < a.cfg.MinWallets:
		analysis.Reason = fmt.Sprintf("wallets %d below minimum %d", len(byWallet), a.cfg.MinWallets)
		return analysis
	case len(windowed) < a.cfg.MinTrades:
		analysis.Reason = fmt.Sprintf("trades %d below minimum %d", len(windowed), a.cfg.MinTrades)
		return analysis
	case totalUsd < a.cfg.MinVolumeUsd:
		analysis.Reason = fmt.Sprintf("volume %.2f below minimum %.2f", totalUsd, a.cfg.MinVolumeUsd)
		return analysis
	}

	directionImbalance := 0.0
	if totalUsd > 0 {
		directionImbalance = math.Abs(buyUsd-sellUsd) / totalUsd
	}
	// Ratio is capped so one-sided flow stays JSON-serializable.
	const ratioCap = 1000.0
	buySellRatio := ratioCap
	if sellUsd > 0 {
		buySellRatio = math.Min(buyUsd/sellUsd, ratioCap)
	}
	timingRegularity := timingRegularity(windowed)
	concentration := volumeConcentration(walletVol, totalUsd)

	w := a.cfg.ScoreWeights
	score := w.WalletCount*scaleCount(len(byWallet), a.cfg.MinWallets, 10) +
		w.TradeCount*scaleCount(len(windowed), a.cfg.MinTrades, 30) +
		w.DirectionAlignment*directionImbalance*100 +
		w.TimingRegularity*timingRegularity*100 +
		w.VolumeConcentration*concentration*100

	if score < a.cfg.MinCoordinationScore {
		analysis.Reason = fmt.Sprintf("coordination score %.1f below minimum %.1f", score, a.cfg.MinCoordinationScore)
		return analysis
	}

	a.mu.Lock()
	if !opts.BypassCooldown && marketID != "" {
		if last, ok := a.lastAlert[marketID]; ok && a.now().Sub(last) < a.cfg.Cooldown {
			a.mu.Unlock()
			analysis.SuppressedByCooldown = true
			analysis.Reason = "suppressed by per-market cooldown"
			return analysis
		}
	}

	wallets := make([]string, 0, len(byWallet))
	for wal := range byWallet {
		wallets = append(wallets, wal)
	}
	sort.Strings(wallets)

	cluster := models.VolumeCluster{
		MarketID:           marketID,
		Wallets:            wallets,
		WalletCount:        len(byWallet),
		TradeCount:         len(windowed),
		TotalVolumeUsd:     totalUsd,
		BuySellRatio:       buySellRatio,
		DirectionImbalance: directionImbalance,
		TimingRegularity:   timingRegularity,
		CoordinationScore:  math.Min(score, 100),
		WindowStart:        cutoff,
		WindowEnd:          latest,
		DetectedAt:         a.now(),
	}
	cluster.CoordinationType = a.classify(&cluster)
	cluster.Severity = a.severity(cluster.CoordinationScore)

	if marketID != "" {
		a.lastAlert[marketID] = a.now()
	}
	a.recent = append(a.recent, cluster)
	if len(a.recent) > a.cfg.MaxRecentClusters {
		a.recent = a.recent[len(a.recent)-a.cfg.MaxRecentClusters:]
	}
	a.mu.Unlock()

	a.onCluster.Publish(cluster)

	analysis.HasCluster = true
	analysis.Cluster = &cluster
	return analysis
}

// AnalyzeTradesWithSlidingWindow sweeps the analysis window across the full
// trade timespan and returns one result per offset.
func (a *Analyzer) AnalyzeTradesWithSlidingWindow(trades []models.Trade, opts AnalyzeOptions) []*models.ClusterAnalysis {
	if len(trades) == 0 {
		return nil
	}
	sorted := make([]models.Trade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	first := sorted[0].Timestamp
	last := sorted[len(sorted)-1].Timestamp

	var results []*models.ClusterAnalysis
	for end := first.Add(a.cfg.Window); ; end = end.Add(a.cfg.SlidingStep) {
		if end.After(last) {
			end = last
		}
		start := end.Add(-a.cfg.Window)
		var slice []models.Trade
		for i := range sorted {
			if !sorted[i].Timestamp.Before(start) && !sorted[i].Timestamp.After(end) {
				slice = append(slice, sorted[i])
			}
		}
		if len(slice) > 0 {
			results = append(results, a.AnalyzeTrades(slice, opts))
		}
		if !end.Before(last) {
			break
		}
	}
	return results
}

// AnalyzeMultipleMarkets fans out per-market analysis and aggregates totals.
func (a *Analyzer) AnalyzeMultipleMarkets(tradesByMarket map[string][]models.Trade, opts AnalyzeOptions) *models.MultiMarketClusterSummary {
	summary := &models.MultiMarketClusterSummary{
		BySeverity: make(map[models.ClusterSeverity]int),
		ByType:     make(map[models.CoordinationType]int),
		Results:    make(map[string]*models.ClusterAnalysis),
	}
	ids := make([]string, 0, len(tradesByMarket))
	for id := range tradesByMarket {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		res := a.AnalyzeTrades(tradesByMarket[id], opts)
		summary.Results[id] = res
		summary.MarketsAnalyzed++
		summary.TotalVolumeUsd += res.TotalVolumeUsd
		if res.HasCluster {
			summary.ClustersFound++
			summary.BySeverity[res.Cluster.Severity]++
			summary.ByType[res.Cluster.CoordinationType]++
		}
	}
	return summary
}

// RecentClusters returns a copy of the bounded recent-clusters ring.
func (a *Analyzer) RecentClusters() []models.VolumeCluster {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.VolumeCluster, len(a.recent))
	copy(out, a.recent)
	return out
}

// ClearCooldowns forgets all per-market cooldown state.
func (a *Analyzer) ClearCooldowns() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastAlert = make(map[string]time.Time)
}

// classify picks the coordination type; the priority order is the tie-break.
func (a *Analyzer) classify(c *models.VolumeCluster) models.CoordinationType {
	avgTradesPerWallet := float64(c.TradeCount) / float64(c.WalletCount)
	switch {
	case avgTradesPerWallet >= a.cfg.MinTradesPerWalletForSplit:
		return models.CoordinationSplitOrders
	case c.DirectionImbalance >= 0.7:
		return models.CoordinationDirectional
	case c.DirectionImbalance <= 0.2:
		return models.CoordinationCounter
	case c.TimingRegularity >= 0.8:
		return models.CoordinationTimed
	}
	return models.CoordinationMixed
}

func (a *Analyzer) severity(score float64) models.ClusterSeverity {
	st := a.cfg.SeverityThresholds
	switch {
	case score >= st.Critical:
		return models.SeverityCritical
	case score >= st.High:
		return models.SeverityHigh
	case score >= st.Medium:
		return models.SeverityMedium
	}
	return models.SeverityLow
}

// timingRegularity is 1 - coefficient of variation of inter-trade gaps,
// clamped to [0,1]. Two trades or fewer gaps of zero spread count as fully
// regular.
func timingRegularity(trades []models.Trade) float64 {
	if len(trades) < 3 {
		return 1
	}
	ts := make([]time.Time, len(trades))
	for i := range trades {
		ts[i] = trades[i].Timestamp
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

	gaps := make([]float64, 0, len(ts)-1)
	var sum float64
	for i := 1; i < len(ts); i++ {
		g := ts[i].Sub(ts[i-1]).Seconds()
		gaps = append(gaps, g)
		sum += g
	}
	mean := sum / float64(len(gaps))
	if mean == 0 {
		return 1
	}
	var variance float64
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(gaps))
	cv := math.Sqrt(variance) / mean
	return clamp01(1 - cv)
}

// volumeConcentration is the normalized Herfindahl index over per-wallet
// volume: 0 for perfectly even split, 1 for a single dominant wallet.
func volumeConcentration(walletVol map[string]float64, total float64) float64 {
	n := len(walletVol)
	if n <= 1 || total <= 0 {
		return 1
	}
	var hhi float64
	for _, v := range walletVol {
		share := v / total
		hhi += share * share
	}
	min := 1.0 / float64(n)
	return clamp01((hhi - min) / (1 - min))
}

// scaleCount maps a gated count onto [0,100]: the minimum scores 40 and the
// saturation point scores 100.
func scaleCount(n, min, saturate int) float64 {
	if n <= min {
		return 40
	}
	if n >= saturate {
		return 100
	}
	return 40 + 60*float64(n-min)/float64(saturate-min)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
