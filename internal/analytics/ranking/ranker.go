// Package ranking turns composite score results into ranked, explainable
// alert priorities with time decay, escalation detection and urgency flags.
package ranking

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

// FactorWeights is the per-factor weight table; weights are renormalized over
// their sum on every ranking, so they need not sum to 1.
type FactorWeights map[models.PriorityFactor]float64

// DefaultFactorWeights returns the production factor weights.
func DefaultFactorWeights() FactorWeights {
	return FactorWeights{
		models.FactorSeverity:     0.35,
		models.FactorImpact:       0.15,
		models.FactorNetworkRisk:  0.20,
		models.FactorConvergence:  0.15,
		models.FactorPatternMatch: 0.15,
	}
}

// Config tunes the ranker.
type Config struct {
	// Weights is the per-factor weight table.
	Weights FactorWeights
	// Priority level cutpoints on the final score, ascending.
	MediumThreshold   float64
	HighThreshold     float64
	CriticalThreshold float64
	// UrgentThreshold and HighlightThreshold are independent booleans on the
	// final score.
	UrgentThreshold    float64
	HighlightThreshold float64
	// DecayHalfLife is the alert age at which decay reaches the midpoint
	// between 1.0 and DecayFloor.
	DecayHalfLife time.Duration
	// DecayFloor is the lowest the decay multiplier can go.
	DecayFloor float64
	// EscalationDelta is the composite-score jump over a wallet's prior
	// scores that triggers SCORE_ESCALATION.
	EscalationDelta float64
	// ConvergenceMinSignals is the number of independently high signals
	// required for MULTI_SIGNAL_CONVERGENCE.
	ConvergenceMinSignals int
	// ConvergenceSignalFloor is what "independently high" means for one
	// signal's raw score.
	ConvergenceSignalFloor float64
	// MaxHistoryScores bounds per-wallet prior-score retention.
	MaxHistoryScores int
	// MaxCachedRankings bounds the per-wallet result cache.
	MaxCachedRankings int
	// ImpactSaturationUsd is the |P&L| at which the impact factor saturates.
	ImpactSaturationUsd float64
	// FalsePositiveDiscount scales the pattern-match factor when the filter
	// marks the wallet a likely false positive.
	FalsePositiveDiscount float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Weights:                DefaultFactorWeights(),
		MediumThreshold:        40,
		HighThreshold:          60,
		CriticalThreshold:      80,
		UrgentThreshold:        75,
		HighlightThreshold:     65,
		DecayHalfLife:          12 * time.Hour,
		DecayFloor:             0.5,
		EscalationDelta:        25,
		ConvergenceMinSignals:  3,
		ConvergenceSignalFloor: 60,
		MaxHistoryScores:       20,
		MaxCachedRankings:      2000,
		ImpactSaturationUsd:    100_000,
		FalsePositiveDiscount:  0.4,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if len(c.Weights) == 0 {
		c.Weights = d.Weights
	}
	if c.MediumThreshold <= 0 {
		c.MediumThreshold = d.MediumThreshold
	}
	if c.HighThreshold <= 0 {
		c.HighThreshold = d.HighThreshold
	}
	if c.CriticalThreshold <= 0 {
		c.CriticalThreshold = d.CriticalThreshold
	}
	if c.UrgentThreshold <= 0 {
		c.UrgentThreshold = d.UrgentThreshold
	}
	if c.HighlightThreshold <= 0 {
		c.HighlightThreshold = d.HighlightThreshold
	}
	if c.DecayHalfLife <= 0 {
		c.DecayHalfLife = d.DecayHalfLife
	}
	if c.DecayFloor <= 0 || c.DecayFloor >= 1 {
		c.DecayFloor = d.DecayFloor
	}
	if c.EscalationDelta <= 0 {
		c.EscalationDelta = d.EscalationDelta
	}
	if c.ConvergenceMinSignals <= 0 {
		c.ConvergenceMinSignals = d.ConvergenceMinSignals
	}
	if c.ConvergenceSignalFloor <= 0 {
		c.ConvergenceSignalFloor = d.ConvergenceSignalFloor
	}
	if c.MaxHistoryScores <= 0 {
		c.MaxHistoryScores = d.MaxHistoryScores
	}
	if c.MaxCachedRankings <= 0 {
		c.MaxCachedRankings = d.MaxCachedRankings
	}
	if c.ImpactSaturationUsd <= 0 {
		c.ImpactSaturationUsd = d.ImpactSaturationUsd
	}
	if c.FalsePositiveDiscount <= 0 {
		c.FalsePositiveDiscount = d.FalsePositiveDiscount
	}
}

type cachedRanking struct {
	ranking  models.PriorityRanking
	cachedAt time.Time
}

// Ranker computes and caches per-wallet alert priorities. Safe for concurrent
// use.
type Ranker struct {
	mu      sync.Mutex
	cfg     Config
	cache   map[string]cachedRanking
	history map[string]*models.AlertHistory

	onUrgent event.Emitter[models.PriorityRanking]

	now func() time.Time
}

// New creates a ranker with the given config.
func New(cfg Config) *Ranker {
	cfg.applyDefaults()
	return &Ranker{
		cfg:     cfg,
		cache:   make(map[string]cachedRanking),
		history: make(map[string]*models.AlertHistory),
		now:     time.Now,
	}
}

var shared = instance.NewHolder(func() *Ranker { return New(DefaultConfig()) })

// Shared returns the process-wide ranker.
func Shared() *Ranker { return shared.Get() }

// SetShared replaces the process-wide ranker.
func SetShared(r *Ranker) { shared.Set(r) }

// ResetShared clears the process-wide ranker.
func ResetShared() { shared.Reset() }

// OnUrgent registers a listener fired for every urgent ranking.
func (r *Ranker) OnUrgent(fn func(models.PriorityRanking)) {
	r.onUrgent.Subscribe(fn)
}

// RankOptions tweak one ranking call.
type RankOptions struct {
	// BypassCache forces recomputation. By default a cached ranking is
	// returned when present.
	BypassCache bool
}

// RankAlert computes the priority ranking for one composite result. The
// filter result is optional and discounts the pattern-match factor when the
// wallet is a likely false positive. Cached hits set FromCache.
func (r *Ranker) RankAlert(result *models.CompositeScoreResult, filter *models.FilterResult, opts RankOptions) *models.PriorityRanking {
	if result == nil {
		return nil
	}
	key := util.NormalizeAddress(result.WalletAddress)

	r.mu.Lock()
	if !opts.BypassCache {
		if c, ok := r.cache[key]; ok {
			out := c.ranking
			out.FromCache = true
			r.mu.Unlock()
			return &out
		}
	}
	hist := r.history[key]
	var prior *models.AlertHistory
	if hist != nil {
		cp := *hist
		cp.PreviousScores = append([]float64(nil), hist.PreviousScores...)
		prior = &cp
	}
	r.mu.Unlock()

	ranking := r.compute(result, filter, prior)

	r.mu.Lock()
	h, ok := r.history[key]
	if !ok {
		h = &models.AlertHistory{}
		r.history[key] = h
	}
	h.PreviousScores = append(h.PreviousScores, result.Score)
	if over := len(h.PreviousScores) - r.cfg.MaxHistoryScores; over > 0 {
		h.PreviousScores = append(h.PreviousScores[:0:0], h.PreviousScores[over:]...)
	}
	h.TimesRanked++
	h.LastRankedAt = ranking.RankedAt

	r.cache[key] = cachedRanking{ranking: *ranking, cachedAt: ranking.RankedAt}
	r.evictLocked()
	r.mu.Unlock()

	if ranking.IsUrgent {
		r.onUrgent.Publish(*ranking)
	}
	return ranking
}

// evictLocked drops oldest cache entries over capacity.
func (r *Ranker) evictLocked() {
	for len(r.cache) > r.cfg.MaxCachedRankings {
		oldestKey := ""
		var oldest time.Time
		for k, c := range r.cache {
			if oldestKey == "" || c.cachedAt.Before(oldest) ||
				(c.cachedAt.Equal(oldest) && k < oldestKey) {
				oldestKey, oldest = k, c.cachedAt
			}
		}
		delete(r.cache, oldestKey)
	}
}

func (r *Ranker) compute(result *models.CompositeScoreResult, filter *models.FilterResult, hist *models.AlertHistory) *models.PriorityRanking {
	now := r.now()
	ranking := &models.PriorityRanking{
		WalletAddress: result.WalletAddress,
		RankedAt:      now,
	}

	factors := r.factorScores(result, filter)
	var weightSum float64
	for _, f := range models.AllPriorityFactors {
		weightSum += r.cfg.Weights[f]
	}

	var total float64
	for _, f := range models.AllPriorityFactors {
		w := r.cfg.Weights[f]
		if weightSum > 0 {
			w /= weightSum
		}
		fc := factors[f]
		fc.Weight = w
		fc.WeightedScore = fc.RawScore * w
		total += fc.WeightedScore
		ranking.FactorContributions = append(ranking.FactorContributions, fc)
	}
	ranking.PriorityScore = clamp(total, 0, 100)

	ranking.TimeDecayMultiplier = r.timeDecay(now.Sub(result.AnalyzedAt))
	ranking.AdjustedScore = ranking.PriorityScore * ranking.TimeDecayMultiplier

	ranking.PriorityLevel = r.level(ranking.AdjustedScore)
	ranking.IsUrgent = ranking.AdjustedScore >= r.cfg.UrgentThreshold
	ranking.IsHighlighted = ranking.AdjustedScore >= r.cfg.HighlightThreshold
	ranking.UrgencyReasons = r.urgencyReasons(result, hist)
	if len(ranking.UrgencyReasons) > 0 {
		ranking.IsUrgent = true
	}
	return ranking
}

// factorScores computes the raw per-factor scores with their reasons.
func (r *Ranker) factorScores(result *models.CompositeScoreResult, filter *models.FilterResult) map[models.PriorityFactor]models.FactorContribution {
	out := make(map[models.PriorityFactor]models.FactorContribution, len(models.AllPriorityFactors))

	effective := result.Score
	if result.CalibratedScore != nil {
		effective = *result.CalibratedScore
	}
	out[models.FactorSeverity] = models.FactorContribution{
		Factor:   models.FactorSeverity,
		RawScore: clamp(effective, 0, 100),
		Reason:   fmt.Sprintf("composite suspicion score %.1f (%s)", effective, result.SuspicionLevel),
	}

	var impact float64
	impactReason := "no estimated P&L available"
	if result.EstimatedPnlUsd != nil {
		abs := math.Abs(*result.EstimatedPnlUsd)
		impact = clamp(abs/r.cfg.ImpactSaturationUsd*100, 0, 100)
		impactReason = fmt.Sprintf("estimated P&L magnitude $%.0f", abs)
	}
	out[models.FactorImpact] = models.FactorContribution{
		Factor:   models.FactorImpact,
		RawScore: impact,
		Reason:   impactReason,
	}

	var network float64
	networkReason := "no coordination or sybil signal"
	if result.Cluster != nil {
		network = clamp(result.Cluster.CoordinationScore, 0, 100)
		networkReason = fmt.Sprintf("coordination score %.1f (%s)", result.Cluster.CoordinationScore, result.Cluster.CoordinationType)
	}
	if result.SybilCluster {
		network = math.Max(network, 80)
		networkReason = "wallet belongs to a suspected sybil cluster"
	}
	out[models.FactorNetworkRisk] = models.FactorContribution{
		Factor:   models.FactorNetworkRisk,
		RawScore: network,
		Reason:   networkReason,
	}

	high := r.highSignals(result)
	convergence := clamp(float64(high)/float64(len(models.AllSignalSources))*100, 0, 100)
	out[models.FactorConvergence] = models.FactorContribution{
		Factor:   models.FactorConvergence,
		RawScore: convergence,
		Reason:   fmt.Sprintf("%d of %d signals independently high", high, len(models.AllSignalSources)),
	}

	var pattern float64
	patternReason := "no pattern classification available"
	if result.Pattern != nil {
		pattern = clamp(result.Pattern.RiskScore, 0, 100)
		patternReason = fmt.Sprintf("pattern %s with risk score %.1f", result.Pattern.PrimaryPattern, result.Pattern.RiskScore)
	}
	if filter != nil && filter.IsLikelyFalsePositive {
		pattern *= r.cfg.FalsePositiveDiscount
		patternReason = fmt.Sprintf("discounted as likely false positive (confidence %.2f)", filter.Confidence)
	}
	out[models.FactorPatternMatch] = models.FactorContribution{
		Factor:   models.FactorPatternMatch,
		RawScore: pattern,
		Reason:   patternReason,
	}
	return out
}

// highSignals counts signals whose raw contribution clears the convergence
// floor.
func (r *Ranker) highSignals(result *models.CompositeScoreResult) int {
	n := 0
	for _, c := range result.Contributions {
		if c.RawScore >= r.cfg.ConvergenceSignalFloor {
			n++
		}
	}
	return n
}

// timeDecay maps alert age to a multiplier in [DecayFloor, 1.0] with
// exponential decay toward the floor.
func (r *Ranker) timeDecay(age time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	halfLives := float64(age) / float64(r.cfg.DecayHalfLife)
	decayed := r.cfg.DecayFloor + (1-r.cfg.DecayFloor)*math.Pow(0.5, halfLives)
	return clamp(decayed, r.cfg.DecayFloor, 1)
}

func (r *Ranker) level(score float64) models.PriorityLevel {
	switch {
	case score >= r.cfg.CriticalThreshold:
		return models.PriorityCritical
	case score >= r.cfg.HighThreshold:
		return models.PriorityHigh
	case score >= r.cfg.MediumThreshold:
		return models.PriorityMedium
	}
	return models.PriorityLow
}

// urgencyReasons evaluates the independent urgency triggers.
func (r *Ranker) urgencyReasons(result *models.CompositeScoreResult, hist *models.AlertHistory) []models.UrgencyReason {
	var out []models.UrgencyReason
	if result.SuspicionLevel == models.SuspicionCritical {
		out = append(out, models.UrgencyCriticalScore)
	}
	if result.InsiderIndicator {
		out = append(out, models.UrgencyInsiderIndicator)
	}
	if result.Cluster != nil &&
		(result.Cluster.Severity == models.SeverityHigh || result.Cluster.Severity == models.SeverityCritical) {
		out = append(out, models.UrgencyNetworkDetection)
	}
	if result.SybilCluster {
		out = append(out, models.UrgencySybilCluster)
	}
	if hist != nil && len(hist.PreviousScores) > 0 {
		// Escalation compares against the lowest recent score so a slow
		// climb still registers as one jump.
		lowest := hist.PreviousScores[0]
		for _, s := range hist.PreviousScores {
			if s < lowest {
				lowest = s
			}
		}
		if result.Score-lowest >= r.cfg.EscalationDelta {
			out = append(out, models.UrgencyScoreEscalation)
		}
	}
	if r.highSignals(result) >= r.cfg.ConvergenceMinSignals {
		out = append(out, models.UrgencyMultiSignal)
	}
	return out
}

// History returns a copy of a wallet's ranking history, or nil if never
// ranked.
func (r *Ranker) History(wallet string) *models.AlertHistory {
	key := util.NormalizeAddress(wallet)
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.history[key]
	if !ok {
		return nil
	}
	out := *h
	out.PreviousScores = append([]float64(nil), h.PreviousScores...)
	return &out
}

// RankAlerts batch-ranks composite results, sorts descending by priority
// score with a stable wallet-address tie-break, assigns 1-indexed ranks and
// aggregates counts.
func (r *Ranker) RankAlerts(results []*models.CompositeScoreResult, filters map[string]*models.FilterResult, opts RankOptions) *models.RankedAlerts {
	out := &models.RankedAlerts{ByLevel: make(map[models.PriorityLevel]int)}
	for _, res := range results {
		if res == nil {
			continue
		}
		var filter *models.FilterResult
		if filters != nil {
			filter = filters[util.NormalizeAddress(res.WalletAddress)]
		}
		ranked := r.RankAlert(res, filter, opts)
		out.Alerts = append(out.Alerts, ranked)
	}
	sort.SliceStable(out.Alerts, func(i, j int) bool {
		if out.Alerts[i].PriorityScore != out.Alerts[j].PriorityScore {
			return out.Alerts[i].PriorityScore > out.Alerts[j].PriorityScore
		}
		return util.NormalizeAddress(out.Alerts[i].WalletAddress) < util.NormalizeAddress(out.Alerts[j].WalletAddress)
	})
	for i, a := range out.Alerts {
		a.Rank = i + 1
		out.ByLevel[a.PriorityLevel]++
		if a.IsUrgent {
			out.UrgentCount++
		}
		if a.IsHighlighted {
			out.HighlightedCount++
		}
	}
	return out
}

// ClearCache drops cached rankings but keeps escalation history.
func (r *Ranker) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]cachedRanking)
	r.mu.Unlock()
}

// Reset drops cache and history.
func (r *Ranker) Reset() {
	r.mu.Lock()
	r.cache = make(map[string]cachedRanking)
	r.history = make(map[string]*models.AlertHistory)
	r.mu.Unlock()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
