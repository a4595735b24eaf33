// Package accuracy tracks per-wallet prediction outcomes and scores their
// historical accuracy: windowed raw/weighted accuracy, Brier score, trend,
// anomaly detection, and insider suspicion.
package accuracy

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"WalletWatch/internal/analytics/event"
	"WalletWatch/internal/analytics/instance"
	"WalletWatch/internal/domain/models"
	"WalletWatch/pkg/util"
)

// Config tunes the scorer.
type Config struct {
	// MinPredictionsForAnalysis is the resolved-prediction floor below which
	// analysis reports tier UNKNOWN with zero suspicion.
	MinPredictionsForAnalysis int
	// MaxPredictionsPerWallet caps per-wallet storage; oldest (by prediction
	// timestamp) are evicted first.
	MaxPredictionsPerWallet int
	// MinPredictionsForHighConfidence gates CRITICAL suspicion and the
	// insider flag; small samples can never flag.
	MinPredictionsForHighConfidence int
	// MinSamplesPerCategory gates category breakdown rows and the
	// category-expertise anomaly.
	MinSamplesPerCategory int
	// ExceptionalAccuracyThreshold fires the exceptional_accuracy anomaly.
	ExceptionalAccuracyThreshold float64
	// TrendBand is the symmetric threshold separating improving/declining
	// from stable, in accuracy points.
	TrendBand float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinPredictionsForAnalysis:       10,
		MaxPredictionsPerWallet:         500,
		MinPredictionsForHighConfidence: 25,
		MinSamplesPerCategory:           5,
		ExceptionalAccuracyThreshold:    90,
		TrendBand:                       10,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MinPredictionsForAnalysis <= 0 {
		c.MinPredictionsForAnalysis = d.MinPredictionsForAnalysis
	}
	if c.MaxPredictionsPerWallet <= 0 {
		c.MaxPredictionsPerWallet = d.MaxPredictionsPerWallet
	}
	if c.MinPredictionsForHighConfidence <= 0 {
		c.MinPredictionsForHighConfidence = d.MinPredictionsForHighConfidence
	}
	if c.MinSamplesPerCategory <= 0 {
		c.MinSamplesPerCategory = d.MinSamplesPerCategory
	}
	if c.ExceptionalAccuracyThreshold <= 0 {
		c.ExceptionalAccuracyThreshold = d.ExceptionalAccuracyThreshold
	}
	if c.TrendBand <= 0 {
		c.TrendBand = d.TrendBand
	}
}

type walletState struct {
	predictions map[string]models.TrackedPrediction
}

// Scorer owns prediction storage and analysis caching for all wallets.
// Safe for concurrent use.
type Scorer struct {
	mu      sync.Mutex
	cfg     Config
	wallets map[string]*walletState

	cache       map[string]*models.AccuracyAnalysis
	gens        map[string]uint64
	cacheHits   int
	cacheMisses int

	onPotentialInsider event.Emitter[models.AccuracyAnalysis]

	now func() time.Time
}

// New creates a scorer with the given config.
func New(cfg Config) *Scorer {
	cfg.applyDefaults()
	return &Scorer{
		cfg:     cfg,
		wallets: make(map[string]*walletState),
		cache:   make(map[string]*models.AccuracyAnalysis),
		gens:    make(map[string]uint64),
		now:     time.Now,
	}
}

var shared = instance.NewHolder(func() *Scorer { return New(DefaultConfig()) })

// Shared returns the process-wide scorer.
func Shared() *Scorer { return shared.Get() }

// SetShared replaces the process-wide scorer.
func SetShared(s *Scorer) { shared.Set(s) }

// ResetShared clears the process-wide scorer.
func ResetShared() { shared.Reset() }

// OnPotentialInsider registers a listener fired when an analysis flags a
// wallet as a potential insider.
func (s *Scorer) OnPotentialInsider(fn func(models.AccuracyAnalysis)) {
	s.onPotentialInsider.Subscribe(fn)
}

// AddPrediction upserts a prediction keyed by (wallet, predictionId):
// re-adding the same id overwrites in place. Invalid wallet addresses error;
// this is the fail-fast ingestion path. The wallet's analysis cache is
// invalidated.
func (s *Scorer) AddPrediction(p models.TrackedPrediction) error {
	if err := util.ValidateAddress(p.WalletAddress); err != nil {
		return err
	}
	if p.PredictionID == "" {
		return fmt.Errorf("prediction id is required")
	}
	if p.Outcome == "" {
		p.Outcome = models.PredictionPending
	}
	key := util.NormalizeAddress(p.WalletAddress)

	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.wallets[key]
	if !ok {
		ws = &walletState{predictions: make(map[string]models.TrackedPrediction)}
		s.wallets[key] = ws
	}
	ws.predictions[p.PredictionID] = p
	s.trimLocked(ws)
	s.invalidateLocked(key)
	return nil
}

// UpdatePredictionOutcome resolves a pending prediction. Already-resolved
// predictions are left untouched: resolved history is immutable. Returns the
// updated prediction, or nil when the prediction is unknown or not pending.
func (s *Scorer) UpdatePredictionOutcome(wallet, predictionID string, outcome models.PredictionOutcome, realizedPnl *float64) *models.TrackedPrediction {
	if outcome != models.PredictionCorrect && outcome != models.PredictionIncorrect && outcome != models.PredictionCancelled {
		return nil
	}
	key := util.NormalizeAddress(wallet)

	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.wallets[key]
	if !ok {
		return nil
	}
	p, ok := ws.predictions[predictionID]
	if !ok || p.Outcome != models.PredictionPending {
		return nil
	}
	p.Outcome = outcome
	now := s.now()
	p.ResolutionTimestamp = &now
	if realizedPnl != nil {
		p.RealizedPnl = realizedPnl
	}
	ws.predictions[predictionID] = p
	s.invalidateLocked(key)
	return &p
}

// PendingMarkets lists market ids that still carry pending predictions,
// sorted for determinism.
func (s *Scorer) PendingMarkets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for _, ws := range s.wallets {
		for _, p := range ws.predictions {
			if p.Outcome == models.PredictionPending && p.MarketID != "" {
				seen[p.MarketID] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// ResolveMarket resolves every pending prediction on the market against the
// final outcome and returns how many predictions were resolved.
func (s *Scorer) ResolveMarket(marketID, actualOutcome string, resolvedAt time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	resolved := 0
	for key, ws := range s.wallets {
		changed := false
		for id, p := range ws.predictions {
			if p.MarketID != marketID || p.Outcome != models.PredictionPending {
				continue
			}
			p.ActualOutcome = actualOutcome
			if p.PredictedOutcome == actualOutcome {
				p.Outcome = models.PredictionCorrect
			} else {
				p.Outcome = models.PredictionIncorrect
			}
			at := resolvedAt
			p.ResolutionTimestamp = &at
			ws.predictions[id] = p
			resolved++
			changed = true
		}
		if changed {
			s.invalidateLocked(key)
		}
	}
	return resolved
}

// Predictions returns a copy of a wallet's tracked predictions, newest first.
// Unknown wallets return an empty slice.
func (s *Scorer) Predictions(wallet string) []models.TrackedPrediction {
	key := util.NormalizeAddress(wallet)
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.wallets[key]
	if !ok {
		return nil
	}
	out := make([]models.TrackedPrediction, 0, len(ws.predictions))
	for _, p := range ws.predictions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PredictionTimestamp.After(out[j].PredictionTimestamp)
	})
	return out
}

// AnalyzeOptions tweak one analysis call.
type AnalyzeOptions struct {
	// Refresh forces recomputation even when a cached analysis exists.
	Refresh bool
}

// Analyze computes (or returns cached) accuracy analysis for one wallet.
// Below the resolved-prediction floor the result has tier UNKNOWN and zero
// suspicion; this is a defined state, not an error.
func (s *Scorer) Analyze(wallet string, opts AnalyzeOptions) *models.AccuracyAnalysis {
	key := util.NormalizeAddress(wallet)

	s.mu.Lock()
	if !opts.Refresh {
		if cached, ok := s.cache[key]; ok {
			s.cacheHits++
			out := *cached
			out.FromCache = true
			s.mu.Unlock()
			return &out
		}
	}
	s.cacheMisses++
	gen := s.gens[key]
	ws := s.wallets[key]
	var preds []models.TrackedPrediction
	if ws != nil {
		preds = make([]models.TrackedPrediction, 0, len(ws.predictions))
		for _, p := range ws.predictions {
			preds = append(preds, p)
		}
	}
	s.mu.Unlock()

	analysis := s.compute(wallet, preds)

	s.mu.Lock()
	// A mutation may have invalidated the wallet while compute ran unlocked;
	// caching the result then would resurrect a stale analysis.
	if s.gens[key] == gen {
		cached := *analysis
		s.cache[key] = &cached
	}
	s.mu.Unlock()

	if analysis.IsPotentialInsider {
		s.onPotentialInsider.Publish(*analysis)
	}
	return analysis
}

// BatchAnalyzeOptions tweak a batch analysis pass.
type BatchAnalyzeOptions struct {
	// CalculateRank assigns 1-indexed ranks to wallets meeting the minimum
	// sample count, ordered by all-time raw accuracy; ties keep input order.
	CalculateRank bool
}

// BatchAnalyze analyzes several wallets independently. Per-wallet failures
// (invalid addresses) are collected and never abort the batch.
func (s *Scorer) BatchAnalyze(wallets []string, opts BatchAnalyzeOptions) *models.BatchAccuracyResult {
	res := &models.BatchAccuracyResult{
		Analyses: make(map[string]*models.AccuracyAnalysis),
		Failed:   make(map[string]string),
	}
	order := make([]string, 0, len(wallets))
	for _, w := range wallets {
		if err := util.ValidateAddress(w); err != nil {
			res.Failed[w] = err.Error()
			continue
		}
		res.Analyses[w] = s.Analyze(w, AnalyzeOptions{})
		order = append(order, w)
	}
	if opts.CalculateRank {
		eligible := make([]string, 0, len(order))
		for _, w := range order {
			if res.Analyses[w].ResolvedCount >= s.cfg.MinPredictionsForAnalysis {
				eligible = append(eligible, w)
			}
		}
		sort.SliceStable(eligible, func(i, j int) bool {
			ai := res.Analyses[eligible[i]].Windows[models.WindowAllTime].RawAccuracy
			aj := res.Analyses[eligible[j]].Windows[models.WindowAllTime].RawAccuracy
			return ai > aj
		})
		for i, w := range eligible {
			res.Analyses[w].Rank = i + 1
		}
		res.Ranked = eligible
	}
	return res
}

// Summary reports scorer-wide counters.
type Summary struct {
	TrackedWallets   int     `json:"trackedWallets"`
	TotalPredictions int     `json:"totalPredictions"`
	CachedAnalyses   int     `json:"cachedAnalyses"`
	CacheHitRate     float64 `json:"cacheHitRate"`
}

// Stats returns scorer-wide counters including the cache hit rate.
func (s *Scorer) Stats() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, ws := range s.wallets {
		total += len(ws.predictions)
	}
	sum := Summary{
		TrackedWallets:   len(s.wallets),
		TotalPredictions: total,
		CachedAnalyses:   len(s.cache),
	}
	if lookups := s.cacheHits + s.cacheMisses; lookups > 0 {
		sum.CacheHitRate = float64(s.cacheHits) / float64(lookups)
	}
	return sum
}

// Reset drops all stored predictions and cached analyses.
func (s *Scorer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.wallets {
		s.gens[key]++
	}
	s.wallets = make(map[string]*walletState)
	s.cache = make(map[string]*models.AccuracyAnalysis)
	s.cacheHits, s.cacheMisses = 0, 0
}

// invalidateLocked drops the wallet's cached analysis and bumps its
// generation so an in-flight Analyze cannot cache a pre-mutation snapshot.
func (s *Scorer) invalidateLocked(key string) {
	delete(s.cache, key)
	s.gens[key]++
}

// trimLocked drops the oldest predictions over the per-wallet cap.
func (s *Scorer) trimLocked(ws *walletState) {
	over := len(ws.predictions) - s.cfg.MaxPredictionsPerWallet
	if over <= 0 {
		return
	}
	ids := make([]string, 0, len(ws.predictions))
	for id := range ws.predictions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti := ws.predictions[ids[i]].PredictionTimestamp
		tj := ws.predictions[ids[j]].PredictionTimestamp
		if ti.Equal(tj) {
			return ids[i] < ids[j]
		}
		return ti.Before(tj)
	})
	for _, id := range ids[:over] {
		delete(ws.predictions, id)
	}
}
