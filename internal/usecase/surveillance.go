package usecase

import (
	"context"
	"sync"
	"time"

	"WalletWatch/internal/analytics/accuracy"
	"WalletWatch/internal/analytics/calibration"
	"WalletWatch/internal/analytics/clustering"
	"WalletWatch/internal/analytics/composite"
	"WalletWatch/internal/analytics/pattern"
	"WalletWatch/internal/analytics/ranking"
	"WalletWatch/internal/analytics/volumewindow"
	"WalletWatch/internal/analytics/weights"
	"WalletWatch/internal/analytics/whale"
	"WalletWatch/internal/domain/models"
	domrepo "WalletWatch/internal/domain/repository"
	pkgcache "WalletWatch/pkg/cache"
	"WalletWatch/pkg/util"
)

// SurveillanceAggregator orchestrates the signal analyzers: it buffers
// ingested trades, fans wallet evaluation out across the analyzers, and turns
// the combined result into a ranked alert.
type SurveillanceAggregator struct {
	tracker    *volumewindow.Tracker
	whales     *whale.Calculator
	clusters   *clustering.Analyzer
	patterns   *pattern.Classifier
	accuracy   *accuracy.Scorer
	weights    *weights.Configurator
	scorer     *composite.Scorer
	calibrator *calibration.Calibrator
	ranker     *ranking.Ranker
	metrics    domrepo.Metrics
	history    domrepo.TradeHistory
	sink       func(context.Context, *Evaluation)
	evalCache  pkgcache.Service
	evalTTL    time.Duration

	mu           sync.Mutex
	walletTrades map[string][]models.Trade
	marketTrades map[string][]models.Trade

	maxTradesPerWallet int
	maxTradesPerMarket int
}

// NewSurveillanceAggregator wires the aggregator from its analyzers.
func NewSurveillanceAggregator(
	tracker *volumewindow.Tracker,
	whales *whale.Calculator,
	clusters *clustering.Analyzer,
	patterns *pattern.Classifier,
	acc *accuracy.Scorer,
	cfg *weights.Configurator,
	scorer *composite.Scorer,
	calibrator *calibration.Calibrator,
	ranker *ranking.Ranker,
	metrics domrepo.Metrics,
) *SurveillanceAggregator {
	return &SurveillanceAggregator{
		tracker:            tracker,
		whales:             whales,
		clusters:           clusters,
		patterns:           patterns,
		accuracy:           acc,
		weights:            cfg,
		scorer:             scorer,
		calibrator:         calibrator,
		ranker:             ranker,
		metrics:            metrics,
		walletTrades:       make(map[string][]models.Trade),
		marketTrades:       make(map[string][]models.Trade),
		maxTradesPerWallet: 2000,
		maxTradesPerMarket: 5000,
	}
}

// SetTradeHistory attaches an archive-backed trade history used to backfill
// wallets and markets that have no buffered trades yet.
func (s *SurveillanceAggregator) SetTradeHistory(h domrepo.TradeHistory) { s.history = h }

// SetEvaluationSink attaches a sink invoked for every flagged evaluation,
// typically the alert processor.
func (s *SurveillanceAggregator) SetEvaluationSink(fn func(context.Context, *Evaluation)) {
	s.sink = fn
}

// SetEvaluationCache attaches a shared evaluation cache so repeated lookups
// across instances skip recomputation.
func (s *SurveillanceAggregator) SetEvaluationCache(c pkgcache.Service, ttl time.Duration) {
	s.evalCache = c
	s.evalTTL = ttl
}

// IngestTrade validates and buffers one trade and feeds the volume tracker.
// Invalid wallet addresses error; this is the fail-fast ingestion path.
func (s *SurveillanceAggregator) IngestTrade(ctx context.Context, t *models.Trade) error {
	if err := util.ValidateAddress(t.WalletAddress); err != nil {
		s.metrics.RecordError("ingest_invalid_address")
		return err
	}
	s.tracker.Record(t)
	s.refreshThresholds(t.MarketID)

	key := util.NormalizeAddress(t.WalletAddress)
	s.mu.Lock()
	s.walletTrades[key] = appendBounded(s.walletTrades[key], *t, s.maxTradesPerWallet)
	if t.MarketID != "" {
		s.marketTrades[t.MarketID] = appendBounded(s.marketTrades[t.MarketID], *t, s.maxTradesPerMarket)
	}
	s.mu.Unlock()

	s.metrics.RecordTradeIngested(t.MarketID)
	return nil
}

// refreshThresholds recomputes whale thresholds from the market's trailing
// 24h volume when the cached thresholds expired.
func (s *SurveillanceAggregator) refreshThresholds(marketID string) {
	if marketID == "" || s.whales.Thresholds(marketID) != nil {
		return
	}
	stats := s.tracker.Stats(marketID, 24*time.Hour)
	if stats == nil || stats.TradeCount == 0 {
		return
	}
	s.whales.Calculate(models.MarketSnapshot{
		MarketID:     marketID,
		LiquidityUsd: stats.TotalVolume,
		Volume24hUsd: stats.TotalVolume,
		AvgTradeUsd:  stats.MeanTradeSize,
	})
}

func appendBounded(buf []models.Trade, t models.Trade, cap int) []models.Trade {
	buf = append(buf, t)
	if over := len(buf) - cap; over > 0 {
		buf = append(buf[:0:0], buf[over:]...)
	}
	return buf
}

// EvaluateParams tweak one wallet evaluation.
type EvaluateParams struct {
	// Refresh bypasses the analyzer and ranking caches.
	Refresh bool
}

// Evaluation is the combined outcome of one wallet evaluation.
type Evaluation struct {
	Result  *models.CompositeScoreResult `json:"result"`
	Ranking *models.PriorityRanking      `json:"ranking"`
}

// EvaluateWallet fans the analyzers out concurrently, combines their outputs
// under the configured weights and ranks the alert.
func (s *SurveillanceAggregator) EvaluateWallet(ctx context.Context, wallet string, p EvaluateParams) (*Evaluation, error) {
	if err := util.ValidateAddress(wallet); err != nil {
		return nil, err
	}
	start := time.Now()
	key := util.NormalizeAddress(wallet)

	if !p.Refresh && s.evalCache != nil {
		var cached Evaluation
		if err := s.evalCache.Get(ctx, pkgcache.Key("eval", key), &cached); err == nil {
			s.metrics.RecordCacheLookup("evaluation", true)
			return &cached, nil
		}
		s.metrics.RecordCacheLookup("evaluation", false)
	}

	s.mu.Lock()
	trades := append([]models.Trade(nil), s.walletTrades[key]...)
	s.mu.Unlock()
	if len(trades) == 0 && s.history != nil {
		from, to := start.Add(-30*24*time.Hour), start
		if hist, err := s.history.GetWalletTrades(ctx, key, from, to, s.maxTradesPerWallet); err == nil {
			trades = hist
		}
	}

	dominant := dominantMarket(trades)
	s.mu.Lock()
	marketTrades := append([]models.Trade(nil), s.marketTrades[dominant]...)
	s.mu.Unlock()
	if len(marketTrades) == 0 && dominant != "" && s.history != nil {
		from, to := start.Add(-30*24*time.Hour), start
		if hist, err := s.history.GetMarketTrades(ctx, dominant, from, to, s.maxTradesPerMarket); err == nil {
			marketTrades = hist
		}
	}

	type item struct {
		name string
		val  interface{}
	}
	ch := make(chan item, 3)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		var v *models.Classification
		if p.Refresh {
			v = s.patterns.Classify(wallet, trades)
		} else if v = s.patterns.Cached(wallet); v == nil {
			v = s.patterns.Classify(wallet, trades)
		}
		ch <- item{"pattern", v}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		ch <- item{"accuracy", s.accuracy.Analyze(wallet, accuracy.AnalyzeOptions{Refresh: p.Refresh})}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if len(marketTrades) == 0 {
			ch <- item{"cluster", (*models.ClusterAnalysis)(nil)}
			return
		}
		ch <- item{"cluster", s.clusters.AnalyzeTrades(marketTrades, clustering.AnalyzeOptions{BypassCooldown: p.Refresh})}
	}()

	go func() { wg.Wait(); close(ch) }()

	in := composite.Input{WalletAddress: wallet}
	for it := range ch {
		switch it.name {
		case "pattern":
			if v, ok := it.val.(*models.Classification); ok {
				in.Pattern = v
			}
		case "accuracy":
			if v, ok := it.val.(*models.AccuracyAnalysis); ok {
				in.Accuracy = v
			}
		case "cluster":
			if v, ok := it.val.(*models.ClusterAnalysis); ok && v != nil && v.HasCluster && walletInCluster(v.Cluster, key) {
				in.Cluster = v.Cluster
			}
		}
	}

	in.WhaleTier = s.bestWhaleTier(trades)
	in.SybilCluster = s.inMultipleClusters(key)
	in.EstimatedPnlUsd = s.estimatedPnl(wallet)

	result, err := s.scorer.Score(in)
	if err != nil {
		s.metrics.RecordError("evaluate_wallet")
		return nil, err
	}
	ranked := s.ranker.RankAlert(result, nil, ranking.RankOptions{BypassCache: p.Refresh})

	s.metrics.RecordAlert(string(ranked.PriorityLevel))
	s.metrics.RecordLatency("evaluate_wallet", time.Since(start).Seconds())

	ev := &Evaluation{Result: result, Ranking: ranked}
	if s.evalCache != nil {
		_ = s.evalCache.Set(ctx, pkgcache.Key("eval", key), ev, s.evalTTL)
	}
	if s.sink != nil && result.IsFlagged {
		s.sink(ctx, ev)
	}
	return ev, nil
}

// EvaluateWallets evaluates a batch, isolating per-wallet failures, and ranks
// the survivors.
func (s *SurveillanceAggregator) EvaluateWallets(ctx context.Context, wallets []string, p EvaluateParams) (*models.RankedAlerts, map[string]string) {
	failed := make(map[string]string)
	results := make([]*models.CompositeScoreResult, 0, len(wallets))
	for _, w := range wallets {
		ev, err := s.EvaluateWallet(ctx, w, p)
		if err != nil {
			failed[w] = err.Error()
			continue
		}
		results = append(results, ev.Result)
	}
	return s.ranker.RankAlerts(results, nil, ranking.RankOptions{BypassCache: p.Refresh}), failed
}

// bestWhaleTier classifies every buffered trade against its market thresholds
// and keeps the highest tier.
func (s *SurveillanceAggregator) bestWhaleTier(trades []models.Trade) models.WhaleTier {
	order := map[models.WhaleTier]int{
		models.TierNone:      0,
		models.TierNotable:   1,
		models.TierLarge:     2,
		models.TierWhale:     3,
		models.TierMegaWhale: 4,
	}
	best := models.TierNone
	for i := range trades {
		tier := s.whales.ClassifyTrade(trades[i].MarketID, trades[i].SizeUsd)
		if order[tier] > order[best] {
			best = tier
		}
	}
	return best
}

// inMultipleClusters reports whether the wallet shows up in two or more
// distinct recent clusters, the heuristic for sybil membership.
func (s *SurveillanceAggregator) inMultipleClusters(key string) bool {
	seen := 0
	for _, c := range s.clusters.RecentClusters() {
		for _, w := range c.Wallets {
			if util.NormalizeAddress(w) == key {
				seen++
				break
			}
		}
		if seen >= 2 {
			return true
		}
	}
	return false
}

// estimatedPnl sums realized P&L over the wallet's tracked predictions.
// Nil when no prediction carries one.
func (s *SurveillanceAggregator) estimatedPnl(wallet string) *float64 {
	var (
		sum float64
		any bool
	)
	for _, p := range s.accuracy.Predictions(wallet) {
		if p.RealizedPnl != nil {
			sum += *p.RealizedPnl
			any = true
		}
	}
	if !any {
		return nil
	}
	return &sum
}

func dominantMarket(trades []models.Trade) string {
	counts := make(map[string]int)
	best, bestN := "", 0
	for i := range trades {
		m := trades[i].MarketID
		if m == "" {
			continue
		}
		counts[m]++
		if counts[m] > bestN || (counts[m] == bestN && m < best) {
			best, bestN = m, counts[m]
		}
	}
	return best
}

func walletInCluster(c *models.VolumeCluster, key string) bool {
	if c == nil {
		return false
	}
	for _, w := range c.Wallets {
		if util.NormalizeAddress(w) == key {
			return true
		}
	}
	return false
}

// MarketTrades returns a copy of the buffered trades for one market.
func (s *SurveillanceAggregator) MarketTrades(marketID string) []models.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Trade(nil), s.marketTrades[marketID]...)
}

// Calibrator exposes the underlying calibrator for outcome recording.
func (s *SurveillanceAggregator) Calibrator() *calibration.Calibrator { return s.calibrator }

// Ranker exposes the underlying priority ranker.
func (s *SurveillanceAggregator) Ranker() *ranking.Ranker { return s.ranker }

// Accuracy exposes the underlying accuracy scorer.
func (s *SurveillanceAggregator) Accuracy() *accuracy.Scorer { return s.accuracy }

// Weights exposes the underlying weight configurator.
func (s *SurveillanceAggregator) Weights() *weights.Configurator { return s.weights }

// Clusters exposes the underlying cluster analyzer.
func (s *SurveillanceAggregator) Clusters() *clustering.Analyzer { return s.clusters }
