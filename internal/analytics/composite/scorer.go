// Package composite combines the per-signal analyzer outputs into one
// weighted suspicion score for a wallet.
package composite

import (
	"math"
	"time"

	"WalletWatch/internal/analytics/event"
	"WalletWatch/internal/analytics/instance"
	"WalletWatch/internal/analytics/weights"
	"WalletWatch/internal/domain/models"
	"WalletWatch/pkg/util"
)

// ScoreCalibrator adjusts raw composite scores against historical ground
// truth. Satisfied by the calibration package.
type ScoreCalibrator interface {
	IsCalibrated() bool
	CalibrateScore(score float64) float64
}

// Input carries the sub-results feeding one composite evaluation. Sub-results
// are consumed by copy; absent analyzers score their signal as zero.
type Input struct {
	WalletAddress   string
	Pattern         *models.Classification
	Accuracy        *models.AccuracyAnalysis
	Cluster         *models.VolumeCluster
	WhaleTier       models.WhaleTier
	SybilCluster    bool
	EstimatedPnlUsd *float64
}

// Scorer computes composite suspicion scores under the configured weights.
type Scorer struct {
	weights    *weights.Configurator
	calibrator ScoreCalibrator

	onFlagged event.Emitter[models.CompositeScoreResult]

	now func() time.Time
}

// New creates a scorer bound to a weight configurator. The calibrator is
// optional; without one, scores pass through uncalibrated.
func New(cfg *weights.Configurator, cal ScoreCalibrator) *Scorer {
	if cfg == nil {
		cfg = weights.Shared()
	}
	return &Scorer{weights: cfg, calibrator: cal, now: time.Now}
}

var shared = instance.NewHolder(func() *Scorer { return New(weights.Shared(), nil) })

// Shared returns the process-wide scorer.
func Shared() *Scorer { return shared.Get() }

// SetShared replaces the process-wide scorer.
func SetShared(s *Scorer) { shared.Set(s) }

// ResetShared clears the process-wide scorer.
func ResetShared() { shared.Reset() }

// OnFlagged registers a listener fired when a result crosses the flag
// threshold.
func (s *Scorer) OnFlagged(fn func(models.CompositeScoreResult)) {
	s.onFlagged.Subscribe(fn)
}

// whaleTierScores maps a tier to its raw signal score.
var whaleTierScores = map[models.WhaleTier]float64{
	models.TierNone:      0,
	models.TierNotable:   25,
	models.TierLarge:     50,
	models.TierWhale:     75,
	models.TierMegaWhale: 100,
}

// Score evaluates one wallet. The result is total: missing sub-results score
// zero on their signal rather than erroring.
func (s *Scorer) Score(in Input) (*models.CompositeScoreResult, error) {
	if err := util.ValidateAddress(in.WalletAddress); err != nil {
		return nil, err
	}

	effective, vr := s.weights.EffectiveSignalWeights()
	result := &models.CompositeScoreResult{
		WalletAddress:   in.WalletAddress,
		Pattern:         in.Pattern,
		Accuracy:        in.Accuracy,
		Cluster:         in.Cluster,
		SybilCluster:    in.SybilCluster,
		EstimatedPnlUsd: in.EstimatedPnlUsd,
		AnalyzedAt:      s.now(),
	}
	if !vr.IsValid {
		result.SuspicionLevel = models.SuspicionNone
		return result, nil
	}

	raw := map[models.SignalSource]float64{
		models.SignalTradingPattern:     patternScore(in.Pattern),
		models.SignalHistoricalAccuracy: accuracyScore(in.Accuracy),
		models.SignalVolumeClustering:   clusterScore(in.Cluster),
		models.SignalWhaleActivity:      whaleTierScores[in.WhaleTier],
		models.SignalTimingAnomaly:      timingScore(in.Pattern, in.Accuracy),
	}

	var total float64
	for _, src := range models.AllSignalSources {
		w, enabled := effective[src]
		if !enabled {
			continue
		}
		weighted := raw[src] * w
		total += weighted
		result.Contributions = append(result.Contributions, models.SignalContribution{
			Source:        src,
			RawScore:      raw[src],
			Weight:        w,
			WeightedScore: weighted,
		})
	}
	result.Score = clamp(total, 0, 100)

	effectiveScore := result.Score
	if s.calibrator != nil && s.calibrator.IsCalibrated() {
		cal := s.calibrator.CalibrateScore(result.Score)
		result.CalibratedScore = &cal
		effectiveScore = cal
	}

	result.SuspicionLevel = s.weights.SuspicionLevelFor(effectiveScore)
	result.IsFlagged = effectiveScore >= s.weights.FlagThreshold()
	result.InsiderIndicator = effectiveScore >= s.weights.InsiderThreshold() ||
		(in.Accuracy != nil && in.Accuracy.IsPotentialInsider) ||
		(in.Pattern != nil && in.Pattern.PrimaryPattern == models.PatternPotentialInsider &&
			confidenceAtLeastHigh(in.Pattern.Confidence))

	if result.IsFlagged {
		s.onFlagged.Publish(*result)
	}
	return result, nil
}

func patternScore(p *models.Classification) float64 {
	if p == nil {
		return 0
	}
	score := p.RiskScore
	if p.PrimaryPattern == models.PatternPotentialInsider {
		score = math.Max(score, bestMatchScore(p, models.PatternPotentialInsider))
	}
	return clamp(score, 0, 100)
}

func bestMatchScore(p *models.Classification, t models.PatternType) float64 {
	for _, m := range p.Matches {
		if m.Pattern == t {
			return m.Score
		}
	}
	return 0
}

func accuracyScore(a *models.AccuracyAnalysis) float64 {
	if a == nil {
		return 0
	}
	return clamp(a.SuspicionScore, 0, 100)
}

func clusterScore(c *models.VolumeCluster) float64 {
	if c == nil {
		return 0
	}
	return clamp(c.CoordinationScore, 0, 100)
}

// timingScore blends the wallet's pre-event trading share with a fired
// timing-advantage anomaly from the accuracy scorer.
func timingScore(p *models.Classification, a *models.AccuracyAnalysis) float64 {
	var score float64
	if p != nil {
		score = p.Features.PreEventRatio * 100
	}
	if a != nil {
		for _, an := range a.Anomalies {
			if an.Type == models.AnomalyTimingAdvantage {
				score += 30
				break
			}
		}
	}
	return clamp(score, 0, 100)
}

func confidenceAtLeastHigh(c models.ConfidenceLevel) bool {
	return c == models.ConfidenceHigh || c == models.ConfidenceVeryHigh
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
