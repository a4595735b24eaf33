package calibration

import (
	"fmt"
	"math"
	"sort"
	"time"

	"WalletWatch/internal/domain/models"
)

// CalculateCalibration recomputes the full calibration from stored outcomes.
// Count and age retention run here, not at insert time. Too few known
// outcomes is a defined INSUFFICIENT_DATA state, never an error.
func (c *Calibrator) CalculateCalibration() *models.CalibrationResult {
	now := c.now()

	c.mu.Lock()
	c.pruneLocked(now)
	window := append([]models.OutcomeRecord(nil), c.outcomes...)
	c.mu.Unlock()

	known := make([]models.OutcomeRecord, 0, len(window))
	for i := range window {
		if window[i].Outcome.IsKnown() {
			known = append(known, window[i])
		}
	}

	result := &models.CalibrationResult{CalibratedAt: now}
	result.Metrics.SampleCount = len(window)
	result.Metrics.KnownSampleCount = len(known)

	if len(known) < c.cfg.MinSamplesForCalibration {
		result.Metrics.Quality = models.QualityInsufficientData
		result.Recommendations = []models.Recommendation{{
			Type: models.RecommendNone,
			Reason: fmt.Sprintf("gather more data: %d known outcomes, need %d",
				len(known), c.cfg.MinSamplesForCalibration),
		}}
		c.mu.Lock()
		last := *result
		c.last = &last
		c.mu.Unlock()
		return result
	}

	result.Metrics.BrierScore = brierScore(window)
	fillConfusionMetrics(&result.Metrics, known)
	result.Metrics.AUCROC = aucROC(known)
	result.Metrics.ReliabilityCurve = c.reliabilityCurve(known)
	result.Metrics.Quality = c.quality(result.Metrics.BrierScore)
	result.ScoreAdjustmentCurve = adjustmentCurve(result.Metrics.ReliabilityCurve)
	result.OptimizedThreshold = optimizedThreshold(known)
	result.Recommendations = c.recommendations(&result.Metrics, result.OptimizedThreshold)
	result.IsCalibrated = true

	c.mu.Lock()
	last := *result
	c.last = &last
	c.history = append(c.history, models.BrierHistoryEntry{
		Timestamp:   now,
		BrierScore:  result.Metrics.BrierScore,
		SampleCount: len(window),
	})
	if over := len(c.history) - c.cfg.BrierHistoryLimit; over > 0 {
		c.history = append(c.history[:0:0], c.history[over:]...)
	}
	c.mu.Unlock()

	c.onCalibrated.Publish(models.CalibrationEvent{
		Quality:     result.Metrics.Quality,
		BrierScore:  result.Metrics.BrierScore,
		SampleCount: len(window),
	})
	return result
}

// pruneLocked applies age retention, then the storage cap (oldest first).
func (c *Calibrator) pruneLocked(now time.Time) {
	cutoff := now.Add(-c.cfg.MaxOutcomeAge)
	kept := c.outcomes[:0]
	for i := range c.outcomes {
		if !c.outcomes[i].ScoredAt.Before(cutoff) {
			kept = append(kept, c.outcomes[i])
		}
	}
	c.outcomes = kept

	if over := len(c.outcomes) - c.cfg.MaxOutcomesToStore; over > 0 {
		sort.SliceStable(c.outcomes, func(i, j int) bool {
			return c.outcomes[i].ScoredAt.Before(c.outcomes[j].ScoredAt)
		})
		c.outcomes = append(c.outcomes[:0:0], c.outcomes[over:]...)
	}
}

// brierScore is the mean squared error between predicted probability and the
// binary truth. UNKNOWN outcomes count toward the total and score as
// maximally wrong.
func brierScore(window []models.OutcomeRecord) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for i := range window {
		rec := window[i]
		if !rec.Outcome.IsKnown() {
			sum += 1
			continue
		}
		actual := 0.0
		if rec.Outcome.IsPositiveTruth() {
			actual = 1.0
		}
		diff := rec.PredictedProbability - actual
		sum += diff * diff
	}
	return sum / float64(len(window))
}

// fillConfusionMetrics computes precision/recall/F1/TPR/FPR over known
// outcomes. Zero denominators yield 0, never NaN.
func fillConfusionMetrics(m *models.CalibrationMetrics, known []models.OutcomeRecord) {
	var tp, fp, tn, fn float64
	for i := range known {
		switch known[i].Outcome {
		case models.OutcomeTruePositive:
			tp++
		case models.OutcomeFalsePositive:
			fp++
		case models.OutcomeTrueNegative:
			tn++
		case models.OutcomeFalseNegative:
			fn++
		}
	}
	m.Precision = safeDiv(tp, tp+fp)
	m.Recall = safeDiv(tp, tp+fn)
	m.TruePositiveRate = m.Recall
	m.FalsePositiveRate = safeDiv(fp, fp+tn)
	m.F1 = safeDiv(2*m.Precision*m.Recall, m.Precision+m.Recall)
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// aucROC is the rank-based (Mann-Whitney U) area under the ROC curve over
// predicted probability vs binary truth. Tied probabilities share average
// ranks; a class-degenerate sample scores 0.5.
func aucROC(known []models.OutcomeRecord) float64 {
	type obs struct {
		p        float64
		positive bool
	}
	all := make([]obs, 0, len(known))
	var nPos, nNeg float64
	for i := range known {
		pos := known[i].Outcome.IsPositiveTruth()
		if pos {
			nPos++
		} else {
			nNeg++
		}
		all = append(all, obs{p: known[i].PredictedProbability, positive: pos})
	}
	if nPos == 0 || nNeg == 0 {
		return 0.5
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].p < all[j].p })
	var rankSumPos float64
	for i := 0; i < len(all); {
		j := i
		for j < len(all) && all[j].p == all[i].p {
			j++
		}
		// Tied group spans ranks i+1..j; every member takes the average.
		avgRank := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			if all[k].positive {
				rankSumPos += avgRank
			}
		}
		i = j
	}
	u := rankSumPos - nPos*(nPos+1)/2
	return u / (nPos * nNeg)
}

// reliabilityCurve buckets known outcomes by original score and compares
// average predicted probability to the observed positive rate. Every bucket
// is reported, empty or not; thin buckets are flagged low-confidence.
func (c *Calibrator) reliabilityCurve(known []models.OutcomeRecord) []models.ReliabilityPoint {
	buckets := Buckets()
	points := make([]models.ReliabilityPoint, BucketCount)
	sums := make([]float64, BucketCount)
	positives := make([]int, BucketCount)

	for i := range known {
		idx := BucketForScore(known[i].OriginalScore)
		points[idx].SampleCount++
		sums[idx] += known[i].PredictedProbability
		if known[i].Outcome.IsPositiveTruth() {
			positives[idx]++
		}
	}
	for i := range points {
		points[i].Bucket = buckets[i]
		if n := points[i].SampleCount; n > 0 {
			points[i].AvgPredictedProbability = sums[i] / float64(n)
			points[i].ActualPositiveRate = float64(positives[i]) / float64(n)
			points[i].CalibrationError = math.Abs(points[i].AvgPredictedProbability - points[i].ActualPositiveRate)
		}
		points[i].LowConfidence = points[i].SampleCount < c.cfg.MinSamplesPerBucket
	}
	return points
}

func (c *Calibrator) quality(brier float64) models.CalibrationQuality {
	switch {
	case brier <= c.cfg.ExcellentBrier:
		return models.QualityExcellent
	case brier <= c.cfg.GoodBrier:
		return models.QualityGood
	case brier <= c.cfg.FairBrier:
		return models.QualityFair
	}
	return models.QualityPoor
}

// adjustmentCurve derives one calibrated score per bucket midpoint: the
// observed positive rate where a bucket has samples, the identity midpoint
// where it does not, then a running maximum to guarantee monotonicity.
func adjustmentCurve(curve []models.ReliabilityPoint) []float64 {
	targets := make([]float64, BucketCount)
	for i := range curve {
		if curve[i].SampleCount > 0 {
			targets[i] = curve[i].ActualPositiveRate * 100
		} else {
			targets[i] = curve[i].Bucket.Midpoint()
		}
	}
	return monotonicCummax(targets)
}

// monotonicCummax returns a non-decreasing copy via running maximum.
func monotonicCummax(in []float64) []float64 {
	out := make([]float64, len(in))
	var maxSoFar float64
	for i, v := range in {
		if v > maxSoFar {
			maxSoFar = v
		}
		out[i] = maxSoFar
	}
	return out
}

// optimizedThreshold sweeps candidate flag thresholds and picks the one
// maximizing F1 when "flag wallets scoring at or above the threshold" is
// treated as the classifier. Ties keep the lowest threshold.
func optimizedThreshold(known []models.OutcomeRecord) float64 {
	best, bestF1 := 50.0, -1.0
	for t := 5.0; t <= 95; t += 5 {
		var tp, fp, fn float64
		for i := range known {
			predicted := known[i].OriginalScore >= t
			actual := known[i].Outcome.IsPositiveTruth()
			switch {
			case predicted && actual:
				tp++
			case predicted && !actual:
				fp++
			case !predicted && actual:
				fn++
			}
		}
		precision := safeDiv(tp, tp+fp)
		recall := safeDiv(tp, tp+fn)
		f1 := safeDiv(2*precision*recall, precision+recall)
		if f1 > bestF1 {
			bestF1 = f1
			best = t
		}
	}
	return best
}

// recommendations applies the rule table to the computed metrics.
func (c *Calibrator) recommendations(m *models.CalibrationMetrics, optimized float64) []models.Recommendation {
	var out []models.Recommendation

	if m.FalsePositiveRate >= 0.3 {
		out = append(out, models.Recommendation{
			Type:   models.RecommendIncreaseThreshold,
			Reason: fmt.Sprintf("false positive rate %.2f is high; raise the flag threshold", m.FalsePositiveRate),
			Value:  optimized,
		})
	}
	if m.Recall > 0 && m.Recall < 0.5 {
		out = append(out, models.Recommendation{
			Type:   models.RecommendDecreaseThreshold,
			Reason: fmt.Sprintf("recall %.2f is low; too many true positives slip through", m.Recall),
			Value:  optimized,
		})
	}
	if dominantBucketShare(m.ReliabilityCurve) >= 0.6 {
		out = append(out, models.Recommendation{
			Type:   models.RecommendRecalibrate,
			Reason: "one score bucket holds most samples; bucket population is skewed",
		})
	}
	if len(out) == 0 {
		out = append(out, models.Recommendation{
			Type:   models.RecommendNone,
			Reason: "calibration is healthy; no adjustment recommended",
		})
	}
	return out
}

func dominantBucketShare(curve []models.ReliabilityPoint) float64 {
	total, maxCount := 0, 0
	for i := range curve {
		total += curve[i].SampleCount
		if curve[i].SampleCount > maxCount {
			maxCount = curve[i].SampleCount
		}
	}
	if total == 0 {
		return 0
	}
	return float64(maxCount) / float64(total)
}
