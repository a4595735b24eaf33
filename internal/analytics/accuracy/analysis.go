package accuracy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"WalletWatch/internal/domain/models"
)

// compute builds the full analysis for a wallet's predictions.
func (s *Scorer) compute(wallet string, preds []models.TrackedPrediction) *models.AccuracyAnalysis {
	analysis := &models.AccuracyAnalysis{
		WalletAddress:    wallet,
		TotalPredictions: len(preds),
		Tier:             models.TierUnknown,
		SuspicionLevel:   models.SuspicionNone,
		Trend:            models.TrendStable,
		Windows:          make(map[models.AccuracyWindow]models.WindowAccuracy),
		AnalyzedAt:       s.now(),
	}

	resolved := make([]models.TrackedPrediction, 0, len(preds))
	for i := range preds {
		switch preds[i].Outcome {
		case models.PredictionPending:
			analysis.PendingCount++
		case models.PredictionCorrect, models.PredictionIncorrect:
			resolved = append(resolved, preds[i])
		}
	}
	analysis.ResolvedCount = len(resolved)

	if len(resolved) < s.cfg.MinPredictionsForAnalysis {
		return analysis
	}

	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].PredictionTimestamp.Before(resolved[j].PredictionTimestamp)
	})

	latest := resolved[len(resolved)-1].PredictionTimestamp
	for _, w := range models.AllAccuracyWindows {
		analysis.Windows[w] = windowAccuracy(w, resolved, latest)
	}

	allTime := analysis.Windows[models.WindowAllTime]
	analysis.Tier = tierFor(allTime.RawAccuracy)
	analysis.Categories, analysis.TopCategories = s.categoryBreakdown(resolved)
	analysis.Trend = s.trend(resolved)
	analysis.Anomalies = s.detectAnomalies(resolved, allTime)

	s.scoreSuspicion(analysis)
	return analysis
}

// windowAccuracy computes accuracy statistics over one trailing window,
// anchored at the latest resolved prediction.
func windowAccuracy(w models.AccuracyWindow, resolved []models.TrackedPrediction, latest time.Time) models.WindowAccuracy {
	wa := models.WindowAccuracy{Window: w}
	var cutoff time.Time
	if d := w.Duration(); d > 0 {
		cutoff = latest.Add(-d)
	}

	var (
		weightSum, correctWeight float64
		brierSum                 float64
		hcCorrect                int
	)
	for i := range resolved {
		p := resolved[i]
		if !cutoff.IsZero() && p.PredictionTimestamp.Before(cutoff) {
			continue
		}
		wa.ResolvedCount++
		correct := p.Outcome == models.PredictionCorrect
		if correct {
			wa.CorrectCount++
		}

		cw, ok := models.ConvictionWeights[p.Conviction]
		if !ok {
			cw = models.ConvictionWeights[models.ConvictionMedium]
		}
		weightSum += cw
		if correct {
			correctWeight += cw
		}

		if p.Conviction == models.ConvictionHigh || p.Conviction == models.ConvictionVeryHigh {
			wa.HighConvictionCount++
			if correct {
				hcCorrect++
			}
		}

		actual := 0.0
		if correct {
			actual = 1.0
		}
		diff := p.EntryProbability - actual
		brierSum += diff * diff
	}

	if wa.ResolvedCount == 0 {
		return wa
	}
	wa.RawAccuracy = float64(wa.CorrectCount) / float64(wa.ResolvedCount) * 100
	if weightSum > 0 {
		wa.WeightedAccuracy = correctWeight / weightSum * 100
	}
	if wa.HighConvictionCount > 0 {
		wa.HighConvictionAccuracy = float64(hcCorrect) / float64(wa.HighConvictionCount) * 100
	}
	wa.BrierScore = brierSum / float64(wa.ResolvedCount)
	return wa
}

// tierFor buckets an all-time raw accuracy. Boundaries are inclusive on the
// upper tier: exactly 90 is EXCEPTIONAL, exactly 80 is EXCELLENT.
func tierFor(rawAccuracy float64) models.AccuracyTier {
	switch {
	case rawAccuracy >= 90:
		return models.TierExceptional
	case rawAccuracy >= 80:
		return models.TierExcellent
	case rawAccuracy >= 70:
		return models.TierVeryGood
	case rawAccuracy >= 60:
		return models.TierGood
	case rawAccuracy >= 55:
		return models.TierAboveAverage
	case rawAccuracy >= 45:
		return models.TierAverage
	case rawAccuracy >= 42:
		return models.TierBelowAverage
	case rawAccuracy >= 40:
		return models.TierPoor
	}
	return models.TierVeryPoor
}

// categoryBreakdown computes accuracy per market category. Predictions with
// no category are excluded, not lumped into an "unknown" bucket.
func (s *Scorer) categoryBreakdown(resolved []models.TrackedPrediction) (all, top []models.CategoryAccuracy) {
	type agg struct{ total, correct int }
	byCat := make(map[string]*agg)
	for i := range resolved {
		cat := resolved[i].MarketCategory
		if cat == "" {
			continue
		}
		a, ok := byCat[cat]
		if !ok {
			a = &agg{}
			byCat[cat] = a
		}
		a.total++
		if resolved[i].Outcome == models.PredictionCorrect {
			a.correct++
		}
	}

	names := make([]string, 0, len(byCat))
	for name := range byCat {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a := byCat[name]
		all = append(all, models.CategoryAccuracy{
			Category:      name,
			ResolvedCount: a.total,
			Accuracy:      float64(a.correct) / float64(a.total) * 100,
		})
	}

	eligible := make([]models.CategoryAccuracy, 0, len(all))
	for _, c := range all {
		if c.ResolvedCount >= s.cfg.MinSamplesPerCategory {
			eligible = append(eligible, c)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].Accuracy > eligible[j].Accuracy })
	if len(eligible) > 3 {
		eligible = eligible[:3]
	}
	return all, eligible
}

// trend compares the most recent third of resolved predictions against the
// rest; movement beyond the symmetric band is improving/declining.
func (s *Scorer) trend(resolved []models.TrackedPrediction) models.TrendDirection {
	n := len(resolved)
	recentN := n / 3
	if recentN < 5 {
		return models.TrendStable
	}
	hist := resolved[:n-recentN]
	recent := resolved[n-recentN:]

	histAcc := rawAccuracyOf(hist)
	recentAcc := rawAccuracyOf(recent)
	switch {
	case recentAcc-histAcc >= s.cfg.TrendBand:
		return models.TrendImproving
	case histAcc-recentAcc >= s.cfg.TrendBand:
		return models.TrendDeclining
	}
	return models.TrendStable
}

func rawAccuracyOf(preds []models.TrackedPrediction) float64 {
	if len(preds) == 0 {
		return 0
	}
	correct := 0
	for i := range preds {
		if preds[i].Outcome == models.PredictionCorrect {
			correct++
		}
	}
	return float64(correct) / float64(len(preds)) * 100
}

// detectAnomalies runs the independent anomaly detectors; all may fire.
func (s *Scorer) detectAnomalies(resolved []models.TrackedPrediction, allTime models.WindowAccuracy) []models.AccuracyAnomaly {
	var out []models.AccuracyAnomaly

	if allTime.RawAccuracy >= s.cfg.ExceptionalAccuracyThreshold &&
		allTime.ResolvedCount >= s.cfg.MinPredictionsForAnalysis {
		out = append(out, models.AccuracyAnomaly{
			Type:        models.AnomalyExceptionalAccuracy,
			Description: fmt.Sprintf("accuracy %.1f%% over %d resolved predictions", allTime.RawAccuracy, allTime.ResolvedCount),
			Severity:    math.Min((allTime.RawAccuracy-s.cfg.ExceptionalAccuracyThreshold)/10+0.5, 1),
		})
	}

	if allTime.HighConvictionCount >= 5 && allTime.HighConvictionAccuracy >= 99 {
		out = append(out, models.AccuracyAnomaly{
			Type:        models.AnomalyPerfectHighConviction,
			Description: fmt.Sprintf("%d high-conviction predictions, %.1f%% correct", allTime.HighConvictionCount, allTime.HighConvictionAccuracy),
			Severity:    1,
		})
	}

	if a := s.categoryExpertise(resolved, allTime.RawAccuracy); a != nil {
		out = append(out, *a)
	}
	if a := s.timingAdvantage(resolved, allTime.RawAccuracy); a != nil {
		out = append(out, *a)
	}
	if a := s.contrarianSuccess(resolved); a != nil {
		out = append(out, *a)
	}
	return out
}

func (s *Scorer) categoryExpertise(resolved []models.TrackedPrediction, overall float64) *models.AccuracyAnomaly {
	all, _ := s.categoryBreakdown(resolved)
	for _, c := range all {
		if c.ResolvedCount >= s.cfg.MinSamplesPerCategory && c.Accuracy >= overall+25 {
			return &models.AccuracyAnomaly{
				Type:        models.AnomalyCategoryExpertise,
				Description: fmt.Sprintf("category %q at %.1f%% vs %.1f%% overall", c.Category, c.Accuracy, overall),
				Severity:    math.Min((c.Accuracy-overall)/50, 1),
			}
		}
	}
	return nil
}

// timingAdvantage fires when predictions made shortly before resolution are
// disproportionately correct.
func (s *Scorer) timingAdvantage(resolved []models.TrackedPrediction, overall float64) *models.AccuracyAnomaly {
	const lateWindow = 48 * time.Hour
	var late []models.TrackedPrediction
	for i := range resolved {
		p := resolved[i]
		if p.ResolutionTimestamp == nil {
			continue
		}
		if p.ResolutionTimestamp.Sub(p.PredictionTimestamp) <= lateWindow {
			late = append(late, p)
		}
	}
	if len(late) < 5 {
		return nil
	}
	lateAcc := rawAccuracyOf(late)
	if lateAcc < overall+20 {
		return nil
	}
	return &models.AccuracyAnomaly{
		Type:        models.AnomalyTimingAdvantage,
		Description: fmt.Sprintf("%d late predictions at %.1f%% vs %.1f%% overall", len(late), lateAcc, overall),
		Severity:    math.Min((lateAcc-overall)/40, 1),
	}
}

// contrarianSuccess fires when low-entry-probability bets win far more often
// than the market priced.
func (s *Scorer) contrarianSuccess(resolved []models.TrackedPrediction) *models.AccuracyAnomaly {
	var contrarian []models.TrackedPrediction
	for i := range resolved {
		if resolved[i].EntryProbability > 0 && resolved[i].EntryProbability <= 0.35 {
			contrarian = append(contrarian, resolved[i])
		}
	}
	if len(contrarian) < 5 {
		return nil
	}
	acc := rawAccuracyOf(contrarian)
	if acc < 65 {
		return nil
	}
	return &models.AccuracyAnomaly{
		Type:        models.AnomalyContrarianSuccess,
		Description: fmt.Sprintf("%d contrarian bets at %.1f%% accuracy", len(contrarian), acc),
		Severity:    math.Min(acc/100, 1),
	}
}

// scoreSuspicion derives suspicion score/level and the insider flag from
// tier, anomaly count, and sample sufficiency.
func (s *Scorer) scoreSuspicion(a *models.AccuracyAnalysis) {
	var score float64
	switch a.Tier {
	case models.TierExceptional:
		score += 40
	case models.TierExcellent:
		score += 25
	case models.TierVeryGood:
		score += 15
	}
	anomalyPoints := float64(len(a.Anomalies)) * 15
	if anomalyPoints > 60 {
		anomalyPoints = 60
	}
	score += anomalyPoints
	a.SuspicionScore = math.Min(score, 100)

	highConfidence := a.ResolvedCount >= s.cfg.MinPredictionsForHighConfidence
	switch {
	case a.SuspicionScore >= 75 && highConfidence:
		a.SuspicionLevel = models.SuspicionCritical
	case a.SuspicionScore >= 50:
		a.SuspicionLevel = models.SuspicionHigh
	case a.SuspicionScore >= 25:
		a.SuspicionLevel = models.SuspicionLow
	default:
		a.SuspicionLevel = models.SuspicionNone
	}
	// CRITICAL requires a sufficient sample; cap at HIGH otherwise.
	if !highConfidence && a.SuspicionLevel == models.SuspicionCritical {
		a.SuspicionLevel = models.SuspicionHigh
	}
	a.IsPotentialInsider = highConfidence &&
		(a.SuspicionLevel == models.SuspicionCritical ||
			(a.SuspicionLevel == models.SuspicionHigh && len(a.Anomalies) >= 2))
}
