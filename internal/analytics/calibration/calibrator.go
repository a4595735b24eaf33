// Package calibration validates composite suspicion scores against labeled
// ground-truth outcomes and produces a monotonic score-adjustment curve plus
// threshold recommendations.
package calibration

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"WalletWatch/internal/analytics/event"
	"WalletWatch/internal/analytics/instance"
	"WalletWatch/internal/domain/models"
	"WalletWatch/pkg/util"
)

// BucketCount partitions [0,100] into contiguous score buckets.
const BucketCount = 10

// Config tunes the calibrator.
type Config struct {
	// MinSamplesForCalibration is the known-outcome floor below which
	// calibration reports INSUFFICIENT_DATA.
	MinSamplesForCalibration int
	// MaxOutcomesToStore caps stored outcomes; oldest pruned at calibration
	// time, not at insert time.
	MaxOutcomesToStore int
	// MaxOutcomeAge excludes stale outcomes from calibration and prunes them.
	MaxOutcomeAge time.Duration
	// MinSamplesPerBucket flags reliability buckets as low-confidence.
	MinSamplesPerBucket int
	// BrierHistoryLimit bounds the Brier-score history ring.
	BrierHistoryLimit int
	// Quality cutpoints on the Brier score, ascending.
	ExcellentBrier float64
	GoodBrier      float64
	FairBrier      float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinSamplesForCalibration: 50,
		MaxOutcomesToStore:       10_000,
		MaxOutcomeAge:            90 * 24 * time.Hour,
		MinSamplesPerBucket:      10,
		BrierHistoryLimit:        100,
		ExcellentBrier:           0.10,
		GoodBrier:                0.20,
		FairBrier:                0.30,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MinSamplesForCalibration <= 0 {
		c.MinSamplesForCalibration = d.MinSamplesForCalibration
	}
	if c.MaxOutcomesToStore <= 0 {
		c.MaxOutcomesToStore = d.MaxOutcomesToStore
	}
	if c.MaxOutcomeAge <= 0 {
		c.MaxOutcomeAge = d.MaxOutcomeAge
	}
	if c.MinSamplesPerBucket <= 0 {
		c.MinSamplesPerBucket = d.MinSamplesPerBucket
	}
	if c.BrierHistoryLimit <= 0 {
		c.BrierHistoryLimit = d.BrierHistoryLimit
	}
	if c.ExcellentBrier <= 0 {
		c.ExcellentBrier = d.ExcellentBrier
	}
	if c.GoodBrier <= 0 {
		c.GoodBrier = d.GoodBrier
	}
	if c.FairBrier <= 0 {
		c.FairBrier = d.FairBrier
	}
}

// Calibrator owns the outcome store, the last calibration, and the Brier
// history. Safe for concurrent use.
type Calibrator struct {
	mu       sync.Mutex
	cfg      Config
	outcomes []models.OutcomeRecord
	history  []models.BrierHistoryEntry
	last     *models.CalibrationResult

	onCalibrated event.Emitter[models.CalibrationEvent]

	now func() time.Time
}

// New creates a calibrator with the given config.
func New(cfg Config) *Calibrator {
	cfg.applyDefaults()
	return &Calibrator{cfg: cfg, now: time.Now}
}

var shared = instance.NewHolder(func() *Calibrator { return New(DefaultConfig()) })

// Shared returns the process-wide calibrator.
func Shared() *Calibrator { return shared.Get() }

// SetShared replaces the process-wide calibrator.
func SetShared(c *Calibrator) { shared.Set(c) }

// ResetShared clears the process-wide calibrator.
func ResetShared() { shared.Reset() }

// OnCalibrated registers a listener fired after each completed calibration.
func (c *Calibrator) OnCalibrated(fn func(models.CalibrationEvent)) {
	c.onCalibrated.Subscribe(fn)
}

// Buckets returns the 10 contiguous score buckets partitioning [0,100].
func Buckets() []models.ScoreBucket {
	out := make([]models.ScoreBucket, BucketCount)
	for i := range out {
		out[i] = models.ScoreBucket{Min: float64(i * 10), Max: float64((i + 1) * 10)}
	}
	return out
}

// BucketForScore maps a (clamped) score to its bucket index. Scores of 100
// land in the final bucket.
func BucketForScore(score float64) int {
	score = clamp(score, 0, 100)
	idx := int(score / 10)
	if idx >= BucketCount {
		idx = BucketCount - 1
	}
	return idx
}

// GetBucketForScore returns the bucket a score falls in.
func GetBucketForScore(score float64) models.ScoreBucket {
	return Buckets()[BucketForScore(score)]
}

// ScoreToProbability maps a score to [0,1], clamping out-of-range input.
func ScoreToProbability(score float64) float64 {
	return clamp(score, 0, 100) / 100
}

// ProbabilityToScore maps a probability to [0,100], clamping out-of-range
// input.
func ProbabilityToScore(p float64) float64 {
	return clamp(p, 0, 1) * 100
}

// RecordOutcome stores one labeled outcome. Invalid wallet addresses error;
// this is the fail-fast ingestion path. Scores are clamped to [0,100] and a
// zero scoredAt defaults to now. Storage caps apply at calibration time.
func (c *Calibrator) RecordOutcome(wallet string, score float64, outcome models.OutcomeLabel, scoredAt time.Time, metadata map[string]interface{}) (*models.OutcomeRecord, error) {
	if err := util.ValidateAddress(wallet); err != nil {
		return nil, err
	}
	if outcome == "" {
		outcome = models.OutcomeUnknown
	}
	if !outcome.IsKnown() && outcome != models.OutcomeUnknown {
		return nil, fmt.Errorf("unknown outcome label: %s", outcome)
	}
	if scoredAt.IsZero() {
		scoredAt = c.now()
	}
	score = clamp(score, 0, 100)

	var meta map[string]interface{}
	if len(metadata) > 0 {
		meta = make(map[string]interface{}, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
	}
	rec := models.OutcomeRecord{
		ID:                   uuid.NewString(),
		WalletAddress:        util.NormalizeAddress(wallet),
		OriginalScore:        score,
		PredictedProbability: ScoreToProbability(score),
		Outcome:              outcome,
		ScoredAt:             scoredAt,
		Metadata:             meta,
	}

	c.mu.Lock()
	c.outcomes = append(c.outcomes, rec)
	c.mu.Unlock()
	return &rec, nil
}

// UpdateOutcome relabels the most recent (by scoredAt) record for a wallet.
// Returns nil when the wallet has no records; unknown wallets never error.
func (c *Calibrator) UpdateOutcome(wallet string, outcome models.OutcomeLabel) *models.OutcomeRecord {
	key := util.NormalizeAddress(wallet)
	c.mu.Lock()
	defer c.mu.Unlock()
	best := -1
	for i := range c.outcomes {
		if c.outcomes[i].WalletAddress != key {
			continue
		}
		if best < 0 || c.outcomes[i].ScoredAt.After(c.outcomes[best].ScoredAt) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	c.outcomes[best].Outcome = outcome
	rec := c.outcomes[best]
	return &rec
}

// UpdateOutcomeByID relabels one record by id, or returns nil if unknown.
func (c *Calibrator) UpdateOutcomeByID(id string, outcome models.OutcomeLabel) *models.OutcomeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.outcomes {
		if c.outcomes[i].ID == id {
			c.outcomes[i].Outcome = outcome
			rec := c.outcomes[i]
			return &rec
		}
	}
	return nil
}

// Outcomes returns a copy of all stored outcomes, insertion order.
func (c *Calibrator) Outcomes() []models.OutcomeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.OutcomeRecord, len(c.outcomes))
	copy(out, c.outcomes)
	return out
}

// ClearOutcomes drops every stored outcome. The last calibration and the
// Brier history survive.
func (c *Calibrator) ClearOutcomes() {
	c.mu.Lock()
	c.outcomes = nil
	c.mu.Unlock()
}

// IsCalibrated reports whether a successful calibration has run.
func (c *Calibrator) IsCalibrated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last != nil && c.last.IsCalibrated
}

// LastCalibration returns a copy of the most recent calibration result, or
// nil when none has run.
func (c *Calibrator) LastCalibration() *models.CalibrationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	out := *c.last
	out.ScoreAdjustmentCurve = append([]float64(nil), c.last.ScoreAdjustmentCurve...)
	return &out
}

// BrierHistory returns a copy of the bounded Brier history, oldest first.
func (c *Calibrator) BrierHistory() []models.BrierHistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.BrierHistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}

// CalibrateScore maps a raw score through the adjustment curve. Before the
// first successful calibration it is the identity (clamped). Higher input
// never produces a lower output.
func (c *Calibrator) CalibrateScore(score float64) float64 {
	score = clamp(score, 0, 100)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil || !c.last.IsCalibrated || len(c.last.ScoreAdjustmentCurve) != BucketCount {
		return score
	}
	return applyCurve(c.last.ScoreAdjustmentCurve, score)
}

// applyCurve interpolates linearly between bucket midpoints. Below the first
// midpoint it scales from 0; above the last it scales toward 100. The curve
// values are monotonic non-decreasing, so the output is too.
func applyCurve(curve []float64, score float64) float64 {
	buckets := Buckets()
	firstMid := buckets[0].Midpoint()
	lastMid := buckets[BucketCount-1].Midpoint()

	switch {
	case score <= firstMid:
		return clamp(curve[0]*score/firstMid, 0, 100)
	case score >= lastMid:
		span := 100 - lastMid
		return clamp(curve[BucketCount-1]+(100-curve[BucketCount-1])*(score-lastMid)/span, 0, 100)
	}
	for i := 0; i < BucketCount-1; i++ {
		lo, hi := buckets[i].Midpoint(), buckets[i+1].Midpoint()
		if score >= lo && score <= hi {
			t := (score - lo) / (hi - lo)
			return clamp(curve[i]+(curve[i+1]-curve[i])*t, 0, 100)
		}
	}
	return score
}

// Export snapshots outcomes, Brier history and the adjustment curve.
func (c *Calibrator) Export() models.CalibrationExport {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := models.CalibrationExport{
		Outcomes:     append([]models.OutcomeRecord(nil), c.outcomes...),
		BrierHistory: append([]models.BrierHistoryEntry(nil), c.history...),
		ExportedAt:   c.now(),
	}
	if c.last != nil && c.last.IsCalibrated {
		out.ScoreAdjustmentCurve = append([]float64(nil), c.last.ScoreAdjustmentCurve...)
	}
	return out
}

// Import replaces calibrator state from an export. Missing optional fields
// default; malformed records reject the whole import without mutating state.
func (c *Calibrator) Import(in models.CalibrationExport) error {
	outcomes := make([]models.OutcomeRecord, 0, len(in.Outcomes))
	for i, rec := range in.Outcomes {
		if rec.WalletAddress == "" {
			return fmt.Errorf("outcome %d: missing wallet address", i)
		}
		if rec.Outcome == "" {
			rec.Outcome = models.OutcomeUnknown
		}
		if !rec.Outcome.IsKnown() && rec.Outcome != models.OutcomeUnknown {
			return fmt.Errorf("outcome %d: unknown label %s", i, rec.Outcome)
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.OriginalScore = clamp(rec.OriginalScore, 0, 100)
		rec.PredictedProbability = ScoreToProbability(rec.OriginalScore)
		rec.WalletAddress = util.NormalizeAddress(rec.WalletAddress)
		if rec.ScoredAt.IsZero() {
			rec.ScoredAt = c.now()
		}
		outcomes = append(outcomes, rec)
	}
	if len(in.ScoreAdjustmentCurve) != 0 && len(in.ScoreAdjustmentCurve) != BucketCount {
		return fmt.Errorf("score adjustment curve has %d entries, want %d", len(in.ScoreAdjustmentCurve), BucketCount)
	}

	c.mu.Lock()
	c.outcomes = outcomes
	c.history = append([]models.BrierHistoryEntry(nil), in.BrierHistory...)
	if over := len(c.history) - c.cfg.BrierHistoryLimit; over > 0 {
		c.history = append(c.history[:0:0], c.history[over:]...)
	}
	if len(in.ScoreAdjustmentCurve) == BucketCount {
		// Monotonicity is re-enforced on import; a hand-edited curve must not
		// break the ordering guarantee of CalibrateScore.
		curve := monotonicCummax(in.ScoreAdjustmentCurve)
		c.last = &models.CalibrationResult{
			ScoreAdjustmentCurve: curve,
			IsCalibrated:         true,
			CalibratedAt:         c.now(),
		}
	} else {
		c.last = nil
	}
	c.mu.Unlock()
	return nil
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
