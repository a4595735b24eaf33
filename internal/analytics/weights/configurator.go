// Package weights holds the mutable signal-weight and threshold configuration
// consumed by the composite scorer, with an audit trail of every mutation.
package weights

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"WalletWatch/internal/analytics/event"
	"WalletWatch/internal/analytics/instance"
	"WalletWatch/internal/domain/models"
)

// Config tunes the configurator.
type Config struct {
	// MaxHistoryEntries bounds the change audit trail; oldest dropped first.
	MaxHistoryEntries int
	// SumTolerance is the epsilon for STRICT-mode weight sum checks.
	SumTolerance float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxHistoryEntries: 200,
		SumTolerance:      1e-4,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxHistoryEntries <= 0 {
		c.MaxHistoryEntries = d.MaxHistoryEntries
	}
	if c.SumTolerance <= 0 {
		c.SumTolerance = d.SumTolerance
	}
}

// Configurator is the process-wide weight/threshold configuration surface.
// Invalid mutations return a ValidationResult and never touch state.
// Safe for concurrent use.
type Configurator struct {
	mu  sync.Mutex
	cfg Config

	signals    map[models.SignalSource]models.WeightSetting
	categories map[models.SignalCategory]models.WeightSetting
	thresholds models.ScoreThresholds
	flagThreshold    float64
	insiderThreshold float64
	mode       models.ValidationMode
	preset     models.WeightPreset

	history []models.WeightChange

	onChange event.Emitter[models.WeightChange]

	now func() time.Time
}

// New creates a configurator seeded with the BALANCED preset.
func New(cfg Config) *Configurator {
	cfg.applyDefaults()
	c := &Configurator{
		cfg: cfg,
		now: time.Now,
	}
	c.resetLocked()
	return c
}

var shared = instance.NewHolder(func() *Configurator { return New(DefaultConfig()) })

// Shared returns the process-wide configurator.
func Shared() *Configurator { return shared.Get() }

// SetShared replaces the process-wide configurator.
func SetShared(c *Configurator) { shared.Set(c) }

// ResetShared clears the process-wide configurator.
func ResetShared() { shared.Reset() }

// OnChange registers a listener fired after every applied mutation.
func (c *Configurator) OnChange(fn func(models.WeightChange)) {
	c.onChange.Subscribe(fn)
}

func (c *Configurator) resetLocked() {
	table := presets[models.PresetBalanced]
	c.signals = make(map[models.SignalSource]models.WeightSetting, len(table.Signals))
	for src, w := range table.Signals {
		c.signals[src] = models.WeightSetting{Weight: w, Enabled: true}
	}
	c.categories = make(map[models.SignalCategory]models.WeightSetting, len(table.Categories))
	for cat, w := range table.Categories {
		c.categories[cat] = models.WeightSetting{Weight: w, Enabled: true}
	}
	c.thresholds = models.ScoreThresholds{Low: 25, Medium: 50, High: 75, Critical: 90}
	c.flagThreshold = 70
	c.insiderThreshold = 85
	c.mode = models.ValidationNormalize
	c.preset = models.PresetBalanced
}

// Reset restores defaults. The audit trail records the reset but is not
// cleared by it.
func (c *Configurator) Reset() {
	c.mu.Lock()
	c.resetLocked()
	change := c.recordLocked("reset", 0, 0, "reset")
	c.mu.Unlock()
	c.onChange.Publish(change)
}

func invalid(errs ...string) models.ValidationResult {
	return models.ValidationResult{IsValid: false, Errors: errs}
}

// SetSignalWeight sets one signal's raw weight. Out-of-range weights and
// unknown sources are rejected without mutating state. Flips preset to CUSTOM.
func (c *Configurator) SetSignalWeight(src models.SignalSource, weight float64) models.ValidationResult {
	if _, ok := signalDefinitions[src]; !ok {
		return invalid(fmt.Sprintf("unknown signal source: %s", src))
	}
	if weight < 0 || weight > 1 {
		return invalid(fmt.Sprintf("weight %v out of range [0,1]", weight))
	}
	c.mu.Lock()
	prev := c.signals[src]
	c.signals[src] = models.WeightSetting{Weight: weight, Enabled: prev.Enabled}
	c.preset = models.PresetCustom
	change := c.recordLocked("signal:"+string(src), prev.Weight, weight, "setSignalWeight")
	res := c.validateLocked()
	c.mu.Unlock()
	c.onChange.Publish(change)
	return res
}

// SetCategoryWeight sets one category's raw weight, same rules as
// SetSignalWeight.
func (c *Configurator) SetCategoryWeight(cat models.SignalCategory, weight float64) models.ValidationResult {
	known := false
	for _, k := range models.AllSignalCategories {
		if k == cat {
			known = true
			break
		}
	}
	if !known {
		return invalid(fmt.Sprintf("unknown signal category: %s", cat))
	}
	if weight < 0 || weight > 1 {
		return invalid(fmt.Sprintf("weight %v out of range [0,1]", weight))
	}
	c.mu.Lock()
	prev := c.categories[cat]
	c.categories[cat] = models.WeightSetting{Weight: weight, Enabled: prev.Enabled}
	c.preset = models.PresetCustom
	change := c.recordLocked("category:"+string(cat), prev.Weight, weight, "setCategoryWeight")
	res := c.validateLocked()
	c.mu.Unlock()
	c.onChange.Publish(change)
	return res
}

// SetSignalEnabled toggles one signal. Disabling every signal is allowed but
// leaves the configuration in a state Validate reports as invalid.
func (c *Configurator) SetSignalEnabled(src models.SignalSource, enabled bool) models.ValidationResult {
	if _, ok := signalDefinitions[src]; !ok {
		return invalid(fmt.Sprintf("unknown signal source: %s", src))
	}
	c.mu.Lock()
	prev := c.signals[src]
	c.signals[src] = models.WeightSetting{Weight: prev.Weight, Enabled: enabled}
	c.preset = models.PresetCustom
	change := c.recordLocked("enabled:"+string(src), boolWeight(prev.Enabled), boolWeight(enabled), "setSignalEnabled")
	res := c.validateLocked()
	c.mu.Unlock()
	c.onChange.Publish(change)
	return res
}

func boolWeight(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SetThresholds replaces the suspicion cutpoints; they must be strictly
// increasing and inside [0,100].
func (c *Configurator) SetThresholds(t models.ScoreThresholds) models.ValidationResult {
	if t.Low < 0 || t.Critical > 100 {
		return invalid("thresholds must lie in [0,100]")
	}
	if !(t.Low < t.Medium && t.Medium < t.High && t.High < t.Critical) {
		return invalid("thresholds must satisfy low < medium < high < critical")
	}
	c.mu.Lock()
	prev := c.thresholds
	c.thresholds = t
	c.preset = models.PresetCustom
	change := c.recordLocked("thresholds.critical", prev.Critical, t.Critical, "setThresholds")
	c.mu.Unlock()
	c.onChange.Publish(change)
	return models.ValidationResult{IsValid: true}
}

// SetFlagThreshold sets the composite flag cutoff.
func (c *Configurator) SetFlagThreshold(v float64) models.ValidationResult {
	return c.setScalar("flagThreshold", v, &c.flagThreshold)
}

// SetInsiderThreshold sets the insider-indicator cutoff.
func (c *Configurator) SetInsiderThreshold(v float64) models.ValidationResult {
	return c.setScalar("insiderThreshold", v, &c.insiderThreshold)
}

func (c *Configurator) setScalar(field string, v float64, target *float64) models.ValidationResult {
	if v < 0 || v > 100 {
		return invalid(fmt.Sprintf("%s %v out of range [0,100]", field, v))
	}
	c.mu.Lock()
	prev := *target
	*target = v
	c.preset = models.PresetCustom
	change := c.recordLocked(field, prev, v, "set")
	c.mu.Unlock()
	c.onChange.Publish(change)
	return models.ValidationResult{IsValid: true}
}

// SetValidationMode switches between STRICT, NORMALIZE and NONE.
func (c *Configurator) SetValidationMode(m models.ValidationMode) models.ValidationResult {
	switch m {
	case models.ValidationStrict, models.ValidationNormalize, models.ValidationNone:
	default:
		return invalid(fmt.Sprintf("unknown validation mode: %s", m))
	}
	c.mu.Lock()
	c.mode = m
	change := c.recordLocked("validationMode", 0, 0, string(m))
	c.mu.Unlock()
	c.onChange.Publish(change)
	return models.ValidationResult{IsValid: true}
}

// ApplyPreset atomically replaces all weights from the named constant table.
// The preset field keeps the preset name; CUSTOM cannot be applied.
func (c *Configurator) ApplyPreset(p models.WeightPreset) models.ValidationResult {
	table, ok := presets[p]
	if !ok {
		return invalid(fmt.Sprintf("unknown preset: %s", p))
	}
	c.mu.Lock()
	for src, w := range table.Signals {
		c.signals[src] = models.WeightSetting{Weight: w, Enabled: true}
	}
	for cat, w := range table.Categories {
		c.categories[cat] = models.WeightSetting{Weight: w, Enabled: true}
	}
	c.preset = p
	change := c.recordLocked("preset", 0, 0, string(p))
	c.mu.Unlock()
	c.onChange.Publish(change)
	return models.ValidationResult{IsValid: true}
}

// recordLocked appends one audit entry, dropping the oldest over the cap.
func (c *Configurator) recordLocked(field string, prev, cur float64, source string) models.WeightChange {
	change := models.WeightChange{
		Timestamp: c.now(),
		Field:     field,
		Previous:  prev,
		Current:   cur,
		Source:    source,
	}
	c.history = append(c.history, change)
	if over := len(c.history) - c.cfg.MaxHistoryEntries; over > 0 {
		c.history = append(c.history[:0:0], c.history[over:]...)
	}
	return change
}

// History returns a copy of the audit trail, oldest first.
func (c *Configurator) History() []models.WeightChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.WeightChange, len(c.history))
	copy(out, c.history)
	return out
}

// EffectiveSignalWeights renormalizes enabled signal weights to sum to 1.
// With every signal disabled (or zero total weight) the map is empty and the
// result is invalid; there is no division by zero.
func (c *Configurator) EffectiveSignalWeights() (map[models.SignalSource]float64, models.ValidationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.effectiveSignalWeightsLocked()
}

func (c *Configurator) effectiveSignalWeightsLocked() (map[models.SignalSource]float64, models.ValidationResult) {
	var sum float64
	for _, src := range models.AllSignalSources {
		s := c.signals[src]
		if s.Enabled {
			sum += s.Weight
		}
	}
	if sum <= 0 {
		return map[models.SignalSource]float64{}, invalid("no enabled signal carries weight")
	}
	out := make(map[models.SignalSource]float64)
	for _, src := range models.AllSignalSources {
		s := c.signals[src]
		if s.Enabled {
			out[src] = s.Weight / sum
		}
	}
	return out, models.ValidationResult{IsValid: true}
}

// EffectiveCategoryWeights renormalizes enabled category weights to sum to 1.
func (c *Configurator) EffectiveCategoryWeights() (map[models.SignalCategory]float64, models.ValidationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum float64
	for _, cat := range models.AllSignalCategories {
		s := c.categories[cat]
		if s.Enabled {
			sum += s.Weight
		}
	}
	if sum <= 0 {
		return map[models.SignalCategory]float64{}, invalid("no enabled category carries weight")
	}
	out := make(map[models.SignalCategory]float64)
	for _, cat := range models.AllSignalCategories {
		s := c.categories[cat]
		if s.Enabled {
			out[cat] = s.Weight / sum
		}
	}
	return out, models.ValidationResult{IsValid: true}
}

// Validate checks the current configuration against the validation mode.
// STRICT requires raw enabled weights to already sum to 1; NORMALIZE only
// requires some enabled weight; NONE always passes. Disabled signals and
// zero-weight enabled signals produce warnings, not errors.
func (c *Configurator) Validate() models.ValidationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateLocked()
}

func (c *Configurator) validateLocked() models.ValidationResult {
	res := models.ValidationResult{IsValid: true}
	var sum float64
	enabled := 0
	for _, src := range models.AllSignalSources {
		s := c.signals[src]
		if !s.Enabled {
			res.Warnings = append(res.Warnings, fmt.Sprintf("signal %s is disabled", src))
			continue
		}
		enabled++
		sum += s.Weight
		if s.Weight == 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("signal %s is enabled with zero weight", src))
		}
	}

	switch c.mode {
	case models.ValidationNone:
		return res
	case models.ValidationNormalize:
		if enabled == 0 || sum <= 0 {
			res.IsValid = false
			res.Errors = append(res.Errors, "no enabled signal carries weight")
		}
	case models.ValidationStrict:
		if enabled == 0 || sum <= 0 {
			res.IsValid = false
			res.Errors = append(res.Errors, "no enabled signal carries weight")
		} else if math.Abs(sum-1) > c.cfg.SumTolerance {
			res.IsValid = false
			res.Errors = append(res.Errors, fmt.Sprintf("enabled signal weights sum to %v, want 1", sum))
		}
	}
	return res
}

// AnalyzeWeightImpact ranks signals by effective weight and classifies the
// distribution. Equal weights are balanced; one weight dwarfing the rest is
// extreme.
func (c *Configurator) AnalyzeWeightImpact() models.WeightImpact {
	c.mu.Lock()
	effective, _ := c.effectiveSignalWeightsLocked()
	var disabled []models.SignalSource
	for _, src := range models.AllSignalSources {
		if !c.signals[src].Enabled {
			disabled = append(disabled, src)
		}
	}
	c.mu.Unlock()

	impact := models.WeightImpact{Disabled: disabled, Balance: models.BalanceBalanced}
	for _, src := range models.AllSignalSources {
		if w, ok := effective[src]; ok {
			impact.Ranked = append(impact.Ranked, models.RankedSignalWeight{Source: src, EffectiveWeight: w})
		}
	}
	sort.SliceStable(impact.Ranked, func(i, j int) bool {
		return impact.Ranked[i].EffectiveWeight > impact.Ranked[j].EffectiveWeight
	})
	if len(impact.Ranked) == 0 {
		return impact
	}

	maxW := impact.Ranked[0].EffectiveWeight
	minW := impact.Ranked[len(impact.Ranked)-1].EffectiveWeight
	if minW <= 0 {
		// Keep the ratio finite so the result stays JSON-serializable.
		impact.MaxMin = maxW / c.cfg.SumTolerance
		impact.Balance = models.BalanceExtreme
		return impact
	}
	impact.MaxMin = maxW / minW
	switch {
	case impact.MaxMin <= 1.5:
		impact.Balance = models.BalanceBalanced
	case impact.MaxMin <= 4:
		impact.Balance = models.BalanceSkewed
	default:
		impact.Balance = models.BalanceExtreme
	}
	return impact
}

// Thresholds returns a copy of the suspicion cutpoints.
func (c *Configurator) Thresholds() models.ScoreThresholds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thresholds
}

// FlagThreshold returns the composite flag cutoff.
func (c *Configurator) FlagThreshold() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flagThreshold
}

// InsiderThreshold returns the insider-indicator cutoff.
func (c *Configurator) InsiderThreshold() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insiderThreshold
}

// SuspicionLevelFor maps a composite score to a suspicion level using the
// configured cutpoints.
func (c *Configurator) SuspicionLevelFor(score float64) models.SuspicionLevel {
	t := c.Thresholds()
	switch {
	case score >= t.Critical:
		return models.SuspicionCritical
	case score >= t.High:
		return models.SuspicionHigh
	case score >= t.Low:
		return models.SuspicionLow
	}
	return models.SuspicionNone
}

// Preset returns the active preset name (CUSTOM after any manual mutation).
func (c *Configurator) Preset() models.WeightPreset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preset
}

// Export snapshots the full configuration as a versioned value copy.
func (c *Configurator) Export() models.WeightConfigExport {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := models.WeightConfigExport{
		Version:          ConfigVersion,
		SignalWeights:    make(map[models.SignalSource]models.WeightSetting, len(c.signals)),
		CategoryWeights:  make(map[models.SignalCategory]models.WeightSetting, len(c.categories)),
		Thresholds:       c.thresholds,
		FlagThreshold:    c.flagThreshold,
		InsiderThreshold: c.insiderThreshold,
		ValidationMode:   c.mode,
		Preset:           c.preset,
		ExportedAt:       c.now(),
	}
	for src, s := range c.signals {
		out.SignalWeights[src] = s
	}
	for cat, s := range c.categories {
		out.CategoryWeights[cat] = s
	}
	return out
}

// Import replaces the configuration from an exported snapshot. Missing
// optional fields fall back to defaults; unknown sources and out-of-range
// weights reject the whole import without mutating state.
func (c *Configurator) Import(in models.WeightConfigExport) models.ValidationResult {
	var errs []string
	for src, s := range in.SignalWeights {
		if _, ok := signalDefinitions[src]; !ok {
			errs = append(errs, fmt.Sprintf("unknown signal source: %s", src))
		}
		if s.Weight < 0 || s.Weight > 1 {
			errs = append(errs, fmt.Sprintf("signal %s weight %v out of range [0,1]", src, s.Weight))
		}
	}
	for cat, s := range in.CategoryWeights {
		if SignalCategoryKnown(cat) {
			if s.Weight < 0 || s.Weight > 1 {
				errs = append(errs, fmt.Sprintf("category %s weight %v out of range [0,1]", cat, s.Weight))
			}
		} else {
			errs = append(errs, fmt.Sprintf("unknown signal category: %s", cat))
		}
	}
	if t := in.Thresholds; t != (models.ScoreThresholds{}) {
		if !(t.Low < t.Medium && t.Medium < t.High && t.High < t.Critical) {
			errs = append(errs, "thresholds must satisfy low < medium < high < critical")
		}
	}
	if len(errs) > 0 {
		return models.ValidationResult{IsValid: false, Errors: errs}
	}

	c.mu.Lock()
	c.resetLocked()
	for src, s := range in.SignalWeights {
		c.signals[src] = s
	}
	for cat, s := range in.CategoryWeights {
		c.categories[cat] = s
	}
	if in.Thresholds != (models.ScoreThresholds{}) {
		c.thresholds = in.Thresholds
	}
	if in.FlagThreshold > 0 {
		c.flagThreshold = in.FlagThreshold
	}
	if in.InsiderThreshold > 0 {
		c.insiderThreshold = in.InsiderThreshold
	}
	if in.ValidationMode != "" {
		c.mode = in.ValidationMode
	}
	if in.Preset != "" {
		c.preset = in.Preset
	}
	change := c.recordLocked("import", 0, 0, "import")
	c.mu.Unlock()
	c.onChange.Publish(change)
	return models.ValidationResult{IsValid: true}
}

// SignalCategoryKnown reports whether the category is part of the closed set.
func SignalCategoryKnown(cat models.SignalCategory) bool {
	for _, k := range models.AllSignalCategories {
		if k == cat {
			return true
		}
	}
	return false
}
