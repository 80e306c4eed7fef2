// Package scoring computes dosing risk from a FeatureSet.
//
// Two models share one rule set. The light model is a pure O(1) function.
// The full model reuses it, adds a fatigue estimate and feature importance,
// and is fronted by a simulated, cancellable model latency.
package scoring

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/okian/medrisk/internal/domain/explain"
	"github.com/okian/medrisk/internal/domain/features"
)

// Model version tags.
const (
	LightModelVersion = "light-v0.1"
	FullModelVersion  = "full-v0.1"
)

// Rule weights and caps. Changing any of these changes published scores.
const (
	missedDosePoints    = 30.0
	hoursDivisor        = 2.0
	hoursCap            = 20.0
	severityMultiplier  = 5.0
	severityCap         = 30.0
	missionMultiplier   = 8.0
	missionCap          = 20.0
	maxRisk             = 100.0
	baseConfidence      = 50.0
	confidencePerField  = 12.0
	minConfidence       = 40.0
	maxConfidence       = 99.0
	longGapHours        = 8.0
	highSeverity        = 5.0
	fatigueRiskFactor   = 0.7
	fatiguePerMission   = 6.0
	maxFatigue          = 100.0
	defaultFullDelay    = 2500 * time.Millisecond
	normalExplanation   = "normal"
	explanationSep      = ", "
	importanceMissed    = 0.4
	importanceNotMissed = 0.05
	importanceSeverity  = 0.3
	importanceHours     = 0.2
	importanceMissions  = 0.1
)

// Result is the light model output.
type Result struct {
	Risk         float64 `json:"risk"`
	Confidence   float64 `json:"confidence"`
	Explanation  string  `json:"explanation"`
	ModelVersion string  `json:"model_version"`
}

// FullResult is the full model output. ModelVersion carries the full tag.
type FullResult struct {
	Result
	FatigueScore      float64          `json:"fatigue_score"`
	FeatureImportance []explain.Ranked `json:"feature_importance"`
}

// Scorer computes light and full scores.
type Scorer interface {
	// LightScore never blocks.
	LightScore(fs features.FeatureSet) Result
	// FullScore honors ctx for cancellation during the simulated latency.
	FullScore(ctx context.Context, fs features.FeatureSet) (FullResult, error)
}

// DelayFunc waits for d or until ctx is done.
type DelayFunc func(ctx context.Context, d time.Duration) error

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithFullDelay sets the simulated latency of FullScore. Zero disables it.
func WithFullDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.fullDelay.Store(int64(d))
		}
	}
}

// WithDelayFunc replaces the wait used for the simulated latency.
func WithDelayFunc(fn DelayFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.delay = fn
		}
	}
}

// Engine implements Scorer. It is safe for concurrent use.
type Engine struct {
	fullDelay atomic.Int64
	delay     DelayFunc
}

// NewEngine creates a scoring engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{delay: SleepContext}
	e.fullDelay.Store(int64(defaultFullDelay))

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// SetFullDelay changes the simulated latency for subsequent FullScore calls.
func (e *Engine) SetFullDelay(d time.Duration) {
	if d >= 0 {
		e.fullDelay.Store(int64(d))
	}
}

// FullDelay reports the current simulated latency.
func (e *Engine) FullDelay() time.Duration {
	return time.Duration(e.fullDelay.Load())
}

// LightScore computes the light model result.
func (e *Engine) LightScore(fs features.FeatureSet) Result {
	score := 0.0
	if fs.LastDoseMissed() {
		score += missedDosePoints
	}
	score += math.Min(fs.HoursSinceLastDose()/hoursDivisor, hoursCap)
	score += math.Min(fs.SymptomSeverity()*severityMultiplier, severityCap)
	score += math.Min(float64(fs.MissionsLast24h())*missionMultiplier, missionCap)

	return Result{
		Risk:         round1(clamp(score, 0, maxRisk)),
		Confidence:   confidence(fs),
		Explanation:  explanation(fs),
		ModelVersion: LightModelVersion,
	}
}

// FullScore waits for the simulated latency, then computes the full result.
func (e *Engine) FullScore(ctx context.Context, fs features.FeatureSet) (FullResult, error) {
	if err := e.delay(ctx, e.FullDelay()); err != nil {
		return FullResult{}, err
	}

	base := e.LightScore(fs)
	base.ModelVersion = FullModelVersion

	fatigue := base.Risk*fatigueRiskFactor + float64(fs.MissionsLast24h())*fatiguePerMission

	return FullResult{
		Result:            base,
		FatigueScore:      round1(clamp(fatigue, 0, maxFatigue)),
		FeatureImportance: explain.Rank(Importance(fs)),
	}, nil
}

// Importance returns the static per-feature weights in their canonical
// reporting order. Only the missed-dose weight depends on the input.
func Importance(fs features.FeatureSet) []explain.Weight {
	missed := importanceNotMissed
	if fs.LastDoseMissed() {
		missed = importanceMissed
	}
	return []explain.Weight{
		{Feature: string(features.LastDoseMissed), Importance: missed},
		{Feature: string(features.SymptomSeverity), Importance: importanceSeverity},
		{Feature: string(features.HoursSinceLastDose), Importance: importanceHours},
		{Feature: string(features.MissionsLast24h), Importance: importanceMissions},
	}
}

// confidence grows with the number of supplied fields, never with their
// values. An empty request still carries every default and rates as one field.
func confidence(fs features.FeatureSet) float64 {
	provided := max(fs.Provided(), 1)
	return round1(clamp(baseConfidence+float64(provided)*confidencePerField, minConfidence, maxConfidence))
}

func explanation(fs features.FeatureSet) string {
	var reasons []string
	if fs.LastDoseMissed() {
		reasons = append(reasons, "missed dose")
	}
	if h := fs.HoursSinceLastDose(); h >= longGapHours {
		reasons = append(reasons, fmt.Sprintf("%.0fh since last dose", math.Floor(h)))
	}
	if fs.SymptomSeverity() >= highSeverity {
		reasons = append(reasons, "high symptom severity")
	}
	if m := fs.MissionsLast24h(); m >= 1 {
		reasons = append(reasons, fmt.Sprintf("%d recent mission(s)", m))
	}
	if len(reasons) == 0 {
		return normalExplanation
	}
	return strings.Join(reasons, explanationSep)
}

// SleepContext blocks for d unless ctx is done first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// round1 rounds to one decimal using the shortest decimal form of the
// exact binary value, ties to even. 0.35 becomes 0.3 and 0.25 becomes 0.2.
func round1(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	if err != nil {
		return v
	}
	return r
}
