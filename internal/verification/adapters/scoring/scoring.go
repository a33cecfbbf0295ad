// Package scoring provides BehavioralScorer implementations.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Signals is the behavioral evidence the heuristic scorer understands.
// Unknown fields are ignored so clients can send richer telemetry.
type Signals struct {
	ReactionMS     *float64      `json:"reaction_ms"`
	PointerSamples []PointerStep `json:"pointer_samples"`
	KeyIntervalsMS []float64     `json:"key_intervals_ms"`
}

// PointerStep is one pointer sample: position and milliseconds since the
// prompt was shown.
type PointerStep struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	T float64 `json:"t"`
}

// Reaction times outside this window are implausible for a person.
const (
	minHumanReactionMS = 120
	maxHumanReactionMS = 10_000
	minPointerSamples  = 5
)

// HeuristicScorer rates behavioral signals without a model. Each present
// signal contributes a sub-score in [0,1]; the result is their mean. Evidence
// with no recognizable signal scores 0.
type HeuristicScorer struct{}

func NewHeuristicScorer() *HeuristicScorer { return &HeuristicScorer{} }

func (HeuristicScorer) Score(ctx context.Context, evidence json.RawMessage) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(evidence) == 0 {
		return 0, nil
	}
	var sig Signals
	if err := json.Unmarshal(evidence, &sig); err != nil {
		// Well-formed JSON of another shape carries no usable signal.
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			return 0, fmt.Errorf("behavioral evidence: %w", err)
		}
		return 0, nil
	}

	var parts []float64
	if sig.ReactionMS != nil {
		parts = append(parts, reactionScore(*sig.ReactionMS))
	}
	if len(sig.PointerSamples) > 0 {
		parts = append(parts, pointerScore(sig.PointerSamples))
	}
	if len(sig.KeyIntervalsMS) > 1 {
		parts = append(parts, jitterScore(sig.KeyIntervalsMS))
	}
	if len(parts) == 0 {
		return 0, nil
	}
	sum := 0.0
	for _, p := range parts {
		sum += p
	}
	return clamp(sum / float64(len(parts))), nil
}

func reactionScore(ms float64) float64 {
	switch {
	case math.IsNaN(ms), ms < minHumanReactionMS, ms > maxHumanReactionMS:
		return 0
	case ms < 250:
		// Ramp from the hard floor up to typical human speed.
		return (ms - minHumanReactionMS) / (250 - minHumanReactionMS)
	default:
		return 1
	}
}

// pointerScore rewards paths that are not perfectly straight and not
// perfectly regular in time, both hallmarks of scripted input.
func pointerScore(steps []PointerStep) float64 {
	if len(steps) < minPointerSamples {
		return 0.25
	}
	intervals := make([]float64, 0, len(steps)-1)
	var path float64
	for i := 1; i < len(steps); i++ {
		dt := steps[i].T - steps[i-1].T
		if dt < 0 {
			return 0
		}
		intervals = append(intervals, dt)
		path += math.Hypot(steps[i].X-steps[i-1].X, steps[i].Y-steps[i-1].Y)
	}
	first, last := steps[0], steps[len(steps)-1]
	direct := math.Hypot(last.X-first.X, last.Y-first.Y)

	curvature := 0.0
	if path > 0 {
		// 1 for a straight line, larger for meandering paths.
		curvature = math.Min((path/math.Max(direct, 1e-9)-1)*10, 1)
	}
	return clamp(0.5*curvature + 0.5*jitterScore(intervals))
}

// jitterScore maps the coefficient of variation of intervals to [0,1].
// Machine-generated timings are near constant.
func jitterScore(intervals []float64) float64 {
	if len(intervals) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range intervals {
		mean += v
	}
	mean /= float64(len(intervals))
	if mean <= 0 {
		return 0
	}
	variance := 0.0
	for _, v := range intervals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(intervals))
	cv := math.Sqrt(variance) / mean
	return clamp(cv / 0.2)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// StaticScorer returns a fixed score. Useful when no behavioral signal is
// collected.
type StaticScorer struct {
	score float64
}

func NewStaticScorer(score float64) *StaticScorer {
	return &StaticScorer{score: clamp(score)}
}

func (s *StaticScorer) Score(ctx context.Context, _ json.RawMessage) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.score, nil
}
