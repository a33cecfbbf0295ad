// Package policy turns capability outputs into a pass/fail decision.
package policy

// DefaultThreshold is the behavioral score a submission must exceed.
const DefaultThreshold = 0.5

// Policy decides whether a verification passed.
type Policy interface {
	Decide(liveness bool, score float64) bool
}

// Func adapts a function into a Policy.
type Func func(liveness bool, score float64) bool

func (f Func) Decide(liveness bool, score float64) bool { return f(liveness, score) }

// Threshold passes when liveness holds and the score is strictly above the
// threshold.
type Threshold struct {
	Min float64
}

func NewThreshold(min float64) Threshold {
	return Threshold{Min: min}
}

func (p Threshold) Decide(liveness bool, score float64) bool {
	return liveness && score > p.Min
}
