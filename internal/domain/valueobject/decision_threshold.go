package valueobject

import "fmt"

// DefaultDecisionThreshold is deliberately below 0.5: missing fraud costs
// more than reviewing a legitimate transaction.
const DefaultDecisionThreshold = 0.3

// DecisionThreshold converts a fraud probability into a binary decision.
type DecisionThreshold struct {
	value float64
}

// NewDecisionThreshold validates that t lies in (0, 1].
func NewDecisionThreshold(t float64) (DecisionThreshold, error) {
	if t <= 0 || t > 1 {
		return DecisionThreshold{}, fmt.Errorf("decision threshold must be in (0, 1], got %g", t)
	}
	return DecisionThreshold{value: t}, nil
}

// Decide returns 1 iff p >= threshold.
func (d DecisionThreshold) Decide(p float64) int {
	if p >= d.Value() {
		return 1
	}
	return 0
}

// Value returns the threshold, falling back to the default for the zero value.
func (d DecisionThreshold) Value() float64 {
	if d.value == 0 {
		return DefaultDecisionThreshold
	}
	return d.value
}
