package valueobject

import (
	"errors"
	"fmt"
)

// Hyperparameters selects one gradient-boosting configuration.
type Hyperparameters struct {
	NEstimators  int     `json:"n_estimators"`
	MaxDepth     int     `json:"max_depth"`
	LearningRate float64 `json:"learning_rate"`
}

// Validate rejects configurations the learner cannot fit.
func (h Hyperparameters) Validate() error {
	switch {
	case h.NEstimators <= 0:
		return fmt.Errorf("n_estimators must be positive, got %d", h.NEstimators)
	case h.MaxDepth <= 0:
		return fmt.Errorf("max_depth must be positive, got %d", h.MaxDepth)
	case h.LearningRate <= 0 || h.LearningRate > 1:
		return fmt.Errorf("learning_rate must be in (0, 1], got %g", h.LearningRate)
	}
	return nil
}

func (h Hyperparameters) String() string {
	return fmt.Sprintf("learning_rate=%g max_depth=%d n_estimators=%d", h.LearningRate, h.MaxDepth, h.NEstimators)
}

// ParamGrid is the search space of a grid search.
type ParamGrid struct {
	NEstimators   []int     `json:"n_estimators"`
	MaxDepth      []int     `json:"max_depth"`
	LearningRates []float64 `json:"learning_rate"`
}

// DefaultParamGrid is the production search space.
func DefaultParamGrid() ParamGrid {
	return ParamGrid{
		NEstimators:   []int{200, 300},
		MaxDepth:      []int{5, 6},
		LearningRates: []float64{0.1, 0.05},
	}
}

// Candidates expands the grid in a fixed order: parameter names sorted
// alphabetically (learning_rate, max_depth, n_estimators), with the last
// one varying fastest. Ties during selection resolve to the earliest
// candidate in this order.
func (g ParamGrid) Candidates() ([]Hyperparameters, error) {
	if len(g.NEstimators) == 0 || len(g.MaxDepth) == 0 || len(g.LearningRates) == 0 {
		return nil, errors.New("param grid must list at least one value per parameter")
	}

	out := make([]Hyperparameters, 0, len(g.LearningRates)*len(g.MaxDepth)*len(g.NEstimators))
	for _, lr := range g.LearningRates {
		for _, depth := range g.MaxDepth {
			for _, n := range g.NEstimators {
				h := Hyperparameters{NEstimators: n, MaxDepth: depth, LearningRate: lr}
				if err := h.Validate(); err != nil {
					return nil, err
				}
				out = append(out, h)
			}
		}
	}
	return out, nil
}
