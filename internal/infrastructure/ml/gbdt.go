package ml

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
)

// KindGradientBoostedTrees identifies GradientBoostedTrees in artifact manifests.
const KindGradientBoostedTrees = "gradient_boosted_trees"

// node is one entry of a tree's flat node slice. Internal nodes send rows
// with x[Feature] <= Threshold to Left.
type node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

func (t tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// GradientBoostedTrees is a fitted ensemble of regression trees whose
// summed leaf values form a logistic margin. Leaf values already include
// the learning rate.
type GradientBoostedTrees struct {
	Params         valueobject.Hyperparameters `json:"params"`
	ScalePosWeight float64                     `json:"scale_pos_weight"`
	BaseMargin     float64                     `json:"base_margin"`
	Features       int                         `json:"features"`
	Trees          []tree                      `json:"trees"`
}

// PredictProba returns the positive-class probability for x.
func (m *GradientBoostedTrees) PredictProba(x []float64) float64 {
	margin := m.BaseMargin
	for _, t := range m.Trees {
		margin += t.predict(x)
	}
	return sigmoid(margin)
}

func (m *GradientBoostedTrees) NumFeatures() int { return m.Features }

func (m *GradientBoostedTrees) validate() error {
	if m.Features <= 0 {
		return fmt.Errorf("model declares %d features", m.Features)
	}
	for ti, t := range m.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= m.Features {
				return fmt.Errorf("tree %d node %d splits on feature %d of %d", ti, ni, n.Feature, m.Features)
			}
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d has invalid children", ti, ni)
			}
		}
	}
	return nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// Marshal encodes a classifier produced by this package and returns its kind.
func Marshal(clf any) ([]byte, string, error) {
	switch m := clf.(type) {
	case *GradientBoostedTrees:
		data, err := json.Marshal(m)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode model: %w", err)
		}
		return data, KindGradientBoostedTrees, nil
	default:
		return nil, "", fmt.Errorf("unsupported classifier type %T", clf)
	}
}

// Unmarshal decodes a classifier of the given kind and checks its structure.
func Unmarshal(kind string, data []byte) (*GradientBoostedTrees, error) {
	switch kind {
	case KindGradientBoostedTrees, "":
		var m GradientBoostedTrees
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to decode model: %w", err)
		}
		if err := m.validate(); err != nil {
			return nil, fmt.Errorf("invalid model: %w", err)
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}
}
