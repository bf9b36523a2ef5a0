package ml

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
)

// BoostingConfig holds the regularisation settings shared by every fit.
type BoostingConfig struct {
	Lambda         float64
	MinChildWeight float64
	MaxBins        int
}

// DefaultBoostingConfig mirrors common gradient boosting defaults.
func DefaultBoostingConfig() BoostingConfig {
	return BoostingConfig{Lambda: 1, MinChildWeight: 1, MaxBins: 64}
}

// Booster fits GradientBoostedTrees with second-order logistic boosting
// over quantile histograms. It implements port.Learner.
type Booster struct {
	cfg BoostingConfig
}

func NewBooster(cfg BoostingConfig) *Booster {
	if cfg.MaxBins < 2 {
		cfg.MaxBins = DefaultBoostingConfig().MaxBins
	}
	return &Booster{cfg: cfg}
}

// Fit trains an ensemble. Positive rows are weighted by scalePosWeight.
// ctx is checked before every boosting round.
func (b *Booster) Fit(ctx context.Context, data model.Dataset, params valueobject.Hyperparameters, scalePosWeight float64) (model.Classifier, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	n := data.Len()
	if n == 0 || len(data.X) != n {
		return nil, fmt.Errorf("cannot fit on %d rows and %d labels", len(data.X), n)
	}
	width := len(data.X[0])
	if scalePosWeight <= 0 {
		scalePosWeight = 1
	}

	cuts, binned := b.binColumns(data.X, width)

	weight := make([]float64, n)
	for i, y := range data.Y {
		weight[i] = 1
		if y == 1 {
			weight[i] = scalePosWeight
		}
	}

	m := &GradientBoostedTrees{
		Params:         params,
		ScalePosWeight: scalePosWeight,
		Features:       width,
		Trees:          make([]tree, 0, params.NEstimators),
	}

	g := &grower{
		cfg:    b.cfg,
		depth:  params.MaxDepth,
		eta:    params.LearningRate,
		cuts:   cuts,
		binned: binned,
		grad:   make([]float64, n),
		hess:   make([]float64, n),
	}
	margin := make([]float64, n)
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}

	for round := 0; round < params.NEstimators; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range margin {
			p := sigmoid(margin[i])
			g.grad[i] = (p - float64(data.Y[i])) * weight[i]
			g.hess[i] = math.Max(p*(1-p), 1e-16) * weight[i]
		}

		t := g.grow(rows)
		for i, x := range data.X {
			margin[i] += t.predict(x)
		}
		m.Trees = append(m.Trees, t)
	}

	return m, nil
}

// binColumns computes per-feature split candidates and each row's bin. A
// row with x <= cuts[j][k] has bin <= k for feature j.
func (b *Booster) binColumns(x [][]float64, width int) ([][]float64, [][]uint16) {
	cuts := make([][]float64, width)
	binned := make([][]uint16, width)
	col := make([]float64, len(x))

	for j := 0; j < width; j++ {
		for i, row := range x {
			col[i] = row[j]
		}
		sorted := slices.Clone(col)
		slices.Sort(sorted)
		uniq := slices.Compact(sorted)

		var c []float64
		if len(uniq) <= b.cfg.MaxBins {
			for k := 1; k < len(uniq); k++ {
				c = append(c, (uniq[k-1]+uniq[k])/2)
			}
		} else {
			for q := 1; q < b.cfg.MaxBins; q++ {
				k := q * len(uniq) / b.cfg.MaxBins
				c = append(c, (uniq[k-1]+uniq[k])/2)
			}
			c = slices.Compact(c)
		}
		cuts[j] = c

		bins := make([]uint16, len(x))
		for i, v := range col {
			bins[i] = uint16(sort.SearchFloat64s(c, v))
		}
		binned[j] = bins
	}
	return cuts, binned
}

type grower struct {
	cfg    BoostingConfig
	depth  int
	eta    float64
	cuts   [][]float64
	binned [][]uint16
	grad   []float64
	hess   []float64
	nodes  []node
}

func (g *grower) grow(rows []int) tree {
	g.nodes = make([]node, 0, 1<<min(g.depth+1, 10))
	g.split(rows, 0)
	return tree{Nodes: g.nodes}
}

// split appends the subtree for rows and returns its root index.
func (g *grower) split(rows []int, depth int) int {
	var sumG, sumH float64
	for _, i := range rows {
		sumG += g.grad[i]
		sumH += g.hess[i]
	}

	idx := len(g.nodes)
	g.nodes = append(g.nodes, node{})

	feature, bin, ok := -1, 0, false
	if depth < g.depth && len(rows) > 1 {
		feature, bin, ok = g.bestSplit(rows, sumG, sumH)
	}
	if !ok {
		g.nodes[idx] = node{Leaf: true, Value: -sumG / (sumH + g.cfg.Lambda) * g.eta}
		return idx
	}

	var left, right []int
	col := g.binned[feature]
	for _, i := range rows {
		if int(col[i]) <= bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := g.split(left, depth+1)
	r := g.split(right, depth+1)
	g.nodes[idx] = node{Feature: feature, Threshold: g.cuts[feature][bin], Left: l, Right: r}
	return idx
}

// bestSplit scans every feature's histogram for the split with the
// largest positive gain. Ties keep the lowest feature and bin.
func (g *grower) bestSplit(rows []int, sumG, sumH float64) (int, int, bool) {
	lambda := g.cfg.Lambda
	parent := sumG * sumG / (sumH + lambda)

	bestGain, bestFeature, bestBin := 1e-12, -1, 0
	for j, cuts := range g.cuts {
		if len(cuts) == 0 {
			continue
		}
		histG := make([]float64, len(cuts)+1)
		histH := make([]float64, len(cuts)+1)
		col := g.binned[j]
		for _, i := range rows {
			histG[col[i]] += g.grad[i]
			histH[col[i]] += g.hess[i]
		}

		var gl, hl float64
		for k := 0; k < len(cuts); k++ {
			gl += histG[k]
			hl += histH[k]
			gr, hr := sumG-gl, sumH-hl
			if hl < g.cfg.MinChildWeight || hr < g.cfg.MinChildWeight {
				continue
			}
			gain := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent
			if gain > bestGain {
				bestGain, bestFeature, bestBin = gain, j, k
			}
		}
	}
	return bestFeature, bestBin, bestFeature >= 0
}
