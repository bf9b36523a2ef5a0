package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/bibbank/fraudscoring/internal/domain/model"
)

const (
	// DefaultImbalanceThreshold is the positive fraction below which
	// oversampling kicks in.
	DefaultImbalanceThreshold = 0.1
	// DefaultSMOTENeighbors is k for the nearest-positive search.
	DefaultSMOTENeighbors = 5
)

// ClassBalancer rebalances a severely imbalanced training set by
// synthesizing positive rows with SMOTE until both classes are equal.
type ClassBalancer struct {
	threshold float64
	neighbors int
	logger    *slog.Logger
}

// NewClassBalancer creates a ClassBalancer. Non-positive neighbors selects
// DefaultSMOTENeighbors.
func NewClassBalancer(neighbors int, logger *slog.Logger) *ClassBalancer {
	if neighbors <= 0 {
		neighbors = DefaultSMOTENeighbors
	}
	return &ClassBalancer{
		threshold: DefaultImbalanceThreshold,
		neighbors: neighbors,
		logger:    logger,
	}
}

// NeedsBalancing reports whether the positive fraction is below the threshold.
func (b *ClassBalancer) NeedsBalancing(ds model.Dataset) bool {
	return ds.PositiveFraction() < b.threshold
}

// Balance returns a new dataset with synthetic positives appended after
// the original rows, or ds itself when no balancing is needed. The input
// is never modified. The same seed always yields the same output.
func (b *ClassBalancer) Balance(ctx context.Context, ds model.Dataset, seed uint64) (model.Dataset, bool, error) {
	if !b.NeedsBalancing(ds) {
		return ds, false, nil
	}

	var positives []int
	for i, y := range ds.Y {
		if y == 1 {
			positives = append(positives, i)
		}
	}
	negatives := ds.Len() - len(positives)
	if len(positives) < 2 {
		return model.Dataset{}, false, &model.DataError{
			Reason: fmt.Sprintf("oversampling needs at least 2 positive rows, got %d", len(positives)),
		}
	}

	k := min(b.neighbors, len(positives)-1)
	neighbors := nearestNeighbors(ds.X, positives, k)

	synthetic := negatives - len(positives)
	out := model.Dataset{
		Features: ds.Features,
		X:        make([][]float64, 0, ds.Len()+synthetic),
		Y:        make([]int, 0, ds.Len()+synthetic),
	}
	out.X = append(out.X, ds.X...)
	out.Y = append(out.Y, ds.Y...)

	rng := rand.New(rand.NewPCG(seed, seed^0x5eed))
	for s := 0; s < synthetic; s++ {
		if s%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return model.Dataset{}, false, err
			}
		}
		i := rng.IntN(len(positives))
		base := ds.X[positives[i]]
		nn := ds.X[neighbors[i][rng.IntN(k)]]
		gap := rng.Float64()

		// base + gap*(nn-base)
		row := slices.Clone(nn)
		floats.Sub(row, base)
		floats.Scale(gap, row)
		floats.Add(row, base)

		out.X = append(out.X, row)
		out.Y = append(out.Y, 1)
	}

	b.logger.Info("class balancing applied",
		slog.Int("positives_before", len(positives)),
		slog.Int("negatives", negatives),
		slog.Int("synthetic", synthetic),
		slog.Int("neighbors", k),
	)

	return out, true, nil
}

// nearestNeighbors returns, for every member of group, the row indices of
// its k nearest other members by Euclidean distance. Equal distances keep
// group order.
func nearestNeighbors(x [][]float64, group []int, k int) [][]int {
	type cand struct {
		idx  int
		dist float64
	}
	out := make([][]int, len(group))
	cands := make([]cand, 0, len(group)-1)
	for gi, i := range group {
		cands = cands[:0]
		for _, j := range group {
			if j == i {
				continue
			}
			cands = append(cands, cand{idx: j, dist: floats.Distance(x[i], x[j], 2)})
		}
		sort.SliceStable(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })
		nn := make([]int, k)
		for n := 0; n < k; n++ {
			nn[n] = cands[n].idx
		}
		out[gi] = nn
	}
	return out
}
