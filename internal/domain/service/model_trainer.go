package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/port"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
)

// classifierCutoff is the probability cutoff used while selecting and
// evaluating models. The serving threshold is applied separately.
const classifierCutoff = 0.5

// TrainerConfig controls the split and the hyperparameter search.
type TrainerConfig struct {
	Grid     valueobject.ParamGrid
	Folds    int
	TestSize float64
	Seed     uint64
	Workers  int
}

// DefaultTrainerConfig returns the production search settings.
func DefaultTrainerConfig(seed uint64) TrainerConfig {
	return TrainerConfig{
		Grid:     valueobject.DefaultParamGrid(),
		Folds:    5,
		TestSize: 0.2,
		Seed:     seed,
		Workers:  runtime.NumCPU(),
	}
}

// CandidateScore is the cross-validated F1 of one grid point.
type CandidateScore struct {
	Hyperparameters valueobject.Hyperparameters
	FoldScores      []float64
	MeanF1          float64
}

// TrainingOutcome is everything ModelTrainer produces for one dataset.
type TrainingOutcome struct {
	Classifier     model.Classifier
	Best           valueobject.Hyperparameters
	CVScore        float64
	Candidates     []CandidateScore
	Accuracy       float64
	F1Score        float64
	ScalePosWeight float64
	TrainSamples   int
	TestSamples    int
	Duration       time.Duration
}

// ModelTrainer runs the held-out split, the cross-validated grid search
// and the final refit.
type ModelTrainer struct {
	learner port.Learner
	cfg     TrainerConfig
	logger  *slog.Logger
}

// NewModelTrainer validates cfg and creates a ModelTrainer.
func NewModelTrainer(learner port.Learner, cfg TrainerConfig, logger *slog.Logger) (*ModelTrainer, error) {
	if cfg.Folds < 2 {
		return nil, fmt.Errorf("folds must be at least 2, got %d", cfg.Folds)
	}
	if cfg.TestSize <= 0 || cfg.TestSize >= 1 {
		return nil, fmt.Errorf("test size must be in (0, 1), got %g", cfg.TestSize)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if _, err := cfg.Grid.Candidates(); err != nil {
		return nil, fmt.Errorf("invalid param grid: %w", err)
	}
	return &ModelTrainer{learner: learner, cfg: cfg, logger: logger}, nil
}

// Train fits and evaluates a model on ds. Cancelling ctx aborts the run
// with ctx's error and no result.
func (t *ModelTrainer) Train(ctx context.Context, ds model.Dataset) (*TrainingOutcome, error) {
	start := time.Now()

	train, test := t.split(ds)
	if train.Len() < t.cfg.Folds {
		return nil, &model.DataError{Reason: fmt.Sprintf("training split has %d rows, need at least %d", train.Len(), t.cfg.Folds)}
	}

	neg, pos := train.ClassCounts()
	if pos == 0 {
		return nil, &model.DataError{Reason: "training split has no positive rows"}
	}
	scalePosWeight := float64(neg) / float64(pos)

	t.logger.Info("grid search starting",
		slog.Int("train_rows", train.Len()),
		slog.Int("test_rows", test.Len()),
		slog.Float64("scale_pos_weight", scalePosWeight),
		slog.Int("workers", t.cfg.Workers),
	)

	scores, err := t.search(ctx, train, scalePosWeight)
	if err != nil {
		return nil, err
	}

	best := 0
	for i := range scores {
		if scores[i].MeanF1 > scores[best].MeanF1 {
			best = i
		}
	}
	bestParams := scores[best].Hyperparameters
	t.logger.Info("grid search finished",
		slog.String("best_params", bestParams.String()),
		slog.Float64("cv_f1", scores[best].MeanF1),
	)

	clf, err := t.learner.Fit(ctx, train, bestParams, scalePosWeight)
	if err != nil {
		return nil, fmt.Errorf("failed to refit best candidate: %w", err)
	}

	pred := Predict(clf, test.X, classifierCutoff)
	return &TrainingOutcome{
		Classifier:     clf,
		Best:           bestParams,
		CVScore:        Round4(scores[best].MeanF1),
		Candidates:     scores,
		Accuracy:       Round4(Accuracy(test.Y, pred)),
		F1Score:        Round4(F1(test.Y, pred)),
		ScalePosWeight: scalePosWeight,
		TrainSamples:   train.Len(),
		TestSamples:    test.Len(),
		Duration:       time.Since(start),
	}, nil
}

// split shuffles row indexes with the configured seed and holds out
// ceil(TestSize*n) rows for evaluation.
func (t *ModelTrainer) split(ds model.Dataset) (train, test model.Dataset) {
	rng := rand.New(rand.NewPCG(t.cfg.Seed, t.cfg.Seed^0x7e57))
	perm := rng.Perm(ds.Len())
	nTest := int(math.Ceil(t.cfg.TestSize * float64(ds.Len())))
	return ds.Subset(perm[nTest:]), ds.Subset(perm[:nTest])
}

// stratifiedFolds assigns the rows of each class round-robin to folds so
// every fold keeps the class ratio.
func stratifiedFolds(y []int, k int) (trainIdx, valIdx [][]int) {
	fold := make([]int, len(y))
	seen := map[int]int{}
	for i, label := range y {
		fold[i] = seen[label] % k
		seen[label]++
	}

	trainIdx = make([][]int, k)
	valIdx = make([][]int, k)
	for f := 0; f < k; f++ {
		for i := range y {
			if fold[i] == f {
				valIdx[f] = append(valIdx[f], i)
			} else {
				trainIdx[f] = append(trainIdx[f], i)
			}
		}
	}
	return trainIdx, valIdx
}

// search evaluates every (candidate, fold) pair concurrently. Each pair
// writes only its own slot, so the result does not depend on scheduling.
func (t *ModelTrainer) search(ctx context.Context, train model.Dataset, scalePosWeight float64) ([]CandidateScore, error) {
	candidates, err := t.cfg.Grid.Candidates()
	if err != nil {
		return nil, err
	}
	foldTrain, foldVal := stratifiedFolds(train.Y, t.cfg.Folds)

	scores := make([]CandidateScore, len(candidates))
	for i, c := range candidates {
		scores[i] = CandidateScore{Hyperparameters: c, FoldScores: make([]float64, t.cfg.Folds)}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Workers)
	for ci := range candidates {
		for fi := 0; fi < t.cfg.Folds; fi++ {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				fitSet := train.Subset(foldTrain[fi])
				valSet := train.Subset(foldVal[fi])

				clf, err := t.learner.Fit(gctx, fitSet, candidates[ci], scalePosWeight)
				if err != nil {
					return fmt.Errorf("fold %d of %s: %w", fi, candidates[ci], err)
				}
				scores[ci].FoldScores[fi] = F1(valSet.Y, Predict(clf, valSet.X, classifierCutoff))
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range scores {
		var sum float64
		for _, s := range scores[i].FoldScores {
			sum += s
		}
		scores[i].MeanF1 = sum / float64(len(scores[i].FoldScores))
	}
	return scores, nil
}
