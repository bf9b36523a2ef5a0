package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/service"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
)

// separable has feature 0 equal to the label, so a classifier reading it
// is perfect.
func separable(t *testing.T, n int) model.Dataset {
	t.Helper()
	schema, err := model.NewFeatureSchema([]string{"signal", "noise"})
	require.NoError(t, err)
	ds := model.Dataset{Features: schema}
	for i := 0; i < n; i++ {
		y := 0
		if i%4 == 0 {
			y = 1
		}
		ds.X = append(ds.X, []float64{float64(y), float64(i % 9)})
		ds.Y = append(ds.Y, y)
	}
	return ds
}

func testConfig() service.TrainerConfig {
	return service.TrainerConfig{
		Grid: valueobject.ParamGrid{
			NEstimators:   []int{10},
			MaxDepth:      []int{5, 6},
			LearningRates: []float64{0.1},
		},
		Folds:    3,
		TestSize: 0.2,
		Seed:     42,
		Workers:  4,
	}
}

func TestModelTrainer_SelectsBestCandidate(t *testing.T) {
	learner := &mockLearner{}
	trainer, err := service.NewModelTrainer(learner, testConfig(), discardLogger())
	require.NoError(t, err)

	out, err := trainer.Train(context.Background(), separable(t, 100))
	require.NoError(t, err)

	assert.Equal(t, 6, out.Best.MaxDepth)
	assert.Equal(t, 1.0, out.CVScore)
	assert.Equal(t, 1.0, out.Accuracy)
	assert.Equal(t, 1.0, out.F1Score)
	assert.Equal(t, 80, out.TrainSamples)
	assert.Equal(t, 20, out.TestSamples)
	require.Len(t, out.Candidates, 2)
	assert.Zero(t, out.Candidates[0].MeanF1)

	// 2 candidates x 3 folds plus the refit.
	assert.Equal(t, 7, learner.calls)
	assert.Equal(t, 6, learner.params[len(learner.params)-1].MaxDepth)

	neg, pos := 0, 0
	for _, y := range separable(t, 100).Y {
		if y == 1 {
			pos++
		} else {
			neg++
		}
	}
	assert.InDelta(t, float64(neg)/float64(pos), out.ScalePosWeight, 1.0)
	for _, spw := range learner.spw {
		assert.Equal(t, out.ScalePosWeight, spw)
	}
}

func TestModelTrainer_TieKeepsGridOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Grid.MaxDepth = []int{6}
	cfg.Grid.NEstimators = []int{20, 10}

	trainer, err := service.NewModelTrainer(&mockLearner{}, cfg, discardLogger())
	require.NoError(t, err)

	out, err := trainer.Train(context.Background(), separable(t, 60))
	require.NoError(t, err)
	assert.Equal(t, 20, out.Best.NEstimators)
}

func TestModelTrainer_SplitIsSeeded(t *testing.T) {
	run := func(seed uint64) *service.TrainingOutcome {
		cfg := testConfig()
		cfg.Seed = seed
		trainer, err := service.NewModelTrainer(&mockLearner{}, cfg, discardLogger())
		require.NoError(t, err)
		out, err := trainer.Train(context.Background(), separable(t, 101))
		require.NoError(t, err)
		return out
	}

	a, b := run(42), run(42)
	assert.Equal(t, a.ScalePosWeight, b.ScalePosWeight)
	assert.Equal(t, a.Candidates, b.Candidates)
	assert.Equal(t, 21, a.TestSamples)
}

func TestModelTrainer_Errors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.Folds = 1
		_, err := service.NewModelTrainer(&mockLearner{}, cfg, discardLogger())
		assert.Error(t, err)
	})

	t.Run("no positives", func(t *testing.T) {
		trainer, err := service.NewModelTrainer(&mockLearner{}, testConfig(), discardLogger())
		require.NoError(t, err)
		ds := separable(t, 40)
		for i := range ds.Y {
			ds.Y[i] = 0
		}
		_, err = trainer.Train(context.Background(), ds)
		assert.ErrorIs(t, err, model.ErrData)
	})

	t.Run("learner failure", func(t *testing.T) {
		boom := errors.New("boom")
		trainer, err := service.NewModelTrainer(&mockLearner{err: boom}, testConfig(), discardLogger())
		require.NoError(t, err)
		_, err = trainer.Train(context.Background(), separable(t, 40))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("cancelled", func(t *testing.T) {
		trainer, err := service.NewModelTrainer(&mockLearner{}, testConfig(), discardLogger())
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = trainer.Train(ctx, separable(t, 40))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMetrics(t *testing.T) {
	tests := []struct {
		name     string
		y, pred  []int
		accuracy float64
		f1       float64
	}{
		{name: "perfect", y: []int{1, 0, 1}, pred: []int{1, 0, 1}, accuracy: 1, f1: 1},
		{name: "no positives predicted", y: []int{1, 0, 0, 0}, pred: []int{0, 0, 0, 0}, accuracy: 0.75, f1: 0},
		{name: "mixed", y: []int{1, 1, 0, 0}, pred: []int{1, 0, 1, 0}, accuracy: 0.5, f1: 0.5},
		{name: "empty", y: nil, pred: nil, accuracy: 0, f1: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.accuracy, service.Accuracy(tt.y, tt.pred), 1e-12)
			assert.InDelta(t, tt.f1, service.F1(tt.y, tt.pred), 1e-12)
		})
	}

	assert.Equal(t, 0.1235, service.Round4(0.123456))
	assert.Equal(t, 0.3, service.Round4(0.29999))
}
