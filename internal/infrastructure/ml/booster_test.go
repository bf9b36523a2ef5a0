package ml_test

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
	"github.com/bibbank/fraudscoring/internal/infrastructure/ml"
)

// thresholdDataset labels a row positive when feature 0 exceeds 0.7.
// Feature 1 is noise.
func thresholdDataset(t *testing.T, n int) model.Dataset {
	t.Helper()
	schema, err := model.NewFeatureSchema([]string{"amount", "noise"})
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 11))
	ds := model.Dataset{Features: schema}
	for i := 0; i < n; i++ {
		a := rng.Float64()
		y := 0
		if a > 0.7 {
			y = 1
		}
		ds.X = append(ds.X, []float64{a, rng.Float64()})
		ds.Y = append(ds.Y, y)
	}
	return ds
}

func params() valueobject.Hyperparameters {
	return valueobject.Hyperparameters{NEstimators: 30, MaxDepth: 3, LearningRate: 0.3}
}

func TestBooster_LearnsThreshold(t *testing.T) {
	ds := thresholdDataset(t, 400)
	b := ml.NewBooster(ml.DefaultBoostingConfig())

	clf, err := b.Fit(context.Background(), ds, params(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, clf.NumFeatures())

	assert.Greater(t, clf.PredictProba([]float64{0.95, 0.5}), 0.9)
	assert.Less(t, clf.PredictProba([]float64{0.1, 0.5}), 0.1)

	correct := 0
	for i, x := range ds.X {
		pred := 0
		if clf.PredictProba(x) >= 0.5 {
			pred = 1
		}
		if pred == ds.Y[i] {
			correct++
		}
	}
	assert.GreaterOrEqual(t, float64(correct)/float64(ds.Len()), 0.97)
}

func TestBooster_Deterministic(t *testing.T) {
	ds := thresholdDataset(t, 200)
	b := ml.NewBooster(ml.DefaultBoostingConfig())

	first, err := b.Fit(context.Background(), ds, params(), 2)
	require.NoError(t, err)
	second, err := b.Fit(context.Background(), ds, params(), 2)
	require.NoError(t, err)

	for _, x := range ds.X {
		assert.Equal(t, first.PredictProba(x), second.PredictProba(x))
	}
}

func TestBooster_ScalePosWeightRaisesPositiveScores(t *testing.T) {
	schema, err := model.NewFeatureSchema([]string{"amount"})
	require.NoError(t, err)
	// Identical rows with mixed labels: only the weighting separates the fits.
	ds := model.Dataset{Features: schema}
	for i := 0; i < 100; i++ {
		ds.X = append(ds.X, []float64{1})
		y := 0
		if i%10 == 0 {
			y = 1
		}
		ds.Y = append(ds.Y, y)
	}

	b := ml.NewBooster(ml.DefaultBoostingConfig())
	plain, err := b.Fit(context.Background(), ds, params(), 1)
	require.NoError(t, err)
	weighted, err := b.Fit(context.Background(), ds, params(), 9)
	require.NoError(t, err)

	assert.Greater(t, weighted.PredictProba([]float64{1}), plain.PredictProba([]float64{1}))
}

func TestBooster_FitErrors(t *testing.T) {
	b := ml.NewBooster(ml.DefaultBoostingConfig())

	t.Run("invalid params", func(t *testing.T) {
		_, err := b.Fit(context.Background(), thresholdDataset(t, 10), valueobject.Hyperparameters{}, 1)
		require.Error(t, err)
	})

	t.Run("empty dataset", func(t *testing.T) {
		_, err := b.Fit(context.Background(), model.Dataset{}, params(), 1)
		require.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := b.Fit(ctx, thresholdDataset(t, 10), params(), 1)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestMarshalRoundTripPreservesPredictions(t *testing.T) {
	ds := thresholdDataset(t, 300)
	clf, err := ml.NewBooster(ml.DefaultBoostingConfig()).Fit(context.Background(), ds, params(), 3)
	require.NoError(t, err)

	data, kind, err := ml.Marshal(clf)
	require.NoError(t, err)
	assert.Equal(t, ml.KindGradientBoostedTrees, kind)

	loaded, err := ml.Unmarshal(kind, data)
	require.NoError(t, err)
	for _, x := range ds.X {
		assert.Equal(t, clf.PredictProba(x), loaded.PredictProba(x))
	}
}

func TestUnmarshal_Rejects(t *testing.T) {
	tests := []struct {
		name string
		kind string
		data string
	}{
		{name: "unknown kind", kind: "random_forest", data: `{}`},
		{name: "malformed json", kind: ml.KindGradientBoostedTrees, data: `{`},
		{name: "no features", kind: ml.KindGradientBoostedTrees, data: `{"features":0,"trees":[]}`},
		{name: "empty tree", kind: ml.KindGradientBoostedTrees, data: `{"features":1,"trees":[{"nodes":[]}]}`},
		{
			name: "feature out of range",
			kind: ml.KindGradientBoostedTrees,
			data: `{"features":1,"trees":[{"nodes":[{"feature":3,"left":1,"right":2},{"leaf":true},{"leaf":true}]}]}`,
		},
		{
			name: "child cycle",
			kind: ml.KindGradientBoostedTrees,
			data: `{"features":1,"trees":[{"nodes":[{"feature":0,"left":0,"right":1},{"leaf":true}]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ml.Unmarshal(tt.kind, []byte(tt.data))
			require.Error(t, err)
		})
	}
}

func TestMarshal_UnsupportedType(t *testing.T) {
	_, _, err := ml.Marshal(struct{}{})
	require.Error(t, err)
}
