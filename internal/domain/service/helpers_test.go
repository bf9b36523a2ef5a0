package service_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

func mustTime(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

// fixedClassifier returns the same probability for every row and records
// the last input.
type fixedClassifier struct {
	mu    sync.Mutex
	p     float64
	width int
	last  []float64
}

func (c *fixedClassifier) PredictProba(x []float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = append([]float64(nil), x...)
	return c.p
}

func (c *fixedClassifier) NumFeatures() int { return c.width }

func (c *fixedClassifier) lastInput() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// firstFeatureClassifier uses feature 0 as the probability.
type firstFeatureClassifier struct{ width int }

func (c firstFeatureClassifier) PredictProba(x []float64) float64 { return x[0] }
func (c firstFeatureClassifier) NumFeatures() int                 { return c.width }

// mockLearner counts fits and returns a perfect classifier for MaxDepth 6
// and an always-negative one otherwise.
type mockLearner struct {
	mu     sync.Mutex
	calls  int
	params []valueobject.Hyperparameters
	spw    []float64
	err    error
}

func (m *mockLearner) Fit(ctx context.Context, data model.Dataset, params valueobject.Hyperparameters, scalePosWeight float64) (model.Classifier, error) {
	m.mu.Lock()
	m.calls++
	m.params = append(m.params, params)
	m.spw = append(m.spw, scalePosWeight)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	if params.MaxDepth == 6 {
		return firstFeatureClassifier{width: data.Features.Len()}, nil
	}
	return &fixedClassifier{p: 0, width: data.Features.Len()}, nil
}
