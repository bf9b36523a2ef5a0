package usecase_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bibbank/fraudscoring/internal/application/usecase"
	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/port"
	"github.com/bibbank/fraudscoring/internal/domain/service"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
	"github.com/bibbank/fraudscoring/internal/infrastructure/artifact"
	"github.com/bibbank/fraudscoring/internal/infrastructure/memory"
	"github.com/bibbank/fraudscoring/internal/infrastructure/ml"
	"github.com/bibbank/fraudscoring/pkg/events"
	"github.com/bibbank/fraudscoring/pkg/testutil"
)

// --- Mock implementations ---

type mockDatasetSource struct {
	raw      model.RawDataset
	err      error
	loadFunc func(ctx context.Context) (model.RawDataset, error)
}

func (m *mockDatasetSource) Load(ctx context.Context) (model.RawDataset, error) {
	if m.loadFunc != nil {
		return m.loadFunc(ctx)
	}
	return m.raw, m.err
}

type mockEventPublisher struct {
	mu              sync.Mutex
	publishedEvents []events.DomainEvent
	publishFunc     func(ctx context.Context, evts ...events.DomainEvent) error
}

func (m *mockEventPublisher) Publish(ctx context.Context, evts ...events.DomainEvent) error {
	if m.publishFunc != nil {
		return m.publishFunc(ctx, evts...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedEvents = append(m.publishedEvents, evts...)
	return nil
}

func (m *mockEventPublisher) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.publishedEvents))
	for _, e := range m.publishedEvents {
		out = append(out, e.EventType())
	}
	return out
}

// countingClassifier returns p and counts predictions.
type countingClassifier struct {
	mu    sync.Mutex
	p     float64
	width int
	calls int
}

func (c *countingClassifier) PredictProba([]float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.p
}

func (c *countingClassifier) NumFeatures() int { return c.width }

func (c *countingClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Fixtures ---

// smallGrid keeps the end-to-end tests fast.
var smallGrid = valueobject.ParamGrid{
	NEstimators:   []int{30},
	MaxDepth:      []int{3},
	LearningRates: []float64{0.3},
}

type trainingHarness struct {
	train     *usecase.TrainModel
	source    *mockDatasetSource
	store     *artifact.FileStore
	holder    *artifact.Holder
	runs      *memory.TrainingRunRepository
	publisher *mockEventPublisher
	engineer  *service.FeatureEngineer
}

func newTrainingHarness(t *testing.T, raw model.RawDataset) *trainingHarness {
	t.Helper()
	return newTrainingHarnessWithStore(t, raw, nil)
}

// newTrainingHarnessWithStore lets wrap decorate the file store the use case
// writes through. wrap may be nil.
func newTrainingHarnessWithStore(t *testing.T, raw model.RawDataset, wrap func(*trainingHarness) port.ArtifactStore) *trainingHarness {
	t.Helper()
	logger := discardLogger()

	cfg := service.DefaultTrainerConfig(42)
	cfg.Grid = smallGrid
	cfg.Workers = 2
	trainer, err := service.NewModelTrainer(ml.NewBooster(ml.DefaultBoostingConfig()), cfg, logger)
	require.NoError(t, err)

	h := &trainingHarness{
		source:    &mockDatasetSource{raw: raw},
		store:     artifact.NewFileStore(t.TempDir(), logger),
		holder:    artifact.NewHolder(),
		runs:      memory.NewTrainingRunRepository(),
		publisher: &mockEventPublisher{},
		engineer:  service.NewFeatureEngineer(model.LoginReferenceTransaction, logger),
	}
	var store port.ArtifactStore = h.store
	if wrap != nil {
		store = wrap(h)
	}
	h.train = usecase.NewTrainModel(usecase.TrainModelDeps{
		Source:    h.source,
		Engineer:  h.engineer,
		Balancer:  service.NewClassBalancer(service.DefaultSMOTENeighbors, logger),
		Trainer:   trainer,
		Store:     store,
		Holder:    h.holder,
		Runs:      h.runs,
		Activator: usecase.NewActivateModel(h.runs, h.publisher, logger),
		Publisher: h.publisher,
		Logger:    logger,
	}, "data/preprocessed_dataset.csv", 42)
	return h
}

func syntheticRaw(rows int, rate float64) model.RawDataset {
	return testutil.SyntheticDataset(testutil.DatasetOptions{Rows: rows, PositiveRate: rate, Seed: 7})
}

func newEngine(t *testing.T) *service.ScoringEngine {
	t.Helper()
	th, err := valueobject.NewDecisionThreshold(valueobject.DefaultDecisionThreshold)
	require.NoError(t, err)
	return service.NewScoringEngine(service.NewFeatureEngineer(model.LoginReferenceTransaction, discardLogger()), th, discardLogger())
}
