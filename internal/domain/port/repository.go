package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
	"github.com/bibbank/fraudscoring/pkg/events"
)

// DatasetSource loads the pre-merged training dataset.
type DatasetSource interface {
	// Load returns *model.DataError when the dataset does not exist.
	Load(ctx context.Context) (model.RawDataset, error)
}

// Learner fits a classifier for one hyperparameter configuration.
type Learner interface {
	Fit(ctx context.Context, data model.Dataset, params valueobject.Hyperparameters, scalePosWeight float64) (model.Classifier, error)
}

// ArtifactStore persists co-versioned artifact bundles.
type ArtifactStore interface {
	// Save writes every part of bundle and then publishes it as current.
	// It returns the path of the persisted model blob.
	Save(ctx context.Context, bundle *model.ArtifactBundle) (string, error)
	// Load returns the current bundle or *model.ArtifactMissingError.
	Load(ctx context.Context) (*model.ArtifactBundle, error)
}

// SnapshotHolder hands out the live bundle and accepts replacements.
type SnapshotHolder interface {
	// Current returns the live bundle or *model.ArtifactMissingError.
	Current() (*model.ArtifactBundle, error)
	// Swap publishes next and returns the bundle it replaced, if any.
	Swap(next *model.ArtifactBundle) *model.ArtifactBundle
	// BeginPublish claims version for an in-process publish until end is
	// called, so file watchers do not activate it a second time.
	BeginPublish(version string) (end func())
}

// TrainingRunRepository stores training runs.
type TrainingRunRepository interface {
	Save(ctx context.Context, run *model.TrainingRun) error
	Update(ctx context.Context, run *model.TrainingRun) error
	// SaveAll upserts runs atomically: either every run is stored or none.
	SaveAll(ctx context.Context, runs ...*model.TrainingRun) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.TrainingRun, error)
	FindByVersion(ctx context.Context, version string) (*model.TrainingRun, error)
	// FindLive returns the runs whose version is trained or loaded and not
	// yet superseded.
	FindLive(ctx context.Context) ([]*model.TrainingRun, error)
	List(ctx context.Context, limit, offset int) ([]*model.TrainingRun, int, error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, evts ...events.DomainEvent) error
}

// ScoreCache memoises scoring results per model version and aligned vector.
type ScoreCache interface {
	Get(version string, features []float64) (model.ScoringResult, bool)
	Put(version string, features []float64, result model.ScoringResult)
}
