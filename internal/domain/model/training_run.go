package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bibbank/fraudscoring/internal/domain/event"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
	"github.com/bibbank/fraudscoring/pkg/events"
)

// TrainingRun is the aggregate root recording one training attempt and the
// lifecycle of the model version it produced.
type TrainingRun struct {
	startedAt       time.Time
	completedAt     *time.Time
	status          valueobject.ModelStatus
	hyperparameters valueobject.Hyperparameters
	datasetPath     string
	modelVersion    string
	modelPath       string
	failureReason   string
	supersededBy    string
	accuracy        float64
	f1Score         float64
	trainSamples    int
	testSamples     int
	events          events.Collector
	id              uuid.UUID
}

// NewTrainingRun starts an untrained run over datasetPath.
func NewTrainingRun(datasetPath string) (*TrainingRun, error) {
	if datasetPath == "" {
		return nil, fmt.Errorf("dataset path is required")
	}
	return &TrainingRun{
		id:          uuid.New(),
		datasetPath: datasetPath,
		status:      valueobject.ModelStatusUntrained,
		startedAt:   time.Now().UTC(),
	}, nil
}

// ReconstructTrainingRun rebuilds a run from persistence without recording events.
func ReconstructTrainingRun(
	id uuid.UUID,
	datasetPath string,
	status valueobject.ModelStatus,
	modelVersion string,
	modelPath string,
	hyperparameters valueobject.Hyperparameters,
	accuracy float64,
	f1Score float64,
	trainSamples int,
	testSamples int,
	failureReason string,
	supersededBy string,
	startedAt time.Time,
	completedAt *time.Time,
) *TrainingRun {
	return &TrainingRun{
		id:              id,
		datasetPath:     datasetPath,
		status:          status,
		modelVersion:    modelVersion,
		modelPath:       modelPath,
		hyperparameters: hyperparameters,
		accuracy:        accuracy,
		f1Score:         f1Score,
		trainSamples:    trainSamples,
		testSamples:     testSamples,
		failureReason:   failureReason,
		supersededBy:    supersededBy,
		startedAt:       startedAt,
		completedAt:     completedAt,
	}
}

func (r *TrainingRun) transition(next valueobject.ModelStatus) error {
	if !r.status.CanTransitionTo(next) {
		return fmt.Errorf("training run %s cannot move from %s to %s", r.id, r.status, next)
	}
	r.status = next
	return nil
}

// MarkTrained records the report of a completed, persisted model.
func (r *TrainingRun) MarkTrained(report TrainingReport) error {
	if err := r.transition(valueobject.ModelStatusTrained); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.completedAt = &now
	r.modelVersion = report.Version
	r.modelPath = report.ModelPath
	r.hyperparameters = report.Hyperparameters
	r.accuracy = report.Accuracy
	r.f1Score = report.F1Score
	r.trainSamples = report.TrainSamples
	r.testSamples = report.TestSamples

	r.events.Record(event.NewModelTrained(r.id, r.modelVersion, r.modelPath, r.accuracy, r.f1Score, r.hyperparameters))
	return nil
}

// MarkLoaded records that the run's version is now being served.
func (r *TrainingRun) MarkLoaded() error {
	if err := r.transition(valueobject.ModelStatusLoaded); err != nil {
		return err
	}
	r.events.Record(event.NewModelPublished(r.id, r.modelVersion))
	return nil
}

// MarkSuperseded records that version replaced this run's model.
func (r *TrainingRun) MarkSuperseded(version string) error {
	if err := r.transition(valueobject.ModelStatusSuperseded); err != nil {
		return err
	}
	r.supersededBy = version
	r.events.Record(event.NewModelSuperseded(r.id, r.modelVersion, version))
	return nil
}

// MarkFailed records that the run produced no model.
func (r *TrainingRun) MarkFailed(reason string) error {
	if err := r.transition(valueobject.ModelStatusFailed); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.completedAt = &now
	r.failureReason = reason
	r.events.Record(event.NewTrainingFailed(r.id, reason))
	return nil
}

func (r *TrainingRun) ID() uuid.UUID                                { return r.id }
func (r *TrainingRun) DatasetPath() string                          { return r.datasetPath }
func (r *TrainingRun) Status() valueobject.ModelStatus              { return r.status }
func (r *TrainingRun) ModelVersion() string                         { return r.modelVersion }
func (r *TrainingRun) ModelPath() string                            { return r.modelPath }
func (r *TrainingRun) Hyperparameters() valueobject.Hyperparameters { return r.hyperparameters }
func (r *TrainingRun) Accuracy() float64                            { return r.accuracy }
func (r *TrainingRun) F1Score() float64                             { return r.f1Score }
func (r *TrainingRun) TrainSamples() int                            { return r.trainSamples }
func (r *TrainingRun) TestSamples() int                             { return r.testSamples }
func (r *TrainingRun) FailureReason() string                        { return r.failureReason }
func (r *TrainingRun) SupersededBy() string                         { return r.supersededBy }
func (r *TrainingRun) StartedAt() time.Time                         { return r.startedAt }
func (r *TrainingRun) CompletedAt() *time.Time                      { return r.completedAt }

// DomainEvents returns and clears the events recorded since the last call.
func (r *TrainingRun) DomainEvents() []events.DomainEvent {
	return r.events.ClearEvents()
}
