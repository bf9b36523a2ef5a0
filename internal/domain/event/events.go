package event

import (
	"github.com/google/uuid"

	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
	"github.com/bibbank/fraudscoring/pkg/events"
)

const (
	// EventTypeModelTrained is emitted when a training run produces a model.
	EventTypeModelTrained = "fraud.model.trained"

	// EventTypeModelPublished is emitted when a model version becomes live.
	EventTypeModelPublished = "fraud.model.published"

	// EventTypeModelSuperseded is emitted when a newer version replaces a live one.
	EventTypeModelSuperseded = "fraud.model.superseded"

	// EventTypeTrainingFailed is emitted when a training run errors or is cancelled.
	EventTypeTrainingFailed = "fraud.training.failed"

	// EventTypeTransactionFlagged is emitted when a scored transaction crosses
	// the decision threshold.
	EventTypeTransactionFlagged = "fraud.transaction.flagged"

	aggregateTrainingRun = "TrainingRun"
	aggregateTransaction = "Transaction"
)

// ModelTrained carries the evaluation of a freshly trained model.
type ModelTrained struct {
	events.BaseEvent
	Version         string                      `json:"version"`
	ModelPath       string                      `json:"model_path"`
	Accuracy        float64                     `json:"accuracy"`
	F1Score         float64                     `json:"f1_score"`
	Hyperparameters valueobject.Hyperparameters `json:"hyperparameters"`
}

// NewModelTrained creates a ModelTrained event for the run runID.
func NewModelTrained(runID uuid.UUID, version, modelPath string, accuracy, f1 float64, params valueobject.Hyperparameters) ModelTrained {
	return ModelTrained{
		BaseEvent:       events.NewBaseEvent(EventTypeModelTrained, runID, aggregateTrainingRun),
		Version:         version,
		ModelPath:       modelPath,
		Accuracy:        accuracy,
		F1Score:         f1,
		Hyperparameters: params,
	}
}

// ModelPublished announces that Version is now served.
type ModelPublished struct {
	events.BaseEvent
	Version string `json:"version"`
}

func NewModelPublished(runID uuid.UUID, version string) ModelPublished {
	return ModelPublished{
		BaseEvent: events.NewBaseEvent(EventTypeModelPublished, runID, aggregateTrainingRun),
		Version:   version,
	}
}

// ModelSuperseded announces that Version was replaced by SupersededBy.
type ModelSuperseded struct {
	events.BaseEvent
	Version      string `json:"version"`
	SupersededBy string `json:"superseded_by"`
}

func NewModelSuperseded(runID uuid.UUID, version, supersededBy string) ModelSuperseded {
	return ModelSuperseded{
		BaseEvent:    events.NewBaseEvent(EventTypeModelSuperseded, runID, aggregateTrainingRun),
		Version:      version,
		SupersededBy: supersededBy,
	}
}

// TrainingFailed records why a run produced no model.
type TrainingFailed struct {
	events.BaseEvent
	Reason string `json:"reason"`
}

func NewTrainingFailed(runID uuid.UUID, reason string) TrainingFailed {
	return TrainingFailed{
		BaseEvent: events.NewBaseEvent(EventTypeTrainingFailed, runID, aggregateTrainingRun),
		Reason:    reason,
	}
}

// TransactionFlagged is published for every transaction scored as fraud.
type TransactionFlagged struct {
	events.BaseEvent
	TransactionID    string  `json:"transaction_id,omitempty"`
	FraudProbability float64 `json:"fraud_probability"`
	Threshold        float64 `json:"threshold"`
	ModelVersion     string  `json:"model_version"`
}

// NewTransactionFlagged uses the transaction id as aggregate id when it is a
// UUID and a fresh id otherwise.
func NewTransactionFlagged(transactionID string, probability, threshold float64, modelVersion string) TransactionFlagged {
	aggregateID, err := uuid.Parse(transactionID)
	if err != nil {
		aggregateID = uuid.New()
	}
	return TransactionFlagged{
		BaseEvent:        events.NewBaseEvent(EventTypeTransactionFlagged, aggregateID, aggregateTransaction),
		TransactionID:    transactionID,
		FraudProbability: probability,
		Threshold:        threshold,
		ModelVersion:     modelVersion,
	}
}
