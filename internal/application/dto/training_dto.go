package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
)

// TrainResponse is the output DTO of a completed training run.
type TrainResponse struct {
	Hyperparameters valueobject.Hyperparameters `json:"hyperparameters"`
	Message         string                      `json:"message"`
	ModelVersion    string                      `json:"model_version"`
	ModelPath       string                      `json:"model_path"`
	Accuracy        float64                     `json:"accuracy"`
	F1Score         float64                     `json:"f1_score"`
	CVScore         float64                     `json:"cv_f1_score"`
	ScalePosWeight  float64                     `json:"scale_pos_weight"`
	TrainSamples    int                         `json:"train_samples"`
	TestSamples     int                         `json:"test_samples"`
	RunID           uuid.UUID                   `json:"run_id"`
	Balanced        bool                        `json:"balanced"`
}

// FromTrainingReport maps a training report to the response DTO.
func FromTrainingReport(r model.TrainingReport) TrainResponse {
	return TrainResponse{
		RunID:           r.RunID,
		Message:         "Model trained and saved at: " + r.ModelPath,
		ModelVersion:    r.Version,
		ModelPath:       r.ModelPath,
		Accuracy:        r.Accuracy,
		F1Score:         r.F1Score,
		CVScore:         r.CVScore,
		Hyperparameters: r.Hyperparameters,
		ScalePosWeight:  r.ScalePosWeight,
		Balanced:        r.Balanced,
		TrainSamples:    r.TrainSamples,
		TestSamples:     r.TestSamples,
	}
}

// ListTrainingRunsRequest is the input DTO for listing training runs.
type ListTrainingRunsRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// TrainingRunResponse is the output DTO for one training run.
type TrainingRunResponse struct {
	StartedAt       time.Time                   `json:"started_at"`
	CompletedAt     *time.Time                  `json:"completed_at,omitempty"`
	Hyperparameters valueobject.Hyperparameters `json:"hyperparameters"`
	DatasetPath     string                      `json:"dataset_path"`
	Status          string                      `json:"status"`
	ModelVersion    string                      `json:"model_version,omitempty"`
	ModelPath       string                      `json:"model_path,omitempty"`
	FailureReason   string                      `json:"failure_reason,omitempty"`
	SupersededBy    string                      `json:"superseded_by,omitempty"`
	Accuracy        float64                     `json:"accuracy"`
	F1Score         float64                     `json:"f1_score"`
	TrainSamples    int                         `json:"train_samples"`
	TestSamples     int                         `json:"test_samples"`
	ID              uuid.UUID                   `json:"id"`
}

// ListTrainingRunsResponse is a page of training runs.
type ListTrainingRunsResponse struct {
	Runs       []TrainingRunResponse `json:"runs"`
	TotalCount int                   `json:"total_count"`
}

// FromTrainingRun maps a training run aggregate to the response DTO.
func FromTrainingRun(r *model.TrainingRun) TrainingRunResponse {
	return TrainingRunResponse{
		ID:              r.ID(),
		DatasetPath:     r.DatasetPath(),
		Status:          r.Status().String(),
		ModelVersion:    r.ModelVersion(),
		ModelPath:       r.ModelPath(),
		Hyperparameters: r.Hyperparameters(),
		Accuracy:        r.Accuracy(),
		F1Score:         r.F1Score(),
		TrainSamples:    r.TrainSamples(),
		TestSamples:     r.TestSamples(),
		FailureReason:   r.FailureReason(),
		SupersededBy:    r.SupersededBy(),
		StartedAt:       r.StartedAt(),
		CompletedAt:     r.CompletedAt(),
	}
}
