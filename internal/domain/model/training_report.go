package model

import (
	"github.com/google/uuid"

	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
)

// TrainingReport summarises one training run. Metrics are rounded to 4
// decimal places.
type TrainingReport struct {
	RunID           uuid.UUID
	Version         string
	ModelPath       string
	Accuracy        float64
	F1Score         float64
	CVScore         float64
	Hyperparameters valueobject.Hyperparameters
	ScalePosWeight  float64
	Balanced        bool
	TrainSamples    int
	TestSamples     int
}
