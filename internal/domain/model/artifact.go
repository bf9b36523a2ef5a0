package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
)

// Classifier is a fitted binary model.
type Classifier interface {
	// PredictProba returns the positive-class probability for one aligned row.
	PredictProba(features []float64) float64
	// NumFeatures is the input width the model was fitted on.
	NumFeatures() int
}

// LoginReference selects the instant days_since_login is measured from.
type LoginReference string

const (
	// LoginReferenceTransaction measures from the transaction's own timestamp.
	LoginReferenceTransaction LoginReference = "transaction"
	// LoginReferenceNow measures from the wall clock at derivation time.
	LoginReferenceNow LoginReference = "now"
)

// ArtifactManifest describes one published version.
type ArtifactManifest struct {
	Version         string                      `json:"version"`
	CreatedAt       time.Time                   `json:"created_at"`
	ModelKind       string                      `json:"model_kind"`
	FeatureCount    int                         `json:"feature_count"`
	Hyperparameters valueobject.Hyperparameters `json:"hyperparameters"`
	Accuracy        float64                     `json:"accuracy"`
	F1Score         float64                     `json:"f1_score"`
	LoginReference  LoginReference              `json:"login_reference"`
}

// ArtifactBundle is the co-versioned triple of model, encoder and feature
// list. A bundle is never mutated after construction; serving swaps whole
// bundles.
type ArtifactBundle struct {
	Manifest   ArtifactManifest
	Classifier Classifier
	Encoder    *CategoryEncoder
	Features   FeatureSchema
	// ModelPath is where the model blob was persisted, if it was.
	ModelPath string
}

func (b *ArtifactBundle) Version() string { return b.Manifest.Version }

// NewArtifactVersion builds a sortable version id from the creation time and
// the training run that produced it.
func NewArtifactVersion(createdAt time.Time, runID uuid.UUID) string {
	return createdAt.UTC().Format("20060102T150405Z") + "-" + runID.String()[:8]
}
