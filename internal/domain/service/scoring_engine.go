package service

import (
	"log/slog"

	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
)

// PreparedInput is a record aligned to a bundle's schema, ready to predict.
type PreparedInput struct {
	Values         []float64
	UnseenCategory bool
	Missing        []string
	Extra          []string
}

// ScoringEngine turns one raw record into a fraud decision against a
// loaded artifact bundle. It holds no per-request state and is safe for
// concurrent use.
type ScoringEngine struct {
	engineer  *FeatureEngineer
	threshold valueobject.DecisionThreshold
	logger    *slog.Logger
}

// NewScoringEngine creates a ScoringEngine.
func NewScoringEngine(engineer *FeatureEngineer, threshold valueobject.DecisionThreshold, logger *slog.Logger) *ScoringEngine {
	return &ScoringEngine{engineer: engineer, threshold: threshold, logger: logger}
}

// Threshold returns the decision threshold in use.
func (e *ScoringEngine) Threshold() float64 {
	return e.threshold.Value()
}

// Prepare derives the candidate vector, encodes the category against the
// bundle's vocabulary and aligns the result to the bundle's schema. Unseen
// categories and schema mismatches are absorbed, never returned as errors.
func (e *ScoringEngine) Prepare(bundle *model.ArtifactBundle, r model.TransactionRecord) PreparedInput {
	candidate := e.engineer.Derive(r, bundle.Manifest.LoginReference)

	var unseen bool
	if r.Category != nil {
		code, ok := bundle.Encoder.Encode(*r.Category)
		candidate[model.ColumnCategory] = float64(code)
		if !ok {
			unseen = true
			e.logger.Debug("unseen category mapped to sentinel",
				slog.String("category", *r.Category),
				slog.String("model_version", bundle.Version()),
			)
		}
	}

	aligned := bundle.Features.Align(candidate)
	if len(aligned.Missing) > 0 || len(aligned.Extra) > 0 {
		e.logger.Debug("candidate realigned to trained schema",
			slog.Any("missing", aligned.Missing),
			slog.Any("dropped", aligned.Extra),
		)
	}

	return PreparedInput{
		Values:         aligned.Values,
		UnseenCategory: unseen,
		Missing:        aligned.Missing,
		Extra:          aligned.Extra,
	}
}

// Decide predicts on prepared input. The decision uses the unrounded
// probability; the reported probability is rounded to 4 decimal places.
func (e *ScoringEngine) Decide(bundle *model.ArtifactBundle, in PreparedInput) model.ScoringResult {
	p := bundle.Classifier.PredictProba(in.Values)
	return model.ScoringResult{
		IsFraud:          e.threshold.Decide(p),
		FraudProbability: Round4(p),
		ModelVersion:     bundle.Version(),
		Threshold:        e.threshold.Value(),
		UnseenCategory:   in.UnseenCategory,
		MissingFeatures:  len(in.Missing),
		DroppedFields:    len(in.Extra),
	}
}

// Score is Prepare followed by Decide.
func (e *ScoringEngine) Score(bundle *model.ArtifactBundle, r model.TransactionRecord) model.ScoringResult {
	return e.Decide(bundle, e.Prepare(bundle, r))
}
