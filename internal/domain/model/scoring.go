package model

// ScoringResult is the outcome of scoring one transaction.
type ScoringResult struct {
	IsFraud          int
	FraudProbability float64
	ModelVersion     string
	Threshold        float64
	UnseenCategory   bool
	MissingFeatures  int
	DroppedFields    int
}
