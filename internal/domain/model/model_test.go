package model_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/fraudscoring/internal/domain/event"
	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("no such file")
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{name: "data", err: &model.DataError{Path: "data.csv", Err: cause}, sentinel: model.ErrData},
		{name: "schema", err: &model.SchemaError{Column: "isfraud"}, sentinel: model.ErrSchema},
		{name: "artifact", err: &model.ArtifactMissingError{Artifact: "model", Err: cause}, sentinel: model.ErrArtifactMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("failed to train: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			for _, other := range []error{model.ErrData, model.ErrSchema, model.ErrArtifactMissing} {
				if other != tt.sentinel {
					assert.NotErrorIs(t, wrapped, other)
				}
			}
		})
	}

	var schemaErr *model.SchemaError
	require.ErrorAs(t, fmt.Errorf("wrap: %w", &model.SchemaError{Column: "category"}), &schemaErr)
	assert.Equal(t, "category", schemaErr.Column)
	assert.ErrorIs(t, &model.DataError{Err: cause}, cause)
}

func TestNormalizeColumn(t *testing.T) {
	assert.Equal(t, "amount", model.NormalizeColumn(" Amount "))
	assert.Equal(t, model.ColumnLabel, model.NormalizeColumn("FraudIndicator"))
	assert.Equal(t, model.ColumnLabel, model.NormalizeColumn("isFraud"))
	assert.True(t, model.IsIdentifierColumn("merchantname"))
	assert.False(t, model.IsIdentifierColumn("amount"))
}

func TestFeatureSchema_Align(t *testing.T) {
	schema, err := model.NewFeatureSchema([]string{"amount", "category", "hour", "days_since_login"})
	require.NoError(t, err)

	candidate := model.FeatureVector{"amount": 120.5, "hour": 3, "unknown_field": 9}
	aligned := schema.Align(candidate)

	assert.Equal(t, []float64{120.5, 0, 3, 0}, aligned.Values)
	assert.ElementsMatch(t, []string{"category", "days_since_login"}, aligned.Missing)
	assert.Equal(t, []string{"unknown_field"}, aligned.Extra)

	again := schema.Align(schema.Vector(aligned.Values))
	assert.Equal(t, aligned.Values, again.Values)
	assert.Empty(t, again.Missing)
	assert.Empty(t, again.Extra)
}

func TestFeatureSchema_Validation(t *testing.T) {
	_, err := model.NewFeatureSchema(nil)
	assert.Error(t, err)
	_, err = model.NewFeatureSchema([]string{"a", "a"})
	assert.ErrorContains(t, err, "duplicate")

	schema, err := model.NewFeatureSchema([]string{"b", "a"})
	require.NoError(t, err)
	data, err := json.Marshal(schema)
	require.NoError(t, err)
	assert.JSONEq(t, `["b","a"]`, string(data))

	var decoded model.FeatureSchema
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"b", "a"}, decoded.Names())
	assert.Equal(t, 1, decoded.Index("a"))
	assert.Equal(t, -1, decoded.Index("zzz"))
}

func TestCategoryEncoder(t *testing.T) {
	enc := model.FitCategoryEncoder([]string{"transfer", "atm", "pos", "atm", "online"})
	assert.Equal(t, []string{"atm", "online", "pos", "transfer"}, enc.Classes())

	code, ok := enc.Encode("pos")
	assert.True(t, ok)
	assert.Equal(t, 2, code)

	code, ok = enc.Encode("unknown_category_xyz")
	assert.False(t, ok)
	assert.Equal(t, model.UnseenCategoryCode, code)

	data, err := json.Marshal(enc)
	require.NoError(t, err)
	var decoded model.CategoryEncoder
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, enc.Classes(), decoded.Classes())

	assert.Error(t, json.Unmarshal([]byte(`{"classes":["b","a"]}`), &decoded))
}

func TestDataset(t *testing.T) {
	ds := model.Dataset{X: [][]float64{{1}, {2}, {3}, {4}}, Y: []int{0, 1, 0, 0}}
	neg, pos := ds.ClassCounts()
	assert.Equal(t, 3, neg)
	assert.Equal(t, 1, pos)
	assert.InDelta(t, 0.25, ds.PositiveFraction(), 1e-12)

	sub := ds.Subset([]int{3, 1})
	assert.Equal(t, [][]float64{{4}, {2}}, sub.X)
	assert.Equal(t, []int{0, 1}, sub.Y)
	assert.Zero(t, model.Dataset{}.PositiveFraction())
}

func TestTrainingRun_Lifecycle(t *testing.T) {
	run, err := model.NewTrainingRun("data/preprocessed_dataset.csv")
	require.NoError(t, err)
	assert.Equal(t, valueobject.ModelStatusUntrained, run.Status())

	params := valueobject.Hyperparameters{NEstimators: 200, MaxDepth: 5, LearningRate: 0.1}
	require.NoError(t, run.MarkTrained(model.TrainingReport{
		Version: "v1", ModelPath: "data/artifacts/versions/v1/model.json",
		Accuracy: 0.97, F1Score: 0.81, Hyperparameters: params, TrainSamples: 800, TestSamples: 200,
	}))
	assert.Equal(t, valueobject.ModelStatusTrained, run.Status())
	assert.Equal(t, params, run.Hyperparameters())
	require.NotNil(t, run.CompletedAt())

	require.NoError(t, run.MarkLoaded())
	require.NoError(t, run.MarkSuperseded("v2"))
	assert.Equal(t, "v2", run.SupersededBy())

	evts := run.DomainEvents()
	require.Len(t, evts, 3)
	assert.Equal(t, event.EventTypeModelTrained, evts[0].EventType())
	assert.Equal(t, event.EventTypeModelPublished, evts[1].EventType())
	assert.Equal(t, event.EventTypeModelSuperseded, evts[2].EventType())
	assert.Equal(t, run.ID(), evts[0].AggregateID())
	assert.Empty(t, run.DomainEvents())

	assert.Error(t, run.MarkLoaded())
}

func TestTrainingRun_Failure(t *testing.T) {
	_, err := model.NewTrainingRun("")
	assert.Error(t, err)

	run, err := model.NewTrainingRun("data.csv")
	require.NoError(t, err)
	require.NoError(t, run.MarkFailed("context canceled"))
	assert.Equal(t, "context canceled", run.FailureReason())
	assert.Error(t, run.MarkTrained(model.TrainingReport{}))

	evts := run.DomainEvents()
	require.Len(t, evts, 1)
	assert.Equal(t, event.EventTypeTrainingFailed, evts[0].EventType())
}

func TestNewArtifactVersion(t *testing.T) {
	id := uuid.MustParse("3f2a9c1e-0000-4000-8000-000000000001")
	at := time.Date(2024, 3, 9, 22, 15, 7, 0, time.FixedZone("CET", 3600))

	assert.Equal(t, "20240309T211507Z-3f2a9c1e", model.NewArtifactVersion(at, id))
	assert.Less(t,
		model.NewArtifactVersion(at, id),
		model.NewArtifactVersion(at.Add(time.Second), id))
}
