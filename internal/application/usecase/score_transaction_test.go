package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/bibbank/fraudscoring/internal/application/dto"
	"github.com/bibbank/fraudscoring/internal/application/usecase"
	"github.com/bibbank/fraudscoring/internal/domain/event"
	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/infrastructure/artifact"
	"github.com/bibbank/fraudscoring/internal/infrastructure/cache"
	"github.com/bibbank/fraudscoring/pkg/events"
)

func stubBundle(t *testing.T, clf model.Classifier) *model.ArtifactBundle {
	t.Helper()
	schema, err := model.NewFeatureSchema([]string{"amount", model.ColumnCategory, "balance"})
	require.NoError(t, err)
	return &model.ArtifactBundle{
		Manifest: model.ArtifactManifest{
			Version:        "v-test",
			LoginReference: model.LoginReferenceTransaction,
		},
		Classifier: clf,
		Encoder:    model.FitCategoryEncoder([]string{"online", "pos"}),
		Features:   schema,
	}
}

func ptr[T any](v T) *T { return &v }

func TestScoreTransaction_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("refuses to score without a model", func(t *testing.T) {
		uc := usecase.NewScoreTransaction(artifact.NewHolder(), newEngine(t), nil, &mockEventPublisher{}, nil, discardLogger())

		_, err := uc.Execute(ctx, dto.ScoreRequest{Amount: decimal.NewFromInt(10)})
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrArtifactMissing))
	})

	t.Run("flags above threshold and publishes", func(t *testing.T) {
		holder := artifact.NewHolder()
		holder.Swap(stubBundle(t, &countingClassifier{p: 0.31234, width: 3}))
		pub := &mockEventPublisher{}
		uc := usecase.NewScoreTransaction(holder, newEngine(t), nil, pub, nil, discardLogger())

		resp, err := uc.Execute(ctx, dto.ScoreRequest{
			TransactionID: "tx-1",
			Amount:        decimal.NewFromFloat(250.5),
			Category:      "online",
			Balance:       ptr(1000.0),
		})
		require.NoError(t, err)

		assert.Equal(t, 1, resp.IsFraud)
		assert.Equal(t, 0.3123, resp.FraudProbability)
		assert.Equal(t, 0.3, resp.Threshold)
		assert.Equal(t, "v-test", resp.ModelVersion)
		assert.Equal(t, "tx-1", resp.TransactionID)
		assert.False(t, resp.UnseenCategory)

		require.Len(t, pub.publishedEvents, 1)
		flagged, ok := pub.publishedEvents[0].(event.TransactionFlagged)
		require.True(t, ok)
		assert.Equal(t, "tx-1", flagged.TransactionID)
		assert.Equal(t, "v-test", flagged.ModelVersion)
	})

	t.Run("below threshold publishes nothing", func(t *testing.T) {
		holder := artifact.NewHolder()
		holder.Swap(stubBundle(t, &countingClassifier{p: 0.29, width: 3}))
		pub := &mockEventPublisher{}
		uc := usecase.NewScoreTransaction(holder, newEngine(t), nil, pub, nil, discardLogger())

		resp, err := uc.Execute(ctx, dto.ScoreRequest{Amount: decimal.NewFromInt(5), Category: "pos"})
		require.NoError(t, err)
		assert.Equal(t, 0, resp.IsFraud)
		assert.Empty(t, pub.eventTypes())
	})

	t.Run("unseen category still scores", func(t *testing.T) {
		holder := artifact.NewHolder()
		holder.Swap(stubBundle(t, &countingClassifier{p: 0.1, width: 3}))
		uc := usecase.NewScoreTransaction(holder, newEngine(t), nil, &mockEventPublisher{}, nil, discardLogger())

		resp, err := uc.Execute(ctx, dto.ScoreRequest{Amount: decimal.NewFromInt(5), TransactionType: "crypto"})
		require.NoError(t, err)
		assert.True(t, resp.UnseenCategory)
		assert.Equal(t, 0.1, resp.FraudProbability)
	})

	t.Run("publish failure does not fail scoring", func(t *testing.T) {
		holder := artifact.NewHolder()
		holder.Swap(stubBundle(t, &countingClassifier{p: 0.9, width: 3}))
		pub := &mockEventPublisher{publishFunc: func(context.Context, ...events.DomainEvent) error {
			return errors.New("broker down")
		}}
		uc := usecase.NewScoreTransaction(holder, newEngine(t), nil, pub, nil, discardLogger())

		resp, err := uc.Execute(ctx, dto.ScoreRequest{Amount: decimal.NewFromInt(5)})
		require.NoError(t, err)
		assert.Equal(t, 1, resp.IsFraud)
	})

	t.Run("cache serves repeated vectors", func(t *testing.T) {
		clf := &countingClassifier{p: 0.4, width: 3}
		holder := artifact.NewHolder()
		holder.Swap(stubBundle(t, clf))
		c, err := cache.NewScoreCache(16)
		require.NoError(t, err)
		uc := usecase.NewScoreTransaction(holder, newEngine(t), c, &mockEventPublisher{}, nil, discardLogger())

		req := dto.ScoreRequest{Amount: decimal.NewFromInt(42), Category: "online"}
		first, err := uc.Execute(ctx, req)
		require.NoError(t, err)

		second, err := uc.Execute(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, first.FraudProbability, second.FraudProbability)
		assert.Equal(t, 1, clf.callCount())
		assert.Equal(t, 1, c.Len())
	})

	t.Run("new version bypasses cached results", func(t *testing.T) {
		clf := &countingClassifier{p: 0.4, width: 3}
		holder := artifact.NewHolder()
		holder.Swap(stubBundle(t, clf))
		c, err := cache.NewScoreCache(16)
		require.NoError(t, err)
		uc := usecase.NewScoreTransaction(holder, newEngine(t), c, &mockEventPublisher{}, nil, discardLogger())

		req := dto.ScoreRequest{Amount: decimal.NewFromInt(42), Category: "online"}
		_, err = uc.Execute(ctx, req)
		require.NoError(t, err)

		next := stubBundle(t, clf)
		next.Manifest.Version = "v-next"
		holder.Swap(next)
		resp, err := uc.Execute(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "v-next", resp.ModelVersion)
		assert.Equal(t, 2, clf.callCount())
	})

	t.Run("rejects malformed requests", func(t *testing.T) {
		holder := artifact.NewHolder()
		holder.Swap(stubBundle(t, &countingClassifier{p: 0.1, width: 3}))
		uc := usecase.NewScoreTransaction(holder, newEngine(t), nil, &mockEventPublisher{}, nil, discardLogger())

		_, err := uc.Execute(ctx, dto.ScoreRequest{Amount: decimal.NewFromInt(1), Hour: ptr(24)})
		require.ErrorIs(t, err, usecase.ErrInvalidRequest)
	})
}

func TestScoreTransaction_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := usecase.NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	holder := artifact.NewHolder()
	holder.Swap(stubBundle(t, &countingClassifier{p: 0.8, width: 3}))
	uc := usecase.NewScoreTransaction(holder, newEngine(t), nil, &mockEventPublisher{}, metrics, discardLogger())

	for range 3 {
		_, err := uc.Execute(context.Background(), dto.ScoreRequest{Amount: decimal.NewFromInt(7)})
		require.NoError(t, err)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(3), sums["fraud_scoring_requests"])
	assert.Equal(t, int64(3), sums["fraud_scoring_flagged"])
}
