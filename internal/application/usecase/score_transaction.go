package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bibbank/fraudscoring/internal/application/dto"
	"github.com/bibbank/fraudscoring/internal/domain/event"
	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/port"
	"github.com/bibbank/fraudscoring/internal/domain/service"
)

// ScoreTransaction scores one transaction against the live model snapshot.
type ScoreTransaction struct {
	holder    port.SnapshotHolder
	engine    *service.ScoringEngine
	cache     port.ScoreCache
	publisher port.EventPublisher
	metrics   *Metrics
	logger    *slog.Logger
}

// NewScoreTransaction creates a new ScoreTransaction use case. cache may be nil.
func NewScoreTransaction(
	holder port.SnapshotHolder,
	engine *service.ScoringEngine,
	cache port.ScoreCache,
	publisher port.EventPublisher,
	metrics *Metrics,
	logger *slog.Logger,
) *ScoreTransaction {
	return &ScoreTransaction{
		holder:    holder,
		engine:    engine,
		cache:     cache,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Execute scores req. It fails only for malformed input or when no model
// is loaded; unseen categories and missing fields are absorbed.
func (uc *ScoreTransaction) Execute(ctx context.Context, req dto.ScoreRequest) (dto.ScoreResponse, error) {
	ctx, span := tracer.Start(ctx, "ScoreTransaction.Execute")
	defer span.End()
	start := time.Now()

	rec, err := req.ToRecord()
	if err != nil {
		uc.metrics.recordScore(ctx, "invalid", false, false, time.Since(start))
		return dto.ScoreResponse{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	// One snapshot per request: a concurrent swap never mixes versions.
	bundle, err := uc.holder.Current()
	if err != nil {
		uc.metrics.recordScore(ctx, "unavailable", false, false, time.Since(start))
		return dto.ScoreResponse{}, err
	}

	in := uc.engine.Prepare(bundle, rec)

	result, cached := uc.lookup(bundle.Version(), in.Values)
	if cached {
		result.UnseenCategory = in.UnseenCategory
		result.MissingFeatures = len(in.Missing)
		result.DroppedFields = len(in.Extra)
	} else {
		result = uc.engine.Decide(bundle, in)
		if uc.cache != nil {
			uc.cache.Put(bundle.Version(), in.Values, result)
		}
	}

	span.SetAttributes(
		attribute.String("model.version", result.ModelVersion),
		attribute.Int("score.is_fraud", result.IsFraud),
		attribute.Bool("score.cached", cached),
	)

	flagged := result.IsFraud == 1
	if flagged {
		evt := event.NewTransactionFlagged(req.TransactionID, result.FraudProbability, result.Threshold, result.ModelVersion)
		if err := uc.publisher.Publish(ctx, evt); err != nil {
			uc.logger.WarnContext(ctx, "failed to publish flagged transaction",
				slog.String("transaction_id", req.TransactionID),
				slog.String("error", err.Error()),
			)
		}
	}

	uc.logger.DebugContext(ctx, "transaction scored",
		slog.String("transaction_id", req.TransactionID),
		slog.Float64("fraud_probability", result.FraudProbability),
		slog.Int("is_fraud", result.IsFraud),
		slog.String("model_version", result.ModelVersion),
		slog.Bool("cached", cached),
	)
	uc.metrics.recordScore(ctx, "scored", cached, flagged, time.Since(start))

	return dto.FromScoringResult(req.TransactionID, result), nil
}

func (uc *ScoreTransaction) lookup(version string, values []float64) (result model.ScoringResult, ok bool) {
	if uc.cache == nil {
		return result, false
	}
	return uc.cache.Get(version, values)
}
