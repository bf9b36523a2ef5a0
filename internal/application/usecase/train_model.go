package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bibbank/fraudscoring/internal/application/dto"
	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/port"
	"github.com/bibbank/fraudscoring/internal/domain/service"
)

// TrainModelDeps are the collaborators of TrainModel.
type TrainModelDeps struct {
	Source    port.DatasetSource
	Engineer  *service.FeatureEngineer
	Balancer  *service.ClassBalancer
	Trainer   *service.ModelTrainer
	Store     port.ArtifactStore
	Holder    port.SnapshotHolder
	Runs      port.TrainingRunRepository
	Activator *ActivateModel
	Publisher port.EventPublisher
	Metrics   *Metrics
	Logger    *slog.Logger
}

// TrainModel runs the training pipeline end to end: load, engineer,
// balance, search, persist, then swap the new snapshot in. Only one run
// executes at a time.
type TrainModel struct {
	deps        TrainModelDeps
	datasetPath string
	seed        uint64
	now         func() time.Time
	mu          sync.Mutex
}

// NewTrainModel creates a new TrainModel use case. datasetPath is recorded
// on each run; seed drives oversampling.
func NewTrainModel(deps TrainModelDeps, datasetPath string, seed uint64) *TrainModel {
	return &TrainModel{
		deps:        deps,
		datasetPath: datasetPath,
		seed:        seed,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Execute trains and publishes a new model version. On failure the
// previously served version stays live. It returns ErrTrainingInProgress
// when another run holds the lock.
func (uc *TrainModel) Execute(ctx context.Context) (dto.TrainResponse, error) {
	if !uc.mu.TryLock() {
		return dto.TrainResponse{}, ErrTrainingInProgress
	}
	defer uc.mu.Unlock()

	ctx, span := tracer.Start(ctx, "TrainModel.Execute")
	defer span.End()
	start := time.Now()
	logger := uc.deps.Logger

	run, err := model.NewTrainingRun(uc.datasetPath)
	if err != nil {
		return dto.TrainResponse{}, fmt.Errorf("failed to create training run: %w", err)
	}
	if err := uc.deps.Runs.Save(ctx, run); err != nil {
		return dto.TrainResponse{}, fmt.Errorf("failed to save training run: %w", err)
	}
	span.SetAttributes(attribute.String("training.run_id", run.ID().String()))
	logger.InfoContext(ctx, "training started",
		slog.String("run_id", run.ID().String()),
		slog.String("dataset", uc.datasetPath),
	)

	createdAt := uc.now()
	version := model.NewArtifactVersion(createdAt, run.ID())
	// Saving moves the store pointer before the swap below.
	endPublish := uc.deps.Holder.BeginPublish(version)
	defer endPublish()

	report, bundle, err := uc.train(ctx, span, run, version, createdAt)
	if err != nil {
		uc.fail(ctx, run, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		uc.deps.Metrics.recordTraining(ctx, "failed", time.Since(start))
		return dto.TrainResponse{}, fmt.Errorf("failed to train model: %w", err)
	}

	if err := run.MarkTrained(report); err != nil {
		return dto.TrainResponse{}, fmt.Errorf("failed to record trained model: %w", err)
	}
	previous := uc.deps.Holder.Swap(bundle)

	// The new version is already live; bookkeeping must finish even if the
	// caller goes away.
	if err := uc.deps.Activator.promote(context.WithoutCancel(ctx), run, bundle.Version()); err != nil {
		logger.ErrorContext(ctx, "failed to record model activation",
			slog.String("version", bundle.Version()),
			slog.String("error", err.Error()),
		)
	}

	attrs := []any{
		slog.String("run_id", run.ID().String()),
		slog.String("version", report.Version),
		slog.String("model_path", report.ModelPath),
		slog.Float64("accuracy", report.Accuracy),
		slog.Float64("f1_score", report.F1Score),
		slog.String("params", report.Hyperparameters.String()),
		slog.Duration("elapsed", time.Since(start)),
	}
	if previous != nil {
		attrs = append(attrs, slog.String("replaced", previous.Version()))
	}
	logger.InfoContext(ctx, "training finished", attrs...)
	uc.deps.Metrics.recordTraining(ctx, "succeeded", time.Since(start))

	return dto.FromTrainingReport(report), nil
}

func (uc *TrainModel) train(ctx context.Context, span trace.Span, run *model.TrainingRun, version string, createdAt time.Time) (model.TrainingReport, *model.ArtifactBundle, error) {
	raw, err := uc.deps.Source.Load(ctx)
	if err != nil {
		return model.TrainingReport{}, nil, err
	}
	span.AddEvent("dataset loaded", trace.WithAttributes(attribute.Int("rows", len(raw.Records))))

	ds, encoder, err := uc.deps.Engineer.FitTransform(raw)
	if err != nil {
		return model.TrainingReport{}, nil, err
	}

	balanced, didBalance, err := uc.deps.Balancer.Balance(ctx, ds, uc.seed)
	if err != nil {
		return model.TrainingReport{}, nil, err
	}
	span.AddEvent("features engineered", trace.WithAttributes(
		attribute.Int("features", ds.Features.Len()),
		attribute.Bool("balanced", didBalance),
	))

	outcome, err := uc.deps.Trainer.Train(ctx, balanced)
	if err != nil {
		return model.TrainingReport{}, nil, err
	}
	span.AddEvent("model fitted", trace.WithAttributes(attribute.String("params", outcome.Best.String())))

	bundle := &model.ArtifactBundle{
		Manifest: model.ArtifactManifest{
			Version:         version,
			CreatedAt:       createdAt,
			Hyperparameters: outcome.Best,
			Accuracy:        outcome.Accuracy,
			F1Score:         outcome.F1Score,
			LoginReference:  uc.deps.Engineer.Reference(),
		},
		Classifier: outcome.Classifier,
		Encoder:    encoder,
		Features:   ds.Features,
	}

	path, err := uc.deps.Store.Save(ctx, bundle)
	if err != nil {
		return model.TrainingReport{}, nil, fmt.Errorf("failed to save artifacts: %w", err)
	}
	bundle.ModelPath = path

	return model.TrainingReport{
		RunID:           run.ID(),
		Version:         bundle.Version(),
		ModelPath:       path,
		Accuracy:        outcome.Accuracy,
		F1Score:         outcome.F1Score,
		CVScore:         outcome.CVScore,
		Hyperparameters: outcome.Best,
		ScalePosWeight:  outcome.ScalePosWeight,
		Balanced:        didBalance,
		TrainSamples:    outcome.TrainSamples,
		TestSamples:     outcome.TestSamples,
	}, bundle, nil
}

// fail records the failed run. It uses a context that survives
// cancellation of the request.
func (uc *TrainModel) fail(ctx context.Context, run *model.TrainingRun, cause error) {
	ctx = context.WithoutCancel(ctx)
	logger := uc.deps.Logger

	logger.ErrorContext(ctx, "training failed",
		slog.String("run_id", run.ID().String()),
		slog.String("error", cause.Error()),
	)
	if err := run.MarkFailed(cause.Error()); err != nil {
		logger.ErrorContext(ctx, "failed to mark run failed", slog.String("error", err.Error()))
		return
	}
	if err := uc.deps.Runs.Update(ctx, run); err != nil {
		logger.ErrorContext(ctx, "failed to save failed run", slog.String("error", err.Error()))
	}
	if evts := run.DomainEvents(); len(evts) > 0 {
		if err := uc.deps.Publisher.Publish(ctx, evts...); err != nil {
			logger.WarnContext(ctx, "failed to publish training failure", slog.String("error", err.Error()))
		}
	}
}
