package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/port"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
	"github.com/bibbank/fraudscoring/pkg/events"
)

// ActivateModel records that a model version became the live one. The run
// that produced it moves to LOADED and every other live run to SUPERSEDED.
// It runs after a snapshot swap, whether from training, startup or the
// artifact watcher.
type ActivateModel struct {
	runs      port.TrainingRunRepository
	publisher port.EventPublisher
	logger    *slog.Logger

	// mu serialises activations so two callers never supersede the same
	// run from separate snapshots of the live set.
	mu sync.Mutex
}

// NewActivateModel creates a new ActivateModel use case.
func NewActivateModel(runs port.TrainingRunRepository, publisher port.EventPublisher, logger *slog.Logger) *ActivateModel {
	return &ActivateModel{runs: runs, publisher: publisher, logger: logger}
}

// Execute records bundle as live. Versions with no known run, such as ones
// trained by another deployment, only supersede the current runs.
func (uc *ActivateModel) Execute(ctx context.Context, bundle *model.ArtifactBundle) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	run, err := uc.runs.FindByVersion(ctx, bundle.Version())
	if err != nil {
		return fmt.Errorf("failed to find training run for %s: %w", bundle.Version(), err)
	}
	return uc.promoteLocked(ctx, run, bundle.Version())
}

// promote marks run loaded and supersedes the other live runs, then saves
// and publishes every change. run may be nil.
func (uc *ActivateModel) promote(ctx context.Context, run *model.TrainingRun, version string) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.promoteLocked(ctx, run, version)
}

func (uc *ActivateModel) promoteLocked(ctx context.Context, run *model.TrainingRun, version string) error {
	var changed []*model.TrainingRun
	if run != nil {
		if run.Status() == valueobject.ModelStatusTrained {
			if err := run.MarkLoaded(); err != nil {
				return fmt.Errorf("failed to mark run loaded: %w", err)
			}
		}
		changed = append(changed, run)
	}

	live, err := uc.runs.FindLive(ctx)
	if err != nil {
		return fmt.Errorf("failed to find live training runs: %w", err)
	}
	for _, l := range live {
		if l.ModelVersion() == version || (run != nil && l.ID() == run.ID()) {
			continue
		}
		if err := l.MarkSuperseded(version); err != nil {
			return fmt.Errorf("failed to supersede run %s: %w", l.ID(), err)
		}
		changed = append(changed, l)
	}

	if len(changed) == 0 {
		return nil
	}
	if err := uc.runs.SaveAll(ctx, changed...); err != nil {
		return fmt.Errorf("failed to save training runs: %w", err)
	}

	var pending []events.DomainEvent
	for _, r := range changed {
		pending = append(pending, r.DomainEvents()...)
	}
	uc.publish(ctx, pending)

	uc.logger.InfoContext(ctx, "model version activated",
		slog.String("version", version),
		slog.Int("superseded", len(changed)-boolToInt(run != nil)),
	)
	return nil
}

// publish sends lifecycle events. The model is already live, so failures
// are logged rather than returned.
func (uc *ActivateModel) publish(ctx context.Context, pending []events.DomainEvent) {
	if len(pending) == 0 {
		return
	}
	if err := uc.publisher.Publish(ctx, pending...); err != nil {
		uc.logger.WarnContext(ctx, "failed to publish model lifecycle events",
			slog.Int("events", len(pending)),
			slog.String("error", err.Error()),
		)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
