package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
)

// TrainingRunRepository implements port.TrainingRunRepository in process
// memory. It is used when no database is configured. Runs are copied on
// the way in and out so callers never share state with the store.
type TrainingRunRepository struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*model.TrainingRun
}

func NewTrainingRunRepository() *TrainingRunRepository {
	return &TrainingRunRepository{runs: make(map[uuid.UUID]*model.TrainingRun)}
}

func (r *TrainingRunRepository) Save(_ context.Context, run *model.TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID()]; exists {
		return fmt.Errorf("training run %s already exists", run.ID())
	}
	r.runs[run.ID()] = clone(run)
	return nil
}

func (r *TrainingRunRepository) Update(_ context.Context, run *model.TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID()]; !exists {
		return fmt.Errorf("training run %s not found", run.ID())
	}
	r.runs[run.ID()] = clone(run)
	return nil
}

func (r *TrainingRunRepository) SaveAll(_ context.Context, runs ...*model.TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, run := range runs {
		r.runs[run.ID()] = clone(run)
	}
	return nil
}

// FindByID returns nil when no run has id.
func (r *TrainingRunRepository) FindByID(_ context.Context, id uuid.UUID) (*model.TrainingRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, nil
	}
	return clone(run), nil
}

// FindByVersion returns nil when no run produced version.
func (r *TrainingRunRepository) FindByVersion(_ context.Context, version string) (*model.TrainingRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, run := range r.runs {
		if version != "" && run.ModelVersion() == version {
			return clone(run), nil
		}
	}
	return nil, nil
}

func (r *TrainingRunRepository) FindLive(_ context.Context) ([]*model.TrainingRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var live []*model.TrainingRun
	for _, run := range r.runs {
		if run.Status() == valueobject.ModelStatusTrained || run.Status() == valueobject.ModelStatusLoaded {
			live = append(live, clone(run))
		}
	}
	sortNewestFirst(live)
	return live, nil
}

func (r *TrainingRunRepository) List(_ context.Context, limit, offset int) ([]*model.TrainingRun, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*model.TrainingRun, 0, len(r.runs))
	for _, run := range r.runs {
		all = append(all, clone(run))
	}
	sortNewestFirst(all)

	total := len(all)
	if offset >= total {
		return []*model.TrainingRun{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func sortNewestFirst(runs []*model.TrainingRun) {
	slices.SortStableFunc(runs, func(a, b *model.TrainingRun) int {
		if c := b.StartedAt().Compare(a.StartedAt()); c != 0 {
			return c
		}
		return strings.Compare(b.ID().String(), a.ID().String())
	})
}

func clone(run *model.TrainingRun) *model.TrainingRun {
	completed := run.CompletedAt()
	if completed != nil {
		c := *completed
		completed = &c
	}
	return model.ReconstructTrainingRun(
		run.ID(), run.DatasetPath(), run.Status(), run.ModelVersion(), run.ModelPath(),
		run.Hyperparameters(), run.Accuracy(), run.F1Score(),
		run.TrainSamples(), run.TestSamples(),
		run.FailureReason(), run.SupersededBy(), run.StartedAt(), completed,
	)
}
