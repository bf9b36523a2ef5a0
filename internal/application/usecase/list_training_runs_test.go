package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/fraudscoring/internal/application/dto"
	"github.com/bibbank/fraudscoring/internal/application/usecase"
	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
	"github.com/bibbank/fraudscoring/internal/infrastructure/memory"
)

type failingRunRepository struct {
	*memory.TrainingRunRepository
	err error
}

func (r *failingRunRepository) List(context.Context, int, int) ([]*model.TrainingRun, int, error) {
	return nil, 0, r.err
}

func seedRuns(t *testing.T, repo *memory.TrainingRunRepository, n int) {
	t.Helper()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range n {
		run := model.ReconstructTrainingRun(
			uuid.New(), "data.csv", valueobject.ModelStatusFailed, "", "",
			valueobject.Hyperparameters{}, 0, 0, 0, 0,
			"boom", "", base.Add(time.Duration(i)*time.Minute), nil,
		)
		require.NoError(t, repo.Save(context.Background(), run))
	}
}

func TestListTrainingRuns_Execute(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTrainingRunRepository()
	seedRuns(t, repo, 130)
	uc := usecase.NewListTrainingRuns(repo)

	t.Run("defaults the page size", func(t *testing.T) {
		resp, err := uc.Execute(ctx, dto.ListTrainingRunsRequest{})
		require.NoError(t, err)
		assert.Len(t, resp.Runs, 20)
		assert.Equal(t, 130, resp.TotalCount)
		assert.True(t, resp.Runs[0].StartedAt.After(resp.Runs[1].StartedAt))
		assert.Equal(t, "FAILED", resp.Runs[0].Status)
	})

	t.Run("clamps large pages", func(t *testing.T) {
		resp, err := uc.Execute(ctx, dto.ListTrainingRunsRequest{Limit: 1000})
		require.NoError(t, err)
		assert.Len(t, resp.Runs, 100)
	})

	t.Run("offset past the end is empty", func(t *testing.T) {
		resp, err := uc.Execute(ctx, dto.ListTrainingRunsRequest{Offset: 500})
		require.NoError(t, err)
		assert.Empty(t, resp.Runs)
		assert.Equal(t, 130, resp.TotalCount)
	})

	t.Run("rejects negative offset", func(t *testing.T) {
		_, err := uc.Execute(ctx, dto.ListTrainingRunsRequest{Offset: -1})
		require.ErrorIs(t, err, usecase.ErrInvalidRequest)
	})

	t.Run("wraps repository errors", func(t *testing.T) {
		boom := errors.New("db down")
		failing := usecase.NewListTrainingRuns(&failingRunRepository{TrainingRunRepository: repo, err: boom})
		_, err := failing.Execute(ctx, dto.ListTrainingRunsRequest{})
		require.ErrorIs(t, err, boom)
	})
}
