package usecase

import (
	"context"
	"fmt"

	"github.com/bibbank/fraudscoring/internal/application/dto"
	"github.com/bibbank/fraudscoring/internal/domain/port"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListTrainingRuns returns training runs, newest first.
type ListTrainingRuns struct {
	runs port.TrainingRunRepository
}

// NewListTrainingRuns creates a new ListTrainingRuns use case.
func NewListTrainingRuns(runs port.TrainingRunRepository) *ListTrainingRuns {
	return &ListTrainingRuns{runs: runs}
}

// Execute returns one page of runs. A non-positive limit selects the
// default page size; limits above the maximum are clamped.
func (uc *ListTrainingRuns) Execute(ctx context.Context, req dto.ListTrainingRunsRequest) (dto.ListTrainingRunsResponse, error) {
	if req.Offset < 0 {
		return dto.ListTrainingRunsResponse{}, fmt.Errorf("%w: offset must not be negative", ErrInvalidRequest)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	runs, total, err := uc.runs.List(ctx, limit, req.Offset)
	if err != nil {
		return dto.ListTrainingRunsResponse{}, fmt.Errorf("failed to list training runs: %w", err)
	}

	resp := dto.ListTrainingRunsResponse{
		Runs:       make([]dto.TrainingRunResponse, 0, len(runs)),
		TotalCount: total,
	}
	for _, r := range runs {
		resp.Runs = append(resp.Runs, dto.FromTrainingRun(r))
	}
	return resp, nil
}
