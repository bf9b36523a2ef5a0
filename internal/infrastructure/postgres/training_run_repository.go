package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bibbank/fraudscoring/internal/domain/model"
	"github.com/bibbank/fraudscoring/internal/domain/valueobject"
	pgpkg "github.com/bibbank/fraudscoring/pkg/postgres"
)

const runColumns = `
	id, dataset_path, status, model_version, model_path,
	n_estimators, max_depth, learning_rate,
	accuracy, f1_score, train_samples, test_samples,
	failure_reason, superseded_by, started_at, completed_at`

const upsertRun = `
	INSERT INTO training_runs (` + runColumns + `
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		model_version = EXCLUDED.model_version,
		model_path = EXCLUDED.model_path,
		n_estimators = EXCLUDED.n_estimators,
		max_depth = EXCLUDED.max_depth,
		learning_rate = EXCLUDED.learning_rate,
		accuracy = EXCLUDED.accuracy,
		f1_score = EXCLUDED.f1_score,
		train_samples = EXCLUDED.train_samples,
		test_samples = EXCLUDED.test_samples,
		failure_reason = EXCLUDED.failure_reason,
		superseded_by = EXCLUDED.superseded_by,
		completed_at = EXCLUDED.completed_at`

// TrainingRunRepository implements port.TrainingRunRepository using PostgreSQL.
type TrainingRunRepository struct {
	pool *pgxpool.Pool
}

// NewTrainingRunRepository creates a new PostgreSQL-backed training run repository.
func NewTrainingRunRepository(pool *pgxpool.Pool) *TrainingRunRepository {
	return &TrainingRunRepository{pool: pool}
}

// Save inserts a new training run.
func (r *TrainingRunRepository) Save(ctx context.Context, run *model.TrainingRun) error {
	query := `INSERT INTO training_runs (` + runColumns + `
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	if _, err := r.pool.Exec(ctx, query, runArgs(run)...); err != nil {
		return fmt.Errorf("failed to save training run: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing run.
func (r *TrainingRunRepository) Update(ctx context.Context, run *model.TrainingRun) error {
	query := `
		UPDATE training_runs SET
			status = $2, model_version = $3, model_path = $4,
			n_estimators = $5, max_depth = $6, learning_rate = $7,
			accuracy = $8, f1_score = $9, train_samples = $10, test_samples = $11,
			failure_reason = $12, superseded_by = $13, completed_at = $14
		WHERE id = $1`

	args := runArgs(run)
	// Skip dataset_path and started_at, which never change.
	updateArgs := append([]any{args[0]}, args[2:14]...)
	updateArgs = append(updateArgs, args[15])

	tag, err := r.pool.Exec(ctx, query, updateArgs...)
	if err != nil {
		return fmt.Errorf("failed to update training run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("training run %s not found", run.ID())
	}
	return nil
}

// SaveAll upserts every run in one transaction.
func (r *TrainingRunRepository) SaveAll(ctx context.Context, runs ...*model.TrainingRun) error {
	return pgpkg.WithTransaction(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, run := range runs {
			if _, err := tx.Exec(ctx, upsertRun, runArgs(run)...); err != nil {
				return fmt.Errorf("failed to save training run %s: %w", run.ID(), err)
			}
		}
		return nil
	})
}

// FindByID retrieves a run by id. It returns nil when none exists.
func (r *TrainingRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.TrainingRun, error) {
	query := `SELECT ` + runColumns + ` FROM training_runs WHERE id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// FindByVersion retrieves the run that produced version. It returns nil
// when none exists.
func (r *TrainingRunRepository) FindByVersion(ctx context.Context, version string) (*model.TrainingRun, error) {
	query := `SELECT ` + runColumns + ` FROM training_runs WHERE model_version = $1`
	return scanRun(r.pool.QueryRow(ctx, query, version))
}

// FindLive returns runs whose model is trained or loaded, newest first.
func (r *TrainingRunRepository) FindLive(ctx context.Context) ([]*model.TrainingRun, error) {
	query := `SELECT ` + runColumns + ` FROM training_runs
		WHERE status IN ($1, $2)
		ORDER BY started_at DESC`

	rows, err := r.pool.Query(ctx, query,
		valueobject.ModelStatusTrained.String(),
		valueobject.ModelStatusLoaded.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query live training runs: %w", err)
	}
	return collectRuns(rows)
}

// List returns a page of runs, newest first, and the total count.
func (r *TrainingRunRepository) List(ctx context.Context, limit, offset int) ([]*model.TrainingRun, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM training_runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count training runs: %w", err)
	}

	query := `SELECT ` + runColumns + ` FROM training_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query training runs: %w", err)
	}
	runs, err := collectRuns(rows)
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

func runArgs(run *model.TrainingRun) []any {
	params := run.Hyperparameters()
	return []any{
		run.ID(),
		run.DatasetPath(),
		run.Status().String(),
		run.ModelVersion(),
		run.ModelPath(),
		params.NEstimators,
		params.MaxDepth,
		params.LearningRate,
		run.Accuracy(),
		run.F1Score(),
		run.TrainSamples(),
		run.TestSamples(),
		run.FailureReason(),
		run.SupersededBy(),
		run.StartedAt(),
		run.CompletedAt(),
	}
}

func collectRuns(rows pgx.Rows) ([]*model.TrainingRun, error) {
	defer rows.Close()

	runs := make([]*model.TrainingRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate training runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*model.TrainingRun, error) {
	var (
		id            uuid.UUID
		datasetPath   string
		statusStr     string
		modelVersion  string
		modelPath     string
		params        valueobject.Hyperparameters
		accuracy      float64
		f1Score       float64
		trainSamples  int
		testSamples   int
		failureReason string
		supersededBy  string
		startedAt     time.Time
		completedAt   *time.Time
	)

	err := row.Scan(
		&id, &datasetPath, &statusStr, &modelVersion, &modelPath,
		&params.NEstimators, &params.MaxDepth, &params.LearningRate,
		&accuracy, &f1Score, &trainSamples, &testSamples,
		&failureReason, &supersededBy, &startedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan training run: %w", err)
	}

	status, err := valueobject.ModelStatusFromString(statusStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model status: %w", err)
	}

	return model.ReconstructTrainingRun(
		id, datasetPath, status, modelVersion, modelPath, params,
		accuracy, f1Score, trainSamples, testSamples,
		failureReason, supersededBy, startedAt, completedAt,
	), nil
}
