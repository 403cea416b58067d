package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// GenerationRepository persists generation runs and their results.
type GenerationRepository struct {
	db *sqlx.DB
}

// NewGenerationRepository constructs the repository.
func NewGenerationRepository(db *sqlx.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

const runColumns = "id, dataset_id, params, status, progress, best_fitness, error_message, created_by, created_at, started_at, finished_at"

// CreateRun inserts a new run row with generated defaults.
func (r *GenerationRepository) CreateRun(ctx context.Context, run *models.GenerationRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.GenerationStatusQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO generation_runs (id, dataset_id, params, status, progress, best_fitness, error_message, created_by, created_at, started_at, finished_at)
VALUES (:id, :dataset_id, :params, :status, :progress, :best_fitness, :error_message, :created_by, :created_at, :started_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create generation run: %w", err)
	}
	return nil
}

// GetRun returns a run row by its identifier.
func (r *GenerationRepository) GetRun(ctx context.Context, id string) (*models.GenerationRun, error) {
	query := fmt.Sprintf("SELECT %s FROM generation_runs WHERE id = $1", runColumns)
	var run models.GenerationRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, fmt.Errorf("get generation run: %w", err)
	}
	return &run, nil
}

// ListRunsByDataset returns the most recent runs for a dataset.
func (r *GenerationRepository) ListRunsByDataset(ctx context.Context, datasetID string, limit int) ([]models.GenerationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT %s FROM generation_runs WHERE dataset_id = $1 ORDER BY created_at DESC LIMIT $2", runColumns)
	var runs []models.GenerationRun
	if err := r.db.SelectContext(ctx, &runs, query, datasetID, limit); err != nil {
		return nil, fmt.Errorf("list generation runs: %w", err)
	}
	return runs, nil
}

// ListQueuedRuns fetches queued runs (used for cold start recovery).
func (r *GenerationRepository) ListQueuedRuns(ctx context.Context, limit int) ([]models.GenerationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT %s FROM generation_runs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1", runColumns)
	var runs []models.GenerationRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued generation runs: %w", err)
	}
	return runs, nil
}

// UpdateRunParams defines the mutable fields of a run row.
type UpdateRunParams struct {
	Status       *models.GenerationStatus
	Progress     *int
	BestFitness  *float64
	ErrorMessage *string
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// UpdateRun persists the provided changes for a run row.
func (r *GenerationRepository) UpdateRun(ctx context.Context, id string, params UpdateRunParams) error {
	set := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.Progress != nil {
		set = append(set, fmt.Sprintf("progress = $%d", argPos))
		args = append(args, *params.Progress)
		argPos++
	}
	if params.BestFitness != nil {
		set = append(set, fmt.Sprintf("best_fitness = $%d", argPos))
		args = append(args, *params.BestFitness)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.StartedAt != nil {
		set = append(set, fmt.Sprintf("started_at = $%d", argPos))
		args = append(args, *params.StartedAt)
		argPos++
	}
	if params.FinishedAt != nil {
		set = append(set, fmt.Sprintf("finished_at = $%d", argPos))
		args = append(args, *params.FinishedAt)
		argPos++
	}
	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE generation_runs SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update generation run: %w", err)
	}
	return nil
}

const resultColumns = "id, run_id, fitness, generation, breakdown, grid, created_at"

// SaveResult upserts the result row for a run.
func (r *GenerationRepository) SaveResult(ctx context.Context, result *models.TimetableResult) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO timetable_results (id, run_id, fitness, generation, breakdown, grid, created_at)
VALUES (:id, :run_id, :fitness, :generation, :breakdown, :grid, :created_at)
ON CONFLICT (run_id) DO UPDATE SET fitness = EXCLUDED.fitness, generation = EXCLUDED.generation, breakdown = EXCLUDED.breakdown, grid = EXCLUDED.grid, created_at = EXCLUDED.created_at`
	if _, err := r.db.NamedExecContext(ctx, query, result); err != nil {
		return fmt.Errorf("save timetable result: %w", err)
	}
	return nil
}

// GetResultByRunID returns the stored result for a run.
func (r *GenerationRepository) GetResultByRunID(ctx context.Context, runID string) (*models.TimetableResult, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_results WHERE run_id = $1", resultColumns)
	var result models.TimetableResult
	if err := r.db.GetContext(ctx, &result, query, runID); err != nil {
		return nil, fmt.Errorf("get timetable result: %w", err)
	}
	return &result, nil
}
