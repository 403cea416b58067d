package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

type generationStore interface {
	CreateRun(ctx context.Context, run *models.GenerationRun) error
	GetRun(ctx context.Context, id string) (*models.GenerationRun, error)
	ListRunsByDataset(ctx context.Context, datasetID string, limit int) ([]models.GenerationRun, error)
	ListQueuedRuns(ctx context.Context, limit int) ([]models.GenerationRun, error)
	UpdateRun(ctx context.Context, id string, params repository.UpdateRunParams) error
	SaveResult(ctx context.Context, result *models.TimetableResult) error
	GetResultByRunID(ctx context.Context, runID string) (*models.TimetableResult, error)
}

type datasetFetcher interface {
	GetByID(ctx context.Context, id string) (*models.Dataset, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type resultCache interface {
	Get(ctx context.Context, runID string) (*models.TimetableResult, error)
	Set(ctx context.Context, result *models.TimetableResult) error
}

type generationObserver interface {
	ObserveGenerationRun(status models.GenerationStatus, duration time.Duration)
	SetBestFitness(fitness float64)
	RecordCacheOperation(hit bool, duration time.Duration)
}

// GenerationServiceConfig tunes run orchestration.
type GenerationServiceConfig struct {
	// ProgressInterval is forwarded to the engine reporting cadence.
	ProgressInterval int
	// Workers caps the engine's parallel evaluation fan-out.
	Workers int
}

// GenerationService owns the generation run lifecycle: queueing runs,
// executing them on the background worker, and serving status and results.
type GenerationService struct {
	repo      generationStore
	datasets  datasetFetcher
	queue     jobDispatcher
	cache     resultCache
	metrics   generationObserver
	validator *validator.Validate
	logger    *zap.Logger
	cfg       GenerationServiceConfig
}

// NewGenerationService wires generation dependencies. The queue is attached
// later via SetQueue because queue and service reference each other.
func NewGenerationService(repo generationStore, datasets datasetFetcher, cache resultCache, metrics generationObserver, validate *validator.Validate, logger *zap.Logger, cfg GenerationServiceConfig) *GenerationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 10
	}
	return &GenerationService{
		repo:      repo,
		datasets:  datasets,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// SetQueue attaches the job dispatcher.
func (s *GenerationService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// Generate validates the request, persists a queued run, and enqueues it.
func (s *GenerationService) Generate(ctx context.Context, req dto.GenerateTimetableRequest, actorID string) (*dto.GenerationRunResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation request")
	}

	ds, err := s.datasets.GetByID(ctx, req.DatasetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "dataset not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dataset")
	}
	if _, err := BuildProblem(ds.Payload); err != nil {
		return nil, err
	}
	if err := s.engineConfig(req.Params).Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	run := &models.GenerationRun{
		DatasetID: ds.ID,
		Params:    req.Params,
		Status:    models.GenerationStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create generation run")
	}

	if err := s.enqueueRun(ctx, run.ID); err != nil {
		return nil, err
	}
	s.logger.Info("generation run queued", zap.String("run_id", run.ID), zap.String("dataset_id", ds.ID))
	return toRunResponse(run), nil
}

func (s *GenerationService) enqueueRun(ctx context.Context, runID string) error {
	if s.queue == nil {
		return appErrors.Clone(appErrors.ErrInternal, "generation queue unavailable")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: runID, Type: "timetable_generation"}); err != nil {
		s.failRun(ctx, runID, "failed to enqueue generation run")
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation run")
	}
	return nil
}

// RecoverQueued re-enqueues runs left in QUEUED state (cold start recovery).
func (s *GenerationService) RecoverQueued(ctx context.Context, limit int) error {
	runs, err := s.repo.ListQueuedRuns(ctx, limit)
	if err != nil {
		return err
	}
	for _, run := range runs {
		if err := s.enqueueRun(ctx, run.ID); err != nil {
			s.logger.Warn("failed to recover queued run", zap.String("run_id", run.ID), zap.Error(err))
			continue
		}
		s.logger.Info("recovered queued run", zap.String("run_id", run.ID))
	}
	return nil
}

// Process executes one queued run. It is the queue handler; transient
// failures propagate so the queue retries them, while solver failures mark
// the run FAILED and are not retried.
func (s *GenerationService) Process(ctx context.Context, job jobs.Job) error {
	run, err := s.repo.GetRun(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", job.ID, err)
	}
	if run.Status != models.GenerationStatusQueued {
		s.logger.Warn("skipping run in unexpected state", zap.String("run_id", run.ID), zap.String("status", string(run.Status)))
		return nil
	}

	started := time.Now().UTC()
	running := models.GenerationStatusRunning
	if err := s.repo.UpdateRun(ctx, run.ID, repository.UpdateRunParams{Status: &running, StartedAt: &started}); err != nil {
		return fmt.Errorf("mark run %s running: %w", run.ID, err)
	}

	ds, err := s.datasets.GetByID(ctx, run.DatasetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.failRun(ctx, run.ID, "dataset deleted before run started")
			return nil
		}
		return fmt.Errorf("load dataset %s: %w", run.DatasetID, err)
	}

	problem, err := BuildProblem(ds.Payload)
	if err != nil {
		s.failRun(ctx, run.ID, err.Error())
		return nil
	}

	cfg := s.engineConfig(run.Params)
	engine, err := timetable.New(problem, cfg)
	if err != nil {
		s.failRun(ctx, run.ID, err.Error())
		return nil
	}

	engine.OnProgress(func(p timetable.Progress) {
		percent := p.Generation * 100 / cfg.Generations
		if percent > 99 {
			percent = 99
		}
		best := p.BestFitness
		if err := s.repo.UpdateRun(ctx, run.ID, repository.UpdateRunParams{Progress: &percent, BestFitness: &best}); err != nil {
			s.logger.Warn("failed to persist run progress", zap.String("run_id", run.ID), zap.Error(err))
		}
	})

	result, runErr := engine.Run(ctx)
	if runErr != nil {
		s.failRun(ctx, run.ID, runErr.Error())
		if s.metrics != nil {
			s.metrics.ObserveGenerationRun(models.GenerationStatusFailed, time.Since(started))
		}
		return nil
	}

	stored, err := s.storeResult(ctx, run.ID, problem, result)
	if err != nil {
		return err
	}

	done := models.GenerationStatusDone
	progress := 100
	fitness := result.Fitness
	finished := time.Now().UTC()
	if err := s.repo.UpdateRun(ctx, run.ID, repository.UpdateRunParams{
		Status:      &done,
		Progress:    &progress,
		BestFitness: &fitness,
		FinishedAt:  &finished,
	}); err != nil {
		return fmt.Errorf("mark run %s done: %w", run.ID, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, stored); err != nil {
			s.logger.Warn("failed to cache result", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveGenerationRun(models.GenerationStatusDone, time.Since(started))
		s.metrics.SetBestFitness(result.Fitness)
	}
	s.logger.Info("generation run finished",
		zap.String("run_id", run.ID),
		zap.Float64("fitness", result.Fitness),
		zap.Int("generation", result.Generation),
		zap.Duration("duration", result.Duration),
	)
	return nil
}

func (s *GenerationService) storeResult(ctx context.Context, runID string, problem *timetable.Problem, result *timetable.Result) (*models.TimetableResult, error) {
	breakdown, err := json.Marshal(result.Breakdown)
	if err != nil {
		return nil, fmt.Errorf("marshal breakdown: %w", err)
	}
	stored := &models.TimetableResult{
		RunID:      runID,
		Fitness:    result.Fitness,
		Generation: result.Generation,
		Breakdown:  breakdown,
		Grid:       buildGrid(problem, result.Best),
	}
	if err := s.repo.SaveResult(ctx, stored); err != nil {
		return nil, fmt.Errorf("save result for run %s: %w", runID, err)
	}
	return stored, nil
}

func (s *GenerationService) failRun(ctx context.Context, runID, message string) {
	failed := models.GenerationStatusFailed
	now := time.Now().UTC()
	if err := s.repo.UpdateRun(ctx, runID, repository.UpdateRunParams{
		Status:       &failed,
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Error("failed to mark run failed", zap.String("run_id", runID), zap.Error(err))
	}
}

// GetRun exposes run metadata to clients.
func (s *GenerationService) GetRun(ctx context.Context, id string) (*dto.GenerationRunResponse, error) {
	run, err := s.repo.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation run")
	}
	return toRunResponse(run), nil
}

// ListRuns returns the recent runs for a dataset.
func (s *GenerationService) ListRuns(ctx context.Context, datasetID string, limit int) ([]dto.GenerationRunResponse, error) {
	runs, err := s.repo.ListRunsByDataset(ctx, datasetID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list generation runs")
	}
	out := make([]dto.GenerationRunResponse, 0, len(runs))
	for i := range runs {
		out = append(out, *toRunResponse(&runs[i]))
	}
	return out, nil
}

// GetResult returns the finished schedule, redis-first. Runs that have not
// finished yield a conflict so clients keep polling the status endpoint.
func (s *GenerationService) GetResult(ctx context.Context, runID string) (*dto.TimetableResultResponse, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation run")
	}
	switch run.Status {
	case models.GenerationStatusQueued, models.GenerationStatusRunning:
		return nil, appErrors.ErrResultNotReady
	case models.GenerationStatusFailed:
		msg := "generation run failed"
		if run.ErrorMessage != nil && *run.ErrorMessage != "" {
			msg = *run.ErrorMessage
		}
		return nil, appErrors.Clone(appErrors.ErrRunFailed, msg)
	}

	result, err := s.loadResult(ctx, runID)
	if err != nil {
		return nil, err
	}
	return toResultResponse(result)
}

func (s *GenerationService) loadResult(ctx context.Context, runID string) (*models.TimetableResult, error) {
	if s.cache != nil {
		lookupStart := time.Now()
		cached, err := s.cache.Get(ctx, runID)
		if err == nil {
			if s.metrics != nil {
				s.metrics.RecordCacheOperation(true, time.Since(lookupStart))
			}
			return cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("result cache lookup failed", zap.String("run_id", runID), zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false, time.Since(lookupStart))
		}
	}

	result, err := s.repo.GetResultByRunID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "result missing for finished run")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable result")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, result); err != nil {
			s.logger.Warn("failed to cache result", zap.String("run_id", runID), zap.Error(err))
		}
	}
	return result, nil
}

func (s *GenerationService) engineConfig(params models.GenerationParams) timetable.Config {
	cfg := timetable.DefaultConfig()
	if params.PopulationSize > 0 {
		cfg.PopulationSize = params.PopulationSize
	}
	if params.Generations > 0 {
		cfg.Generations = params.Generations
	}
	if params.MutationRate > 0 {
		cfg.MutationRate = params.MutationRate
	}
	if params.TournamentSize > 0 {
		cfg.TournamentSize = params.TournamentSize
	}
	if params.EliteCount > 0 {
		cfg.EliteCount = params.EliteCount
	}
	cfg.Seed = params.Seed
	cfg.ProgressInterval = s.cfg.ProgressInterval
	if s.cfg.Workers > 0 {
		cfg.Workers = s.cfg.Workers
	}
	return cfg
}

func buildGrid(problem *timetable.Problem, best *timetable.Candidate) models.TimetableGrid {
	grid := make(models.TimetableGrid, 0, best.Lessons())
	for class := 0; class < best.Classes(); class++ {
		cls := problem.Classes[class]
		for day := 0; day < timetable.DaysPerWeek; day++ {
			for period := 0; period < timetable.PeriodsPerDay; period++ {
				a := best.At(day, period, class)
				if a.Empty() {
					continue
				}
				lesson := models.ScheduledLesson{
					Day:       day,
					Period:    period,
					ClassID:   cls.ID,
					ClassName: cls.Name,
					SubjectID: a.SubjectID,
					TeacherID: a.TeacherID,
				}
				if subject, ok := problem.SubjectByID(a.SubjectID); ok {
					lesson.SubjectName = subject.Name
				}
				if teacher, ok := problem.TeacherByID(a.TeacherID); ok {
					lesson.TeacherName = teacher.Name
				}
				grid = append(grid, lesson)
			}
		}
	}
	return grid
}

func toRunResponse(run *models.GenerationRun) *dto.GenerationRunResponse {
	return &dto.GenerationRunResponse{
		ID:          run.ID,
		DatasetID:   run.DatasetID,
		Status:      run.Status,
		Progress:    run.Progress,
		BestFitness: run.BestFitness,
		Error:       run.ErrorMessage,
		CreatedAt:   run.CreatedAt,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
	}
}

func toResultResponse(result *models.TimetableResult) (*dto.TimetableResultResponse, error) {
	var breakdown timetable.Breakdown
	if len(result.Breakdown) > 0 {
		if err := json.Unmarshal(result.Breakdown, &breakdown); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode result breakdown")
		}
	}
	return &dto.TimetableResultResponse{
		RunID:      result.RunID,
		Fitness:    result.Fitness,
		Generation: result.Generation,
		Breakdown:  breakdown,
		Days:       timetable.DayNames[:],
		Periods:    timetable.PeriodsPerDay,
		Lessons:    result.Grid,
		CreatedAt:  result.CreatedAt,
	}, nil
}
