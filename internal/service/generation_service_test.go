package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

type mockGenerationStore struct {
	runs    map[string]*models.GenerationRun
	results map[string]*models.TimetableResult
}

func newMockGenerationStore() *mockGenerationStore {
	return &mockGenerationStore{
		runs:    make(map[string]*models.GenerationRun),
		results: make(map[string]*models.TimetableResult),
	}
}

func (m *mockGenerationStore) CreateRun(ctx context.Context, run *models.GenerationRun) error {
	if run.ID == "" {
		run.ID = fmt.Sprintf("run-%d", len(m.runs)+1)
	}
	run.CreatedAt = time.Now().UTC()
	copied := *run
	m.runs[run.ID] = &copied
	return nil
}

func (m *mockGenerationStore) GetRun(ctx context.Context, id string) (*models.GenerationRun, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *run
	return &copied, nil
}

func (m *mockGenerationStore) ListRunsByDataset(ctx context.Context, datasetID string, limit int) ([]models.GenerationRun, error) {
	out := make([]models.GenerationRun, 0)
	for _, run := range m.runs {
		if run.DatasetID == datasetID {
			out = append(out, *run)
		}
	}
	return out, nil
}

func (m *mockGenerationStore) ListQueuedRuns(ctx context.Context, limit int) ([]models.GenerationRun, error) {
	out := make([]models.GenerationRun, 0)
	for _, run := range m.runs {
		if run.Status == models.GenerationStatusQueued {
			out = append(out, *run)
		}
	}
	return out, nil
}

func (m *mockGenerationStore) UpdateRun(ctx context.Context, id string, params repository.UpdateRunParams) error {
	run, ok := m.runs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		run.Status = *params.Status
	}
	if params.Progress != nil {
		run.Progress = *params.Progress
	}
	if params.BestFitness != nil {
		run.BestFitness = params.BestFitness
	}
	if params.ErrorMessage != nil {
		run.ErrorMessage = params.ErrorMessage
	}
	if params.StartedAt != nil {
		run.StartedAt = params.StartedAt
	}
	if params.FinishedAt != nil {
		run.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *mockGenerationStore) SaveResult(ctx context.Context, result *models.TimetableResult) error {
	copied := *result
	m.results[result.RunID] = &copied
	return nil
}

func (m *mockGenerationStore) GetResultByRunID(ctx context.Context, runID string) (*models.TimetableResult, error) {
	result, ok := m.results[runID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *result
	return &copied, nil
}

type mockDispatcher struct {
	jobs       []jobs.Job
	enqueueErr error
}

func (m *mockDispatcher) Enqueue(job jobs.Job) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.jobs = append(m.jobs, job)
	return nil
}

type mockResultCache struct {
	entries map[string]*models.TimetableResult
	getErr  error
}

func newMockResultCache() *mockResultCache {
	return &mockResultCache{entries: make(map[string]*models.TimetableResult)}
}

func (m *mockResultCache) Get(ctx context.Context, runID string) (*models.TimetableResult, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result, ok := m.entries[runID]
	if !ok {
		return nil, appErrors.ErrCacheMiss
	}
	return result, nil
}

func (m *mockResultCache) Set(ctx context.Context, result *models.TimetableResult) error {
	m.entries[result.RunID] = result
	return nil
}

// evict simulates a TTL expiry on the cached entry.
func (m *mockResultCache) evict(runID string) {
	delete(m.entries, runID)
}

type mockObserver struct {
	runs        []models.GenerationStatus
	bestFitness float64
	cacheHits   int
	cacheMisses int
}

func (m *mockObserver) ObserveGenerationRun(status models.GenerationStatus, duration time.Duration) {
	m.runs = append(m.runs, status)
}

func (m *mockObserver) SetBestFitness(fitness float64) {
	m.bestFitness = fitness
}

func (m *mockObserver) RecordCacheOperation(hit bool, duration time.Duration) {
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

type generationFixture struct {
	svc      *GenerationService
	store    *mockGenerationStore
	datasets *mockDatasetStore
	queue    *mockDispatcher
	cache    *mockResultCache
	observer *mockObserver
}

func newGenerationFixture(t *testing.T) *generationFixture {
	t.Helper()
	store := newMockGenerationStore()
	datasets := newMockDatasetStore()
	queue := &mockDispatcher{}
	cache := newMockResultCache()
	observer := &mockObserver{}

	svc := NewGenerationService(store, datasets, cache, observer, validator.New(), zap.NewNop(), GenerationServiceConfig{Workers: 1})
	svc.SetQueue(queue)

	require.NoError(t, datasets.Create(context.Background(), &models.Dataset{ID: "ds-1", Name: "semester 1", Payload: validPayload()}))
	return &generationFixture{svc: svc, store: store, datasets: datasets, queue: queue, cache: cache, observer: observer}
}

func smallParams() models.GenerationParams {
	return models.GenerationParams{
		PopulationSize: 16,
		Generations:    30,
		TournamentSize: 4,
		EliteCount:     2,
		Seed:           7,
	}
}

func TestGenerationServiceGenerate(t *testing.T) {
	f := newGenerationFixture(t)

	res, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{DatasetID: "ds-1", Params: smallParams()}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusQueued, res.Status)
	assert.Equal(t, 0, res.Progress)

	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, res.ID, f.queue.jobs[0].ID)
	assert.Equal(t, "timetable_generation", f.queue.jobs[0].Type)
}

func TestGenerationServiceGenerateUnknownDataset(t *testing.T) {
	f := newGenerationFixture(t)

	_, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{DatasetID: "missing"}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGenerationServiceGenerateRejectsBadParams(t *testing.T) {
	f := newGenerationFixture(t)

	params := smallParams()
	params.TournamentSize = 500 // larger than the population

	_, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{DatasetID: "ds-1", Params: params}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGenerationServiceGenerateEnqueueFailureMarksRunFailed(t *testing.T) {
	f := newGenerationFixture(t)
	f.queue.enqueueErr = fmt.Errorf("queue full")

	_, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{DatasetID: "ds-1", Params: smallParams()}, "admin-1")
	require.Error(t, err)

	require.Len(t, f.store.runs, 1)
	for _, run := range f.store.runs {
		assert.Equal(t, models.GenerationStatusFailed, run.Status)
	}
}

func TestGenerationServiceProcessCompletesRun(t *testing.T) {
	f := newGenerationFixture(t)

	res, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{DatasetID: "ds-1", Params: smallParams()}, "admin-1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Process(context.Background(), jobs.Job{ID: res.ID, Type: "timetable_generation"}))

	run, err := f.store.GetRun(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusDone, run.Status)
	assert.Equal(t, 100, run.Progress)
	require.NotNil(t, run.BestFitness)
	assert.Greater(t, *run.BestFitness, 0.0)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.FinishedAt)

	stored, err := f.store.GetResultByRunID(context.Background(), res.ID)
	require.NoError(t, err)
	// two classes with three lessons each
	assert.Len(t, stored.Grid, 6)
	for _, lesson := range stored.Grid {
		assert.NotEmpty(t, lesson.SubjectName)
		assert.NotEmpty(t, lesson.TeacherName)
	}

	assert.Contains(t, f.cache.entries, res.ID)
	assert.Equal(t, []models.GenerationStatus{models.GenerationStatusDone}, f.observer.runs)
	assert.Equal(t, *run.BestFitness, f.observer.bestFitness)
}

func TestGenerationServiceProcessSkipsNonQueuedRun(t *testing.T) {
	f := newGenerationFixture(t)

	run := &models.GenerationRun{DatasetID: "ds-1", Status: models.GenerationStatusDone}
	require.NoError(t, f.store.CreateRun(context.Background(), run))

	require.NoError(t, f.svc.Process(context.Background(), jobs.Job{ID: run.ID}))
	stored, _ := f.store.GetRun(context.Background(), run.ID)
	assert.Equal(t, models.GenerationStatusDone, stored.Status)
	assert.Empty(t, f.store.results)
}

func TestGenerationServiceProcessDeletedDatasetFailsRun(t *testing.T) {
	f := newGenerationFixture(t)

	res, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{DatasetID: "ds-1", Params: smallParams()}, "admin-1")
	require.NoError(t, err)

	require.NoError(t, f.datasets.Delete(context.Background(), "ds-1"))
	require.NoError(t, f.svc.Process(context.Background(), jobs.Job{ID: res.ID}))

	run, err := f.store.GetRun(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "dataset deleted")
}

func TestGenerationServiceProcessUnknownRunPropagates(t *testing.T) {
	f := newGenerationFixture(t)

	err := f.svc.Process(context.Background(), jobs.Job{ID: "missing"})
	require.Error(t, err)
}

func TestGenerationServiceGetResultLifecycle(t *testing.T) {
	f := newGenerationFixture(t)

	res, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{DatasetID: "ds-1", Params: smallParams()}, "admin-1")
	require.NoError(t, err)

	_, err = f.svc.GetResult(context.Background(), res.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrResultNotReady.Code, appErrors.FromError(err).Code)

	require.NoError(t, f.svc.Process(context.Background(), jobs.Job{ID: res.ID}))

	result, err := f.svc.GetResult(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, result.RunID)
	assert.Len(t, result.Lessons, 6)
	assert.Len(t, result.Days, 5)
	assert.Equal(t, 6, result.Periods)
	assert.Equal(t, 1, f.observer.cacheHits)
}

func TestGenerationServiceGetResultCacheMissFallsBack(t *testing.T) {
	f := newGenerationFixture(t)

	res, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{DatasetID: "ds-1", Params: smallParams()}, "admin-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Process(context.Background(), jobs.Job{ID: res.ID}))

	f.cache.evict(res.ID)

	result, err := f.svc.GetResult(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, result.RunID)
	assert.Equal(t, 1, f.observer.cacheMisses)
	// the repository copy is cached again after the miss
	assert.Contains(t, f.cache.entries, res.ID)
}

func TestGenerationServiceGetResultFailedRun(t *testing.T) {
	f := newGenerationFixture(t)

	msg := "no qualified teacher for subject bio"
	failed := models.GenerationStatusFailed
	run := &models.GenerationRun{DatasetID: "ds-1", Status: failed, ErrorMessage: &msg}
	require.NoError(t, f.store.CreateRun(context.Background(), run))

	_, err := f.svc.GetResult(context.Background(), run.ID)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrRunFailed.Code, appErr.Code)
	assert.Equal(t, msg, appErr.Message)
}

func TestGenerationServiceRecoverQueued(t *testing.T) {
	f := newGenerationFixture(t)

	run := &models.GenerationRun{DatasetID: "ds-1", Status: models.GenerationStatusQueued}
	require.NoError(t, f.store.CreateRun(context.Background(), run))

	require.NoError(t, f.svc.RecoverQueued(context.Background(), 10))
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, run.ID, f.queue.jobs[0].ID)
}

func TestGenerationServiceListRuns(t *testing.T) {
	f := newGenerationFixture(t)

	_, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{DatasetID: "ds-1", Params: smallParams()}, "admin-1")
	require.NoError(t, err)

	runs, err := f.svc.ListRuns(context.Background(), "ds-1", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
