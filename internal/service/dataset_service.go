package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type datasetStore interface {
	Create(ctx context.Context, ds *models.Dataset) error
	GetByID(ctx context.Context, id string) (*models.Dataset, error)
	List(ctx context.Context, filter models.DatasetFilter) ([]models.Dataset, int, error)
	Update(ctx context.Context, id string, params repository.UpdateDatasetParams) error
	Delete(ctx context.Context, id string) error
}

// DatasetService manages scheduling input sets.
type DatasetService struct {
	repo      datasetStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDatasetService constructs the dataset service.
func NewDatasetService(repo datasetStore, validate *validator.Validate, logger *zap.Logger) *DatasetService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatasetService{repo: repo, validator: validate, logger: logger}
}

// BuildProblem converts a stored payload into a solver problem and checks
// its consistency. Shared with the generation worker.
func BuildProblem(payload models.DatasetPayload) (*timetable.Problem, error) {
	subjects := make([]timetable.Subject, 0, len(payload.Subjects))
	for _, s := range payload.Subjects {
		subjects = append(subjects, timetable.Subject{ID: s.ID, Name: s.Name})
	}
	teachers := make([]timetable.Teacher, 0, len(payload.Teachers))
	for _, t := range payload.Teachers {
		teachers = append(teachers, timetable.Teacher{ID: t.ID, Name: t.Name, Subjects: t.Subjects})
	}
	classes := make([]timetable.Class, 0, len(payload.Classes))
	for _, c := range payload.Classes {
		classes = append(classes, timetable.Class{ID: c.ID, Name: c.Name, Curriculum: c.Curriculum})
	}
	problem := timetable.NewProblem(subjects, teachers, classes)
	if err := problem.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidDataset.Code, appErrors.ErrInvalidDataset.Status, err.Error())
	}
	return problem, nil
}

// Create validates and persists a new dataset.
func (s *DatasetService) Create(ctx context.Context, req dto.CreateDatasetRequest, actorID string) (*dto.DatasetResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid dataset payload")
	}
	if _, err := BuildProblem(req.Payload); err != nil {
		return nil, err
	}

	ds := &models.Dataset{Name: req.Name, Payload: req.Payload, CreatedBy: actorID}
	if err := s.repo.Create(ctx, ds); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create dataset")
	}
	s.logger.Info("dataset created", zap.String("dataset_id", ds.ID), zap.String("name", ds.Name))
	return toDatasetResponse(ds), nil
}

// Get returns a dataset with its payload.
func (s *DatasetService) Get(ctx context.Context, id string) (*dto.DatasetResponse, error) {
	ds, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dataset")
	}
	return toDatasetResponse(ds), nil
}

// List returns dataset summaries with pagination metadata.
func (s *DatasetService) List(ctx context.Context, query dto.DatasetQuery) ([]dto.DatasetSummary, *models.Pagination, error) {
	filter := models.DatasetFilter{Search: query.Search, Page: query.Page, PageSize: query.PageSize}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list datasets")
	}

	summaries := make([]dto.DatasetSummary, 0, len(rows))
	for _, ds := range rows {
		summaries = append(summaries, dto.DatasetSummary{
			ID:        ds.ID,
			Name:      ds.Name,
			Subjects:  len(ds.Payload.Subjects),
			Teachers:  len(ds.Payload.Teachers),
			Classes:   len(ds.Payload.Classes),
			CreatedAt: ds.CreatedAt,
			UpdatedAt: ds.UpdatedAt,
		})
	}
	return summaries, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Update applies partial changes and re-validates a replaced payload.
func (s *DatasetService) Update(ctx context.Context, id string, req dto.UpdateDatasetRequest) (*dto.DatasetResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid dataset payload")
	}
	if req.Name == nil && req.Payload == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}
	if req.Payload != nil {
		if err := s.validator.Struct(*req.Payload); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid dataset payload")
		}
		if _, err := BuildProblem(*req.Payload); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, id, repository.UpdateDatasetParams{Name: req.Name, Payload: req.Payload}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update dataset")
	}
	return s.Get(ctx, id)
}

// Delete removes a dataset.
func (s *DatasetService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete dataset")
	}
	return nil
}

func toDatasetResponse(ds *models.Dataset) *dto.DatasetResponse {
	return &dto.DatasetResponse{
		ID:        ds.ID,
		Name:      ds.Name,
		Payload:   ds.Payload,
		CreatedAt: ds.CreatedAt,
		UpdatedAt: ds.UpdatedAt,
	}
}
