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

// DatasetRepository persists scheduling input sets.
type DatasetRepository struct {
	db *sqlx.DB
}

// NewDatasetRepository constructs the repository.
func NewDatasetRepository(db *sqlx.DB) *DatasetRepository {
	return &DatasetRepository{db: db}
}

const datasetColumns = "id, name, payload, created_by, created_at, updated_at"

// Create inserts a new dataset row with generated defaults.
func (r *DatasetRepository) Create(ctx context.Context, ds *models.Dataset) error {
	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = now
	}
	ds.UpdatedAt = now
	const query = `INSERT INTO datasets (id, name, payload, created_by, created_at, updated_at)
VALUES (:id, :name, :payload, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, ds); err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	return nil
}

// GetByID returns a dataset row by its identifier.
func (r *DatasetRepository) GetByID(ctx context.Context, id string) (*models.Dataset, error) {
	query := fmt.Sprintf("SELECT %s FROM datasets WHERE id = $1", datasetColumns)
	var ds models.Dataset
	if err := r.db.GetContext(ctx, &ds, query, id); err != nil {
		return nil, fmt.Errorf("get dataset: %w", err)
	}
	return &ds, nil
}

// List returns datasets matching the filter plus the total count.
func (r *DatasetRepository) List(ctx context.Context, filter models.DatasetFilter) ([]models.Dataset, int, error) {
	where := ""
	args := []interface{}{}
	if filter.Search != "" {
		where = "WHERE name ILIKE $1"
		args = append(args, "%"+filter.Search+"%")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM datasets %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count datasets: %w", err)
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf("SELECT %s FROM datasets %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		datasetColumns, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, offset)

	var rows []models.Dataset
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list datasets: %w", err)
	}
	return rows, total, nil
}

// UpdateDatasetParams defines the mutable fields.
type UpdateDatasetParams struct {
	Name    *string
	Payload *models.DatasetPayload
}

// Update persists the provided changes for a dataset row.
func (r *DatasetRepository) Update(ctx context.Context, id string, params UpdateDatasetParams) error {
	set := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)
	argPos := 1

	if params.Name != nil {
		set = append(set, fmt.Sprintf("name = $%d", argPos))
		args = append(args, *params.Name)
		argPos++
	}
	if params.Payload != nil {
		set = append(set, fmt.Sprintf("payload = $%d", argPos))
		args = append(args, *params.Payload)
		argPos++
	}
	if len(set) == 0 {
		return nil
	}
	set = append(set, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now().UTC())
	argPos++

	query := fmt.Sprintf("UPDATE datasets SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update dataset: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update dataset: no rows affected")
	}
	return nil
}

// Delete removes a dataset row.
func (r *DatasetRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM datasets WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	return nil
}
