package dto

import (
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// CreateDatasetRequest submits a new scheduling input set.
type CreateDatasetRequest struct {
	Name    string                `json:"name" validate:"required,min=2,max=120"`
	Payload models.DatasetPayload `json:"payload" validate:"required"`
}

// UpdateDatasetRequest replaces the name and/or payload of a dataset.
type UpdateDatasetRequest struct {
	Name    *string                `json:"name" validate:"omitempty,min=2,max=120"`
	Payload *models.DatasetPayload `json:"payload"`
}

// DatasetQuery filters dataset listings.
type DatasetQuery struct {
	Search   string `form:"search"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}

// DatasetSummary is a listing row without the full payload.
type DatasetSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subjects  int       `json:"subjects"`
	Teachers  int       `json:"teachers"`
	Classes   int       `json:"classes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DatasetResponse returns a dataset with its payload.
type DatasetResponse struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Payload   models.DatasetPayload `json:"payload"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}
