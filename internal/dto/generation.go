package dto

import (
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
)

// GenerateTimetableRequest queues a generation run for a dataset. Params are
// optional overrides; zero values fall back to engine defaults.
type GenerateTimetableRequest struct {
	DatasetID string                  `json:"datasetId" validate:"required"`
	Params    models.GenerationParams `json:"params"`
}

// GenerationRunResponse reports the lifecycle state of a run.
type GenerationRunResponse struct {
	ID          string                  `json:"id"`
	DatasetID   string                  `json:"dataset_id"`
	Status      models.GenerationStatus `json:"status"`
	Progress    int                     `json:"progress"`
	BestFitness *float64                `json:"best_fitness,omitempty"`
	Error       *string                 `json:"error,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	FinishedAt  *time.Time              `json:"finished_at,omitempty"`
}

// TimetableResultResponse returns the finished schedule for a run.
type TimetableResultResponse struct {
	RunID      string               `json:"run_id"`
	Fitness    float64              `json:"fitness"`
	Generation int                  `json:"generation"`
	Breakdown  timetable.Breakdown  `json:"breakdown"`
	Days       []string             `json:"days"`
	Periods    int                  `json:"periods_per_day"`
	Lessons    models.TimetableGrid `json:"lessons"`
	CreatedAt  time.Time            `json:"created_at"`
}

// ExportQuery selects the format and scope of a timetable export. Values are
// checked by the export service, which owns the defaults.
type ExportQuery struct {
	Format string `form:"format"`
	Scope  string `form:"scope"`
	Day    *int   `form:"day"`
	ID     string `form:"target"`
}

// ExportLinkResponse returns a signed download link for a rendered export.
type ExportLinkResponse struct {
	URL       string    `json:"url"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expires_at"`
}
