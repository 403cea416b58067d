package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// GenerationStatus captures the lifecycle of a background generation run.
type GenerationStatus string

const (
	GenerationStatusQueued  GenerationStatus = "QUEUED"
	GenerationStatusRunning GenerationStatus = "RUNNING"
	GenerationStatusDone    GenerationStatus = "DONE"
	GenerationStatusFailed  GenerationStatus = "FAILED"
)

// GenerationParams stores run options persisted as JSONB. Zero fields fall
// back to engine defaults.
type GenerationParams struct {
	PopulationSize int     `json:"populationSize" validate:"omitempty,min=2"`
	Generations    int     `json:"generations" validate:"omitempty,min=1,max=10000"`
	MutationRate   float64 `json:"mutationRate" validate:"omitempty,gte=0,lte=1"`
	TournamentSize int     `json:"tournamentSize" validate:"omitempty,min=1"`
	EliteCount     int     `json:"eliteCount" validate:"omitempty,min=0"`
	Seed           int64   `json:"seed"`
}

// Value marshals params to JSON for persistence.
func (p GenerationParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal generation params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *GenerationParams) Scan(value interface{}) error {
	if value == nil {
		*p = GenerationParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for GenerationParams", value)
	}
	if len(data) == 0 {
		*p = GenerationParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal generation params: %w", err)
	}
	return nil
}

// GenerationRun is the persisted metadata of one timetable generation job.
type GenerationRun struct {
	ID           string           `db:"id" json:"id"`
	DatasetID    string           `db:"dataset_id" json:"dataset_id"`
	Params       GenerationParams `db:"params" json:"params"`
	Status       GenerationStatus `db:"status" json:"status"`
	Progress     int              `db:"progress" json:"progress"`
	BestFitness  *float64         `db:"best_fitness" json:"best_fitness,omitempty"`
	ErrorMessage *string          `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    string           `db:"created_by" json:"created_by"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	StartedAt    *time.Time       `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time       `db:"finished_at" json:"finished_at,omitempty"`
}

// ScheduledLesson is one placed lesson in a finished timetable, with names
// denormalised from the dataset so exports need no joins.
type ScheduledLesson struct {
	Day         int    `json:"day"`
	Period      int    `json:"period"`
	ClassID     string `json:"classId"`
	ClassName   string `json:"className"`
	SubjectID   string `json:"subjectId"`
	SubjectName string `json:"subjectName"`
	TeacherID   string `json:"teacherId"`
	TeacherName string `json:"teacherName"`
}

// TimetableGrid stores the placed lessons of a result as JSONB.
type TimetableGrid []ScheduledLesson

// Value marshals the grid to JSON for persistence.
func (g TimetableGrid) Value() (driver.Value, error) {
	if g == nil {
		g = TimetableGrid{}
	}
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshal timetable grid: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the grid.
func (g *TimetableGrid) Scan(value interface{}) error {
	if value == nil {
		*g = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for TimetableGrid", value)
	}
	if len(data) == 0 {
		*g = nil
		return nil
	}
	if err := json.Unmarshal(data, g); err != nil {
		return fmt.Errorf("unmarshal timetable grid: %w", err)
	}
	return nil
}

// TimetableResult is the stored outcome of a successful generation run.
type TimetableResult struct {
	ID         string         `db:"id" json:"id"`
	RunID      string         `db:"run_id" json:"run_id"`
	Fitness    float64        `db:"fitness" json:"fitness"`
	Generation int            `db:"generation" json:"generation"`
	Breakdown  types.JSONText `db:"breakdown" json:"breakdown"`
	Grid       TimetableGrid  `db:"grid" json:"grid"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}
