package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SubjectInput describes one subject in a dataset payload.
type SubjectInput struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

// TeacherInput describes one teacher and the subjects they may teach.
type TeacherInput struct {
	ID       string   `json:"id" validate:"required"`
	Name     string   `json:"name" validate:"required"`
	Subjects []string `json:"subjects" validate:"required,min=1"`
}

// ClassInput describes one class and its weekly curriculum, keyed by
// subject ID with required lesson counts as values.
type ClassInput struct {
	ID         string         `json:"id" validate:"required"`
	Name       string         `json:"name" validate:"required"`
	Curriculum map[string]int `json:"curriculum" validate:"required,min=1"`
}

// DatasetPayload stores the full scheduling input as JSONB.
type DatasetPayload struct {
	Subjects []SubjectInput `json:"subjects" validate:"required,min=1,dive"`
	Teachers []TeacherInput `json:"teachers" validate:"required,min=1,dive"`
	Classes  []ClassInput   `json:"classes" validate:"required,min=1,dive"`
}

// Value marshals the payload to JSON for persistence.
func (p DatasetPayload) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal dataset payload: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the struct.
func (p *DatasetPayload) Scan(value interface{}) error {
	if value == nil {
		*p = DatasetPayload{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for DatasetPayload", value)
	}
	if len(data) == 0 {
		*p = DatasetPayload{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal dataset payload: %w", err)
	}
	return nil
}

// Dataset is a stored scheduling input set.
type Dataset struct {
	ID        string         `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	Payload   DatasetPayload `db:"payload" json:"payload"`
	CreatedBy string         `db:"created_by" json:"created_by"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// DatasetFilter captures filtering criteria for listing datasets.
type DatasetFilter struct {
	Search   string
	Page     int
	PageSize int
}
