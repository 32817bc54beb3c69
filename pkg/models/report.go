package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	ReportStatusPending    = "pending"
	ReportStatusGenerating = "generating"
	ReportStatusCompleted  = "completed"
	ReportStatusError      = "error"
)

// Report is the aggregate root of one generated analysis. It is created by
// the API, mutated only by the generation pipeline, and terminal once
// completed or error.
type Report struct {
	ID           uuid.UUID       `db:"id"            json:"report_id"`
	CreatedBy    *uuid.UUID      `db:"created_by"    json:"created_by,omitempty"`
	Season       int             `db:"season"        json:"season"`
	Location     string          `db:"location"      json:"location"`
	AthleteName  string          `db:"athlete_name"  json:"athlete_name"`
	Gender       string          `db:"gender"        json:"gender,omitempty"`
	Division     string          `db:"division"      json:"division,omitempty"`
	Title        string          `db:"title"         json:"title,omitempty"`
	Status       string          `db:"status"        json:"status"`
	Progress     int             `db:"progress"      json:"progress"`
	CurrentStep  string          `db:"current_step"  json:"current_step,omitempty"`
	Sections     []ReportSection `db:"sections"      json:"sections"`
	DataIDs      []string        `db:"data_ids"      json:"data_ids"`
	Introduction string          `db:"introduction"  json:"introduction,omitempty"`
	Conclusion   string          `db:"conclusion"    json:"conclusion,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CompletedAt  *time.Time      `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"    json:"updated_at"`
}

// Terminal reports whether the report has finished generating.
func (r *Report) Terminal() bool {
	return r.Status == ReportStatusCompleted || r.Status == ReportStatusError
}

// ReportSection is one rendered section of an assembled report.
type ReportSection struct {
	SectionID string  `json:"section_id"`
	Title     string  `json:"title"`
	Order     int     `json:"order"`
	Type      string  `json:"type"`
	Blocks    []Block `json:"blocks"`
}

// Block is a renderable unit of section content. Props are handed to the
// frontend component untouched.
type Block struct {
	Type      string         `json:"type"`
	Component string         `json:"component"`
	Props     map[string]any `json:"props"`
}

// DataSnapshot is an immutable copy of one data object shown to the model
// while generating a report.
type DataSnapshot struct {
	ID        uuid.UUID       `db:"id"         json:"data_id"`
	ReportID  uuid.UUID       `db:"report_id"  json:"report_id"`
	DataType  string          `db:"data_type"  json:"data_type"`
	Content   json.RawMessage `db:"content"    json:"content"`
	Checksum  string          `db:"checksum"   json:"checksum"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
