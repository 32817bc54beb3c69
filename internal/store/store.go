package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid report status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
	CountAPIKeys(ctx context.Context) (int, error)

	ReportStore
	SnapshotStore
}

// ReportStore persists the report aggregate.
type ReportStore interface {
	CreateReport(ctx context.Context, report *models.Report) error
	GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error)
	FindLatestReport(ctx context.Context, season int, location, athleteName string) (*models.Report, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]*models.Report, int, error)
	UpdateReportStatus(ctx context.Context, id uuid.UUID, status string, opts ...ReportUpdateOption) error
	UpdateReportProgress(ctx context.Context, id uuid.UUID, progress int, step string) error
	ResetReport(ctx context.Context, id uuid.UUID) error
}

// SnapshotStore persists data snapshots. There is no update or delete.
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, snap *models.DataSnapshot) error
	GetSnapshot(ctx context.Context, id uuid.UUID) (*models.DataSnapshot, error)
	ListSnapshotsByReport(ctx context.Context, reportID uuid.UUID) ([]*models.DataSnapshot, error)
}

type ReportFilter struct {
	AthleteName string
	CreatedBy   *uuid.UUID
	Status      string
	Page        int
	Limit       int
}

// ReportContent is the assembled output written when a report completes.
type ReportContent struct {
	Title        string
	Sections     []models.ReportSection
	DataIDs      []string
	Introduction string
	Conclusion   string
}

type reportUpdateParams struct {
	ErrorMessage *string
	Content      *ReportContent
	Gender       *string
	Division     *string
	Progress     *int
	Step         *string
}

type ReportUpdateOption func(*reportUpdateParams)

func WithErrorMessage(msg string) ReportUpdateOption {
	return func(p *reportUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithContent(c ReportContent) ReportUpdateOption {
	return func(p *reportUpdateParams) {
		p.Content = &c
	}
}

// WithCohort records the athlete's gender and division once they are known.
func WithCohort(gender, division string) ReportUpdateOption {
	return func(p *reportUpdateParams) {
		p.Gender = &gender
		p.Division = &division
	}
}

func WithProgress(progress int, step string) ReportUpdateOption {
	return func(p *reportUpdateParams) {
		p.Progress = &progress
		p.Step = &step
	}
}

// ApplyReportUpdate applies opts to an in-memory report the way
// UpdateReportStatus applies them to a stored one. The status itself is
// left to the caller.
func ApplyReportUpdate(r *models.Report, opts ...ReportUpdateOption) {
	p := &reportUpdateParams{}
	for _, opt := range opts {
		opt(p)
	}
	if p.ErrorMessage != nil {
		msg := *p.ErrorMessage
		r.ErrorMessage = &msg
	}
	if p.Content != nil {
		r.Title = p.Content.Title
		r.Sections = p.Content.Sections
		r.DataIDs = p.Content.DataIDs
		r.Introduction = p.Content.Introduction
		r.Conclusion = p.Content.Conclusion
	}
	if p.Gender != nil {
		r.Gender = *p.Gender
	}
	if p.Division != nil {
		r.Division = *p.Division
	}
	if p.Progress != nil {
		r.Progress = *p.Progress
		r.CurrentStep = *p.Step
	}
}
