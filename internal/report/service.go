// Package report owns the report lifecycle: creation, background
// generation and progress reporting.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/hyroxreport/internal/assembler"
	"github.com/kiranshivaraju/hyroxreport/internal/cache"
	"github.com/kiranshivaraju/hyroxreport/internal/improvement"
	"github.com/kiranshivaraju/hyroxreport/internal/reportdata"
	"github.com/kiranshivaraju/hyroxreport/internal/results"
	"github.com/kiranshivaraju/hyroxreport/internal/section"
	"github.com/kiranshivaraju/hyroxreport/internal/store"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

// Outcomes of Create.
const (
	CreateCreated    = "created"
	CreateExists     = "exists"
	CreateGenerating = "generating"
)

// DataPreparer precomputes the data of one report. reportdata.Provider
// implements it.
type DataPreparer interface {
	Prepare(ctx context.Context, req reportdata.Request) (*reportdata.ReportData, error)
}

// Estimator allocates recoverable time. improvement.Estimator implements it.
type Estimator interface {
	Estimate(ctx context.Context, in improvement.Input) improvement.Result
}

// AthleteFinder resolves the athlete a report is requested for.
type AthleteFinder interface {
	FindAthlete(ctx context.Context, season int, location, name string) (*models.RaceResult, error)
}

// Recorder observes finished generations. metrics.Metrics implements it.
type Recorder interface {
	ReportFinished(status string, d time.Duration)
}

// PipelineContext carries every component a generation run uses. It is
// built once at startup and shared by all runs.
type PipelineContext struct {
	Catalog   *section.Catalog
	Data      DataPreparer
	Estimator Estimator
	Sections  *section.Pipeline
	Assembler *assembler.Assembler
}

// Service creates reports and runs their generation in the background.
type Service struct {
	store    store.ReportStore
	cache    cache.Cache
	athletes AthleteFinder
	pc       PipelineContext
	broker   *Broker
	recorder Recorder

	statusTTL time.Duration
	timeout   time.Duration
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithStatusTTL(ttl time.Duration) Option {
	return func(s *Service) { s.statusTTL = ttl }
}

// WithTimeout bounds a whole generation run.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithBroker(b *Broker) Option {
	return func(s *Service) { s.broker = b }
}

// NewService creates a Service. c may be nil.
func NewService(st store.ReportStore, c cache.Cache, athletes AthleteFinder, pc PipelineContext, opts ...Option) *Service {
	s := &Service{
		store:     st,
		cache:     c,
		athletes:  athletes,
		pc:        pc,
		broker:    NewBroker(10 * time.Minute),
		statusTTL: 30 * time.Minute,
		timeout:   15 * time.Minute,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Broker returns the progress broker streams subscribe to.
func (s *Service) Broker() *Broker { return s.broker }

// CreateRequest identifies the athlete and race a report is about.
type CreateRequest struct {
	Season          int
	Location        string
	AthleteName     string
	ForceRegenerate bool
	CreatedBy       *uuid.UUID
}

// CreateResult is the report Create settled on and how.
type CreateResult struct {
	Report  *models.Report
	Outcome string
}

// Create returns the latest report for the athlete and race, creating one
// when there is none. A completed report is returned as is unless
// ForceRegenerate is set, in which case it is reset to pending.
func (s *Service) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	existing, err := s.store.FindLatestReport(ctx, req.Season, req.Location, req.AthleteName)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return CreateResult{}, fmt.Errorf("find report: %w", err)
	}

	if existing != nil {
		switch {
		case existing.Status == models.ReportStatusGenerating:
			return CreateResult{Report: existing, Outcome: CreateGenerating}, nil
		case existing.Status == models.ReportStatusPending:
			return CreateResult{Report: existing, Outcome: CreateCreated}, nil
		case existing.Status == models.ReportStatusCompleted && !req.ForceRegenerate:
			return CreateResult{Report: existing, Outcome: CreateExists}, nil
		}
		if err := s.store.ResetReport(ctx, existing.ID); err != nil {
			if errors.Is(err, store.ErrInvalidTransition) {
				return CreateResult{Report: existing, Outcome: CreateGenerating}, nil
			}
			return CreateResult{}, fmt.Errorf("reset report: %w", err)
		}
		r, err := s.store.GetReport(ctx, existing.ID)
		if err != nil {
			return CreateResult{}, fmt.Errorf("reload report: %w", err)
		}
		s.setProgress(ctx, r.ID, models.ReportStatusPending, 0, "")
		slog.Info("report reset for regeneration", "report_id", r.ID, "athlete", r.AthleteName)
		return CreateResult{Report: r, Outcome: CreateCreated}, nil
	}

	athlete, err := s.athletes.FindAthlete(ctx, req.Season, req.Location, req.AthleteName)
	if err != nil {
		if errors.Is(err, results.ErrAthleteNotFound) {
			return CreateResult{}, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
		}
		return CreateResult{}, fmt.Errorf("find athlete: %w", err)
	}

	now := s.now().UTC()
	r := &models.Report{
		ID:          uuid.New(),
		CreatedBy:   req.CreatedBy,
		Season:      req.Season,
		Location:    req.Location,
		AthleteName: athlete.Name,
		Gender:      athlete.Gender,
		Division:    athlete.Division,
		Status:      models.ReportStatusPending,
		Sections:    []models.ReportSection{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateReport(ctx, r); err != nil {
		return CreateResult{}, fmt.Errorf("create report: %w", err)
	}
	s.setProgress(ctx, r.ID, models.ReportStatusPending, 0, "")
	slog.Info("report created", "report_id", r.ID, "athlete", r.AthleteName, "season", r.Season, "location", r.Location)
	return CreateResult{Report: r, Outcome: CreateCreated}, nil
}

// TriggerOptions are per-run inputs that are not stored on the report.
type TriggerOptions struct {
	HeartRate *reportdata.HeartRate
}

// Trigger moves a pending report to generating and runs the generation in
// a background goroutine. The run continues when the caller goes away.
func (s *Service) Trigger(ctx context.Context, reportID uuid.UUID, opts TriggerOptions) (*models.Report, error) {
	r, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case models.ReportStatusGenerating:
		return r, ErrGenerationInProgress
	case models.ReportStatusCompleted, models.ReportStatusError:
		return r, ErrAlreadyFinished
	}

	if err := s.store.UpdateReportStatus(ctx, reportID, models.ReportStatusGenerating,
		store.WithProgress(0, "")); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			return r, ErrGenerationInProgress
		}
		return nil, fmt.Errorf("start generation: %w", err)
	}
	r.Status = models.ReportStatusGenerating
	s.broker.Reset(reportID)
	s.setProgress(ctx, reportID, models.ReportStatusGenerating, 0, "")

	go s.run(r, opts)
	return r, nil
}

// run performs one generation. It recovers from panics and always leaves
// the report completed or error.
func (s *Service) run(r *models.Report, opts TriggerOptions) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	start := s.now()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in report generation", "error", rec, "report_id", r.ID)
			s.fail(context.Background(), r.ID, fmt.Errorf("panic: %v", rec))
			s.finished(models.ReportStatusError, start)
		}
	}()

	if err := s.Generate(ctx, r, opts); err != nil {
		s.fail(context.Background(), r.ID, err)
		s.finished(models.ReportStatusError, start)
		return
	}
	s.finished(models.ReportStatusCompleted, start)
}

func (s *Service) finished(status string, start time.Time) {
	if s.recorder != nil {
		s.recorder.ReportFinished(status, s.now().Sub(start))
	}
}

// Generate runs the pipeline for a report already in generating state and
// stores the assembled result. Progress events are published as it goes.
func (s *Service) Generate(ctx context.Context, r *models.Report, opts TriggerOptions) error {
	log := slog.With("report_id", r.ID)
	pc := s.pc

	s.progress(ctx, r.ID, 5, "初始化报告生成...")
	s.progress(ctx, r.ID, 8, "加载配置完成...")

	s.progress(ctx, r.ID, 15, "数据预计算中...")
	data, err := pc.Data.Prepare(ctx, reportdata.Request{
		Season:      r.Season,
		Location:    r.Location,
		AthleteName: r.AthleteName,
		HeartRate:   opts.HeartRate,
	})
	if err != nil || !data.Valid() {
		log.Warn("report data unavailable", "error", err)
		if err == nil {
			return ErrDataUnavailable
		}
		return fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	s.progress(ctx, r.ID, 25, "数据预计算完成...")

	facts := section.Facts{Data: data}
	if data.TimeLoss != nil && pc.Estimator != nil {
		res := pc.Estimator.Estimate(ctx, improvement.Input{
			Athlete:    data.Athlete,
			Losses:     *data.TimeLoss,
			Comparison: data.Comparison,
			TopDecile:  data.TopDecile,
		})
		facts.Improvement = &res
	}

	req := section.Request{
		ReportID: r.ID,
		Source:   reportdata.NewRegistry(data),
		Context: section.TemplateContext{
			Season:      r.Season,
			Location:    r.Location,
			AthleteName: data.Athlete.Name,
			Gender:      data.Athlete.Gender,
			Division:    data.Athlete.Division,
		},
		Facts: facts,
	}

	s.progress(ctx, r.ID, 30, "开始生成章节...")
	ids := pc.Catalog.DynamicIDs()
	outputs := make(map[string]*section.Output, len(ids))
	for i, id := range ids {
		title := id
		if def, ok := pc.Catalog.Definition(id); ok {
			title = def.Title
		}
		s.progress(ctx, r.ID, 35+int(float64(i)/float64(len(ids))*50), "正在生成: "+title)

		out, err := pc.Sections.Run(ctx, id, req)
		if err != nil {
			return fmt.Errorf("section %s: %w", id, err)
		}
		outputs[id] = out
	}
	if assembler.Succeeded(outputs) == 0 {
		return ErrNoSectionOutput
	}

	s.progress(ctx, r.ID, 85, "章节生成完成，组装报告...")
	title := pc.Catalog.Title(data.Athlete.Name, r.Location, r.Season)
	assembled := pc.Assembler.Assemble(r.ID, title, outputs)

	s.progress(ctx, r.ID, 90, "保存报告...")
	err = s.store.UpdateReportStatus(ctx, r.ID, models.ReportStatusCompleted,
		store.WithContent(store.ReportContent{
			Title:        assembled.Title,
			Sections:     assembled.Sections,
			DataIDs:      assembled.DataIDs,
			Introduction: assembled.Introduction,
			Conclusion:   assembled.Conclusion,
		}),
		store.WithCohort(data.Athlete.Gender, data.Athlete.Division),
		store.WithProgress(100, "报告生成完成！"))
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	s.setProgress(ctx, r.ID, models.ReportStatusCompleted, 100, "报告生成完成！")
	s.broker.Publish(r.ID, Event{Type: EventProgress, Data: map[string]any{"progress": 100, "step": "报告生成完成！"}})
	s.broker.Publish(r.ID, Event{Type: EventComplete, Data: map[string]any{
		"report_id": r.ID.String(),
		"status":    models.ReportStatusCompleted,
	}})
	log.Info("report generated",
		"sections", len(assembled.Sections), "succeeded", assembler.Succeeded(outputs), "data_ids", len(assembled.DataIDs))
	return nil
}

// progress publishes a step and records it on the report row and in the
// cache. Persistence failures are logged only.
func (s *Service) progress(ctx context.Context, reportID uuid.UUID, pct int, step string) {
	s.broker.Publish(reportID, Event{Type: EventProgress, Data: map[string]any{"progress": pct, "step": step}})
	if err := s.store.UpdateReportProgress(ctx, reportID, pct, step); err != nil {
		slog.Warn("failed to persist report progress", "report_id", reportID, "error", err)
	}
	s.setProgress(ctx, reportID, models.ReportStatusGenerating, pct, step)
}

func (s *Service) setProgress(ctx context.Context, reportID uuid.UUID, status string, pct int, step string) {
	if s.cache == nil {
		return
	}
	p := cache.ReportProgress{Status: status, Progress: pct, CurrentStep: step}
	if err := s.cache.SetReportProgress(ctx, reportID, p, s.statusTTL); err != nil {
		slog.Warn("failed to cache report progress", "report_id", reportID, "error", err)
	}
}

// fail forces the report to error and tells subscribers why.
func (s *Service) fail(ctx context.Context, reportID uuid.UUID, err error) {
	msg := err.Error()
	if errors.Is(err, ErrDataUnavailable) {
		msg = ErrDataUnavailable.Error()
	}
	slog.Error("report generation failed", "report_id", reportID, "error", err)

	if uerr := s.store.UpdateReportStatus(ctx, reportID, models.ReportStatusError,
		store.WithErrorMessage(msg)); uerr != nil {
		slog.Error("failed to mark report as error", "report_id", reportID, "error", uerr)
	}
	s.setProgress(ctx, reportID, models.ReportStatusError, 0, msg)
	s.broker.Publish(reportID, Event{Type: EventError, Data: map[string]any{"message": msg}})
}

// Status returns the generation state, from the cache when possible.
func (s *Service) Status(ctx context.Context, reportID uuid.UUID) (cache.ReportProgress, error) {
	if s.cache != nil {
		if p, found, err := s.cache.GetReportProgress(ctx, reportID); err == nil && found {
			return p, nil
		}
	}
	r, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return cache.ReportProgress{}, err
	}
	return cache.ReportProgress{Status: r.Status, Progress: r.Progress, CurrentStep: r.CurrentStep}, nil
}

// Get returns the stored report.
func (s *Service) Get(ctx context.Context, reportID uuid.UUID) (*models.Report, error) {
	return s.store.GetReport(ctx, reportID)
}

// List returns reports matching filter and the total count.
func (s *Service) List(ctx context.Context, filter store.ReportFilter) ([]*models.Report, int, error) {
	return s.store.ListReports(ctx, filter)
}
