// Package handler implements the HTTP handlers of the report API.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	mw "github.com/kiranshivaraju/hyroxreport/internal/api/middleware"
	"github.com/kiranshivaraju/hyroxreport/internal/api/response"
	"github.com/kiranshivaraju/hyroxreport/internal/cache"
	"github.com/kiranshivaraju/hyroxreport/internal/report"
	"github.com/kiranshivaraju/hyroxreport/internal/reportdata"
	"github.com/kiranshivaraju/hyroxreport/internal/results"
	"github.com/kiranshivaraju/hyroxreport/internal/store"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	keepAlive        = 15 * time.Second
)

// ReportService is the report lifecycle the handlers drive.
// report.Service implements it.
type ReportService interface {
	Create(ctx context.Context, req report.CreateRequest) (report.CreateResult, error)
	Trigger(ctx context.Context, reportID uuid.UUID, opts report.TriggerOptions) (*models.Report, error)
	Status(ctx context.Context, reportID uuid.UUID) (cache.ReportProgress, error)
	Get(ctx context.Context, reportID uuid.UUID) (*models.Report, error)
	List(ctx context.Context, filter store.ReportFilter) ([]*models.Report, int, error)
	Broker() *report.Broker
}

type createReportRequest struct {
	Season          int    `json:"season"`
	Location        string `json:"location"`
	AthleteName     string `json:"athlete_name"`
	ForceRegenerate bool   `json:"force_regenerate"`
}

type createReportResponse struct {
	ReportID uuid.UUID `json:"report_id"`
	Status   string    `json:"status"`
	Outcome  string    `json:"outcome"`
	Title    string    `json:"title,omitempty"`
}

// NewCreateReportHandler returns an http.HandlerFunc for POST /api/v1/reports.
func NewCreateReportHandler(svc ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createReportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		req.Location = strings.TrimSpace(req.Location)
		req.AthleteName = strings.TrimSpace(req.AthleteName)
		if req.Season <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "season must be a positive integer", nil)
			return
		}
		if req.Location == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "location is required", nil)
			return
		}
		if req.AthleteName == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "athlete_name is required", nil)
			return
		}

		cr := report.CreateRequest{
			Season:          req.Season,
			Location:        req.Location,
			AthleteName:     req.AthleteName,
			ForceRegenerate: req.ForceRegenerate,
		}
		if key, ok := mw.GetAPIKey(r); ok {
			id := key.ID
			cr.CreatedBy = &id
		}

		res, err := svc.Create(r.Context(), cr)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		body := createReportResponse{
			ReportID: res.Report.ID,
			Status:   res.Report.Status,
			Outcome:  res.Outcome,
			Title:    res.Report.Title,
		}
		if res.Outcome == report.CreateCreated {
			response.Created(w, body)
			return
		}
		response.JSON(w, body)
	}
}

type triggerRequest struct {
	HeartRate *reportdata.HeartRate `json:"heart_rate"`
}

// NewTriggerReportHandler returns an http.HandlerFunc for
// POST /api/v1/reports/{reportID}/generate. The body is optional.
func NewTriggerReportHandler(svc ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "reportID")
		if !ok {
			return
		}
		var req triggerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		rep, err := svc.Trigger(r.Context(), id, report.TriggerOptions{HeartRate: req.HeartRate})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.Accepted(w, map[string]any{
			"report_id": rep.ID,
			"status":    rep.Status,
		})
	}
}

// NewReportStatusHandler returns an http.HandlerFunc for
// GET /api/v1/reports/{reportID}/status.
func NewReportStatusHandler(svc ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "reportID")
		if !ok {
			return
		}
		p, err := svc.Status(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, map[string]any{
			"report_id":    id,
			"status":       p.Status,
			"progress":     p.Progress,
			"current_step": p.CurrentStep,
		})
	}
}

// NewGetReportHandler returns an http.HandlerFunc for GET /api/v1/reports/{reportID}.
func NewGetReportHandler(svc ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "reportID")
		if !ok {
			return
		}
		rep, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, rep)
	}
}

// NewListReportsHandler returns an http.HandlerFunc for GET /api/v1/reports.
func NewListReportsHandler(svc ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, ok := intQuery(w, q.Get("page"), "page", 1)
		if !ok {
			return
		}
		limit, ok := intQuery(w, q.Get("limit"), "limit", defaultPageLimit)
		if !ok {
			return
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}

		filter := store.ReportFilter{
			AthleteName: strings.TrimSpace(q.Get("athlete_name")),
			Status:      q.Get("status"),
			Page:        page,
			Limit:       limit,
		}
		reports, total, err := svc.List(r.Context(), filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if reports == nil {
			reports = []*models.Report{}
		}
		response.Collection(w, reports, response.NewPaginationMeta(page, limit, total))
	}
}

// NewReportEventsHandler returns an http.HandlerFunc for
// GET /api/v1/reports/{reportID}/events. Events already published for the
// current run are replayed first. When no run is known in this process the
// stored state is sent once and the stream ends.
func NewReportEventsHandler(svc ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "reportID")
		if !ok {
			return
		}
		history, events, cancel, ok := svc.Broker().Subscribe(id)
		if !ok {
			rep, err := svc.Get(r.Context(), id)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			e := storedEvent(rep)
			_ = response.NewStream(w).Event(e.Type, e.Data)
			return
		}
		defer cancel()

		stream := response.NewStream(w)
		for _, e := range history {
			if err := stream.Event(e.Type, e.Data); err != nil {
				return
			}
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if err := stream.Comment("keep-alive"); err != nil {
					return
				}
			case e, open := <-events:
				if !open {
					return
				}
				if err := stream.Event(e.Type, e.Data); err != nil {
					slog.Debug("event stream closed by client", "report_id", id, "error", err)
					return
				}
			}
		}
	}
}

// storedEvent describes a report's persisted state as a single event.
func storedEvent(rep *models.Report) report.Event {
	switch rep.Status {
	case models.ReportStatusCompleted:
		return report.Event{Type: report.EventComplete, Data: map[string]any{
			"report_id": rep.ID.String(),
			"status":    rep.Status,
		}}
	case models.ReportStatusError:
		msg := ""
		if rep.ErrorMessage != nil {
			msg = *rep.ErrorMessage
		}
		return report.Event{Type: report.EventError, Data: map[string]any{"message": msg}}
	}
	return report.Event{Type: report.EventProgress, Data: map[string]any{
		"progress": rep.Progress,
		"step":     rep.CurrentStep,
		"status":   rep.Status,
	}}
}

// writeServiceError maps service and store errors onto the error envelope.
func writeServiceError(w http.ResponseWriter, err error) {
	var nf *results.NotFoundError
	switch {
	case errors.As(err, &nf):
		response.Error(w, http.StatusNotFound, "ATHLETE_NOT_FOUND", report.ErrDataUnavailable.Error(),
			map[string]any{"athlete_name": nf.Name, "suggestions": nonNil(nf.Suggestions)})
	case errors.Is(err, report.ErrDataUnavailable):
		response.Error(w, http.StatusNotFound, "ATHLETE_NOT_FOUND", report.ErrDataUnavailable.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Report not found", nil)
	case errors.Is(err, report.ErrGenerationInProgress):
		response.Error(w, http.StatusConflict, "GENERATION_IN_PROGRESS", "Report generation already in progress", nil)
	case errors.Is(err, report.ErrAlreadyFinished):
		response.Error(w, http.StatusConflict, "REPORT_FINISHED", err.Error(), nil)
	default:
		slog.Error("request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", name+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(w http.ResponseWriter, raw, name string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", name+" must be a positive integer", nil)
		return 0, false
	}
	return n, true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
