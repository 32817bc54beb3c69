package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/hyroxreport/internal/api/response"
	"github.com/kiranshivaraju/hyroxreport/internal/snapshot"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

// SnapshotReader serves stored snapshots. snapshot.Store implements it.
type SnapshotReader interface {
	Get(ctx context.Context, dataID uuid.UUID) (*models.DataSnapshot, error)
	List(ctx context.Context, reportID uuid.UUID) ([]*models.DataSnapshot, error)
}

// NewGetSnapshotHandler returns an http.HandlerFunc for GET /api/v1/snapshots/{dataID}.
func NewGetSnapshotHandler(snaps SnapshotReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "dataID")
		if !ok {
			return
		}
		snap, err := snaps.Get(r.Context(), id)
		if errors.Is(err, snapshot.ErrSnapshotNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Snapshot not found", nil)
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, snap)
	}
}

// NewListSnapshotsHandler returns an http.HandlerFunc for
// GET /api/v1/reports/{reportID}/snapshots. The report must exist.
func NewListSnapshotsHandler(svc ReportService, snaps SnapshotReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "reportID")
		if !ok {
			return
		}
		if _, err := svc.Get(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		list, err := snaps.List(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if list == nil {
			list = []*models.DataSnapshot{}
		}
		response.JSON(w, list)
	}
}
