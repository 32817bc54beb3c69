// Package snapshot records every data object shown to the model during a
// generation. Snapshots are append-only: each Create mints a new data_id,
// even for identical content.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/zeebo/xxh3"

	"github.com/kiranshivaraju/hyroxreport/internal/cache"
	"github.com/kiranshivaraju/hyroxreport/internal/store"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Store wraps the persistent snapshot table with a read-through cache.
type Store struct {
	db    store.SnapshotStore
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// New creates a Store. c may be nil.
func New(db store.SnapshotStore, c cache.Cache, ttl time.Duration) *Store {
	return &Store{db: db, cache: c, ttl: ttl, now: time.Now}
}

// Canonical re-encodes JSON content with sorted object keys and no
// insignificant whitespace. Postgres jsonb returns content in its own
// layout, so checksums are taken over this form.
func Canonical(content []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(content, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// Checksum is the hex xxh3 digest of the canonical form of content. Content
// that is not JSON is hashed as is.
func Checksum(content []byte) string {
	if c, err := Canonical(content); err == nil {
		content = c
	}
	return strconv.FormatUint(xxh3.Hash(content), 16)
}

// Verify reports whether snap's content still matches its checksum.
func Verify(snap *models.DataSnapshot) bool {
	return Checksum(snap.Content) == snap.Checksum
}

// Create persists content under a fresh data_id and returns it.
func (s *Store) Create(ctx context.Context, reportID uuid.UUID, dataType string, content any) (uuid.UUID, error) {
	raw, err := json.Marshal(content)
	if err == nil {
		raw, err = Canonical(raw)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal snapshot content: %w", err)
	}
	snap := &models.DataSnapshot{
		ID:        uuid.New(),
		ReportID:  reportID,
		DataType:  dataType,
		Content:   raw,
		Checksum:  Checksum(raw),
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.CreateSnapshot(ctx, snap); err != nil {
		return uuid.Nil, fmt.Errorf("create snapshot: %w", err)
	}
	s.remember(ctx, snap)
	return snap.ID, nil
}

// Get returns the snapshot for dataID.
func (s *Store) Get(ctx context.Context, dataID uuid.UUID) (*models.DataSnapshot, error) {
	if s.cache != nil {
		if raw, found, err := s.cache.Get(ctx, cache.SnapshotKey(dataID)); err == nil && found {
			var snap models.DataSnapshot
			if err := json.Unmarshal(raw, &snap); err == nil {
				return &snap, nil
			}
		}
	}
	snap, err := s.db.GetSnapshot(ctx, dataID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	if !Verify(snap) {
		slog.Warn("snapshot checksum mismatch", "data_id", dataID, "report_id", snap.ReportID,
			"data_type", snap.DataType, "checksum", snap.Checksum)
	}
	s.remember(ctx, snap)
	return snap, nil
}

// ForReport returns every snapshot of a report keyed by data_id.
func (s *Store) ForReport(ctx context.Context, reportID uuid.UUID) (map[uuid.UUID]*models.DataSnapshot, error) {
	list, err := s.db.ListSnapshotsByReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]*models.DataSnapshot, len(list))
	for _, snap := range list {
		out[snap.ID] = snap
	}
	return out, nil
}

// List returns a report's snapshots in creation order.
func (s *Store) List(ctx context.Context, reportID uuid.UUID) ([]*models.DataSnapshot, error) {
	return s.db.ListSnapshotsByReport(ctx, reportID)
}

func (s *Store) remember(ctx context.Context, snap *models.DataSnapshot) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.SnapshotKey(snap.ID), raw, s.ttl); err != nil {
		slog.Warn("failed to cache snapshot", "data_id", snap.ID, "error", err)
	}
}
