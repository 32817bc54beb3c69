package snapshot_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/hyroxreport/internal/cache"
	"github.com/kiranshivaraju/hyroxreport/internal/snapshot"
	"github.com/kiranshivaraju/hyroxreport/internal/store"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSnapshots struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*models.DataSnapshot
	order []uuid.UUID
	gets  int
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{byID: map[uuid.UUID]*models.DataSnapshot{}}
}

func (m *memSnapshots) CreateSnapshot(_ context.Context, s *models.DataSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[s.ID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *s
	m.byID[s.ID] = &cp
	m.order = append(m.order, s.ID)
	return nil
}

func (m *memSnapshots) GetSnapshot(_ context.Context, id uuid.UUID) (*models.DataSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	s, ok := m.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSnapshots) ListSnapshotsByReport(_ context.Context, reportID uuid.UUID) ([]*models.DataSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.DataSnapshot
	for _, id := range m.order {
		if s := m.byID[id]; s.ReportID == reportID {
			out = append(out, s)
		}
	}
	return out, nil
}

func TestCreate_SameContentDistinctIDs(t *testing.T) {
	db := newMemSnapshots()
	s := snapshot.New(db, nil, time.Minute)
	ctx := context.Background()
	reportID := uuid.New()
	content := map[string]any{"total_loss_seconds": 95.5}

	a, err := s.Create(ctx, reportID, "time_loss_analysis", content)
	require.NoError(t, err)
	b, err := s.Create(ctx, reportID, "time_loss_analysis", content)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	sa, err := s.Get(ctx, a)
	require.NoError(t, err)
	sb, err := s.Get(ctx, b)
	require.NoError(t, err)
	assert.JSONEq(t, string(sa.Content), string(sb.Content))
	assert.Equal(t, sa.Checksum, sb.Checksum)
	assert.Equal(t, snapshot.Checksum(sa.Content), sa.Checksum)

	all, err := s.ForReport(ctx, reportID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Contains(t, all, a)
	assert.Contains(t, all, b)
}

func TestGet_NotFound(t *testing.T) {
	s := snapshot.New(newMemSnapshots(), cache.NewMemoryCache(), time.Minute)
	_, err := s.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, snapshot.ErrSnapshotNotFound)
}

func TestGet_ServedFromCache(t *testing.T) {
	db := newMemSnapshots()
	s := snapshot.New(db, cache.NewMemoryCache(), time.Minute)
	ctx := context.Background()

	id, err := s.Create(ctx, uuid.New(), "athlete_result", map[string]any{"name": "Jane"})
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "athlete_result", got.DataType)
	assert.Zero(t, db.gets, "fresh snapshots are cached on create")
}

// jsonbSnapshots returns content the way Postgres jsonb renders it: keys
// reordered and spaced.
type jsonbSnapshots struct {
	*memSnapshots
	rendered []byte
}

func (j jsonbSnapshots) GetSnapshot(ctx context.Context, id uuid.UUID) (*models.DataSnapshot, error) {
	s, err := j.memSnapshots.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Content = j.rendered
	return s, nil
}

func TestGet_ChecksumSurvivesJSONBLayout(t *testing.T) {
	db := jsonbSnapshots{
		memSnapshots: newMemSnapshots(),
		rendered:     []byte(`{"splits": [1.5, 2], "name": "Jane", "meta": {"z": true, "a": null}}`),
	}
	s := snapshot.New(db, nil, time.Minute)
	ctx := context.Background()

	id, err := s.Create(ctx, uuid.New(), "athlete_result", map[string]any{
		"name": "Jane", "meta": map[string]any{"a": nil, "z": true}, "splits": []float64{1.5, 2},
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, snapshot.Verify(got))
	assert.Equal(t, snapshot.Checksum(got.Content), got.Checksum)
}

func TestVerify_DetectsChangedContent(t *testing.T) {
	db := jsonbSnapshots{memSnapshots: newMemSnapshots(), rendered: []byte(`{"name": "John"}`)}
	s := snapshot.New(db, nil, time.Minute)
	ctx := context.Background()

	id, err := s.Create(ctx, uuid.New(), "athlete_result", map[string]any{"name": "Jane"})
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err, "a mismatch is logged, not fatal")
	assert.False(t, snapshot.Verify(got))
}

func TestCanonical(t *testing.T) {
	got, err := snapshot.Canonical([]byte(` {"b": 1e2, "a": [ "x" ]} `))
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x"],"b":100}`, string(got))

	_, err = snapshot.Canonical([]byte(`{`))
	assert.Error(t, err)
}

func TestChecksum_Stable(t *testing.T) {
	assert.Equal(t, snapshot.Checksum([]byte(`{"a":1,"b":2}`)), snapshot.Checksum([]byte(`{"b": 2, "a": 1}`)))
	assert.Equal(t, snapshot.Checksum([]byte(`{"a":1}`)), snapshot.Checksum([]byte(`{"a":1}`)))
	assert.NotEqual(t, snapshot.Checksum([]byte(`{"a":1}`)), snapshot.Checksum([]byte(`{"a":2}`)))
}
