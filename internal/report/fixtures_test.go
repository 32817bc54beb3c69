package report_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/hyroxreport/internal/ai/mock"
	"github.com/kiranshivaraju/hyroxreport/internal/assembler"
	"github.com/kiranshivaraju/hyroxreport/internal/cache"
	"github.com/kiranshivaraju/hyroxreport/internal/improvement"
	"github.com/kiranshivaraju/hyroxreport/internal/report"
	"github.com/kiranshivaraju/hyroxreport/internal/reportdata"
	"github.com/kiranshivaraju/hyroxreport/internal/results"
	"github.com/kiranshivaraju/hyroxreport/internal/section"
	"github.com/kiranshivaraju/hyroxreport/internal/snapshot"
	"github.com/kiranshivaraju/hyroxreport/internal/store"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

// --- results ---

type fakeRepo struct {
	race []*models.RaceResult
}

func (f *fakeRepo) FindAthlete(_ context.Context, _ int, _, name string) (*models.RaceResult, error) {
	var names []string
	for _, r := range f.race {
		if r.Name == name {
			return r, nil
		}
		names = append(names, r.Name)
	}
	return nil, &results.NotFoundError{Name: name, Suggestions: results.Suggest(name, names, 3)}
}

func (f *fakeRepo) Race(context.Context, int, string) ([]*models.RaceResult, error) {
	return f.race, nil
}

func (f *fakeRepo) RaceVersion(context.Context, int, string) (string, error) {
	return "v1", nil
}

func (f *fakeRepo) History(context.Context, string, int) ([]*models.RaceResult, error) {
	return nil, nil
}

func runner(name string, slow float64) *models.RaceResult {
	r := &models.RaceResult{Season: 8, Location: "shanghai", Name: name, Gender: "male", Division: "open"}
	var total float64
	for i := 0; i < 8; i++ {
		run, st := 5.0, 4.0
		if i >= 4 {
			run += slow
		}
		r.RunTimes[i] = models.Float(run)
		r.StationTimes[i] = models.Float(st + slow/2)
		total += run + st + slow/2
	}
	r.RoxzoneTime = models.Float(6 + slow)
	total += 6 + slow
	r.TotalTime = models.Float(total)
	return r
}

func sampleRace() []*models.RaceResult {
	var race []*models.RaceResult
	for i := 0; i < 20; i++ {
		race = append(race, runner(fmt.Sprintf("Athlete %02d", i), float64(i)*0.1))
	}
	return race
}

// --- store ---

var transitions = map[string][]string{
	models.ReportStatusPending:    {models.ReportStatusGenerating, models.ReportStatusError},
	models.ReportStatusGenerating: {models.ReportStatusCompleted, models.ReportStatusError},
}

// memStore is an in-memory ReportStore and SnapshotStore with the same
// transition rules as the Postgres store.
type memStore struct {
	mu        sync.Mutex
	reports   map[uuid.UUID]*models.Report
	snapshots map[uuid.UUID]*models.DataSnapshot
	progress  []int
}

func newMemStore() *memStore {
	return &memStore{
		reports:   make(map[uuid.UUID]*models.Report),
		snapshots: make(map[uuid.UUID]*models.DataSnapshot),
	}
}

func (s *memStore) CreateReport(_ context.Context, r *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.reports[r.ID] = &cp
	return nil
}

func (s *memStore) GetReport(_ context.Context, id uuid.UUID) (*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) FindLatestReport(_ context.Context, season int, location, name string) (*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Report
	for _, r := range s.reports {
		if r.Season != season || r.Location != location || r.AthleteName != name {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *memStore) ListReports(_ context.Context, filter store.ReportFilter) ([]*models.Report, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Report
	for _, r := range s.reports {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (s *memStore) UpdateReportStatus(_ context.Context, id uuid.UUID, status string, opts ...store.ReportUpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return store.ErrNotFound
	}
	valid := false
	for _, next := range transitions[r.Status] {
		if next == status {
			valid = true
		}
	}
	if !valid {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, r.Status, status)
	}
	r.Status = status
	store.ApplyReportUpdate(r, opts...)
	return nil
}

func (s *memStore) UpdateReportProgress(_ context.Context, id uuid.UUID, progress int, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok || r.Status != models.ReportStatusGenerating {
		return store.ErrNotFound
	}
	r.Progress, r.CurrentStep = progress, step
	s.progress = append(s.progress, progress)
	return nil
}

func (s *memStore) ResetReport(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return store.ErrNotFound
	}
	if r.Status == models.ReportStatusGenerating {
		return store.ErrInvalidTransition
	}
	r.Status = models.ReportStatusPending
	r.Progress, r.CurrentStep, r.Title = 0, "", ""
	r.Sections = []models.ReportSection{}
	r.DataIDs = []string{}
	r.ErrorMessage, r.CompletedAt = nil, nil
	return nil
}

func (s *memStore) CreateSnapshot(_ context.Context, snap *models.DataSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.ID] = snap
	return nil
}

func (s *memStore) GetSnapshot(_ context.Context, id uuid.UUID) (*models.DataSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return snap, nil
}

func (s *memStore) ListSnapshotsByReport(_ context.Context, reportID uuid.UUID) ([]*models.DataSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.DataSnapshot
	for _, snap := range s.snapshots {
		if snap.ReportID == reportID {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *memStore) setStatus(id uuid.UUID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[id].Status = status
}

// --- recorder ---

type recorder struct {
	mu       sync.Mutex
	statuses []string
}

func (r *recorder) ReportFinished(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

// --- service ---

const summaryArgs = `{
	"summary_text": "整体发挥稳定，后程略有掉速。",
	"roxscan_card": {"total_time": "0:00", "overall_rank": 1},
	"highlights": [{"type": "strength", "content": "前半程配速稳定"}]
}`

type harness struct {
	svc    *report.Service
	store  *memStore
	cache  *cache.MemoryCache
	oracle *mock.MockOracle
	rec    *recorder
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	oracle *mock.MockOracle
	data   results.Repository
}

func withOracle(o *mock.MockOracle) harnessOption {
	return func(c *harnessConfig) { c.oracle = o }
}

// withDataRepo makes data preparation read from repo while athlete lookup
// at creation still uses the sample race.
func withDataRepo(repo results.Repository) harnessOption {
	return func(c *harnessConfig) { c.data = repo }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	repo := &fakeRepo{race: sampleRace()}
	cfg := harnessConfig{
		oracle: mock.NewToolCallOracle(map[string]string{"generate_summary": summaryArgs}),
		data:   repo,
	}
	for _, o := range opts {
		o(&cfg)
	}

	catalog, err := section.LoadCatalog("../../configs/report")
	require.NoError(t, err)

	st := newMemStore()
	c := cache.NewMemoryCache()
	rec := &recorder{}
	snaps := snapshot.New(st, c, time.Hour)

	pc := report.PipelineContext{
		Catalog:   catalog,
		Data:      reportdata.NewProvider(cfg.data, c),
		Estimator: improvement.NewEstimator(mock.NewMockOracle(`{"running": [], "workout": []}`)),
		Sections:  section.NewPipeline(catalog, cfg.oracle, snaps),
		Assembler: assembler.New(catalog),
	}
	svc := report.NewService(st, c, repo, pc,
		report.WithRecorder(rec),
		report.WithTimeout(time.Minute),
		report.WithBroker(report.NewBroker(time.Minute)))
	return &harness{svc: svc, store: st, cache: c, oracle: cfg.oracle, rec: rec}
}

func (h *harness) create(t *testing.T, name string) *models.Report {
	t.Helper()
	res, err := h.svc.Create(context.Background(), report.CreateRequest{Season: 8, Location: "shanghai", AthleteName: name})
	require.NoError(t, err)
	require.Equal(t, report.CreateCreated, res.Outcome)
	return res.Report
}

// collect subscribes to reportID and returns every event up to the
// terminal one.
func collect(t *testing.T, b *report.Broker, reportID uuid.UUID) []report.Event {
	t.Helper()
	history, ch, cancel, ok := b.Subscribe(reportID)
	require.True(t, ok)
	defer cancel()

	events := history
	if len(events) > 0 && events[len(events)-1].Terminal() {
		return events
	}
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, open := <-ch:
			if !open {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatalf("no terminal event after %d events", len(events))
			return nil
		}
	}
}
