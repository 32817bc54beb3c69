package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/hyroxreport/internal/api"
	"github.com/kiranshivaraju/hyroxreport/internal/api/handler"
	mw "github.com/kiranshivaraju/hyroxreport/internal/api/middleware"
	"github.com/kiranshivaraju/hyroxreport/internal/cache"
	"github.com/kiranshivaraju/hyroxreport/internal/report"
	"github.com/kiranshivaraju/hyroxreport/internal/results"
	"github.com/kiranshivaraju/hyroxreport/internal/snapshot"
	"github.com/kiranshivaraju/hyroxreport/internal/store"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

// ─── test fixtures ───────────────────────────────────────────────────────────

var (
	testRawKey   = "hx_test_contract_key_1234567890"
	testReadKey  = "hx_read_contract_key_1234567890"
	testAdminID  = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	testReportID = uuid.MustParse("cccccccc-cccc-cccc-cccc-cccccccccccc")
	testDataID   = uuid.MustParse("dddddddd-dddd-dddd-dddd-dddddddddddd")
)

func hash(raw string) string {
	h, _ := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	return string(h)
}

// ─── mock key store ──────────────────────────────────────────────────────────

type mockKeys struct {
	mu   sync.Mutex
	keys []*models.APIKey
}

func newMockKeys() *mockKeys {
	return &mockKeys{keys: []*models.APIKey{
		{ID: testAdminID, Name: "admin", KeyHash: hash(testRawKey), KeyPrefix: testRawKey[:8],
			Scopes: []string{"read", "write", models.ScopeAdmin}},
		{ID: uuid.New(), Name: "reader", KeyHash: hash(testReadKey), KeyPrefix: testReadKey[:8],
			Scopes: []string{"read"}},
	}}
}

func (s *mockKeys) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *mockKeys) UpdateAPIKeyLastUsed(context.Context, uuid.UUID) error { return nil }

func (s *mockKeys) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return nil
}

func (s *mockKeys) ListAPIKeys(context.Context) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *mockKeys) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.ID == id && k.DeletedAt == nil {
			now := time.Now()
			k.DeletedAt = &now
			return nil
		}
	}
	return store.ErrNotFound
}

// ─── mock report service ─────────────────────────────────────────────────────

type mockService struct {
	mu          sync.Mutex
	reports     map[uuid.UUID]*models.Report
	broker      *report.Broker
	createErr   error
	lastCreate  report.CreateRequest
	lastTrigger report.TriggerOptions
}

func newMockService() *mockService {
	msg := "未找到运动员数据"
	now := time.Now().UTC()
	return &mockService{
		broker: report.NewBroker(time.Minute),
		reports: map[uuid.UUID]*models.Report{
			testReportID: {
				ID: testReportID, Season: 8, Location: "shanghai", AthleteName: "Li Wei",
				Title: "Li Wei - HYROX shanghai S8 专业分析报告", Status: models.ReportStatusCompleted,
				Progress: 100, CreatedAt: now, DataIDs: []string{testDataID.String()},
				Sections: []models.ReportSection{{SectionID: "summary", Title: "比赛总结", Order: 1, Type: "dynamic",
					Blocks: []models.Block{{Type: "card", Component: "RoxscanCard", Props: map[string]any{"data_id": testDataID.String()}}}}},
			},
			uuid.MustParse("eeeeeeee-eeee-eeee-eeee-eeeeeeeeeeee"): {
				ID: uuid.MustParse("eeeeeeee-eeee-eeee-eeee-eeeeeeeeeeee"), Season: 8, Location: "shanghai",
				AthleteName: "Zhang San", Status: models.ReportStatusError, ErrorMessage: &msg,
				Sections: []models.ReportSection{}, CreatedAt: now.Add(-time.Hour),
			},
		},
	}
}

func (s *mockService) Create(_ context.Context, req report.CreateRequest) (report.CreateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCreate = req
	if s.createErr != nil {
		return report.CreateResult{}, s.createErr
	}
	for _, r := range s.reports {
		if r.AthleteName == req.AthleteName && r.Status == models.ReportStatusCompleted && !req.ForceRegenerate {
			return report.CreateResult{Report: r, Outcome: report.CreateExists}, nil
		}
	}
	r := &models.Report{ID: uuid.New(), Season: req.Season, Location: req.Location,
		AthleteName: req.AthleteName, Status: models.ReportStatusPending, CreatedAt: time.Now()}
	s.reports[r.ID] = r
	return report.CreateResult{Report: r, Outcome: report.CreateCreated}, nil
}

func (s *mockService) Trigger(_ context.Context, id uuid.UUID, opts report.TriggerOptions) (*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	switch r.Status {
	case models.ReportStatusGenerating:
		return r, report.ErrGenerationInProgress
	case models.ReportStatusCompleted, models.ReportStatusError:
		return r, report.ErrAlreadyFinished
	}
	s.lastTrigger = opts
	r.Status = models.ReportStatusGenerating
	s.broker.Reset(id)
	return r, nil
}

func (s *mockService) Status(_ context.Context, id uuid.UUID) (cache.ReportProgress, error) {
	r, err := s.Get(context.Background(), id)
	if err != nil {
		return cache.ReportProgress{}, err
	}
	return cache.ReportProgress{Status: r.Status, Progress: r.Progress, CurrentStep: r.CurrentStep}, nil
}

func (s *mockService) Get(_ context.Context, id uuid.UUID) (*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *mockService) List(_ context.Context, f store.ReportFilter) ([]*models.Report, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*models.Report
	for _, r := range s.reports {
		if f.AthleteName != "" && r.AthleteName != f.AthleteName {
			continue
		}
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start := (f.Page - 1) * f.Limit
	if start > len(all) {
		start = len(all)
	}
	end := start + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (s *mockService) Broker() *report.Broker { return s.broker }

// ─── mock snapshots ──────────────────────────────────────────────────────────

type mockSnapshots struct{}

func (mockSnapshots) Get(_ context.Context, id uuid.UUID) (*models.DataSnapshot, error) {
	if id != testDataID {
		return nil, snapshot.ErrSnapshotNotFound
	}
	return &models.DataSnapshot{ID: id, ReportID: testReportID, DataType: "percentile_ranking",
		Content: json.RawMessage(`{"overall":{"rank":40,"total":100}}`)}, nil
}

func (s mockSnapshots) List(ctx context.Context, reportID uuid.UUID) ([]*models.DataSnapshot, error) {
	if reportID != testReportID {
		return nil, nil
	}
	snap, _ := s.Get(ctx, testDataID)
	return []*models.DataSnapshot{snap}, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

// ─── test harness ────────────────────────────────────────────────────────────

type testServer struct {
	server *httptest.Server
	svc    *mockService
	keys   *mockKeys
}

func newTestServer(t *testing.T, deps ...map[string]handler.Pinger) *testServer {
	t.Helper()
	svc := newMockService()
	keys := newMockKeys()

	health := map[string]handler.Pinger{"database": pinger{}, "cache": pinger{}}
	if len(deps) > 0 {
		health = deps[0]
	}

	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(keys),
		RateLimit: mw.NewRateLimit(cache.NewMemoryCache(), 30),

		HealthHandler: handler.NewHealthHandler(health),

		CreateReport:  handler.NewCreateReportHandler(svc),
		ListReports:   handler.NewListReportsHandler(svc),
		GetReport:     handler.NewGetReportHandler(svc),
		TriggerReport: handler.NewTriggerReportHandler(svc),
		ReportStatus:  handler.NewReportStatusHandler(svc),
		ReportEvents:  handler.NewReportEventsHandler(svc),
		ListSnapshots: handler.NewListSnapshotsHandler(svc, mockSnapshots{}),
		GetSnapshot:   handler.NewGetSnapshotHandler(mockSnapshots{}),

		CreateKeyHandler: handler.NewCreateKeyHandler(keys),
		ListKeysHandler:  handler.NewListKeysHandler(keys),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(keys),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{server: srv, svc: svc, keys: keys}
}

func (ts *testServer) do(t *testing.T, method, path, rawKey string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	if rawKey != "" {
		req.Header.Set("Authorization", "Bearer "+rawKey)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func parseBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func errCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	return parseBody(t, resp)["error"].(map[string]any)["code"].(string)
}

// ─── GET /api/v1/health ──────────────────────────────────────────────────────

func TestHealth_200_AllOK(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "GET", "/api/v1/health", "", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
}

func TestHealth_503_Degraded(t *testing.T) {
	ts := newTestServer(t, map[string]handler.Pinger{
		"database": pinger{},
		"results":  pinger{err: errors.New("file missing")},
	})
	resp := ts.do(t, "GET", "/api/v1/health", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	errObj := parseBody(t, resp)["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
	assert.Equal(t, "degraded", errObj["details"].(map[string]any)["results"])
}

// ─── POST /api/v1/reports ────────────────────────────────────────────────────

func TestCreateReport_201_Created(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "POST", "/api/v1/reports", testRawKey, map[string]any{
		"season": 8, "location": " shanghai ", "athlete_name": "Wang Wu",
	})

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "created", data["outcome"])
	assert.Equal(t, "pending", data["status"])
	_, err := uuid.Parse(data["report_id"].(string))
	assert.NoError(t, err)

	assert.Equal(t, "shanghai", ts.svc.lastCreate.Location)
	require.NotNil(t, ts.svc.lastCreate.CreatedBy)
	assert.Equal(t, testAdminID, *ts.svc.lastCreate.CreatedBy)
}

func TestCreateReport_200_Exists(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "POST", "/api/v1/reports", testRawKey, map[string]any{
		"season": 8, "location": "shanghai", "athlete_name": "Li Wei",
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "exists", data["outcome"])
	assert.Equal(t, testReportID.String(), data["report_id"])
}

func TestCreateReport_400_Validation(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"invalid json", "{"},
		{"missing season", map[string]any{"location": "shanghai", "athlete_name": "Li Wei"}},
		{"missing location", map[string]any{"season": 8, "athlete_name": "Li Wei"}},
		{"blank athlete", map[string]any{"season": 8, "location": "shanghai", "athlete_name": "  "}},
	}
	ts := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, "POST", "/api/v1/reports", testRawKey, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "INVALID_REQUEST", errCode(t, resp))
		})
	}
}

func TestCreateReport_404_AthleteNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.svc.createErr = fmt.Errorf("%w: %w", report.ErrDataUnavailable,
		&results.NotFoundError{Name: "Li Wie", Suggestions: []string{"Li Wei", "Li Wen"}})

	resp := ts.do(t, "POST", "/api/v1/reports", testRawKey, map[string]any{
		"season": 8, "location": "shanghai", "athlete_name": "Li Wie",
	})

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	errObj := parseBody(t, resp)["error"].(map[string]any)
	assert.Equal(t, "ATHLETE_NOT_FOUND", errObj["code"])
	assert.Equal(t, "未找到运动员数据", errObj["message"])
	details := errObj["details"].(map[string]any)
	assert.Equal(t, []any{"Li Wei", "Li Wen"}, details["suggestions"])
}

// ─── POST /api/v1/reports/{id}/generate ──────────────────────────────────────

func createPending(t *testing.T, ts *testServer) string {
	t.Helper()
	resp := ts.do(t, "POST", "/api/v1/reports", testRawKey, map[string]any{
		"season": 8, "location": "shanghai", "athlete_name": "Wang Wu",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return parseBody(t, resp)["data"].(map[string]any)["report_id"].(string)
}

func TestTrigger_202_Generating(t *testing.T) {
	ts := newTestServer(t)
	id := createPending(t, ts)

	resp := ts.do(t, "POST", "/api/v1/reports/"+id+"/generate", testRawKey, map[string]any{
		"heart_rate": map[string]any{"avg_hr": 165, "max_hr": 188},
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "generating", data["status"])
	assert.NotNil(t, ts.svc.lastTrigger.HeartRate)

	resp = ts.do(t, "POST", "/api/v1/reports/"+id+"/generate", testRawKey, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "GENERATION_IN_PROGRESS", errCode(t, resp))
}

func TestTrigger_EmptyBody(t *testing.T) {
	ts := newTestServer(t)
	id := createPending(t, ts)

	resp := ts.do(t, "POST", "/api/v1/reports/"+id+"/generate", testRawKey, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Nil(t, ts.svc.lastTrigger.HeartRate)
}

func TestTrigger_Errors(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/v1/reports/"+testReportID.String()+"/generate", testRawKey, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "REPORT_FINISHED", errCode(t, resp))

	resp = ts.do(t, "POST", "/api/v1/reports/"+uuid.NewString()+"/generate", testRawKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errCode(t, resp))

	resp = ts.do(t, "POST", "/api/v1/reports/not-a-uuid/generate", testRawKey, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ─── GET /api/v1/reports/... ─────────────────────────────────────────────────

func TestGetReport_200(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "GET", "/api/v1/reports/"+testReportID.String(), testRawKey, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "completed", data["status"])
	sections := data["sections"].([]any)
	require.Len(t, sections, 1)
	assert.Equal(t, "summary", sections[0].(map[string]any)["section_id"])
	assert.Equal(t, []any{testDataID.String()}, data["data_ids"])
}

func TestGetReport_404(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "GET", "/api/v1/reports/"+uuid.NewString(), testRawKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReportStatus_200(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "GET", "/api/v1/reports/"+testReportID.String()+"/status", testRawKey, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "completed", data["status"])
	assert.Equal(t, float64(100), data["progress"])
}

func TestListReports_Paginated(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "GET", "/api/v1/reports?page=1&limit=1", testRawKey, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	assert.Len(t, body["data"].([]any), 1)
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(2), meta["total"])
	assert.Equal(t, true, meta["has_next"])

	resp = ts.do(t, "GET", "/api/v1/reports?athlete_name=Zhang%20San", testRawKey, nil)
	body = parseBody(t, resp)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "error", data[0].(map[string]any)["status"])

	resp = ts.do(t, "GET", "/api/v1/reports?page=0", testRawKey, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ─── GET /api/v1/reports/{id}/events ─────────────────────────────────────────

func TestEvents_ReplaysRun(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.MustParse(createPending(t, ts))
	resp := ts.do(t, "POST", "/api/v1/reports/"+id.String()+"/generate", testRawKey, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	b := ts.svc.Broker()
	b.Publish(id, report.Event{Type: report.EventProgress, Data: map[string]any{"progress": 5, "step": "初始化报告生成..."}})
	go func() {
		time.Sleep(50 * time.Millisecond)
		b.Publish(id, report.Event{Type: report.EventProgress, Data: map[string]any{"progress": 85, "step": "章节生成完成，组装报告..."}})
		b.Publish(id, report.Event{Type: report.EventComplete, Data: map[string]any{"report_id": id.String(), "status": "completed"}})
	}()

	resp = ts.do(t, "GET", "/api/v1/reports/"+id.String()+"/events", testRawKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.Equal(t, 3, strings.Count(body, "event: "))
	first := strings.Index(body, `"progress":5`)
	last := strings.Index(body, "event: complete")
	assert.True(t, first >= 0 && last > first, body)
}

func TestEvents_StoredState(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "GET", "/api/v1/reports/"+testReportID.String()+"/events", testRawKey, nil)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "event: complete\ndata: {")

	resp = ts.do(t, "GET", "/api/v1/reports/eeeeeeee-eeee-eeee-eeee-eeeeeeeeeeee/events", testRawKey, nil)
	raw, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `event: error`)
	assert.Contains(t, string(raw), `"message":"未找到运动员数据"`)

	resp = ts.do(t, "GET", "/api/v1/reports/"+uuid.NewString()+"/events", testRawKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ─── snapshots ───────────────────────────────────────────────────────────────

func TestSnapshots(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "GET", "/api/v1/snapshots/"+testDataID.String(), testRawKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	assert.Equal(t, "percentile_ranking", data["data_type"])
	assert.Equal(t, float64(40), data["content"].(map[string]any)["overall"].(map[string]any)["rank"])

	resp = ts.do(t, "GET", "/api/v1/snapshots/"+uuid.NewString(), testRawKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/v1/reports/"+testReportID.String()+"/snapshots", testRawKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, parseBody(t, resp)["data"].([]any), 1)

	resp = ts.do(t, "GET", "/api/v1/reports/"+uuid.NewString()+"/snapshots", testRawKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ─── admin keys ──────────────────────────────────────────────────────────────

func TestCreateKey_201_UsableKey(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "POST", "/api/v1/admin/keys", testRawKey, map[string]any{"name": "frontend"})

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	data := parseBody(t, resp)["data"].(map[string]any)
	raw := data["key"].(string)
	assert.True(t, strings.HasPrefix(raw, handler.KeyPrefix))
	assert.Equal(t, raw[:mw.KeyPrefixLen], data["key_prefix"])
	assert.Equal(t, []any{"read", "write"}, data["scopes"])

	resp = ts.do(t, "GET", "/api/v1/reports/"+testReportID.String(), raw, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "new key authenticates")
}

func TestCreateKey_400(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "POST", "/api/v1/admin/keys", testRawKey, map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, "POST", "/api/v1/admin/keys", testRawKey, map[string]any{"name": "x", "scopes": []string{"root"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListKeys_DoesNotExposeHash(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "GET", "/api/v1/admin/keys", testRawKey, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	for _, k := range parseBody(t, resp)["data"].([]any) {
		km := k.(map[string]any)
		assert.NotContains(t, km, "key_hash")
		assert.NotContains(t, km, "key")
	}
}

func TestRevokeKey(t *testing.T) {
	ts := newTestServer(t)
	reader := ts.keys.keys[1].ID.String()

	resp := ts.do(t, "DELETE", "/api/v1/admin/keys/"+reader, testRawKey, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/v1/reports", testReadKey, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "revoked key is rejected")

	resp = ts.do(t, "DELETE", "/api/v1/admin/keys/"+reader, testRawKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, "DELETE", "/api/v1/admin/keys/"+testAdminID.String(), testRawKey, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminEndpoints_403_WithoutAdminScope(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "GET", "/api/v1/admin/keys", testReadKey, nil)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", errCode(t, resp))
}

// ─── rate limiting ───────────────────────────────────────────────────────────

func TestRateLimit_429_Exceeded(t *testing.T) {
	ts := newTestServer(t)

	var last *http.Response
	for i := 0; i < 31; i++ {
		last = ts.do(t, "GET", "/api/v1/reports/"+testReportID.String()+"/status", testReadKey, nil)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	assert.Equal(t, "0", last.Header.Get("X-RateLimit-Remaining"))
}
