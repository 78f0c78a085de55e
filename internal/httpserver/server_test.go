package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"

	"github.com/salescope/salescope/internal/analysis"
	"github.com/salescope/salescope/internal/auth"
	"github.com/salescope/salescope/internal/llm"
	"github.com/salescope/salescope/internal/model"
	"github.com/salescope/salescope/internal/reportstore"
	"github.com/salescope/salescope/internal/warehouse"
)

// fakeInvoker replays a scripted event stream.
type fakeInvoker struct {
	events []llm.Event
}

func (f *fakeInvoker) Invoke(context.Context, string, llm.Options) (string, error) {
	var sb strings.Builder
	for _, ev := range f.events {
		if ev.Type == llm.EventContentDelta {
			sb.WriteString(ev.Text)
		}
	}
	return sb.String(), nil
}

func (f *fakeInvoker) InvokeStream(ctx context.Context, _ string, _ llm.Options) (<-chan llm.Event, error) {
	ch := make(chan llm.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// memStore is an in-memory report store that signals each Put.
type memStore struct {
	mu      sync.Mutex
	reports map[string]*model.AnalysisReport
	putCh   chan struct{}
}

func newMemStore() *memStore {
	return &memStore{reports: map[string]*model.AnalysisReport{}, putCh: make(chan struct{}, 8)}
}

func (m *memStore) Put(_ context.Context, r *model.AnalysisReport) error {
	m.mu.Lock()
	cp := *r
	m.reports[r.ReportID] = &cp
	m.mu.Unlock()
	m.putCh <- struct{}{}
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*model.AnalysisReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reports[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, reportstore.ErrNotFound
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]model.AnalysisReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AnalysisReport
	for _, r := range m.reports {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reports, id)
	return nil
}

type testEnv struct {
	server *Server
	mock   sqlmock.Sqlmock
	store  *memStore
	auth   *auth.Manager
}

func newTestEnv(t *testing.T, invoker llm.Invoker) *testEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	wh := warehouse.New(db, zerolog.Nop())
	store := newMemStore()
	mgr, err := auth.NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	svc := analysis.NewService(wh, invoker, store, "model-a", time.Hour, zerolog.Nop())
	relay := analysis.NewRelay(wh, invoker, store, "model-a", time.Hour, zerolog.Nop())
	server := New(Config{
		Warehouse:      wh,
		Analysis:       svc,
		Relay:          relay,
		Auth:           mgr,
		AllowedOrigins: []string{"http://localhost:3000"},
	}, zerolog.Nop())
	return &testEnv{server: server, mock: mock, store: store, auth: mgr}
}

func (e *testEnv) token(t *testing.T, id int64, role model.Role) string {
	t.Helper()
	token, _, err := e.auth.IssueToken(model.User{ID: id, Username: "tester", Role: role})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return token
}

// parseSSE decodes data-only frames from an SSE body.
func parseSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		var frame map[string]any
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			t.Fatalf("unparseable frame %q: %v", payload, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func frameTypes(frames []map[string]any) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i], _ = f["type"].(string)
	}
	return out
}

func streamQueryJSON() string {
	return `{"timeRange":{"start":"2024-01-01","end":"2024-06-30"},"dimensions":["category"],"metrics":["sales"]}`
}

func scriptedStream() []llm.Event {
	return []llm.Event{
		{Type: llm.EventContentDelta, Text: "<output>"},
		{Type: llm.EventContentDelta, Text: "Summary: sales are up."},
		{Type: llm.EventContentDelta, Text: "</output>"},
		{Type: llm.EventStreamEnd, StopReason: "end_turn"},
	}
}

func (e *testEnv) expectAggregateRows() {
	e.mock.ExpectQuery("SELECT pc.category_name").
		WillReturnRows(sqlmock.NewRows([]string{"category_name", "total_sales"}).
			AddRow("Electronics", 1000.0))
}

func TestStreamPost(t *testing.T) {
	env := newTestEnv(t, &fakeInvoker{events: scriptedStream()})
	env.expectAggregateRows()

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/stream", strings.NewReader(streamQueryJSON()))
	req.Header.Set("Authorization", "Bearer "+env.token(t, 7, model.RoleAnalyst))
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q (body %s)", ct, rec.Body.String())
	}
	frames := parseSSE(t, rec.Body.String())
	types := frameTypes(frames)
	if types[0] != "thinking_start" || types[len(types)-2] != "thinking_end" || types[len(types)-1] != "analysis_result" {
		t.Fatalf("unexpected frame sequence: %v", types)
	}
	for _, ty := range types[1 : len(types)-2] {
		if ty != "thinking_progress" {
			t.Fatalf("unexpected mid-stream frame: %v", types)
		}
	}
	result := frames[len(frames)-1]["result"].(map[string]any)
	if result["markdownContent"] != "Summary: sales are up." {
		t.Fatalf("unexpected markdown: %v", result)
	}
	if result["rawResponse"] != "<output>Summary: sales are up.</output>" {
		t.Fatalf("unexpected raw response: %v", result)
	}

	select {
	case <-env.store.putCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("streamed report never persisted")
	}
}

func TestStreamGetWithTokenParam(t *testing.T) {
	env := newTestEnv(t, &fakeInvoker{events: scriptedStream()})
	env.expectAggregateRows()

	target := "/api/analysis/stream?token=" + env.token(t, 7, model.RoleAnalyst) +
		"&params=" + url.QueryEscape(streamQueryJSON())
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	frames := parseSSE(t, rec.Body.String())
	types := frameTypes(frames)
	if len(types) == 0 || types[0] != "thinking_start" || types[len(types)-1] != "analysis_result" {
		t.Fatalf("unexpected frame sequence: %v (body %s)", types, rec.Body.String())
	}
}

func TestStreamDataSourceError(t *testing.T) {
	env := newTestEnv(t, &fakeInvoker{events: scriptedStream()})
	env.mock.ExpectQuery("SELECT pc.category_name").
		WillReturnError(context.DeadlineExceeded)

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/stream", strings.NewReader(streamQueryJSON()))
	req.Header.Set("Authorization", "Bearer "+env.token(t, 7, model.RoleAnalyst))
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	types := frameTypes(parseSSE(t, rec.Body.String()))
	if len(types) != 2 || types[0] != "thinking_start" || types[1] != "error" {
		t.Fatalf("unexpected frame sequence: %v", types)
	}
}

func TestStreamRejectsInvalidQuery(t *testing.T) {
	env := newTestEnv(t, &fakeInvoker{})

	body := `{"timeRange":{"start":"2024-06-30","end":"2024-01-01"},"dimensions":["category"],"metrics":["sales"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/analysis/stream", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+env.token(t, 7, model.RoleAnalyst))
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStreamGetRequiresParams(t *testing.T) {
	env := newTestEnv(t, &fakeInvoker{})

	req := httptest.NewRequest(http.MethodGet, "/api/analysis/stream?token="+env.token(t, 7, model.RoleViewer), nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, &fakeInvoker{})

	req := httptest.NewRequest(http.MethodGet, "/api/data/metrics", nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, &fakeInvoker{})
	hash, err := auth.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	cols := []string{"id", "username", "email", "full_name", "role", "password_hash", "last_login", "created_at"}
	env.mock.ExpectQuery("SELECT .+ FROM platform_users").
		WithArgs("maria").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(7, "maria", "maria@example.com", "Maria Chen", "analyst", hash, nil, time.Now()))
	env.mock.ExpectExec("UPDATE platform_users SET last_login").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"username":"maria","password":"hunter2"}`))
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" || resp.User.Username != "maria" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if _, err := env.auth.ValidateToken(resp.Token); err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t, &fakeInvoker{})
	hash, _ := auth.HashPassword("hunter2")
	cols := []string{"id", "username", "email", "full_name", "role", "password_hash", "last_login", "created_at"}
	env.mock.ExpectQuery("SELECT .+ FROM platform_users").
		WithArgs("maria").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(7, "maria", "maria@example.com", "Maria Chen", "analyst", hash, nil, time.Now()))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"username":"maria","password":"wrong"}`))
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRegisterRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, &fakeInvoker{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"username":"x","email":"x@example.com","password":"pw"}`))
	req.Header.Set("Authorization", "Bearer "+env.token(t, 7, model.RoleAnalyst))
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCreateAnalysisAccepted(t *testing.T) {
	env := newTestEnv(t, &fakeInvoker{events: scriptedStream()})
	// Background completion will run its own aggregate query.
	env.expectAggregateRows()

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/create", strings.NewReader(streamQueryJSON()))
	req.Header.Set("Authorization", "Bearer "+env.token(t, 7, model.RoleAnalyst))
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["reportId"] == "" || resp["status"] != "PROCESSING" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestGetAnalysisOwnership(t *testing.T) {
	env := newTestEnv(t, &fakeInvoker{})
	seed := &model.AnalysisReport{ReportID: "r-1", UserID: "99", Status: model.StatusCompleted}
	if err := env.store.Put(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/analysis/r-1", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, 7, model.RoleAnalyst))
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign report, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/analysis/r-1", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, 1, model.RoleAdmin))
	rec = httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/analysis/missing", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, 7, model.RoleAnalyst))
	rec = httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, &fakeInvoker{})

	req := httptest.NewRequest(http.MethodOptions, "/api/data/metrics", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("missing CORS header")
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/data/metrics", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	rec = httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("disallowed origin echoed back")
	}
}
