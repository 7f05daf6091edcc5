package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ajz007/ai-voice-planner/internal/db"
	"github.com/ajz007/ai-voice-planner/internal/jira"
	"github.com/ajz007/ai-voice-planner/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockIssues struct {
	created json.RawMessage
	err     error
	gotIn   jira.TicketInput
	gotID   string
}

func (m *mockIssues) CreateIssue(ctx context.Context, in jira.TicketInput) (json.RawMessage, error) {
	m.gotIn = in
	return m.created, m.err
}

func (m *mockIssues) UpdateIssue(ctx context.Context, id string, changes jira.TicketChanges) (json.RawMessage, error) {
	m.gotID = id
	return m.created, m.err
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *db.Store) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "server.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, opts...), store
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("response has no request id")
	}
}

func TestNotesEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/notes", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("empty list = %d %s", w.Code, w.Body.String())
	}

	w = do(t, s, http.MethodPost, "/api/notes", `{"text":"first","timestamp":1000,"transcribed":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	first := decode[db.Note](t, w)
	if first.ID == 0 || first.Text != "first" || !first.Transcribed {
		t.Errorf("created = %+v", first)
	}
	do(t, s, http.MethodPost, "/api/notes", `{"id":99,"text":"second","timestamp":2000}`)

	notes := decode[[]db.Note](t, do(t, s, http.MethodGet, "/api/notes", ""))
	if len(notes) != 2 || notes[0].Text != "second" || notes[1].Text != "first" {
		t.Fatalf("notes = %+v", notes)
	}
	if notes[0].ID == 99 {
		t.Error("client-supplied id was kept")
	}
}

func TestCreateNoteBadJSON(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/api/notes", `{"text":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
	if msg := decode[map[string]string](t, w)["message"]; !strings.HasPrefix(msg, "Invalid note") {
		t.Errorf("message = %q", msg)
	}
}

func TestTasksEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/tasks", `{"title":"Write","description":"report","labels":["work"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	task := decode[db.Task](t, w)
	if task.Status != db.StatusNotStarted || task.Priority != db.PriorityMedium {
		t.Errorf("defaults = %+v", task)
	}

	w = do(t, s, http.MethodPatch, "/api/tasks/"+strconv.FormatInt(task.ID, 10), `{"status":"completed","actualHours":1.5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d %s", w.Code, w.Body.String())
	}
	updated := decode[db.Task](t, w)
	if updated.Status != db.StatusCompleted || updated.ActualHours != 1.5 || updated.Title != "Write" {
		t.Errorf("updated = %+v", updated)
	}

	tasks := decode[[]db.Task](t, do(t, s, http.MethodGet, "/api/tasks", ""))
	if len(tasks) != 1 || tasks[0].Status != db.StatusCompleted {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestTaskErrors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing title", http.MethodPost, "/api/tasks", `{"description":"d"}`, http.StatusBadRequest},
		{"duplicate label", http.MethodPost, "/api/tasks", `{"title":"t","description":"d","labels":["a","a"]}`, http.StatusBadRequest},
		{"bad priority", http.MethodPost, "/api/tasks", `{"title":"t","description":"d","priority":"urgent"}`, http.StatusBadRequest},
		{"bad id", http.MethodPatch, "/api/tasks/abc", `{}`, http.StatusBadRequest},
		{"missing task", http.MethodPatch, "/api/tasks/42", `{"title":"x"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if decode[map[string]string](t, w)["message"] == "" {
				t.Error("error body has no message")
			}
		})
	}
}

func TestTicketNotConfigured(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/api/jira/ticket", `{"summary":"s","description":"d"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if msg := decode[map[string]string](t, w)["message"]; msg != "JIRA configuration missing" {
		t.Errorf("message = %q", msg)
	}
}

func TestTicketProxy(t *testing.T) {
	issues := &mockIssues{created: json.RawMessage(`{"id":"10001","key":"PROJ-1","self":"https://jira/rest/api/3/issue/10001"}`)}
	s, _ := newTestServer(t, WithIssues(issues))

	w := do(t, s, http.MethodPost, "/api/jira/ticket", `{"summary":"Write","description":"report","estimate":"2h"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	ref := decode[jira.TicketRef](t, w)
	if ref.Key != "PROJ-1" {
		t.Errorf("ref = %+v", ref)
	}
	if issues.gotIn.Estimate != "2h" {
		t.Errorf("forwarded = %+v", issues.gotIn)
	}

	w = do(t, s, http.MethodPatch, "/api/jira/ticket/PROJ-1", `{"summary":"Rewrite"}`)
	if w.Code != http.StatusOK || issues.gotID != "PROJ-1" {
		t.Errorf("update = %d, id %q", w.Code, issues.gotID)
	}

	w = do(t, s, http.MethodPost, "/api/jira/ticket", `{"description":"no summary"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing summary = %d", w.Code)
	}
}

func TestTicketMirrorsUpstreamStatus(t *testing.T) {
	issues := &mockIssues{err: &jira.RemoteError{Op: "create JIRA issue", StatusCode: http.StatusUnauthorized}}
	s, _ := newTestServer(t, WithIssues(issues))

	w := do(t, s, http.MethodPost, "/api/jira/ticket", `{"summary":"s","description":"d"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if msg := decode[map[string]string](t, w)["message"]; msg != "Failed to create JIRA ticket" {
		t.Errorf("message = %q", msg)
	}
}

func TestOAuthCallback(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/auth/google/callback", "")
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Missing authorization code") {
		t.Errorf("no code = %d %q", w.Code, w.Body.String())
	}

	w = do(t, s, http.MethodGet, "/auth/google/callback?code=abc&state=xyz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "google-oauth-success") {
		t.Errorf("page = %s", w.Body.String())
	}
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t)

	r := httptest.NewRequest(http.MethodOptions, "/api/notes", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PATCH") {
		t.Errorf("Allow-Methods = %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("credentials not allowed")
	}
}

func TestCORSAllowedOrigins(t *testing.T) {
	s, _ := newTestServer(t, WithAllowedOrigins("https://planner.example.com"))

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q for foreign origin", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, WithMetrics(metrics.New()))
	do(t, s, http.MethodGet, "/health", "")

	w := do(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `endpoint="/health"`) {
		t.Errorf("metrics missing /health request:\n%s", w.Body.String())
	}
}
