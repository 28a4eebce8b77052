package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"timebot/internal/core"
	"timebot/internal/log"
	"timebot/internal/middleware/ratelimit"
	"timebot/internal/storage"
)

type testEnv struct {
	srv  *Server
	repo *storage.SQLiteRepository
	now  time.Time
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.Local)}
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"),
		storage.WithClock(func() time.Time { return env.now }))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	if opts.Logger == nil {
		opts.Logger = log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	}
	if opts.Ready == nil {
		opts.Ready = repo
	}
	env.repo = repo
	env.srv = NewServer(":0", repo, opts)
	t.Cleanup(func() { env.srv.Shutdown(context.Background()) })
	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.10:4000"
	rec := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func (env *testEnv) categoryID(t *testing.T, user, name string) int64 {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/users/"+user+"/categories/defaults", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("defaults status = %d", rec.Code)
	}
	for _, c := range decode[[]categoryResponse](t, rec) {
		if c.Name == name {
			return c.ID
		}
	}
	t.Fatalf("category %q not found", name)
	return 0
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("db gone") }

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
	if got := decode[statusResponse](t, rec); got.Status != "ok" {
		t.Errorf("healthz body = %+v", got)
	}

	rec = env.do(t, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d", rec.Code)
	}

	down := newTestEnv(t, Options{Ready: failingPinger{}})
	rec = down.do(t, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with failing store status = %d, want 503", rec.Code)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/healthz", "")

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestCategories(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodGet, "/api/users/7/categories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if got := decode[[]categoryResponse](t, rec); len(got) != 0 {
		t.Errorf("new user categories = %v, want none", got)
	}

	rec = env.do(t, http.MethodPost, "/api/users/7/categories/defaults", "")
	cats := decode[[]categoryResponse](t, rec)
	if len(cats) != len(core.DefaultCategories) {
		t.Fatalf("after defaults got %d categories, want %d", len(cats), len(core.DefaultCategories))
	}

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantName   string
	}{
		{"new category", `{"name":"  Music "}`, http.StatusCreated, "music"},
		{"existing category", `{"name":"WORK"}`, http.StatusOK, "work"},
		{"empty name", `{"name":"   "}`, http.StatusUnprocessableEntity, ""},
		{"unknown field", `{"title":"x"}`, http.StatusBadRequest, ""},
		{"malformed", `{"name":`, http.StatusBadRequest, ""},
		{"empty body", ``, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/users/7/categories", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantName != "" {
				if got := decode[addCategoryResponse](t, rec); got.Name != tt.wantName {
					t.Errorf("name = %q, want %q", got.Name, tt.wantName)
				}
			}
		})
	}
}

func TestInvalidUser(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/api/users/alice/categories", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEntryLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})
	workID := env.categoryID(t, "9", "work")

	rec := env.do(t, http.MethodGet, "/api/users/9/entries/active", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("active before start status = %d, want 404", rec.Code)
	}

	body := `{"category_id":` + itoa(workID) + `,"task_name":"  write report "}`
	rec = env.do(t, http.MethodPost, "/api/users/9/entries", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d (body %s)", rec.Code, rec.Body.String())
	}
	started := decode[entryResponse](t, rec)
	if started.TaskName != "write report" || started.Category != "work" || started.StoppedAt != nil {
		t.Errorf("started entry = %+v", started)
	}

	rec = env.do(t, http.MethodPost, "/api/users/9/entries", body)
	if rec.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/users/9/entries/active", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("active status = %d", rec.Code)
	}
	if got := decode[entryResponse](t, rec); got.ID != started.ID {
		t.Errorf("active id = %d, want %d", got.ID, started.ID)
	}

	env.now = env.now.Add(1*time.Hour + 2*time.Minute + 3*time.Second)
	rec = env.do(t, http.MethodPost, "/api/users/9/entries/active/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}
	stopped := decode[entryResponse](t, rec)
	if stopped.DurationSeconds == nil || *stopped.DurationSeconds != 3723 {
		t.Errorf("duration = %v, want 3723", stopped.DurationSeconds)
	}
	if stopped.Duration != "1h 2m 3s" {
		t.Errorf("duration text = %q", stopped.Duration)
	}

	rec = env.do(t, http.MethodPost, "/api/users/9/entries/active/stop", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("stop with nothing active status = %d, want 404", rec.Code)
	}
}

func TestStartEntryValidation(t *testing.T) {
	env := newTestEnv(t, Options{})
	workID := env.categoryID(t, "3", "work")
	otherUsersCat := env.categoryID(t, "4", "work")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"blank task", `{"category_id":` + itoa(workID) + `,"task_name":"  "}`, http.StatusUnprocessableEntity},
		{"task too long", `{"category_id":` + itoa(workID) + `,"task_name":"` + strings.Repeat("a", 201) + `"}`, http.StatusUnprocessableEntity},
		{"foreign category", `{"category_id":` + itoa(otherUsersCat) + `,"task_name":"x"}`, http.StatusUnprocessableEntity},
		{"wrong type", `{"category_id":"work","task_name":"x"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/users/3/entries", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestStatsAndHistory(t *testing.T) {
	env := newTestEnv(t, Options{})
	workID := env.categoryID(t, "5", "work")
	studyID := env.categoryID(t, "5", "study")

	track := func(catID int64, task string, d time.Duration) {
		rec := env.do(t, http.MethodPost, "/api/users/5/entries",
			`{"category_id":`+itoa(catID)+`,"task_name":"`+task+`"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("start %s status = %d", task, rec.Code)
		}
		env.now = env.now.Add(d)
		if rec := env.do(t, http.MethodPost, "/api/users/5/entries/active/stop", ""); rec.Code != http.StatusOK {
			t.Fatalf("stop %s status = %d", task, rec.Code)
		}
	}
	track(workID, "a", 30*time.Minute)
	track(studyID, "b", 45*time.Minute)
	track(workID, "c", 30*time.Minute)

	rec := env.do(t, http.MethodGet, "/api/users/5/stats?days=7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	totals := decode[[]categoryTotalResponse](t, rec)
	if len(totals) != 2 || totals[0].Category != "work" || totals[0].TotalSeconds != 3600 || totals[0].Total != "1h 0s" {
		t.Errorf("totals = %+v", totals)
	}

	rec = env.do(t, http.MethodGet, "/api/users/5/history?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	history := decode[[]entryResponse](t, rec)
	if len(history) != 2 || history[0].TaskName != "c" || history[1].TaskName != "b" {
		t.Errorf("history = %+v", history)
	}

	rec = env.do(t, http.MethodGet, "/api/users/5/history?limit=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/users/5/stats", "")
	if rec.Code != http.StatusOK {
		t.Errorf("default window status = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{RateLimit: ratelimit.Config{RequestsPerMinute: 2, CleanupInterval: time.Minute}})

	for i := 0; i < 2; i++ {
		if rec := env.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := env.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

type brokenTracker struct{ core.Tracker }

func (brokenTracker) ListCategories(context.Context, core.UserID) ([]core.Category, error) {
	return nil, errors.Join(core.ErrStorage, errors.New("disk I/O error"))
}

func TestStorageFaultHidesDetail(t *testing.T) {
	srv := NewServer(":0", brokenTracker{}, Options{
		Logger: log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)}),
	})
	defer srv.Shutdown(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/api/users/1/categories", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decode[errorResponse](t, rec); strings.Contains(got.Error, "disk") {
		t.Errorf("error leaked storage detail: %q", got.Error)
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
