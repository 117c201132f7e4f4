package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imkarma/taskplan/internal/dispatch"
	"github.com/imkarma/taskplan/internal/planner"
	"github.com/imkarma/taskplan/internal/report"
	"github.com/imkarma/taskplan/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var fixedNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := store.NewMemory()
	svc := planner.New(repo, planner.WithLogger(logger))
	d := dispatch.New(dispatch.WithLogger(logger))
	dispatch.RegisterLifecycle(d, svc, report.New(repo))
	return NewServer(d, append([]Option{WithLogger(logger), WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func do(t *testing.T, s *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	code, resp := do(t, s, http.MethodPost, "/webhooks/task/create", `{"title":"Ship","priority":"high","estimated_hours":2}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, fixedNow.Format(time.RFC3339Nano), resp["timestamp"])

	result := resp["result"].(map[string]any)
	assert.Equal(t, "created", result["status"])
	task := result["task"].(map[string]any)
	assert.Equal(t, "high", task["priority"])
	assert.Equal(t, 2.0, task["estimatedHours"])
	id := task["id"].(string)

	code, resp = do(t, s, http.MethodPost, "/webhooks/task/status", `{"task_id":"`+id+`","status":"in_progress"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "in_progress", resp["result"].(map[string]any)["task"].(map[string]any)["status"])

	code, resp = do(t, s, http.MethodPost, "/webhooks/task/complete", `{"taskId":"`+id+`","actualHours":1.5}`)
	require.Equal(t, http.StatusOK, code)
	done := resp["result"].(map[string]any)["task"].(map[string]any)
	assert.Equal(t, "completed", done["status"])
	assert.NotNil(t, done["completionTime"])

	code, resp = do(t, s, http.MethodPost, "/webhooks/report/generate", "")
	require.Equal(t, http.StatusOK, code)
	reportText := resp["result"].(map[string]any)["report"].(string)
	assert.Contains(t, reportText, "### Completed (1)")
}

func TestTaskErrorOnMissingTask(t *testing.T) {
	s := newTestServer(t)

	code, resp := do(t, s, http.MethodPost, "/webhooks/task/error", `{"task_id":"missing","error_message":"boom"}`)
	require.Equal(t, http.StatusOK, code)
	result := resp["result"].(map[string]any)
	assert.Equal(t, "failed", result["status"])
	assert.Nil(t, result["task"])
}

func TestHandlerFaultIs500(t *testing.T) {
	s := newTestServer(t)

	code, resp := do(t, s, http.MethodPost, "/webhooks/task/create", `{"description":"no title"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, resp["error"], "title")
}

func TestInvalidJSONIs400(t *testing.T) {
	s := newTestServer(t)

	code, resp := do(t, s, http.MethodPost, "/webhooks/task/create", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp["error"], "invalid JSON")
}

func TestOversizedBodyIs413(t *testing.T) {
	s := newTestServer(t)

	body := `{"title":"` + strings.Repeat("x", maxBodySize) + `"}`
	code, resp := do(t, s, http.MethodPost, "/webhooks/task/create", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Contains(t, resp["error"], "exceeds")
}

func TestEmptyBodyIsEmptyPayload(t *testing.T) {
	s := newTestServer(t)

	code, resp := do(t, s, http.MethodPost, "/webhooks/batch/process", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.0, resp["processed"])

	code, resp = do(t, s, http.MethodPost, "/webhooks/events/report.generate", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", resp["status"])
}

func TestNoHandlerIs400(t *testing.T) {
	s := NewServer(dispatch.New(dispatch.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))))

	code, resp := do(t, s, http.MethodPost, "/webhooks/task/create", `{"title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No callback registered", resp["error"])

	code, resp = do(t, s, http.MethodPost, "/webhooks/batch/process", `{"operation":"complete","tasks":[]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No callback for batch.complete", resp["error"])
}

func TestGenericEventRoute(t *testing.T) {
	s := newTestServer(t)

	code, resp := do(t, s, http.MethodPost, "/webhooks/events/nonexistent.event", `{}`)
	require.Equal(t, http.StatusOK, code)
	result := resp["result"].(map[string]any)
	assert.Equal(t, "unknown_event", result["status"])
	assert.Equal(t, "Unknown event type: nonexistent.event", result["error"])

	code, _ = do(t, s, http.MethodPost, "/webhooks/events/task.create", `{"title":"x"}`)
	assert.Equal(t, http.StatusCreated, code)
}

func TestBatchProcess(t *testing.T) {
	s := newTestServer(t)

	code, resp := do(t, s, http.MethodPost, "/webhooks/batch/process", `{"tasks":[{"title":"a"},{"title":"b"},{"title":"c"}]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3.0, resp["processed"])

	results := resp["results"].([]any)
	require.Len(t, results, 3)
	for i, want := range []string{"a", "b", "c"} {
		r := results[i].(map[string]any)
		assert.Equal(t, "created", r["status"])
		assert.Equal(t, want, r["task"].(map[string]any)["title"])
	}
}

func TestPlanImportRoute(t *testing.T) {
	s := newTestServer(t)

	body := `{"source":"https://github.com/acme/widgets","analysis":{"summary":"S","tasks":[{"title":"Fix","effort":3}]}}`
	code, resp := do(t, s, http.MethodPost, "/webhooks/plan/import", body)
	require.Equal(t, http.StatusOK, code)
	plan := resp["result"].(map[string]any)["plan"].(map[string]any)
	assert.Equal(t, "Review: widgets", plan["name"])
	assert.Len(t, plan["tasks"], 1)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	code, resp := do(t, s, http.MethodGet, "/webhooks/health", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp["status"])
	assert.Contains(t, resp["webhooks"], "task.create")
	assert.Contains(t, resp["webhooks"], "batch.status")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "taskplan_test_total", Help: "test"}))
	s := newTestServer(t, WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "taskplan_test_total")
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx, "127.0.0.1:0") }()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
