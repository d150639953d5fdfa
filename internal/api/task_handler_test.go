package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/firmgen/internal/api/shared"
	"github.com/phrazzld/firmgen/internal/docs"
	"github.com/phrazzld/firmgen/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventually = 2 * time.Second

type testServer struct {
	router    http.Handler
	scheduler *task.Scheduler
	runner    *task.MockRunner
	uploadDir string
	outputDir string
}

// newTestServer wires the handlers onto a chi router backed by a real
// scheduler and a mock pipeline runner.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := task.NewMockRunner()
	runner.RunFn = func(ctx context.Context, params task.Params, progress task.ProgressFunc) (*task.Result, error) {
		code := "int main(void) { return 0; }\n"
		if err := os.WriteFile(params.OutputPath, []byte(code), 0o600); err != nil {
			return nil, err
		}
		return &task.Result{
			OutputPath:    params.OutputPath,
			GeneratedCode: code,
			CodeLines:     1,
			CodeSize:      len(code),
			ExtractedData: task.ExtractedData{Registers: []any{map[string]any{"name": "CR1"}}, PinMappings: []any{}},
		}, nil
	}

	scheduler := task.NewScheduler(task.NewStore(log), runner, task.DefaultSchedulerConfig(), log)
	scheduler.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = scheduler.Stop(ctx)
	})

	ts := &testServer{
		scheduler: scheduler,
		runner:    runner,
		uploadDir: t.TempDir(),
		outputDir: t.TempDir(),
	}
	tasks := NewTaskHandler(scheduler, TaskHandlerConfig{
		UploadDir:      ts.uploadDir,
		OutputDir:      ts.outputDir,
		MaxUploadBytes: 1 << 20,
		BasePath:       "/api/v1",
	}, log)
	status := NewStatusHandler(scheduler, fakeChecker{docs.ToolStatus{Pdftotext: true}}, false, time.Now())

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", status.Health)
		r.Get("/status", status.Status)
		r.Post("/generate/async", tasks.SubmitAsync)
		r.Get("/tasks", tasks.ListTasks)
		r.Get("/tasks/{id}", tasks.GetTask)
		r.Get("/tasks/{id}/result", tasks.GetResult)
		r.Get("/tasks/{id}/logs", tasks.GetLogs)
		r.Delete("/tasks/{id}", tasks.DeleteTask)
	})
	ts.router = r
	return ts
}

type fakeChecker struct{ status docs.ToolStatus }

func (f fakeChecker) Available() docs.ToolStatus { return f.status }

type upload struct {
	field, name, content string
}

func multipartBody(t *testing.T, instruction string, files ...upload) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if instruction != "" {
		require.NoError(t, mw.WriteField("instruction", instruction))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) submit(t *testing.T, instruction string, files ...upload) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, instruction, files...)
	return ts.do(t, http.MethodPost, "/api/v1/generate/async", body, ct)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (ts *testServer) waitFor(t *testing.T, id string, status task.TaskStatus) {
	t.Helper()
	assert.Eventually(t, func() bool {
		got, err := ts.scheduler.Store().Get(id)
		return err == nil && got.Status == status
	}, eventually, 10*time.Millisecond)
}

func TestSubmitAsync_LifeCycle(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	w := ts.submit(t, "blink the LED on PA5", upload{"datasheet", "stm32.txt", "GPIOA_ODR 0x40020014"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	sub := decode[SubmitResponse](t, w)
	assert.True(t, strings.HasPrefix(sub.TaskID, "task_"))
	assert.Equal(t, task.TaskStatusPending, sub.Status)
	assert.Equal(t, "/api/v1/tasks/"+sub.TaskID, sub.PollURL)
	assert.Equal(t, "/api/v1/tasks/"+sub.TaskID+"/result", sub.ResultURL)

	ts.waitFor(t, sub.TaskID, task.TaskStatusCompleted)

	calls := ts.runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "blink the LED on PA5", calls[0].Instruction)
	assert.Empty(t, calls[0].DiagramDoc)
	assert.Equal(t, filepath.Join(ts.uploadDir, filepath.Base(calls[0].SpecDoc)), calls[0].SpecDoc)
	assert.Equal(t, ".txt", filepath.Ext(calls[0].SpecDoc))
	assert.Equal(t, "192.0.2.1", calls[0].Client.IP)

	w = ts.do(t, http.MethodGet, sub.PollURL, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[TaskResponse](t, w)
	assert.Equal(t, task.TaskStatusCompleted, status.Status)
	assert.Equal(t, 100, status.Progress.Percentage)
	require.NotNil(t, status.Result)
	assert.Equal(t, 1, status.Result.RegisterCount)

	w = ts.do(t, http.MethodGet, sub.ResultURL, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[ResultResponse](t, w)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "int main(void) { return 0; }\n", result.Result.GeneratedCode)

	w = ts.do(t, http.MethodGet, sub.ResultURL+"?download=file", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "int main(void) { return 0; }\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	// uploads are owned by the task and removed once it finished
	assert.Eventually(t, func() bool {
		_, err := os.Stat(calls[0].SpecDoc)
		return os.IsNotExist(err)
	}, eventually, 10*time.Millisecond)
}

func TestSubmitAsync_Rejections(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		instruction string
		files       []upload
		wantStatus  int
		wantError   string
	}{
		"missing instruction": {
			files:      []upload{{"datasheet", "a.txt", "x"}},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid instruction: required field",
		},
		"no documents": {
			instruction: "blink",
			wantStatus:  http.StatusBadRequest,
			wantError:   "Invalid spec_doc",
		},
		"unsupported extension": {
			instruction: "blink",
			files:       []upload{{"datasheet", "a.exe", "MZ"}},
			wantStatus:  http.StatusBadRequest,
			wantError:   "Unsupported document type",
		},
		"too large": {
			instruction: "blink",
			files:       []upload{{"datasheet", "a.txt", strings.Repeat("x", 2<<20)}},
			wantStatus:  http.StatusRequestEntityTooLarge,
			wantError:   "Upload too large",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ts := newTestServer(t)

			w := ts.submit(t, tc.instruction, tc.files...)

			assert.Equal(t, tc.wantStatus, w.Code, w.Body.String())
			assert.Contains(t, decode[shared.ErrorResponse](t, w).Error, tc.wantError)
			assert.Zero(t, ts.scheduler.Stats().Total)

			entries, err := os.ReadDir(ts.uploadDir)
			require.NoError(t, err)
			assert.Empty(t, entries, "rejected uploads are not kept")
		})
	}

	t.Run("not multipart", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.do(t, http.MethodPost, "/api/v1/generate/async", strings.NewReader(`{}`), "application/json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetResult_NotReadyAndFailed(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	release := make(chan struct{})
	ts.runner.RunFn = func(ctx context.Context, params task.Params, progress task.ProgressFunc) (*task.Result, error) {
		<-release
		return nil, &task.Failure{Message: "model unavailable after 3 attempts", Kind: task.KindModel, Step: 1, StepName: "Extract Registers", Attempts: 3}
	}

	sub := decode[SubmitResponse](t, ts.submit(t, "blink", upload{"datasheet", "a.md", "# regs"}))
	ts.waitFor(t, sub.TaskID, task.TaskStatusProcessing)

	w := ts.do(t, http.MethodGet, sub.ResultURL, nil, "")
	assert.Equal(t, http.StatusTooEarly, w.Code)
	assert.Equal(t, "10", w.Header().Get("Retry-After"))
	assert.Equal(t, RetryAfterSeconds, decode[shared.ErrorResponse](t, w).RetryAfter)

	w = ts.do(t, http.MethodDelete, sub.PollURL, nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	close(release)
	ts.waitFor(t, sub.TaskID, task.TaskStatusFailed)

	w = ts.do(t, http.MethodGet, sub.ResultURL, nil, "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	failed := decode[FailedResultResponse](t, w)
	assert.Equal(t, "failed", failed.Status)
	require.NotNil(t, failed.Error)
	assert.Equal(t, task.KindModel, failed.Error.Kind)
	assert.Equal(t, 3, failed.Error.Attempts)
}

func TestDeleteTask(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	w := ts.do(t, http.MethodDelete, "/api/v1/tasks/task_1_unknown00", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	sub := decode[SubmitResponse](t, ts.submit(t, "blink", upload{"schematic", "board.png", "png"}))
	ts.waitFor(t, sub.TaskID, task.TaskStatusCompleted)

	w = ts.do(t, http.MethodDelete, sub.PollURL, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, DeleteResponse{TaskID: sub.TaskID, Deleted: true}, decode[DeleteResponse](t, w))

	w = ts.do(t, http.MethodGet, sub.PollURL, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Task not found", decode[shared.ErrorResponse](t, w).Error)
}

func TestListTasksAndLogs(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	var ids []string
	for i := 0; i < 3; i++ {
		sub := decode[SubmitResponse](t, ts.submit(t, "blink", upload{"datasheet", "a.txt", "x"}))
		ids = append(ids, sub.TaskID)
	}
	for _, id := range ids {
		ts.waitFor(t, id, task.TaskStatusCompleted)
	}

	w := ts.do(t, http.MethodGet, "/api/v1/tasks?status=completed&limit=2", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[TaskListResponse](t, w)
	assert.Equal(t, 2, list.Count)
	assert.Len(t, list.Tasks, 2)
	assert.Equal(t, 3, list.Stats.Completed)

	w = ts.do(t, http.MethodGet, "/api/v1/tasks?status=bogus", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodGet, "/api/v1/tasks?limit=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/tasks/"+ids[0]+"/logs", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[LogsResponse](t, w)
	assert.Equal(t, ids[0], logs.TaskID)
	assert.NotEmpty(t, logs.Logs)
}

func TestStatusEndpoints(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, w).Status)

	w = ts.do(t, http.MethodGet, "/api/v1/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[StatusResponse](t, w)
	assert.Equal(t, "degraded", st.Status)
	assert.False(t, st.ModelConfigured)
	assert.True(t, st.Tools.Pdftotext)
	assert.False(t, st.Tools.CanConvert)
}
