package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/firmgen/internal/api/shared"
	"github.com/phrazzld/firmgen/internal/platform/logger"
	"github.com/phrazzld/firmgen/internal/task"
)

// defaultListLimit caps GET /tasks when no limit is given.
const defaultListLimit = 20

// TaskHandlerConfig holds the filesystem settings of the task endpoints.
type TaskHandlerConfig struct {
	// UploadDir receives uploaded documents
	UploadDir string

	// OutputDir receives generated artifacts
	OutputDir string

	// MaxUploadBytes caps the multipart body of a submission
	MaxUploadBytes int64

	// BasePath prefixes the poll and result URLs returned on submission
	BasePath string
}

// TaskHandler handles the asynchronous generation endpoints.
type TaskHandler struct {
	scheduler *task.Scheduler
	config    TaskHandlerConfig
	logger    *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(scheduler *task.Scheduler, config TaskHandlerConfig, logger *slog.Logger) *TaskHandler {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 50 << 20
	}
	return &TaskHandler{
		scheduler: scheduler,
		config:    config,
		logger:    logger.With("component", "task_handler"),
	}
}

// SubmitAsync handles POST /generate/async.
//
// The multipart form carries an optional "datasheet" file, an optional
// "schematic" file and a required "instruction" field. Uploaded files are
// owned by the task and removed once it finishes or is deleted.
func (h *TaskHandler) SubmitAsync(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	if r.ContentLength > h.config.MaxUploadBytes {
		shared.RespondWithError(w, r, http.StatusRequestEntityTooLarge, "Upload too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			shared.RespondWithError(w, r, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		HandleAPIError(w, r, &task.ValidationError{Field: "form", Reason: "expected multipart/form-data"})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	form := SubmitForm{Instruction: strings.TrimSpace(r.FormValue("instruction"))}
	if err := validateForm(form); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	specDoc, err := saveUpload(r, "datasheet", h.config.UploadDir)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	diagramDoc, err := saveUpload(r, "schematic", h.config.UploadDir)
	if err != nil {
		removeFiles(specDoc)
		HandleAPIError(w, r, err)
		return
	}

	params := task.Params{
		SpecDoc:     specDoc,
		DiagramDoc:  diagramDoc,
		Instruction: form.Instruction,
		OutputPath:  filepath.Join(h.config.OutputDir, "firmware_"+uuid.NewString()+".c"),
		Client:      clientInfo(r),
	}
	for _, p := range []string{specDoc, diagramDoc} {
		if p != "" {
			params.TempFiles = append(params.TempFiles, p)
		}
	}

	id, err := h.scheduler.Submit(params)
	if err != nil {
		removeFiles(specDoc, diagramDoc)
		HandleAPIError(w, r, err)
		return
	}

	log.Info("generation task accepted",
		"task_id", id,
		"has_datasheet", specDoc != "",
		"has_schematic", diagramDoc != "")

	taskURL := fmt.Sprintf("%s/tasks/%s", h.config.BasePath, id)
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitResponse{
		TaskID:    id,
		Status:    task.TaskStatusPending,
		Message:   "Task queued for processing",
		PollURL:   taskURL,
		ResultURL: taskURL + "/result",
	})
}

// GetTask handles GET /tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newTaskResponse(t))
}

// GetResult handles GET /tasks/{id}/result.
//
// Pending and processing tasks answer 425 with a retry hint. Failed tasks
// answer 500 with the stored failure. Completed tasks return the full result,
// or the artifact itself when ?download=file is given.
func (h *TaskHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}

	switch t.Status {
	case task.TaskStatusPending, task.TaskStatusProcessing:
		shared.RespondNotReady(w, r, fmt.Sprintf("Task is %s", t.Status), RetryAfterSeconds)
	case task.TaskStatusFailed:
		shared.RespondWithJSON(w, r, http.StatusInternalServerError, FailedResultResponse{
			TaskID:  t.ID,
			Status:  string(t.Status),
			Error:   t.Error,
			TraceID: shared.GetTraceID(r.Context()),
		})
	default:
		if r.URL.Query().Get("download") == "file" {
			h.serveArtifact(w, r, t)
			return
		}
		shared.RespondWithJSON(w, r, http.StatusOK, ResultResponse{
			TaskID: t.ID,
			Status: "success",
			Result: t.Result,
		})
	}
}

func (h *TaskHandler) serveArtifact(w http.ResponseWriter, r *http.Request, t task.Task) {
	if t.Result == nil {
		HandleAPIError(w, r, fmt.Errorf("completed task %s has no result", t.ID))
		return
	}
	f, err := os.Open(t.Result.OutputPath)
	if err != nil {
		logger.FromContextOrDefault(r.Context(), h.logger).
			Warn("artifact missing", "task_id", t.ID, "error", err)
		shared.RespondWithError(w, r, http.StatusNotFound, "Generated file not found")
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-c; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(t.Result.OutputPath)))
	http.ServeContent(w, r, filepath.Base(t.Result.OutputPath), info.ModTime(), f)
}

// ListTasks handles GET /tasks?status=&limit=.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	tasks := h.scheduler.Store().List(task.Filter{Status: task.TaskStatus(q.Status), Limit: q.Limit})
	resp := TaskListResponse{
		Tasks: make([]TaskResponse, 0, len(tasks)),
		Count: len(tasks),
		Stats: h.scheduler.Stats(),
	}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, newTaskResponse(t))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// DeleteTask handles DELETE /tasks/{id}. Processing tasks cannot be deleted.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	deleted, err := h.scheduler.Delete(id)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if !deleted {
		HandleAPIError(w, r, task.ErrNotFound)
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("task deleted", "task_id", id)
	shared.RespondWithJSON(w, r, http.StatusOK, DeleteResponse{TaskID: id, Deleted: true})
}

// GetLogs handles GET /tasks/{id}/logs.
func (h *TaskHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	logs := t.Logs
	if logs == nil {
		logs = []task.LogEntry{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, LogsResponse{TaskID: t.ID, Logs: logs})
}

// lookup resolves the {id} path parameter, writing the error response itself
// when the task cannot be returned.
func (h *TaskHandler) lookup(w http.ResponseWriter, r *http.Request) (task.Task, bool) {
	id, err := taskIDParam(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return task.Task{}, false
	}
	t, err := h.scheduler.Store().Get(id)
	if err != nil {
		HandleAPIError(w, r, err)
		return task.Task{}, false
	}
	return t, true
}
