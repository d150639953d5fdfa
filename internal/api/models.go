package api

import (
	"time"

	"github.com/phrazzld/firmgen/internal/docs"
	"github.com/phrazzld/firmgen/internal/task"
)

// ListTasksQuery holds the query parameters of GET /tasks.
type ListTasksQuery struct {
	Status string `form:"status" validate:"omitempty,oneof=pending processing completed failed"`
	Limit  int    `form:"limit"  validate:"gte=0,lte=1000"`
}

// SubmitForm holds the non-file fields of POST /generate/async.
type SubmitForm struct {
	Instruction string `form:"instruction" validate:"required,max=10000"`
}

// SubmitResponse is returned with 202 Accepted after a task is queued.
type SubmitResponse struct {
	TaskID    string          `json:"task_id"`
	Status    task.TaskStatus `json:"status"`
	Message   string          `json:"message"`
	PollURL   string          `json:"poll_url"`
	ResultURL string          `json:"result_url"`
}

// ResultSummary is the compact completed-task view embedded in TaskResponse.
type ResultSummary struct {
	OutputPath      string            `json:"output_path"`
	CodeLines       int               `json:"generated_code_lines"`
	CodeSize        int               `json:"generated_code_size"`
	RegisterCount   int               `json:"register_count"`
	PinMappingCount int               `json:"pin_mapping_count"`
	StepTimings     []task.StepTiming `json:"step_timings"`
}

// TaskResponse describes a task's status without its generated code.
type TaskResponse struct {
	TaskID      string          `json:"task_id"`
	Status      task.TaskStatus `json:"status"`
	Progress    task.Progress   `json:"progress"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	DurationMS  int64           `json:"duration_ms,omitempty"`
	Result      *ResultSummary  `json:"result,omitempty"`
	Error       *task.Failure   `json:"error,omitempty"`
}

// ResultResponse carries the full result of a completed task.
type ResultResponse struct {
	TaskID string       `json:"task_id"`
	Status string       `json:"status"`
	Result *task.Result `json:"result"`
}

// FailedResultResponse is returned by the result endpoint for failed tasks.
type FailedResultResponse struct {
	TaskID  string        `json:"task_id"`
	Status  string        `json:"status"`
	Error   *task.Failure `json:"error"`
	TraceID string        `json:"trace_id,omitempty"`
}

// TaskListResponse lists tasks with aggregate counts.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Count int            `json:"count"`
	Stats task.Stats     `json:"stats"`
}

// DeleteResponse confirms a deleted task.
type DeleteResponse struct {
	TaskID  string `json:"task_id"`
	Deleted bool   `json:"deleted"`
}

// LogsResponse lists a task's own log entries.
type LogsResponse struct {
	TaskID string          `json:"task_id"`
	Logs   []task.LogEntry `json:"logs"`
}

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// StatusResponse reports readiness details.
type StatusResponse struct {
	Status          string          `json:"status"`
	ModelConfigured bool            `json:"model_configured"`
	Tools           docs.ToolStatus `json:"tools"`
	Tasks           task.Stats      `json:"tasks"`
}

// newTaskResponse builds the status view of t.
func newTaskResponse(t task.Task) TaskResponse {
	resp := TaskResponse{
		TaskID:      t.ID,
		Status:      t.Status,
		Progress:    t.Progress,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
		DurationMS:  t.Duration().Milliseconds(),
		Error:       t.Error,
	}
	if t.Result != nil {
		resp.Result = &ResultSummary{
			OutputPath:      t.Result.OutputPath,
			CodeLines:       t.Result.CodeLines,
			CodeSize:        t.Result.CodeSize,
			RegisterCount:   len(t.Result.ExtractedData.Registers),
			PinMappingCount: len(t.Result.ExtractedData.PinMappings),
			StepTimings:     t.Result.StepTimings,
		}
	}
	return resp
}
