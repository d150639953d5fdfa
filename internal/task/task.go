package task

import (
	"context"
	"time"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further transition is possible from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// canTransitionTo enforces pending -> processing -> {completed | failed}.
func (s TaskStatus) canTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusProcessing
	case TaskStatusProcessing:
		return next == TaskStatusCompleted || next == TaskStatusFailed
	default:
		return false
	}
}

// TotalSteps is the number of pipeline stages reported in progress.
const TotalSteps = 3

// Failure classifications stored on failed tasks.
const (
	KindValidation      = "validation"
	KindModel           = "model"
	KindToolUnavailable = "tool_unavailable"
	KindIO              = "io"
	KindInternal        = "internal"
)

// ClientInfo identifies the caller that submitted a task.
type ClientInfo struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Params is the immutable input snapshot taken at submission.
type Params struct {
	// SpecDoc is the path of the datasheet / technical specification, if any
	SpecDoc string `json:"spec_doc,omitempty"`

	// DiagramDoc is the path of the schematic / circuit diagram, if any
	DiagramDoc string `json:"diagram_doc,omitempty"`

	// Instruction describes the code to generate
	Instruction string `json:"instruction" validate:"required"`

	// OutputPath is where the generated artifact is written
	OutputPath string `json:"output_path" validate:"required"`

	// TempFiles are owned by the task and removed when it finishes or is deleted
	TempFiles []string `json:"temp_files,omitempty"`

	Client ClientInfo `json:"client,omitempty"`
}

// Progress reports how far a task has come through the pipeline.
type Progress struct {
	CurrentStep int    `json:"current_step"`
	TotalSteps  int    `json:"total_steps"`
	StepName    string `json:"step_name"`
	Percentage  int    `json:"percentage"`
}

// StepTiming records how long one stage took.
type StepTiming struct {
	Step      string `json:"step"`
	ElapsedMS int64  `json:"time_ms"`
}

// ExtractedData holds the structured intermediates produced by the first two stages.
type ExtractedData struct {
	Registers   []any `json:"registers"`
	PinMappings []any `json:"pin_mappings"`
}

// Result is present on completed tasks.
type Result struct {
	OutputPath    string        `json:"output_path"`
	GeneratedCode string        `json:"generated_code"`
	CodeLines     int           `json:"generated_code_lines"`
	CodeSize      int           `json:"generated_code_size"`
	ExtractedData ExtractedData `json:"extracted_data"`
	StepTimings   []StepTiming  `json:"step_timings"`
	ElapsedMS     int64         `json:"elapsed_ms"`
}

// Failure is present on failed tasks. It doubles as the error value a Runner
// returns, so the scheduler can store it without losing the failing stage.
type Failure struct {
	Message     string         `json:"message"`
	Kind        string         `json:"kind"`
	Step        int            `json:"failed_at_step,omitempty"`
	StepName    string         `json:"failed_step_name,omitempty"`
	Attempts    int            `json:"attempts,omitempty"`
	StepTimings []StepTiming   `json:"step_timings,omitempty"`
	Partial     *ExtractedData `json:"partial_data,omitempty"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.StepName != "" {
		return f.StepName + ": " + f.Message
	}
	return f.Message
}

// LogEntry is one line of a task's own log.
type LogEntry struct {
	Time    time.Time `json:"timestamp"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Task is a snapshot of one pipeline execution request. Values returned by the
// Store are copies; mutating them has no effect on the stored record.
type Task struct {
	ID          string     `json:"task_id"`
	Status      TaskStatus `json:"status"`
	Params      Params     `json:"params"`
	Progress    Progress   `json:"progress"`
	Result      *Result    `json:"result,omitempty"`
	Error       *Failure   `json:"error,omitempty"`
	Logs        []LogEntry `json:"logs,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration returns the processing time of a finished task, or zero.
func (t Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// ProgressFunc receives stage progress from a running pipeline.
type ProgressFunc func(step int, stepName string, percentage int)

// Runner executes the pipeline for one task.
// Version: 1.0
type Runner interface {
	// Run executes the pipeline for params. A non-nil error may be a *Failure
	// describing the failing stage; any other error is stored as an internal failure.
	Run(ctx context.Context, params Params, progress ProgressFunc) (*Result, error)
}

// Archiver records tasks that reached a terminal status.
// Version: 1.0
type Archiver interface {
	Archive(ctx context.Context, t Task) error
}
