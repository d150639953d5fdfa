package task

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

// MaxLogEntries caps the per-task log; older entries are dropped first.
const MaxLogEntries = 100

// Filter narrows a List call.
type Filter struct {
	// Status keeps only tasks in this status when non-empty
	Status TaskStatus

	// Limit caps the number of tasks returned when positive
	Limit int
}

// Stats aggregates task counts. QueueDepth and InFlight are filled in by the Scheduler.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	QueueDepth int `json:"queue_depth"`
	InFlight   int `json:"in_flight"`
}

// record is the stored form of a task. owner is set while a worker holds the
// task's Handle; only that handle may mutate the record until it is terminal.
type record struct {
	task  Task
	owner *Handle
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithFileRemover replaces os.Remove for artifact and temp-file cleanup.
func WithFileRemover(remove func(path string) error) StoreOption {
	return func(s *Store) {
		s.remove = remove
	}
}

// Store is an in-memory registry of tasks keyed by id.
// It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	tasks  map[string]*record
	now    func() time.Time
	remove func(path string) error
	logger *slog.Logger
}

// NewStore creates an empty Store.
func NewStore(logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		tasks:  make(map[string]*record),
		now:    time.Now,
		remove: os.Remove,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates params, inserts a pending task and returns its id.
// The task is visible to Get and List as soon as Create returns.
func (s *Store) Create(params Params) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	id := NewID(now)
	for _, exists := s.tasks[id]; exists; _, exists = s.tasks[id] {
		id = NewID(now)
	}

	params.TempFiles = append([]string(nil), params.TempFiles...)
	t := Task{
		ID:     id,
		Status: TaskStatusPending,
		Params: params,
		Progress: Progress{
			TotalSteps: TotalSteps,
			StepName:   "Initializing",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	rec := &record{task: t}
	appendLog(&rec.task, now, "info", "Task created")
	s.tasks[id] = rec

	s.logger.Debug("task created",
		"task_id", id,
		"has_spec_doc", params.SpecDoc != "",
		"has_diagram_doc", params.DiagramDoc != "")

	return id, nil
}

// Get returns a snapshot of the task with the given id.
func (s *Store) Get(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.task.clone(), nil
}

// List returns tasks newest-created first.
func (s *Store) List(filter Filter) []Task {
	s.mu.RLock()
	out := make([]Task, 0, len(s.tasks))
	for _, rec := range s.tasks {
		if filter.Status != "" && rec.task.Status != filter.Status {
			continue
		}
		out = append(out, rec.task.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// UpdateProgress merges the non-zero fields of p into the task's progress.
// Unknown ids and tasks owned by a worker handle are ignored.
func (s *Store) UpdateProgress(id string, p Progress) {
	s.updateProgress(id, nil, p)
}

func (s *Store) updateProgress(id string, owner *Handle, p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[id]
	if !ok || rec.owner != owner || rec.task.Status.IsTerminal() {
		return
	}

	if p.CurrentStep != 0 {
		rec.task.Progress.CurrentStep = p.CurrentStep
	}
	if p.TotalSteps != 0 {
		rec.task.Progress.TotalSteps = p.TotalSteps
	}
	if p.StepName != "" {
		rec.task.Progress.StepName = p.StepName
	}
	if p.Percentage != 0 {
		rec.task.Progress.Percentage = p.Percentage
	}
	rec.task.UpdatedAt = s.now().UTC()
}

// AppendLog adds an entry to the task's log. Unknown ids are ignored.
func (s *Store) AppendLog(id, level, message string) {
	s.appendLog(id, nil, level, message)
}

func (s *Store) appendLog(id string, owner *Handle, level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[id]
	if !ok || rec.owner != owner {
		return
	}
	appendLog(&rec.task, s.now().UTC(), level, message)
}

// Transition moves a task forward. Completing requires result; failing
// requires failure; any other combination is rejected.
func (s *Store) Transition(id string, to TaskStatus, result *Result, failure *Failure) error {
	s.mu.Lock()
	err := s.transitionLocked(id, nil, to, result, failure)
	var cleanup []string
	if err == nil && to.IsTerminal() {
		cleanup = s.tasks[id].task.Params.TempFiles
	}
	s.mu.Unlock()

	s.removeFiles(id, cleanup)
	return err
}

func (s *Store) transitionLocked(id string, owner *Handle, to TaskStatus, result *Result, failure *Failure) error {
	rec, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	// an illegal move is reported as such whoever asks; ownership only
	// guards legal ones
	from := rec.task.Status
	if !from.canTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if rec.owner != owner {
		return fmt.Errorf("%w: task %s is owned by a worker", ErrConflict, id)
	}

	switch to {
	case TaskStatusCompleted:
		if result == nil || failure != nil {
			return fmt.Errorf("%w: completed requires a result and no error", ErrInvalidTransition)
		}
	case TaskStatusFailed:
		if failure == nil || result != nil {
			return fmt.Errorf("%w: failed requires an error and no result", ErrInvalidTransition)
		}
	default:
		if result != nil || failure != nil {
			return fmt.Errorf("%w: %s carries no payload", ErrInvalidTransition, to)
		}
	}

	now := s.now().UTC()
	rec.task.Status = to
	rec.task.UpdatedAt = now

	switch to {
	case TaskStatusProcessing:
		rec.task.StartedAt = &now
	case TaskStatusCompleted:
		rec.task.Result = result
		rec.task.CompletedAt = &now
		rec.owner = nil
	case TaskStatusFailed:
		rec.task.Error = failure
		rec.task.CompletedAt = &now
		rec.owner = nil
	}

	s.logger.Debug("task status changed",
		"task_id", id,
		"from", from,
		"to", to)

	return nil
}

// claim moves a pending task to processing and hands exclusive write access
// to the returned Handle.
func (s *Store) claim(id string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transitionLocked(id, nil, TaskStatusProcessing, nil, nil); err != nil {
		return nil, err
	}
	rec := s.tasks[id]
	h := &Handle{store: s, id: id, params: rec.task.Params}
	rec.owner = h
	appendLog(&rec.task, s.now().UTC(), "info", "Task started")
	return h, nil
}

// Delete removes a task that is not processing, together with its artifact
// and temp files. It returns false when the id is unknown.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	rec, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	if rec.task.Status == TaskStatusProcessing {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrConflict, id)
	}
	delete(s.tasks, id)
	files := ownedFiles(rec.task)
	s.mu.Unlock()

	s.removeFiles(id, files)
	s.logger.Info("task deleted", "task_id", id, "status", rec.task.Status)
	return true, nil
}

// ReapOlderThan deletes completed and failed tasks last updated more than age
// ago and returns how many were removed. Pending and processing tasks are never touched.
func (s *Store) ReapOlderThan(age time.Duration) int {
	cutoff := s.now().UTC().Add(-age)

	s.mu.Lock()
	var files []string
	removed := 0
	for id, rec := range s.tasks {
		if !rec.task.Status.IsTerminal() || !rec.task.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(s.tasks, id)
		files = append(files, ownedFiles(rec.task)...)
		removed++
	}
	s.mu.Unlock()

	s.removeFiles("", files)
	return removed
}

// Stats counts tasks per status.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Total: len(s.tasks)}
	for _, rec := range s.tasks {
		switch rec.task.Status {
		case TaskStatusPending:
			st.Pending++
		case TaskStatusProcessing:
			st.Processing++
		case TaskStatusCompleted:
			st.Completed++
		case TaskStatusFailed:
			st.Failed++
		}
	}
	return st
}

func (s *Store) removeFiles(id string, paths []string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := s.remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove task file",
				"task_id", id,
				"path", p,
				"error", err)
		}
	}
}

// ownedFiles lists everything a deleted task leaves behind on disk.
func ownedFiles(t Task) []string {
	files := append([]string(nil), t.Params.TempFiles...)
	if t.Params.OutputPath != "" {
		files = append(files, t.Params.OutputPath)
	}
	return files
}

func appendLog(t *Task, now time.Time, level, message string) {
	t.Logs = append(t.Logs, LogEntry{Time: now, Level: level, Message: message})
	if len(t.Logs) > MaxLogEntries {
		t.Logs = append([]LogEntry(nil), t.Logs[len(t.Logs)-MaxLogEntries:]...)
	}
}

func (t Task) clone() Task {
	c := t
	c.Params.TempFiles = append([]string(nil), t.Params.TempFiles...)
	c.Logs = append([]LogEntry(nil), t.Logs...)
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.Result != nil {
		r := *t.Result
		r.StepTimings = append([]StepTiming(nil), t.Result.StepTimings...)
		c.Result = &r
	}
	if t.Error != nil {
		f := *t.Error
		f.StepTimings = append([]StepTiming(nil), t.Error.StepTimings...)
		c.Error = &f
	}
	return c
}
