package task

import "fmt"

// Handle grants exclusive write access to one processing task. The scheduler
// creates it when the task leaves the queue and gives it to the single worker
// that runs the task. Once the task is completed or failed the handle is spent.
type Handle struct {
	store  *Store
	id     string
	params Params
}

// ID returns the task id.
func (h *Handle) ID() string {
	return h.id
}

// Params returns the submission snapshot.
func (h *Handle) Params() Params {
	return h.params
}

// Progress records a stage report and mirrors it into the task log.
func (h *Handle) Progress(step int, stepName string, percentage int) {
	h.store.updateProgress(h.id, h, Progress{
		CurrentStep: step,
		StepName:    stepName,
		Percentage:  percentage,
	})
	h.Log("info", fmt.Sprintf("Step %d: %s (%d%%)", step, stepName, percentage))
}

// Log appends to the task log.
func (h *Handle) Log(level, message string) {
	h.store.appendLog(h.id, h, level, message)
}

// Complete stores result, marks the task completed and releases its temp files.
func (h *Handle) Complete(result *Result) error {
	return h.finish(TaskStatusCompleted, result, nil)
}

// Fail stores failure, marks the task failed and releases its temp files.
func (h *Handle) Fail(failure *Failure) error {
	return h.finish(TaskStatusFailed, nil, failure)
}

func (h *Handle) finish(to TaskStatus, result *Result, failure *Failure) error {
	s := h.store
	s.mu.Lock()
	if to == TaskStatusCompleted {
		s.updateFinalProgressLocked(h.id, h)
	}
	err := s.transitionLocked(h.id, h, to, result, failure)
	if err == nil {
		if to == TaskStatusCompleted {
			appendLog(&s.tasks[h.id].task, s.now().UTC(), "success", "Task completed successfully")
		} else {
			appendLog(&s.tasks[h.id].task, s.now().UTC(), "error", "Task failed: "+failure.Error())
		}
	}
	s.mu.Unlock()

	s.removeFiles(h.id, h.params.TempFiles)
	return err
}

// updateFinalProgressLocked marks the progress as finished. Callers hold s.mu.
func (s *Store) updateFinalProgressLocked(id string, owner *Handle) {
	rec, ok := s.tasks[id]
	if !ok || rec.owner != owner {
		return
	}
	rec.task.Progress = Progress{
		CurrentStep: TotalSteps,
		TotalSteps:  TotalSteps,
		StepName:    "Completed",
		Percentage:  100,
	}
}
