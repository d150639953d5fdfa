package pipeline

import (
	"errors"
	"io/fs"

	"github.com/phrazzld/firmgen/internal/docs"
	"github.com/phrazzld/firmgen/internal/generation"
	"github.com/phrazzld/firmgen/internal/task"
)

// ErrInvalidConfig is returned when a Runner is built without a collaborator.
var ErrInvalidConfig = errors.New("invalid pipeline configuration")

// Classify maps a stage error onto a task failure kind.
func Classify(err error) string {
	var pathErr *fs.PathError
	switch {
	case errors.Is(err, generation.ErrModelFailed):
		return task.KindModel
	case errors.Is(err, docs.ErrToolUnavailable):
		return task.KindToolUnavailable
	case errors.Is(err, docs.ErrUnsupportedType), errors.Is(err, generation.ErrInvalidRequest):
		return task.KindValidation
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission), errors.As(err, &pathErr):
		return task.KindIO
	default:
		return task.KindInternal
	}
}

// stageFailure builds the failure returned when a stage stops the run.
func stageFailure(st stage, err error, timings []task.StepTiming, partial *task.ExtractedData) *task.Failure {
	f := &task.Failure{
		Message:     err.Error(),
		Kind:        Classify(err),
		Step:        st.step,
		StepName:    st.name,
		StepTimings: append([]task.StepTiming(nil), timings...),
		Partial:     partial,
	}
	var modelErr *generation.ModelError
	if errors.As(err, &modelErr) {
		f.Attempts = modelErr.Attempts
	}
	return f
}
