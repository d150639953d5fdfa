package api

import (
	"net/http"
	"time"

	"github.com/phrazzld/firmgen/internal/api/shared"
	"github.com/phrazzld/firmgen/internal/docs"
	"github.com/phrazzld/firmgen/internal/task"
)

// ToolChecker reports external tool availability.
type ToolChecker interface {
	Available() docs.ToolStatus
}

// StatusHandler serves the liveness and readiness endpoints.
type StatusHandler struct {
	scheduler       *task.Scheduler
	tools           ToolChecker
	modelConfigured bool
	started         time.Time
	now             func() time.Time
}

// NewStatusHandler creates a StatusHandler whose uptime counts from started.
func NewStatusHandler(scheduler *task.Scheduler, tools ToolChecker, modelConfigured bool, started time.Time) *StatusHandler {
	return &StatusHandler{
		scheduler:       scheduler,
		tools:           tools,
		modelConfigured: modelConfigured,
		started:         started,
		now:             time.Now,
	}
}

// Health handles GET /health.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	uptime := h.now().Sub(h.started).Truncate(time.Second)
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:        "healthy",
		Uptime:        uptime.String(),
		UptimeSeconds: int64(uptime.Seconds()),
	})
}

// Status handles GET /status. The service reports "degraded" when no model key
// is configured or no PDF converter is installed.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	tools := h.tools.Available()
	status := "ready"
	if !h.modelConfigured || !tools.CanConvert {
		status = "degraded"
	}
	shared.RespondWithJSON(w, r, http.StatusOK, StatusResponse{
		Status:          status,
		ModelConfigured: h.modelConfigured,
		Tools:           tools,
		Tasks:           h.scheduler.Stats(),
	})
}
