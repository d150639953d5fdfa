package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/firmgen/internal/api"
	apiMiddleware "github.com/phrazzld/firmgen/internal/api/middleware"
)

// apiBasePath prefixes every API route.
const apiBasePath = "/api/v1"

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	taskHandler := api.NewTaskHandler(app.scheduler, api.TaskHandlerConfig{
		UploadDir:      app.config.Server.UploadDir,
		OutputDir:      app.config.Server.OutputDir,
		MaxUploadBytes: app.config.Server.MaxUploadMB << 20,
		BasePath:       apiBasePath,
	}, app.logger)
	statusHandler := api.NewStatusHandler(app.scheduler, app.checker, app.modelConfigured, app.started)

	r.Route(apiBasePath, func(r chi.Router) {
		r.Get("/health", statusHandler.Health)
		r.Get("/status", statusHandler.Status)

		r.Post("/generate/async", taskHandler.SubmitAsync)

		r.Get("/tasks", taskHandler.ListTasks)
		r.Get("/tasks/{id}", taskHandler.GetTask)
		r.Get("/tasks/{id}/result", taskHandler.GetResult)
		r.Get("/tasks/{id}/logs", taskHandler.GetLogs)
		r.Delete("/tasks/{id}", taskHandler.DeleteTask)
	})

	// Unversioned liveness probe for load balancers
	r.Get("/health", statusHandler.Health)

	return r
}
