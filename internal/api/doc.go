// Package api exposes the generation service over HTTP.
//
// Clients submit a datasheet, a schematic and an instruction to
// POST /generate/async, then poll GET /tasks/{id} until the task is completed
// or failed and fetch the artifact from GET /tasks/{id}/result. Handlers only
// translate between HTTP and the task scheduler; errors are mapped to status
// codes by MapErrorToStatusCode and never expose internal details.
package api
