package api

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/firmgen/internal/api/shared"
	"github.com/phrazzld/firmgen/internal/docs"
	"github.com/phrazzld/firmgen/internal/task"
)

// taskIDParam extracts the task ID from the URL path.
//
// Parameters:
//   - r: The HTTP request
//
// Returns:
//   - (string, nil): The task ID if present and well formed
//   - ("", error): A validation error if the parameter is missing or malformed
func taskIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > 64 || strings.ContainsAny(id, "/\\") {
		return "", &task.ValidationError{Field: "task_id", Reason: "missing or malformed"}
	}
	return id, nil
}

// parseListQuery reads and validates the status and limit query parameters.
func parseListQuery(r *http.Request) (ListTasksQuery, error) {
	q := ListTasksQuery{Status: r.URL.Query().Get("status"), Limit: defaultListLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, &task.ValidationError{Field: "limit", Reason: "must be an integer"}
		}
		q.Limit = n
	}
	if err := validateForm(q); err != nil {
		return q, err
	}
	return q, nil
}

// saveUpload copies the multipart file field into dir under a random name that
// keeps the original extension.
//
// Parameters:
//   - r: A request whose multipart form has already been parsed
//   - field: The form field name
//   - dir: The upload directory
//
// Returns:
//   - ("", nil): The field was not sent
//   - (path, nil): Where the upload was stored
//   - ("", error): ErrUnsupportedType for unknown extensions, or an I/O error
func saveUpload(r *http.Request, field, dir string) (string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", &task.ValidationError{Field: field, Reason: "unreadable upload"}
	}
	defer func() { _ = file.Close() }()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if docs.DetectKind(header.Filename) == docs.KindUnknown {
		return "", fmt.Errorf("%w: %s %q", docs.ErrUnsupportedType, field, ext)
	}

	path := filepath.Join(dir, field+"_"+uuid.NewString()+ext)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return path, nil
}

// clientInfo records who submitted a task. RemoteAddr is already rewritten
// by chi's RealIP middleware when a proxy header is present.
func clientInfo(r *http.Request) task.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return task.ClientInfo{IP: ip, UserAgent: r.UserAgent()}
}

// removeFiles deletes paths, ignoring ones that are already gone.
func removeFiles(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}

// validateForm runs struct validation and reports failures as task validation
// errors so they map to 400.
func validateForm(v any) error {
	err := shared.ValidateRequest(v)
	var ferr *shared.FieldError
	if errors.As(err, &ferr) {
		return &task.ValidationError{Field: ferr.Field, Reason: ferr.Reason}
	}
	if err != nil {
		return &task.ValidationError{Field: "request", Reason: "invalid"}
	}
	return nil
}
