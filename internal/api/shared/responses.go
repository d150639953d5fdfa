package shared

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/phrazzld/firmgen/internal/platform/logger"
	"github.com/phrazzld/firmgen/internal/redact"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"-"`
	TraceID string `json:"trace_id,omitempty"`

	// RetryAfter is the number of seconds a poller should wait, set on 425 only
	RetryAfter int `json:"retry_after,omitempty"`
}

// ResponseOption customizes how an error response is logged.
type ResponseOption func(*responseOptions)

type responseOptions struct {
	elevateLogLevel bool
}

// WithElevatedLogLevel logs a 4xx response at WARN instead of DEBUG, e.g. for
// uploads of unsupported document types.
func WithElevatedLogLevel() ResponseOption {
	return func(opts *responseOptions) {
		opts.elevateLogLevel = true
	}
}

func requestLogger(r *http.Request) *slog.Logger {
	return logger.FromContextOrDefault(r.Context(), slog.Default())
}

func errorBody(r *http.Request, status int, message string) ErrorResponse {
	return ErrorResponse{Error: message, Code: status, TraceID: GetTraceID(r.Context())}
}

// RespondWithJSON encodes data as the response body with the given status.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		requestLogger(r).Error("failed to encode JSON response", "error", err)
	}
}

// RespondWithError writes an ErrorResponse carrying the request's trace id.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	body := errorBody(r, status, message)
	requestLogger(r).Debug("sending error response",
		"status_code", status,
		"message", message,
		"trace_id", body.TraceID,
		"path", r.URL.Path,
		"method", r.Method)
	RespondWithJSON(w, r, status, body)
}

// errorLevel picks the log level for an error response: ERROR for 5xx, WARN
// for 429 and elevated 4xx, DEBUG otherwise.
func errorLevel(status int, opts responseOptions) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status == http.StatusTooManyRequests:
		return slog.LevelWarn
	case opts.elevateLogLevel && status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}

// RespondWithErrorAndLog sends userMessage to the client and logs err, redacted,
// next to it. The raw error text never reaches the response body.
//
// Parameters:
//   - status: HTTP status code of the response
//   - userMessage: Client-safe message
//   - err: Underlying error, may be nil
//   - opts: Logging options such as WithElevatedLogLevel
func RespondWithErrorAndLog(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	userMessage string,
	err error,
	opts ...ResponseOption,
) {
	var options responseOptions
	for _, opt := range opts {
		opt(&options)
	}

	body := errorBody(r, status, userMessage)
	attrs := []slog.Attr{
		slog.String("trace_id", body.TraceID),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status_code", status),
		slog.String("user_message", userMessage),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("error", redact.Error(err)),
			slog.String("error_type", fmt.Sprintf("%T", err)))
	}

	requestLogger(r).LogAttrs(r.Context(), errorLevel(status, options), "API error response", attrs...)
	RespondWithJSON(w, r, status, body)
}

// RespondNotReady answers 425 Too Early with a Retry-After hint for pollers of
// tasks that have not finished.
func RespondNotReady(w http.ResponseWriter, r *http.Request, message string, retryAfter int) {
	body := errorBody(r, http.StatusTooEarly, message)
	body.RetryAfter = retryAfter
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	RespondWithJSON(w, r, http.StatusTooEarly, body)
}
