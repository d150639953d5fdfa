package shared

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/phrazzld/firmgen/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondWithJSON(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		data         interface{}
		expectedBody string
	}{
		{
			name:         "task accepted",
			status:       http.StatusAccepted,
			data:         map[string]string{"task_id": "task_1_abc"},
			expectedBody: `{"task_id":"task_1_abc"}`,
		},
		{
			name:         "empty response",
			status:       http.StatusOK,
			data:         map[string]interface{}{},
			expectedBody: `{}`,
		},
		{
			name:         "nil response",
			status:       http.StatusOK,
			data:         nil,
			expectedBody: `null`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
			w := httptest.NewRecorder()

			RespondWithJSON(w, req, tc.status, tc.data)

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, tc.expectedBody+"\n", w.Body.String())
		})
	}
}

func TestRespondWithJSON_EncodingErrorUsesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req = req.WithContext(logger.WithLogger(req.Context(), log))
	w := httptest.NewRecorder()

	RespondWithJSON(w, req, http.StatusOK, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, buf.String(), "failed to encode JSON response")
}

func TestRespondWithError(t *testing.T) {
	t.Run("with trace id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/x", nil)
		req = req.WithContext(WithTraceID(req.Context(), "test-trace-id"))
		w := httptest.NewRecorder()

		RespondWithError(w, req, http.StatusNotFound, "Task not found")

		assert.Equal(t, http.StatusNotFound, w.Code)
		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Task not found", response.Error)
		assert.Equal(t, "test-trace-id", response.TraceID)
		assert.Zero(t, response.RetryAfter)
	})

	t.Run("without trace id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/x", nil)
		w := httptest.NewRecorder()

		RespondWithError(w, req, http.StatusBadRequest, "Bad request")

		assert.NotContains(t, w.Body.String(), "trace_id")
	})
}

func TestRespondNotReady(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/tasks/x/result", nil)
	w := httptest.NewRecorder()

	RespondNotReady(w, req, "Task is still processing", 10)

	assert.Equal(t, http.StatusTooEarly, w.Code)
	assert.Equal(t, "10", w.Header().Get("Retry-After"))
	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 10, response.RetryAfter)
}

func TestRespondWithErrorAndLog(t *testing.T) {
	tests := []struct {
		name             string
		statusCode       int
		err              error
		expectedLogLevel string
		elevate          bool
	}{
		{name: "server error", statusCode: http.StatusInternalServerError, err: errors.New("disk full"), expectedLogLevel: "ERROR"},
		{name: "client error", statusCode: http.StatusBadRequest, err: errors.New("no instruction"), expectedLogLevel: "DEBUG"},
		{name: "elevated client error", statusCode: http.StatusBadRequest, err: errors.New("bad upload"), expectedLogLevel: "WARN", elevate: true},
		{name: "too many requests", statusCode: http.StatusTooManyRequests, err: errors.New("slow down"), expectedLogLevel: "WARN"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf strings.Builder
			log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			ctx := logger.WithLogger(WithTraceID(context.Background(), "test-trace-id"), log)
			req := httptest.NewRequest(http.MethodPost, "/api/generate/async", nil).WithContext(ctx)
			w := httptest.NewRecorder()

			var opts []ResponseOption
			if tc.elevate {
				opts = append(opts, WithElevatedLogLevel())
			}
			RespondWithErrorAndLog(w, req, tc.statusCode, "Request failed", tc.err, opts...)

			assert.Equal(t, tc.statusCode, w.Code)
			assert.NotContains(t, w.Body.String(), tc.err.Error())

			out := buf.String()
			assert.Contains(t, out, "level="+tc.expectedLogLevel)
			assert.Contains(t, out, "trace_id=test-trace-id")
			assert.Contains(t, out, "error_type=")
		})
	}
}

func TestValidateRequest(t *testing.T) {
	type form struct {
		Instruction string `form:"instruction" validate:"required"`
		Status      string `form:"status" validate:"omitempty,oneof=pending completed"`
	}

	assert.NoError(t, ValidateRequest(form{Instruction: "blink"}))

	err := ValidateRequest(form{})
	require.Error(t, err)
	assert.Equal(t, "Invalid instruction: required field", err.Error())

	err = ValidateRequest(form{Instruction: "x", Status: "weird"})
	require.Error(t, err)
	assert.Equal(t, "Invalid status: invalid value", err.Error())
}

func TestTraceID(t *testing.T) {
	ctx := SetTraceID(context.Background())
	id := GetTraceID(ctx)
	assert.Len(t, id, 32)
	assert.NotEqual(t, id, NewTraceID())
	assert.Empty(t, GetTraceID(context.Background()))
}
