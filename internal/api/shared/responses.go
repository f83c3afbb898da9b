package shared

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cpcomms/dispatch/internal/platform/logger"
	"github.com/cpcomms/dispatch/internal/redact"
)

// ErrorClass tells clients how to react to a failure without parsing the message.
type ErrorClass string

// Error classes carried in error responses.
const (
	ClassValidation      ErrorClass = "validation"
	ClassUnauthenticated ErrorClass = "unauthenticated"
	ClassForbidden       ErrorClass = "forbidden"
	ClassNotFound        ErrorClass = "not_found"
	ClassConflict        ErrorClass = "conflict"
	ClassTransient       ErrorClass = "transient"
	ClassInternal        ErrorClass = "internal"
)

// Retryable reports whether a client may retry the same request unchanged.
func (c ErrorClass) Retryable() bool {
	return c == ClassTransient
}

// ErrorResponse defines the standard error response structure.
type ErrorResponse struct {
	Error     string     `json:"error"`
	Class     ErrorClass `json:"class"`
	Retryable bool       `json:"retryable"`
	TraceID   string     `json:"trace_id,omitempty"`
}

// RespondWithJSON writes a JSON response with the given status code and data.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).Error("failed to encode JSON response", "error", err)
	}
}

// RespondWithError writes a JSON error response carrying the request's trace ID.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, class ErrorClass, message string) {
	RespondWithErrorAndLog(w, r, status, class, message, nil)
}

// RespondWithErrorAndLog writes a JSON error response and logs the detailed
// error. Only userMessage reaches the client; err is redacted and logged.
// 5xx responses log at ERROR, everything else at DEBUG.
func RespondWithErrorAndLog(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	class ErrorClass,
	userMessage string,
	err error,
) {
	traceID := GetTraceID(r.Context())

	attrs := []slog.Attr{
		slog.String("trace_id", traceID),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status_code", status),
		slog.String("class", string(class)),
		slog.String("user_message", userMessage),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("error", redact.Error(err)),
			slog.String("error_type", fmt.Sprintf("%T", err)))
	}

	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.FromContext(r.Context()).LogAttrs(r.Context(), level, "API error response", attrs...)

	RespondWithJSON(w, r, status, ErrorResponse{
		Error:     userMessage,
		Class:     class,
		Retryable: class.Retryable(),
		TraceID:   traceID,
	})
}
