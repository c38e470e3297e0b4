// Package httpx writes the portal's JSON error envelope.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/bobbygour30/admitcard/internal/platform/requestctx"
)

// Error is the JSON error envelope {error, message, status, request_id, trace_id}.
// Fields carries per-field validation messages when present.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Fields    map[string]string
}

// NewError builds an Error. A zero status becomes 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    oneLine(code, 80),
		Message: oneLine(message, 512),
		Status:  status,
	}
}

// WithFields attaches field-level validation messages.
func (e Error) WithFields(fields map[string]string) Error {
	if len(fields) == 0 {
		return e
	}
	e.Fields = make(map[string]string, len(fields))
	for k, v := range fields {
		e.Fields[k] = oneLine(v, 256)
	}
	return e
}

// WithRequestID overrides the request id taken from the context.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = oneLine(id, 80)
	return e
}

func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

type envelope struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Status    int               `json:"status"`
	RequestID string            `json:"request_id,omitempty"`
	TraceID   string            `json:"trace_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// WriteError writes err as JSON, filling request and trace ids from ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := envelope{
		Error:     err.Code,
		Message:   err.Message,
		Status:    status,
		RequestID: err.RequestID,
		TraceID:   err.TraceID,
		Fields:    err.Fields,
	}
	if body.RequestID == "" {
		body.RequestID = oneLine(middleware.GetReqID(ctx), 80)
	}
	if body.TraceID == "" {
		body.TraceID = oneLine(requestctx.TraceID(ctx), 64)
	}
	WriteJSON(w, status, body)
}

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func oneLine(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
