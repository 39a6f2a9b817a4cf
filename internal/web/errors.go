package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err), optionally with row errors to return
//  3. Status code is derived from the error type by statusFor
//  4. Error is mapped via core.MapError to get a user-friendly message
//  5. Technical error + context is logged with the request ID
//  6. User message is rendered as JSON, or HTML for browsers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/csvbind/internal/core"
	"github.com/JonMunkholm/csvbind/internal/logging"
	"github.com/JonMunkholm/csvbind/internal/sink"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Action    string         `json:"action,omitempty"`
	Code      string         `json:"code"`
	RequestID string         `json:"request_id,omitempty"`
	Rows      []RowErrorJSON `json:"rows,omitempty"`
}

// respondError logs err and writes the user-facing message. rowErrs are
// included in the response when the request failed on its data.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, rowErrs ...*core.RowError) {
	status := statusFor(err)
	userMsg := core.MapError(err)
	requestID := middleware.GetReqID(r.Context())

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := ErrorPage(userMsg, rowErrs).Render(r.Context(), w); err != nil {
			s.logger.Error("render error page", "error", err)
		}
		return
	}

	s.writeJSON(w, status, ErrorResponse{
		Error:     userMsg.Message,
		Message:   userMsg.Message,
		Action:    userMsg.Action,
		Code:      userMsg.Code,
		RequestID: requestID,
		Rows:      rowErrorsJSON(rowErrs),
	})
}

// statusFor picks the HTTP status of err.
func statusFor(err error) int {
	var (
		exceeded *core.ErrorsExceededError
		rowErr   *core.RowError
		cfgErr   *core.ConfigurationError
		ioErr    *core.IOError
		tooLarge *http.MaxBytesError
	)

	switch {
	case errors.Is(err, core.ErrUnknownSchema):
		return http.StatusNotFound
	case errors.As(err, &exceeded), errors.As(err, &rowErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrEmptyInput), errors.Is(err, errNoFile), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyParses), errors.Is(err, sink.ErrNoSink):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.As(err, &cfgErr):
		if cfgErr.Op == "charset" {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	case errors.As(err, &ioErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// wantsHTML checks if the client prefers an HTML response.
func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}
