// Package handler exposes the intake pipeline over HTTP: ticket submission
// and status lookup.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	gwmw "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake"
	apperrors "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/logger"
)

const (
	msgInvalidBody      = "Invalid request body"
	msgBodyTooLarge     = "Request body too large"
	msgInternal         = "Internal server error."
	msgMethodNotAllowed = "Method not allowed"
)

// Submitter is implemented by *pipeline.Submitter.
type Submitter interface {
	Submit(ctx context.Context, identity string, req intake.SubmissionRequest) (*intake.Receipt, error)
	SuccessMessage() string
}

// StatusLooker is implemented by *pipeline.StatusService.
type StatusLooker interface {
	Lookup(ctx context.Context, identity string, req intake.StatusQueryRequest) (*intake.Lookup, error)
}

// Handler serves the intake routes.
type Handler struct {
	submitter Submitter
	status    StatusLooker
	logger    *slog.Logger
}

// New creates a Handler. status may be nil, in which case the status route
// answers 404.
func New(submitter Submitter, status StatusLooker) *Handler {
	return &Handler{
		submitter: submitter,
		status:    status,
		logger:    slog.Default().With("component", "intake-handler"),
	}
}

type submitResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	TicketKey string `json:"ticketKey,omitempty"`
	Error     string `json:"error,omitempty"`
}

type statusResponse struct {
	Found     bool   `json:"found"`
	Status    string `json:"status,omitempty"`
	Reference string `json:"reference,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Submit handles POST /api/v1/tickets.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req intake.SubmissionRequest
	if status, msg, ok := h.decode(r, &req); !ok {
		h.writeJSON(w, status, submitResponse{Error: msg})
		return
	}

	receipt, err := h.submitter.Submit(r.Context(), gwmw.ClientIP(r.Context()), req)
	if err != nil {
		status := h.errorStatus(w, r, err)
		h.writeJSON(w, status, submitResponse{Error: apperrors.Message(err, msgInternal)})
		return
	}
	h.writeJSON(w, http.StatusOK, submitResponse{
		Success:   true,
		Message:   h.submitter.SuccessMessage(),
		TicketKey: receipt.TicketKey,
	})
}

// Status handles POST /api/v1/tickets/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		h.writeJSON(w, http.StatusNotFound, statusResponse{Error: "Status lookup is not available"})
		return
	}
	var req intake.StatusQueryRequest
	if status, msg, ok := h.decode(r, &req); !ok {
		h.writeJSON(w, status, statusResponse{Error: msg})
		return
	}

	l, err := h.status.Lookup(r.Context(), gwmw.ClientIP(r.Context()), req)
	if err != nil {
		status := h.errorStatus(w, r, err)
		h.writeJSON(w, status, statusResponse{Error: apperrors.Message(err, msgInternal)})
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Found: true, Status: l.Status, Reference: l.Reference})
}

// SubmitMethodNotAllowed answers non-POST requests to the submission route.
func (h *Handler) SubmitMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST, OPTIONS")
	h.writeJSON(w, http.StatusMethodNotAllowed, submitResponse{Error: msgMethodNotAllowed})
}

// StatusMethodNotAllowed answers non-POST requests to the status route.
func (h *Handler) StatusMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST, OPTIONS")
	h.writeJSON(w, http.StatusMethodNotAllowed, statusResponse{Error: msgMethodNotAllowed})
}

// decode reads a JSON body into dst. On failure it returns the status and
// caller-facing message to answer with.
func (h *Handler) decode(r *http.Request, dst any) (int, string, bool) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, msgBodyTooLarge, false
		}
		logger.FromContext(r.Context()).Info("undecodable request body",
			"component", "intake-handler", "path", r.URL.Path, "error", err)
		return http.StatusBadRequest, msgInvalidBody, false
	}
	return 0, "", true
}

// errorStatus maps err to a response status, setting Retry-After for
// throttled requests.
func (h *Handler) errorStatus(w http.ResponseWriter, r *http.Request, err error) int {
	status := apperrors.HTTPStatusCode(err)
	var appErr *apperrors.AppError
	if status == http.StatusTooManyRequests && errors.As(err, &appErr) && appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", retryAfterSeconds(appErr.RetryAfter))
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"component", "intake-handler", "path", r.URL.Path, "status", status, "error", err)
	}
	return status
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
