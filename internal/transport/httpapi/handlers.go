package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"applicant-portal/internal/application/lifecycle"
	"applicant-portal/internal/common/auth"
	"applicant-portal/internal/common/errors"
	"applicant-portal/internal/models"

	"github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1 << 20

// SaveRequest is the body of PUT /application. Status may only name an
// applicant intent; "submitted" goes through the submission gate.
type SaveRequest struct {
	Fields       map[string]any `json:"fields"`
	Status       string         `json:"status,omitempty"`
	ConsentGiven *bool          `json:"consentGiven,omitempty"`
}

// SubmitRequest is the body of POST /application/submit.
type SubmitRequest struct {
	Fields       map[string]any `json:"fields"`
	ConsentGiven *bool          `json:"consentGiven,omitempty"`
}

// ErrorResponse is the envelope for every non-2xx reply.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	RequestID string                 `json:"requestId,omitempty"`
}

func (h *Handler) getApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.ops.GetApplication(r.Context(), owner(r))
	h.respond(w, r, app, err)
}

func (h *Handler) saveApplication(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	fields, err := models.NormalizeFields(req.Fields)
	if err != nil {
		h.writeError(w, r, errors.NewInvalidInputError(err.Error()))
		return
	}

	intent := models.StatusInProgress
	if req.Status != "" {
		if intent, err = lifecycle.ParseIntent(req.Status); err != nil {
			h.writeError(w, r, errors.NewInvalidTransitionError(err.Error()))
			return
		}
	}

	var app *models.Application
	if intent == models.StatusSubmitted {
		app, err = h.ops.SubmitApplication(r.Context(), owner(r), fields, h.consent(fields, req.ConsentGiven))
	} else {
		if name := h.ops.Catalog().ConsentField; req.ConsentGiven != nil && name != "" {
			fields[name] = *req.ConsentGiven
		}
		app, err = h.ops.SaveApplication(r.Context(), owner(r), fields)
	}
	h.respond(w, r, app, err)
}

func (h *Handler) submitApplication(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	fields, err := models.NormalizeFields(req.Fields)
	if err != nil {
		h.writeError(w, r, errors.NewInvalidInputError(err.Error()))
		return
	}

	app, err := h.ops.SubmitApplication(r.Context(), owner(r), fields, h.consent(fields, req.ConsentGiven))
	h.respond(w, r, app, err)
}

func (h *Handler) confirmAttendance(w http.ResponseWriter, r *http.Request) {
	app, err := h.ops.ConfirmAttendance(r.Context(), owner(r))
	h.respond(w, r, app, err)
}

func (h *Handler) declineAttendance(w http.ResponseWriter, r *http.Request) {
	app, err := h.ops.DeclineAttendance(r.Context(), owner(r))
	h.respond(w, r, app, err)
}

func (h *Handler) getCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ops.Catalog())
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.cfg.Version,
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Ready != nil {
		if err := h.cfg.Ready(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", map[string]interface{}{"error": err.Error()})
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"time":   time.Now().Format(time.RFC3339),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// consent prefers the explicit flag and falls back to the catalog's
// consent checkbox inside fields.
func (h *Handler) consent(fields models.Fields, explicit *bool) bool {
	if explicit != nil {
		return *explicit
	}
	given, _ := fields[h.ops.Catalog().ConsentField].(bool)
	return given
}

func owner(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok {
		return id.OwnerID
	}
	return ""
}

func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.NewInvalidInputError(fmt.Sprintf("decode body: %v", err))
	}
	return nil
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, app *models.Application, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := errors.Normalize(err)
	status := errors.HTTPStatus(stdErr.Code)

	body := ErrorBody{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Metadata:  stdErr.Metadata,
		RequestID: middleware.GetReqID(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		// driver messages stay in the logs
		body.Details = ""
		body.Metadata = nil
		if stdErr.Code == errors.ErrCodeInternal {
			body.Message = "Internal server error"
		}
	}
	writeJSON(w, status, ErrorResponse{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
