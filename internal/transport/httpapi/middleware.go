package httpapi

import (
	"net/http"
	"strings"
	"time"

	"applicant-portal/internal/common/auth"
	"applicant-portal/internal/common/errors"

	"github.com/go-chi/chi/v5/middleware"
)

// authenticate resolves the caller's owner id. Nothing else about the
// caller is trusted downstream.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := h.credential(r)
		if credential == "" {
			h.writeError(w, r, errors.NewUnauthenticatedError("missing credentials"))
			return
		}

		id, err := h.cfg.Identity.Resolve(r.Context(), credential)
		if err != nil {
			if !errors.IsCode(err, errors.ErrCodeUnauthenticated) {
				h.logger.Warn("identity provider unavailable", map[string]interface{}{
					"error": err.Error(),
				})
			}
			h.writeError(w, r, errors.NewUnauthenticatedError("credentials could not be verified"))
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func (h *Handler) credential(r *http.Request) string {
	if h.cfg.CredentialHeader != "" {
		return strings.TrimSpace(r.Header.Get(h.cfg.CredentialHeader))
	}
	authz := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(authz) > len(prefix) && strings.EqualFold(authz[:len(prefix)], prefix) {
		return strings.TrimSpace(authz[len(prefix):])
	}
	return ""
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
			return
		}
		h.logger.Info("http request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"durationMs": time.Since(started).Milliseconds(),
			"requestId":  middleware.GetReqID(r.Context()),
		})
	})
}
