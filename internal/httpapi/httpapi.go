// Package httpapi exposes internal/service's operations surface over a
// small net/http.ServeMux-based JSON API, strictly for local exercise and
// end-to-end tests. It is not the production HTTP/RPC surface a real
// deployment would sit behind: no auth, no CORS policy beyond a permissive
// default, no rate limiting, no metrics sink beyond logged counters.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/apscustody/labcustody/internal/resolver"
	"github.com/apscustody/labcustody/internal/service"
)

// Handler wires a *service.Service into an http.Handler.
type Handler struct {
	svc *service.Service
	log *zap.SugaredLogger
	mux *http.ServeMux
}

// New builds the route table and returns the resulting http.Handler.
func New(svc *service.Service, log *zap.SugaredLogger) http.Handler {
	h := &Handler{svc: svc, log: log, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /reports", h.handleEmit)
	h.mux.HandleFunc("POST /reports/{id}/revoke", h.handleRevoke)
	h.mux.HandleFunc("POST /reports/{id}/update", h.handleUpdate)
	h.mux.HandleFunc("POST /reports/{id}/share", h.handleShare)
	h.mux.HandleFunc("POST /reports/{id}/unshare", h.handleUnshare)
	h.mux.HandleFunc("GET /reports/{id}", h.handleOpen)
	h.mux.HandleFunc("GET /reports/{id}/state", h.handleStateOf)
	h.mux.HandleFunc("GET /reports/{id}/events", h.handleEvents)
	h.mux.HandleFunc("POST /ca/enroll", h.handleCAEnroll)
	h.mux.HandleFunc("POST /ca/revoke", h.handleCARevoke)
	h.mux.HandleFunc("GET /healthz", h.handleHealthz)
	h.mux.HandleFunc("POST /sd/verify", h.handleSDVerify)

	return h.withLogging(h.mux)
}

func (h *Handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.Infow("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// writeDenial renders a *resolver.DenialError with its oracle-safe message
// and an HTTP status picked from its Kind.
func writeDenial(w http.ResponseWriter, denyErr *resolver.DenialError) {
	status := http.StatusBadRequest
	switch denyErr.Kind {
	case resolver.NotFound, resolver.LedgerMissing:
		status = http.StatusNotFound
	case resolver.NotOwner, resolver.NoGrant, resolver.SoftRevoked, resolver.LabRevokedByCA:
		status = http.StatusForbidden
	case resolver.UnwrapFailed, resolver.AeadFailure, resolver.LedgerMismatch,
		resolver.InvalidEnvelope, resolver.InvalidLabSignature, resolver.InvalidGrantSignature:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, errorBody{Kind: string(denyErr.Kind), Message: denyErr.SafeMessage()})
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Kind: "InputInvalid", Message: msg})
}
