// Package api exposes HTTP handlers for the reconciliation service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"example.com/trainingsync/internal/auth"
	"example.com/trainingsync/internal/domain"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/sync", h.sync)
	mux.HandleFunc("/provider/authorize", h.authorize)
	mux.HandleFunc("/provider/exchange", h.exchange)
	mux.HandleFunc("/feedback", h.feedback)
	mux.HandleFunc("/feedback/pending", h.pendingFeedback)
	mux.HandleFunc("/training/adapt", h.adapt)
	mux.HandleFunc("/training/plan", h.plan)
	mux.HandleFunc("/dialogue", h.dialogue)
	mux.HandleFunc("/dialogue/answer", h.answerDialogue)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	result, err := h.service.Sync(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "sync failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Message: "sync completed", Count: result.Count})
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	url, state, err := h.service.Credentials().Authorize(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "provider authorization failed", err)
		return
	}
	writeJSON(w, http.StatusOK, AuthorizeResponse{URL: url, State: state})
}

func (h *Handler) exchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req ExchangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cred, err := h.service.Credentials().Exchange(r.Context(), userID, req.Code, req.State)
	if err != nil {
		h.fail(w, r, "provider exchange failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ExchangeResponse{
		AthleteID: cred.ExternalAthleteID,
		ExpiresAt: time.Unix(cred.ExpiresAt, 0).UTC(),
	})
}

// SyncResponse is the body of a successful sync.
type SyncResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// AuthorizeResponse carries the provider consent URL.
type AuthorizeResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// ExchangeRequest is the payload for POST /provider/exchange.
type ExchangeRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// ExchangeResponse describes the linked provider account.
type ExchangeResponse struct {
	AthleteID string    `json:"athleteId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	return userID, true
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("unable to parse body: " + err.Error())
	}
	return nil
}

// statusFor maps domain errors onto HTTP status codes and error types.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, domain.ErrAuthentication):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrDuplicateFeedback):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrExternalProvider):
		return http.StatusInternalServerError, "provider_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, code := statusFor(err)
	h.log(r, status, msg, err)
	writeError(w, status, code, err.Error())
}

func (h *Handler) log(r *http.Request, status int, msg string, err error) {
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("user_id", auth.UserID(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, fields...)
		return
	}
	h.logger.Warn(msg, fields...)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
