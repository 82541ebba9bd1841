package api

import (
	"net/http"
	"time"

	"example.com/trainingsync/internal/domain"
)

func (h *Handler) adapt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req FeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	record, err := req.toRecord(userID, false)
	if err != nil {
		h.fail(w, r, "invalid adaptation request", err)
		return
	}

	suggestions, err := h.service.Adapt(r.Context(), userID, record)
	if err != nil {
		h.fail(w, r, "adaptation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, AdaptResponse{Success: true, Suggestions: suggestions})
}

func (h *Handler) plan(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		h.replacePlan(w, r)
	case http.MethodGet:
		h.getPlan(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) replacePlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req PlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	plan := domain.Plan{UserID: userID, Sessions: make([]domain.PlannedSession, 0, len(req.Sessions))}
	for _, s := range req.Sessions {
		date, err := domain.ParseDate(s.Date)
		if err != nil {
			h.fail(w, r, "invalid plan", &domain.ValidationError{Field: "sessions.date", Reason: "must be a date or RFC 3339 timestamp"})
			return
		}
		plan.Sessions = append(plan.Sessions, domain.PlannedSession{
			ID:                     s.ID,
			Date:                   date,
			SessionType:            s.SessionType,
			Title:                  s.Title,
			PlannedDurationMinutes: s.PlannedDurationMinutes,
			PlannedDistanceKm:      s.PlannedDistanceKm,
		})
	}

	saved, err := h.service.ReplacePlan(r.Context(), plan)
	if err != nil {
		h.fail(w, r, "plan not stored", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanView(*saved))
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	plan, err := h.service.ActivePlan(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "plan lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanView(*plan))
}

// AdaptResponse lists the advisory suggestions for one feedback record.
type AdaptResponse struct {
	Success     bool     `json:"success"`
	Suggestions []string `json:"suggestions"`
}

// PlanRequest is the payload for PUT /training/plan.
type PlanRequest struct {
	Sessions []SessionInput `json:"sessions"`
}

// SessionInput is one planned session as sent by the plan generator.
type SessionInput struct {
	ID                     string   `json:"id"`
	Date                   string   `json:"date"`
	SessionType            string   `json:"sessionType"`
	Title                  string   `json:"title"`
	PlannedDurationMinutes int      `json:"plannedDurationMinutes"`
	PlannedDistanceKm      *float64 `json:"plannedDistanceKm,omitempty"`
}

// SessionView exposes a planned session.
type SessionView struct {
	ID                     string    `json:"id"`
	Date                   time.Time `json:"date"`
	SessionType            string    `json:"sessionType"`
	Title                  string    `json:"title"`
	PlannedDurationMinutes int       `json:"plannedDurationMinutes"`
	PlannedDistanceKm      *float64  `json:"plannedDistanceKm,omitempty"`
}

// PlanView exposes the active plan.
type PlanView struct {
	ID        string        `json:"id"`
	Sessions  []SessionView `json:"sessions"`
	CreatedAt time.Time     `json:"createdAt"`
}

func toSessionView(session domain.PlannedSession) SessionView {
	return SessionView{
		ID:                     session.ID,
		Date:                   session.Date,
		SessionType:            session.SessionType,
		Title:                  session.Title,
		PlannedDurationMinutes: session.PlannedDurationMinutes,
		PlannedDistanceKm:      session.PlannedDistanceKm,
	}
}

func toPlanView(plan domain.Plan) PlanView {
	view := PlanView{ID: plan.ID, CreatedAt: plan.CreatedAt, Sessions: make([]SessionView, 0, len(plan.Sessions))}
	for _, session := range plan.Sessions {
		view.Sessions = append(view.Sessions, toSessionView(session))
	}
	return view
}
