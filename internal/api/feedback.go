package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/persistence"
)

func (h *Handler) feedback(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createFeedback(w, r)
	case http.MethodGet:
		h.listFeedback(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req FeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	record, err := req.toRecord(userID, true)
	if err != nil {
		h.fail(w, r, "invalid feedback", err)
		return
	}

	saved, err := h.service.SubmitFeedback(r.Context(), record)
	if err != nil {
		h.fail(w, r, "feedback not recorded", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFeedbackView(*saved))
}

func (h *Handler) listFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	records, next, err := h.service.ListFeedback(r.Context(), userID, cursor, limit)
	if err != nil {
		h.fail(w, r, "list feedback failed", err)
		return
	}

	items := make([]FeedbackView, 0, len(records))
	for _, record := range records {
		items = append(items, toFeedbackView(record))
	}
	writeJSON(w, http.StatusOK, ListFeedbackResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) pendingFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	match, err := h.service.FindPendingMatch(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "pending match lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, PendingMatchResponse{
		Activity:          toActivityView(match.Activity),
		Session:           toSessionView(match.Session),
		PlannedVsRealized: domain.CompareEffort(match.Activity, match.Session),
	})
}

// FeedbackRequest is the payload for POST /feedback and POST /training/adapt.
type FeedbackRequest struct {
	SessionID         string             `json:"sessionId"`
	SessionDate       string             `json:"sessionDate"`
	SessionTitle      string             `json:"sessionTitle"`
	Adherence         string             `json:"adherence"`
	Sensation         *int               `json:"sensation"`
	Pain              *domain.Pain       `json:"pain"`
	Comment           string             `json:"comment"`
	PlannedVsRealized *domain.Comparison `json:"plannedVsRealized"`
}

// toRecord converts the request. When strict is set the session identity and
// pain report are required in addition to the sensation.
func (req FeedbackRequest) toRecord(userID string, strict bool) (domain.FeedbackRecord, error) {
	record := domain.FeedbackRecord{
		UserID:       userID,
		SessionID:    strings.TrimSpace(req.SessionID),
		SessionTitle: req.SessionTitle,
		Adherence:    domain.Adherence(req.Adherence),
		Comment:      req.Comment,
	}

	if strict {
		if record.SessionID == "" {
			return record, &domain.ValidationError{Field: "sessionId", Reason: "is required"}
		}
		if strings.TrimSpace(req.SessionDate) == "" {
			return record, &domain.ValidationError{Field: "sessionDate", Reason: "is required"}
		}
	}
	if req.Sensation == nil {
		return record, &domain.ValidationError{Field: "sensation", Reason: "is required"}
	}
	if strict && req.Pain == nil {
		return record, &domain.ValidationError{Field: "pain", Reason: "is required"}
	}

	if req.SessionDate != "" {
		date, err := domain.ParseDate(req.SessionDate)
		if err != nil {
			return record, &domain.ValidationError{Field: "sessionDate", Reason: "must be a date or RFC 3339 timestamp"}
		}
		record.SessionDate = date
	}
	record.Sensation = *req.Sensation
	if req.Pain != nil {
		record.Pain = *req.Pain
	}
	if req.PlannedVsRealized != nil {
		record.PlannedVsRealized = *req.PlannedVsRealized
	}
	return record, nil
}

// FeedbackView exposes a stored feedback record.
type FeedbackView struct {
	ID                string            `json:"id"`
	SessionID         string            `json:"sessionId"`
	SessionDate       time.Time         `json:"sessionDate"`
	SessionTitle      string            `json:"sessionTitle,omitempty"`
	Adherence         string            `json:"adherence,omitempty"`
	Sensation         int               `json:"sensation"`
	Pain              domain.Pain       `json:"pain"`
	Comment           string            `json:"comment,omitempty"`
	PlannedVsRealized domain.Comparison `json:"plannedVsRealized"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// ListFeedbackResponse packages list results.
type ListFeedbackResponse struct {
	Items      []FeedbackView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ActivityView exposes a synced activity.
type ActivityView struct {
	ExternalID         string    `json:"externalId"`
	SportType          string    `json:"sportType"`
	Name               string    `json:"name"`
	DistanceMeters     float64   `json:"distanceMeters"`
	MovingTimeSeconds  int       `json:"movingTimeSeconds"`
	ElapsedTimeSeconds int       `json:"elapsedTimeSeconds"`
	StartTimestamp     time.Time `json:"startTimestamp"`
	AverageSpeed       float64   `json:"averageSpeed"`
	ElevationGain      float64   `json:"elevationGain"`
}

// PendingMatchResponse is the unreviewed pair awaiting feedback.
type PendingMatchResponse struct {
	Activity          ActivityView      `json:"activity"`
	Session           SessionView       `json:"session"`
	PlannedVsRealized domain.Comparison `json:"plannedVsRealized"`
}

func toFeedbackView(record domain.FeedbackRecord) FeedbackView {
	return FeedbackView{
		ID:                record.ID,
		SessionID:         record.SessionID,
		SessionDate:       record.SessionDate,
		SessionTitle:      record.SessionTitle,
		Adherence:         string(record.Adherence),
		Sensation:         record.Sensation,
		Pain:              record.Pain,
		Comment:           record.Comment,
		PlannedVsRealized: record.PlannedVsRealized,
		CreatedAt:         record.CreatedAt,
	}
}

func toActivityView(activity domain.Activity) ActivityView {
	return ActivityView{
		ExternalID:         activity.ExternalID,
		SportType:          activity.SportType,
		Name:               activity.Name,
		DistanceMeters:     activity.DistanceMeters,
		MovingTimeSeconds:  activity.MovingTimeSeconds,
		ElapsedTimeSeconds: activity.ElapsedTimeSeconds,
		StartTimestamp:     activity.StartTimestamp,
		AverageSpeed:       activity.AverageSpeed,
		ElevationGain:      activity.ElevationGain,
	}
}
