package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/trainingsync/internal/observability"
)

// SubmitFeedback validates and stores a feedback record. At most one record is
// kept per user and session id.
func (s *Service) SubmitFeedback(ctx context.Context, record FeedbackRecord) (*FeedbackRecord, error) {
	record.SessionID = strings.TrimSpace(record.SessionID)
	record.Pain.Area = strings.TrimSpace(record.Pain.Area)
	record.Comment = strings.TrimSpace(record.Comment)
	if err := ValidateFeedback(record); err != nil {
		return nil, err
	}

	exists, err := s.feedback.FeedbackExists(ctx, record.UserID, record.SessionID)
	if err != nil {
		return nil, persistenceErr("feedback exists", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateFeedback, record.SessionID)
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if !record.Pain.HasPain {
		record.Pain.Area = ""
	}
	record.SessionDate = record.SessionDate.UTC()
	record.CreatedAt = s.now().UTC()

	if err := s.feedback.InsertFeedback(ctx, record); err != nil {
		return nil, persistenceErr("insert feedback", err)
	}

	observability.RecordFeedback(string(record.Adherence), record.Pain.HasPain)
	s.logger.Info("feedback recorded",
		zap.String("user_id", record.UserID),
		zap.String("session_id", record.SessionID),
		zap.Int("sensation", record.Sensation),
	)
	return &record, nil
}

// Feedback page sizes.
const (
	DefaultFeedbackPage = 20
	MaxFeedbackPage     = 100
)

// ListFeedback returns the user's feedback, newest first. limit defaults to
// DefaultFeedbackPage and is clamped to MaxFeedbackPage.
func (s *Service) ListFeedback(ctx context.Context, userID string, cursor *Cursor, limit int) ([]FeedbackRecord, *Cursor, error) {
	switch {
	case limit <= 0:
		limit = DefaultFeedbackPage
	case limit > MaxFeedbackPage:
		limit = MaxFeedbackPage
	}
	records, next, err := s.feedback.ListFeedback(ctx, userID, cursor, limit)
	if err != nil {
		return nil, nil, persistenceErr("list feedback", err)
	}
	return records, next, nil
}

// ValidateFeedback checks the fields a feedback record must carry.
func ValidateFeedback(record FeedbackRecord) error {
	if strings.TrimSpace(record.UserID) == "" {
		return fmt.Errorf("%w: missing user", ErrAuthentication)
	}
	if record.SessionID == "" {
		return invalid("sessionId", "is required")
	}
	if record.SessionDate.IsZero() {
		return invalid("sessionDate", "is required")
	}
	if record.Sensation < 1 || record.Sensation > 10 {
		return invalid("sensation", "must be between 1 and 10")
	}
	if record.Adherence != "" && !record.Adherence.Valid() {
		return invalid("adherence", "is not a known value")
	}
	if record.PlannedVsRealized.Planned.DurationMin < 0 || record.PlannedVsRealized.Realized.DurationMin < 0 {
		return invalid("plannedVsRealized", "durations must be >= 0")
	}
	return nil
}
