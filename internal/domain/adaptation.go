package domain

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const highEffortThreshold = 8

var intenseSessionMarkers = []string{"interval", "tempo", "threshold", "fartlek", "hill", "vo2", "race", "speed"}

// Suggest derives advisory plan adjustments from one feedback record. Each rule
// appends independently; when none fires a single all-clear message is returned.
// The plan is only consulted to name the next intense session and is never modified.
func Suggest(record FeedbackRecord, plan *Plan) []string {
	suggestions := make([]string, 0, 3)

	if record.Sensation >= highEffortThreshold {
		msg := fmt.Sprintf("Perceived effort was very high (%d/10). Consider lightening your next intense session", record.Sensation)
		if next := nextIntenseSession(plan, record); next != nil {
			msg += fmt.Sprintf(" (%s on %s)", next.Title, next.Date.Format("2006-01-02"))
		}
		suggestions = append(suggestions, msg+".")
	}

	if record.Pain.HasPain {
		area := strings.TrimSpace(record.Pain.Area)
		if area == "" {
			area = "an unspecified area"
		}
		suggestions = append(suggestions, fmt.Sprintf("You reported pain in %s. Monitor it and adjust upcoming sessions that load this area.", area))
	}

	if record.Adherence != "" && record.Adherence != AdherenceFollowed {
		suggestions = append(suggestions, fmt.Sprintf("The session was %s. Adjust the intensity or duration of upcoming sessions to match what you were able to do.", record.Adherence))
	}

	if len(suggestions) == 0 {
		suggestions = append(suggestions, "All clear: the session went as expected and your plan stays unchanged.")
	}
	return suggestions
}

func nextIntenseSession(plan *Plan, record FeedbackRecord) *PlannedSession {
	if plan == nil {
		return nil
	}
	for i := range plan.Sessions {
		session := plan.Sessions[i]
		if !session.Date.After(record.SessionDate) {
			continue
		}
		kind := strings.ToLower(session.SessionType + " " + session.Title)
		for _, marker := range intenseSessionMarkers {
			if strings.Contains(kind, marker) {
				return &session
			}
		}
	}
	return nil
}

// Adapt runs the rule engine against the user's stored plan.
func (s *Service) Adapt(ctx context.Context, userID string, record FeedbackRecord) ([]string, error) {
	if err := validateAdaptation(record); err != nil {
		return nil, err
	}
	plan, err := s.ActivePlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	suggestions := Suggest(record, plan)
	s.logger.Debug("adaptation computed", zap.String("user_id", userID), zap.Int("suggestions", len(suggestions)))
	return suggestions, nil
}

func validateAdaptation(record FeedbackRecord) error {
	if record.Sensation < 1 || record.Sensation > 10 {
		return invalid("sensation", "must be between 1 and 10")
	}
	if record.Adherence != "" && !record.Adherence.Valid() {
		return invalid("adherence", "is not a known value")
	}
	return nil
}
