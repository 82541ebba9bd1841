package domain

import (
	"context"
	"fmt"
	"time"
)

// Matcher pairs a recorded activity with the planned session it most likely fulfilled.
type Matcher struct {
	Window time.Duration
}

// FindMatch returns the planned session closest in time to the activity start,
// limited to sessions within the window. Equidistant sessions resolve to the one
// listed first. Returns nil when no session qualifies.
func (m Matcher) FindMatch(activity Activity, sessions []PlannedSession) *PlannedSession {
	var (
		best     *PlannedSession
		bestDiff time.Duration
	)
	for i := range sessions {
		diff := sessions[i].Date.Sub(activity.StartTimestamp)
		if diff < 0 {
			diff = -diff
		}
		if diff > m.Window {
			continue
		}
		if best == nil || diff < bestDiff {
			session := sessions[i]
			best = &session
			bestDiff = diff
		}
	}
	return best
}

// PendingMatch is an unreviewed activity with the planned session it fulfilled.
type PendingMatch struct {
	Activity Activity
	Session  PlannedSession
}

// FindPendingMatch walks the most recent activities newest first, skips the ones
// that already have feedback, and returns the first of up to MatchCandidates
// unreviewed activities that matches a planned session.
func (s *Service) FindPendingMatch(ctx context.Context, userID string) (*PendingMatch, error) {
	plan, err := s.ActivePlan(ctx, userID)
	if err != nil {
		return nil, err
	}

	recent, err := s.activities.ListRecentActivities(ctx, userID, s.opts.MatchScanLimit)
	if err != nil {
		return nil, persistenceErr("list recent activities", err)
	}

	considered := 0
	for _, activity := range recent {
		if considered >= s.opts.MatchCandidates {
			break
		}
		reviewed, err := s.feedback.FeedbackExists(ctx, userID, activity.ExternalID)
		if err != nil {
			return nil, persistenceErr("feedback exists", err)
		}
		if reviewed {
			continue
		}
		considered++

		if session := s.matcher.FindMatch(activity, plan.Sessions); session != nil {
			return &PendingMatch{Activity: activity, Session: *session}, nil
		}
	}
	return nil, fmt.Errorf("%w: no unreviewed activity matches the plan", ErrNotFound)
}
