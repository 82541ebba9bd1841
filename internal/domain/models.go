package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Credential is the external provider grant held for a user.
type Credential struct {
	UserID            string
	AccessToken       string
	RefreshToken      string
	ExpiresAt         int64 // unix seconds
	ExternalAthleteID string
}

// ExpiresWithin reports whether the access token expires before now+buffer.
func (c Credential) ExpiresWithin(now time.Time, buffer time.Duration) bool {
	return c.ExpiresAt*1000 < now.Add(buffer).UnixMilli()
}

// Activity is a workout recorded by the external provider.
type Activity struct {
	ExternalID         string
	UserID             string
	SportType          string
	Name               string
	DistanceMeters     float64
	MovingTimeSeconds  int
	ElapsedTimeSeconds int
	StartTimestamp     time.Time
	AverageSpeed       float64
	ElevationGain      float64
	RawPayload         json.RawMessage
}

// PlannedSession is one entry of a generated training plan.
type PlannedSession struct {
	ID                     string
	Date                   time.Time
	SessionType            string
	Title                  string
	PlannedDurationMinutes int
	PlannedDistanceKm      *float64
}

// Plan is the ordered list of sessions supplied by the plan generator.
type Plan struct {
	ID        string
	UserID    string
	Sessions  []PlannedSession
	CreatedAt time.Time
}

// Adherence captures how closely the athlete followed a planned session.
type Adherence string

const (
	AdherenceFollowed Adherence = "followed exactly"
	AdherencePartial  Adherence = "partially adapted"
	AdherenceSkipped  Adherence = "not followed"
)

// Adherences lists the accepted adherence answers in display order.
var Adherences = []Adherence{AdherenceFollowed, AdherencePartial, AdherenceSkipped}

// Valid reports whether a is one of the known adherence values.
func (a Adherence) Valid() bool {
	for _, known := range Adherences {
		if a == known {
			return true
		}
	}
	return false
}

// Pain describes discomfort reported after a session.
type Pain struct {
	HasPain bool   `json:"hasPain"`
	Area    string `json:"area,omitempty"`
}

// Effort is a duration/distance pair, planned or realized.
type Effort struct {
	DurationMin int      `json:"durationMin"`
	DistanceKm  *float64 `json:"distanceKm,omitempty"`
}

// Comparison puts planned and realized effort side by side.
type Comparison struct {
	Planned  Effort `json:"planned"`
	Realized Effort `json:"realized"`
}

// FeedbackRecord is the subjective feedback collected for one matched activity.
type FeedbackRecord struct {
	ID                string
	UserID            string
	SessionID         string
	SessionDate       time.Time
	SessionTitle      string
	Adherence         Adherence
	Sensation         int
	Pain              Pain
	Comment           string
	PlannedVsRealized Comparison
	CreatedAt         time.Time
}

// Cursor models the feedback pagination token.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// CompareEffort builds the planned-versus-realized view of a matched pair.
func CompareEffort(activity Activity, session PlannedSession) Comparison {
	realized := Effort{
		DurationMin: int(math.Round(float64(activity.MovingTimeSeconds) / 60)),
	}
	if activity.DistanceMeters > 0 {
		km := math.Round(activity.DistanceMeters/100) / 10
		realized.DistanceKm = &km
	}
	return Comparison{
		Planned: Effort{
			DurationMin: session.PlannedDurationMinutes,
			DistanceKm:  session.PlannedDistanceKm,
		},
		Realized: realized,
	}
}

// ParseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
func ParseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
