// Package events defines the payloads relayed through the outbox.
package events

import "time"

// ActivitiesSynced is emitted when a sync stores provider activities.
type ActivitiesSynced struct {
	UserID      string    `json:"user_id"`
	Count       int       `json:"count"`
	ExternalIDs []string  `json:"external_ids"`
	LatestStart time.Time `json:"latest_start"`
	SyncedAt    time.Time `json:"synced_at"`
}

// FeedbackRecorded is emitted when a feedback record is persisted.
type FeedbackRecorded struct {
	FeedbackID  string    `json:"feedback_id"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	SessionDate time.Time `json:"session_date"`
	Adherence   string    `json:"adherence,omitempty"`
	Sensation   int       `json:"sensation"`
	HasPain     bool      `json:"has_pain"`
	PainArea    string    `json:"pain_area,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}
