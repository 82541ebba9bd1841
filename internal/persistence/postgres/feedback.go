package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/events"
)

// InsertFeedback stores a feedback record and its feedback.recorded event.
// A second record for the same user and session yields ErrDuplicateFeedback.
func (r *Repository) InsertFeedback(ctx context.Context, record domain.FeedbackRecord) error {
	comparison, err := json.Marshal(record.PlannedVsRealized)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO feedback_records (feedback_id, user_id, session_id, session_date, session_title, adherence, sensation, has_pain, pain_area, comment, planned_vs_realized, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	err = r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, stmt,
			record.ID,
			record.UserID,
			record.SessionID,
			record.SessionDate,
			record.SessionTitle,
			string(record.Adherence),
			record.Sensation,
			record.Pain.HasPain,
			nullIfEmpty(record.Pain.Area),
			nullIfEmpty(record.Comment),
			comparison,
			record.CreatedAt,
		); err != nil {
			return err
		}

		return r.insertOutbox(ctx, tx, outboxEvent{
			UserID:        record.UserID,
			AggregateType: "feedback",
			AggregateID:   record.ID,
			EventType:     "feedback.recorded",
			Payload: events.FeedbackRecorded{
				FeedbackID:  record.ID,
				UserID:      record.UserID,
				SessionID:   record.SessionID,
				SessionDate: record.SessionDate,
				Adherence:   string(record.Adherence),
				Sensation:   record.Sensation,
				HasPain:     record.Pain.HasPain,
				PainArea:    record.Pain.Area,
				RecordedAt:  record.CreatedAt,
			},
		})
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateFeedback, record.SessionID)
	}
	return err
}

// FeedbackExists reports whether the user already reviewed the session.
func (r *Repository) FeedbackExists(ctx context.Context, userID, sessionID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM feedback_records WHERE user_id=$1 AND session_id=$2)`,
		userID, sessionID,
	).Scan(&exists)
	return exists, err
}

// ListFeedback returns the user's feedback ordered by creation time descending.
func (r *Repository) ListFeedback(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.FeedbackRecord, *domain.Cursor, error) {
	switch {
	case limit <= 0:
		limit = domain.DefaultFeedbackPage
	case limit > domain.MaxFeedbackPage:
		limit = domain.MaxFeedbackPage
	}

	args := []interface{}{userID}
	query := `SELECT feedback_id, user_id, session_id, session_date, session_title, adherence, sensation, has_pain, COALESCE(pain_area, ''), COALESCE(comment, ''), planned_vs_realized, created_at
        FROM feedback_records
        WHERE user_id=$1`

	if cursor != nil {
		query += " AND (created_at, feedback_id) < ($2, $3)"
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, feedback_id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	records := make([]domain.FeedbackRecord, 0, limit)
	for rows.Next() {
		var (
			rec        domain.FeedbackRecord
			adherence  string
			comparison []byte
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.SessionID,
			&rec.SessionDate,
			&rec.SessionTitle,
			&adherence,
			&rec.Sensation,
			&rec.Pain.HasPain,
			&rec.Pain.Area,
			&rec.Comment,
			&comparison,
			&rec.CreatedAt,
		); err != nil {
			return nil, nil, err
		}
		rec.Adherence = domain.Adherence(adherence)
		if len(comparison) > 0 {
			if err := json.Unmarshal(comparison, &rec.PlannedVsRealized); err != nil {
				return nil, nil, fmt.Errorf("decode planned_vs_realized for %s: %w", rec.ID, err)
			}
		}
		rec.SessionDate = rec.SessionDate.UTC()
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(records) > limit {
		last := records[limit-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
		records = records[:limit]
	}
	return records, next, nil
}
