package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/events"
)

const activityColumns = `external_id, user_id, sport_type, name, distance_meters, moving_time_seconds, elapsed_time_seconds, start_timestamp, average_speed, elevation_gain, raw_payload`

// LatestActivity returns the user's most recently started activity, or nil.
func (r *Repository) LatestActivity(ctx context.Context, userID string) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + `
        FROM activities
        WHERE user_id=$1
        ORDER BY start_timestamp DESC
        LIMIT 1`

	activity, err := scanActivity(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &activity, nil
}

// ListRecentActivities returns up to limit activities, newest start first.
func (r *Repository) ListRecentActivities(ctx context.Context, userID string, limit int) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + `
        FROM activities
        WHERE user_id=$1
        ORDER BY start_timestamp DESC, external_id
        LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []domain.Activity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}

// UpsertActivities writes every activity keyed by external id, overwriting
// stored fields, and records an activities.synced event in the same
// transaction. Rows whose fields are unchanged are left untouched, synced_at
// included.
func (r *Repository) UpsertActivities(ctx context.Context, userID string, activities []domain.Activity) (int, error) {
	if len(activities) == 0 {
		return 0, nil
	}

	const stmt = `INSERT INTO activities (` + activityColumns + `, synced_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
        ON CONFLICT (external_id) DO UPDATE SET
            user_id = EXCLUDED.user_id,
            sport_type = EXCLUDED.sport_type,
            name = EXCLUDED.name,
            distance_meters = EXCLUDED.distance_meters,
            moving_time_seconds = EXCLUDED.moving_time_seconds,
            elapsed_time_seconds = EXCLUDED.elapsed_time_seconds,
            start_timestamp = EXCLUDED.start_timestamp,
            average_speed = EXCLUDED.average_speed,
            elevation_gain = EXCLUDED.elevation_gain,
            raw_payload = EXCLUDED.raw_payload,
            synced_at = NOW()
        WHERE (activities.user_id, activities.sport_type, activities.name, activities.distance_meters,
               activities.moving_time_seconds, activities.elapsed_time_seconds, activities.start_timestamp,
               activities.average_speed, activities.elevation_gain, activities.raw_payload)
            IS DISTINCT FROM
              (EXCLUDED.user_id, EXCLUDED.sport_type, EXCLUDED.name, EXCLUDED.distance_meters,
               EXCLUDED.moving_time_seconds, EXCLUDED.elapsed_time_seconds, EXCLUDED.start_timestamp,
               EXCLUDED.average_speed, EXCLUDED.elevation_gain, EXCLUDED.raw_payload)`

	syncedAt := time.Now().UTC()
	payload := events.ActivitiesSynced{
		UserID:      userID,
		Count:       len(activities),
		ExternalIDs: make([]string, 0, len(activities)),
		SyncedAt:    syncedAt,
	}

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		for _, a := range activities {
			raw := a.RawPayload
			if len(raw) == 0 {
				raw = json.RawMessage(`{}`)
			}
			if _, err := tx.Exec(ctx, stmt,
				a.ExternalID,
				userID,
				a.SportType,
				a.Name,
				a.DistanceMeters,
				a.MovingTimeSeconds,
				a.ElapsedTimeSeconds,
				a.StartTimestamp.UTC(),
				a.AverageSpeed,
				a.ElevationGain,
				[]byte(raw),
			); err != nil {
				return fmt.Errorf("upsert activity %s: %w", a.ExternalID, err)
			}

			payload.ExternalIDs = append(payload.ExternalIDs, a.ExternalID)
			if a.StartTimestamp.After(payload.LatestStart) {
				payload.LatestStart = a.StartTimestamp.UTC()
			}
		}

		return r.insertOutbox(ctx, tx, outboxEvent{
			UserID:        userID,
			AggregateType: "activity_sync",
			AggregateID:   userID,
			EventType:     "activities.synced",
			DedupeKey:     fmt.Sprintf("%s:activities.synced:%d", userID, syncedAt.UnixNano()),
			Payload:       payload,
		})
	})
	if err != nil {
		return 0, err
	}
	return len(activities), nil
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var (
		a   domain.Activity
		raw []byte
	)
	if err := row.Scan(
		&a.ExternalID,
		&a.UserID,
		&a.SportType,
		&a.Name,
		&a.DistanceMeters,
		&a.MovingTimeSeconds,
		&a.ElapsedTimeSeconds,
		&a.StartTimestamp,
		&a.AverageSpeed,
		&a.ElevationGain,
		&raw,
	); err != nil {
		return domain.Activity{}, err
	}
	a.StartTimestamp = a.StartTimestamp.UTC()
	a.RawPayload = json.RawMessage(raw)
	return a, nil
}
