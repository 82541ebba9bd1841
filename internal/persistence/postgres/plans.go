package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"example.com/trainingsync/internal/domain"
)

// ActivePlan returns the user's plan with sessions in plan order, or nil.
func (r *Repository) ActivePlan(ctx context.Context, userID string) (*domain.Plan, error) {
	var plan domain.Plan
	err := r.pool.QueryRow(ctx,
		`SELECT plan_id, user_id, created_at FROM training_plans WHERE user_id=$1`,
		userID,
	).Scan(&plan.ID, &plan.UserID, &plan.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT session_id, session_date, session_type, title, planned_duration_minutes, planned_distance_km
        FROM planned_sessions
        WHERE plan_id=$1
        ORDER BY position`,
		plan.ID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.PlannedSession
		if err := rows.Scan(&s.ID, &s.Date, &s.SessionType, &s.Title, &s.PlannedDurationMinutes, &s.PlannedDistanceKm); err != nil {
			return nil, err
		}
		s.Date = s.Date.UTC()
		plan.Sessions = append(plan.Sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	plan.CreatedAt = plan.CreatedAt.UTC()
	return &plan, nil
}

// ReplacePlan swaps the user's active plan for plan.
func (r *Repository) ReplacePlan(ctx context.Context, plan domain.Plan) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM training_plans WHERE user_id=$1`, plan.UserID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO training_plans (plan_id, user_id, created_at) VALUES ($1,$2,$3)`,
			plan.ID, plan.UserID, plan.CreatedAt,
		); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, s := range plan.Sessions {
			batch.Queue(
				`INSERT INTO planned_sessions (plan_id, position, session_id, session_date, session_type, title, planned_duration_minutes, planned_distance_km)
                VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				plan.ID, i, s.ID, s.Date.UTC(), s.SessionType, s.Title, s.PlannedDurationMinutes, s.PlannedDistanceKm,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}
