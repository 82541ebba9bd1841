package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"example.com/trainingsync/internal/domain"
)

// GetCredential returns the user's provider grant, or nil when none is linked.
func (r *Repository) GetCredential(ctx context.Context, userID string) (*domain.Credential, error) {
	const query = `SELECT user_id, access_token, refresh_token, expires_at, COALESCE(athlete_id, '')
        FROM provider_credentials WHERE user_id=$1`

	var cred domain.Credential
	err := r.pool.QueryRow(ctx, query, userID).Scan(&cred.UserID, &cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt, &cred.ExternalAthleteID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

// SaveCredential inserts or replaces the user's provider grant. An empty athlete
// id keeps the stored one.
func (r *Repository) SaveCredential(ctx context.Context, cred domain.Credential) error {
	const stmt = `INSERT INTO provider_credentials (user_id, access_token, refresh_token, expires_at, athlete_id, updated_at)
        VALUES ($1,$2,$3,$4,$5,NOW())
        ON CONFLICT (user_id) DO UPDATE SET
            access_token = EXCLUDED.access_token,
            refresh_token = EXCLUDED.refresh_token,
            expires_at = EXCLUDED.expires_at,
            athlete_id = COALESCE(EXCLUDED.athlete_id, provider_credentials.athlete_id),
            updated_at = NOW()`

	_, err := r.pool.Exec(ctx, stmt, cred.UserID, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt, nullIfEmpty(cred.ExternalAthleteID))
	return err
}
