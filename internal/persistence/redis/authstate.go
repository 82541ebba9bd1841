package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultStatePrefix = "trainingsync:oauth-state:"

// AuthStateStore keeps the pending OAuth state per user until the provider
// redirects back. A newer authorization replaces the older state.
type AuthStateStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewAuthStateStore returns a store writing under prefix with states expiring after ttl.
func NewAuthStateStore(client goredis.UniversalClient, prefix string, ttl time.Duration) *AuthStateStore {
	if prefix == "" {
		prefix = defaultStatePrefix
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &AuthStateStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *AuthStateStore) SaveAuthState(ctx context.Context, userID, state string) error {
	return s.client.Set(ctx, s.prefix+userID, state, s.ttl).Err()
}

// TakeAuthState returns and deletes the pending state, or "" when none is stored.
func (s *AuthStateStore) TakeAuthState(ctx context.Context, userID string) (string, error) {
	state, err := s.client.GetDel(ctx, s.prefix+userID).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return state, err
}
