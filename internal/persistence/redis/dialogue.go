// Package redis keeps in-progress feedback dialogues so a reconnecting client
// can resume where it left off.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"example.com/trainingsync/internal/domain"
)

const defaultKeyPrefix = "trainingsync:dialogue:"

// DialogueStore persists dialogue snapshots as JSON values with a TTL.
type DialogueStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewDialogueStore returns a store writing under prefix. Snapshots expire ttl
// after their last update.
func NewDialogueStore(client goredis.UniversalClient, prefix string, ttl time.Duration) *DialogueStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DialogueStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *DialogueStore) key(userID string) string {
	return s.prefix + userID
}

// LoadDialogue returns the user's open dialogue, or nil when none is stored.
func (s *DialogueStore) LoadDialogue(ctx context.Context, userID string) (*domain.DialogueSnapshot, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var snapshot domain.DialogueSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decode dialogue for %s: %w", userID, err)
	}
	return &snapshot, nil
}

// SaveDialogue overwrites the user's snapshot and refreshes its TTL.
func (s *DialogueStore) SaveDialogue(ctx context.Context, snapshot domain.DialogueSnapshot) error {
	if snapshot.UserID == "" {
		return errors.New("dialogue snapshot without user")
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(snapshot.UserID), raw, s.ttl).Err()
}

// DeleteDialogue removes the user's snapshot. Deleting a missing key is not an error.
func (s *DialogueStore) DeleteDialogue(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.key(userID)).Err()
}

// Ping checks connectivity for health probes.
func (s *DialogueStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
