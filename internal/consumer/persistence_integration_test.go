//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/trainingsync/internal/testsupport"
)

func TestPersistenceHandlerStoresEvent(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)

	handler := NewPersistenceHandler(pool)

	payload := json.RawMessage(`{"user_id":"user-1","count":3,"external_ids":["a1","a2","a3"]}`)
	msg := Message{
		EventType:     "activities.synced",
		UserID:        "user-1",
		SchemaID:      42,
		SchemaSubject: "training_activity_events-value",
		Topic:         "training_activity_events",
		Partition:     0,
		Offset:        5,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}

	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg), "redelivery is ignored")

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM training_event_log`).Scan(&count))
	require.Equal(t, 1, count)

	var (
		storedPayload []byte
		userID        string
		schemaID      int
	)
	err := pool.QueryRow(ctx, `SELECT payload, user_id, schema_id FROM training_event_log LIMIT 1`).Scan(&storedPayload, &userID, &schemaID)
	require.NoError(t, err)
	require.JSONEq(t, string(payload), string(storedPayload))
	require.Equal(t, "user-1", userID)
	require.Equal(t, 42, schemaID)
}
