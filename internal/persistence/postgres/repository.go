// Package postgres provides Postgres-backed persistence for credentials,
// activities, plans, feedback, and outbox events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository implements the domain repositories on a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks connectivity for health probes.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// withTx runs fn inside a transaction, rolling back on error.
func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type outboxEvent struct {
	UserID        string
	AggregateType string
	AggregateID   string
	EventType     string
	DedupeKey     string
	Payload       interface{}
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, evt outboxEvent) error {
	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[evt.EventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", evt.EventType)
	}

	dedupeKey := evt.DedupeKey
	if dedupeKey == "" {
		dedupeKey = fmt.Sprintf("%s:%s", evt.AggregateID, evt.EventType)
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		evt.UserID,
		evt.AggregateType,
		evt.AggregateID,
		evt.EventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(evt),
		body,
		dedupeKey,
	)
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(outboxEvent) string
}

var eventCatalog = map[string]EventMetadata{
	"activities.synced": {
		Topic:         "training_activity_events",
		SchemaSubject: "training_activity_events-value",
		PartitionKeyFn: func(e outboxEvent) string {
			return e.UserID
		},
	},
	"feedback.recorded": {
		Topic:         "training_feedback_events",
		SchemaSubject: "training_feedback_events-value",
		PartitionKeyFn: func(e outboxEvent) string {
			return fmt.Sprintf("%s:%s", e.UserID, e.AggregateID)
		},
	},
}
