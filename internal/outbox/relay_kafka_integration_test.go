//go:build integration

package outbox_test

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"example.com/trainingsync/internal/consumer"
	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/events"
	"example.com/trainingsync/internal/outbox"
	"example.com/trainingsync/internal/persistence/postgres"
	"example.com/trainingsync/internal/testsupport"
)

type fixedRegistry struct{ id int }

func (r fixedRegistry) EnsureSchema(context.Context, string, string) (int, error) {
	return r.id, nil
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

func TestSyncedActivitiesReachTheConsumer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool := testsupport.StartPostgres(ctx, t)
	broker := testsupport.StartKafka(ctx, t)
	const topic = "training_activity_events"
	createTopic(t, broker, topic)

	repo := postgres.NewRepository(pool)
	_, err := repo.UpsertActivities(ctx, "user-1", []domain.Activity{
		{ExternalID: "a1", UserID: "user-1", SportType: "Run", Name: "Morning run", StartTimestamp: time.Now().Add(-time.Hour).UTC()},
	})
	require.NoError(t, err)

	producer := outbox.NewKafkaProducer([]string{broker})
	defer producer.Close()
	dispatcher := outbox.NewDispatcher(pool, producer, fixedRegistry{id: 5}, zaptest.NewLogger(t), 50*time.Millisecond, 10)
	relayCtx, stopRelay := context.WithCancel(ctx)
	go dispatcher.Start(relayCtx)
	defer func() {
		stopRelay()
		dispatcher.Wait()
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "trainingsync-it",
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MaxWait:     100 * time.Millisecond,
	})
	defer reader.Close()

	received := make(chan consumer.Message, 1)
	consumeCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	proc := consumer.NewProcessor(reader, consumer.HandlerFunc(func(_ context.Context, msg consumer.Message) error {
		received <- msg
		return nil
	}), consumer.WithLogger(zaptest.NewLogger(t)))
	go func() { _ = proc.Run(consumeCtx) }()

	select {
	case msg := <-received:
		require.Equal(t, "activities.synced", msg.EventType)
		require.Equal(t, "user-1", msg.UserID)
		require.Equal(t, 5, msg.SchemaID)

		var event events.ActivitiesSynced
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		require.Equal(t, 1, event.Count)
		require.Equal(t, []string{"a1"}, event.ExternalIDs)
	case <-ctx.Done():
		t.Fatal("event was not relayed to kafka")
	}
}
