//go:build integration

package events

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/providers"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/triage-dispatch/backend/pkg/config"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	port := 6379
	if value := os.Getenv("TEST_REDIS_PORT"); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			port = intVal
		}
	}

	client, err := redis.NewClient(context.Background(), &config.RedisConfig{
		Host:     os.Getenv("TEST_REDIS_HOST"),
		Port:     port,
		Password: os.Getenv("TEST_REDIS_PASSWORD"),
	})
	require.NoError(t, err, "Failed to create redis client")
	return client
}

func waitForSeverityEvent(t *testing.T, ch <-chan *entities.SeverityEvent) *entities.SeverityEvent {
	t.Helper()
	select {
	case event := <-ch:
		require.NotNil(t, event)
		return event
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for severity event")
		return nil
	}
}

func TestRedisEventBusFanoutIntegration(t *testing.T) {
	if os.Getenv("TEST_REDIS_HOST") == "" {
		t.Skip("Skipping integration test: TEST_REDIS_HOST not set")
	}

	redisClient := newTestRedisClient(t)
	defer redisClient.Close()

	eventBus := NewRedisEventBus(redisClient)
	defer eventBus.Close()

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel1()
	defer cancel2()

	sub1, err := eventBus.Subscribe(ctx1, providers.EventChannelSeverityUpdates)
	require.NoError(t, err)
	sub2, err := eventBus.Subscribe(ctx2, providers.EventChannelSeverityUpdates)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	event := entities.NewSeverityUpdatedEvent(
		entities.RegistrationKey{MRN: "a1b2c3d4", ArrivalTimestamp: "2024-03-04 09:15:00"},
		entities.CategoryCritical,
	)
	require.NoError(t, eventBus.Publish(context.Background(), providers.EventChannelSeverityUpdates, event))

	received1 := waitForSeverityEvent(t, sub1)
	received2 := waitForSeverityEvent(t, sub2)

	assert.Equal(t, event.ID, received1.ID)
	assert.Equal(t, event.ID, received2.ID)
	assert.Equal(t, entities.CategoryCritical, received1.NewCategory)

	// a second bus on the same Redis sees the same stream
	other := NewRedisEventBus(redisClient)
	defer other.Close()
	sub3, err := other.Subscribe(ctx1, providers.EventChannelSeverityUpdates)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, eventBus.Publish(context.Background(), providers.EventChannelSeverityUpdates, event))
	assert.Equal(t, event.ID, waitForSeverityEvent(t, sub3).ID)
}
