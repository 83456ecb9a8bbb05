package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, 16, cfg.Dispatch.CapacityPerDay)
	assert.False(t, cfg.Dispatch.EnforceCapacity)
	assert.Equal(t, 30*time.Minute, cfg.Dispatch.SessionTTL)
	assert.Equal(t, time.Minute, cfg.Dispatch.SweepInterval)
	assert.Equal(t, entities.DefaultBucketSchedule, cfg.Dispatch.TimeBuckets)
	assert.Equal(t, 5*time.Second, cfg.Classifier.Timeout)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.IsDev())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Mongo")
	t.Setenv("MONGO_URI", "mongodb://mongo:27017")
	t.Setenv("BOOKING_CAPACITY_PER_DAY", "20")
	t.Setenv("BOOKING_ENFORCE_CAPACITY", "true")
	t.Setenv("DISPATCH_SESSION_TTL", "5m")
	t.Setenv("TIME_BUCKETS", "Morning=8-12,Afternoon=12-18")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMongo, cfg.Store.Driver)
	assert.Equal(t, "mongodb://mongo:27017", cfg.Mongo.URI)
	assert.Equal(t, 20, cfg.Dispatch.CapacityPerDay)
	assert.True(t, cfg.Dispatch.EnforceCapacity)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.SessionTTL)
	assert.Equal(t, entities.BucketMorning, cfg.Dispatch.TimeBuckets.BucketOfHour(8))
	assert.Equal(t, entities.BucketAfternoon, cfg.Dispatch.TimeBuckets.BucketOfHour(12))
	assert.Equal(t, "localhost:6380", cfg.Redis.RedisAddr())
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", filepath.Join(dir, "absent.env"))
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	})

	t.Run("values are read from the file", func(t *testing.T) {
		path := filepath.Join(dir, "ward.env")
		content := "STORE_DRIVER=postgres\nCORS_ALLOWED_ORIGINS=https://ward.example, ,https://desk.example\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := loadFrom(path)
		require.NoError(t, err)
		assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
		assert.Equal(t, []string{"https://ward.example", "https://desk.example"}, cfg.Server.AllowedOrigins)
	})

	t.Run("unreadable file is an error", func(t *testing.T) {
		_, err := loadFrom(dir)
		assert.ErrorContains(t, err, "failed to read config file")
	})
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("unknown store driver", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "cassandra")
		_, err := Load()
		assert.ErrorContains(t, err, "STORE_DRIVER")
	})

	t.Run("zero capacity", func(t *testing.T) {
		t.Setenv("BOOKING_CAPACITY_PER_DAY", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "BOOKING_CAPACITY_PER_DAY")
	})

	t.Run("malformed buckets", func(t *testing.T) {
		t.Setenv("TIME_BUCKETS", "Morning=nine-twelve")
		_, err := Load()
		assert.ErrorContains(t, err, "TIME_BUCKETS")
	})
}
