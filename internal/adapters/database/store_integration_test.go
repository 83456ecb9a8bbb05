//go:build integration

package database_test

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/triage-dispatch/backend/internal/adapters/database"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/repositories"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/clients/mongo"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/triage-dispatch/backend/pkg/config"
	apperrors "github.com/zatekoja/triage-dispatch/backend/pkg/errors"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func TestPostgresStoreIntegration(t *testing.T) {
	if os.Getenv("TEST_DB_HOST") == "" {
		t.Skip("Skipping integration test: TEST_DB_HOST not set")
	}

	ctx := context.Background()
	client, err := postgres.NewClient(ctx, &config.DatabaseConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnvAsInt("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		Database: getEnv("TEST_DB_NAME", "triage_test"),
		SSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	})
	require.NoError(t, err, "Failed to create postgres client")
	defer client.Close()

	require.NoError(t, database.EnsureSchema(ctx, client))

	exerciseStore(t, database.NewPostgresPatientAdapter(client), database.NewPostgresVisitAdapter(client))
}

func TestMongoStoreIntegration(t *testing.T) {
	if os.Getenv("TEST_MONGO_URI") == "" {
		t.Skip("Skipping integration test: TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	client, err := mongo.NewClient(ctx, &config.MongoConfig{
		URI:      os.Getenv("TEST_MONGO_URI"),
		Database: getEnv("TEST_MONGO_DATABASE", "triage_test"),
	})
	require.NoError(t, err, "Failed to create mongo client")
	defer client.Close(ctx)

	require.NoError(t, database.EnsureIndexes(ctx, client.Database()))

	exerciseStore(t, database.NewMongoPatientAdapter(client.Database()), database.NewMongoVisitAdapter(client.Database()))
}

// exerciseStore walks one registration through insert, assignment, severity
// change and completion against a live backend
func exerciseStore(t *testing.T, patients repositories.PatientRepository, visits repositories.VisitRepository) {
	t.Helper()
	ctx := context.Background()

	mrn := uuid.New().String()[:8]
	p := newPatient(mrn, "2024-03-04 09:30:00", entities.CategoryLow, true)
	p.Complaint = "headache"
	require.NoError(t, patients.Insert(ctx, p))
	defer func() { _ = patients.DeleteOne(ctx, repositories.KeyFilter(p.Key())) }()

	err := patients.Insert(ctx, p)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict), "duplicate identity must conflict")

	count, err := patients.Count(ctx, repositories.Filter{repositories.FieldMRN: mrn})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	matched, err := patients.UpdateOne(ctx, repositories.KeyFilter(p.Key()), repositories.Patch{
		repositories.FieldCategory:        string(entities.CategoryCritical),
		repositories.FieldColor:           string(entities.ColorRed),
		repositories.FieldAssignedSession: "session-1",
		repositories.FieldAssignedAt:      "2024-03-04 09:40:00",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), matched)

	found, err := patients.FindOne(ctx, repositories.Filter{repositories.FieldAssignedSession: "session-1", repositories.FieldMRN: mrn})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, entities.CategoryCritical, found.Category)
	assert.True(t, found.Booked)

	visit := entities.NewVisitRecord(found, "paracetamol", "", "2024-03-04 09:55:00")
	require.NoError(t, visits.Insert(ctx, visit))
	require.NoError(t, patients.DeleteOne(ctx, repositories.KeyFilter(p.Key())))

	missing, err := patients.FindOne(ctx, repositories.KeyFilter(p.Key()))
	require.NoError(t, err)
	assert.Nil(t, missing)

	history, err := visits.FindAll(ctx, repositories.Filter{repositories.FieldMRN: mrn})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "paracetamol", history[0].Medicine)
	assert.Equal(t, entities.CategoryCritical, history[0].Category)
}
