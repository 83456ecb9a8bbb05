package classifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/triage-dispatch/backend/internal/adapters/cache"
	"github.com/zatekoja/triage-dispatch/backend/internal/adapters/classifier"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/providers"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/clients/classifierapi"
	apperrors "github.com/zatekoja/triage-dispatch/backend/pkg/errors"
)

var testVitals = entities.Vitals{SBP: 150, DBP: 95, Temp: 38.2, HR: 118, RR: 24, O2: 90}

func TestHTTPClassifier_Classify(t *testing.T) {
	var received classifierapi.PredictRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"category":"critical","probabilities":{"Critical":0.7,"Moderate":0.2,"Low":0.1}}`))
	}))
	defer server.Close()

	c := classifier.NewHTTPClassifier(classifierapi.NewClient(server.URL+"/", time.Second), classifier.DefaultBreakerSettings())

	prediction, err := c.Classify(context.Background(), "chest pain", testVitals)
	require.NoError(t, err)
	assert.Equal(t, entities.CategoryCritical, prediction.Category)
	assert.InDelta(t, 0.7, prediction.Probabilities[entities.CategoryCritical], 1e-9)
	assert.Len(t, prediction.Probabilities, 3)

	assert.Equal(t, "chest pain", received.Complaint)
	assert.Equal(t, 118.0, received.Vitals.HR)
}

func TestHTTPClassifier_KeepsUnknownLabels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"category":"Low","probabilities":{"Critical":0.1,"Moderate":0.2,"Low":0.6,"Urgent":0.1}}`))
	}))
	defer server.Close()

	c := classifier.NewHTTPClassifier(classifierapi.NewClient(server.URL, time.Second), classifier.DefaultBreakerSettings())

	prediction, err := c.Classify(context.Background(), "rash", testVitals)
	require.NoError(t, err)
	assert.Len(t, prediction.Probabilities, 4)
	assert.Contains(t, prediction.Probabilities, entities.Category("Urgent"))
}

func TestHTTPClassifier_BreakerOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := classifier.NewHTTPClassifier(
		classifierapi.NewClient(server.URL, time.Second),
		classifier.BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute},
	)

	for i := 0; i < 2; i++ {
		_, err := c.Classify(context.Background(), "cough", testVitals)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))

		var statusErr *classifierapi.StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	}
	assert.Equal(t, "open", c.State())

	_, err := c.Classify(context.Background(), "cough", testVitals)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier unavailable")

	err = c.Health(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPClassifier_Health(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy.Load() {
			http.Error(w, "loading", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	c := classifier.NewHTTPClassifier(classifierapi.NewClient(server.URL, time.Second), classifier.DefaultBreakerSettings())
	require.NoError(t, c.Health(context.Background()))
	assert.Equal(t, "closed", c.State())

	healthy.Store(false)
	err := c.Health(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))

	var statusErr *classifierapi.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, complaint string, vitals entities.Vitals) (*providers.Prediction, error) {
	args := m.Called(ctx, complaint, vitals)
	prediction, _ := args.Get(0).(*providers.Prediction)
	return prediction, args.Error(1)
}

func TestCachedClassifier(t *testing.T) {
	ctx := context.Background()
	prediction := &providers.Prediction{
		Category: entities.CategoryModerate,
		Probabilities: map[entities.Category]float64{
			entities.CategoryCritical: 0.2,
			entities.CategoryModerate: 0.5,
			entities.CategoryLow:      0.3,
		},
	}

	t.Run("second call is served from cache", func(t *testing.T) {
		inner := &mockClassifier{}
		inner.On("Classify", mock.Anything, "headache", testVitals).Return(prediction, nil).Once()

		c := classifier.NewCachedClassifier(inner, cache.NewMemoryAdapter(), time.Minute, nil)

		first, err := c.Classify(ctx, "headache", testVitals)
		require.NoError(t, err)
		second, err := c.Classify(ctx, "  Headache ", testVitals)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, entities.CategoryModerate, second.Category)
		inner.AssertExpectations(t)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		inner := &mockClassifier{}
		inner.On("Classify", mock.Anything, "fever", testVitals).Return(nil, errors.New("timeout")).Twice()

		c := classifier.NewCachedClassifier(inner, cache.NewMemoryAdapter(), time.Minute, nil)

		_, err := c.Classify(ctx, "fever", testVitals)
		assert.Error(t, err)
		_, err = c.Classify(ctx, "fever", testVitals)
		assert.Error(t, err)
		inner.AssertExpectations(t)
	})
}
