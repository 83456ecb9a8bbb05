package classifier

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/providers"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/clients/classifierapi"
	apperrors "github.com/zatekoja/triage-dispatch/backend/pkg/errors"
)

// BreakerSettings tunes the circuit breaker around the prediction service
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// DefaultBreakerSettings opens after 5 consecutive failures for 30 seconds
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// HTTPClassifier implements SeverityClassifier against the prediction
// service. While the breaker is open calls fail fast.
type HTTPClassifier struct {
	client  classifierapi.Client
	breaker *gobreaker.CircuitBreaker[*classifierapi.PredictResponse]
}

// NewHTTPClassifier creates a classifier adapter
func NewHTTPClassifier(client classifierapi.Client, settings BreakerSettings) *HTTPClassifier {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = DefaultBreakerSettings().ConsecutiveFailures
	}

	breaker := gobreaker.NewCircuitBreaker[*classifierapi.PredictResponse](gobreaker.Settings{
		Name:        "classifier",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})

	return &HTTPClassifier{client: client, breaker: breaker}
}

// Classify predicts a category for the complaint and vitals
func (c *HTTPClassifier) Classify(ctx context.Context, complaint string, vitals entities.Vitals) (*providers.Prediction, error) {
	req := classifierapi.PredictRequest{
		Complaint: complaint,
		Vitals: classifierapi.Vitals{
			SBP:  vitals.SBP,
			DBP:  vitals.DBP,
			Temp: vitals.Temp,
			HR:   vitals.HR,
			RR:   vitals.RR,
			O2:   vitals.O2,
		},
	}

	resp, err := c.breaker.Execute(func() (*classifierapi.PredictResponse, error) {
		return c.client.Predict(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperrors.NewExternalError("classifier unavailable", err)
		}
		return nil, apperrors.NewExternalError("classifier request failed", err)
	}

	return toPrediction(resp), nil
}

// State reports the breaker state: closed, half-open or open
func (c *HTTPClassifier) State() string {
	return c.breaker.State().String()
}

// Health checks the prediction service. While the breaker is open it fails
// without calling out.
func (c *HTTPClassifier) Health(ctx context.Context) error {
	if c.breaker.State() == gobreaker.StateOpen {
		return apperrors.NewExternalError("classifier unavailable", gobreaker.ErrOpenState)
	}
	if err := c.client.Health(ctx); err != nil {
		return apperrors.NewExternalError("classifier health check failed", err)
	}
	return nil
}

// toPrediction keeps unknown labels so a distribution over anything other
// than the three categories is recognised as unusable
func toPrediction(resp *classifierapi.PredictResponse) *providers.Prediction {
	prediction := &providers.Prediction{}
	if c, err := entities.ParseCategory(resp.Category); err == nil {
		prediction.Category = c
	} else {
		prediction.Category = entities.Category(strings.TrimSpace(resp.Category))
	}

	if len(resp.Probabilities) == 0 {
		return prediction
	}

	prediction.Probabilities = make(map[entities.Category]float64, len(resp.Probabilities))
	for label, p := range resp.Probabilities {
		if c, err := entities.ParseCategory(label); err == nil {
			prediction.Probabilities[c] = p
		} else {
			prediction.Probabilities[entities.Category(label)] = p
		}
	}
	return prediction
}
