package providers

import (
	"context"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
)

// Prediction is the raw output of the acuity model. Probabilities may be nil
// when the model cannot produce a distribution.
type Prediction struct {
	Category      entities.Category             `json:"category"`
	Probabilities map[entities.Category]float64 `json:"probabilities,omitempty"`
}

// SeverityClassifier wraps the external acuity prediction service
type SeverityClassifier interface {
	// Classify predicts an acuity category from the complaint text and vitals
	Classify(ctx context.Context, complaint string, vitals entities.Vitals) (*Prediction, error)
}
