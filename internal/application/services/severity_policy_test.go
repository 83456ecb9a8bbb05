package services_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zatekoja/triage-dispatch/backend/internal/application/services"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/providers"
)

func probs(critical, moderate, low float64) map[entities.Category]float64 {
	return map[entities.Category]float64{
		entities.CategoryCritical: critical,
		entities.CategoryModerate: moderate,
		entities.CategoryLow:      low,
	}
}

func TestDecideCategory(t *testing.T) {
	tests := []struct {
		name         string
		prediction   *providers.Prediction
		wantCategory entities.Category
		wantDegraded bool
	}{
		{
			name:         "critical above threshold",
			prediction:   &providers.Prediction{Probabilities: probs(0.51, 0.3, 0.19)},
			wantCategory: entities.CategoryCritical,
		},
		{
			name:         "critical at exactly one half is not critical",
			prediction:   &providers.Prediction{Probabilities: probs(0.5, 0.3, 0.2)},
			wantCategory: entities.CategoryModerate,
		},
		{
			name:         "moderate wins ties with low",
			prediction:   &providers.Prediction{Probabilities: probs(0.2, 0.4, 0.4)},
			wantCategory: entities.CategoryModerate,
		},
		{
			name:         "low",
			prediction:   &providers.Prediction{Probabilities: probs(0.1, 0.2, 0.7)},
			wantCategory: entities.CategoryLow,
		},
		{
			name:         "model label is ignored in favour of the distribution",
			prediction:   &providers.Prediction{Category: entities.CategoryCritical, Probabilities: probs(0.1, 0.2, 0.7)},
			wantCategory: entities.CategoryLow,
		},
		{
			name:         "nil prediction",
			prediction:   nil,
			wantCategory: entities.CategoryLow,
			wantDegraded: true,
		},
		{
			name:         "label without probabilities",
			prediction:   &providers.Prediction{Category: entities.CategoryCritical},
			wantCategory: entities.CategoryLow,
			wantDegraded: true,
		},
		{
			name: "missing category",
			prediction: &providers.Prediction{Probabilities: map[entities.Category]float64{
				entities.CategoryCritical: 0.9,
				entities.CategoryLow:      0.1,
			}},
			wantCategory: entities.CategoryLow,
			wantDegraded: true,
		},
		{
			name: "extra category",
			prediction: &providers.Prediction{Probabilities: map[entities.Category]float64{
				entities.CategoryCritical: 0.9,
				entities.CategoryModerate: 0.05,
				entities.CategoryLow:      0.03,
				"Urgent":                  0.02,
			}},
			wantCategory: entities.CategoryLow,
			wantDegraded: true,
		},
		{
			name:         "NaN probability",
			prediction:   &providers.Prediction{Probabilities: probs(math.NaN(), 0.5, 0.5)},
			wantCategory: entities.CategoryLow,
			wantDegraded: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, degraded := services.DecideCategory(tt.prediction)
			assert.Equal(t, tt.wantCategory, category)
			assert.Equal(t, tt.wantDegraded, degraded)
		})
	}
}
