package services

import (
	"math"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/providers"
)

// criticalThreshold is the probability above which a patient is Critical
const criticalThreshold = 0.5

// DecideCategory applies the triage decision policy to a raw prediction.
//
// With a usable distribution over exactly Critical, Moderate and Low the
// patient is Critical when P(Critical) > 0.5, otherwise Moderate when
// P(Moderate) >= P(Low), otherwise Low. Anything else falls back to Low and
// reports degraded=true.
func DecideCategory(prediction *providers.Prediction) (category entities.Category, degraded bool) {
	if prediction == nil || !usableDistribution(prediction.Probabilities) {
		return entities.CategoryLow, true
	}

	probs := prediction.Probabilities
	if probs[entities.CategoryCritical] > criticalThreshold {
		return entities.CategoryCritical, false
	}
	if probs[entities.CategoryModerate] >= probs[entities.CategoryLow] {
		return entities.CategoryModerate, false
	}
	return entities.CategoryLow, false
}

func usableDistribution(probs map[entities.Category]float64) bool {
	if len(probs) != len(entities.Categories) {
		return false
	}
	for _, c := range entities.Categories {
		p, ok := probs[c]
		if !ok || math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return false
		}
	}
	return true
}
