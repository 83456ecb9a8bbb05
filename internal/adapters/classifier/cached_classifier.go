package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/providers"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/observability"
)

// DefaultPredictionTTL is how long a prediction stays cached
const DefaultPredictionTTL = 10 * time.Minute

// CachedClassifier wraps a SeverityClassifier with a prediction cache keyed
// by complaint and vitals. Only successful predictions are cached.
type CachedClassifier struct {
	classifier providers.SeverityClassifier
	cache      providers.CacheProvider
	ttl        time.Duration
	metrics    *observability.Metrics
}

// NewCachedClassifier creates a new cached classifier
func NewCachedClassifier(classifier providers.SeverityClassifier, cache providers.CacheProvider, ttl time.Duration, metrics *observability.Metrics) *CachedClassifier {
	if ttl <= 0 {
		ttl = DefaultPredictionTTL
	}
	return &CachedClassifier{
		classifier: classifier,
		cache:      cache,
		ttl:        ttl,
		metrics:    metrics,
	}
}

func predictionCacheKey(complaint string, vitals entities.Vitals) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%g|%g|%g|%g|%g|%g",
		strings.ToLower(strings.TrimSpace(complaint)),
		vitals.SBP, vitals.DBP, vitals.Temp, vitals.HR, vitals.RR, vitals.O2,
	)))
	return "prediction:" + hex.EncodeToString(sum[:])
}

// Classify returns a cached prediction when present, otherwise asks the
// wrapped classifier and caches its answer
func (c *CachedClassifier) Classify(ctx context.Context, complaint string, vitals entities.Vitals) (*providers.Prediction, error) {
	key := predictionCacheKey(complaint, vitals)

	cached, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var prediction providers.Prediction
		if err := json.Unmarshal(cached, &prediction); err == nil {
			observability.RecordCacheHit(ctx, c.metrics, "prediction")
			return &prediction, nil
		}
		log.Warn().Str("key", key).Msg("Discarding undecodable cached prediction")
	case !errors.Is(err, providers.ErrCacheMiss):
		log.Warn().Err(err).Msg("Prediction cache unavailable")
	}
	observability.RecordCacheMiss(ctx, c.metrics, "prediction")

	prediction, err := c.classifier.Classify(ctx, complaint, vitals)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(prediction); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			log.Warn().Err(err).Msg("Failed to cache prediction")
		}
	}
	return prediction, nil
}
