package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	MaxTotalTimeout time.Duration
}

// DefaultConfig returns a default retry configuration with 1 minute max timeout
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     10,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		BackoffFactor:   2.0,
		MaxTotalTimeout: 60 * time.Second,
	}
}

// NextDelay returns the delay that follows d under exponential backoff
func (c Config) NextDelay(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * c.BackoffFactor)
	if c.MaxDelay > 0 && next > c.MaxDelay {
		return c.MaxDelay
	}
	return next
}

// Notify is called after each failed attempt that will be retried
type Notify func(attempt int, err error, nextDelay time.Duration)

// Do executes fn with exponential backoff until it succeeds, attempts run
// out or ctx is done
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return DoWithNotify(ctx, cfg, "", fn, nil)
}

// DoWithLog is Do with a warning logged for every failed attempt
func DoWithLog(ctx context.Context, cfg Config, serviceName string, fn func() error) error {
	return DoWithNotify(ctx, cfg, serviceName, fn, func(attempt int, err error, nextDelay time.Duration) {
		log.Warn().
			Err(err).
			Str("dependency", serviceName).
			Int("attempt", attempt).
			Dur("retry_in", nextDelay).
			Msg("Connection attempt failed")
	})
}

// DoWithNotify is Do with a callback after every failed attempt
func DoWithNotify(ctx context.Context, cfg Config, serviceName string, fn func() error, notify Notify) error {
	if cfg.MaxTotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.MaxTotalTimeout)
		defer cancel()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	prefix := ""
	if serviceName != "" {
		prefix = serviceName + ": "
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%sretry aborted after %d attempts: %w (last error: %v)", prefix, attempt-1, err, lastErr)
			}
			return fmt.Errorf("%sretry aborted: %w", prefix, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		if notify != nil {
			notify(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%sretry aborted after %d attempts: %w (last error: %v)", prefix, attempt, ctx.Err(), lastErr)
		case <-timer.C:
		}

		delay = cfg.NextDelay(delay)
	}

	return fmt.Errorf("%smax retry attempts (%d) exceeded: %w", prefix, cfg.MaxAttempts, lastErr)
}
