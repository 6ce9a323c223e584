package workflow

import (
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"
)

type RetryConfig struct {
	MaxAttempts int
	Base        time.Duration
	Multiplier  float64
	Max         time.Duration
	// Jitter is the fraction of the delay randomized around the base value,
	// e.g. 0.2 spreads attempts over ±20% to avoid retry storms.
	Jitter float64
}

func GetReconciliationRetryConfig() RetryConfig {
	cfg := RetryConfig{
		MaxAttempts: 5,
		Base:        30 * time.Second,
		Multiplier:  2,
		Max:         30 * time.Minute,
		Jitter:      0.2,
	}
	if v := os.Getenv("RECONCILIATION_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxAttempts = n
		}
	}
	if v := os.Getenv("RECONCILIATION_BASE_BACKOFF_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Base = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("RECONCILIATION_MAX_BACKOFF_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Max = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("RECONCILIATION_BACKOFF_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 1 {
			cfg.Multiplier = f
		}
	}
	return cfg
}

// BaseRetryDelay is min(base * multiplier^(attempt-1), max), jitter excluded.
// Non-decreasing in the attempt number up to the cap.
func BaseRetryDelay(attempt int, cfg RetryConfig) time.Duration {
	if attempt <= 0 {
		return cfg.Base
	}
	exp := float64(attempt - 1)
	delay := time.Duration(float64(cfg.Base) * math.Pow(cfg.Multiplier, exp))
	if delay > cfg.Max || delay <= 0 {
		return cfg.Max
	}
	return delay
}

// RetryDelay adds seeded jitter around the base delay. Deterministic for a
// given seed so the schedule is unit-testable without a clock.
func RetryDelay(attempt int, cfg RetryConfig, seed int64) time.Duration {
	delay := BaseRetryDelay(attempt, cfg)
	if cfg.Jitter <= 0 {
		return delay
	}
	rng := rand.New(rand.NewSource(seed))
	// Uniform in [-jitter, +jitter].
	offset := (rng.Float64()*2 - 1) * cfg.Jitter
	jittered := time.Duration(float64(delay) * (1 + offset))
	if jittered <= 0 {
		return delay
	}
	if jittered > cfg.Max {
		return cfg.Max
	}
	return jittered
}
