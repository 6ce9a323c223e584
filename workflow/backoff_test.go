package workflow

import (
	"testing"
	"time"
)

func testRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		Base:        30 * time.Second,
		Multiplier:  2,
		Max:         30 * time.Minute,
		Jitter:      0.2,
	}
}

func TestBaseRetryDelay_DoublesUpToCap(t *testing.T) {
	cfg := testRetryConfig()

	want := []time.Duration{
		30 * time.Second,
		60 * time.Second,
		120 * time.Second,
		240 * time.Second,
		480 * time.Second,
	}
	for i, expected := range want {
		got := BaseRetryDelay(i+1, cfg)
		if got != expected {
			t.Fatalf("attempt %d: got %s want %s", i+1, got, expected)
		}
	}

	// Far past the cap the delay stays pinned at Max.
	if got := BaseRetryDelay(50, cfg); got != cfg.Max {
		t.Fatalf("attempt 50: got %s want cap %s", got, cfg.Max)
	}
}

func TestBaseRetryDelay_NonDecreasing(t *testing.T) {
	cfg := testRetryConfig()
	prev := time.Duration(0)
	for attempt := 1; attempt <= 30; attempt++ {
		got := BaseRetryDelay(attempt, cfg)
		if got < prev {
			t.Fatalf("delay decreased at attempt %d: %s < %s", attempt, got, prev)
		}
		prev = got
	}
}

func TestRetryDelay_JitterStaysInBounds(t *testing.T) {
	cfg := testRetryConfig()
	for attempt := 1; attempt <= 8; attempt++ {
		base := BaseRetryDelay(attempt, cfg)
		for seed := int64(0); seed < 50; seed++ {
			got := RetryDelay(attempt, cfg, seed)
			lo := time.Duration(float64(base) * 0.8)
			hi := time.Duration(float64(base) * 1.2)
			if hi > cfg.Max {
				hi = cfg.Max
			}
			if got < lo || got > hi {
				t.Fatalf("attempt %d seed %d: %s outside [%s, %s]", attempt, seed, got, lo, hi)
			}
		}
	}
}

func TestRetryDelay_DeterministicForSeed(t *testing.T) {
	cfg := testRetryConfig()
	for seed := int64(0); seed < 10; seed++ {
		a := RetryDelay(3, cfg, seed)
		b := RetryDelay(3, cfg, seed)
		if a != b {
			t.Fatalf("seed %d: %s != %s", seed, a, b)
		}
	}
}

func TestRetryDelay_NoJitterMatchesBase(t *testing.T) {
	cfg := testRetryConfig()
	cfg.Jitter = 0
	for attempt := 1; attempt <= 6; attempt++ {
		if got, want := RetryDelay(attempt, cfg, 42), BaseRetryDelay(attempt, cfg); got != want {
			t.Fatalf("attempt %d: got %s want %s", attempt, got, want)
		}
	}
}
