package config

import (
	"os"

	"github.com/shopspring/decimal"
)

// VarianceThresholds is the dual-threshold classification table for count
// variances. Percentage and monetary scales are evaluated independently and
// the higher classification wins, so either trigger escalates.
//
// The value is immutable once built; per-business overrides produce a new
// value rather than mutating shared state.
type VarianceThresholds struct {
	// Absolute variance percentage cutoffs. At or above Medium -> MEDIUM, etc.
	// Below PctMedium the percentage scale classifies LOW.
	PctMedium   decimal.Decimal
	PctHigh     decimal.Decimal
	PctCritical decimal.Decimal

	// Absolute monetary variance cutoffs in base currency units.
	ValueMedium   decimal.Decimal
	ValueHigh     decimal.Decimal
	ValueCritical decimal.Decimal
}

// DefaultVarianceThresholds reads the environment-level thresholds. Callers
// that support per-business overrides should layer them on top with Override.
func DefaultVarianceThresholds() VarianceThresholds {
	return VarianceThresholds{
		PctMedium:     decimalFromEnv("VARIANCE_PCT_MEDIUM", "5"),
		PctHigh:       decimalFromEnv("VARIANCE_PCT_HIGH", "10"),
		PctCritical:   decimalFromEnv("VARIANCE_PCT_CRITICAL", "20"),
		ValueMedium:   decimalFromEnv("VARIANCE_VALUE_MEDIUM", "100"),
		ValueHigh:     decimalFromEnv("VARIANCE_VALUE_HIGH", "500"),
		ValueCritical: decimalFromEnv("VARIANCE_VALUE_CRITICAL", "1000"),
	}
}

// Override returns a copy with any positive fields of o replacing the base.
func (t VarianceThresholds) Override(o VarianceThresholds) VarianceThresholds {
	out := t
	if o.PctMedium.IsPositive() {
		out.PctMedium = o.PctMedium
	}
	if o.PctHigh.IsPositive() {
		out.PctHigh = o.PctHigh
	}
	if o.PctCritical.IsPositive() {
		out.PctCritical = o.PctCritical
	}
	if o.ValueMedium.IsPositive() {
		out.ValueMedium = o.ValueMedium
	}
	if o.ValueHigh.IsPositive() {
		out.ValueHigh = o.ValueHigh
	}
	if o.ValueCritical.IsPositive() {
		out.ValueCritical = o.ValueCritical
	}
	return out
}

func decimalFromEnv(key string, def string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(def)
	return d
}
