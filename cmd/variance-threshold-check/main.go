package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/stockcount_backend/config"
	"github.com/mmdatafocus/stockcount_backend/models"
)

// Prints the effective variance thresholds for a business: environment
// defaults with the per-business override layered on top. Useful when a
// count classifies differently than an operator expects.
func main() {
	businessID := flag.String("business-id", "", "Required: business id")
	clearCache := flag.Bool("clear-cache", false, "Drop the cached thresholds before reading")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	if *clearCache {
		if err := config.RemoveRedisKey("varianceThresholds:" + *businessID); err != nil {
			fmt.Fprintf(os.Stderr, "clear cache: %v\n", err)
		}
	}

	thresholds, err := models.GetVarianceThresholds(context.Background(), *businessID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load thresholds: %v\n", err)
		os.Exit(1)
	}

	out := map[string]string{
		"pct_medium":     thresholds.PctMedium.String(),
		"pct_high":       thresholds.PctHigh.String(),
		"pct_critical":   thresholds.PctCritical.String(),
		"value_medium":   thresholds.ValueMedium.String(),
		"value_high":     thresholds.ValueHigh.String(),
		"value_critical": thresholds.ValueCritical.String(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
