package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmdatafocus/stockcount_backend/config"
	"github.com/mmdatafocus/stockcount_backend/ledgersync"
	"github.com/mmdatafocus/stockcount_backend/workflow"
	"github.com/sirupsen/logrus"
)

// Standalone reconciliation worker. Runs the same sweep the API binary runs,
// for deployments that want ledger traffic isolated from request serving.
func main() {
	pollSeconds := flag.Int("poll-seconds", 15, "Seconds between sweep passes")
	batchSize := flag.Int("batch-size", 20, "Max records per sweep pass")
	once := flag.Bool("once", false, "Run a single sweep pass and exit")
	flag.Parse()

	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	client, err := ledgersync.NewClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledger client: %v\n", err)
		os.Exit(1)
	}

	engine := workflow.NewReconciliationEngine(db, logger, client)
	if *pollSeconds > 0 {
		engine.PollInterval = time.Duration(*pollSeconds) * time.Second
	}
	if *batchSize > 0 {
		engine.BatchSize = *batchSize
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if *once {
		engine.SweepOnce(sigCtx)
		return
	}

	// Minimal health endpoint so the worker can run on Cloud Run.
	port := os.Getenv("PORT")
	if port != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		go func() {
			if err := http.ListenAndServe(":"+port, mux); err != nil {
				logger.WithFields(logrus.Fields{"field": "healthz"}).Warn("health server stopped: " + err.Error())
			}
		}()
	}

	logger.WithFields(logrus.Fields{
		"field":         "reconciliation-sweeper",
		"poll_interval": engine.PollInterval.String(),
		"batch_size":    engine.BatchSize,
	}).Info("reconciliation sweeper started")

	engine.Run(sigCtx)
}
