package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/stockcount_backend/config"
	"github.com/mmdatafocus/stockcount_backend/ledgersync"
	"github.com/mmdatafocus/stockcount_backend/models"
	"github.com/mmdatafocus/stockcount_backend/utils"
	"github.com/mmdatafocus/stockcount_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// RateLimiter throttles by client IP using a fixed redis window.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
}

// requestContextMiddleware copies the caller identity headers into the
// request context. Every model operation reads the business id from there,
// never from a parameter, so a handler cannot cross tenants by accident.
func requestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx = utils.SetCorrelationIdInContext(ctx, cid)

		if businessId := c.GetHeader("x-business-id"); businessId != "" {
			ctx = utils.SetBusinessIdInContext(ctx, businessId)
		}
		if v := c.GetHeader("x-user-id"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				ctx = utils.SetUserIdInContext(ctx, n)
			}
		}
		if userName := c.GetHeader("x-user-name"); userName != "" {
			ctx = utils.SetUserNameInContext(ctx, userName)
		}
		if deviceId := c.GetHeader("x-device-id"); deviceId != "" {
			ctx = utils.SetDeviceIdInContext(ctx, deviceId)
		}

		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func requireBusiness() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetBusinessIdFromContext(c.Request.Context()); !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "x-business-id header is required"})
			return
		}
		c.Next()
	}
}

// writeError maps the typed errors onto HTTP statuses. Validation means the
// payload is wrong (400), State means the aggregate is in the wrong lifecycle
// stage (409), Policy means a business condition blocks the operation (422).
func writeError(c *gin.Context, err error) {
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	code := utils.ErrorCode(err)
	switch {
	case utils.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": code})
	case utils.IsState(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": code})
	case utils.IsPolicy(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": code})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func createCountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewStockCount
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		count, err := models.CreateStockCount(c.Request.Context(), &input, models.NewStockLevelProvider())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, count)
	}
}

func getCountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		countId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid count id"})
			return
		}
		count, err := models.GetStockCount(c.Request.Context(), countId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, count)
	}
}

// recordEntryHandler accepts one count entry. Offline replays resend the same
// request with the same x-idempotency-key; a key that already succeeded
// returns the stored entry instead of a duplicate-entry rejection.
func recordEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		countId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid count id"})
			return
		}
		var input models.NewCountEntry
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := c.Request.Context()
		businessId, _ := utils.GetBusinessIdFromContext(ctx)
		if input.DeviceId == "" {
			if deviceId, ok := utils.GetDeviceIdFromContext(ctx); ok {
				input.DeviceId = deviceId
			}
		}

		idemKey := strings.TrimSpace(c.GetHeader("x-idempotency-key"))
		if idemKey != "" {
			skip, err := workflow.BeginIdempotency(config.GetDB().WithContext(ctx), businessId, "RecordCountEntry", idemKey)
			if err != nil {
				if errors.Is(err, workflow.ErrIdempotencyInProgress) {
					c.JSON(http.StatusConflict, gin.H{"error": "request is already being processed"})
					return
				}
				writeError(c, err)
				return
			}
			if skip {
				var existing models.StockCountEntry
				if err := config.GetDB().WithContext(ctx).
					Where("stock_count_id = ? AND location_id = ? AND product_id = ?",
						countId, input.LocationId, input.ProductId).
					Take(&existing).Error; err == nil {
					c.JSON(http.StatusOK, existing)
					return
				}
				c.JSON(http.StatusOK, gin.H{"status": "already processed"})
				return
			}
		}

		entry, err := models.RecordCountEntry(ctx, countId, &input)
		if idemKey != "" {
			if err != nil {
				_ = workflow.MarkIdempotencyFailed(config.GetDB().WithContext(ctx), businessId, "RecordCountEntry", idemKey, err)
			} else {
				_ = workflow.MarkIdempotencySucceeded(config.GetDB().WithContext(ctx), businessId, "RecordCountEntry", idemKey)
			}
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

type updateEntryRequest struct {
	CountedQty decimal.Decimal `json:"counted_qty" binding:"required"`
	Notes      string          `json:"notes"`
}

func updateEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		countId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid count id"})
			return
		}
		entryId, err := strconv.Atoi(c.Param("entryId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
			return
		}
		var req updateEntryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entry, err := models.UpdateCountEntry(c.Request.Context(), countId, entryId, req.CountedQty, req.Notes)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

func requestRecountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		countId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid count id"})
			return
		}
		entryId, err := strconv.Atoi(c.Param("entryId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
			return
		}
		entry, err := models.RequestRecount(c.Request.Context(), countId, entryId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

func completeCountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		countId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid count id"})
			return
		}
		count, summary, err := workflow.CompleteStockCount(c.Request.Context(), countId, models.NewUnitPriceProvider())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": count, "summary": summary})
	}
}

func cancelCountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		countId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid count id"})
			return
		}
		count, err := models.CancelStockCount(c.Request.Context(), countId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, count)
	}
}

func listCountVariancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		countId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid count id"})
			return
		}
		variances, err := models.ListVariancesForCount(c.Request.Context(), countId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, variances)
	}
}

func getVarianceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		varianceId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid variance id"})
			return
		}
		variance, err := models.GetVariance(c.Request.Context(), varianceId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, variance)
	}
}

type investigateRequest struct {
	ReasonCode string `json:"reason_code" binding:"required"`
	Notes      string `json:"notes"`
}

func investigateVarianceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		varianceId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid variance id"})
			return
		}
		var req investigateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		variance, err := models.InvestigateVariance(c.Request.Context(), varianceId, req.ReasonCode, req.Notes)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, variance)
	}
}

func requestApprovalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		varianceId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid variance id"})
			return
		}
		variance, err := models.RequestVarianceApproval(c.Request.Context(), varianceId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, variance)
	}
}

type approveRequest struct {
	Decision models.ApprovalDecision `json:"decision" binding:"required"`
	Comments string                  `json:"comments"`
}

func approveVarianceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		varianceId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid variance id"})
			return
		}
		var req approveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		variance, err := models.ApproveVariance(c.Request.Context(), varianceId, req.Decision, req.Comments)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, variance)
	}
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func resolveVarianceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		varianceId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid variance id"})
			return
		}
		var req notesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		variance, err := models.ResolveVariance(c.Request.Context(), varianceId, req.Notes)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, variance)
	}
}

func escalateVarianceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		varianceId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid variance id"})
			return
		}
		var req notesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		variance, err := models.EscalateVariance(c.Request.Context(), varianceId, req.Notes)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, variance)
	}
}

func getCountReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		countId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid count id"})
			return
		}
		record, err := models.GetReconciliationForCount(c.Request.Context(), countId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func retryReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		recordId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reconciliation id"})
			return
		}
		record, err := workflow.RetryReconciliation(c.Request.Context(), recordId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until the DB is ready, app endpoints return 503.
	r := gin.New()
	r.Use(requestContextMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization",
		"x-business-id", "x-user-id", "x-user-name", "x-device-id", "x-correlation-id", "x-idempotency-key")
	corsConfig.AddExposeHeaders("Content-Length", "x-correlation-id")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api", requireBusiness())
	{
		api.POST("/counts", createCountHandler())
		api.GET("/counts/:id", getCountHandler())
		api.POST("/counts/:id/entries", recordEntryHandler())
		api.PUT("/counts/:id/entries/:entryId", updateEntryHandler())
		api.POST("/counts/:id/entries/:entryId/recount", requestRecountHandler())
		api.POST("/counts/:id/complete", completeCountHandler())
		api.POST("/counts/:id/cancel", cancelCountHandler())
		api.GET("/counts/:id/variances", listCountVariancesHandler())
		api.GET("/counts/:id/reconciliation", getCountReconciliationHandler())

		api.GET("/variances/:id", getVarianceHandler())
		api.POST("/variances/:id/investigate", investigateVarianceHandler())
		api.POST("/variances/:id/request-approval", requestApprovalHandler())
		api.POST("/variances/:id/approve", approveVarianceHandler())
		api.POST("/variances/:id/resolve", resolveVarianceHandler())
		api.POST("/variances/:id/escalate", escalateVarianceHandler())

		api.POST("/reconciliations/:id/retry", retryReconciliationHandler())
	}
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow disabling on startup
	// and running migrations as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Background workers: outbox dispatcher (publishes AFTER commit) and the
	// reconciliation sweeper.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	if topic := strings.TrimSpace(os.Getenv("PUBSUB_TOPIC")); topic != "" {
		if client, err := config.GetClient(workerCtx); err != nil {
			logger.WithFields(logrus.Fields{"field": "pubsub"}).
				Warn("pubsub client unavailable; outbox publishes will retry: " + err.Error())
		} else if _, err := config.CreateTopicIfNotExists(client, topic); err != nil {
			logger.WithFields(logrus.Fields{"field": "pubsub"}).
				Warn("topic bootstrap failed; outbox publishes will retry: " + err.Error())
		}
	}
	go workflow.NewOutboxDispatcher(db, logger).Run(workerCtx)

	if ledgerClient, err := ledgersync.NewClient(); err != nil {
		logger.WithFields(logrus.Fields{"field": "ledgersync"}).
			Warn("ledger client not configured; reconciliation sweeper disabled: " + err.Error())
	} else {
		go workflow.NewReconciliationEngine(db, logger, ledgerClient).Run(workerCtx)
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelWorkers()

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits. Counter updates run on the
// shared redis context so a caller disconnect cannot drop the accounting
// mid-window.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()
	ctx := config.GetRedisContext()

	exists, err := rl.client.Exists(ctx, key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if exists == 0 {
		err := rl.client.Set(ctx, key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
