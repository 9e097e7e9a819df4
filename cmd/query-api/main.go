package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pulse-analytics/internal/config"
	"pulse-analytics/internal/httpx"
	"pulse-analytics/internal/model"
	"pulse-analytics/internal/query"
	"pulse-analytics/internal/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewFromConfig(ctx, cfg)
	if err != nil {
		logger.Fatal("init storage", zap.Error(err))
	}
	defer store.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpx.NewHTTPMetrics("query_api").Handler())
	router.Use(httpx.RequestLogger(logger))
	router.Use(httpx.CORSMiddleware(cfg.CORSAllowOrigins))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/v1/projects/:projectId")
	api.GET("/overview", func(c *gin.Context) { handleOverview(c, cfg, store) })
	api.GET("/pages", func(c *gin.Context) { handlePages(c, cfg, store) })
	api.GET("/referrers", func(c *gin.Context) { handleReferrers(c, cfg, store) })
	api.GET("/devices", func(c *gin.Context) { handleDevices(c, cfg, store) })
	api.GET("/geo", func(c *gin.Context) { handleGeo(c, cfg, store) })
	api.GET("/timeseries", func(c *gin.Context) { handleTimeSeries(c, cfg, store) })
	api.GET("/web-vitals", func(c *gin.Context) { handleWebVitals(c, cfg, store) })

	server := &http.Server{
		Addr:    cfg.QueryAddr,
		Handler: router,
	}

	go func() {
		logger.Info("query api listening", zap.String("addr", cfg.QueryAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("query api failed", zap.Error(err))
		}
	}()

	waitForSignal()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}

// resolveFilter builds the canonical query filter from path and query
// parameters, writing a 400 when validation fails.
func resolveFilter(c *gin.Context) (model.QueryFilter, bool) {
	filter, err := query.ResolveFilter(query.Params{
		ProjectID: c.Param("projectId"),
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
		EventType: c.Query("eventType"),
		UserID:    c.Query("userId"),
		SessionID: c.Query("sessionId"),
		PagePath:  c.Query("pagePath"),
		Country:   c.Query("country"),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return model.QueryFilter{}, false
	}
	return filter, true
}

func resolveLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		return storage.DefaultLimit
	}
	return limit
}

// writeQueryError maps the error taxonomy onto HTTP statuses so callers can
// tell a bad filter from a backend they should retry.
func writeQueryError(c *gin.Context, err error) {
	switch {
	case model.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case model.IsRetryable(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backend unavailable, retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
	}
}

func queryContext(c *gin.Context, cfg config.Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), cfg.QueryTimeout)
}

func handleOverview(c *gin.Context, cfg config.Config, store storage.Store) {
	filter, ok := resolveFilter(c)
	if !ok {
		return
	}
	ctx, cancel := queryContext(c, cfg)
	defer cancel()
	metrics, err := store.Overview(ctx, filter)
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func handlePages(c *gin.Context, cfg config.Config, store storage.Store) {
	filter, ok := resolveFilter(c)
	if !ok {
		return
	}
	ctx, cancel := queryContext(c, cfg)
	defer cancel()
	pages, err := store.PageViews(ctx, filter, resolveLimit(c))
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pages": pages})
}

func handleReferrers(c *gin.Context, cfg config.Config, store storage.Store) {
	filter, ok := resolveFilter(c)
	if !ok {
		return
	}
	ctx, cancel := queryContext(c, cfg)
	defer cancel()
	referrers, err := store.Referrers(ctx, filter, resolveLimit(c))
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"referrers": referrers})
}

func handleDevices(c *gin.Context, cfg config.Config, store storage.Store) {
	filter, ok := resolveFilter(c)
	if !ok {
		return
	}
	ctx, cancel := queryContext(c, cfg)
	defer cancel()
	stats, err := store.DeviceStats(ctx, filter)
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func handleGeo(c *gin.Context, cfg config.Config, store storage.Store) {
	filter, ok := resolveFilter(c)
	if !ok {
		return
	}
	ctx, cancel := queryContext(c, cfg)
	defer cancel()
	geo, err := store.GeoStats(ctx, filter, resolveLimit(c))
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locations": geo})
}

func handleTimeSeries(c *gin.Context, cfg config.Config, store storage.Store) {
	filter, ok := resolveFilter(c)
	if !ok {
		return
	}
	granularity, err := query.ResolveGranularity(c.Query("granularity"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := queryContext(c, cfg)
	defer cancel()
	series, err := store.TimeSeries(ctx, filter, granularity)
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"granularity": granularity, "series": series})
}

func handleWebVitals(c *gin.Context, cfg config.Config, store storage.Store) {
	filter, ok := resolveFilter(c)
	if !ok {
		return
	}
	ctx, cancel := queryContext(c, cfg)
	defer cancel()
	vitals, err := store.WebVitals(ctx, filter)
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": vitals})
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
