package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"pulse-analytics/internal/auth"
	"pulse-analytics/internal/config"
	"pulse-analytics/internal/httpx"
	ikafka "pulse-analytics/internal/kafka"
	"pulse-analytics/internal/model"
	"pulse-analytics/internal/util"
)

const (
	projectHeader   = "X-PA-Project"
	apiKeyHeader    = "X-PA-API-Key"
	signatureHeader = "X-PA-Signature"
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
	logger.Info("starting ingest API", zap.String("addr", cfg.IngestAddr))

	writer := ikafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopicEvents)
	defer writer.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpx.NewHTTPMetrics("ingest_api").Handler())
	router.Use(httpx.RequestLogger(logger))
	router.Use(httpx.CORSMiddleware(cfg.CORSAllowOrigins))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// /v1/view and /v1/event accept the tracking script's compressed
	// format; /v1/collect accepts a full raw event.
	router.POST("/v1/view", func(c *gin.Context) { handleCompressed(c, cfg, writer, logger) })
	router.POST("/v1/event", func(c *gin.Context) { handleCompressed(c, cfg, writer, logger) })
	router.POST("/v1/collect", func(c *gin.Context) { handleCollect(c, cfg, writer, logger) })

	server := &http.Server{
		Addr:    cfg.IngestAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("ingest server failed", zap.Error(err))
		}
	}()

	graceful(server, logger)
}

// authenticate validates the project header, API key and (when a secret is
// configured) the HMAC body signature. It writes the error response itself.
func authenticate(c *gin.Context, cfg config.Config, body []byte) (string, bool) {
	projectID := c.GetHeader(projectHeader)
	if projectID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing project header"})
		return "", false
	}
	cred, ok := cfg.Projects[projectID]
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown project"})
		return "", false
	}
	apiKey := c.GetHeader(apiKeyHeader)
	if apiKey == "" || apiKey != cred.APIKey {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid api key"})
		return "", false
	}
	secret := cred.HMACSecret
	if secret == "" {
		secret = cfg.HMACSecret
	}
	if secret != "" {
		sig := c.GetHeader(signatureHeader)
		if sig == "" || !auth.VerifySignature(secret, body, sig) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return "", false
		}
	}
	return projectID, true
}

func handleCompressed(c *gin.Context, cfg config.Config, writer *kafkago.Writer, logger *zap.Logger) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	projectID, ok := authenticate(c, cfg, body)
	if !ok {
		return
	}

	var evt model.CompressedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := evt.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	if util.IsBot(c.GetHeader("User-Agent"), cfg.BotUserAgents) {
		c.JSON(http.StatusAccepted, gin.H{"status": "ignored"})
		return
	}

	raw := evt.Expand(projectID, "")
	attachRequestContext(&raw, c)
	publish(c, writer, raw, logger)
}

func handleCollect(c *gin.Context, cfg config.Config, writer *kafkago.Writer, logger *zap.Logger) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	projectID, ok := authenticate(c, cfg, body)
	if !ok {
		return
	}

	var raw model.RawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if raw.ProjectID == "" {
		raw.ProjectID = projectID
	}
	if raw.ProjectID != projectID {
		c.JSON(http.StatusForbidden, gin.H{"error": "project mismatch"})
		return
	}
	if raw.EventType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "eventType is required"})
		return
	}
	if raw.Timestamp == 0 {
		raw.Timestamp = time.Now().UnixMilli()
	}

	if util.IsBot(c.GetHeader("User-Agent"), cfg.BotUserAgents) {
		c.JSON(http.StatusAccepted, gin.H{"status": "ignored"})
		return
	}

	attachRequestContext(&raw, c)
	publish(c, writer, raw, logger)
}

// attachRequestContext fills transport-derived context fields the client
// cannot be trusted to set: user agent, client IP, locale, ingestion time.
func attachRequestContext(raw *model.RawEvent, c *gin.Context) {
	if raw.Context == nil {
		raw.Context = &model.EventContext{}
	}
	ctx := raw.Context
	if ctx.UserAgent == "" {
		ctx.UserAgent = c.GetHeader("User-Agent")
	}
	if ctx.IP == "" {
		ctx.IP = c.ClientIP()
	}
	if ctx.Locale == "" {
		if lang := c.GetHeader("Accept-Language"); lang != "" {
			ctx.Locale = strings.TrimSpace(strings.SplitN(strings.Split(lang, ",")[0], ";", 2)[0])
		}
	}
	if ctx.ReceivedAt == 0 {
		ctx.ReceivedAt = time.Now().UnixMilli()
	}
}

func publish(c *gin.Context, writer *kafkago.Writer, raw model.RawEvent, logger *zap.Logger) {
	payload, err := json.Marshal(raw)
	if err != nil {
		logger.Error("marshal raw event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode event"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(raw.ProjectID),
		Value: payload,
	}); err != nil {
		logger.Error("write kafka", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func graceful(server *http.Server, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down ingest API")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}
