package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"pulse-analytics/internal/config"
	"pulse-analytics/internal/consumer"
	ikafka "pulse-analytics/internal/kafka"
	"pulse-analytics/internal/model"
	"pulse-analytics/internal/storage"
	"pulse-analytics/pkg/batcher"
)

var (
	msgsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_msgs_consumed_total",
		Help: "Total messages fetched from the event stream",
	})
	rowsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_rows_inserted_total",
		Help: "Total canonical rows persisted",
	})
	payloadsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_payloads_skipped_total",
		Help: "Payloads dropped for decode or normalization failures",
	})
	batchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_batch_failures_total",
		Help: "Batches left uncommitted for stream redelivery",
	})
	batchSizeHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "consumer_batch_size",
		Help:    "Histogram of insert batch sizes",
		Buckets: []float64{1, 10, 25, 50, 100, 250, 500},
	})
	insertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "consumer_insert_duration_seconds",
		Help:    "Duration of storage insert operations",
		Buckets: prometheus.DefBuckets,
	})
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
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}
	logger.Info("storage ready", zap.String("backend", cfg.StorageBackend))

	reader := ikafka.NewReader(cfg.KafkaBrokers, cfg.KafkaTopicEvents, cfg.KafkaGroup)
	defer reader.Close()

	cons := consumer.New(store, logger)

	flush := newFlush(cons, reader.CommitMessages, cfg.InsertTimeout, logger, cancel)
	b := batcher.New[kafkago.Message](ctx, cfg.BatchSize, cfg.BatchInterval, flush)
	defer b.Close()

	go serveMetrics(logger, cfg.ConsumerMetricsAddr)
	go handleSignals(cancel)

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Warn("fetch message", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		msgsConsumed.Inc()
		if err := b.Add(ctx, m); err != nil {
			logger.Error("stopping after failed flush", zap.Error(err))
			break
		}
	}
	logger.Info("consumer shutdown complete")
}

// newFlush builds the batch flush step: normalize and insert with retry, then
// commit the batch's offsets. A terminal insert failure aborts the process
// before any later batch can commit: committing a higher offset would
// implicitly commit the failed batch too, and its events would never be
// redelivered. Exiting uncommitted lets the group rebalance and replay them;
// deterministic event ids make the replay idempotent.
func newFlush(
	cons *consumer.Consumer,
	commit func(context.Context, ...kafkago.Message) error,
	insertTimeout time.Duration,
	logger *zap.Logger,
	abort context.CancelFunc,
) func(context.Context, []kafkago.Message) error {
	return func(ctx context.Context, msgs []kafkago.Message) error {
		payloads := make([][]byte, len(msgs))
		for i, m := range msgs {
			payloads[i] = m.Value
		}
		res, err := consumeWithRetry(ctx, cons, payloads, insertTimeout)
		if err != nil {
			batchFailures.Inc()
			logger.Error("batch failed, stopping so the group redelivers it",
				zap.Int("payloads", len(payloads)), zap.Error(err))
			abort()
			return err
		}
		rowsInserted.Add(float64(res.Inserted))
		payloadsSkipped.Add(float64(res.Skipped))
		batchSizeHistogram.Observe(float64(res.Inserted))
		return commit(ctx, msgs...)
	}
}

// consumeWithRetry retries transient storage failures with exponential
// backoff before surfacing the error for stream-level redelivery.
// Deterministic event ids make re-running the batch safe.
func consumeWithRetry(ctx context.Context, cons *consumer.Consumer, payloads [][]byte, timeout time.Duration) (consumer.BatchResult, error) {
	const maxAttempts = 5
	backoff := 200 * time.Millisecond
	start := time.Now()
	var res consumer.BatchResult
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		insertCtx, cancel := context.WithTimeout(ctx, timeout)
		res, err = cons.ConsumeBatch(insertCtx, payloads)
		cancel()
		if err == nil {
			insertDuration.Observe(time.Since(start).Seconds())
			return res, nil
		}
		if !model.IsRetryable(err) || attempt == maxAttempts {
			return res, err
		}
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 5*time.Second {
			backoff = 5 * time.Second
		}
	}
	return res, err
}

func serveMetrics(logger *zap.Logger, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("metrics server failed", zap.Error(err))
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()
}
