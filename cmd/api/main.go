package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Mister-Storm/slipnotify"
	"github.com/Mister-Storm/slipnotify/api"
	"github.com/Mister-Storm/slipnotify/config"
	"github.com/Mister-Storm/slipnotify/observability"
	"github.com/Mister-Storm/slipnotify/ratelimit"
	"github.com/Mister-Storm/slipnotify/store"
	"github.com/Mister-Storm/slipnotify/store/memory"
	"github.com/Mister-Storm/slipnotify/store/redis"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	st := newStore(cfg, logger)
	defer st.Close()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	notifier, err := slipnotify.New(
		slipnotify.WithStore(st),
		slipnotify.WithLogger(logger),
		slipnotify.WithMetrics(metrics),
		slipnotify.WithTracer(observability.NewTracer()),
		slipnotify.WithRequestTimeout(cfg.RequestTimeout),
		slipnotify.WithMaxRetries(cfg.MaxRetries),
		slipnotify.WithRetryDelay(cfg.RetryDelay),
		slipnotify.WithMaxAttempts(cfg.MaxAttempts),
		slipnotify.WithSweepInterval(cfg.SweepInterval),
		slipnotify.WithSweepBatchSize(cfg.SweepBatchSize),
		slipnotify.WithBreaker(cfg.BreakerFailureThreshold, cfg.BreakerOpenFor),
	)
	if err != nil {
		return err
	}

	notifier.Start(ctx)
	defer notifier.Stop(context.Background())

	limiter := ratelimit.New(ratelimit.Config{
		Limit:        cfg.RateLimit,
		Window:       cfg.RateLimitWindow,
		IdleEviction: cfg.RateLimitIdleEviction,
	})
	limiter.Start(ctx)
	defer limiter.Stop(context.Background())

	handler := api.NewHandler(notifier, api.Options{
		Limiter:        limiter,
		Registry:       registry,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Metrics:        metrics,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errShutdown := make(chan error, 1)
	go shutdown(ctx, srv, logger, errShutdown)

	logger.Info("listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-errShutdown
}

// newStore picks redis when an address is configured, memory otherwise.
func newStore(cfg *config.Config, logger *slog.Logger) store.Store {
	if cfg.RedisAddr == "" {
		logger.Info("using in-memory store")
		return memory.New()
	}
	logger.Info("using redis store", "addr", cfg.RedisAddr)
	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	return redis.New(rdb)
}

func shutdown(ctx context.Context, srv *http.Server, logger *slog.Logger, errShutdown chan error) {
	<-ctx.Done()

	logger.Info("shutting down")
	ctxTimeout, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errShutdown <- srv.Shutdown(ctxTimeout)
}
