package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SNU-SE/analysisq/internal/backoff"
	"github.com/SNU-SE/analysisq/internal/broker"
	"github.com/SNU-SE/analysisq/internal/config"
	"github.com/SNU-SE/analysisq/internal/job"
	"github.com/SNU-SE/analysisq/internal/notify"
	"github.com/SNU-SE/analysisq/internal/pool"
	"github.com/SNU-SE/analysisq/internal/provider"
	"github.com/SNU-SE/analysisq/internal/storage/postgres"
	"github.com/SNU-SE/analysisq/internal/worker"
	"github.com/SNU-SE/analysisq/middleware"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	logger, err := config.NewLogger(cfg.Env)
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}
	defer logger.Sync()

	db, err := postgres.ConnectDB(ctx, nil, logger)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	if err := postgres.RunMigrations(db); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	br, err := buildBroker(ctx, cfg)
	if err != nil {
		logger.Fatal("broker setup failed", zap.Error(err))
	}
	defer br.Close()

	repo := postgres.NewJobRepository(db)
	service := job.NewJobService(repo, br, cfg.MaxAttempts, logger)
	handler := job.NewJobHandler(service)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestLogger(logger),
		middleware.TimeoutMiddleware(cfg.RequestTimeout),
		middleware.ErrorHandler(),
	)
	handler.RegisterRoutes(r)

	// The memory broker exists only inside this process, so the worker
	// pool has to live here too. With redis the fleet runs separately.
	if cfg.Broker == config.BrokerMemory {
		workers := pool.NewWorkerPool(pool.Config{
			Workers:        cfg.Concurrency,
			StaleAfter:     cfg.StaleAfter,
			ReconcileAfter: cfg.ReconcileAfter,
			JanitorTick:    cfg.JanitorTick,
		}, worker.Deps{
			Repo:     repo,
			Broker:   br,
			Registry: buildRegistry(),
			Notifier: buildNotifier(cfg, logger),
			Alerter:  notify.NewLogAlerter(logger),
			Policy: backoff.Policy{
				Base:   cfg.BackoffBase,
				Max:    cfg.BackoffMax,
				Jitter: cfg.BackoffJitter,
			},
			Log: logger,
		})
		workers.Start()
		defer workers.Stop()
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("broker", cfg.Broker),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildBroker(ctx context.Context, cfg *config.Config) (broker.Broker, error) {
	if cfg.Broker == config.BrokerRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.RedisAddr, err)
		}
		return broker.NewRedis(client), nil
	}
	return broker.NewMemory(), nil
}

func buildRegistry() *provider.Registry {
	reg := provider.NewRegistry()
	for _, name := range config.KnownProviders {
		reg.Register(provider.NewSimulated(name, 2*time.Second))
	}
	return reg
}

func buildNotifier(cfg *config.Config, logger *zap.Logger) notify.Notifier {
	if cfg.WebhookURL != "" {
		return notify.NewWebhookNotifier(cfg.WebhookURL, 5*time.Second, logger)
	}
	return notify.NewLogNotifier(logger)
}
