package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"claimease/internal/config"
	"claimease/internal/jobstore"
	"claimease/internal/logging"
	"claimease/internal/pipeline"
	"claimease/internal/queue"
	"claimease/internal/stage"
	"claimease/internal/telemetry"
	"claimease/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env, "worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	store, closeStore, err := openJobStore(ctx, cfg, redisClient)
	if err != nil {
		logger.Error("open job store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	stages := stage.NewClient(stage.StaticResolver(cfg.StageAddrs()), cfg.StageTimeout)
	executor := pipeline.NewExecutor(store, stages, logger)
	intake := queue.NewIntakeQueue(redisClient, cfg.QueueName)
	consumer := worker.NewConsumer(intake, executor, logger, cfg.DequeueTimeout, cfg.DequeueBackoff)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			logger.Warn("metrics server stopped", slog.String("error", err.Error()))
		}
	}()

	logger.Info("worker started",
		slog.String("queue", cfg.QueueName),
		slog.Duration("stage_timeout", cfg.StageTimeout),
	)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func openJobStore(ctx context.Context, cfg config.Config, redisClient *redis.Client) (jobstore.Store, func(), error) {
	if cfg.JobStoreBackend == "postgres" {
		pg, err := jobstore.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.RunMigrations(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}
	return jobstore.NewRedisStore(redisClient), func() {}, nil
}
