package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"claimease/internal/api"
	"claimease/internal/artifacts"
	"claimease/internal/config"
	"claimease/internal/jobs"
	"claimease/internal/jobstore"
	"claimease/internal/logging"
	"claimease/internal/queue"
	"claimease/internal/ratelimit"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env, "gateway")

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

	s3Client, err := artifacts.NewClient(ctx, cfg)
	if err != nil {
		logger.Error("init artifact store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	artifactStore := artifacts.NewStore(s3Client, cfg.DocumentsBucket, cfg.FormsBucket)

	intake := queue.NewIntakeQueue(redisClient, cfg.QueueName)
	service := jobs.NewService(store, intake, logger)
	limiter := ratelimit.NewLimiter(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill)

	server := api.New(service, artifactStore, limiter, logger, cfg.ArtifactMaxBytes)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	logger.Info("gateway listening", slog.String("port", cfg.HTTPPort))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", slog.String("error", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
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
