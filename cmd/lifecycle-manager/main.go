package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Abhii8084/token-price-storage-system/internal/cache"
	"github.com/Abhii8084/token-price-storage-system/internal/config"
	"github.com/Abhii8084/token-price-storage-system/internal/lifecycle"
	"github.com/Abhii8084/token-price-storage-system/internal/logger"
	"github.com/Abhii8084/token-price-storage-system/internal/metrics"
	"github.com/Abhii8084/token-price-storage-system/internal/oracle"
	"github.com/Abhii8084/token-price-storage-system/internal/queue"
	"github.com/Abhii8084/token-price-storage-system/internal/store"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadLifecycle()
	logger.Init(cfg.Stage)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pg, err := store.NewPostgres(ctx, cfg.PgDSN)
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	defer pg.Close()

	redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisDB, cache.TTLConfig{
		Hot: 30 * time.Second, Warm: 10 * time.Minute, Interpolated: 2 * time.Minute,
	}, cfg.AppName)
	defer redisCache.Close()

	oracleClient := oracle.NewClient(oracle.Config{
		NetworkEndpoints: cfg.Oracle.NetworkEndpoints,
		APIKey:           cfg.Oracle.APIKey,
		MaxRetries:       cfg.Oracle.MaxRetries,
		RetryDelay:       cfg.Oracle.RetryDelay,
		RateLimitPerSec:  cfg.Oracle.RateLimitPerSec,
		BatchSize:        cfg.Oracle.BatchSize,
	})

	queueStore, err := queue.NewPostgresStore(ctx, cfg.PgDSN)
	if err != nil {
		logger.Fatal("queue store init failed", zap.Error(err))
	}
	defer queueStore.Close()

	batchQueue := queue.New(queue.NameBatchProcessing, queueStore, queue.Config{Concurrency: 1, MaxAttempts: 3}, nil)

	popularPairs := make([]lifecycle.PopularPair, 0, len(cfg.PopularPairs))
	for _, p := range cfg.PopularPairs {
		popularPairs = append(popularPairs, lifecycle.PopularPair{Token: p.Token, Network: p.Network})
	}

	mgr := &lifecycle.Manager{
		Store:      pg,
		Cache:      redisCache,
		Oracle:     oracleClient,
		BatchQueue: batchQueue,
		Sink:       metrics.NewLogSink(),
		Schedules: lifecycle.Schedules{
			CacheCleanup:         cfg.CronSchedules.CacheCleanup,
			DataArchival:         cfg.CronSchedules.DataArchival,
			CacheWarming:         cfg.CronSchedules.CacheWarming,
			CacheWarmingEnabled:  cfg.CronSchedules.CacheWarmingEnabled,
			MetricsCollection:    cfg.CronSchedules.MetricsCollection,
			MetricsEnabled:       cfg.CronSchedules.MetricsEnabled,
			DBOptimization:       cfg.CronSchedules.DBOptimization,
			DailyHistoricalFetch: cfg.CronSchedules.DailyHistoricalFetch,
		},
		Retention:    lifecycle.Retention{ArchiveThresholdDays: cfg.Retention.ArchiveThresholdDays},
		PopularPairs: popularPairs,
	}

	logger.Info("lifecycle-manager started")
	mgr.Run(ctx)
	logger.Info("lifecycle-manager stopped")
}
