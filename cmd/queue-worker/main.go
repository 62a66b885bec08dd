package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/Abhii8084/token-price-storage-system/internal/cache"
	"github.com/Abhii8084/token-price-storage-system/internal/config"
	"github.com/Abhii8084/token-price-storage-system/internal/interpolate"
	"github.com/Abhii8084/token-price-storage-system/internal/lifecycle"
	"github.com/Abhii8084/token-price-storage-system/internal/logger"
	"github.com/Abhii8084/token-price-storage-system/internal/oracle"
	"github.com/Abhii8084/token-price-storage-system/internal/queue"
	"github.com/Abhii8084/token-price-storage-system/internal/store"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadQueueWorker()
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
		Hot:          cfg.CacheTTLs.Hot,
		Warm:         cfg.CacheTTLs.Warm,
		Interpolated: cfg.CacheTTLs.Interpolated,
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

	interpCfg := interpolate.Config{
		MaxDataPoints:             cfg.Interpolation.MaxDataPoints,
		MaxTimeGapHours:           cfg.Interpolation.MaxTimeGapHours,
		MinConfidenceThreshold:    cfg.Interpolation.MinConfidenceThreshold,
		ExtrapolationMaxChangePct: cfg.Interpolation.ExtrapolationMaxChangePct,
	}

	priceHandler := queue.NewPriceProcessingHandler(pg, oracleClient, redisCache, interpCfg)
	priceQueue := queue.New(queue.NamePriceProcessing, queueStore, queue.Config{
		Concurrency: cfg.PriceQueue.Concurrency,
		MaxAttempts: cfg.PriceQueue.MaxAttempts,
		BackoffBase: cfg.PriceQueue.BackoffBase,
		IdleDelay:   cfg.PriceQueue.IdleDelay,
	}, priceHandler)

	mgr := &lifecycle.Manager{Store: pg, Cache: redisCache, Oracle: oracleClient}
	batchQueue := queue.New(queue.NameBatchProcessing, queueStore, queue.Config{
		Concurrency: cfg.BatchQueue.Concurrency,
		MaxAttempts: cfg.BatchQueue.MaxAttempts,
		BackoffBase: cfg.BatchQueue.BackoffBase,
		IdleDelay:   cfg.BatchQueue.IdleDelay,
	}, mgr.BatchProcessingHandler())
	mgr.BatchQueue = batchQueue

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		priceQueue.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		batchQueue.Run(ctx)
	}()

	logger.Info("queue-worker started",
		zap.Int("priceConcurrency", cfg.PriceQueue.Concurrency),
		zap.Int("batchConcurrency", cfg.BatchQueue.Concurrency))
	wg.Wait()
	logger.Info("queue-worker stopped")
}
