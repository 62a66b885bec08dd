package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Abhii8084/token-price-storage-system/internal/api"
	"github.com/Abhii8084/token-price-storage-system/internal/cache"
	"github.com/Abhii8084/token-price-storage-system/internal/config"
	"github.com/Abhii8084/token-price-storage-system/internal/interpolate"
	"github.com/Abhii8084/token-price-storage-system/internal/logger"
	"github.com/Abhii8084/token-price-storage-system/internal/oracle"
	"github.com/Abhii8084/token-price-storage-system/internal/queue"
	"github.com/Abhii8084/token-price-storage-system/internal/resolve"
	"github.com/Abhii8084/token-price-storage-system/internal/store"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadAPI()
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

	priceQueue := queue.New(queue.NamePriceProcessing, queueStore, queue.Config{Concurrency: 1, MaxAttempts: 5}, nil)
	batchQueue := queue.New(queue.NameBatchProcessing, queueStore, queue.Config{Concurrency: 1, MaxAttempts: 3}, nil)

	pipeline := &resolve.Pipeline{
		Cache:      redisCache,
		Store:      pg,
		Oracle:     oracleClient,
		PriceQueue: priceQueue,
		Cfg: resolve.Config{
			Interpolation: interpolate.Config{
				MaxDataPoints:              cfg.Interpolation.MaxDataPoints,
				MaxTimeGapHours:            cfg.Interpolation.MaxTimeGapHours,
				MinConfidenceThreshold:     cfg.Interpolation.MinConfidenceThreshold,
				ExtrapolationMaxChangePct:  cfg.Interpolation.ExtrapolationMaxChangePct,
			},
		},
	}

	h := &api.Handler{
		Pipeline:   pipeline,
		Store:      pg,
		Cache:      redisCache,
		Oracle:     oracleClient,
		PriceQueue: priceQueue,
		BatchQueue: batchQueue,
	}

	gin.SetMode(ginMode(cfg.Stage))
	r := gin.New()
	r.Use(gin.Recovery())
	h.Routes(r)

	srv := &http.Server{Addr: cfg.Addr, Handler: r}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("api-gateway listening", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}

func ginMode(stage string) string {
	if stage == "prod" {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}
