package queue

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/Abhii8084/token-price-storage-system/internal/cache"
	"github.com/Abhii8084/token-price-storage-system/internal/domain"
	"github.com/Abhii8084/token-price-storage-system/internal/interpolate"
	"github.com/Abhii8084/token-price-storage-system/internal/logger"
	"github.com/Abhii8084/token-price-storage-system/internal/oracle"
	"github.com/Abhii8084/token-price-storage-system/internal/perrors"
	"github.com/Abhii8084/token-price-storage-system/internal/store"
)

// NewPriceProcessingHandler builds the price-processing queue handler:
// retry the oracle, fall through to interpolation, otherwise report no
// data — spec §4.6's deferred-fill contract. Idempotence is a
// Store.GetPrice check before doing any external work.
func NewPriceProcessingHandler(st store.Store, oc *oracle.Client, ch cache.Cache, interpCfg interpolate.Config) Handler {
	return func(ctx context.Context, job Job) error {
		var payload PricePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return perrors.Validation("unmarshal price-processing payload: %v", err)
		}

		existing, err := st.GetPrice(ctx, payload.Token, payload.Network, payload.Timestamp)
		if err != nil {
			return err
		}
		if existing != nil && !existing.InterpolatedFlag {
			return nil
		}

		if rec, err := oc.GetPriceWithRetry(ctx, payload.Token, payload.Network, payload.Timestamp); err == nil && rec != nil {
			return writeThrough(ctx, st, ch, *rec)
		} else if err != nil && !perrors.Is(err, perrors.KindOracleTransient) && !perrors.Is(err, perrors.KindOracleDefinitive) {
			return err
		}

		target := time.Now().UTC()
		if payload.Timestamp != nil {
			target = *payload.Timestamp
		}
		rec, err := interpolate.Interpolate(ctx, st, payload.Token, payload.Network, target, interpCfg)
		if err == nil && rec != nil {
			return writeThrough(ctx, st, ch, *rec)
		}
		if err != nil && !perrors.Is(err, perrors.KindInterpolationDeclined) {
			return err
		}

		logger.Info("price-processing job found no data",
			zap.String("token", payload.Token), zap.String("network", string(payload.Network)))
		return nil
	}
}

func writeThrough(ctx context.Context, st store.Store, ch cache.Cache, rec domain.PriceRecord) error {
	if err := st.StorePrice(ctx, rec); err != nil {
		return err
	}
	strategy := cache.StrategyFor(rec, time.Now().UTC())
	if err := ch.Set(ctx, rec, strategy); err != nil {
		logger.Warn("cache write-through failed", zap.Error(err))
	} else if err := st.IncrCacheStat(ctx, time.Now().UTC().Format("2006-01-02"), "set", string(strategy)); err != nil {
		logger.Warn("cache stat increment failed", zap.String("field", "set"), zap.Error(err))
	}
	return nil
}
