package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abhii8084/token-price-storage-system/internal/domain"
	"github.com/Abhii8084/token-price-storage-system/internal/perrors"
)

// Redis is the production Cache, following the teacher's thin
// go-redis/v9-client-behind-a-struct approach.
type Redis struct {
	cli     *redis.Client
	ttl     TTLConfig
	appName string
}

func NewRedis(addr string, db int, ttl TTLConfig, appName string) *Redis {
	cli := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return &Redis{cli: cli, ttl: ttl, appName: appName}
}

func (r *Redis) Close() error { return r.cli.Close() }

func (r *Redis) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}

// key derives the wire key spec §4.2/§6 names:
// {appName}:price:{network}:{token_lc}:{timestamp|current}.
func key(appName, token string, network domain.Network, ts *time.Time) string {
	tk := "current"
	if ts != nil {
		tk = ts.UTC().Format(time.RFC3339)
	}
	return appName + ":price:" + string(network) + ":" + token + ":" + tk
}

func (r *Redis) Get(ctx context.Context, token string, network domain.Network, ts *time.Time) (*domain.PriceRecord, bool, error) {
	raw, err := r.cli.Get(ctx, key(r.appName, token, network, ts)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, perrors.Cache(err, "redis get")
	}
	var rec domain.PriceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, perrors.Cache(err, "redis unmarshal")
	}
	return &rec, true, nil
}

func (r *Redis) Set(ctx context.Context, rec domain.PriceRecord, strategy Strategy) error {
	ttl, cacheable := TTLFor(r.ttl, strategy)
	if !cacheable {
		return nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return perrors.Cache(err, "redis marshal")
	}
	if err := r.cli.Set(ctx, key(r.appName, rec.Token, rec.Network, rec.Timestamp), raw, ttl).Err(); err != nil {
		return perrors.Cache(err, "redis set")
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, token string, network domain.Network, ts *time.Time) error {
	if err := r.cli.Del(ctx, key(r.appName, token, network, ts)).Err(); err != nil {
		return perrors.Cache(err, "redis delete")
	}
	return nil
}

// Exists reports whether a key is currently present, per spec §4.2's
// Exists(key) contract operation.
func (r *Redis) Exists(ctx context.Context, token string, network domain.Network, ts *time.Time) (bool, error) {
	n, err := r.cli.Exists(ctx, key(r.appName, token, network, ts)).Result()
	if err != nil {
		return false, perrors.Cache(err, "redis exists")
	}
	return n > 0, nil
}

// TTL reports the remaining time-to-live of a key, per spec §4.2's
// TTL(key) contract operation. A missing key returns zero with ok=false.
func (r *Redis) TTL(ctx context.Context, token string, network domain.Network, ts *time.Time) (time.Duration, bool, error) {
	d, err := r.cli.TTL(ctx, key(r.appName, token, network, ts)).Result()
	if err != nil {
		return 0, false, perrors.Cache(err, "redis ttl")
	}
	if d < 0 {
		return 0, false, nil
	}
	return d, true, nil
}
