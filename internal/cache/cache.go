// Package cache is the fast tier of the resolution pipeline. Strategy is a
// closed type with a fixed TTL table (SPEC_FULL.md §9 Design Note) rather
// than a dynamic string-keyed dispatch: adding a strategy means adding a
// constant and a case, not adding a config key that can be typo'd.
package cache

import (
	"context"
	"time"

	"github.com/Abhii8084/token-price-storage-system/internal/domain"
)

// Strategy names one of the fixed cache tiers a PriceRecord can be stored
// under.
type Strategy string

const (
	StrategyHot          Strategy = "hot"
	StrategyWarm         Strategy = "warm"
	StrategyCold         Strategy = "cold"
	StrategyArchive      Strategy = "archive"
	StrategyInterpolated Strategy = "interpolated"
)

// TTLs lists the default TTL of each cacheable strategy; TTLFor itself
// reads a TTLConfig, not this table. Cold and archive are not
// cached at all (a lookup always misses through to the store), matching
// spec §4.3's description of them as store-tier concepts, not cache tiers.
var TTLs = map[Strategy]time.Duration{
	StrategyHot:          30 * time.Second,
	StrategyWarm:         10 * time.Minute,
	StrategyInterpolated: 2 * time.Minute,
}

// TTLFor returns the configured TTL for a strategy and reports whether the
// strategy is cacheable at all.
func TTLFor(cfg TTLConfig, s Strategy) (time.Duration, bool) {
	switch s {
	case StrategyHot:
		return cfg.Hot, true
	case StrategyWarm:
		return cfg.Warm, true
	case StrategyInterpolated:
		return cfg.Interpolated, true
	default:
		return 0, false
	}
}

// TTLConfig carries the operator-tunable durations for the three
// cacheable strategies; it mirrors config.CacheTTLs so this package does
// not import internal/config and create a cycle.
type TTLConfig struct {
	Hot          time.Duration
	Warm         time.Duration
	Interpolated time.Duration
}

// StrategyFor classifies a record by its provenance and age, deciding
// which tier a freshly resolved price belongs in.
func StrategyFor(rec domain.PriceRecord, now time.Time) Strategy {
	if rec.Provenance == domain.Interpolated {
		return StrategyInterpolated
	}
	if rec.Timestamp == nil {
		return StrategyHot
	}
	age := now.Sub(*rec.Timestamp)
	switch {
	case age <= time.Hour:
		return StrategyWarm
	case age <= 30*24*time.Hour:
		return StrategyCold
	default:
		return StrategyArchive
	}
}

// Cache is the fast lookup tier the resolution pipeline consults first.
// The contract mirrors spec §4.2 literally: Set/Get/Delete/Exists/TTL,
// plus Ping/Close for lifecycle management the spec doesn't itself name.
type Cache interface {
	Get(ctx context.Context, token string, network domain.Network, ts *time.Time) (*domain.PriceRecord, bool, error)
	Set(ctx context.Context, rec domain.PriceRecord, strategy Strategy) error
	Delete(ctx context.Context, token string, network domain.Network, ts *time.Time) error
	Exists(ctx context.Context, token string, network domain.Network, ts *time.Time) (bool, error)
	TTL(ctx context.Context, token string, network domain.Network, ts *time.Time) (time.Duration, bool, error)
	Ping(ctx context.Context) error
	Close() error
}
