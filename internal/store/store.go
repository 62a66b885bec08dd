// Package store owns PriceRecords and TokenEntries on disk (SPEC_FULL.md
// §4.2). The Store interface generalizes the teacher's transfer/hourly
// store to the price/rollup/token shape this system needs.
package store

import (
	"context"
	"time"

	"github.com/Abhii8084/token-price-storage-system/internal/domain"
)

// Store is the durable-store contract every process role depends on
// through an interface, never a concrete driver, so tests can substitute a
// fake (see fake_store.go).
type Store interface {
	// StorePrice upserts by (token, network, timestamp) and, when
	// timestamp is present, folds the record into that day's rollup.
	StorePrice(ctx context.Context, rec domain.PriceRecord) error

	// GetPrice does an exact match when ts is non-nil, else reads the
	// current-price row (SPEC_FULL.md §9 Open Question (b)).
	GetPrice(ctx context.Context, token string, network domain.Network, ts *time.Time) (*domain.PriceRecord, error)

	// GetNearestPrices returns up to limit/2 records immediately before and
	// up to limit/2 immediately after target (at least 1 per side when
	// limit < 2), merged and sorted ascending.
	GetNearestPrices(ctx context.Context, token string, network domain.Network, target time.Time, limit int) ([]domain.PriceRecord, error)

	GetPriceHistory(ctx context.Context, token string, network domain.Network, start, end time.Time) ([]domain.PriceRecord, error)

	GetAllTokens(ctx context.Context) ([]domain.TokenEntry, error)
	AddToken(ctx context.Context, token string, network domain.Network, creationDate *time.Time) error
	GetToken(ctx context.Context, token string, network domain.Network) (*domain.TokenEntry, error)

	// ArchiveOlderThan atomically copies prices whose LastUpdated exceeds
	// the threshold into the archive, then deletes them from the live table.
	ArchiveOlderThan(ctx context.Context, days int) (archived int64, err error)

	IncrCacheStat(ctx context.Context, date string, field string, strategy string) error
	GetCacheStats(ctx context.Context, date string) (*domain.CacheStatsBucket, error)

	// Ping verifies connectivity for /health.
	Ping(ctx context.Context) error

	Close()
}
