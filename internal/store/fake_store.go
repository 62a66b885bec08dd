package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Abhii8084/token-price-storage-system/internal/domain"
)

// FakeStore is an in-memory Store, in the teacher's MockStore style
// (plain maps guarded by a mutex, no SQL), used by package tests that
// exercise the resolution pipeline and queue workers without Postgres.
type FakeStore struct {
	mu sync.Mutex

	prices  map[string]domain.PriceRecord // key: token|network|timestampKey
	rollups map[string]domain.DailyRollup // key: token|network|date
	tokens  map[string]domain.TokenEntry  // key: token|network
	stats   map[string]*domain.CacheStatsBucket
	pingErr error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		prices:  map[string]domain.PriceRecord{},
		rollups: map[string]domain.DailyRollup{},
		tokens:  map[string]domain.TokenEntry{},
		stats:   map[string]*domain.CacheStatsBucket{},
	}
}

func priceKey(token string, network domain.Network, ts *time.Time) string {
	k := "current"
	if ts != nil {
		k = ts.UTC().Format(time.RFC3339)
	}
	return token + "|" + string(network) + "|" + k
}

func tokenKey(token string, network domain.Network) string {
	return token + "|" + string(network)
}

func (f *FakeStore) StorePrice(ctx context.Context, rec domain.PriceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[priceKey(rec.Token, rec.Network, rec.Timestamp)] = rec

	if rec.Timestamp != nil {
		date := rec.Timestamp.UTC().Format("2006-01-02")
		rk := rec.Token + "|" + string(rec.Network) + "|" + date
		roll, ok := f.rollups[rk]
		if !ok {
			roll = domain.DailyRollup{
				Token: rec.Token, Network: rec.Network, Date: date,
				FirstUSD: rec.USD, LastUSD: rec.USD, MinUSD: rec.USD, MaxUSD: rec.USD,
			}
		}
		roll.Count++
		roll.LastUSD = rec.USD
		if rec.USD.LessThan(roll.MinUSD) {
			roll.MinUSD = rec.USD
		}
		if rec.USD.GreaterThan(roll.MaxUSD) {
			roll.MaxUSD = rec.USD
		}
		roll.Prices = append(roll.Prices, domain.DailyRollupEntry{Timestamp: *rec.Timestamp, USD: rec.USD, Source: rec.Provenance})
		roll.UpdatedAt = time.Now().UTC()
		f.rollups[rk] = roll
	}
	return nil
}

func (f *FakeStore) GetPrice(ctx context.Context, token string, network domain.Network, ts *time.Time) (*domain.PriceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.prices[priceKey(token, network, ts)]
	if !ok {
		return nil, nil
	}
	cp := rec
	return &cp, nil
}

func (f *FakeStore) GetNearestPrices(ctx context.Context, token string, network domain.Network, target time.Time, limit int) ([]domain.PriceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var before, after []domain.PriceRecord
	for _, rec := range f.prices {
		if rec.Token != token || rec.Network != network || rec.Timestamp == nil {
			continue
		}
		if rec.Timestamp.Before(target) {
			before = append(before, rec)
		} else if rec.Timestamp.After(target) {
			after = append(after, rec)
		}
	}
	sort.Slice(before, func(i, j int) bool { return before[i].Timestamp.After(*before[j].Timestamp) })
	sort.Slice(after, func(i, j int) bool { return after[i].Timestamp.Before(*after[j].Timestamp) })

	half := limit / 2
	if half < 1 {
		half = 1
	}
	if len(before) > half {
		before = before[:half]
	}
	if len(after) > half {
		after = after[:half]
	}

	out := make([]domain.PriceRecord, 0, len(before)+len(after))
	for i := len(before) - 1; i >= 0; i-- {
		out = append(out, before[i])
	}
	out = append(out, after...)
	return out, nil
}

func (f *FakeStore) GetPriceHistory(ctx context.Context, token string, network domain.Network, start, end time.Time) ([]domain.PriceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PriceRecord
	for _, rec := range f.prices {
		if rec.Token != token || rec.Network != network || rec.Timestamp == nil {
			continue
		}
		if rec.Timestamp.Before(start) || rec.Timestamp.After(end) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(*out[j].Timestamp) })
	return out, nil
}

func (f *FakeStore) GetAllTokens(ctx context.Context) ([]domain.TokenEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TokenEntry, 0, len(f.tokens))
	for _, t := range f.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (f *FakeStore) AddToken(ctx context.Context, token string, network domain.Network, creationDate *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := tokenKey(token, network)
	existing, ok := f.tokens[k]
	if !ok {
		f.tokens[k] = domain.TokenEntry{Token: token, Network: network, CreationDate: creationDate, AddedAt: time.Now().UTC()}
		return nil
	}
	if existing.CreationDate == nil {
		existing.CreationDate = creationDate
		f.tokens[k] = existing
	}
	return nil
}

func (f *FakeStore) GetToken(ctx context.Context, token string, network domain.Network) (*domain.TokenEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[tokenKey(token, network)]
	if !ok {
		return nil, nil
	}
	cp := t
	return &cp, nil
}

func (f *FakeStore) ArchiveOlderThan(ctx context.Context, days int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	var archived int64
	for k, rec := range f.prices {
		if rec.LastUpdated.Before(cutoff) {
			delete(f.prices, k)
			archived++
		}
	}
	return archived, nil
}

func (f *FakeStore) IncrCacheStat(ctx context.Context, date string, field string, strategy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.stats[date]
	if !ok {
		b = &domain.CacheStatsBucket{Date: date, ByStrategy: map[string]int64{}}
		f.stats[date] = b
	}
	switch field {
	case "hit":
		b.Hit++
	case "miss":
		b.Miss++
	case "set":
		b.Set++
	case "delete":
		b.Delete++
	}
	b.Total++
	b.ByStrategy[strategy]++
	return nil
}

func (f *FakeStore) GetCacheStats(ctx context.Context, date string) (*domain.CacheStatsBucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.stats[date]
	if !ok {
		return &domain.CacheStatsBucket{Date: date, ByStrategy: map[string]int64{}}, nil
	}
	cp := *b
	cp.ByStrategy = map[string]int64{}
	for k, v := range b.ByStrategy {
		cp.ByStrategy[k] = v
	}
	return &cp, nil
}

func (f *FakeStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *FakeStore) Close() {}

// SetPingErr lets tests force /health and pipeline StoreError paths.
func (f *FakeStore) SetPingErr(err error) { f.pingErr = err }
