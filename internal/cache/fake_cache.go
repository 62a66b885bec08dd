package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Abhii8084/token-price-storage-system/internal/domain"
)

// fakeCacheTTLs stands in for the operator-configured TTLConfig a real
// Redis deployment would use, so FakeCache's Exists/TTL report a
// meaningful decaying value instead of always "present forever".
var fakeCacheTTLs = TTLConfig{Hot: 30 * time.Second, Warm: 10 * time.Minute, Interpolated: 2 * time.Minute}

type fakeEntry struct {
	rec       domain.PriceRecord
	expiresAt time.Time
}

// FakeCache is an in-memory Cache, in the teacher's map-backed mock style,
// used by resolution-pipeline tests that should not need a Redis server.
type FakeCache struct {
	mu      sync.Mutex
	entries map[string]fakeEntry
	pingErr error
	appName string
}

func NewFakeCache(appName string) *FakeCache {
	return &FakeCache{entries: map[string]fakeEntry{}, appName: appName}
}

func (f *FakeCache) Get(ctx context.Context, token string, network domain.Network, ts *time.Time) (*domain.PriceRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key(f.appName, token, network, ts)]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	cp := e.rec
	return &cp, true, nil
}

func (f *FakeCache) Set(ctx context.Context, rec domain.PriceRecord, strategy Strategy) error {
	ttl, cacheable := TTLFor(fakeCacheTTLs, strategy)
	if !cacheable {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key(f.appName, rec.Token, rec.Network, rec.Timestamp)] = fakeEntry{rec: rec, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (f *FakeCache) Delete(ctx context.Context, token string, network domain.Network, ts *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key(f.appName, token, network, ts))
	return nil
}

// Exists reports whether a key is present and unexpired, per spec §4.2's
// Exists(key) contract operation.
func (f *FakeCache) Exists(ctx context.Context, token string, network domain.Network, ts *time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key(f.appName, token, network, ts)]
	if !ok || time.Now().After(e.expiresAt) {
		return false, nil
	}
	return true, nil
}

// TTL reports the remaining time-to-live of a key, per spec §4.2's
// TTL(key) contract operation. A missing or expired key returns
// ok=false, matching Redis's TTL semantics.
func (f *FakeCache) TTL(ctx context.Context, token string, network domain.Network, ts *time.Time) (time.Duration, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key(f.appName, token, network, ts)]
	if !ok {
		return 0, false, nil
	}
	remaining := time.Until(e.expiresAt)
	if remaining <= 0 {
		return 0, false, nil
	}
	return remaining, true, nil
}

func (f *FakeCache) Ping(ctx context.Context) error { return f.pingErr }
func (f *FakeCache) Close() error                   { return nil }

func (f *FakeCache) SetPingErr(err error) { f.pingErr = err }

// Len reports the number of cached entries, used by TTL/eviction tests.
func (f *FakeCache) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
