package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhii8084/token-price-storage-system/internal/cache"
	"github.com/Abhii8084/token-price-storage-system/internal/domain"
	"github.com/Abhii8084/token-price-storage-system/internal/interpolate"
	"github.com/Abhii8084/token-price-storage-system/internal/oracle"
	"github.com/Abhii8084/token-price-storage-system/internal/perrors"
	"github.com/Abhii8084/token-price-storage-system/internal/queue"
	"github.com/Abhii8084/token-price-storage-system/internal/store"
)

const testToken = "0x2222222222222222222222222222222222222222"

func newTestPipeline() (*Pipeline, *cache.FakeCache, *store.FakeStore, *oracle.FakeAdapter, *queue.Queue, *queue.FakeStore) {
	fc := cache.NewFakeCache("tokenprice")
	fs := store.NewFakeStore()
	fa := oracle.NewFakeAdapter()
	oc := oracle.NewClientWithAdapters(oracle.Config{MaxRetries: 1, RetryDelay: time.Millisecond},
		map[domain.Network]oracle.ProviderAdapter{domain.NetworkEthereum: fa})
	qs := queue.NewFakeStore()
	q := queue.New(queue.NamePriceProcessing, qs, queue.Config{MaxAttempts: 3}, nil)
	p := &Pipeline{
		Cache:      fc,
		Store:      fs,
		Oracle:     oc,
		PriceQueue: q,
		Cfg: Config{Interpolation: interpolate.Config{
			MaxDataPoints: 20, MaxTimeGapHours: 72, MinConfidenceThreshold: 0.1, ExtrapolationMaxChangePct: 50,
		}},
	}
	return p, fc, fs, fa, q, qs
}

func TestResolve_RejectsMalformedToken(t *testing.T) {
	p, _, _, _, _, _ := newTestPipeline()
	_, err := p.Resolve(context.Background(), "not-a-token", domain.NetworkEthereum, nil)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.KindValidation))
}

func TestResolve_RejectsUnsupportedNetwork(t *testing.T) {
	p, _, _, _, _, _ := newTestPipeline()
	_, err := p.Resolve(context.Background(), testToken, domain.Network("nonexistent"), nil)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.KindValidation))
}

func TestResolve_CacheHit(t *testing.T) {
	p, fc, _, _, _, _ := newTestPipeline()
	rec := domain.PriceRecord{Token: testToken, Network: domain.NetworkEthereum, USD: decimal.NewFromInt(42), Provenance: domain.FromCache}
	require.NoError(t, fc.Set(context.Background(), rec, cache.StrategyHot))

	reply, err := p.Resolve(context.Background(), testToken, domain.NetworkEthereum, nil)
	require.NoError(t, err)
	require.NotNil(t, reply.Record)
	assert.True(t, reply.Record.USD.Equal(decimal.NewFromInt(42)))
	assert.False(t, reply.Queued)
}

func TestResolve_StoreHitRepopulatesCache(t *testing.T) {
	p, fc, fs, _, _, _ := newTestPipeline()
	rec := domain.PriceRecord{Token: testToken, Network: domain.NetworkEthereum, USD: decimal.NewFromInt(7), Provenance: domain.FromDB}
	require.NoError(t, fs.StorePrice(context.Background(), rec))

	reply, err := p.Resolve(context.Background(), testToken, domain.NetworkEthereum, nil)
	require.NoError(t, err)
	require.NotNil(t, reply.Record)
	assert.Equal(t, domain.FromDB, reply.Record.Provenance)
	assert.Equal(t, 1, fc.Len())

	// Tier 2 always repopulates with the "warm" strategy per spec §4.1,
	// even though this record has a nil timestamp (which StrategyFor would
	// otherwise classify as "hot"): the TTL left on the key must exceed
	// hot's TTL.
	ttl, ok, err := fc.TTL(context.Background(), testToken, domain.NetworkEthereum, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ttl > cache.TTLs[cache.StrategyHot])

	today := time.Now().UTC().Format("2006-01-02")
	stats, err := fs.GetCacheStats(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Miss)
	assert.Equal(t, int64(1), stats.Set)
}

func TestResolve_CacheHitRecordsHitStat(t *testing.T) {
	p, fc, fs, _, _, _ := newTestPipeline()
	rec := domain.PriceRecord{Token: testToken, Network: domain.NetworkEthereum, USD: decimal.NewFromInt(42), Provenance: domain.FromCache}
	require.NoError(t, fc.Set(context.Background(), rec, cache.StrategyHot))

	_, err := p.Resolve(context.Background(), testToken, domain.NetworkEthereum, nil)
	require.NoError(t, err)

	today := time.Now().UTC().Format("2006-01-02")
	stats, err := fs.GetCacheStats(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hit)
}

func TestResolve_OracleHitRecordsSetStat(t *testing.T) {
	p, _, fs, fa, _, _ := newTestPipeline()
	fa.SetPrice(testToken, nil, decimal.NewFromInt(99))

	_, err := p.Resolve(context.Background(), testToken, domain.NetworkEthereum, nil)
	require.NoError(t, err)

	today := time.Now().UTC().Format("2006-01-02")
	stats, err := fs.GetCacheStats(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Miss)
	assert.Equal(t, int64(1), stats.Set)
	assert.Equal(t, int64(1), stats.ByStrategy[string(cache.StrategyHot)])
}

func TestResolve_OracleHitWritesThroughStoreAndCache(t *testing.T) {
	p, fc, fs, fa, _, _ := newTestPipeline()
	fa.SetPrice(testToken, nil, decimal.NewFromInt(99))

	reply, err := p.Resolve(context.Background(), testToken, domain.NetworkEthereum, nil)
	require.NoError(t, err)
	require.NotNil(t, reply.Record)
	assert.Equal(t, domain.FromAPI, reply.Record.Provenance)

	stored, err := fs.GetPrice(context.Background(), testToken, domain.NetworkEthereum, nil)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, fc.Len())
}

func TestResolve_InterpolatesWhenOracleHasNoData(t *testing.T) {
	p, _, fs, _, _, _ := newTestPipeline()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	before, after := base, base.Add(2*time.Hour)
	require.NoError(t, fs.StorePrice(context.Background(), domain.PriceRecord{
		Token: testToken, Network: domain.NetworkEthereum, Timestamp: &before, USD: decimal.NewFromInt(100), Provenance: domain.FromAPI,
	}))
	require.NoError(t, fs.StorePrice(context.Background(), domain.PriceRecord{
		Token: testToken, Network: domain.NetworkEthereum, Timestamp: &after, USD: decimal.NewFromInt(200), Provenance: domain.FromAPI,
	}))

	target := base.Add(time.Hour)
	reply, err := p.Resolve(context.Background(), testToken, domain.NetworkEthereum, &target)
	require.NoError(t, err)
	require.NotNil(t, reply.Record)
	assert.Equal(t, domain.Interpolated, reply.Record.Provenance)
	assert.True(t, reply.Record.USD.Equal(decimal.NewFromInt(150)))
}

func TestResolve_EnqueuesWhenEveryTierDeclines(t *testing.T) {
	p, _, _, _, _, qs := newTestPipeline()
	target := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	reply, err := p.Resolve(context.Background(), testToken, domain.NetworkEthereum, &target)
	require.NoError(t, err)
	assert.True(t, reply.Queued)
	assert.Nil(t, reply.Record)

	pending, _, err := qs.Depth(context.Background(), queue.NamePriceProcessing)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

// failingStore wraps store.FakeStore to force GetPrice to fail, exercising
// the tier-2 short-circuit: a durable-store error must surface immediately
// and never be papered over by falling through to interpolation or the
// oracle.
type failingStore struct {
	*store.FakeStore
	err error
}

func (f *failingStore) GetPrice(ctx context.Context, token string, network domain.Network, ts *time.Time) (*domain.PriceRecord, error) {
	return nil, f.err
}

func TestResolve_StoreFailureShortCircuits(t *testing.T) {
	p, _, _, fa, _, _ := newTestPipeline()
	p.Store = &failingStore{FakeStore: store.NewFakeStore(), err: assert.AnError}
	fa.SetPrice(testToken, nil, decimal.NewFromInt(1))

	_, err := p.Resolve(context.Background(), testToken, domain.NetworkEthereum, nil)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.KindStore))
}
