package lifecycle

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhii8084/token-price-storage-system/internal/domain"
	"github.com/Abhii8084/token-price-storage-system/internal/oracle"
	"github.com/Abhii8084/token-price-storage-system/internal/queue"
	"github.com/Abhii8084/token-price-storage-system/internal/store"
)

const batchTestToken = "0x9999999999999999999999999999999999999999"

func TestProcessBatchHistorical_FillsMissingDaysOnly(t *testing.T) {
	fs := store.NewFakeStore()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)

	// Day 2 already has a non-interpolated record; it must be skipped.
	day2 := start.AddDate(0, 0, 1)
	require.NoError(t, fs.StorePrice(context.Background(), domain.PriceRecord{
		Token: batchTestToken, Network: domain.NetworkEthereum, Timestamp: &day2,
		USD: decimal.NewFromInt(1), Provenance: domain.FromDB,
	}))

	fa := oracle.NewFakeAdapter()
	fa.SetPrice(batchTestToken, &start, decimal.NewFromInt(10))
	fa.SetPrice(batchTestToken, &end, decimal.NewFromInt(30))
	oc := oracle.NewClientWithAdapters(oracle.Config{}, map[domain.Network]oracle.ProviderAdapter{domain.NetworkEthereum: fa})

	m := &Manager{Store: fs, Oracle: oc}
	stats, err := m.ProcessBatchHistorical(context.Background(), batchTestToken, domain.NetworkEthereum, start, end)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Errors)

	rec, err := fs.GetPrice(context.Background(), batchTestToken, domain.NetworkEthereum, &start)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.USD.Equal(decimal.NewFromInt(10)))

	unchanged, err := fs.GetPrice(context.Background(), batchTestToken, domain.NetworkEthereum, &day2)
	require.NoError(t, err)
	require.NotNil(t, unchanged)
	assert.True(t, unchanged.USD.Equal(decimal.NewFromInt(1)))
}

func TestProcessBatchHistorical_NoOracleDataIsNotAnError(t *testing.T) {
	fs := store.NewFakeStore()
	fa := oracle.NewFakeAdapter()
	oc := oracle.NewClientWithAdapters(oracle.Config{}, map[domain.Network]oracle.ProviderAdapter{domain.NetworkEthereum: fa})
	m := &Manager{Store: fs, Oracle: oc}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stats, err := m.ProcessBatchHistorical(context.Background(), batchTestToken, domain.NetworkEthereum, start, start)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Processed)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Errors)
}

func TestBatchProcessingHandler_UnmarshalsAndDelegates(t *testing.T) {
	fs := store.NewFakeStore()
	fa := oracle.NewFakeAdapter()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fa.SetPrice(batchTestToken, &start, decimal.NewFromInt(7))
	oc := oracle.NewClientWithAdapters(oracle.Config{}, map[domain.Network]oracle.ProviderAdapter{domain.NetworkEthereum: fa})
	m := &Manager{Store: fs, Oracle: oc}

	payload := queue.BatchPayload{Token: batchTestToken, Network: domain.NetworkEthereum, Start: start, End: start}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	handler := m.BatchProcessingHandler()
	require.NoError(t, handler(context.Background(), queue.Job{Payload: raw}))

	rec, err := fs.GetPrice(context.Background(), batchTestToken, domain.NetworkEthereum, &start)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.USD.Equal(decimal.NewFromInt(7)))
}
