package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhii8084/token-price-storage-system/internal/domain"
	"github.com/Abhii8084/token-price-storage-system/internal/perrors"
)

const oracleTestToken = "0x6666666666666666666666666666666666666666"

func newTestClient(adapter *FakeAdapter) *Client {
	return NewClientWithAdapters(Config{MaxRetries: 2, RetryDelay: time.Millisecond},
		map[domain.Network]ProviderAdapter{domain.NetworkEthereum: adapter})
}

func TestGetPriceWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	fa := NewFakeAdapter()
	fa.SetPrice(oracleTestToken, nil, decimal.NewFromInt(10))
	fa.FailNext = perrors.OracleTransient(assert.AnError, "rate limited")
	c := newTestClient(fa)

	rec, err := c.GetPriceWithRetry(context.Background(), oracleTestToken, domain.NetworkEthereum, nil)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.USD.Equal(decimal.NewFromInt(10)))
}

func TestGetPriceWithRetry_DefinitiveErrorDoesNotRetry(t *testing.T) {
	fa := NewFakeAdapter()
	fa.FailNext = perrors.OracleDefinitive("token not supported")
	c := newTestClient(fa)

	_, err := c.GetPriceWithRetry(context.Background(), oracleTestToken, domain.NetworkEthereum, nil)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.KindOracleDefinitive))
}

func TestGetPriceWithRetry_NoDataIsNilNilNotError(t *testing.T) {
	fa := NewFakeAdapter()
	c := newTestClient(fa)

	rec, err := c.GetPriceWithRetry(context.Background(), oracleTestToken, domain.NetworkEthereum, nil)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestBatchGetPrices_OneFailureDoesNotAbortOthers(t *testing.T) {
	fa := NewFakeAdapter()
	fa.SetPrice("0xaaaa000000000000000000000000000000000a", nil, decimal.NewFromInt(1))
	fa.SetPrice("0xbbbb000000000000000000000000000000000b", nil, decimal.NewFromInt(2))
	c := newTestClient(fa)

	requests := []BatchRequest{
		{Token: "0xaaaa000000000000000000000000000000000a", Network: domain.NetworkEthereum},
		{Token: "missing-token-with-no-price", Network: domain.NetworkEthereum},
		{Token: "0xbbbb000000000000000000000000000000000b", Network: domain.NetworkEthereum},
	}
	results := c.BatchGetPrices(context.Background(), requests)
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	require.NotNil(t, results[0].Record)
	require.NoError(t, results[1].Err)
	assert.Nil(t, results[1].Record) // no data found, not a batch-aborting error
	require.NoError(t, results[2].Err)
	require.NotNil(t, results[2].Record)
}

func TestGetTokenCreationDate_ResolvesFirstTransferBlockTimestamp(t *testing.T) {
	fa := NewFakeAdapter()
	fa.Transfers[oracleTestToken] = []AssetTransfer{{BlockNum: "0x1"}}
	fa.Blocks["0x1"] = Block{Timestamp: 1700000000}
	c := newTestClient(fa)

	ts, err := c.GetTokenCreationDate(context.Background(), oracleTestToken, domain.NetworkEthereum)
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, int64(1700000000), ts.Unix())
}

func TestGetTokenCreationDate_NoTransfersReturnsNilNil(t *testing.T) {
	fa := NewFakeAdapter()
	c := newTestClient(fa)

	ts, err := c.GetTokenCreationDate(context.Background(), oracleTestToken, domain.NetworkEthereum)
	require.NoError(t, err)
	assert.Nil(t, ts)
}

func TestAdapterFor_UnsupportedNetworkIsValidationError(t *testing.T) {
	c := newTestClient(NewFakeAdapter())
	_, err := c.GetPrice(context.Background(), oracleTestToken, domain.Network("solana"), nil)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.KindValidation))
}
