package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Abhii8084/token-price-storage-system/internal/perrors"
)

// AssetTransfer is one entry of an upstream getAssetTransfers response,
// trimmed to the fields GetTokenCreationDate needs.
type AssetTransfer struct {
	BlockNum string `json:"blockNum"`
}

// Block is a trimmed getBlock response.
type Block struct {
	Timestamp int64 `json:"timestamp"`
}

// Metadata is a trimmed getTokenMetadata response.
type Metadata struct {
	Symbol      string
	Name        string
	Decimals    int32
	TotalSupply string
	LogoURI     string
}

// ProviderAdapter is the upstream oracle contract spec §6 names:
// getTokenMetadata, getAssetTransfers, getBlock, plus the USD price feed
// itself. Satisfying this interface with a network call is one option;
// FakeAdapter satisfies it deterministically for tests (spec §4.5, §9).
type ProviderAdapter interface {
	GetTokenMetadata(ctx context.Context, token string) (Metadata, error)
	GetPrice(ctx context.Context, token string, ts *time.Time) (decimal.Decimal, bool, error)
	GetAssetTransfers(ctx context.Context, token string, order string, maxCount int) ([]AssetTransfer, error)
	GetBlock(ctx context.Context, blockNum string) (Block, error)
}

// rpcAdapter is the production ProviderAdapter: ERC-20 metadata is read
// on-chain via eth_call (teacher's approach); the USD price itself comes
// from a configured price-feed endpoint queried over plain HTTP/JSON,
// since no on-chain call yields a USD price directly (spec §4.5's "direct
// feed, derivation, or plug-in data source").
type rpcAdapter struct {
	rpc        *rpcClient
	erc20      *erc20Reader
	priceFeed  string
	httpc      *http.Client
	apiKey     string
}

func newRPCAdapter(rpcURL, priceFeedURL, apiKey string) *rpcAdapter {
	rpc := newRPCClient(rpcURL)
	return &rpcAdapter{
		rpc:       rpc,
		erc20:     &erc20Reader{rpc: rpc},
		priceFeed: priceFeedURL,
		httpc:     &http.Client{Timeout: 10 * time.Second},
		apiKey:    apiKey,
	}
}

func (a *rpcAdapter) GetTokenMetadata(ctx context.Context, token string) (Metadata, error) {
	name, err := a.erc20.name(ctx, token)
	if err != nil {
		return Metadata{}, perrors.OracleTransient(err, "read name")
	}
	symbol, err := a.erc20.symbol(ctx, token)
	if err != nil {
		return Metadata{}, perrors.OracleTransient(err, "read symbol")
	}
	decimals, err := a.erc20.decimals(ctx, token)
	if err != nil {
		return Metadata{}, perrors.OracleTransient(err, "read decimals")
	}
	supply, err := a.erc20.totalSupply(ctx, token)
	if err != nil {
		return Metadata{}, perrors.OracleTransient(err, "read total supply")
	}
	return Metadata{Symbol: symbol, Name: name, Decimals: int32(decimals), TotalSupply: supply.String()}, nil
}

type priceFeedResponse struct {
	USD   string `json:"usd"`
	Found bool   `json:"found"`
}

func (a *rpcAdapter) GetPrice(ctx context.Context, token string, ts *time.Time) (decimal.Decimal, bool, error) {
	if a.priceFeed == "" {
		return decimal.Zero, false, nil
	}
	url := a.priceFeed + "?token=" + token
	if ts != nil {
		url += "&timestamp=" + strconv.FormatInt(ts.Unix(), 10)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, false, perrors.OracleTransient(err, "build price feed request")
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	resp, err := a.httpc.Do(req)
	if err != nil {
		return decimal.Zero, false, perrors.OracleTransient(err, "call price feed")
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return decimal.Zero, false, nil
	}
	if resp.StatusCode >= 500 {
		return decimal.Zero, false, perrors.OracleTransient(fmt.Errorf("status %d", resp.StatusCode), "price feed 5xx")
	}
	if resp.StatusCode >= 400 {
		return decimal.Zero, false, perrors.OracleDefinitive("price feed rejected token %s: status %d", token, resp.StatusCode)
	}
	var pr priceFeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return decimal.Zero, false, perrors.OracleTransient(err, "decode price feed response")
	}
	if !pr.Found || pr.USD == "" {
		return decimal.Zero, false, nil
	}
	usd, err := decimal.NewFromString(pr.USD)
	if err != nil {
		return decimal.Zero, false, perrors.OracleTransient(err, "parse price feed usd")
	}
	return usd, true, nil
}

func (a *rpcAdapter) GetAssetTransfers(ctx context.Context, token string, order string, maxCount int) ([]AssetTransfer, error) {
	var out []AssetTransfer
	err := a.rpc.call(ctx, "alchemy_getAssetTransfers", []interface{}{
		map[string]interface{}{
			"contractAddresses": []string{token},
			"category":          []string{"erc20"},
			"order":             order,
			"maxCount":          fmt.Sprintf("0x%x", maxCount),
		},
	}, &out)
	if err != nil {
		return nil, perrors.OracleTransient(err, "get asset transfers")
	}
	return out, nil
}

func (a *rpcAdapter) GetBlock(ctx context.Context, blockNum string) (Block, error) {
	ts, err := a.rpc.ethGetBlockTimestamp(ctx, blockNum)
	if err != nil {
		return Block{}, perrors.OracleTransient(err, "get block")
	}
	var unix int64
	if len(ts) > 2 {
		if n, err := strconv.ParseInt(ts[2:], 16, 64); err == nil {
			unix = n
		}
	}
	return Block{Timestamp: unix}, nil
}
