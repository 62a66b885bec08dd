package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/Abhii8084/token-price-storage-system/internal/domain"
	"github.com/Abhii8084/token-price-storage-system/internal/perrors"
)

// Config holds the knobs Client needs, mirroring config.Oracle without
// importing internal/config (which would create a cycle through domain).
type Config struct {
	NetworkEndpoints map[domain.Network]string
	PriceFeedURL     string
	APIKey           string
	MaxRetries       int
	RetryDelay       time.Duration
	RateLimitPerSec  float64
	BatchSize        int
}

// Client routes requests to one ProviderAdapter per supported network —
// teacher's single eth.Client generalized into a small routing table built
// once at construction.
type Client struct {
	adapters map[domain.Network]ProviderAdapter
	cfg      Config
}

func NewClient(cfg Config) *Client {
	adapters := make(map[domain.Network]ProviderAdapter, len(cfg.NetworkEndpoints))
	for network, url := range cfg.NetworkEndpoints {
		adapters[network] = newRPCAdapter(url, cfg.PriceFeedURL, cfg.APIKey)
	}
	return &Client{adapters: adapters, cfg: cfg}
}

// NewClientWithAdapters lets tests substitute deterministic adapters
// (e.g. FakeAdapter) per network without touching the network routing
// logic.
func NewClientWithAdapters(cfg Config, adapters map[domain.Network]ProviderAdapter) *Client {
	return &Client{adapters: adapters, cfg: cfg}
}

// ConfiguredNetworks reports how many networks have a routable adapter, a
// cheap signal /health uses in place of an actual network round-trip.
func (c *Client) ConfiguredNetworks() int {
	return len(c.adapters)
}

func (c *Client) adapterFor(network domain.Network) (ProviderAdapter, error) {
	if !network.Valid() {
		return nil, perrors.Validation("unsupported network %q", network)
	}
	a, ok := c.adapters[network]
	if !ok {
		return nil, perrors.Validation("no oracle adapter configured for network %q", network)
	}
	return a, nil
}

// GetPrice fetches the current or historical USD price for (token,
// network). A nil, nil return means the provider has no data — a
// definitive miss, not an error — callers fall through to interpolation.
func (c *Client) GetPrice(ctx context.Context, token string, network domain.Network, ts *time.Time) (*domain.PriceRecord, error) {
	adapter, err := c.adapterFor(network)
	if err != nil {
		return nil, err
	}
	usd, found, err := adapter.GetPrice(ctx, token, ts)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	meta, err := adapter.GetTokenMetadata(ctx, token)
	if err != nil {
		// Metadata is best-effort: a price without metadata is still a
		// usable record.
		meta = Metadata{}
	}
	now := time.Now().UTC()
	return &domain.PriceRecord{
		Token:       token,
		Network:     network,
		Timestamp:   ts,
		USD:         usd,
		LastUpdated: now,
		Symbol:      meta.Symbol,
		Name:        meta.Name,
		Decimals:    meta.Decimals,
		TotalSupply: meta.TotalSupply,
		LogoURI:     meta.LogoURI,
		Provenance:  domain.FromAPI,
	}, nil
}

// GetPriceWithRetry retries transient oracle failures with exponential
// backoff (2^attempt * retryDelay), making at most MaxRetries attempts in
// total (at least one), grounded in the teacher's
// metadata.Worker.fetchOne short-timeout-per-call pattern generalized to a
// retry loop. A definitive nil result short-circuits retry immediately.
func (c *Client) GetPriceWithRetry(ctx context.Context, token string, network domain.Network, ts *time.Time) (*domain.PriceRecord, error) {
	attempts := c.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		rec, err := c.GetPrice(ctx, token, network, ts)
		if err == nil {
			return rec, nil
		}
		if !perrors.Is(err, perrors.KindOracleTransient) {
			return nil, err
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}
		backoff := time.Duration(1<<uint(attempt)) * c.cfg.RetryDelay
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, lastErr
}

// GetTokenCreationDate discovers a token's earliest observed transfer and
// resolves its block timestamp, grounded in the teacher's FirstSeenBlock
// (a MIN(block_number) scan) generalized to an upstream asset-transfer
// lookup since this system has no local transfer table to scan.
func (c *Client) GetTokenCreationDate(ctx context.Context, token string, network domain.Network) (*time.Time, error) {
	adapter, err := c.adapterFor(network)
	if err != nil {
		return nil, err
	}
	transfers, err := adapter.GetAssetTransfers(ctx, token, "asc", 1)
	if err != nil {
		return nil, err
	}
	if len(transfers) == 0 {
		return nil, nil
	}
	block, err := adapter.GetBlock(ctx, transfers[0].BlockNum)
	if err != nil {
		return nil, err
	}
	if block.Timestamp == 0 {
		return nil, nil
	}
	t := time.Unix(block.Timestamp, 0).UTC()
	return &t, nil
}

// BatchResult pairs a request with its outcome for BatchGetPrices'
// all-settled semantics.
type BatchResult struct {
	Token     string
	Network   domain.Network
	Timestamp *time.Time
	Record    *domain.PriceRecord
	Err       error
}

// BatchGetPrices fetches many (token, network, timestamp) requests in
// fixed-size chunks, tolerating individual failures without aborting the
// batch — the same concurrency shape as teacher's aggregator.Worker.Run
// metadata loop, which never lets one bad token halt the run. A pause
// between chunks respects RateLimitPerSec.
func (c *Client) BatchGetPrices(ctx context.Context, requests []BatchRequest) []BatchResult {
	results := make([]BatchResult, len(requests))
	batchSize := c.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	for start := 0; start < len(requests); start += batchSize {
		end := start + batchSize
		if end > len(requests) {
			end = len(requests)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				req := requests[i]
				rec, err := c.GetPriceWithRetry(ctx, req.Token, req.Network, req.Timestamp)
				results[i] = BatchResult{Token: req.Token, Network: req.Network, Timestamp: req.Timestamp, Record: rec, Err: err}
			}(i)
		}
		wg.Wait()
		if end < len(requests) && c.cfg.RateLimitPerSec > 0 {
			pause := time.Duration(1000/c.cfg.RateLimitPerSec) * time.Millisecond
			select {
			case <-ctx.Done():
				return results
			case <-time.After(pause):
			}
		}
	}
	return results
}

// BatchRequest is one unit of work for BatchGetPrices.
type BatchRequest struct {
	Token     string
	Network   domain.Network
	Timestamp *time.Time
}
