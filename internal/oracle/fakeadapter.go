package oracle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// FakeAdapter is a deterministic ProviderAdapter test double, satisfying
// the contract spec §4.5/§6/§9 explicitly allow in place of a network
// call — the teacher's MockStore/MockCache pattern extended to the
// oracle boundary.
type FakeAdapter struct {
	// Prices maps token -> (timestampKey -> usd). "current" is used for a
	// nil timestamp, matching domain.PriceRecord.TimestampKey.
	Prices map[string]map[string]decimal.Decimal
	// Metadata maps token -> Metadata.
	Metadata map[string]Metadata
	// Transfers maps token -> ordered asset transfers (earliest first).
	Transfers map[string][]AssetTransfer
	// Blocks maps blockNum -> Block.
	Blocks map[string]Block
	// FailNext forces the next GetPrice call to return err.
	FailNext error
}

func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		Prices:    map[string]map[string]decimal.Decimal{},
		Metadata:  map[string]Metadata{},
		Transfers: map[string][]AssetTransfer{},
		Blocks:    map[string]Block{},
	}
}

func tsKey(ts *time.Time) string {
	if ts == nil {
		return "current"
	}
	return ts.UTC().Format(time.RFC3339)
}

func (f *FakeAdapter) GetPrice(ctx context.Context, token string, ts *time.Time) (decimal.Decimal, bool, error) {
	if f.FailNext != nil {
		err := f.FailNext
		f.FailNext = nil
		return decimal.Zero, false, err
	}
	byTs, ok := f.Prices[token]
	if !ok {
		return decimal.Zero, false, nil
	}
	usd, ok := byTs[tsKey(ts)]
	if !ok {
		return decimal.Zero, false, nil
	}
	return usd, true, nil
}

func (f *FakeAdapter) GetTokenMetadata(ctx context.Context, token string) (Metadata, error) {
	return f.Metadata[token], nil
}

func (f *FakeAdapter) GetAssetTransfers(ctx context.Context, token string, order string, maxCount int) ([]AssetTransfer, error) {
	transfers := f.Transfers[token]
	if len(transfers) > maxCount {
		transfers = transfers[:maxCount]
	}
	return transfers, nil
}

func (f *FakeAdapter) GetBlock(ctx context.Context, blockNum string) (Block, error) {
	return f.Blocks[blockNum], nil
}

// SetPrice is a test helper for populating Prices without hand-building
// the nested map.
func (f *FakeAdapter) SetPrice(token string, ts *time.Time, usd decimal.Decimal) {
	byTs, ok := f.Prices[token]
	if !ok {
		byTs = map[string]decimal.Decimal{}
		f.Prices[token] = byTs
	}
	byTs[tsKey(ts)] = usd
}
