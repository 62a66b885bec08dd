package interpolate

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhii8084/token-price-storage-system/internal/domain"
	"github.com/Abhii8084/token-price-storage-system/internal/perrors"
	"github.com/Abhii8084/token-price-storage-system/internal/store"
)

const testToken = "0x1111111111111111111111111111111111111111"

func seed(t *testing.T, st *store.FakeStore, ts time.Time, usd string) {
	t.Helper()
	tt := ts
	err := st.StorePrice(context.Background(), domain.PriceRecord{
		Token: testToken, Network: domain.NetworkEthereum, Timestamp: &tt,
		USD: decimal.RequireFromString(usd), Provenance: domain.FromAPI,
	})
	require.NoError(t, err)
}

func defaultConfig() Config {
	return Config{
		MaxDataPoints:             20,
		MaxTimeGapHours:           72,
		MinConfidenceThreshold:    0.1,
		ExtrapolationMaxChangePct: 50,
	}
}

func TestInterpolate_LinearMidpoint(t *testing.T) {
	st := store.NewFakeStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, st, base, "100")
	seed(t, st, base.Add(2*time.Hour), "200")

	target := base.Add(time.Hour)
	rec, err := Interpolate(context.Background(), st, testToken, domain.NetworkEthereum, target, defaultConfig())
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.True(t, rec.USD.Equal(decimal.NewFromInt(150)), "expected 150, got %s", rec.USD)
	assert.Equal(t, domain.MethodLinear, rec.Method)
	assert.True(t, rec.InterpolatedFlag)
	assert.Equal(t, domain.Interpolated, rec.Provenance)
	// timeConfidence=1 (target is the exact midpoint); volConfidence =
	// 1 - |200-100|/150 = 1/3, so overall confidence averages to 2/3.
	assert.InDelta(t, 0.667, rec.Confidence, 0.01)
}

func TestInterpolate_DeclinesWithFewerThanTwoPoints(t *testing.T) {
	st := store.NewFakeStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, st, base, "100")

	_, err := Interpolate(context.Background(), st, testToken, domain.NetworkEthereum, base.Add(time.Hour), defaultConfig())
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.KindInterpolationDeclined))
}

func TestInterpolate_DeclinesOutsideMaxTimeGap(t *testing.T) {
	st := store.NewFakeStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, st, base, "100")
	seed(t, st, base.Add(200*time.Hour), "200")

	cfg := defaultConfig()
	cfg.MaxTimeGapHours = 1
	_, err := Interpolate(context.Background(), st, testToken, domain.NetworkEthereum, base.Add(time.Hour), cfg)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.KindInterpolationDeclined))
}

func TestInterpolate_ExtrapolationClampsToMaxChangePercent(t *testing.T) {
	st := store.NewFakeStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, st, base, "100")
	seed(t, st, base.Add(time.Hour), "300") // +200%/hr rate

	cfg := defaultConfig()
	cfg.ExtrapolationMaxChangePct = 10 // clamp to ±10% of nearest (300)
	cfg.MinConfidenceThreshold = 0.01 // this scenario's rate is too volatile to score high
	target := base.Add(2 * time.Hour)
	rec, err := Interpolate(context.Background(), st, testToken, domain.NetworkEthereum, target, cfg)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, domain.MethodExtrapolation, rec.Method)
	lo := decimal.NewFromInt(300).Mul(decimal.NewFromFloat(0.9))
	hi := decimal.NewFromInt(300).Mul(decimal.NewFromFloat(1.1))
	assert.True(t, rec.USD.GreaterThanOrEqual(lo) && rec.USD.LessThanOrEqual(hi),
		"expected usd within [%s,%s], got %s", lo, hi, rec.USD)
}

func TestInterpolate_DeclinesBelowConfidenceThreshold(t *testing.T) {
	st := store.NewFakeStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// A wide price swing over a short span depresses volatility confidence.
	seed(t, st, base, "10")
	seed(t, st, base.Add(time.Hour), "10000")

	cfg := defaultConfig()
	cfg.MinConfidenceThreshold = 0.99
	_, err := Interpolate(context.Background(), st, testToken, domain.NetworkEthereum, base.Add(30*time.Minute), cfg)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.KindInterpolationDeclined))
}
