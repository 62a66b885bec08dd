package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhii8084/token-price-storage-system/internal/cache"
	"github.com/Abhii8084/token-price-storage-system/internal/domain"
	"github.com/Abhii8084/token-price-storage-system/internal/interpolate"
	"github.com/Abhii8084/token-price-storage-system/internal/oracle"
	"github.com/Abhii8084/token-price-storage-system/internal/queue"
	"github.com/Abhii8084/token-price-storage-system/internal/resolve"
	"github.com/Abhii8084/token-price-storage-system/internal/store"
)

const apiTestToken = "0x7777777777777777777777777777777777777777"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandler() (*Handler, *store.FakeStore, *cache.FakeCache, *oracle.FakeAdapter, *queue.FakeStore) {
	fs := store.NewFakeStore()
	fc := cache.NewFakeCache("tokenprice")
	fa := oracle.NewFakeAdapter()
	oc := oracle.NewClientWithAdapters(oracle.Config{MaxRetries: 1, RetryDelay: time.Millisecond},
		map[domain.Network]oracle.ProviderAdapter{domain.NetworkEthereum: fa})
	qs := queue.NewFakeStore()
	priceQueue := queue.New(queue.NamePriceProcessing, qs, queue.Config{MaxAttempts: 3}, nil)
	batchQueue := queue.New(queue.NameBatchProcessing, qs, queue.Config{MaxAttempts: 3}, nil)
	pipeline := &resolve.Pipeline{
		Cache: fc, Store: fs, Oracle: oc, PriceQueue: priceQueue,
		Cfg: resolve.Config{Interpolation: interpolate.Config{
			MaxDataPoints: 20, MaxTimeGapHours: 72, MinConfidenceThreshold: 0.1, ExtrapolationMaxChangePct: 50,
		}},
	}
	h := &Handler{Pipeline: pipeline, Store: fs, Cache: fc, Oracle: oc, PriceQueue: priceQueue, BatchQueue: batchQueue}
	return h, fs, fc, fa, qs
}

func newTestRouter(h *Handler) *gin.Engine {
	r := gin.New()
	h.Routes(r)
	return r
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestResolveToken_ReturnsOKOnOracleHit(t *testing.T) {
	h, _, _, fa, _ := newTestHandler()
	fa.SetPrice(apiTestToken, nil, decimal.NewFromInt(25))
	r := newTestRouter(h)

	rec := doJSON(r, http.MethodPost, "/api/tokens", map[string]string{"token": apiTestToken, "network": "ethereum"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
}

func TestResolveToken_ReturnsAcceptedWhenQueued(t *testing.T) {
	h, _, _, _, _ := newTestHandler()
	r := newTestRouter(h)

	rec := doJSON(r, http.MethodPost, "/api/tokens", map[string]string{"token": apiTestToken, "network": "ethereum"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestResolveToken_RejectsMalformedToken(t *testing.T) {
	h, _, _, _, _ := newTestHandler()
	r := newTestRouter(h)

	rec := doJSON(r, http.MethodPost, "/api/tokens", map[string]string{"token": "not-a-token", "network": "ethereum"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveToken_RejectsInvalidTimestamp(t *testing.T) {
	h, _, _, _, _ := newTestHandler()
	r := newTestRouter(h)

	rec := doJSON(r, http.MethodPost, "/api/tokens", map[string]string{"token": apiTestToken, "network": "ethereum", "timestamp": "not-a-timestamp"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchHistorical_EnqueuesAndReturnsJobID(t *testing.T) {
	h, _, _, _, qs := newTestHandler()
	r := newTestRouter(h)

	rec := doJSON(r, http.MethodPost, "/api/batch/historical", map[string]string{
		"token": apiTestToken, "network": "ethereum",
		"startDate": "2026-01-01T00:00:00Z", "endDate": "2026-01-02T00:00:00Z",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["jobId"])

	pending, _, err := qs.Depth(context.Background(), queue.NameBatchProcessing)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestBatchHistorical_RejectsMalformedToken(t *testing.T) {
	h, _, _, _, _ := newTestHandler()
	r := newTestRouter(h)

	rec := doJSON(r, http.MethodPost, "/api/batch/historical", map[string]string{
		"token": "not-a-token", "network": "ethereum",
		"startDate": "2026-01-01T00:00:00Z", "endDate": "2026-01-02T00:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchHistorical_RejectsInvertedDateRange(t *testing.T) {
	h, _, _, _, _ := newTestHandler()
	r := newTestRouter(h)

	rec := doJSON(r, http.MethodPost, "/api/batch/historical", map[string]string{
		"token": apiTestToken, "network": "ethereum",
		"startDate": "2026-01-02T00:00:00Z", "endDate": "2026-01-01T00:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueueStatus_ReportsBothQueues(t *testing.T) {
	h, _, _, _, _ := newTestHandler()
	r := newTestRouter(h)
	require.NoError(t, h.PriceQueue.Enqueue(context.Background(), queue.PricePayload{Token: apiTestToken}, queue.PriorityCurrent))

	rec := doJSON(r, http.MethodGet, "/api/queue/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	priceQueue := body["priceQueue"].(map[string]interface{})
	assert.Equal(t, float64(1), priceQueue["pending"])
}

func TestHealth_OKWhenEverythingUp(t *testing.T) {
	h, _, _, _, _ := newTestHandler()
	r := newTestRouter(h)

	rec := doJSON(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_DegradedWhenStoreDown(t *testing.T) {
	h, fs, _, _, _ := newTestHandler()
	fs.SetPingErr(assert.AnError)
	r := newTestRouter(h)

	rec := doJSON(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
