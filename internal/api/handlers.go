// Package api exposes the resolution pipeline, batch enqueue, queue
// status, and health surface over HTTP/JSON via gin, per spec.md §4.8.
// Token and network validation for POST /api/tokens happens in
// internal/resolve; this layer parses the request timestamp, validates
// POST /api/batch/historical's own fields (token via
// resolve.NormalizeToken, network, date range), and translates
// perrors.Kind into status codes.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Abhii8084/token-price-storage-system/internal/cache"
	"github.com/Abhii8084/token-price-storage-system/internal/domain"
	"github.com/Abhii8084/token-price-storage-system/internal/logger"
	"github.com/Abhii8084/token-price-storage-system/internal/oracle"
	"github.com/Abhii8084/token-price-storage-system/internal/perrors"
	"github.com/Abhii8084/token-price-storage-system/internal/queue"
	"github.com/Abhii8084/token-price-storage-system/internal/resolve"
	"github.com/Abhii8084/token-price-storage-system/internal/store"
)

// Handler bundles the collaborators every route needs, constructed once
// in cmd/api-gateway/main.go and never replaced.
type Handler struct {
	Pipeline   *resolve.Pipeline
	Store      store.Store
	Cache      cache.Cache
	Oracle     *oracle.Client
	PriceQueue *queue.Queue
	BatchQueue *queue.Queue
}

// Routes registers every endpoint spec.md §4.8 names onto a gin engine.
func (h *Handler) Routes(r *gin.Engine) {
	r.GET("/health", h.Health)
	api := r.Group("/api")
	api.POST("/tokens", h.ResolveToken)
	api.POST("/batch/historical", h.BatchHistorical)
	api.GET("/queue/status", h.QueueStatus)
}

type resolveRequest struct {
	Token     string `json:"token" binding:"required"`
	Network   string `json:"network" binding:"required"`
	Timestamp string `json:"timestamp"`
}

// ResolveToken is POST /api/tokens: 200 with data, 202 when deferred to
// the queue, 400 on validation failure, 5xx on store outage.
func (h *Handler) ResolveToken(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	ts, ok := parseTimestamp(req.Timestamp)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "timestamp is not a valid unix or RFC3339 value"})
		return
	}

	reply, err := h.Pipeline.Resolve(c.Request.Context(), req.Token, domain.Network(req.Network), ts)
	if err != nil {
		writeErr(c, err)
		return
	}
	if reply.Queued {
		c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "queued for background resolution", "queued": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "resolved", "data": reply.Record})
}

type batchRequest struct {
	Token     string `json:"token" binding:"required"`
	Network   string `json:"network" binding:"required"`
	StartDate string `json:"startDate" binding:"required"`
	EndDate   string `json:"endDate" binding:"required"`
}

// BatchHistorical is POST /api/batch/historical: validates the range and
// enqueues one batch-processing job, replying immediately with a jobId.
// The jobId is generated here per request; it is not stored in the job's
// payload and is not the queue's own id for the job.
func (h *Handler) BatchHistorical(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	token, err := resolve.NormalizeToken(req.Token)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	network := domain.Network(req.Network)
	if !network.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "unsupported network"})
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "startDate must be RFC3339"})
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "endDate must be RFC3339"})
		return
	}
	if start.After(end) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "startDate must not be after endDate"})
		return
	}

	jobID := uuid.New()
	payload := queue.BatchPayload{Token: token, Network: network, Start: start.UTC(), End: end.UTC()}
	if err := h.BatchQueue.Enqueue(c.Request.Context(), payload, queue.PriorityHistorical); err != nil {
		logger.Error("batch historical enqueue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to enqueue batch job"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "jobId": jobID.String()})
}

type jobCounts struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
}

// QueueStatus is GET /api/queue/status.
func (h *Handler) QueueStatus(c *gin.Context) {
	ctx := c.Request.Context()
	pricePending, priceProcessing, err := h.PriceQueue.Depth(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	batchPending, batchProcessing, err := h.BatchQueue.Depth(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"priceQueue": jobCounts{Pending: pricePending, Processing: priceProcessing},
		"batchQueue": jobCounts{Pending: batchPending, Processing: batchProcessing},
	})
}

// Health is GET /health: 200 when every dependency answers, 503
// otherwise. Field names match spec.md §4.8 literally, naming the
// teacher's original backing services (mongodb, alchemy) even though this
// system's durable store and oracle are Postgres and a JSON-RPC/HTTP
// provider respectively — the wire contract is what's fixed. The cache,
// store and queue checks are live round-trips (a cache ping, a store ping,
// a queue depth query); the oracle check is its configured-network count,
// which makes no network call.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	services := gin.H{
		"redis":   pingOK(h.Cache.Ping(ctx)),
		"mongodb": pingOK(h.Store.Ping(ctx)),
		"alchemy": h.Oracle != nil && h.Oracle.ConfiguredNetworks() > 0,
		"queues":  queuesHealthy(ctx, h.PriceQueue, h.BatchQueue),
	}
	status := "ok"
	code := http.StatusOK
	for _, v := range services {
		if ok, isBool := v.(bool); isBool && !ok {
			status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(code, gin.H{"status": status, "services": services})
}

func pingOK(err error) bool { return err == nil }

// queuesHealthy runs an actual depth query against both queues rather than
// checking that the *Queue pointers are non-nil, so a Postgres outage the
// job store can see shows up here too.
func queuesHealthy(ctx context.Context, priceQueue, batchQueue *queue.Queue) bool {
	if priceQueue == nil || batchQueue == nil {
		return false
	}
	if _, _, err := priceQueue.Depth(ctx); err != nil {
		return false
	}
	if _, _, err := batchQueue.Depth(ctx); err != nil {
		return false
	}
	return true
}

// writeErr translates a perrors.Kind into the HTTP status spec §7 assigns
// it. StoreError from the pipeline's own tier-2 short-circuit already
// means "do not substitute anything else" by the time it reaches here.
func writeErr(c *gin.Context, err error) {
	kind, ok := perrors.KindOf(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	switch kind {
	case perrors.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
	case perrors.KindStore:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "durable store unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
	}
}
