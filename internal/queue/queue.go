// Package queue implements the deferred job-fill tier: work that the
// resolution pipeline could not satisfy synchronously is enqueued here and
// drained by a pool of worker goroutines. No broker or queue library
// appears anywhere in the retrieved corpus, so this is a Postgres-backed
// queue in the teacher's own poll-loop shape (aggregator.Worker.Run,
// metadata.Worker.Run), not an adopted third-party dependency — see
// DESIGN.md.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Abhii8084/token-price-storage-system/internal/domain"
	"github.com/Abhii8084/token-price-storage-system/internal/logger"
	"go.uber.org/zap"
)

const (
	NamePriceProcessing = "price-processing"
	NameBatchProcessing = "batch-processing"

	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusDead       = "dead"
)

// Job priorities, per spec §4.6: current-price jobs are more urgent than
// historical backfill.
const (
	PriorityCurrent    = 10
	PriorityHistorical = 1
)

// PricePayload is the price-processing job body.
type PricePayload struct {
	Token     string          `json:"token"`
	Network   domain.Network  `json:"network"`
	Timestamp *time.Time      `json:"timestamp"`
}

// BatchPayload is the batch-processing job body.
type BatchPayload struct {
	Token   string         `json:"token"`
	Network domain.Network `json:"network"`
	Start   time.Time      `json:"start"`
	End     time.Time      `json:"end"`
}

// Job is one claimed unit of work.
type Job struct {
	ID          uuid.UUID
	Queue       string
	Payload     json.RawMessage
	Priority    int
	Attempts    int
	MaxAttempts int
}

// Store persists jobs; Postgres is the production implementation, Fake an
// in-memory double for tests — the same Store-interface-plus-fake shape
// used throughout this repo.
type Store interface {
	Enqueue(ctx context.Context, queue string, payload interface{}, priority int, maxAttempts int) error
	Claim(ctx context.Context, queue string, n int) ([]Job, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, backoffBase time.Duration) error
	Depth(ctx context.Context, queue string) (pending int64, processing int64, err error)
}

// Config mirrors config.QueueConfig without importing internal/config.
type Config struct {
	Concurrency int
	MaxAttempts int
	BackoffBase time.Duration
	IdleDelay   time.Duration
}

// Handler processes one job's payload. Returning nil marks the job done;
// returning an error increments its attempt count and reschedules it with
// backoff, per spec §4.6.
type Handler func(ctx context.Context, job Job) error

// Queue pairs a named job store with a handler and runs a worker pool
// against it.
type Queue struct {
	Name    string
	store   Store
	cfg     Config
	handler Handler
}

func New(name string, store Store, cfg Config, handler Handler) *Queue {
	return &Queue{Name: name, store: store, cfg: cfg, handler: handler}
}

// Enqueue inserts a new job at status=pending, run_at=now, attempts=0.
func (q *Queue) Enqueue(ctx context.Context, payload interface{}, priority int) error {
	return q.store.Enqueue(ctx, q.Name, payload, priority, q.cfg.MaxAttempts)
}

// Depth reports how much work is outstanding, for GET /api/queue/status.
func (q *Queue) Depth(ctx context.Context) (pending int64, processing int64, err error) {
	return q.store.Depth(ctx, q.Name)
}

// Run starts Config.Concurrency worker goroutines, each polling in the
// teacher's select{ctx.Done / default} plus time.Sleep(IdleDelay) shape,
// and blocks until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	n := q.cfg.Concurrency
	if n <= 0 {
		n = 1
	}
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func(workerID int) {
			defer func() { done <- struct{}{} }()
			q.runWorker(ctx, workerID)
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}
}

func (q *Queue) runWorker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobs, err := q.store.Claim(ctx, q.Name, 1)
		if err != nil {
			logger.Error("queue claim failed", zap.String("queue", q.Name), zap.Error(err))
			time.Sleep(q.cfg.IdleDelay)
			continue
		}
		if len(jobs) == 0 {
			time.Sleep(q.cfg.IdleDelay)
			continue
		}

		job := jobs[0]
		if err := q.handler(ctx, job); err != nil {
			if job.Attempts+1 >= job.MaxAttempts {
				logger.Warn("queue job exhausted attempts, abandoning",
					zap.String("queue", q.Name), zap.String("job_id", job.ID.String()), zap.Error(err))
			}
			if failErr := q.store.Fail(ctx, job.ID, q.cfg.BackoffBase); failErr != nil {
				logger.Error("queue fail-mark failed", zap.String("queue", q.Name), zap.Error(failErr))
			}
			continue
		}
		if err := q.store.Complete(ctx, job.ID); err != nil {
			logger.Error("queue complete-mark failed", zap.String("queue", q.Name), zap.Error(err))
		}
	}
}
