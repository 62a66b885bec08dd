package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_EnqueueAndDepth(t *testing.T) {
	fs := NewFakeStore()
	q := New(NamePriceProcessing, fs, Config{MaxAttempts: 3}, nil)

	require.NoError(t, q.Enqueue(context.Background(), PricePayload{Token: "0xabc"}, PriorityCurrent))
	pending, processing, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
	assert.Equal(t, int64(0), processing)
}

func TestQueue_RunProcessesJobAndCompletes(t *testing.T) {
	fs := NewFakeStore()
	var handled int32
	var mu sync.Mutex
	handler := func(ctx context.Context, job Job) error {
		mu.Lock()
		handled++
		mu.Unlock()
		return nil
	}
	q := New(NamePriceProcessing, fs, Config{Concurrency: 1, MaxAttempts: 3, IdleDelay: time.Millisecond}, handler)
	require.NoError(t, q.Enqueue(context.Background(), PricePayload{Token: "0xabc"}, PriorityCurrent))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	q.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), handled)
	pending, processing, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
	assert.Equal(t, int64(0), processing)
}

func TestQueue_FailedJobIsRetriedThenAbandoned(t *testing.T) {
	fs := NewFakeStore()
	var calls int32
	var mu sync.Mutex
	handler := func(ctx context.Context, job Job) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return assert.AnError
	}
	q := New(NamePriceProcessing, fs, Config{Concurrency: 1, MaxAttempts: 2, BackoffBase: time.Millisecond, IdleDelay: time.Millisecond}, handler)
	require.NoError(t, q.Enqueue(context.Background(), PricePayload{Token: "0xabc"}, PriorityCurrent))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	q.Run(ctx)

	mu.Lock()
	assert.Equal(t, int32(2), calls)
	mu.Unlock()
	pending, processing, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
	assert.Equal(t, int64(0), processing)
}

func TestFakeStore_ClaimOrdersByPriorityThenAge(t *testing.T) {
	fs := NewFakeStore()
	require.NoError(t, fs.Enqueue(context.Background(), NamePriceProcessing, PricePayload{Token: "low"}, PriorityHistorical, 3))
	require.NoError(t, fs.Enqueue(context.Background(), NamePriceProcessing, PricePayload{Token: "high"}, PriorityCurrent, 3))

	jobs, err := fs.Claim(context.Background(), NamePriceProcessing, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	var first PricePayload
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &first))
	assert.Equal(t, "high", first.Token)
}
