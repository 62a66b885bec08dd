package queue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type fakeJob struct {
	job    Job
	status string
	runAt  time.Time
}

// FakeStore is an in-memory queue.Store, in the teacher's MockStore style,
// used by worker-handler tests that should not need Postgres.
type FakeStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*fakeJob
}

func NewFakeStore() *FakeStore {
	return &FakeStore{jobs: map[uuid.UUID]*fakeJob{}}
}

func (f *FakeStore) Enqueue(ctx context.Context, queue string, payload interface{}, priority int, maxAttempts int) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	id := uuid.New()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id] = &fakeJob{
		job:    Job{ID: id, Queue: queue, Payload: raw, Priority: priority, MaxAttempts: maxAttempts},
		status: StatusPending,
		runAt:  time.Now(),
	}
	return nil
}

func (f *FakeStore) Claim(ctx context.Context, queue string, n int) ([]Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var candidates []*fakeJob
	for _, fj := range f.jobs {
		if fj.job.Queue == queue && fj.status == StatusPending && !fj.runAt.After(now) {
			candidates = append(candidates, fj)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].job.Priority != candidates[j].job.Priority {
			return candidates[i].job.Priority > candidates[j].job.Priority
		}
		return candidates[i].runAt.Before(candidates[j].runAt)
	})
	if n < len(candidates) {
		candidates = candidates[:n]
	}
	var out []Job
	for _, fj := range candidates {
		fj.status = StatusProcessing
		out = append(out, fj.job)
	}
	return out, nil
}

func (f *FakeStore) Complete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	return nil
}

func (f *FakeStore) Fail(ctx context.Context, id uuid.UUID, backoffBase time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fj, ok := f.jobs[id]
	if !ok {
		return nil
	}
	fj.job.Attempts++
	if fj.job.Attempts >= fj.job.MaxAttempts {
		fj.status = StatusDead
		return nil
	}
	fj.status = StatusPending
	fj.runAt = time.Now().Add(time.Duration(1<<uint(fj.job.Attempts)) * backoffBase)
	return nil
}

func (f *FakeStore) Depth(ctx context.Context, queue string) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending, processing int64
	for _, fj := range f.jobs {
		if fj.job.Queue != queue {
			continue
		}
		switch fj.status {
		case StatusPending:
			pending++
		case StatusProcessing:
			processing++
		}
	}
	return pending, processing, nil
}
