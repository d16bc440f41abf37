package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shortreel/shortreel/internal/types"
)

// MemoryRegistry keeps jobs in process memory. It backs one-shot CLI runs
// and tests.
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{jobs: make(map[string]Job)}
}

func (r *MemoryRegistry) Create(_ context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.UpdatedAt = job.CreatedAt
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryRegistry) Update(_ context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	job.CreatedAt = prev.CreatedAt
	job.UpdatedAt = time.Now().UTC()
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryRegistry) List(_ context.Context, limit int) ([]Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// cloneJob copies the slices so callers cannot mutate stored state.
func cloneJob(job Job) Job {
	out := job
	out.Assets = append([]types.Asset(nil), job.Assets...)
	out.Degradations = append([]Degradation(nil), job.Degradations...)
	return out
}
