package jobstore

import (
	"context"
	"sort"
	"sync"

	"github.com/maruel/ksid"
)

// Memory is an in-process Store backed by a mutex-guarded map, used in unit
// tests in place of Redis. It implements the same delete-then-recreate
// discipline as the Redis backend: transition helpers always build a fresh
// Job with a new JobID rather than mutating a stored one in place.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]Job // job_id -> Job
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]Job)}
}

func (m *Memory) Create(_ context.Context, f CreateFields) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := ksid.NewID().String()
	m.jobs[id] = Job{
		JobID:             id,
		ProjectKey:        f.ProjectKey,
		Status:            StatusPending,
		Priority:          f.Priority,
		CreatedAt:         Now(),
		SessionID:         f.SessionID,
		WorkingDir:        f.WorkingDir,
		MessageText:       f.MessageText,
		SenderName:        f.SenderName,
		ChatID:            f.ChatID,
		MessageID:         f.MessageID,
		ChatTitle:         f.ChatTitle,
		RevivalContext:    f.RevivalContext,
		AutoContinueCount: f.AutoContinueCount,
		Enrichment:        f.Enrichment,
	}
	return id, nil
}

func (m *Memory) Pop(_ context.Context, projectKey string) (Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []Job
	for _, j := range m.jobs {
		if j.ProjectKey == projectKey && j.Status == StatusPending {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return Job{}, false, nil
	}
	sort.Slice(candidates, func(i, k int) bool {
		ri, rk := candidates[i].Priority.rank(), candidates[k].Priority.rank()
		if ri != rk {
			return ri < rk
		}
		return candidates[i].CreatedAt > candidates[k].CreatedAt
	})
	old := candidates[0]

	// Delete-then-recreate: remove the old pending record, mint a fresh
	// job_id, write the running record. No in-place mutation.
	delete(m.jobs, old.JobID)
	next := old.Clone()
	next.JobID = ksid.NewID().String()
	next.Status = StatusRunning
	started := Now()
	next.StartedAt = &started
	m.jobs[next.JobID] = next
	return next.Clone(), true, nil
}

func (m *Memory) List(_ context.Context, projectKey string, status Status) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, j := range m.jobs {
		if j.ProjectKey == projectKey && j.Status == status {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

func (m *Memory) ListRunning(_ context.Context) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, j := range m.jobs {
		if j.Status == StatusRunning {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return ErrNotFound
	}
	delete(m.jobs, jobID)
	return nil
}

func (m *Memory) ResetRunning(ctx context.Context, projectKey string) (int, error) {
	return m.recover(projectKey)
}

func (m *Memory) RecoverInterrupted(ctx context.Context, projectKey string) (int, error) {
	return m.recover(projectKey)
}

func (m *Memory) recover(projectKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var toRecover []Job
	for _, j := range m.jobs {
		if j.ProjectKey == projectKey && j.Status == StatusRunning {
			toRecover = append(toRecover, j)
		}
	}
	for _, old := range toRecover {
		delete(m.jobs, old.JobID)
		next := old.Clone()
		next.JobID = ksid.NewID().String()
		next.Status = StatusPending
		next.Priority = PriorityHigh
		next.StartedAt = nil
		m.jobs[next.JobID] = next
	}
	return len(toRecover), nil
}

func (m *Memory) Len(_ context.Context, projectKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.jobs {
		if j.ProjectKey == projectKey && (j.Status == StatusPending || j.Status == StatusRunning) {
			n++
		}
	}
	return n, nil
}
