// Package orchestrator wires the Job Store, Worker Manager, Health Monitor
// and Revival Detector into the single long-lived object spec.md §6
// describes in terms of module-level globals (job queues, steering queues,
// worker threads); here they're fields on one struct instead, the way the
// teacher's task.Runner owns its branch/container state rather than using
// package globals.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/caic-xyz/orchestrator/internal/branch"
	"github.com/caic-xyz/orchestrator/internal/health"
	"github.com/caic-xyz/orchestrator/internal/jobstore"
	"github.com/caic-xyz/orchestrator/internal/revival"
	"github.com/caic-xyz/orchestrator/internal/worker"
)

// Orchestrator owns every shared component and exposes the handful of
// entry points the bridge (chat front-end) and the admin surface call.
type Orchestrator struct {
	Store    jobstore.Store
	Workers  *worker.Manager
	Health   *health.Monitor
	Revival  *revival.Detector
	Branch   *branch.Coordinator
}

// New builds an Orchestrator from its already-constructed dependencies.
// Callers (cmd/orchestratord) are responsible for constructing the Redis
// client, Store, worker.Deps, etc. and passing the finished pieces in.
func New(store jobstore.Store, workers *worker.Manager, healthMonitor *health.Monitor, revivalDetector *revival.Detector, branchCoord *branch.Coordinator) *Orchestrator {
	return &Orchestrator{
		Store:   store,
		Workers: workers,
		Health:  healthMonitor,
		Revival: revivalDetector,
		Branch:  branchCoord,
	}
}

// Enqueue implements spec.md §6's enqueue(): create the job, make sure the
// project's worker loop is running, and report the resulting queue depth.
func (o *Orchestrator) Enqueue(ctx context.Context, fields jobstore.CreateFields) (jobID string, queueDepth int, err error) {
	jobID, err = o.Store.Create(ctx, fields)
	if err != nil {
		return "", 0, fmt.Errorf("orchestrator: enqueue: %w", err)
	}
	o.Workers.EnsureStarted(ctx, fields.ProjectKey)

	depth, err := o.Store.Len(ctx, fields.ProjectKey)
	if err != nil {
		return jobID, 0, fmt.Errorf("orchestrator: enqueue: queue depth: %w", err)
	}
	return jobID, depth, nil
}

// Run starts the Health Monitor's sweep loop and blocks until ctx is
// canceled. The Worker Manager has no long-running loop of its own to
// start here: worker goroutines are started lazily, per project, from
// Enqueue.
func (o *Orchestrator) Run(ctx context.Context) {
	o.Health.Run(ctx)
}

// Stats is the admin-surface snapshot of one project's queue.
type Stats struct {
	ProjectKey    string   `json:"projectKey"`
	Pending       int      `json:"pending"`
	Running       int      `json:"running"`
	WorkerAlive   bool     `json:"workerAlive"`
	OldestRunningAgeSeconds *float64 `json:"oldestRunningAgeSeconds,omitempty"`
}

// ProjectStats reports the pending/running job counts, worker liveness, and
// the age of the oldest still-running job for a single project — the data
// orchestratorctl's "status" subcommand renders as a table.
func (o *Orchestrator) ProjectStats(ctx context.Context, projectKey string) (Stats, error) {
	pending, err := o.Store.List(ctx, projectKey, jobstore.StatusPending)
	if err != nil {
		return Stats{}, fmt.Errorf("orchestrator: project stats: %w", err)
	}
	running, err := o.Store.List(ctx, projectKey, jobstore.StatusRunning)
	if err != nil {
		return Stats{}, fmt.Errorf("orchestrator: project stats: %w", err)
	}

	var oldestAge *float64
	now := jobstore.Now()
	for _, job := range running {
		if job.StartedAt == nil {
			continue
		}
		age := now - *job.StartedAt
		if oldestAge == nil || age > *oldestAge {
			oldestAge = &age
		}
	}

	return Stats{
		ProjectKey:              projectKey,
		Pending:                 len(pending),
		Running:                 len(running),
		WorkerAlive:             o.Workers.IsAlive(projectKey),
		OldestRunningAgeSeconds: oldestAge,
	}, nil
}

// FlushStuck recovers every running job across every project that the
// Health Monitor's sweep would otherwise wait to notice, for the admin
// CLI's "flush-stuck" subcommand.
func (o *Orchestrator) FlushStuck(ctx context.Context) (int, error) {
	running, err := o.Store.ListRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: flush stuck: %w", err)
	}
	seen := make(map[string]bool)
	total := 0
	for _, job := range running {
		if seen[job.ProjectKey] {
			continue
		}
		seen[job.ProjectKey] = true
		n, err := o.Store.RecoverInterrupted(ctx, job.ProjectKey)
		if err != nil {
			return total, fmt.Errorf("orchestrator: flush stuck: project %s: %w", job.ProjectKey, err)
		}
		total += n
	}
	return total, nil
}

// FlushJob deletes a single job unconditionally, for orchestratorctl's
// "flush-job <id>" subcommand.
func (o *Orchestrator) FlushJob(ctx context.Context, jobID string) error {
	if err := o.Store.Delete(ctx, jobID); err != nil {
		return fmt.Errorf("orchestrator: flush job %s: %w", jobID, err)
	}
	return nil
}
