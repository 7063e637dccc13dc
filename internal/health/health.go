// Package health implements the Health Monitor of spec.md §4.7: a
// background sweep, independent of the per-session PostToolUse watchdog in
// internal/agentrunner, that recovers jobs whose worker has died or whose
// running time has exceeded a per-kind timeout.
package health

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/caic-xyz/orchestrator/internal/jobstore"
)

// doBuildMarker is the literal substring that selects the longer
// JobTimeoutBuild budget instead of JobTimeoutDefault (spec.md §4.7).
const doBuildMarker = "/do-build"

// Deps bundles the Health Monitor's dependencies.
type Deps struct {
	Store jobstore.Store
	// WorkerAlive reports whether projectKey currently has a live worker
	// goroutine (internal/worker.Manager.IsAlive).
	WorkerAlive func(projectKey string) bool

	CheckInterval time.Duration
	MinRunning    time.Duration
	TimeoutDefault time.Duration
	TimeoutBuild   time.Duration
}

func (d Deps) checkInterval() time.Duration {
	if d.CheckInterval <= 0 {
		return 300 * time.Second
	}
	return d.CheckInterval
}

func (d Deps) minRunning() time.Duration {
	if d.MinRunning <= 0 {
		return 300 * time.Second
	}
	return d.MinRunning
}

func (d Deps) timeoutDefault() time.Duration {
	if d.TimeoutDefault <= 0 {
		return 2700 * time.Second
	}
	return d.TimeoutDefault
}

func (d Deps) timeoutBuild() time.Duration {
	if d.TimeoutBuild <= 0 {
		return 9000 * time.Second
	}
	return d.TimeoutBuild
}

// Monitor runs the periodic sweep described in spec.md §4.7.
type Monitor struct {
	deps Deps
}

// NewMonitor builds a Monitor bound to deps.
func NewMonitor(deps Deps) *Monitor {
	return &Monitor{deps: deps}
}

// Run blocks, sweeping at deps.CheckInterval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.deps.checkInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one pass of spec.md §4.7's algorithm across every running
// job in every project. Exported so startup and tests can trigger a sweep
// outside the ticker.
func (m *Monitor) SweepOnce(ctx context.Context) {
	running, err := m.deps.Store.ListRunning(ctx)
	if err != nil {
		slog.Error("health: failed to list running jobs", "err", err)
		return
	}

	now := jobstore.Now()
	recovered := make(map[string]bool)
	for _, job := range running {
		if recovered[job.ProjectKey] {
			// RecoverInterrupted demotes every running job of a project in
			// one call; no need to re-trigger it per stale job.
			continue
		}
		reason, recover := m.shouldRecover(job, now)
		if !recover {
			continue
		}
		slog.Warn("health: recovering job", "project", job.ProjectKey, "job", job.JobID, "reason", reason)
		if _, err := m.deps.Store.RecoverInterrupted(ctx, job.ProjectKey); err != nil {
			slog.Error("health: recover failed", "project", job.ProjectKey, "err", err)
			continue
		}
		recovered[job.ProjectKey] = true
	}
}

// shouldRecover applies spec.md §4.7's dead-worker and timeout checks
// independently; either one recovering the job.
func (m *Monitor) shouldRecover(job jobstore.Job, now float64) (string, bool) {
	hasAge := job.StartedAt != nil
	workerAlive := m.deps.WorkerAlive(job.ProjectKey)

	if !workerAlive {
		if !hasAge {
			return "dead worker, legacy job with no started_at", true
		}
		age := ageDuration(*job.StartedAt, now)
		if age >= m.deps.minRunning() {
			return "dead worker", true
		}
	}

	if hasAge {
		age := ageDuration(*job.StartedAt, now)
		timeout := m.deps.timeoutDefault()
		if strings.Contains(job.MessageText, doBuildMarker) {
			timeout = m.deps.timeoutBuild()
		}
		if age > timeout {
			return "timed out", true
		}
	}

	return "", false
}

func ageDuration(startedAt, now float64) time.Duration {
	return time.Duration((now - startedAt) * float64(time.Second))
}
