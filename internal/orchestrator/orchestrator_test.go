package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/caic-xyz/orchestrator/internal/agentrunner"
	"github.com/caic-xyz/orchestrator/internal/branch"
	"github.com/caic-xyz/orchestrator/internal/bridge"
	"github.com/caic-xyz/orchestrator/internal/health"
	"github.com/caic-xyz/orchestrator/internal/jobstore"
	"github.com/caic-xyz/orchestrator/internal/pipeline"
	"github.com/caic-xyz/orchestrator/internal/revival"
	"github.com/caic-xyz/orchestrator/internal/steering"
	"github.com/caic-xyz/orchestrator/internal/worker"
)

type noopSender struct{}

func (noopSender) Send(context.Context, int64, string, int64) error { return nil }

type noopReactor struct{}

func (noopReactor) SetReaction(context.Context, int64, int64, string) error { return nil }

type fakeGit struct{}

func (fakeGit) CurrentBranch(context.Context, string) (string, error)           { return "main", nil }
func (fakeGit) CheckoutBranch(context.Context, string, string) error            { return nil }
func (fakeGit) CreateBranch(context.Context, string, string, string) error     { return nil }
func (fakeGit) DeleteBranch(context.Context, string, string, bool) error       { return nil }
func (fakeGit) HasUncommittedChanges(context.Context, string) (bool, error)    { return false, nil }
func (fakeGit) AddAll(context.Context, string) error                           { return nil }
func (fakeGit) Commit(context.Context, string, string) error                   { return nil }
func (fakeGit) MergeNoFF(context.Context, string, string) error                { return nil }
func (fakeGit) Push(context.Context, string) error                             { return nil }
func (fakeGit) PushSetUpstream(context.Context, string, string) error          { return nil }
func (fakeGit) ListBranches(context.Context, string, string) ([]string, error) { return nil, nil }

// fakeBackend returns a canned "ok" result at once; tests here only exercise
// queue bookkeeping, not full job execution (that is internal/worker's job).
type fakeBackend struct{}

func (fakeBackend) Harness() agentrunner.Harness                     { return agentrunner.HarnessClaude }
func (fakeBackend) ParseMessage([]byte) (agentrunner.Message, error) { return nil, nil }

func (fakeBackend) Start(_ context.Context, opts agentrunner.Options, msgCh chan<- agentrunner.Message) (*agentrunner.Session, error) {
	result := &agentrunner.ResultMessage{Result: "ok"}
	sess := agentrunner.NewSession(opts.SessionID, agentrunner.HarnessClaude,
		func(string) error { return nil },
		func() error { return nil },
		func() error { return nil },
		func() (*agentrunner.ResultMessage, error) { return result, nil },
	)
	go func() {
		defer close(msgCh)
		msgCh <- result
	}()
	return sess, nil
}

func TestEnqueueCreatesJobStartsWorkerAndReportsDepth(t *testing.T) {
	store := jobstore.NewMemory()
	workers := worker.NewManager(worker.Deps{
		Store:           store,
		Steering:        steering.NewMemory(),
		Branch:          &branch.Coordinator{Git: fakeGit{}},
		Backend:         fakeBackend{},
		Registry:        agentrunner.NewRegistry(),
		Summarizer:      &pipeline.Summarizer{},
		Classifier:      &pipeline.Classifier{},
		Judge:           agentrunner.NewJudge(nil),
		Sender:          noopSender{},
		Reactor:         noopReactor{},
		ProjectConfig:   func(string) bridge.ProjectConfig { return bridge.ProjectConfig{} },
		IdlePollBackoff: 5 * time.Millisecond,
		PostJobCooldown: 5 * time.Millisecond,
	})
	monitor := health.NewMonitor(health.Deps{Store: store, WorkerAlive: workers.IsAlive})
	o := New(store, workers, monitor, revival.NewDetector(&branch.Coordinator{Git: fakeGit{}}, time.Hour), &branch.Coordinator{Git: fakeGit{}})

	jobID, depth, err := o.Enqueue(t.Context(), jobstore.CreateFields{
		ProjectKey:  "proj",
		MessageText: "do the thing",
	})
	if err != nil {
		t.Fatal(err)
	}
	if jobID == "" {
		t.Fatal("expected a job id")
	}
	if depth < 1 {
		t.Fatalf("expected queue depth >= 1, got %d", depth)
	}
}

func TestProjectStatsReportsCounts(t *testing.T) {
	store := jobstore.NewMemory()
	if _, err := store.Create(t.Context(), jobstore.CreateFields{ProjectKey: "proj", MessageText: "a"}); err != nil {
		t.Fatal(err)
	}
	workers := worker.NewManager(worker.Deps{
		Store:    store,
		Steering: steering.NewMemory(),
		Branch:   &branch.Coordinator{Git: fakeGit{}},
		Backend:  fakeBackend{},
		Registry: agentrunner.NewRegistry(),
	})
	monitor := health.NewMonitor(health.Deps{Store: store, WorkerAlive: workers.IsAlive})
	o := New(store, workers, monitor, nil, nil)

	stats, err := o.ProjectStats(t.Context(), "proj")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 1 {
		t.Errorf("got pending %d, want 1", stats.Pending)
	}
	if stats.WorkerAlive {
		t.Error("expected no worker running before anything was enqueued through the manager")
	}
}

func TestFlushStuckRecoversAllRunningProjects(t *testing.T) {
	store := jobstore.NewMemory()
	ctx := t.Context()
	jobID, err := store.Create(ctx, jobstore.CreateFields{ProjectKey: "p1", MessageText: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Pop(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	_ = jobID

	workers := worker.NewManager(worker.Deps{Store: store, Steering: steering.NewMemory(), Branch: &branch.Coordinator{Git: fakeGit{}}, Backend: fakeBackend{}, Registry: agentrunner.NewRegistry()})
	monitor := health.NewMonitor(health.Deps{Store: store, WorkerAlive: workers.IsAlive})
	o := New(store, workers, monitor, nil, nil)

	n, err := o.FlushStuck(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("got %d recovered, want 1", n)
	}
}

func TestFlushJobDeletes(t *testing.T) {
	store := jobstore.NewMemory()
	ctx := t.Context()
	jobID, err := store.Create(ctx, jobstore.CreateFields{ProjectKey: "p1", MessageText: "a"})
	if err != nil {
		t.Fatal(err)
	}
	workers := worker.NewManager(worker.Deps{Store: store, Steering: steering.NewMemory(), Branch: &branch.Coordinator{Git: fakeGit{}}, Backend: fakeBackend{}, Registry: agentrunner.NewRegistry()})
	monitor := health.NewMonitor(health.Deps{Store: store, WorkerAlive: workers.IsAlive})
	o := New(store, workers, monitor, nil, nil)

	if err := o.FlushJob(ctx, jobID); err != nil {
		t.Fatal(err)
	}
	remaining, err := store.List(ctx, "p1", jobstore.StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected job deleted, got %v", remaining)
	}
}
