package health

import (
	"context"
	"testing"
	"time"

	"github.com/caic-xyz/orchestrator/internal/jobstore"
)

// fakeStore gives tests direct control over StartedAt/MessageText, which
// jobstore.Memory's own Pop() wouldn't allow (it always stamps Now()).
type fakeStore struct {
	running    []jobstore.Job
	recovered  []string
	recoverErr error
}

func (f *fakeStore) Create(context.Context, jobstore.CreateFields) (string, error) { return "", nil }
func (f *fakeStore) Pop(context.Context, string) (jobstore.Job, bool, error)        { return jobstore.Job{}, false, nil }
func (f *fakeStore) List(context.Context, string, jobstore.Status) ([]jobstore.Job, error) {
	return nil, nil
}
func (f *fakeStore) ListRunning(context.Context) ([]jobstore.Job, error) { return f.running, nil }
func (f *fakeStore) Delete(context.Context, string) error                { return nil }
func (f *fakeStore) ResetRunning(context.Context, string) (int, error)   { return 0, nil }
func (f *fakeStore) RecoverInterrupted(_ context.Context, projectKey string) (int, error) {
	if f.recoverErr != nil {
		return 0, f.recoverErr
	}
	f.recovered = append(f.recovered, projectKey)
	return 1, nil
}
func (f *fakeStore) Len(context.Context, string) (int, error) { return 0, nil }

func floatPtr(v float64) *float64 { return &v }

func aliveFunc(alive map[string]bool) func(string) bool {
	return func(projectKey string) bool { return alive[projectKey] }
}

func TestSweepRecoversDeadWorkerPastMinRunning(t *testing.T) {
	now := jobstore.Now()
	store := &fakeStore{running: []jobstore.Job{
		{JobID: "j1", ProjectKey: "p1", StartedAt: floatPtr(now - 400)},
	}}
	m := NewMonitor(Deps{
		Store:       store,
		WorkerAlive: aliveFunc(map[string]bool{}),
		MinRunning:  300 * time.Second,
	})
	m.SweepOnce(t.Context())
	if len(store.recovered) != 1 || store.recovered[0] != "p1" {
		t.Fatalf("expected p1 recovered, got %v", store.recovered)
	}
}

func TestSweepDoesNotRecoverDeadWorkerUnderMinRunning(t *testing.T) {
	now := jobstore.Now()
	store := &fakeStore{running: []jobstore.Job{
		{JobID: "j1", ProjectKey: "p1", StartedAt: floatPtr(now - 10)},
	}}
	m := NewMonitor(Deps{
		Store:       store,
		WorkerAlive: aliveFunc(map[string]bool{}),
		MinRunning:  300 * time.Second,
	})
	m.SweepOnce(t.Context())
	if len(store.recovered) != 0 {
		t.Fatalf("expected no recovery yet, got %v", store.recovered)
	}
}

func TestSweepRecoversLegacyJobWithNoStartedAtAndDeadWorker(t *testing.T) {
	store := &fakeStore{running: []jobstore.Job{
		{JobID: "j1", ProjectKey: "p1", StartedAt: nil},
	}}
	m := NewMonitor(Deps{Store: store, WorkerAlive: aliveFunc(map[string]bool{})})
	m.SweepOnce(t.Context())
	if len(store.recovered) != 1 {
		t.Fatalf("expected legacy job recovered, got %v", store.recovered)
	}
}

func TestSweepDoesNotRecoverUnknownAgeWithAliveWorker(t *testing.T) {
	store := &fakeStore{running: []jobstore.Job{
		{JobID: "j1", ProjectKey: "p1", StartedAt: nil},
	}}
	m := NewMonitor(Deps{Store: store, WorkerAlive: aliveFunc(map[string]bool{"p1": true})})
	m.SweepOnce(t.Context())
	if len(store.recovered) != 0 {
		t.Fatalf("expected no recovery, got %v", store.recovered)
	}
}

func TestSweepRecoversOnDefaultTimeoutEvenWithAliveWorker(t *testing.T) {
	now := jobstore.Now()
	store := &fakeStore{running: []jobstore.Job{
		{JobID: "j1", ProjectKey: "p1", StartedAt: floatPtr(now - 2800), MessageText: "fix the bug"},
	}}
	m := NewMonitor(Deps{
		Store:          store,
		WorkerAlive:    aliveFunc(map[string]bool{"p1": true}),
		TimeoutDefault: 2700 * time.Second,
		TimeoutBuild:   9000 * time.Second,
	})
	m.SweepOnce(t.Context())
	if len(store.recovered) != 1 {
		t.Fatalf("expected timeout recovery, got %v", store.recovered)
	}
}

func TestSweepUsesBuildTimeoutWhenMessageContainsDoBuild(t *testing.T) {
	now := jobstore.Now()
	store := &fakeStore{running: []jobstore.Job{
		{JobID: "j1", ProjectKey: "p1", StartedAt: floatPtr(now - 2800), MessageText: "run /do-build please"},
	}}
	m := NewMonitor(Deps{
		Store:          store,
		WorkerAlive:    aliveFunc(map[string]bool{"p1": true}),
		TimeoutDefault: 2700 * time.Second,
		TimeoutBuild:   9000 * time.Second,
	})
	m.SweepOnce(t.Context())
	if len(store.recovered) != 0 {
		t.Fatalf("expected /do-build job to use the longer budget and not time out yet, got %v", store.recovered)
	}
}

func TestSweepRecoversOnlyOncePerProjectPerPass(t *testing.T) {
	store := &fakeStore{running: []jobstore.Job{
		{JobID: "j1", ProjectKey: "p1", StartedAt: nil},
		{JobID: "j2", ProjectKey: "p1", StartedAt: nil},
	}}
	m := NewMonitor(Deps{Store: store, WorkerAlive: aliveFunc(map[string]bool{})})
	m.SweepOnce(t.Context())
	if len(store.recovered) != 1 {
		t.Fatalf("expected exactly one RecoverInterrupted call for p1, got %v", store.recovered)
	}
}
