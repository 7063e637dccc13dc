package branch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/caic-xyz/orchestrator/internal/gitutil"
)

func TestSanitizeBranchNameIdempotent(t *testing.T) {
	inputs := []string{
		"Fix The Auth Bug!!",
		"tell a joke about Montréal and friends",
		"already-sanitized",
		"---leading-and-trailing---",
		strings.Repeat("x", 200),
	}
	for _, in := range inputs {
		once := SanitizeBranchName(in)
		twice := SanitizeBranchName(once)
		if once != twice {
			t.Errorf("not idempotent: sanitize(%q)=%q, sanitize(that)=%q", in, once, twice)
		}
		if len(once) > 50 {
			t.Errorf("sanitize(%q) too long: %d", in, len(once))
		}
		for _, r := range once {
			if !(r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
				t.Errorf("sanitize(%q) contains disallowed char %q", in, r)
			}
		}
	}
}

func TestSessionBranchName(t *testing.T) {
	got := SessionBranchName("Session 123!")
	want := "session/session-123"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// fakeGit is an in-memory GitOps double for testing the Coordinator's
// control flow without shelling out.
type fakeGit struct {
	current     string
	dirty       bool
	branches    map[string]bool
	mergeErr    error
	pushErr     error
	checkoutLog []string
}

func newFakeGit() *fakeGit {
	return &fakeGit{current: "main", branches: map[string]bool{"main": true}}
}

func (f *fakeGit) CurrentBranch(context.Context, string) (string, error) { return f.current, nil }

func (f *fakeGit) CheckoutBranch(_ context.Context, _, branch string) error {
	f.checkoutLog = append(f.checkoutLog, branch)
	if !f.branches[branch] {
		return errors.New("no such branch: " + branch)
	}
	f.current = branch
	return nil
}

func (f *fakeGit) CreateBranch(_ context.Context, _, branch, _ string) error {
	f.branches[branch] = true
	f.current = branch
	return nil
}

func (f *fakeGit) DeleteBranch(_ context.Context, _, branch string, _ bool) error {
	delete(f.branches, branch)
	return nil
}

func (f *fakeGit) HasUncommittedChanges(context.Context, string) (bool, error) { return f.dirty, nil }
func (f *fakeGit) AddAll(context.Context, string) error                        { return nil }
func (f *fakeGit) Commit(context.Context, string, string) error                { f.dirty = false; return nil }
func (f *fakeGit) MergeNoFF(context.Context, string, string) error             { return f.mergeErr }
func (f *fakeGit) Push(context.Context, string) error                          { return f.pushErr }
func (f *fakeGit) PushSetUpstream(context.Context, string, string) error       { return f.pushErr }
func (f *fakeGit) ListBranches(context.Context, string, string) ([]string, error) {
	var out []string
	for b := range f.branches {
		out = append(out, b)
	}
	return out, nil
}

func TestCheckoutSessionBranchFallsBackToCreate(t *testing.T) {
	g := newFakeGit()
	c := &Coordinator{Git: g}
	ok, err := c.CheckoutSessionBranch(context.Background(), "/repo", "session/abc")
	if err != nil || !ok {
		t.Fatalf("checkout: ok=%v err=%v", ok, err)
	}
	if g.current != "session/abc" {
		t.Errorf("current branch = %q, want session/abc", g.current)
	}
}

func TestCheckoutSessionBranchReusesExisting(t *testing.T) {
	g := newFakeGit()
	g.branches["session/abc"] = true
	c := &Coordinator{Git: g}
	ok, err := c.CheckoutSessionBranch(context.Background(), "/repo", "session/abc")
	if err != nil || !ok {
		t.Fatalf("checkout: ok=%v err=%v", ok, err)
	}
	// Only one checkout call: the direct one succeeded, no main fallback.
	if len(g.checkoutLog) != 1 {
		t.Errorf("checkout calls = %v, want 1 call", g.checkoutLog)
	}
}

func TestFinishBranchAutoMergeSuccess(t *testing.T) {
	g := newFakeGit()
	g.branches["session/abc"] = true
	g.dirty = true
	c := &Coordinator{Git: g}
	ok, err := c.FinishBranch(context.Background(), "/repo", "session/abc", true)
	if err != nil || !ok {
		t.Fatalf("finish: ok=%v err=%v", ok, err)
	}
	if _, exists := g.branches["session/abc"]; exists {
		t.Error("expected branch to be deleted after merge")
	}
}

func TestFinishBranchMergeConflictLeavesBranchIntact(t *testing.T) {
	g := newFakeGit()
	g.branches["session/abc"] = true
	g.mergeErr = fmt.Errorf("%w: CONFLICT (content): merge conflict in foo.go", gitutil.ErrMergeConflict)
	c := &Coordinator{Git: g}
	ok, err := c.FinishBranch(context.Background(), "/repo", "session/abc", true)
	if err != nil {
		t.Fatalf("expected non-fatal conflict, got err=%v", err)
	}
	if ok {
		t.Error("expected ok=false on merge conflict")
	}
	if _, exists := g.branches["session/abc"]; !exists {
		t.Error("branch must remain intact after a merge conflict")
	}
}

func TestFinishBranchOtherMergeFailureLeavesBranchIntact(t *testing.T) {
	g := newFakeGit()
	g.branches["session/abc"] = true
	g.mergeErr = errors.New("fatal: not a git repository")
	c := &Coordinator{Git: g}
	ok, err := c.FinishBranch(context.Background(), "/repo", "session/abc", true)
	if err != nil {
		t.Fatalf("expected non-fatal merge failure, got err=%v", err)
	}
	if ok {
		t.Error("expected ok=false on merge failure")
	}
	if _, exists := g.branches["session/abc"]; !exists {
		t.Error("branch must remain intact after a merge failure")
	}
}

func TestFinishBranchParkForReview(t *testing.T) {
	g := newFakeGit()
	g.branches["session/abc"] = true
	c := &Coordinator{Git: g}
	ok, err := c.FinishBranch(context.Background(), "/repo", "session/abc", false)
	if err != nil || !ok {
		t.Fatalf("finish: ok=%v err=%v", ok, err)
	}
	if g.current != "main" {
		t.Errorf("expected to return to main, got %q", g.current)
	}
}

func TestGetStateClean(t *testing.T) {
	g := newFakeGit()
	c := &Coordinator{Git: g}
	st, err := c.GetState(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if st.WorkStatus != WorkClean {
		t.Errorf("work status = %q, want CLEAN", st.WorkStatus)
	}
	if !st.IsMain {
		t.Error("expected IsMain true")
	}
}

func TestGetStateInProgressOffMain(t *testing.T) {
	g := newFakeGit()
	g.current = "session/abc"
	c := &Coordinator{Git: g}
	st, err := c.GetState(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if st.WorkStatus != WorkInProgress {
		t.Errorf("work status = %q, want IN_PROGRESS", st.WorkStatus)
	}
}
