// Package branch implements the Branch Coordinator of spec.md §4.3: git
// branch lifecycle for a session, wrapping internal/gitutil the way the
// teacher's internal/container wraps the md CLI.
package branch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caic-xyz/orchestrator/internal/gitutil"
)

// WorkStatus is the derived summary of a working directory's state
// (spec.md §3).
type WorkStatus string

const (
	WorkClean      WorkStatus = "CLEAN"
	WorkInProgress WorkStatus = "IN_PROGRESS"
	WorkBlocked    WorkStatus = "BLOCKED"
)

// State is a snapshot of the git working directory (spec.md §3).
type State struct {
	CurrentBranch        string
	IsMain                bool
	HasUncommittedChanges bool
	ActivePlan            string // path to docs/plans/ACTIVE-*.md, or ""
	WorkStatus             WorkStatus
}

// GitOps is the subset of internal/gitutil the Coordinator depends on,
// extracted as an interface for testability (mirrors the teacher's
// ContainerBackend interface in task/runner.go).
type GitOps interface {
	CurrentBranch(ctx context.Context, dir string) (string, error)
	CheckoutBranch(ctx context.Context, dir, branch string) error
	CreateBranch(ctx context.Context, dir, branch, startPoint string) error
	DeleteBranch(ctx context.Context, dir, branch string, force bool) error
	HasUncommittedChanges(ctx context.Context, dir string) (bool, error)
	AddAll(ctx context.Context, dir string) error
	Commit(ctx context.Context, dir, message string) error
	MergeNoFF(ctx context.Context, dir, branch string) error
	Push(ctx context.Context, dir string) error
	PushSetUpstream(ctx context.Context, dir, branch string) error
	ListBranches(ctx context.Context, dir, pattern string) ([]string, error)
}

// Coordinator implements spec.md §4.3's contract.
type Coordinator struct {
	Git        GitOps
	MainBranch string        // defaults to "main"
	Timeout    time.Duration // per-operation timeout; defaults to 30s
}

func (c *Coordinator) mainBranch() string {
	if c.MainBranch == "" {
		return "main"
	}
	return c.MainBranch
}

func (c *Coordinator) timeout() time.Duration {
	if c.Timeout == 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

func (c *Coordinator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout())
}

var activePlanPattern = regexp.MustCompile(`^ACTIVE-.*\.md$`)

// GetState inspects dir and reports its BranchState (spec.md §4.3).
func (c *Coordinator) GetState(ctx context.Context, dir string) (State, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	current, err := c.Git.CurrentBranch(ctx, dir)
	if err != nil {
		return State{}, fmt.Errorf("current branch: %w", err)
	}
	dirty, err := c.Git.HasUncommittedChanges(ctx, dir)
	if err != nil {
		return State{}, fmt.Errorf("uncommitted changes: %w", err)
	}
	plan := findActivePlan(dir)
	isMain := current == c.mainBranch()

	var ws WorkStatus
	switch {
	case isMain && !dirty && plan == "":
		ws = WorkClean
	case !isMain || plan != "":
		ws = WorkInProgress
	default:
		ws = WorkBlocked
	}

	return State{
		CurrentBranch:         current,
		IsMain:                isMain,
		HasUncommittedChanges: dirty,
		ActivePlan:            plan,
		WorkStatus:            ws,
	}, nil
}

// findActivePlan returns the first file matching docs/plans/ACTIVE-*.md, or
// "" if none exists or the directory can't be read.
func findActivePlan(dir string) string {
	plansDir := filepath.Join(dir, "docs", "plans")
	entries, err := os.ReadDir(plansDir)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && activePlanPattern.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return ""
	}
	// Deterministic "first" match: lexicographically smallest name.
	first := names[0]
	for _, n := range names[1:] {
		if n < first {
			first = n
		}
	}
	return filepath.Join(plansDir, first)
}

// CheckoutSessionBranch tries `checkout <branch>`; on failure it falls back
// to `checkout main` then `checkout -b <branch>` (spec.md §4.3).
func (c *Coordinator) CheckoutSessionBranch(ctx context.Context, dir, branchName string) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.Git.CheckoutBranch(ctx, dir, branchName); err == nil {
		return true, nil
	}
	if err := c.Git.CheckoutBranch(ctx, dir, c.mainBranch()); err != nil {
		return false, fmt.Errorf("checkout main fallback: %w", err)
	}
	if err := c.Git.CreateBranch(ctx, dir, branchName, c.mainBranch()); err != nil {
		return false, fmt.Errorf("create session branch: %w", err)
	}
	return true, nil
}

// FinishBranch commits outstanding work, then either merges to main and
// pushes, or parks the branch for review (spec.md §4.3).
func (c *Coordinator) FinishBranch(ctx context.Context, dir, branchName string, autoMerge bool) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	dirty, err := c.Git.HasUncommittedChanges(ctx, dir)
	if err != nil {
		return false, c.bestEffortReturnToMain(ctx, dir, fmt.Errorf("check uncommitted: %w", err))
	}
	if dirty {
		if err := c.Git.AddAll(ctx, dir); err != nil {
			return false, c.bestEffortReturnToMain(ctx, dir, fmt.Errorf("add all: %w", err))
		}
		msg := "Auto-commit session work: " + branchName
		if err := c.Git.Commit(ctx, dir, msg); err != nil {
			return false, c.bestEffortReturnToMain(ctx, dir, fmt.Errorf("commit: %w", err))
		}
	}

	if autoMerge {
		if err := c.Git.CheckoutBranch(ctx, dir, c.mainBranch()); err != nil {
			return false, fmt.Errorf("checkout main: %w", err)
		}
		if err := c.Git.MergeNoFF(ctx, dir, branchName); err != nil {
			// Merge conflicts are left intact for human review, not
			// treated as a hard failure (spec.md §4.3/§7), but they must
			// still be reported rather than silently swallowed.
			if errors.Is(err, gitutil.ErrMergeConflict) {
				slog.Warn("branch: merge conflict, left for human review", "branch", branchName, "err", err)
			} else {
				slog.Warn("branch: merge failed", "branch", branchName, "err", err)
			}
			return false, nil
		}
		if err := c.Git.DeleteBranch(ctx, dir, branchName, false); err != nil {
			// Non-fatal: local history is authoritative either way.
			_ = err
		}
		if err := c.Git.Push(ctx, dir); err != nil {
			// Push failures are logged, not fatal.
			slog.Warn("branch: push after merge failed", "branch", branchName, "err", err)
		}
		return true, nil
	}

	if err := c.Git.PushSetUpstream(ctx, dir, branchName); err != nil {
		// Push failure is non-fatal (spec.md §7); still return to main.
		_ = c.Git.CheckoutBranch(ctx, dir, c.mainBranch())
		return true, nil
	}
	if err := c.Git.CheckoutBranch(ctx, dir, c.mainBranch()); err != nil {
		return true, fmt.Errorf("checkout main after park: %w", err)
	}
	return true, nil
}

// bestEffortReturnToMain tries to leave dir on the main branch even after a
// failure, returning the original error regardless of whether the checkout
// succeeds (spec.md §4.3 step 4).
func (c *Coordinator) bestEffortReturnToMain(ctx context.Context, dir string, cause error) error {
	_ = c.Git.CheckoutBranch(ctx, dir, c.mainBranch())
	return cause
}

// ListSessionBranches lists local branches matching "session/*".
func (c *Coordinator) ListSessionBranches(ctx context.Context, dir string) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.Git.ListBranches(ctx, dir, "session/*")
}

var nonBranchChars = regexp.MustCompile(`[^a-z0-9-]+`)
var multiHyphen = regexp.MustCompile(`-{2,}`)

// SanitizeBranchName lowercases description, replaces each run of characters
// that aren't alphanumeric or a hyphen with a hyphen, collapses hyphen runs,
// trims leading and trailing hyphens, and caps the result at 50 chars
// (spec.md §4.3). Idempotent: SanitizeBranchName(SanitizeBranchName(x)) ==
// SanitizeBranchName(x).
func SanitizeBranchName(description string) string {
	s := strings.ToLower(description)
	s = nonBranchChars.ReplaceAllString(s, "-")
	s = multiHyphen.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = s[:50]
		s = strings.TrimRight(s, "-")
	}
	return s
}

// SessionBranchName builds the "session/<sanitized>" branch name for a
// session_id (spec.md §4.3).
func SessionBranchName(sessionID string) string {
	return "session/" + SanitizeBranchName(sessionID)
}
