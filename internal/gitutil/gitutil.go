// Package gitutil wraps the git CLI operations named in spec.md §6
// (checkout, checkout -b, status, rev-parse, branch --list, branch -d,
// add, commit, merge, push). Every call takes a per-invocation context so
// callers can bound it with a timeout (spec.md §5: "5-30s" per git call).
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// run executes git with args in dir, returning stdout and a wrapped error
// that includes stderr, matching the teacher's container.go idiom.
func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...) //nolint:gosec // args are built from internal state, not user input.
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Fetch runs `git fetch` so that origin/<base> is up to date.
func Fetch(ctx context.Context, dir string) error {
	_, err := run(ctx, dir, "fetch")
	return err
}

// CurrentBranch returns the checked-out branch name via rev-parse.
func CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CheckoutBranch checks out an existing branch.
func CheckoutBranch(ctx context.Context, dir, branch string) error {
	_, err := run(ctx, dir, "checkout", branch)
	return err
}

// CreateBranch creates and checks out a new branch from startPoint.
func CreateBranch(ctx context.Context, dir, branch, startPoint string) error {
	_, err := run(ctx, dir, "checkout", "-b", branch, startPoint)
	return err
}

// DeleteBranch removes a local branch. force uses -D instead of -d.
func DeleteBranch(ctx context.Context, dir, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := run(ctx, dir, "branch", flag, branch)
	return err
}

// ListBranches returns local branches matching a glob pattern (e.g.
// "session/*"), as passed to `git branch --list <pattern>`.
func ListBranches(ctx context.Context, dir, pattern string) ([]string, error) {
	out, err := run(ctx, dir, "branch", "--list", pattern)
	if err != nil {
		return nil, err
	}
	var branches []string
	for line := range strings.Lines(out) {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "* ")
		if line == "" {
			continue
		}
		branches = append(branches, line)
	}
	return branches, nil
}

// HasUncommittedChanges reports whether the working tree has any changes,
// tracked or untracked, via `git status --porcelain`.
func HasUncommittedChanges(ctx context.Context, dir string) (bool, error) {
	out, err := run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// AddAll stages every change in the working tree.
func AddAll(ctx context.Context, dir string) error {
	_, err := run(ctx, dir, "add", "-A")
	return err
}

// Commit creates a commit with the given message. Assumes AddAll was
// already called; returns nil even when there is nothing to commit is NOT
// guaranteed — callers must check HasUncommittedChanges first.
func Commit(ctx context.Context, dir, message string) error {
	_, err := run(ctx, dir, "commit", "-m", message)
	return err
}

// MergeNoFF merges branch into the currently checked-out branch with
// --no-ff. Returns ErrMergeConflict (wrapped) when git reports a conflict.
func MergeNoFF(ctx context.Context, dir, branch string) error {
	_, err := run(ctx, dir, "merge", "--no-ff", branch)
	if err != nil && isConflict(err) {
		return fmt.Errorf("%w: %w", ErrMergeConflict, err)
	}
	return err
}

// FileStat is the added/deleted line count for one changed file, as
// reported by `git diff --numstat`.
type FileStat struct {
	Path    string
	Added   int
	Deleted int
	Binary  bool
}

// DiffStat reports the per-file change counts against HEAD for the
// session's working directory, so job completion can carry real diff
// numbers instead of ones scraped from the agent's prose.
func DiffStat(ctx context.Context, dir string) ([]FileStat, error) {
	out, err := run(ctx, dir, "diff", "--numstat", "HEAD")
	if err != nil {
		return nil, err
	}
	return parseNumstat(out), nil
}

func parseNumstat(numstat string) []FileStat {
	numstat = strings.TrimSpace(numstat)
	if numstat == "" {
		return nil
	}
	var files []FileStat
	for _, line := range strings.Split(numstat, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		fs := FileStat{Path: parts[2]}
		if parts[0] == "-" && parts[1] == "-" {
			fs.Binary = true
		} else {
			fs.Added, _ = strconv.Atoi(parts[0])
			fs.Deleted, _ = strconv.Atoi(parts[1])
		}
		files = append(files, fs)
	}
	return files
}

func isConflict(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "conflict") || strings.Contains(msg, "automatic merge failed")
}

// Push pushes the current branch.
func Push(ctx context.Context, dir string) error {
	_, err := run(ctx, dir, "push")
	return err
}

// PushSetUpstream pushes branch and sets origin/<branch> as its upstream.
func PushSetUpstream(ctx context.Context, dir, branch string) error {
	_, err := run(ctx, dir, "push", "-u", "origin", branch)
	return err
}

// MaxBranchSeqNum scans local branches matching "<prefix>/<n>" and returns
// the highest n found, or -1 if none exist.
func MaxBranchSeqNum(ctx context.Context, dir, prefix string) (int, error) {
	branches, err := ListBranches(ctx, dir, prefix+"/*")
	if err != nil {
		return -1, err
	}
	highest := -1
	for _, b := range branches {
		suffix := strings.TrimPrefix(b, prefix+"/")
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest, nil
}

// CatFileSize returns the size in bytes of a blob at branch:path.
func CatFileSize(ctx context.Context, dir, branch, path string) (int64, error) {
	out, err := run(ctx, dir, "cat-file", "-s", branch+":"+path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(out), 10, 64)
}

// DiffNumstat runs `git diff <spec> --numstat` and returns raw output for
// the caller to parse (kept separate from parsing so callers can choose the
// comparison spec: two branches, or a branch against origin/<base>).
func DiffNumstat(ctx context.Context, dir, fromRef, toRef string) (string, error) {
	return run(ctx, dir, "diff", fromRef+"..."+toRef, "--numstat")
}

// Diff runs `git diff <fromRef>...<toRef>` and returns the raw unified diff.
func Diff(ctx context.Context, dir, fromRef, toRef string) (string, error) {
	return run(ctx, dir, "diff", fromRef+"..."+toRef)
}
