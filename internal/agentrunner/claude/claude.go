package claude

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/caic-xyz/orchestrator/internal/agentrunner"
)

// Backend launches the claude CLI as a subprocess and speaks its
// stream-json wire format. The zero value uses the "claude" binary from
// PATH; set Binary to override (e.g. in tests).
type Backend struct {
	Binary string
}

func (b Backend) binary() string {
	if b.Binary == "" {
		return "claude"
	}
	return b.Binary
}

func (Backend) Harness() agentrunner.Harness { return agentrunner.HarnessClaude }

// ParseMessage decodes a single JSONL line, used for transcript replay.
func (Backend) ParseMessage(line []byte) (agentrunner.Message, error) {
	return decodeLine(line)
}

// Start launches the agent subprocess with spec.md §4.4's fixed invocation
// shape: a system prompt file, the session working directory, a bypass
// permission mode, a session id for continuity, and the caller's
// environment additions.
func (b Backend) Start(ctx context.Context, opts agentrunner.Options, msgCh chan<- agentrunner.Message) (*agentrunner.Session, error) {
	args := []string{
		"--print",
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--permission-mode", "bypassPermissions",
		"--session-id", opts.SessionID,
	}
	if opts.SystemPromptPath != "" {
		args = append(args, "--append-system-prompt-file", opts.SystemPromptPath)
	}

	cmd := exec.CommandContext(ctx, b.binary(), args...) //nolint:gosec // args are built from trusted config, not chat input.
	cmd.Dir = opts.WorkingDir
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("claude: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("claude: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("claude: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("claude: start: %w", err)
	}

	var mu sync.Mutex
	var result *agentrunner.ResultMessage
	var abortReason string

	writeFn := func(text string) error {
		return b.WritePrompt(stdin, text, nil)
	}
	interruptFn := func() error {
		return b.WriteInterrupt(stdin, nil)
	}
	closeFn := func() error {
		_ = stdin.Close()
		return nil
	}
	waitFn := func() (*agentrunner.ResultMessage, error) {
		err := cmd.Wait()
		mu.Lock()
		defer mu.Unlock()
		if result != nil {
			return result, nil
		}
		if abortReason != "" {
			// The hook asked the agent to stop cooperatively and the process
			// exited before emitting its own result line; report the abort
			// rather than letting the caller treat this exit as a crash.
			return &agentrunner.ResultMessage{Subtype: "aborted", StopReason: abortReason}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("claude: process exited: %w", err)
		}
		return nil, nil
	}

	sess := agentrunner.NewSession(opts.SessionID, agentrunner.HarnessClaude, writeFn, interruptFn, closeFn, waitFn)

	go logStderr(opts.SessionID, stderr)
	go func() {
		defer close(msgCh)
		toolCount := 0
		var tail []string
		stopRequested := false
		emit := func(m agentrunner.Message) {
			if am, ok := m.(*agentrunner.AssistantMessage); ok && opts.Hook != nil {
				for _, tu := range am.ToolUses() {
					toolCount++
					tail = append(tail, agentrunner.SummarizeToolUse(tu))
					dec := opts.Hook(ctx, sess, toolCount, agentrunner.JoinToolUseSummaries(tail))
					if !dec.Continue && !stopRequested {
						stopRequested = true
						slog.Warn("claude: hook requested stop", "session", opts.SessionID, "reason", dec.StopReason)
						mu.Lock()
						abortReason = dec.StopReason
						mu.Unlock()
						if err := interruptFn(); err != nil {
							slog.Error("claude: failed to interrupt agent after hook stop", "session", opts.SessionID, "err", err)
						}
					}
				}
			}
			if rm, ok := m.(*agentrunner.ResultMessage); ok {
				mu.Lock()
				result = rm
				mu.Unlock()
			}
			msgCh <- m
		}
		if err := readMessages(stdout, emit); err != nil {
			slog.Warn("claude: reading stdout stream ended with error", "session", opts.SessionID, "err", err)
		}
	}()

	if opts.Prompt != "" {
		if err := writeFn(opts.Prompt); err != nil {
			return sess, fmt.Errorf("claude: write initial prompt: %w", err)
		}
	}
	return sess, nil
}

// logStderr mirrors the agent subprocess's stderr into structured logs.
func logStderr(sessionID string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		slog.Debug("claude: stderr", "session", sessionID, "line", scanner.Text())
	}
}
