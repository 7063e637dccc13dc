package agentrunner

import "context"

// Options configures one agent subprocess launch (spec.md §4.4).
type Options struct {
	// SystemPromptPath is a well-known file holding the agent's system prompt.
	SystemPromptPath string
	// WorkingDir is the session's git checkout.
	WorkingDir string
	// SessionID threads conversation continuity across resumes.
	SessionID string
	// Env is merged over the process environment; it carries the LLM API key.
	Env map[string]string
	// Hook is invoked after every tool call the agent makes.
	Hook PostToolUseHook
	// Prompt is the initial user-role message sent once the process is up.
	Prompt string
}

// Harness identifies which coding-agent wire format a Backend speaks.
type Harness string

const HarnessClaude Harness = "claude"

// Backend launches and communicates with a coding agent subprocess,
// translating its native wire format into agentrunner.Message values so the
// rest of the system stays agent-agnostic (spec.md §4.4).
type Backend interface {
	// Start launches the agent and returns a live Session. msgCh receives
	// normalized messages as they arrive; it is closed when the process exits.
	Start(ctx context.Context, opts Options, msgCh chan<- Message) (*Session, error)
	// ParseMessage decodes one wire-format JSONL line, for transcript replay.
	ParseMessage(line []byte) (Message, error)
	// Harness identifies the wire format this Backend speaks.
	Harness() Harness
}
