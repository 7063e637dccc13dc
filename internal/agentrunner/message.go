// Package agentrunner implements the Agent Runner of spec.md §4.4: it
// launches the coding-agent subprocess, streams its normalized output,
// installs the PostToolUse health hook, and exposes Query/Interrupt handles
// through a process-wide session registry.
package agentrunner

import "encoding/json"

// Message is a normalized agent output event (spec.md §6). Concrete types
// are *AssistantMessage, *ResultMessage, and *SystemMessage.
type Message interface {
	Type() string
}

// Overflow preserves JSON fields not mapped to a struct field, so new wire
// fields never silently drop data (grounded on the teacher's
// agent/claude/unknown.go Overflow convention).
type Overflow struct {
	Extra map[string]json.RawMessage `json:"-"`
}

// ContentBlock is one element of an AssistantMessage's content array.
type ContentBlock struct {
	// Type is "text" or "tool_use".
	Type string `json:"type"`
	// Text is set when Type == "text".
	Text string `json:"text,omitempty"`
	// Name and Input are set when Type == "tool_use".
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// AssistantMessage carries one turn of agent output (spec.md §6).
type AssistantMessage struct {
	MessageType string         `json:"type"`
	Model       string         `json:"model"`
	Content     []ContentBlock `json:"content"`
	Overflow    `json:"-"`
}

func (m *AssistantMessage) Type() string { return "assistant" }

// Text concatenates every text block in Content, the accumulated output the
// Output Pipeline consumes.
func (m *AssistantMessage) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// ToolUses returns every tool_use block in Content, in order.
func (m *AssistantMessage) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == "tool_use" {
			out = append(out, b)
		}
	}
	return out
}

// ResultMessage terminates an agent run (spec.md §6).
type ResultMessage struct {
	MessageType   string  `json:"type"`
	Subtype       string  `json:"subtype"`
	DurationMs    int64   `json:"duration_ms"`
	DurationAPIMs int64   `json:"duration_api_ms"`
	NumTurns      int     `json:"num_turns"`
	SessionID     string  `json:"session_id"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
	IsError       bool    `json:"is_error"`
	Result        string  `json:"result"`
	Overflow      `json:"-"`

	// StopReason is never present on the wire. A Backend sets it when a
	// PostToolUseHook requested a cooperative stop and the subprocess exited
	// without ever emitting its own terminal result line, so callers can tell
	// a deliberate abort apart from a genuine crash.
	StopReason string `json:"-"`
}

func (m *ResultMessage) Type() string { return "result" }

// SystemMessage carries out-of-band status the agent harness emits (e.g.
// "init", relay lifecycle notices). It is not part of spec.md's contract
// but is preserved for forward-compatible JSONL replay, matching the
// teacher's habit of modeling every observed record type.
type SystemMessage struct {
	MessageType string `json:"type"`
	Subtype     string `json:"subtype"`
	Overflow    `json:"-"`
}

func (m *SystemMessage) Type() string { return "system" }
