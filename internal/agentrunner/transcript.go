package agentrunner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// MaxWatchdogEntries bounds how many recent tool-use summaries the watchdog
// sees, matching spec.md §4.4 ("last ~30 tool-use summaries").
const MaxWatchdogEntries = 30

// ReadTranscriptTail reads transcriptPath (a JSONL agent session log) and
// renders a short summary of the most recent tool calls for the watchdog
// judge prompt. Missing files and unparseable lines degrade gracefully
// rather than erroring, since the watchdog must never block on transcript
// trouble.
func ReadTranscriptTail(transcriptPath string) string {
	f, err := os.Open(transcriptPath)
	if err != nil {
		return "(transcript not found)"
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	var summaries []string
	for _, line := range lines {
		var rec struct {
			Type    string `json:"type"`
			Message struct {
				Content []ContentBlock `json:"content"`
			} `json:"message"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil || rec.Type != "assistant" {
			continue
		}
		for _, b := range rec.Message.Content {
			if b.Type != "tool_use" {
				continue
			}
			summaries = append(summaries, SummarizeToolUse(b))
		}
	}
	return JoinToolUseSummaries(summaries)
}

// JoinToolUseSummaries renders a capped, newline-joined tail of tool-use
// summaries for the watchdog prompt, or a placeholder when there are none.
// Used both for disk-backed transcript replay (ReadTranscriptTail) and for
// the live in-memory tail the claude backend builds as it streams a
// session's tool calls.
func JoinToolUseSummaries(summaries []string) string {
	if len(summaries) == 0 {
		return "(no tool calls found in recent transcript)"
	}
	if len(summaries) > MaxWatchdogEntries {
		summaries = summaries[len(summaries)-MaxWatchdogEntries:]
	}
	return strings.Join(summaries, "\n")
}

// SummarizeToolUse renders a one-line summary of a tool call for the
// watchdog prompt, keeping arguments short.
func SummarizeToolUse(b ContentBlock) string {
	var input map[string]any
	_ = json.Unmarshal(b.Input, &input)

	switch b.Name {
	case "Bash":
		return fmt.Sprintf("- Bash: %s", truncate(fmt.Sprint(input["command"]), 120))
	case "Read", "Write", "Edit":
		path := input["file_path"]
		if path == nil {
			path = input["path"]
		}
		return fmt.Sprintf("- %s: %v", b.Name, path)
	case "Grep":
		return fmt.Sprintf("- Grep: pattern=%q", fmt.Sprint(input["pattern"]))
	case "Glob":
		return fmt.Sprintf("- Glob: pattern=%q", fmt.Sprint(input["pattern"]))
	default:
		raw, _ := json.Marshal(input)
		return fmt.Sprintf("- %s: %s", b.Name, truncate(string(raw), 100))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
