package claude

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/caic-xyz/orchestrator/internal/agentrunner"
)

var (
	assistantFields = makeSet("type", "model", "content")
	resultFields    = makeSet("type", "subtype", "duration_ms", "duration_api_ms", "num_turns",
		"session_id", "total_cost_usd", "is_error", "result")
	systemFields = makeSet("type", "subtype")
)

// decodeLine decodes a single JSONL line into an agentrunner.Message.
func decodeLine(line []byte) (agentrunner.Message, error) {
	var head rawRecord
	if err := json.Unmarshal(line, &head); err != nil {
		return nil, fmt.Errorf("claude: decode record type: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("claude: decode record fields: %w", err)
	}

	switch head.Type {
	case recordAssistant:
		var m agentrunner.AssistantMessage
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("claude: decode assistant record: %w", err)
		}
		m.Extra = collectUnknown(raw, assistantFields)
		warnUnknown("assistant", m.Extra)
		return &m, nil
	case recordResult:
		var m agentrunner.ResultMessage
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("claude: decode result record: %w", err)
		}
		m.Extra = collectUnknown(raw, resultFields)
		warnUnknown("result", m.Extra)
		return &m, nil
	case recordSystem:
		var m agentrunner.SystemMessage
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("claude: decode system record: %w", err)
		}
		m.Extra = collectUnknown(raw, systemFields)
		warnUnknown("system", m.Extra)
		return &m, nil
	default:
		slog.Warn("claude: unknown record type", "type", head.Type)
		return &agentrunner.SystemMessage{MessageType: string(head.Type)}, nil
	}
}

// warnUnknown logs the unmapped fields of a record, if any (forward
// compatibility discipline borrowed from the Claude Code JSONL reader).
func warnUnknown(context string, extra map[string]json.RawMessage) {
	if len(extra) == 0 {
		return
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	slog.Warn("claude: unknown fields in record", "context", context, "fields", keys)
}

// readMessages decodes every JSONL line from r, skipping malformed ones
// with a warning, and invokes emit for each decoded message in order.
func readMessages(r io.Reader, emit func(agentrunner.Message)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := decodeLine(line)
		if err != nil {
			slog.Warn("claude: skipping malformed JSONL line", "line", lineNo, "error", err)
			continue
		}
		emit(msg)
	}
	return scanner.Err()
}
