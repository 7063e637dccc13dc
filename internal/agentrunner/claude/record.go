// Package claude implements the agentrunner.Backend for the Claude Code
// coding-agent harness (spec.md §4.4, §6): it writes prompts to the agent
// subprocess's stdin as JSON lines and decodes its stdout JSONL stream into
// agentrunner.Message values.
//
// The wire format is Claude Code's session-log JSONL: each line is a
// self-describing record carrying a "type" discriminator. New fields are
// expected to appear across agent versions, so every record type preserves
// unmapped fields in an Overflow map and logs a warning rather than
// silently dropping them (the same forward-compatibility discipline the
// teacher's Claude Code JSONL reader uses).
package claude

import "encoding/json"

// recordType discriminates a raw JSONL line before it is decoded into a
// concrete agentrunner.Message.
type recordType string

const (
	recordAssistant recordType = "assistant"
	recordResult    recordType = "result"
	recordSystem    recordType = "system"
)

// rawRecord is the minimal envelope used to sniff a line's type before full
// decoding, mirroring the teacher's Record/AsXxx() split.
type rawRecord struct {
	Type recordType `json:"type"`
}

// makeSet builds a lookup set of known JSON field names.
func makeSet(keys ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// collectUnknown returns the entries of raw whose keys are absent from known.
func collectUnknown(raw map[string]json.RawMessage, known map[string]struct{}) map[string]json.RawMessage {
	var extra map[string]json.RawMessage
	for k, v := range raw {
		if _, ok := known[k]; !ok {
			if extra == nil {
				extra = make(map[string]json.RawMessage)
			}
			extra[k] = v
		}
	}
	return extra
}
