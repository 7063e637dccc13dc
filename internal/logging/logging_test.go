package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestInitNonTerminalWriterEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Init(Options{Writer: &buf, Level: slog.LevelInfo})

	logger.Info("hello", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output for a non-terminal writer, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "hello" || entry["key"] != "value" {
		t.Errorf("got %v", entry)
	}
}

func TestInitRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Init(Options{Writer: &buf, Level: slog.LevelWarn})

	logger.Info("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("expected info log to be filtered at warn level, got %q", buf.String())
	}

	logger.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Errorf("expected warn log to appear, got %q", buf.String())
	}
}

func TestInitJSONOptionForcesJSONRegardlessOfWriter(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Writer: &buf, JSON: true})
	slog.Info("forced json")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
}
