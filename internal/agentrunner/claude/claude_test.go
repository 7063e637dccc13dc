package claude

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestWritePrompt(t *testing.T) {
	t.Run("TextOnly", func(t *testing.T) {
		var buf, logBuf bytes.Buffer
		var b Backend
		if err := b.WritePrompt(&buf, "hello", &logBuf); err != nil {
			t.Fatal(err)
		}
		if buf.String() != logBuf.String() {
			t.Errorf("stdin and log differ:\nstdin: %q\nlog:   %q", buf.String(), logBuf.String())
		}
		if !strings.Contains(buf.String(), `"content":"hello"`) {
			t.Errorf("unexpected output: %s", buf.String())
		}
	})

	t.Run("NoLogWriter", func(t *testing.T) {
		var buf bytes.Buffer
		var b Backend
		if err := b.WritePrompt(&buf, "hi", nil); err != nil {
			t.Fatal(err)
		}
		if buf.Len() == 0 {
			t.Error("expected prompt written to stdin buffer")
		}
	})
}

func TestWriteInterrupt(t *testing.T) {
	var buf bytes.Buffer
	var b Backend
	if err := b.WriteInterrupt(&buf, nil); err != nil {
		t.Fatal(err)
	}
	var env struct {
		Type    string `json:"type"`
		Request struct {
			Subtype string `json:"subtype"`
		} `json:"request"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != "control_request" || env.Request.Subtype != "interrupt" {
		t.Errorf("unexpected interrupt envelope: %+v", env)
	}
}

func TestDecodeLineAssistant(t *testing.T) {
	line := []byte(`{"type":"assistant","model":"claude-x","content":[{"type":"text","text":"hi"},{"type":"tool_use","name":"Bash","input":{"command":"ls"}}]}`)
	msg, err := decodeLine(line)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type() != "assistant" {
		t.Fatalf("got %#v", msg)
	}
}

func TestDecodeLineResult(t *testing.T) {
	line := []byte(`{"type":"result","subtype":"success","num_turns":3,"is_error":false,"result":"done","extra_field_from_future_version":"x"}`)
	msg, err := decodeLine(line)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type() != "result" {
		t.Fatalf("got type %q", msg.Type())
	}
}

func TestDecodeLineUnknownType(t *testing.T) {
	line := []byte(`{"type":"some_future_type","foo":"bar"}`)
	msg, err := decodeLine(line)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type() != "system" {
		t.Fatalf("expected fallback system message, got %q", msg.Type())
	}
}

func TestBackendHarness(t *testing.T) {
	var b Backend
	if b.Harness() != "claude" {
		t.Errorf("harness = %q", b.Harness())
	}
}
