package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExtractSuccessCriteriaMissingFile(t *testing.T) {
	_, ok := ExtractSuccessCriteria(filepath.Join(t.TempDir(), "nope.md"))
	if ok {
		t.Error("expected ok=false for missing file")
	}
}

func TestExtractSuccessCriteriaNoSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.md")
	if err := os.WriteFile(path, []byte("# Plan\nno criteria here\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, ok := ExtractSuccessCriteria(path)
	if ok {
		t.Error("expected ok=false when section is absent")
	}
}

func TestExtractSuccessCriteriaStopsAtNextHeading(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.md")
	if err := os.WriteFile(path, []byte("## Success Criteria\nfoo\nbar\n## Other\nbaz\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, ok := ExtractSuccessCriteria(path)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got != "foo\nbar" {
		t.Errorf("got %q", got)
	}
}

func TestExtractSuccessCriteriaToEndOfFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.md")
	if err := os.WriteFile(path, []byte("## Success Criteria\nfoo\nbar\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, ok := ExtractSuccessCriteria(path)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got != "foo\nbar" {
		t.Errorf("got %q", got)
	}
}
