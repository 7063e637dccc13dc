package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildCoachingMessageRejectedCompletion(t *testing.T) {
	c := ClassificationResult{WasRejectedCompletion: true}
	msg := BuildCoachingMessage(c, "", "")
	if !strings.Contains(msg, "concrete proof") {
		t.Errorf("got %q", msg)
	}
}

func TestBuildCoachingMessagePlanWithCriteria(t *testing.T) {
	dir := t.TempDir()
	planFile := filepath.Join(dir, "ACTIVE-foo.md")
	content := "# Plan\n\n## Success Criteria\nAll tests pass.\nCLI has a --flag.\n\n## Notes\nirrelevant\n"
	if err := os.WriteFile(planFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	msg := BuildCoachingMessage(ClassificationResult{}, planFile, "")
	if !strings.Contains(msg, "All tests pass.") {
		t.Errorf("got %q", msg)
	}
	if strings.Contains(msg, "irrelevant") {
		t.Errorf("should not include content past the next heading: %q", msg)
	}
}

func TestBuildCoachingMessagePlanWithoutCriteria(t *testing.T) {
	dir := t.TempDir()
	planFile := filepath.Join(dir, "ACTIVE-foo.md")
	if err := os.WriteFile(planFile, []byte("# Plan\nno criteria section here\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	msg := BuildCoachingMessage(ClassificationResult{}, planFile, "")
	if !strings.Contains(msg, planFile) {
		t.Errorf("expected file pointer in %q", msg)
	}
}

func TestBuildCoachingMessageSkillDetection(t *testing.T) {
	msg := BuildCoachingMessage(ClassificationResult{}, "", "please run /do-test now")
	if !strings.Contains(msg, "test output with pass/fail counts") {
		t.Errorf("got %q", msg)
	}
}

func TestBuildCoachingMessageFallsBackToContinue(t *testing.T) {
	msg := BuildCoachingMessage(ClassificationResult{}, "", "just chatting, no skill here")
	if msg != "continue" {
		t.Errorf("got %q, want literal continue", msg)
	}
}

func TestBuildCoachingMessageCriteriaTruncatedAt500(t *testing.T) {
	dir := t.TempDir()
	planFile := filepath.Join(dir, "ACTIVE-foo.md")
	long := strings.Repeat("a", 600)
	content := "## Success Criteria\n" + long + "\n"
	if err := os.WriteFile(planFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	msg := BuildCoachingMessage(ClassificationResult{}, planFile, "")
	// 231 chars of fixed template + 500 chars of criteria + "\n..." = 735;
	// the untruncated 600-char criteria would give 831.
	if len(msg) > 735 {
		t.Errorf("coaching message too long: %d", len(msg))
	}
}
