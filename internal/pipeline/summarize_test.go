package pipeline

import (
	"strings"
	"testing"
)

func TestExtractArtifactsCommitsAndURLs(t *testing.T) {
	text := "I pushed a1b2c3d to main. See https://github.com/org/repo/pull/42 for the diff."
	a := ExtractArtifacts(text)
	if len(a.Commits) == 0 {
		t.Error("expected at least one commit hash")
	}
	found := false
	for _, c := range a.Commits {
		if c == "a1b2c3d" {
			found = true
		}
	}
	if !found {
		t.Errorf("commits = %v, want a1b2c3d present", a.Commits)
	}
	if len(a.URLs) != 1 || a.URLs[0] != "https://github.com/org/repo/pull/42" {
		t.Errorf("urls = %v", a.URLs)
	}
}

func TestExtractArtifactsTestResultsAndErrors(t *testing.T) {
	text := "Ran the suite: 12 passed, 2 failed\nerror: connection refused"
	a := ExtractArtifacts(text)
	if len(a.TestResults) != 1 {
		t.Errorf("test results = %v", a.TestResults)
	}
	if len(a.Errors) != 1 || !strings.Contains(a.Errors[0], "connection refused") {
		t.Errorf("errors = %v", a.Errors)
	}
}

func TestExtractArtifactsEmpty(t *testing.T) {
	a := ExtractArtifacts("just some plain text with nothing notable")
	if !a.Empty() {
		t.Errorf("expected empty artifacts, got %+v", a)
	}
}

func TestSummarizePassthroughBelowThreshold(t *testing.T) {
	s := &Summarizer{}
	short := "all done"
	res := s.Summarize(t.Context(), short)
	if res.WasSummarized || res.Text != short {
		t.Errorf("got %+v", res)
	}
}

func TestSummarizeHardTruncatesWithoutProviders(t *testing.T) {
	s := &Summarizer{}
	long := strings.Repeat("x", SummarizeThreshold+1)
	res := s.Summarize(t.Context(), long)
	if res.WasSummarized {
		t.Error("expected no LLM providers configured, so not summarized")
	}
	if len(res.Text) > PlatformLimitChars {
		t.Errorf("truncated text too long: %d", len(res.Text))
	}
}

func TestSummarizeWritesFullOutputAboveFileAttachThreshold(t *testing.T) {
	s := &Summarizer{}
	long := strings.Repeat("y", FileAttachThreshold+1)
	res := s.Summarize(t.Context(), long)
	if res.FullOutputPath == "" {
		t.Error("expected full output file to be written")
	}
}
