// Package pipeline implements the Output Pipeline of spec.md §4.5:
// summarization with artifact preservation, classification, coaching, and
// the auto-continue decision table.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/maruel/genai"
)

// Thresholds, named after spec.md §4.5/§9's tunables.
const (
	SummarizeThreshold  = 1500
	FileAttachThreshold = 3000
	MaxSummaryChars     = 2000
	PlatformLimitChars  = 4096
)

// Artifacts holds the regex-extracted evidence from an agent response,
// grouped by kind, each deduplicated in first-seen order.
type Artifacts struct {
	Commits      []string
	URLs         []string
	FilesChanged []string
	TestResults  []string
	Errors       []string
}

// Empty reports whether no artifacts of any kind were found.
func (a Artifacts) Empty() bool {
	return len(a.Commits) == 0 && len(a.URLs) == 0 && len(a.FilesChanged) == 0 &&
		len(a.TestResults) == 0 && len(a.Errors) == 0
}

var (
	commitKeywordPat = regexp.MustCompile(`(?i)(?:commit|pushed|merged|created)\s+([a-f0-9]{7,40})`)
	commitBarePat    = regexp.MustCompile(`\b([a-f0-9]{7,12})\b`)
	urlPat           = regexp.MustCompile(`https?://[^\s)>\]"']+`)
	fileVerbPat      = regexp.MustCompile(`(?i)(?:modified|created|deleted|renamed|changed):\s*(.+)`)
	fileStatusPat    = regexp.MustCompile(`(?m)^\s*[MADR]\s+(\S+)`)
	testResultPat    = regexp.MustCompile(`(?i)(\d+\s+passed(?:,\s*\d+\s+(?:failed|error|warning|skipped))*)`)
	errorLinePat     = regexp.MustCompile(`(?i)(?:error|exception|failed|failure):\s*(.+)`)
)

// ExtractArtifacts pulls commit hashes, URLs, changed files, test-result
// phrases, and error lines out of raw agent output (spec.md §4.5).
func ExtractArtifacts(text string) Artifacts {
	var a Artifacts
	a.Commits = dedupe(append(matchGroup(commitKeywordPat, text), matchGroup(commitBarePat, text)...))
	a.URLs = dedupe(urlPat.FindAllString(text, -1))
	files := matchGroup(fileVerbPat, text)
	for _, f := range fileStatusPat.FindAllStringSubmatch(text, -1) {
		files = append(files, f[1])
	}
	for i, f := range files {
		files[i] = strings.TrimSpace(f)
	}
	a.FilesChanged = dedupe(files)
	a.TestResults = dedupe(matchGroup(testResultPat, text))
	errs := dedupe(matchGroup(errorLinePat, text))
	if len(errs) > 5 {
		errs = errs[:5]
	}
	a.Errors = errs
	return a
}

func matchGroup(re *regexp.Regexp, text string) []string {
	matches := re.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Result is the outcome of summarizing one agent response (spec.md §4.5).
type Result struct {
	Text           string
	FullOutputPath string
	WasSummarized  bool
	Artifacts      Artifacts
}

// Summarizer turns raw agent output into Telegram/Slack-ready text,
// preserving artifacts, with a tiered LLM fallback to hard truncation.
type Summarizer struct {
	// Primary and Secondary are tried in order; either may be nil to skip
	// straight to hard truncation (spec.md §4.5: "fall back to a second LLM
	// ... on second failure, hard-truncate").
	Primary, Secondary genai.Provider
}

// Summarize implements spec.md §4.5's three-tier behavior.
func (s *Summarizer) Summarize(ctx context.Context, raw string) Result {
	if raw == "" || len(raw) <= SummarizeThreshold {
		return Result{Text: raw, WasSummarized: false}
	}

	artifacts := ExtractArtifacts(raw)

	var fullOutputPath string
	if len(raw) > FileAttachThreshold {
		if path, err := writeFullOutput(raw); err == nil {
			fullOutputPath = path
		}
	}

	for _, provider := range []genai.Provider{s.Primary, s.Secondary} {
		if provider == nil {
			continue
		}
		text, err := summarizeWith(ctx, provider, raw, artifacts)
		if err == nil {
			return Result{Text: text, FullOutputPath: fullOutputPath, WasSummarized: true, Artifacts: artifacts}
		}
	}

	return Result{
		Text:           hardTruncate(raw, PlatformLimitChars),
		FullOutputPath: fullOutputPath,
		WasSummarized:  false,
		Artifacts:      artifacts,
	}
}

func writeFullOutput(raw string) (string, error) {
	f, err := os.CreateTemp("", "orchestrator-full-output-*.txt")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(raw); err != nil {
		return "", err
	}
	return f.Name(), nil
}

const summarySystemPrompt = "Summarize this AI agent's work output into a concise chat message.\n\n" +
	"Rules:\n" +
	"- Maximum %d characters\n" +
	"- Preserve ALL commit hashes, URLs, and error messages exactly as-is\n" +
	"- Use short, direct sentences, no filler words\n" +
	"- Start with what was done, then key details\n" +
	"- If there were errors or failures, lead with those\n" +
	"- Do NOT include meta-commentary about summarizing"

func summarizeWith(ctx context.Context, provider genai.Provider, raw string, artifacts Artifacts) (string, error) {
	prompt := raw
	if !artifacts.Empty() {
		prompt += "\n\n" + artifactSection(artifacts)
	}
	res, err := provider.GenSync(ctx,
		genai.Messages{genai.NewTextMessage(prompt)},
		&genai.GenOptionText{
			SystemPrompt: fmt.Sprintf(summarySystemPrompt, MaxSummaryChars),
			MaxTokens:    1024,
			Temperature:  0.3,
		},
	)
	if err != nil {
		return "", fmt.Errorf("pipeline: summarize call: %w", err)
	}
	text := strings.TrimSpace(res.String())
	if len(text) >= len(raw) {
		// Safety check mirrors spec.md: a summary no shorter than the
		// original is not a summary.
		return hardTruncate(raw, PlatformLimitChars), nil
	}
	return text, nil
}

func artifactSection(a Artifacts) string {
	var b strings.Builder
	b.WriteString("IMPORTANT — These artifacts MUST appear verbatim in your summary:")
	for _, kv := range []struct {
		name   string
		values []string
	}{
		{"commits", a.Commits}, {"urls", a.URLs}, {"files_changed", a.FilesChanged},
		{"test_results", a.TestResults}, {"errors", a.Errors},
	} {
		if len(kv.values) == 0 {
			continue
		}
		vals := kv.values
		if len(vals) > 10 {
			vals = vals[:10]
		}
		b.WriteString("\n- ")
		b.WriteString(kv.name)
		b.WriteString(": ")
		b.WriteString(strings.Join(vals, ", "))
	}
	return b.String()
}

func hardTruncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
