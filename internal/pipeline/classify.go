package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/maruel/genai"
)

// OutputType is one of the five classifier outcomes (spec.md §3/§4.5).
type OutputType string

const (
	OutputStatusUpdate OutputType = "STATUS_UPDATE"
	OutputQuestion     OutputType = "QUESTION"
	OutputCompletion   OutputType = "COMPLETION"
	OutputBlocker      OutputType = "BLOCKER"
	OutputError        OutputType = "ERROR"
)

// ClassificationResult is the classifier's verdict on a piece of agent
// output (spec.md §3), plus the rejected-completion heuristic spec.md
// §4.5 layers on top of the raw classification.
type ClassificationResult struct {
	OutputType            OutputType
	Confidence            float64
	Reason                string
	WasRejectedCompletion bool
}

var hedgingWords = []string{"should work", "probably", "i think", "might work", "hopefully"}

var completionFrame = []string{"done", "completed", "finished", "all set", "ready"}

// Classifier calls an LLM to bucket agent output into an OutputType, then
// layers the was_rejected_completion heuristic on top (spec.md §4.5).
type Classifier struct {
	Provider genai.Provider
}

const classifySystemPrompt = `Classify this AI coding agent's output into exactly one category:
STATUS_UPDATE - the agent made progress but more work remains
QUESTION - the agent needs user input to proceed
COMPLETION - the agent believes the task is fully done
BLOCKER - the agent cannot proceed without external action (credentials, access, a decision)
ERROR - the agent hit an error it could not resolve

Respond with ONLY a JSON object: {"output_type": "...", "confidence": 0.0-1.0, "reason": "..."}`

// Classify asks the configured provider to classify text and derives
// WasRejectedCompletion from artifacts/hedging language, independent of
// the LLM's own verdict (spec.md §4.5: "inferred when the agent's language
// matches a completion frame... but artifacts are absent and hedging words
// ... are present").
func (c *Classifier) Classify(ctx context.Context, text string, artifacts Artifacts) (ClassificationResult, error) {
	result, err := c.classifyLLM(ctx, text)
	if err != nil {
		return ClassificationResult{}, err
	}
	result.WasRejectedCompletion = looksLikeRejectedCompletion(text, artifacts)
	return result, nil
}

func (c *Classifier) classifyLLM(ctx context.Context, text string) (ClassificationResult, error) {
	if c.Provider == nil {
		return ClassificationResult{OutputType: OutputStatusUpdate, Confidence: 0, Reason: "no classifier configured"}, nil
	}
	res, err := c.Provider.GenSync(ctx,
		genai.Messages{genai.NewTextMessage(text)},
		&genai.GenOptionText{SystemPrompt: classifySystemPrompt, MaxTokens: 128, Temperature: 0},
	)
	if err != nil {
		return ClassificationResult{}, fmt.Errorf("pipeline: classify call: %w", err)
	}
	var parsed struct {
		OutputType string  `json:"output_type"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}
	raw := strings.TrimSpace(res.String())
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ClassificationResult{OutputType: OutputStatusUpdate, Confidence: 0, Reason: "unparseable classifier response"}, nil
	}
	return ClassificationResult{
		OutputType: OutputType(parsed.OutputType),
		Confidence: parsed.Confidence,
		Reason:     parsed.Reason,
	}, nil
}

// looksLikeRejectedCompletion implements spec.md §4.5's heuristic: a
// completion claim with hedging language and no supporting artifacts.
func looksLikeRejectedCompletion(text string, artifacts Artifacts) bool {
	lower := strings.ToLower(text)
	if !containsAny(lower, completionFrame) {
		return false
	}
	if !artifacts.Empty() {
		return false
	}
	return containsAny(lower, hedgingWords)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
