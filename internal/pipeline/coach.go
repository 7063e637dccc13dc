package pipeline

import (
	"fmt"
	"strings"
)

// SkillInfo describes one SDLC skill the coach recognizes, grounded on the
// teacher's skill-detector registry: a trigger prefix, the workflow phase
// it corresponds to, and the evidence the coach should ask for.
type SkillInfo struct {
	Trigger      string
	Phase        string
	Description  string
	EvidenceHint string
}

// SkillRegistry is the ordered set of recognized skills (spec.md §4.5).
var SkillRegistry = []SkillInfo{
	{Trigger: "/do-plan", Phase: "plan", Description: "creating a structured plan document",
		EvidenceHint: "a finalized plan doc with all required sections filled in"},
	{Trigger: "/do-build", Phase: "build", Description: "implementing a plan with code changes",
		EvidenceHint: "passing tests, commit hashes, and a PR link"},
	{Trigger: "/do-test", Phase: "test", Description: "running test suites and validating quality",
		EvidenceHint: "test output with pass/fail counts and coverage numbers"},
	{Trigger: "/do-docs", Phase: "document", Description: "creating or updating documentation",
		EvidenceHint: "created/updated doc file paths and an index entry"},
}

// detectSkill returns the first registry entry whose trigger appears in
// messageText, or false if none match.
func detectSkill(messageText string) (SkillInfo, bool) {
	if messageText == "" {
		return SkillInfo{}, false
	}
	for _, s := range SkillRegistry {
		if strings.Contains(messageText, s.Trigger) {
			return s, true
		}
	}
	return SkillInfo{}, false
}

const maxCoachedCriteriaChars = 500

// BuildCoachingMessage implements spec.md §4.5's coaching tiers. It never
// guesses: when none of the higher-priority tiers apply cleanly, it
// degrades to the literal string "continue".
func BuildCoachingMessage(classification ClassificationResult, planFile string, jobMessageText string) string {
	if classification.WasRejectedCompletion {
		return rejectionCoaching()
	}

	if planFile != "" {
		if criteria, ok := ExtractSuccessCriteria(planFile); ok {
			return skillCoachingWithCriteria(criteria)
		}
		return skillCoachingWithFilePointer(planFile)
	}

	if skill, ok := detectSkill(jobMessageText); ok {
		return genericSkillCoaching(skill)
	}

	return "continue"
}

func rejectionCoaching() string {
	return "[System Coach] Your previous output looked like a completion, but " +
		"it wasn't accepted because it lacked verification evidence. " +
		"Next time you're ready to report completion, include concrete proof: " +
		"test output with pass/fail counts, command exit codes, commit hashes, " +
		"or file paths you've confirmed exist. " +
		"Phrases like 'should work', 'probably', or 'I think' signal uncertainty; " +
		"run the verification commands and share the actual output instead."
}

func skillCoachingWithCriteria(criteria string) string {
	if len(criteria) > maxCoachedCriteriaChars {
		criteria = criteria[:maxCoachedCriteriaChars] + "\n..."
	}
	return fmt.Sprintf(
		"[System Coach] You are working through a plan. Here are the success "+
			"criteria to confirm before completing:\n%s\n\nWhen you're ready to wrap "+
			"up, confirm which of these are done and include the evidence (test "+
			"output, commits, file paths).", criteria)
}

func skillCoachingWithFilePointer(planFile string) string {
	return fmt.Sprintf(
		"[System Coach] You are working through a plan. Check the success "+
			"criteria in `%s` to confirm what's left to do before completing. "+
			"Include concrete evidence for each criterion when you're ready to "+
			"wrap up.", planFile)
}

func genericSkillCoaching(skill SkillInfo) string {
	return fmt.Sprintf(
		"[System Coach] You are %s. When you're ready to wrap up, confirm "+
			"completion with %s.", skill.Description, skill.EvidenceHint)
}
