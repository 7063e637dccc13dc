package pipeline

import (
	"os"
	"regexp"
	"strings"
)

var successCriteriaPat = regexp.MustCompile(`(?ms)^## Success Criteria\s*\n(.*?)(?:^## |\z)`)

// ExtractSuccessCriteria reads planFile and extracts the contents of its
// "## Success Criteria" Markdown section (spec.md §11's supplemented
// plan-parsing feature, grounded on the original coach's
// _extract_success_criteria). It returns ok=false whenever the file is
// missing, unreadable, or the section can't be parsed with certainty —
// the coach must never guess at unparsed content.
func ExtractSuccessCriteria(planFile string) (string, bool) {
	data, err := os.ReadFile(planFile)
	if err != nil {
		return "", false
	}
	m := successCriteriaPat.FindStringSubmatch(string(data))
	if m == nil {
		return "", false
	}
	criteria := strings.TrimSpace(m[1])
	if criteria == "" {
		return "", false
	}
	return criteria, true
}
