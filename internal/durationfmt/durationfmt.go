// Package durationfmt formats elapsed seconds the way orchestratorctl's
// status table does (spec.md §6): minutes below an hour, hours+minutes
// above, "N/A" when there's nothing to report.
package durationfmt

import "fmt"

// Format renders seconds as "Nm" when under an hour, "Nh Mm" otherwise.
// A nil seconds (no start time recorded) renders as "N/A".
func Format(seconds *float64) string {
	if seconds == nil {
		return "N/A"
	}
	total := int64(*seconds)
	if total < 0 {
		total = 0
	}
	minutes := total / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	remMinutes := minutes % 60
	return fmt.Sprintf("%dh %dm", hours, remMinutes)
}
