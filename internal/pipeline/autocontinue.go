package pipeline

// MaxAutoContinues bounds how many times a session may auto-continue
// before it must be delivered to the user regardless of classification
// (spec.md §4.5/§9).
const MaxAutoContinues = 3

// Action is the verdict of the auto-continue decision table (spec.md
// §4.5): either deliver the response to the user, or push a continuation
// job and suppress the reaction/final send.
type Action int

const (
	ActionDeliver Action = iota
	ActionAutoContinue
)

// Decision bundles the chosen Action with the continuation prompt to use
// when Action == ActionAutoContinue.
type Decision struct {
	Action             Action
	ContinuationPrompt string
}

// Decide implements spec.md §4.5's auto-continue decision table. planFile
// and jobMessageText feed the coach when a continuation is chosen.
func Decide(classification ClassificationResult, autoContinueCount int, planFile, jobMessageText string) Decision {
	switch {
	case classification.OutputType == OutputError:
		// Explicit guard: errors are always delivered, never auto-continued.
		return Decision{Action: ActionDeliver}
	case classification.OutputType == OutputStatusUpdate && autoContinueCount < MaxAutoContinues:
		return Decision{
			Action:             ActionAutoContinue,
			ContinuationPrompt: BuildCoachingMessage(classification, planFile, jobMessageText),
		}
	default:
		return Decision{Action: ActionDeliver}
	}
}
