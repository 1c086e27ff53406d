package analysis

// State is a position in the analysis state machine. Runs move forward
// through the states in declaration order; StateFailed is absorbing.
type State int

const (
	StateStart State = iota
	StateIngested
	StateCompetencyDone
	StateSuggestionsAttempted
	StateQuestionsAttempted
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateIngested:
		return "INGESTED"
	case StateCompetencyDone:
		return "COMPETENCY_DONE"
	case StateSuggestionsAttempted:
		return "SUGGESTIONS_ATTEMPTED"
	case StateQuestionsAttempted:
		return "QUESTIONS_ATTEMPTED"
	case StateComplete:
		return "COMPLETE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
