package ai

import "time"

// CompetencyResult is the structured comparison returned by the competency step.
// Index i of Categories, JobScores and UserScores describes the same competency.
type CompetencyResult struct {
	Categories     []string `json:"categories" mapstructure:"categories"`
	JobScores      []int    `json:"job_scores" mapstructure:"job_scores"`
	UserScores     []int    `json:"user_scores" mapstructure:"user_scores"`
	FitScore       int      `json:"fit_score" mapstructure:"fit_score"`
	OverallComment string   `json:"overall_comment" mapstructure:"overall_comment"`

	// Warnings lists tolerated inconsistencies such as out-of-range scores.
	Warnings []string `json:"warnings,omitempty" mapstructure:"-"`
}

// Field is one labeled value inside a delimited block.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Block is one marker-delimited section of a suggestions or questions reply.
// A block that does not follow the expected grammar keeps its Raw text and a
// ParseError instead of Fields.
type Block struct {
	Fields     []Field `json:"fields,omitempty"`
	Raw        string  `json:"raw"`
	ParseError string  `json:"parse_error,omitempty"`
}

// Value returns the value of the first field with the given label.
func (b Block) Value(label string) string {
	for _, f := range b.Fields {
		if f.Label == label {
			return f.Value
		}
	}
	return ""
}

// FullAnalysisResult merges the competency result with the optional follow-up
// texts. A nil Suggestions or InterviewQuestions means that sub-step failed.
type FullAnalysisResult struct {
	CompetencyResult

	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`

	Suggestions      *string `json:"suggestions,omitempty"`
	SuggestionBlocks []Block `json:"suggestion_blocks,omitempty"`

	InterviewQuestions *string `json:"interview_questions,omitempty"`
	QuestionBlocks     []Block `json:"question_blocks,omitempty"`
}
