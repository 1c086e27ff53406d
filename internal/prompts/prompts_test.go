package prompts

import (
	"strings"
	"testing"

	"github.com/spigell/jojun/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	job        = "Looking for a backend engineer skilled in databases and APIs."
	experience = "Built a REST API and optimized SQL queries."
)

func TestBuildEmbedsTexts(t *testing.T) {
	for _, task := range []Task{TaskCompetency, TaskSuggestions, TaskQuestions} {
		t.Run(task.String(), func(t *testing.T) {
			prompt, err := Build(task, "  "+job+"\n", experience)
			require.NoError(t, err)

			assert.Contains(t, prompt, job)
			assert.Contains(t, prompt, experience)
			assert.NotContains(t, prompt, "{{")
			assert.Less(t, strings.Index(prompt, job), strings.Index(prompt, experience))
		})
	}
}

func TestBuildCompetencyShape(t *testing.T) {
	prompt, err := Build(TaskCompetency, job, experience)
	require.NoError(t, err)

	for _, key := range []string{"categories", "job_scores", "user_scores", "fit_score", "overall_comment"} {
		assert.Contains(t, prompt, `"`+key+`"`)
	}
	assert.Contains(t, prompt, "5 most important competencies")
}

func TestCompetencyExamplePassesStrictValidation(t *testing.T) {
	prompt, err := Build(TaskCompetency, job, experience)
	require.NoError(t, err)

	format := strings.LastIndex(prompt, "Output format:")
	require.NotEqual(t, -1, format)
	example := prompt[format:]
	example = example[strings.Index(example, "{"):]

	res, err := validation.ValidateCompetency(example, true)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestBuildBlockGrammar(t *testing.T) {
	prompt, err := Build(TaskSuggestions, job, experience)
	require.NoError(t, err)
	assert.Contains(t, prompt, "exactly 3 blocks")
	assert.Contains(t, prompt, SuggestionFormat.Marker)
	assert.Contains(t, prompt, "Competency: <competency>\nWhy: <why>\nExample: <example>")

	prompt, err = Build(TaskQuestions, job, experience)
	require.NoError(t, err)
	assert.Contains(t, prompt, "exactly 5 blocks")
	assert.Contains(t, prompt, "3 questions that dig into the candidate's strengths")
	assert.Contains(t, prompt, "2 questions that probe")
	assert.Contains(t, prompt, QuestionFormat.Marker)
}

func TestBuildKeepsPlaceholdersInsideTexts(t *testing.T) {
	prompt, err := Build(TaskCompetency, "job mentions {{EXPERIENCE_TEXT}}", "exp mentions {{JOB_TEXT}}")
	require.NoError(t, err)
	assert.Contains(t, prompt, "job mentions {{EXPERIENCE_TEXT}}")
	assert.Contains(t, prompt, "exp mentions {{JOB_TEXT}}")
}

func TestBuildUnknownTask(t *testing.T) {
	_, err := Build(Task(42), job, experience)
	require.Error(t, err)
}

func TestOCR(t *testing.T) {
	assert.Contains(t, OCR(), "exactly as written")
}
