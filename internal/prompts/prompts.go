// Package prompts renders the instructions sent to the generation model.
// Templates are markdown files embedded at compile time.
package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed *.md
var templateFiles embed.FS

const (
	placeholderJob        = "{{JOB_TEXT}}"
	placeholderExperience = "{{EXPERIENCE_TEXT}}"
	placeholderMarker     = "{{MARKER}}"
	placeholderLabels     = "{{LABELS}}"
	placeholderExample    = "{{EXAMPLE}}"
)

type Task int

const (
	TaskCompetency Task = iota
	TaskSuggestions
	TaskQuestions
)

func (t Task) String() string {
	switch t {
	case TaskCompetency:
		return "competency"
	case TaskSuggestions:
		return "suggestions"
	case TaskQuestions:
		return "questions"
	default:
		return fmt.Sprintf("task(%d)", int(t))
	}
}

// BlockFormat describes the delimited output grammar requested for a task:
// a marker line followed by labeled fields in fixed order.
type BlockFormat struct {
	Marker string
	Labels []string
	Count  int
}

var (
	SuggestionFormat = BlockFormat{
		Marker: "[[SUGGESTION]]",
		Labels: []string{"Competency", "Why", "Example"},
		Count:  3,
	}
	QuestionFormat = BlockFormat{
		Marker: "[[QUESTION]]",
		Labels: []string{"Focus", "Question", "Intent"},
		Count:  5,
	}
)

var examples = map[Task][]string{
	TaskSuggestions: {
		"name of the competency from the job posting",
		"why the current resume falls short for it",
		"a rewritten resume line the candidate could use",
	},
	TaskQuestions: {
		"Strength or Weakness, then the competency",
		"the question to ask",
		"what the interviewer learns from the answer",
	},
}

// Format returns the block grammar for task, if it has one.
func Format(task Task) (BlockFormat, bool) {
	switch task {
	case TaskSuggestions:
		return SuggestionFormat, true
	case TaskQuestions:
		return QuestionFormat, true
	default:
		return BlockFormat{}, false
	}
}

// Build renders the template for task with both texts embedded.
func Build(task Task, jobText, experienceText string) (string, error) {
	tmpl, err := load(task)
	if err != nil {
		return "", err
	}

	if format, ok := Format(task); ok {
		labels := make([]string, len(format.Labels))
		example := make([]string, len(format.Labels))
		for i, label := range format.Labels {
			labels[i] = label + ": <" + strings.ToLower(label) + ">"
			example[i] = label + ": " + examples[task][i]
		}
		tmpl = strings.ReplaceAll(tmpl, placeholderMarker, format.Marker)
		tmpl = strings.ReplaceAll(tmpl, placeholderLabels, strings.Join(labels, "\n"))
		tmpl = strings.ReplaceAll(tmpl, placeholderExample, strings.Join(example, "\n"))
	}

	// Experience goes in last so texts containing placeholders are left alone.
	prompt := strings.Replace(tmpl, placeholderJob, strings.TrimSpace(jobText), 1)
	idx := strings.LastIndex(prompt, placeholderExperience)
	if idx == -1 {
		return "", fmt.Errorf("template %s has no experience placeholder", task)
	}
	prompt = prompt[:idx] + strings.TrimSpace(experienceText) + prompt[idx+len(placeholderExperience):]
	return prompt, nil
}

// OCR returns the instruction used for transcribing images.
func OCR() string {
	data, err := templateFiles.ReadFile("ocr.md")
	if err != nil {
		panic(fmt.Sprintf("embedded ocr prompt: %v", err))
	}
	return strings.TrimSpace(string(data))
}

func load(task Task) (string, error) {
	var name string
	switch task {
	case TaskCompetency, TaskSuggestions, TaskQuestions:
		name = task.String() + ".md"
	default:
		return "", fmt.Errorf("unknown prompt task %s", task)
	}

	data, err := templateFiles.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("read prompt template %s: %w", name, err)
	}
	return string(data), nil
}
