package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jojun/internal/ai"
	"github.com/spigell/jojun/internal/prompts"
	"github.com/spigell/jojun/internal/validation"
)

// Step is one model-backed stage of a run. A failing fatal step aborts the
// run; a failing non-fatal step leaves its output absent.
type Step interface {
	Name() string
	Fatal() bool
	// Done is the state the run reaches once the step was attempted.
	Done() State
	Apply(ctx context.Context, deps Deps, run *Run) (StepStatus, error)
}

// Deps aggregates what steps need from the analyzer.
type Deps struct {
	Logger *zap.Logger
	Call   func(ctx context.Context, name string, req ai.Request) (string, int, error)
	Strict bool
}

// StepStatus describes how a step went.
type StepStatus struct {
	Name     string
	Fatal    bool
	Attempts int
	Duration time.Duration
	Err      error
	Details  map[string]string
}

type competencyStep struct{}

// NewCompetency creates the structured competency comparison step.
func NewCompetency() Step {
	return competencyStep{}
}

func (competencyStep) Name() string { return prompts.TaskCompetency.String() }
func (competencyStep) Fatal() bool { return true }
func (competencyStep) Done() State { return StateCompetencyDone }

func (s competencyStep) Apply(ctx context.Context, deps Deps, run *Run) (StepStatus, error) {
	status := StepStatus{Name: s.Name(), Fatal: true}

	prompt, err := prompts.Build(prompts.TaskCompetency, run.Request.JobText, run.Request.ExperienceText)
	if err != nil {
		return status, err
	}

	raw, attempts, err := deps.Call(ctx, s.Name(), ai.Request{Prompt: prompt, Mode: ai.ModeJSON})
	status.Attempts = attempts
	if err != nil {
		return status, fmt.Errorf("competency call: %w", err)
	}

	result, err := validation.ValidateCompetency(raw, deps.Strict)
	if err != nil {
		return status, fmt.Errorf("competency response: %w", err)
	}

	for _, warning := range result.Warnings {
		deps.Logger.Warn("competency response is inconsistent", zap.String("problem", warning))
	}

	status.Details = map[string]string{
		"categories": strings.Join(result.Categories, ","),
		"fit_score":  fmt.Sprint(result.FitScore),
	}
	run.Result.CompetencyResult = *result
	return status, nil
}

type followupStep struct {
	task  prompts.Task
	done  State
	store func(r *ai.FullAnalysisResult, text string, blocks []ai.Block)
}

// NewSuggestions creates the resume improvement step.
func NewSuggestions() Step {
	return followupStep{
		task: prompts.TaskSuggestions,
		done: StateSuggestionsAttempted,
		store: func(r *ai.FullAnalysisResult, text string, blocks []ai.Block) {
			r.Suggestions = &text
			r.SuggestionBlocks = blocks
		},
	}
}

// NewQuestions creates the interview question step.
func NewQuestions() Step {
	return followupStep{
		task: prompts.TaskQuestions,
		done: StateQuestionsAttempted,
		store: func(r *ai.FullAnalysisResult, text string, blocks []ai.Block) {
			r.InterviewQuestions = &text
			r.QuestionBlocks = blocks
		},
	}
}

func (s followupStep) Name() string { return s.task.String() }
func (s followupStep) Fatal() bool { return false }
func (s followupStep) Done() State { return s.done }

func (s followupStep) Apply(ctx context.Context, deps Deps, run *Run) (StepStatus, error) {
	status := StepStatus{Name: s.Name()}

	prompt, err := prompts.Build(s.task, run.Request.JobText, run.Request.ExperienceText)
	if err != nil {
		return status, err
	}

	text, attempts, err := deps.Call(ctx, s.Name(), ai.Request{Prompt: prompt, Mode: ai.ModePlain})
	status.Attempts = attempts
	if err != nil {
		return status, fmt.Errorf("%s call: %w", s.Name(), err)
	}

	text = strings.TrimSpace(text)
	format, _ := prompts.Format(s.task)
	blocks := ParseBlocks(text, format)

	broken := 0
	for _, b := range blocks {
		if b.ParseError != "" {
			broken++
		}
	}
	if broken > 0 || len(blocks) != format.Count {
		deps.Logger.Warn("reply does not follow the block format",
			zap.String("step", s.Name()),
			zap.Int("blocks", len(blocks)),
			zap.Int("expected_blocks", format.Count),
			zap.Int("unparsed_blocks", broken),
		)
	}

	status.Details = map[string]string{
		"blocks":          fmt.Sprint(len(blocks)),
		"unparsed_blocks": fmt.Sprint(broken),
	}
	s.store(run.Result, text, blocks)
	return status, nil
}
