// Package analysis runs the competency pipeline against a generation gateway.
package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/jojun/internal/ai"
	"github.com/spigell/jojun/internal/history"
	"github.com/spigell/jojun/internal/logger"
	"github.com/spigell/jojun/internal/utils"
)

const (
	DefaultCallTimeout = 90 * time.Second
	DefaultMaxRetries  = 1
	DefaultRetryBase   = 2 * time.Second
	DefaultRetryLimit  = 30 * time.Second
)

var (
	newRunID = uuid.NewString
	now      = time.Now
)

type Config struct {
	// CallTimeout bounds every single gateway call.
	CallTimeout time.Duration
	// MaxRetries is the number of extra attempts for temporary failures.
	MaxRetries int
	RetryBase  time.Duration
	RetryLimit time.Duration
	// ParallelFollowups runs the suggestions and questions steps concurrently.
	ParallelFollowups bool
	// StrictValidation rejects out-of-range scores and mismatched lengths.
	StrictValidation bool
}

func DefaultConfig() Config {
	return Config{
		CallTimeout:       DefaultCallTimeout,
		MaxRetries:        DefaultMaxRetries,
		RetryBase:         DefaultRetryBase,
		RetryLimit:        DefaultRetryLimit,
		ParallelFollowups: true,
	}
}

// Request holds the two normalized texts.
type Request struct {
	JobText        string
	ExperienceText string
}

// Run records the progress of one analysis.
type Run struct {
	ID      string
	Request Request
	Result  *ai.FullAnalysisResult
	// Trace lists every state the run passed through, in order.
	Trace []State
	Steps []StepStatus
	// Evicted is the number of history entries dropped to make room.
	Evicted int
}

// State returns the last state reached.
func (r *Run) State() State {
	if len(r.Trace) == 0 {
		return StateStart
	}
	return r.Trace[len(r.Trace)-1]
}

type Analyzer struct {
	gateway ai.Gateway
	history *history.Store
	config  Config
	logger  *zap.Logger

	competency Step
	followups  []Step
}

// New creates an analyzer. A nil store disables history recording.
func New(gateway ai.Gateway, store *history.Store, cfg Config, log *zap.Logger) *Analyzer {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Analyzer{
		gateway:    gateway,
		history:    store,
		config:     cfg,
		logger:     logger.WithFields(log),
		competency: NewCompetency(),
		followups:  []Step{NewSuggestions(), NewQuestions()},
	}
}

// Analyze runs the pipeline. The returned Run is always non-nil; on failure
// the error is an *Error and the run ends in StateFailed.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Run, error) {
	run := &Run{
		ID:      newRunID(),
		Request: req,
		Trace:   []State{StateStart},
	}
	log := logger.WithRun(a.logger, run.ID)

	fail := func(err error) (*Run, error) {
		failed := &Error{RunID: run.ID, State: run.State(), Err: err}
		run.Trace = append(run.Trace, StateFailed)
		log.Error("analysis failed",
			zap.String(logger.FieldState, failed.State.String()),
			zap.Error(err),
		)
		return run, failed
	}

	if strings.TrimSpace(req.JobText) == "" || strings.TrimSpace(req.ExperienceText) == "" {
		return fail(ErrEmptyInput)
	}
	if a.gateway == nil {
		return fail(&ai.Error{Kind: ai.KindUnavailable, Err: errors.New("no gateway configured")})
	}

	run.Result = &ai.FullAnalysisResult{RunID: run.ID}
	run.Trace = append(run.Trace, StateIngested)
	log.Info("analysis started",
		zap.Int("job_chars", len([]rune(req.JobText))),
		zap.Int("experience_chars", len([]rune(req.ExperienceText))),
	)

	deps := Deps{Logger: log, Call: a.call(log), Strict: a.config.StrictValidation}

	status, err := a.apply(ctx, deps, a.competency, run)
	run.Steps = append(run.Steps, status)
	if err != nil {
		return fail(err)
	}
	run.Trace = append(run.Trace, a.competency.Done())

	statuses := a.runFollowups(ctx, deps, run)
	for i, step := range a.followups {
		run.Steps = append(run.Steps, statuses[i])
		run.Trace = append(run.Trace, step.Done())
	}

	run.Result.CreatedAt = now().UTC()
	run.Trace = append(run.Trace, StateComplete)

	if a.history != nil {
		run.Evicted = a.history.Insert(history.NewEntry(*run.Result))
	}

	log.Info("analysis complete",
		zap.Int("fit_score", run.Result.FitScore),
		zap.Bool("suggestions", run.Result.Suggestions != nil),
		zap.Bool("interview_questions", run.Result.InterviewQuestions != nil),
		zap.Int("history_evicted", run.Evicted),
	)
	return run, nil
}

func (a *Analyzer) runFollowups(ctx context.Context, deps Deps, run *Run) []StepStatus {
	statuses := make([]StepStatus, len(a.followups))

	if !a.config.ParallelFollowups {
		for i, step := range a.followups {
			statuses[i], _ = a.apply(ctx, deps, step, run)
		}
		return statuses
	}

	// Each step fills its own partial result; merges are serialized.
	var mu sync.Mutex
	var g errgroup.Group
	for i, step := range a.followups {
		g.Go(func() error {
			partial := &Run{ID: run.ID, Request: run.Request, Result: &ai.FullAnalysisResult{}}
			statuses[i], _ = a.apply(ctx, deps, step, partial)

			mu.Lock()
			mergeFollowup(run.Result, partial.Result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}

func mergeFollowup(dst, src *ai.FullAnalysisResult) {
	if src.Suggestions != nil {
		dst.Suggestions = src.Suggestions
		dst.SuggestionBlocks = src.SuggestionBlocks
	}
	if src.InterviewQuestions != nil {
		dst.InterviewQuestions = src.InterviewQuestions
		dst.QuestionBlocks = src.QuestionBlocks
	}
}

// apply runs one step, logging its outcome. Non-fatal failures are logged
// as warnings and recorded in the status only.
func (a *Analyzer) apply(ctx context.Context, deps Deps, step Step, run *Run) (StepStatus, error) {
	started := time.Now()
	status, err := step.Apply(ctx, deps, run)
	status.Name = step.Name()
	status.Fatal = step.Fatal()
	status.Duration = time.Since(started)
	status.Err = err

	fields := []zap.Field{
		zap.String("name", step.Name()),
		zap.Int("attempts", status.Attempts),
		zap.Duration("duration", status.Duration),
	}
	switch {
	case err == nil:
		deps.Logger.Info("analysis step", fields...)
	case step.Fatal():
		deps.Logger.Error("analysis step failed", append(fields, zap.Error(err))...)
	default:
		deps.Logger.Warn("analysis step failed, continuing without it", append(fields, zap.Error(err))...)
	}
	return status, err
}

// call returns the gateway caller used by steps. Each attempt is bounded by
// CallTimeout; temporary failures are retried with exponential backoff.
func (a *Analyzer) call(log *zap.Logger) func(context.Context, string, ai.Request) (string, int, error) {
	return func(ctx context.Context, name string, req ai.Request) (string, int, error) {
		var lastErr error
		attempts := 0
		for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
			if attempt > 0 {
				delay := utils.Backoff(a.config.RetryBase, attempt, a.config.RetryLimit)
				log.Warn("retrying gateway call",
					zap.String("name", name),
					zap.Int("attempt", attempt+1),
					zap.Duration("delay", delay),
					zap.Error(lastErr),
				)
				if err := utils.WaitFor(ctx, delay); err != nil {
					return "", attempts, err
				}
			}

			attempts++
			callCtx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
			text, err := a.gateway.Call(callCtx, req)
			expired := callCtx.Err() != nil && ctx.Err() == nil
			cancel()
			if err == nil {
				return text, attempts, nil
			}

			if expired && !errors.Is(err, ai.ErrTimeout) {
				err = &ai.Error{Kind: ai.KindTimeout, Err: err}
			}
			lastErr = err
			if ctx.Err() != nil || !ai.IsTemporary(err) {
				break
			}
		}
		return "", attempts, lastErr
	}
}
