package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/jojun/internal/ai"
	"github.com/spigell/jojun/internal/history"
	"github.com/spigell/jojun/internal/prompts"
	"github.com/spigell/jojun/internal/validation"
)

const (
	jobText        = "Looking for a backend engineer skilled in databases and APIs."
	experienceText = "Built a REST API and optimized SQL queries."

	validCompetency = `{
  "categories": ["Databases", "API design", "Backend development", "Performance tuning", "Communication"],
  "job_scores": [90, 85, 80, 70, 60],
  "user_scores": [70, 80, 65, 75, 50],
  "fit_score": 74,
  "overall_comment": "Good backend match. Database depth is the main gap."
}`

	suggestionsReply = `[[SUGGESTION]]
Competency: Databases
Why: Query work is mentioned without numbers.
Example: Cut p95 query latency by 40% by adding composite indexes.
[[SUGGESTION]]
Competency: API design
Why: The REST API lacks scope.
Example: Designed a REST API serving 3 internal teams.
[[SUGGESTION]]
Competency: Communication
Why: Nothing covers collaboration.
Example: Documented API contracts for frontend developers.`

	questionsReply = `[[QUESTION]]
Focus: Strength - API design
Question: How did you version your REST API?
Intent: Checks API lifecycle experience.`
)

type reply struct {
	text string
	err  error
	// hang blocks until the call context is done
	hang bool
}

type fakeGateway struct {
	mu      sync.Mutex
	replies map[prompts.Task][]reply
	calls   map[prompts.Task]int
}

func newFakeGateway(replies map[prompts.Task][]reply) *fakeGateway {
	return &fakeGateway{replies: replies, calls: map[prompts.Task]int{}}
}

func taskOf(req ai.Request) prompts.Task {
	switch {
	case strings.Contains(req.Prompt, prompts.SuggestionFormat.Marker):
		return prompts.TaskSuggestions
	case strings.Contains(req.Prompt, prompts.QuestionFormat.Marker):
		return prompts.TaskQuestions
	default:
		return prompts.TaskCompetency
	}
}

func (f *fakeGateway) Call(ctx context.Context, req ai.Request) (string, error) {
	task := taskOf(req)

	f.mu.Lock()
	n := f.calls[task]
	f.calls[task]++
	script := f.replies[task]
	f.mu.Unlock()

	if len(script) == 0 {
		return "", &ai.Error{Kind: ai.KindFailure, Err: errors.New("unscripted call")}
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	r := script[n]

	if req.Mode != modeFor(task) {
		return "", errors.New("unexpected call mode " + req.Mode.String())
	}
	if r.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.text, r.err
}

func modeFor(task prompts.Task) ai.Mode {
	if task == prompts.TaskCompetency {
		return ai.ModeJSON
	}
	return ai.ModePlain
}

func (f *fakeGateway) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := 0
	for _, n := range f.calls {
		sum += n
	}
	return sum
}

func (f *fakeGateway) count(task prompts.Task) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[task]
}

func happyReplies() map[prompts.Task][]reply {
	return map[prompts.Task][]reply{
		prompts.TaskCompetency:  {{text: validCompetency}},
		prompts.TaskSuggestions: {{text: suggestionsReply}},
		prompts.TaskQuestions:   {{text: questionsReply}},
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBase = 0
	cfg.CallTimeout = 5 * time.Second
	return cfg
}

var fullTrace = []State{
	StateStart,
	StateIngested,
	StateCompetencyDone,
	StateSuggestionsAttempted,
	StateQuestionsAttempted,
	StateComplete,
}

func TestAnalyzeComplete(t *testing.T) {
	for _, parallel := range []bool{true, false} {
		gw := newFakeGateway(happyReplies())
		store := history.NewStore(5)
		cfg := testConfig()
		cfg.ParallelFollowups = parallel

		run, err := New(gw, store, cfg, nil).Analyze(context.Background(), Request{JobText: jobText, ExperienceText: experienceText})
		require.NoError(t, err)

		assert.Equal(t, fullTrace, run.Trace)
		assert.Equal(t, StateComplete, run.State())

		res := run.Result
		require.NotNil(t, res)
		assert.Equal(t, run.ID, res.RunID)
		assert.GreaterOrEqual(t, res.FitScore, 1)
		assert.LessOrEqual(t, res.FitScore, 100)
		assert.Len(t, res.Categories, 5)
		assert.False(t, res.CreatedAt.IsZero())

		require.NotNil(t, res.Suggestions)
		assert.Len(t, res.SuggestionBlocks, 3)
		assert.Equal(t, "Databases", res.SuggestionBlocks[0].Value("Competency"))
		require.NotNil(t, res.InterviewQuestions)
		assert.Len(t, res.QuestionBlocks, 1)

		require.Equal(t, 1, store.Len())
		entry, err := store.Get(0)
		require.NoError(t, err)
		assert.Equal(t, "Databases", entry.Title)
		assert.Equal(t, 74, entry.FitScore)

		assert.Equal(t, 3, gw.total())
		require.Len(t, run.Steps, 3)
		assert.Equal(t, []string{"competency", "suggestions", "questions"},
			[]string{run.Steps[0].Name, run.Steps[1].Name, run.Steps[2].Name})
	}
}

func TestAnalyzeEmptyInputMakesNoCalls(t *testing.T) {
	for _, req := range []Request{
		{JobText: jobText, ExperienceText: ""},
		{JobText: " \n\t", ExperienceText: experienceText},
	} {
		gw := newFakeGateway(happyReplies())
		store := history.NewStore(5)

		run, err := New(gw, store, testConfig(), nil).Analyze(context.Background(), req)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmptyInput)

		var runErr *Error
		require.True(t, errors.As(err, &runErr))
		assert.Equal(t, StateStart, runErr.State)
		assert.Contains(t, runErr.UserMessage(), "need some text")

		assert.Equal(t, []State{StateStart, StateFailed}, run.Trace)
		assert.Zero(t, gw.total())
		assert.Zero(t, store.Len())
	}
}

func TestAnalyzeIncompleteCompetencyIsFatal(t *testing.T) {
	replies := happyReplies()
	replies[prompts.TaskCompetency] = []reply{{text: `{"categories":["Databases","APIs","Go","SQL","Teamwork"]}`}}
	gw := newFakeGateway(replies)
	store := history.NewStore(5)

	run, err := New(gw, store, testConfig(), nil).Analyze(context.Background(), Request{JobText: jobText, ExperienceText: experienceText})

	var incomplete *validation.IncompleteResponseError
	require.True(t, errors.As(err, &incomplete), "got %v", err)
	assert.Equal(t, []string{"job_scores", "user_scores", "fit_score", "overall_comment"}, incomplete.Missing)

	var runErr *Error
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, StateIngested, runErr.State)
	assert.NotContains(t, runErr.UserMessage(), "job_scores")

	assert.Equal(t, []State{StateStart, StateIngested, StateFailed}, run.Trace)
	assert.Zero(t, store.Len())
	assert.Equal(t, 0, gw.count(prompts.TaskSuggestions))
	assert.Equal(t, 0, gw.count(prompts.TaskQuestions))
}

func TestAnalyzeSuggestionFailureIsNotFatal(t *testing.T) {
	for _, parallel := range []bool{true, false} {
		replies := happyReplies()
		replies[prompts.TaskSuggestions] = []reply{{err: &ai.Error{Kind: ai.KindFailure, Err: errors.New("quota exceeded")}}}
		gw := newFakeGateway(replies)
		store := history.NewStore(5)

		core, logs := observer.New(zapcore.WarnLevel)
		cfg := testConfig()
		cfg.ParallelFollowups = parallel

		run, err := New(gw, store, cfg, zap.New(core)).Analyze(context.Background(), Request{JobText: jobText, ExperienceText: experienceText})
		require.NoError(t, err)

		assert.Equal(t, fullTrace, run.Trace)
		assert.Nil(t, run.Result.Suggestions)
		assert.Empty(t, run.Result.SuggestionBlocks)
		require.NotNil(t, run.Result.InterviewQuestions)
		assert.Equal(t, 1, gw.count(prompts.TaskQuestions))
		assert.Equal(t, 1, store.Len())

		assert.ErrorIs(t, run.Steps[1].Err, ai.ErrFailure)
		assert.Equal(t, 1, logs.FilterMessage("analysis step failed, continuing without it").Len())
	}
}

func TestAnalyzeRetriesTemporaryFailures(t *testing.T) {
	replies := happyReplies()
	replies[prompts.TaskCompetency] = []reply{
		{err: &ai.Error{Kind: ai.KindFailure, Temporary: true, Code: 503, Err: errors.New("overloaded")}},
		{text: validCompetency},
	}
	gw := newFakeGateway(replies)

	run, err := New(gw, nil, testConfig(), nil).Analyze(context.Background(), Request{JobText: jobText, ExperienceText: experienceText})
	require.NoError(t, err)
	assert.Equal(t, 2, gw.count(prompts.TaskCompetency))
	assert.Equal(t, 2, run.Steps[0].Attempts)
}

func TestAnalyzeDoesNotRetryPermanentFailures(t *testing.T) {
	replies := happyReplies()
	replies[prompts.TaskCompetency] = []reply{
		{err: &ai.Error{Kind: ai.KindUnavailable, Code: 401, Err: errors.New("bad key")}},
		{text: validCompetency},
	}
	gw := newFakeGateway(replies)
	cfg := testConfig()
	cfg.MaxRetries = 3

	_, err := New(gw, nil, cfg, nil).Analyze(context.Background(), Request{JobText: jobText, ExperienceText: experienceText})
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrUnavailable)
	assert.Equal(t, 1, gw.count(prompts.TaskCompetency))

	var runErr *Error
	require.True(t, errors.As(err, &runErr))
	assert.Contains(t, runErr.UserMessage(), "not available")
}

func TestAnalyzeTimeout(t *testing.T) {
	replies := happyReplies()
	replies[prompts.TaskCompetency] = []reply{{hang: true}}
	gw := newFakeGateway(replies)
	cfg := testConfig()
	cfg.CallTimeout = 20 * time.Millisecond

	run, err := New(gw, nil, cfg, nil).Analyze(context.Background(), Request{JobText: jobText, ExperienceText: experienceText})
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrTimeout)
	assert.Equal(t, StateFailed, run.State())

	var runErr *Error
	require.True(t, errors.As(err, &runErr))
	assert.Contains(t, runErr.UserMessage(), "too long")
}

func TestAnalyzeFollowupTimeoutIsNotFatal(t *testing.T) {
	replies := happyReplies()
	replies[prompts.TaskQuestions] = []reply{{hang: true}}
	gw := newFakeGateway(replies)
	cfg := testConfig()
	cfg.CallTimeout = 50 * time.Millisecond

	run, err := New(gw, nil, cfg, nil).Analyze(context.Background(), Request{JobText: jobText, ExperienceText: experienceText})
	require.NoError(t, err)
	assert.NotNil(t, run.Result.Suggestions)
	assert.Nil(t, run.Result.InterviewQuestions)
	assert.ErrorIs(t, run.Steps[2].Err, ai.ErrTimeout)
}

func TestAnalyzeStrictValidation(t *testing.T) {
	replies := happyReplies()
	replies[prompts.TaskCompetency] = []reply{{text: `{"categories":["A","B","C","D","E"],"job_scores":[1,2,3,4,5],"user_scores":[1,2,3,4,500],"fit_score":0,"overall_comment":"x"}`}}

	run, err := New(newFakeGateway(replies), nil, testConfig(), nil).Analyze(context.Background(), Request{JobText: jobText, ExperienceText: experienceText})
	require.NoError(t, err)
	assert.Len(t, run.Result.Warnings, 2)

	cfg := testConfig()
	cfg.StrictValidation = true
	_, err = New(newFakeGateway(replies), nil, cfg, nil).Analyze(context.Background(), Request{JobText: jobText, ExperienceText: experienceText})
	var inconsistent *validation.InconsistentResponseError
	assert.True(t, errors.As(err, &inconsistent), "got %v", err)
}

func TestAnalyzeWithoutGateway(t *testing.T) {
	run, err := New(nil, nil, testConfig(), nil).Analyze(context.Background(), Request{JobText: jobText, ExperienceText: experienceText})
	assert.ErrorIs(t, err, ai.ErrUnavailable)
	assert.Equal(t, []State{StateStart, StateFailed}, run.Trace)
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	replies := happyReplies()
	replies[prompts.TaskCompetency] = []reply{{hang: true}}

	_, err := New(newFakeGateway(replies), nil, testConfig(), nil).Analyze(ctx, Request{JobText: jobText, ExperienceText: experienceText})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ai.ErrTimeout)
}
