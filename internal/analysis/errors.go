package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/jojun/internal/ai"
	"github.com/spigell/jojun/internal/validation"
)

var ErrEmptyInput = errors.New("job and experience text must both be non-empty")

// Error reports a failed run. Err carries the diagnostic cause for logs;
// UserMessage is safe to show to the end user.
type Error struct {
	RunID string
	// State is the last state reached before the failure.
	State State
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("analysis %s failed after %s: %v", e.RunID, e.State, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) UserMessage() string {
	var (
		malformed    *validation.MalformedResponseError
		incomplete   *validation.IncompleteResponseError
		inconsistent *validation.InconsistentResponseError
	)

	switch {
	case errors.Is(e.Err, ErrEmptyInput):
		return "Both the job posting and your experience need some text before an analysis can run."
	case errors.Is(e.Err, context.Canceled):
		return "The analysis was cancelled."
	case errors.Is(e.Err, ai.ErrUnavailable):
		return "The analysis service is not available. Check the API key configuration."
	case errors.Is(e.Err, ai.ErrTimeout):
		return "The analysis service took too long to answer. Please try again."
	case errors.Is(e.Err, ai.ErrFailure):
		return "The analysis service failed to answer. Please try again later."
	case errors.As(e.Err, &malformed), errors.As(e.Err, &incomplete), errors.As(e.Err, &inconsistent):
		return "The analysis service returned an unusable answer. Please try again."
	default:
		return "The analysis could not be completed."
	}
}
