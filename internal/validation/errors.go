package validation

import (
	"fmt"
	"strings"
)

// MalformedResponseError means the reply is not a usable JSON object.
type MalformedResponseError struct {
	Message string
	Cause   error
}

func (e *MalformedResponseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("malformed response: %s", e.Message)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Cause
}

// IncompleteResponseError names the required keys absent from the reply.
type IncompleteResponseError struct {
	Missing []string
}

func (e *IncompleteResponseError) Error() string {
	return fmt.Sprintf("incomplete response: missing %s", strings.Join(e.Missing, ", "))
}

// InconsistentResponseError lists range and length problems. It is only
// returned in strict mode.
type InconsistentResponseError struct {
	Problems []string
}

func (e *InconsistentResponseError) Error() string {
	return fmt.Sprintf("inconsistent response: %s", strings.Join(e.Problems, "; "))
}
