package ai

import (
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures.
type ErrorKind int

const (
	// KindFailure covers quota, network and server-side failures.
	KindFailure ErrorKind = iota
	// KindUnavailable means the capability cannot be reached at all, e.g. a
	// missing or rejected credential.
	KindUnavailable
	// KindTimeout means the call exceeded its time bound.
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "gateway unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "gateway failure"
	}
}

var (
	ErrFailure     = errors.New("gateway failure")
	ErrUnavailable = errors.New("gateway unavailable")
	ErrTimeout     = errors.New("gateway timeout")
)

// Error is the typed failure surfaced by a Gateway.
type Error struct {
	Kind ErrorKind
	// Temporary marks failures worth retrying after a delay.
	Temporary bool
	// Code is the upstream status code when one is known.
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels so callers can use errors.Is(err, ai.ErrTimeout).
func (e *Error) Is(target error) bool {
	switch target {
	case ErrFailure:
		return e.Kind == KindFailure
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

// IsTemporary reports whether err is a gateway failure worth retrying.
func IsTemporary(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Temporary
}
