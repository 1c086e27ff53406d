package ingestion

import (
	"context"
	"errors"
)

var (
	// ErrUnsupportedDocument means the bytes could not be parsed by the
	// extractor selected for their kind.
	ErrUnsupportedDocument = errors.New("unsupported or corrupt document")
	// ErrNoText means extraction ran but produced nothing usable. It is
	// reported as a warning, not a failure.
	ErrNoText = errors.New("no text found")
)

// Extractor turns the bytes of one input into UTF-8 text. Implementations must
// not keep state between calls.
type Extractor interface {
	Extract(ctx context.Context, in RawInput) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, in RawInput) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, in RawInput) (string, error) {
	return f(ctx, in)
}
