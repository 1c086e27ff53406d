package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/jojun/internal/ai"
	"github.com/spigell/jojun/internal/prompts"
)

// ImageExtractor transcribes visible text through the vision capability.
// Any failure, including a missing gateway or an expired Timeout, surfaces as
// ErrNoText.
type ImageExtractor struct {
	Gateway ai.Gateway
	// Timeout bounds a single transcription call. Zero means no bound.
	Timeout time.Duration
}

func (e ImageExtractor) Extract(ctx context.Context, in RawInput) (string, error) {
	if e.Gateway == nil {
		return "", fmt.Errorf("%w: vision capability is not configured", ErrNoText)
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	text, err := e.Gateway.Call(ctx, ai.Request{
		Prompt: prompts.OCR(),
		Mode:   ai.ModePlain,
		Image:  in.Bytes,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoText, err)
	}

	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}
