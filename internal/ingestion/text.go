package ingestion

import (
	"context"
	"strings"
)

const byteOrderMark = "\ufeff"

// TextExtractor decodes bytes as UTF-8, dropping invalid sequences.
type TextExtractor struct{}

func (TextExtractor) Extract(_ context.Context, in RawInput) (string, error) {
	text := strings.ToValidUTF8(string(in.Bytes), "")
	return strings.TrimPrefix(text, byteOrderMark), nil
}
