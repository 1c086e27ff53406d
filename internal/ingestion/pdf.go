package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts text page by page. A page without text contributes an
// empty segment.
type PDFExtractor struct{}

func (PDFExtractor) Extract(_ context.Context, in RawInput) (text string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: pdf parser: %v", ErrUnsupportedDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(in.Bytes), int64(len(in.Bytes)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %w", ErrUnsupportedDocument, err)
	}

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for pageIndex := 1; pageIndex <= total; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		// Every text object starts on a new line.
		pages = append(pages, strings.Trim(pageText, "\n"))
	}

	return strings.Join(pages, "\n"), nil
}
