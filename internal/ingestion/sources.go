package ingestion

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Fetcher returns the readable text of a web page.
type Fetcher interface {
	Text(ctx context.Context, url string) (string, error)
}

// Sources is everything a user supplied for one side of the analysis.
type Sources struct {
	// Text is typed or pasted text, used verbatim.
	Text string
	// URL is a page whose body text is treated as already normalized.
	URL string
	// Images are pasted images; they are transcribed like uploaded images.
	Images [][]byte
	Files  []RawInput
}

// Collector composes Sources into one normalized text.
type Collector struct {
	dispatcher *Dispatcher
	fetcher    Fetcher
	logger     *zap.Logger
}

func NewCollector(dispatcher *Dispatcher, fetcher Fetcher, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{dispatcher: dispatcher, fetcher: fetcher, logger: logger}
}

// Collect joins, in this order and separated by newlines: the manual text, the
// fetched URL text, the pasted image texts, then the file texts.
func (c *Collector) Collect(ctx context.Context, src Sources, progress ProgressFunc) (*Result, error) {
	parts := make([]string, 0, 3)
	outcomes := make([]Outcome, 0, len(src.Images)+len(src.Files)+1)

	if strings.TrimSpace(src.Text) != "" {
		parts = append(parts, src.Text)
	}

	if url := strings.TrimSpace(src.URL); url != "" {
		outcome := Outcome{Name: url, Kind: KindText}
		text, err := c.fetch(ctx, url)
		if err != nil {
			outcome.Status = StatusFailed
			outcome.Reason = err.Error()
			c.logger.Warn("fetching page failed", zap.String("url", url), zap.Error(err))
		} else {
			outcome.Chars = len([]rune(text))
			parts = append(parts, text)
		}
		outcomes = append(outcomes, outcome)
	}

	inputs := make([]RawInput, 0, len(src.Images)+len(src.Files))
	for i, img := range src.Images {
		inputs = append(inputs, RawInput{Name: fmt.Sprintf("pasted-image-%d", i+1), Bytes: img, Kind: KindImage})
	}
	inputs = append(inputs, src.Files...)

	if len(inputs) > 0 {
		batch, err := c.dispatcher.Ingest(ctx, inputs, progress)
		if batch != nil {
			if batch.Text != "" {
				parts = append(parts, batch.Text)
			}
			outcomes = append(outcomes, batch.Outcomes...)
		}
		if err != nil {
			return &Result{Text: strings.Join(parts, "\n"), Outcomes: outcomes}, err
		}
	}

	return &Result{Text: strings.Join(parts, "\n"), Outcomes: outcomes}, nil
}

func (c *Collector) fetch(ctx context.Context, url string) (string, error) {
	if c.fetcher == nil {
		return "", fmt.Errorf("no page fetcher configured")
	}
	return c.fetcher.Text(ctx, url)
}
