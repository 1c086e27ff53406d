package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spigell/jojun/internal/ai"
	"github.com/spigell/jojun/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers     = 4
	DefaultMaxFileSize = 20 << 20
	DefaultOCRTimeout  = 90 * time.Second
)

// Status is the outcome class of one ingested input.
type Status int

const (
	StatusOK Status = iota
	// StatusWarning means the input contributed no text but is not an error.
	StatusWarning
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	default:
		return "failed"
	}
}

// Outcome reports what happened to one input.
type Outcome struct {
	Name   string
	Kind   Kind
	Status Status
	Reason string
	Chars  int
}

// Result is the normalized text of a batch plus its per-input outcomes in
// input order.
type Result struct {
	Text     string
	Outcomes []Outcome
}

// Problems returns the outcomes that were not StatusOK.
func (r *Result) Problems() []Outcome {
	var problems []Outcome
	for _, o := range r.Outcomes {
		if o.Status != StatusOK {
			problems = append(problems, o)
		}
	}
	return problems
}

// Progress is reported once per processed input.
type Progress struct {
	Done  int
	Total int
	Name  string
}

// Fraction is the share of inputs processed so far.
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Done) / float64(p.Total)
}

// ProgressFunc receives progress updates. Calls never overlap.
type ProgressFunc func(Progress)

// Config tunes the dispatcher. Zero values select defaults.
type Config struct {
	Workers     int
	MaxFileSize int64
	// OCRTimeout bounds each image transcription call.
	OCRTimeout time.Duration
}

// Dispatcher routes inputs to the extractor registered for their kind.
type Dispatcher struct {
	extractors  map[Kind]Extractor
	workers     int
	maxFileSize int64
	logger      *zap.Logger
}

// NewDispatcher registers the default extractors. vision may be nil, in which
// case images produce warnings instead of text.
func NewDispatcher(cfg Config, vision ai.Gateway, log *zap.Logger) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	ocrTimeout := cfg.OCRTimeout
	if ocrTimeout <= 0 {
		ocrTimeout = DefaultOCRTimeout
	}

	return &Dispatcher{
		extractors: map[Kind]Extractor{
			KindText:   TextExtractor{},
			KindPDF:    PDFExtractor{},
			KindSlides: SlidesExtractor{},
			KindImage:  ImageExtractor{Gateway: vision, Timeout: ocrTimeout},
		},
		workers:     workers,
		maxFileSize: maxSize,
		logger:      logger.WithFields(log),
	}
}

// Register replaces the extractor used for kind.
func (d *Dispatcher) Register(kind Kind, e Extractor) {
	d.extractors[kind] = e
}

// Ingest extracts every input and concatenates the successful results in
// input order, separated by newlines. A failing input is recorded in the
// outcomes and never aborts the batch; only cancellation of ctx is returned
// as an error.
func (d *Dispatcher) Ingest(ctx context.Context, files []RawInput, progress ProgressFunc) (*Result, error) {
	texts := make([]string, len(files))
	outcomes := make([]Outcome, len(files))

	var (
		mu   sync.Mutex
		done int
	)
	report := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if progress != nil {
			progress(Progress{Done: done, Total: len(files), Name: name})
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(d.workers)

	for i, in := range files {
		g.Go(func() error {
			defer report(in.Name)
			texts[i], outcomes[i] = d.extract(ctx, in)
			return nil
		})
	}
	_ = g.Wait()

	parts := make([]string, 0, len(files))
	for i, o := range outcomes {
		if o.Status == StatusOK && texts[i] != "" {
			parts = append(parts, texts[i])
		}
	}

	result := &Result{Text: strings.Join(parts, "\n"), Outcomes: outcomes}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (d *Dispatcher) extract(ctx context.Context, in RawInput) (string, Outcome) {
	outcome := Outcome{Name: in.Name, Kind: in.Kind}
	log := d.logger.With(zap.String(logger.FieldFile, in.Name), zap.Stringer(logger.FieldKind, in.Kind))

	text, err := d.run(ctx, in)
	switch {
	case errors.Is(err, ErrNoText):
		outcome.Status = StatusWarning
		outcome.Reason = ErrNoText.Error()
		log.Warn("no text extracted from file", zap.Error(err))
		return "", outcome
	case err != nil:
		outcome.Status = StatusFailed
		outcome.Reason = err.Error()
		log.Warn("file extraction failed", zap.Error(err))
		return "", outcome
	}

	outcome.Status = StatusOK
	outcome.Chars = len([]rune(text))
	log.Info("file extracted", zap.Int("chars", outcome.Chars))
	return text, outcome
}

func (d *Dispatcher) run(ctx context.Context, in RawInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if int64(len(in.Bytes)) > d.maxFileSize {
		return "", fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrUnsupportedDocument, len(in.Bytes), d.maxFileSize)
	}

	extractor, ok := d.extractors[in.Kind]
	if !ok {
		extractor = d.extractors[KindText]
	}

	return extractor.Extract(ctx, in)
}
