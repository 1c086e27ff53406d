package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spigell/jojun/internal/ai"
	"github.com/spigell/jojun/internal/logger"
	"github.com/spigell/jojun/internal/utils"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	Provider = "gemini"

	defaultModel        = "gemini-2.5-flash"
	defaultMaxLogLength = 200
	jsonMIMEType        = "application/json"
	fallbackImageMIME   = "image/png"

	// Quota errors asking to wait longer than this are not worth retrying.
	maxQuotaRetryDelay = 20 * time.Second
)

var retryDelayPattern = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)

type modelClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Options tunes the gateway. Zero values select defaults.
type Options struct {
	Model        string
	Temperature  *float32
	MaxLogLength int
}

// Gateway implements ai.Gateway on top of the Google GenAI client.
type Gateway struct {
	models      modelClient
	model       string
	temperature *float32
	maxLogLen   int
	logger      *zap.Logger
}

// NewGateway creates a Gateway configured for the Gemini API backend.
func NewGateway(ctx context.Context, apiKey string, opts Options, log *zap.Logger) (*Gateway, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, &ai.Error{Kind: ai.KindUnavailable, Err: errors.New("gemini api key is required")}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &ai.Error{Kind: ai.KindUnavailable, Err: fmt.Errorf("create genai client: %w", err)}
	}

	return newGateway(client.Models, opts, log), nil
}

func newGateway(models modelClient, opts Options, log *zap.Logger) *Gateway {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	maxLogLen := opts.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Gateway{
		models:      models,
		model:       model,
		temperature: opts.Temperature,
		maxLogLen:   maxLogLen,
		logger:      logger.WithCommonFields(log, Provider, model),
	}
}

// Model returns the model identifier used for every call.
func (g *Gateway) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// Call sends one request and returns the concatenated text of the reply.
func (g *Gateway) Call(ctx context.Context, req ai.Request) (string, error) {
	if g == nil || g.models == nil {
		return "", &ai.Error{Kind: ai.KindUnavailable, Err: errors.New("gemini gateway is not initialized")}
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", &ai.Error{Kind: ai.KindFailure, Err: errors.New("prompt must not be empty")}
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if len(req.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Image, imageMIME(req)))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{Temperature: g.temperature}
	if req.Mode == ai.ModeJSON {
		cfg.ResponseMIMEType = jsonMIMEType
	}

	g.logger.Debug("gemini generate content request",
		zap.Stringer("mode", req.Mode),
		zap.Bool("with_image", len(req.Image) > 0),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLen)),
	)

	resp, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", classify(ctx, err)
	}

	output := responseText(resp)
	if output == "" {
		return "", &ai.Error{Kind: ai.KindFailure, Err: errors.New("gemini api returned empty response")}
	}

	g.logger.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(output)),
		zap.String("response_preview", utils.TruncateForLog(output, g.maxLogLen)),
	)

	return output, nil
}

func imageMIME(req ai.Request) string {
	if mime := strings.TrimSpace(req.ImageMIME); mime != "" {
		return mime
	}
	mime := http.DetectContentType(req.Image)
	if strings.HasPrefix(mime, "image/") {
		return mime
	}
	return fallbackImageMIME
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}

// classify maps transport and API errors onto ai.Error kinds.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ai.Error{Kind: ai.KindTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &ai.Error{Kind: ai.KindFailure, Err: err}
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		// Transport level problems: worth another try.
		return &ai.Error{Kind: ai.KindFailure, Temporary: true, Err: fmt.Errorf("generate content: %w", err)}
	}

	gwErr := &ai.Error{Kind: ai.KindFailure, Code: apiErr.Code, Err: fmt.Errorf("generate content: %w", err)}
	switch {
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		gwErr.Kind = ai.KindUnavailable
	case apiErr.Code == http.StatusTooManyRequests:
		delay, known := quotaRetryDelay(apiErr.Message)
		gwErr.Temporary = !known || delay <= maxQuotaRetryDelay
	case apiErr.Code >= http.StatusInternalServerError:
		gwErr.Temporary = true
	}
	return gwErr
}

func asAPIError(err error) (genai.APIError, bool) {
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	var val genai.APIError
	if errors.As(err, &val) {
		return val, true
	}
	return genai.APIError{}, false
}

func quotaRetryDelay(message string) (time.Duration, bool) {
	m := retryDelayPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}
