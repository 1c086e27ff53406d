package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/spigell/jojun/internal/ai"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type modelCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

type fakeModels struct {
	mu    sync.Mutex
	calls []modelCall
	resp  *genai.GenerateContentResponse
	err   error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, modelCall{model: model, contents: contents, config: config})
	return f.resp, f.err
}

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, 0, len(texts))
	for _, text := range texts {
		parts = append(parts, &genai.Part{Text: text})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func TestGatewayPlainCall(t *testing.T) {
	models := &fakeModels{resp: textResponse(" first ", "", "second")}
	g := newGateway(models, Options{}, zap.NewNop())

	out, err := g.Call(context.Background(), ai.Request{Prompt: "hello", Mode: ai.ModePlain})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "first\nsecond" {
		t.Fatalf("unexpected output %q", out)
	}

	if len(models.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(models.calls))
	}
	call := models.calls[0]
	if call.model != defaultModel {
		t.Fatalf("expected default model, got %q", call.model)
	}
	if call.config.ResponseMIMEType != "" {
		t.Fatalf("plain mode must not request json, got %q", call.config.ResponseMIMEType)
	}
	if len(call.contents) != 1 || len(call.contents[0].Parts) != 1 {
		t.Fatalf("expected a single text part: %+v", call.contents)
	}
}

func TestGatewayJSONModeAndImage(t *testing.T) {
	models := &fakeModels{resp: textResponse(`{"ok":true}`)}
	g := newGateway(models, Options{Model: "gemini-pro"}, zap.NewNop())

	png := []byte("\x89PNG\r\n\x1a\n0000")
	if _, err := g.Call(context.Background(), ai.Request{Prompt: "read", Mode: ai.ModeJSON, Image: png}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := models.calls[0]
	if call.model != "gemini-pro" {
		t.Fatalf("unexpected model %q", call.model)
	}
	if call.config.ResponseMIMEType != jsonMIMEType {
		t.Fatalf("expected json mime type, got %q", call.config.ResponseMIMEType)
	}
	parts := call.contents[0].Parts
	if len(parts) != 2 {
		t.Fatalf("expected text and image parts, got %d", len(parts))
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MIMEType != "image/png" {
		t.Fatalf("expected inline png data, got %+v", parts[1].InlineData)
	}
}

func TestGatewayEmptyResponse(t *testing.T) {
	g := newGateway(&fakeModels{resp: textResponse("   ")}, Options{}, zap.NewNop())

	_, err := g.Call(context.Background(), ai.Request{Prompt: "hello"})
	if !errors.Is(err, ai.ErrFailure) {
		t.Fatalf("expected gateway failure, got %v", err)
	}
}

func TestGatewayRejectsEmptyPrompt(t *testing.T) {
	models := &fakeModels{resp: textResponse("x")}
	g := newGateway(models, Options{}, zap.NewNop())

	if _, err := g.Call(context.Background(), ai.Request{Prompt: "  "}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
	if len(models.calls) != 0 {
		t.Fatalf("no call expected, got %d", len(models.calls))
	}
}

func TestNilGatewayIsUnavailable(t *testing.T) {
	var g *Gateway
	if _, err := g.Call(context.Background(), ai.Request{Prompt: "x"}); !errors.Is(err, ai.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		kind      error
		temporary bool
	}{
		{name: "deadline", err: context.DeadlineExceeded, kind: ai.ErrTimeout},
		{name: "auth", err: genai.APIError{Code: http.StatusUnauthorized, Status: "UNAUTHENTICATED"}, kind: ai.ErrUnavailable},
		{name: "forbidden pointer", err: &genai.APIError{Code: http.StatusForbidden}, kind: ai.ErrUnavailable},
		{name: "server", err: genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}, kind: ai.ErrFailure, temporary: true},
		{name: "bad request", err: genai.APIError{Code: http.StatusBadRequest}, kind: ai.ErrFailure},
		{name: "short quota", err: genai.APIError{Code: http.StatusTooManyRequests, Message: "retry in 2s"}, kind: ai.ErrFailure, temporary: true},
		{name: "long quota", err: genai.APIError{Code: http.StatusTooManyRequests, Message: "quota exhausted, retry after 60 seconds"}, kind: ai.ErrFailure},
		{name: "transport", err: errors.New("connection reset"), kind: ai.ErrFailure, temporary: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(context.Background(), tc.err)
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if got := ai.IsTemporary(err); got != tc.temporary {
				t.Fatalf("temporary = %v, want %v", got, tc.temporary)
			}
		})
	}
}

func TestGatewaySurfacesTypedFailure(t *testing.T) {
	models := &fakeModels{err: genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}}
	g := newGateway(models, Options{}, zap.NewNop())

	_, err := g.Call(context.Background(), ai.Request{Prompt: "x"})
	var gwErr *ai.Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *ai.Error, got %T", err)
	}
	if gwErr.Code != http.StatusServiceUnavailable || !gwErr.Temporary {
		t.Fatalf("unexpected classification: %+v", gwErr)
	}
	if len(models.calls) != 1 {
		t.Fatalf("gateway must not retry, got %d calls", len(models.calls))
	}
}
