package ai

import "context"

// Mode selects how the generation service should shape its reply.
type Mode int

const (
	// ModePlain asks for free-form text.
	ModePlain Mode = iota
	// ModeJSON asks the service to constrain its output to one JSON document.
	// The reply is still opaque text to the caller.
	ModeJSON
)

func (m Mode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModeJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Request is a single call to the generation service.
type Request struct {
	Prompt string
	Mode   Mode
	// Image, when set, turns the call into a multimodal prompt+image request.
	Image []byte
	// ImageMIME overrides the sniffed content type of Image.
	ImageMIME string
}

// Gateway is the only path to the external generation capability. It performs
// no retries; failures are returned as *Error.
type Gateway interface {
	Call(ctx context.Context, req Request) (string, error)
}
