package analyst

import "context"

// Format selects the model's output mode for a request.
type Format int

const (
	// FormatText requests plain natural-language output.
	FormatText Format = iota
	// FormatJSON constrains the model to emit a single JSON object and
	// nothing else. The constraint is prompt-engineered and best-effort;
	// callers must keep a defensive parse-and-fallback path.
	FormatJSON
)

// Provider is a strategy pattern interface for LLM backends. Chat is
// synchronous and blocking: given ordered messages it returns the complete
// response text. No streaming or native function-calling capability is
// assumed.
type Provider interface {
	Chat(ctx context.Context, req Request) (Response, error)
}

// Request carries model selection, conversation context, and output mode.
// The provider uses its own defaults when fields are zero.
type Request struct {
	Model    string // model ID, provider-specific; empty = provider default
	System   string // system instruction; empty = none
	Messages []Message
	Format   Format
}

// Response is the model's complete reply.
type Response struct {
	Content string
}
