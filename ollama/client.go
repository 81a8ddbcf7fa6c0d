// Package ollama implements [analyst.Provider] for a local Ollama server
// using its non-streaming chat endpoint.
package ollama

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/fwojciec/analyst"
)

// Interface compliance check.
var _ analyst.Provider = (*Client)(nil)

// DefaultHost is the Ollama endpoint used when none is configured.
const DefaultHost = "http://localhost:11434"

// DefaultModel is a small local model suited to SQL planning.
const DefaultModel = "mistral:7b"

// Client implements [analyst.Provider] for the Ollama chat API.
type Client struct {
	http  *resty.Client
	model string
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the default model ID.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// New creates an Ollama [Client] talking to host. No request timeout is set:
// a model call runs to completion or failure, and cancellation flows through
// the context passed to Chat.
func New(host string, opts ...Option) *Client {
	if host == "" {
		host = DefaultHost
	}
	c := &Client{
		http:  resty.New().SetBaseURL(host),
		model: DefaultModel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error"`
}

// Chat sends the conversation to Ollama and returns the complete response.
// FormatJSON requests Ollama's constrained JSON output mode, which improves
// (but does not guarantee) directive well-formedness.
func (c *Client) Chat(ctx context.Context, req analyst.Request) (analyst.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := chatRequest{Model: model, Messages: convertMessages(req)}
	if req.Format == analyst.FormatJSON {
		body.Format = "json"
	}

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		Post("/api/chat")
	if err != nil {
		return analyst.Response{}, fmt.Errorf("ollama: %w", err)
	}
	if resp.IsError() {
		return analyst.Response{}, fmt.Errorf("ollama: %s: %s", resp.Status(), resp.String())
	}
	if out.Error != "" {
		return analyst.Response{}, fmt.Errorf("ollama: %s", out.Error)
	}

	return analyst.Response{Content: out.Message.Content}, nil
}

// convertMessages flattens the system instruction and history into Ollama's
// message list.
func convertMessages(req analyst.Request) []chatMessage {
	msgs := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: string(analyst.RoleSystem), Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return msgs
}
