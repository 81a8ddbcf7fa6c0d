// Package gemini implements [analyst.Provider] for the Google Gemini API.
// It uses plain non-streaming generation: the orchestration loop consumes
// complete responses only.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/fwojciec/analyst"
)

// Interface compliance check.
var _ analyst.Provider = (*Client)(nil)

const defaultModel = "gemini-2.5-flash"

// Client implements [analyst.Provider] for the Google Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the default model ID.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// New creates a new Gemini [Client] with the given API key and options.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	c := &Client{client: gc, model: defaultModel}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Chat sends the conversation to the Gemini API and returns the complete
// response text. FormatJSON constrains the response MIME type to JSON.
func (c *Client) Chat(ctx context.Context, req analyst.Request) (analyst.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, ConvertMessages(req.Messages), buildConfig(req))
	if err != nil {
		return analyst.Response{}, fmt.Errorf("gemini: %w", err)
	}
	return analyst.Response{Content: resp.Text()}, nil
}

func buildConfig(req analyst.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.Format == analyst.FormatJSON {
		config.ResponseMIMEType = "application/json"
	}
	return config
}

// ConvertMessages converts analyst Messages to genai Contents.
// Exported for testing.
func ConvertMessages(msgs []analyst.Message) []*genai.Content {
	var result []*genai.Content
	for _, msg := range msgs {
		role := "user"
		if msg.Role == analyst.RoleAssistant {
			role = "model"
		}
		result = append(result, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return result
}
