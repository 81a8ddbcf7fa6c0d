package analyst

import (
	"context"
	"fmt"
	"time"
)

// DefaultSchema describes the transactions table for the planning pass. A
// full deployment would fetch this from the tool server's schema resource;
// embedding it statically is a deliberate simplification.
const DefaultSchema = `Table: transactions
Columns:
- id (text): Unique transaction ID (e.g., tx_123)
- amount_cents (integer): Amount in lowest currency unit (e.g., 100 = 1.00)
- currency (text): USD, EUR, GBP
- status (text): succeeded, failed, pending, refunded
- payment_method (text): card, paypal, sofort, ideal
- country_code (text): 2-letter ISO code (US, DE, FR)
- created_at (datetime): Timestamp of transaction`

const formatSystemPrompt = "You are a helpful data analyst. Format the " +
	"database results clearly and answer the user's question in 1-2 " +
	"sentences. No markdown, just plain text."

func planSystemPrompt(schema string) string {
	return fmt.Sprintf(`You are a helpful data analyst. You have access to a local SQLite database.
Here is the schema:
%s

RULES:
1. To answer the user, you must generate a SQL query.
2. Output ONLY a JSON object with the tool call. Do not output chat text yet.
3. The format must be: { "tool": "query_database", "sql": "SELECT..." }
4. Always convert cents to main currency units in your final answer, but use cents in SQL.
5. For date queries, use SQLite syntax: date('now', '-1 day'), date('now', '-30 days'), etc.
6. Use only ASCII operators: >= (not ≥), <= (not ≤), = (not ==)
7. Do NOT include any markdown, code blocks, or explanations. Only JSON.`, schema)
}

// Loop orchestrates one question turn between a Provider and an Invoker:
// a planning model call constrained to a JSON directive, a single tool
// invocation through the bridge, and a formatting model call that turns the
// raw result into plain language. The three stages are sequential and
// blocking because each stage's input depends on the prior stage's output.
type Loop struct {
	provider Provider
	invoker  Invoker
	schema   string
	model    string
}

// NewLoop creates a new Loop with the given provider and invoker.
func NewLoop(provider Provider, invoker Invoker, opts ...LoopOption) *Loop {
	l := &Loop{provider: provider, invoker: invoker, schema: DefaultSchema}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LoopOption configures a Loop at construction.
type LoopOption func(*Loop)

// WithModel sets the model ID for provider requests. Empty string means the
// provider uses its default model.
func WithModel(model string) LoopOption {
	return func(l *Loop) { l.model = model }
}

// WithSchema replaces the embedded schema text used in the planning prompt.
func WithSchema(schema string) LoopOption {
	return func(l *Loop) { l.schema = schema }
}

// RunOption configures a single Run invocation.
type RunOption func(*runConfig)

type runConfig struct {
	onEvent func(Event)
}

// WithEventHandler sets a callback that receives progress events during the
// run. If nil or not set, events are silently discarded.
func WithEventHandler(h func(Event)) RunOption {
	return func(c *runConfig) { c.onEvent = h }
}

// Run executes one turn: question in, final answer out. The question is
// appended to the session immediately; the assistant's answer is appended
// once the turn completes. Run returns an error only when the provider
// itself is unreachable — in that case the session keeps the user's
// question and nothing else, and no retry is attempted. Every failure below
// this layer arrives as text and is summarized like any other result.
func (l *Loop) Run(ctx context.Context, session *Session, question string, opts ...RunOption) (string, error) {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	history := append([]Message(nil), session.Messages...)
	session.Messages = append(session.Messages, Message{Role: RoleUser, Content: question})
	session.UpdatedAt = time.Now()

	// AwaitingPlan: constrain the model to a single structured directive.
	plan, err := l.provider.Chat(ctx, Request{
		Model:    l.model,
		System:   planSystemPrompt(l.schema),
		Messages: append(append([]Message(nil), history...), Message{Role: RoleUser, Content: question}),
		Format:   FormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("planning call: %w", err)
	}

	answer, err := l.answer(ctx, &cfg, history, question, plan.Content)
	if err != nil {
		return "", err
	}

	session.Messages = append(session.Messages, Message{Role: RoleAssistant, Content: answer})
	session.UpdatedAt = time.Now()
	return answer, nil
}

// answer resolves the planning output into a final answer: either the tool
// path (parse directive, invoke, format) or the fallback path where the raw
// planning text stands as the answer.
func (l *Loop) answer(ctx context.Context, cfg *runConfig, history []Message, question, plan string) (string, error) {
	d, ok := ParseDirective(plan)
	if !ok || d.Tool != ToolQueryDatabase {
		// NoDirective: unparsable output or an unknown tool name means the
		// model declined or clarified instead of calling the tool.
		return plan, nil
	}

	if cfg.onEvent != nil {
		cfg.onEvent(EventDirective{Directive: d})
	}

	// ExecutingTool: the bridge returns text whether the query succeeded or
	// surfaced an error. Both become context for the formatting pass; an
	// empty or missing SQL field is still sent and fails at the safety gate.
	result := l.invoker.Invoke(ctx, d.SQL)

	if cfg.onEvent != nil {
		cfg.onEvent(EventToolResult{Text: result})
	}

	// AwaitingFormat: second pass, plain-language summary of the raw result.
	format, err := l.provider.Chat(ctx, Request{
		Model:  l.model,
		System: formatSystemPrompt,
		Messages: append(append([]Message(nil), history...),
			Message{Role: RoleUser, Content: question},
			Message{Role: RoleUser, Content: "Database result: " + result},
		),
		Format: FormatText,
	})
	if err != nil {
		return "", fmt.Errorf("formatting call: %w", err)
	}
	return format.Content, nil
}
