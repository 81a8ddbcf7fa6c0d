package analyst_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fwojciec/analyst"
	"github.com/fwojciec/analyst/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider returns a mock provider that answers the planning call
// with plan and the formatting call with answer, distinguishing the two by
// the requested response format.
func scriptedProvider(plan, answer string) *mock.Provider {
	return &mock.Provider{
		ChatFn: func(_ context.Context, req analyst.Request) (analyst.Response, error) {
			if req.Format == analyst.FormatJSON {
				return analyst.Response{Content: plan}, nil
			}
			return analyst.Response{Content: answer}, nil
		},
	}
}

func TestLoop_Run(t *testing.T) {
	t.Parallel()

	t.Run("directive triggers tool call and formatting pass", func(t *testing.T) {
		t.Parallel()

		provider := scriptedProvider(
			`{"tool": "query_database", "sql": "SELECT count(*) FROM transactions"}`,
			"There are 2000 transactions.",
		)

		var invokedSQL string
		invoker := &mock.Invoker{
			InvokeFn: func(_ context.Context, sql string) string {
				invokedSQL = sql
				return `[{"count(*)": 2000}]`
			},
		}

		session := &analyst.Session{}
		loop := analyst.NewLoop(provider, invoker)

		answer, err := loop.Run(context.Background(), session, "how many transactions?")
		require.NoError(t, err)
		assert.Equal(t, "There are 2000 transactions.", answer)
		assert.Equal(t, "SELECT count(*) FROM transactions", invokedSQL)

		require.Len(t, session.Messages, 2)
		assert.Equal(t, analyst.RoleUser, session.Messages[0].Role)
		assert.Equal(t, "how many transactions?", session.Messages[0].Content)
		assert.Equal(t, analyst.RoleAssistant, session.Messages[1].Role)
		assert.Equal(t, "There are 2000 transactions.", session.Messages[1].Content)
	})

	t.Run("prose from planning pass stands as the answer", func(t *testing.T) {
		t.Parallel()

		provider := scriptedProvider("Could you clarify which currency you mean?", "unused")
		invoker := &mock.Invoker{
			InvokeFn: func(_ context.Context, _ string) string {
				t.Fatal("invoker should not be called")
				return ""
			},
		}

		session := &analyst.Session{}
		loop := analyst.NewLoop(provider, invoker)

		answer, err := loop.Run(context.Background(), session, "what about revenue?")
		require.NoError(t, err)
		assert.Equal(t, "Could you clarify which currency you mean?", answer)

		require.Len(t, session.Messages, 2)
		assert.Equal(t, "Could you clarify which currency you mean?", session.Messages[1].Content)
	})

	t.Run("unknown tool name is treated as no directive", func(t *testing.T) {
		t.Parallel()

		plan := `{"tool": "delete_database", "sql": "DROP TABLE transactions"}`
		provider := scriptedProvider(plan, "unused")
		invoker := &mock.Invoker{
			InvokeFn: func(_ context.Context, _ string) string {
				t.Fatal("invoker should not be called")
				return ""
			},
		}

		session := &analyst.Session{}
		loop := analyst.NewLoop(provider, invoker)

		answer, err := loop.Run(context.Background(), session, "drop everything")
		require.NoError(t, err)
		assert.Equal(t, plan, answer)
	})

	t.Run("empty sql field is still sent to the tool", func(t *testing.T) {
		t.Parallel()

		provider := scriptedProvider(`{"tool": "query_database"}`, "The query was rejected.")

		called := false
		invoker := &mock.Invoker{
			InvokeFn: func(_ context.Context, sql string) string {
				called = true
				assert.Empty(t, sql)
				return "Error: For safety, this tool only allows SELECT queries."
			},
		}

		session := &analyst.Session{}
		loop := analyst.NewLoop(provider, invoker)

		_, err := loop.Run(context.Background(), session, "do something")
		require.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("tool error text flows into the formatting pass", func(t *testing.T) {
		t.Parallel()

		var formatMessages []analyst.Message
		provider := &mock.Provider{
			ChatFn: func(_ context.Context, req analyst.Request) (analyst.Response, error) {
				if req.Format == analyst.FormatJSON {
					return analyst.Response{Content: `{"tool": "query_database", "sql": "SELECT * FROM nope"}`}, nil
				}
				formatMessages = req.Messages
				return analyst.Response{Content: "That table does not exist."}, nil
			},
		}
		invoker := &mock.Invoker{
			InvokeFn: func(_ context.Context, _ string) string {
				return "SQL Error: no such table: nope"
			},
		}

		session := &analyst.Session{}
		loop := analyst.NewLoop(provider, invoker)

		answer, err := loop.Run(context.Background(), session, "query nope")
		require.NoError(t, err)
		assert.Equal(t, "That table does not exist.", answer)

		require.NotEmpty(t, formatMessages)
		last := formatMessages[len(formatMessages)-1]
		assert.Equal(t, "Database result: SQL Error: no such table: nope", last.Content)
	})

	t.Run("planning call failure aborts the turn", func(t *testing.T) {
		t.Parallel()

		providerErr := errors.New("connection refused")
		provider := &mock.Provider{
			ChatFn: func(_ context.Context, _ analyst.Request) (analyst.Response, error) {
				return analyst.Response{}, providerErr
			},
		}
		invoker := &mock.Invoker{
			InvokeFn: func(_ context.Context, _ string) string {
				t.Fatal("invoker should not be called")
				return ""
			},
		}

		session := &analyst.Session{}
		loop := analyst.NewLoop(provider, invoker)

		_, err := loop.Run(context.Background(), session, "hello")
		assert.ErrorIs(t, err, providerErr)

		// The question is kept, but no assistant message is recorded.
		require.Len(t, session.Messages, 1)
		assert.Equal(t, analyst.RoleUser, session.Messages[0].Role)
	})

	t.Run("formatting call failure aborts the turn", func(t *testing.T) {
		t.Parallel()

		providerErr := errors.New("connection reset")
		provider := &mock.Provider{
			ChatFn: func(_ context.Context, req analyst.Request) (analyst.Response, error) {
				if req.Format == analyst.FormatJSON {
					return analyst.Response{Content: `{"tool": "query_database", "sql": "SELECT 1"}`}, nil
				}
				return analyst.Response{}, providerErr
			},
		}
		invoker := &mock.Invoker{
			InvokeFn: func(_ context.Context, _ string) string { return "[]" },
		}

		session := &analyst.Session{}
		loop := analyst.NewLoop(provider, invoker)

		_, err := loop.Run(context.Background(), session, "hello")
		assert.ErrorIs(t, err, providerErr)
		require.Len(t, session.Messages, 1)
	})

	t.Run("event handler sees directive and tool result", func(t *testing.T) {
		t.Parallel()

		provider := scriptedProvider(
			`{"tool": "query_database", "sql": "SELECT 1"}`,
			"One.",
		)
		invoker := &mock.Invoker{
			InvokeFn: func(_ context.Context, _ string) string { return `[{"1": 1}]` },
		}

		var received []analyst.Event
		handler := func(e analyst.Event) { received = append(received, e) }

		session := &analyst.Session{}
		loop := analyst.NewLoop(provider, invoker)

		_, err := loop.Run(context.Background(), session, "one?", analyst.WithEventHandler(handler))
		require.NoError(t, err)

		require.Len(t, received, 2)
		ed, ok := received[0].(analyst.EventDirective)
		require.True(t, ok)
		assert.Equal(t, "SELECT 1", ed.Directive.SQL)
		er, ok := received[1].(analyst.EventToolResult)
		require.True(t, ok)
		assert.Equal(t, `[{"1": 1}]`, er.Text)
	})

	t.Run("no event handler is safe", func(t *testing.T) {
		t.Parallel()

		provider := scriptedProvider(`{"tool": "query_database", "sql": "SELECT 1"}`, "One.")
		invoker := &mock.Invoker{
			InvokeFn: func(_ context.Context, _ string) string { return "[]" },
		}

		session := &analyst.Session{}
		loop := analyst.NewLoop(provider, invoker)

		_, err := loop.Run(context.Background(), session, "one?")
		require.NoError(t, err)
	})

	t.Run("history is sent to both model calls", func(t *testing.T) {
		t.Parallel()

		var requests []analyst.Request
		provider := &mock.Provider{
			ChatFn: func(_ context.Context, req analyst.Request) (analyst.Response, error) {
				requests = append(requests, req)
				if req.Format == analyst.FormatJSON {
					return analyst.Response{Content: `{"tool": "query_database", "sql": "SELECT 1"}`}, nil
				}
				return analyst.Response{Content: "done"}, nil
			},
		}
		invoker := &mock.Invoker{
			InvokeFn: func(_ context.Context, _ string) string { return "[]" },
		}

		session := &analyst.Session{
			Messages: []analyst.Message{
				{Role: analyst.RoleUser, Content: "earlier question"},
				{Role: analyst.RoleAssistant, Content: "earlier answer"},
			},
		}
		loop := analyst.NewLoop(provider, invoker)

		_, err := loop.Run(context.Background(), session, "follow-up")
		require.NoError(t, err)

		require.Len(t, requests, 2)
		// Planning: history + new question.
		assert.Len(t, requests[0].Messages, 3)
		// Formatting: history + new question + tool result.
		assert.Len(t, requests[1].Messages, 4)
		assert.Equal(t, "earlier question", requests[1].Messages[0].Content)
	})

	t.Run("custom schema appears in the planning prompt", func(t *testing.T) {
		t.Parallel()

		var planSystem string
		provider := &mock.Provider{
			ChatFn: func(_ context.Context, req analyst.Request) (analyst.Response, error) {
				if req.Format == analyst.FormatJSON {
					planSystem = req.System
				}
				return analyst.Response{Content: "ok"}, nil
			},
		}
		invoker := &mock.Invoker{
			InvokeFn: func(_ context.Context, _ string) string { return "" },
		}

		loop := analyst.NewLoop(provider, invoker, analyst.WithSchema("Table: widgets"))

		_, err := loop.Run(context.Background(), &analyst.Session{}, "q")
		require.NoError(t, err)
		assert.True(t, strings.Contains(planSystem, "Table: widgets"))
	})

	t.Run("model option is forwarded in requests", func(t *testing.T) {
		t.Parallel()

		var models []string
		provider := &mock.Provider{
			ChatFn: func(_ context.Context, req analyst.Request) (analyst.Response, error) {
				models = append(models, req.Model)
				if req.Format == analyst.FormatJSON {
					return analyst.Response{Content: `{"tool": "query_database", "sql": "SELECT 1"}`}, nil
				}
				return analyst.Response{Content: "ok"}, nil
			},
		}
		invoker := &mock.Invoker{
			InvokeFn: func(_ context.Context, _ string) string { return "[]" },
		}

		loop := analyst.NewLoop(provider, invoker, analyst.WithModel("mistral:7b"))

		_, err := loop.Run(context.Background(), &analyst.Session{}, "q")
		require.NoError(t, err)
		assert.Equal(t, []string{"mistral:7b", "mistral:7b"}, models)
	})

	t.Run("context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		provider := &mock.Provider{
			ChatFn: func(ctx context.Context, _ analyst.Request) (analyst.Response, error) {
				return analyst.Response{}, ctx.Err()
			},
		}
		invoker := &mock.Invoker{
			InvokeFn: func(_ context.Context, _ string) string { return "" },
		}

		loop := analyst.NewLoop(provider, invoker)

		_, err := loop.Run(ctx, &analyst.Session{}, "q")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
