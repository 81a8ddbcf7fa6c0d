package server_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fwojciec/analyst/protocol"
	"github.com/fwojciec/analyst/server"
	"github.com/fwojciec/analyst/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// newServer seeds a fresh database with n rows and returns a server over it.
func newServer(t *testing.T, n int) *server.Server {
	t.Helper()

	path := filepath.Join(t.TempDir(), "payments.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.Seed(context.Background(), n)
	require.NoError(t, err)

	return server.New(st)
}

// exchange writes the standard (initialize, tools/call) request pair for sql
// and returns the decoded responses.
func exchange(t *testing.T, srv *server.Server, sql string) []protocol.Response {
	t.Helper()

	init, err := protocol.NewInitializeRequest(1, protocol.ClientInfo{Name: "test-host", Version: "1.0"})
	require.NoError(t, err)
	call, err := protocol.NewCallRequest(2, "query_database", sql)
	require.NoError(t, err)

	var input bytes.Buffer
	require.NoError(t, protocol.WriteRequests(&input, init, call))

	var output bytes.Buffer
	require.NoError(t, srv.Serve(context.Background(), &input, &output))

	responses, err := protocol.ReadResponses(&output)
	require.NoError(t, err)
	return responses
}

// callText extracts the tool's text payload from a tools/call response.
func callText(t *testing.T, resp protocol.Response) string {
	t.Helper()

	require.Nil(t, resp.Error)
	var result protocol.CallResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	return result.Content[0].Text
}

func TestServer_Serve(t *testing.T) {
	t.Parallel()

	t.Run("handshake then query", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t, 3)
		responses := exchange(t, srv, "SELECT count(*) FROM transactions")
		require.Len(t, responses, 2)

		require.Nil(t, responses[0].Error)
		assert.Equal(t, int64(1), responses[0].ID)
		var init protocol.InitializeResult
		require.NoError(t, json.Unmarshal(responses[0].Result, &init))
		assert.Equal(t, protocol.Version, init.ProtocolVersion)
		assert.Equal(t, "analyst-server", init.ServerInfo.Name)

		assert.Equal(t, int64(2), responses[1].ID)
		text := callText(t, responses[1])
		assert.JSONEq(t, `[{"count(*)": 3}]`, text)
	})

	t.Run("tools/call before initialize is a sequence violation", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t, 3)

		call, err := protocol.NewCallRequest(1, "query_database", "SELECT 1")
		require.NoError(t, err)

		var input, output bytes.Buffer
		require.NoError(t, protocol.WriteRequests(&input, call))
		require.NoError(t, srv.Serve(context.Background(), &input, &output))

		responses, err := protocol.ReadResponses(&output)
		require.NoError(t, err)
		require.Len(t, responses, 1)
		require.NotNil(t, responses[0].Error)
		assert.Contains(t, responses[0].Error.Message, "before initialize")
	})

	t.Run("malformed line gets an error response and serving continues", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t, 3)

		init, err := protocol.NewInitializeRequest(1, protocol.ClientInfo{Name: "test-host", Version: "1.0"})
		require.NoError(t, err)
		initLine, err := protocol.EncodeRequest(init)
		require.NoError(t, err)

		var input bytes.Buffer
		input.WriteString("this is not json\n")
		input.Write(initLine)

		var output bytes.Buffer
		require.NoError(t, srv.Serve(context.Background(), &input, &output))

		responses, err := protocol.ReadResponses(&output)
		require.NoError(t, err)
		require.Len(t, responses, 2)
		require.NotNil(t, responses[0].Error)
		assert.Nil(t, responses[1].Error)
	})

	t.Run("unknown method", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t, 3)

		var input, output bytes.Buffer
		require.NoError(t, protocol.WriteRequests(&input,
			protocol.Request{JSONRPC: "2.0", Method: "tools/list", ID: 1}))
		require.NoError(t, srv.Serve(context.Background(), &input, &output))

		responses, err := protocol.ReadResponses(&output)
		require.NoError(t, err)
		require.Len(t, responses, 1)
		require.NotNil(t, responses[0].Error)
		assert.Contains(t, responses[0].Error.Message, "tools/list")
	})

	t.Run("unknown tool name", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t, 3)

		init, err := protocol.NewInitializeRequest(1, protocol.ClientInfo{Name: "test-host", Version: "1.0"})
		require.NoError(t, err)
		call, err := protocol.NewCallRequest(2, "drop_database", "SELECT 1")
		require.NoError(t, err)

		var input, output bytes.Buffer
		require.NoError(t, protocol.WriteRequests(&input, init, call))
		require.NoError(t, srv.Serve(context.Background(), &input, &output))

		responses, err := protocol.ReadResponses(&output)
		require.NoError(t, err)
		require.Len(t, responses, 2)
		require.NotNil(t, responses[1].Error)
		assert.Contains(t, responses[1].Error.Message, "drop_database")
	})

	t.Run("empty input serves nothing", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t, 3)

		var output bytes.Buffer
		require.NoError(t, srv.Serve(context.Background(), strings.NewReader(""), &output))
		assert.Empty(t, output.String())
	})
}

func TestServer_QueryDatabase(t *testing.T) {
	t.Parallel()

	t.Run("rejects non-SELECT input", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t, 3)
		responses := exchange(t, srv, "DROP TABLE transactions")
		text := callText(t, responses[1])
		assert.Equal(t, "Error: For safety, this tool only allows SELECT queries.", text)

		// The table survives the attempt.
		responses = exchange(t, srv, "SELECT count(*) FROM transactions")
		assert.JSONEq(t, `[{"count(*)": 3}]`, callText(t, responses[1]))
	})

	t.Run("rejection is case-insensitive on the verb only", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t, 3)

		for _, sql := range []string{"delete from transactions", "UPDATE transactions SET status='x'", "  INSERT INTO transactions VALUES (1)"} {
			responses := exchange(t, srv, sql)
			text := callText(t, responses[1])
			assert.Equal(t, "Error: For safety, this tool only allows SELECT queries.", text, "input: %s", sql)
		}

		responses := exchange(t, srv, "select count(*) from transactions")
		assert.JSONEq(t, `[{"count(*)": 3}]`, callText(t, responses[1]))
	})

	t.Run("empty query is rejected", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t, 3)
		responses := exchange(t, srv, "")
		assert.Equal(t, "Error: For safety, this tool only allows SELECT queries.", callText(t, responses[1]))
	})

	t.Run("engine error becomes text", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t, 3)
		responses := exchange(t, srv, "SELECT * FROM no_such_table")
		text := callText(t, responses[1])
		assert.True(t, strings.HasPrefix(text, "SQL Error: "))
		assert.Contains(t, text, "no_such_table")
	})

	t.Run("empty result set serializes as an empty array", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t, 3)
		responses := exchange(t, srv, "SELECT * FROM transactions WHERE status = 'nope'")
		assert.JSONEq(t, `[]`, callText(t, responses[1]))
	})

	t.Run("filtered aggregate returns the exact count", func(t *testing.T) {
		t.Parallel()

		// Controlled dataset: exactly 3 failed German transactions among
		// others that must not match.
		path := filepath.Join(t.TempDir(), "payments.db")
		db, err := sql.Open("sqlite", "file:"+path)
		require.NoError(t, err)
		_, err = db.Exec(`CREATE TABLE transactions (
			id TEXT PRIMARY KEY, amount_cents INTEGER, currency TEXT,
			status TEXT, payment_method TEXT, country_code TEXT,
			customer_email TEXT, description TEXT, created_at DATETIME)`)
		require.NoError(t, err)
		rows := []struct{ status, country string }{
			{"failed", "DE"}, {"failed", "DE"}, {"failed", "DE"},
			{"failed", "US"}, {"succeeded", "DE"}, {"pending", "FR"},
		}
		for i, r := range rows {
			_, err = db.Exec(
				"INSERT INTO transactions (id, amount_cents, currency, status, payment_method, country_code) VALUES (?, ?, ?, ?, ?, ?)",
				fmt.Sprintf("tx_%016d", i), 1000, "EUR", r.status, "card", r.country)
			require.NoError(t, err)
		}
		require.NoError(t, db.Close())

		st, err := store.OpenReadOnly(path)
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })

		srv := server.New(st)
		responses := exchange(t, srv,
			"SELECT COUNT(*) FROM transactions WHERE status='failed' AND country_code='DE'")
		assert.JSONEq(t, `[{"COUNT(*)": 3}]`, callText(t, responses[1]))
	})

	t.Run("oversized result carries a truncation warning", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t, 150)
		responses := exchange(t, srv, "SELECT id FROM transactions")
		text := callText(t, responses[1])

		var payload struct {
			Warning string           `json:"warning"`
			Data    []map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(text), &payload))
		assert.Equal(t, "Result truncated to first 100 of 150 rows for performance.", payload.Warning)
		assert.Len(t, payload.Data, 100)
	})
}

func TestServer_Schema(t *testing.T) {
	t.Parallel()

	srv := newServer(t, 3)
	schema, err := srv.Schema(context.Background())
	require.NoError(t, err)
	assert.Contains(t, schema, "CREATE TABLE")
	assert.Contains(t, schema, "transactions")
}
