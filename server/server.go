// Package server implements the tool server: the sole owner of the database
// connection, reachable only through framed requests on its input stream.
// It understands the initialize handshake and a single tool, query_database,
// and terminates once its input stream is exhausted — one subprocess serves
// exactly one orchestrated turn.
package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fwojciec/analyst"
	"github.com/fwojciec/analyst/protocol"
	"github.com/fwojciec/analyst/store"
)

// JSON-RPC error codes used in error responses.
const (
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// safetyRejection is returned for any input whose leading token is not
// SELECT. The gate is textual, not a parser: it does not prevent
// semantically destructive SELECT-wrapped statements in engines that allow
// them. Known limitation, kept deliberately.
const safetyRejection = "Error: For safety, this tool only allows SELECT queries."

// Server answers framed protocol requests against a single store.
type Server struct {
	store *store.Store
	info  protocol.ClientInfo
	log   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the diagnostic logger. Diagnostics go to the process's
// error stream and are not part of the protocol contract.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates a Server over the given store.
func New(st *store.Store, opts ...Option) *Server {
	s := &Server{
		store: st,
		info:  protocol.ClientInfo{Name: "analyst-server", Version: "1.0"},
		log:   slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Serve reads framed requests from r until EOF and writes one framed
// response per request to w, in request order. The initialize handshake
// must complete before any tools/call is honored. Serve returns once the
// input stream closes; the host closes its end after writing the
// (initialize, tools/call) pair, so the process naturally consumes exactly
// one exchange.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	initialized := false
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		req, err := protocol.DecodeRequest(line)
		if err != nil {
			s.log.Error("malformed request line", "err", err)
			if werr := s.write(w, protocol.NewErrorResponse(0, codeInvalidRequest, err.Error())); werr != nil {
				return werr
			}
			continue
		}

		resp := s.handle(ctx, req, &initialized)
		if err := s.write(w, resp); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (s *Server) write(w io.Writer, resp protocol.Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func (s *Server) handle(ctx context.Context, req protocol.Request, initialized *bool) protocol.Response {
	switch req.Method {
	case protocol.MethodInitialize:
		*initialized = true
		resp, err := protocol.NewResultResponse(req.ID, protocol.InitializeResult{
			ProtocolVersion: protocol.Version,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      s.info,
		})
		if err != nil {
			return protocol.NewErrorResponse(req.ID, codeInvalidRequest, err.Error())
		}
		return resp

	case protocol.MethodCallTool:
		if !*initialized {
			s.log.Error("tools/call before initialize")
			return protocol.NewErrorResponse(req.ID, codeInvalidRequest,
				fmt.Sprintf("%v: tools/call before initialize", analyst.ErrSequence))
		}
		return s.handleCall(ctx, req)

	default:
		return protocol.NewErrorResponse(req.ID, codeMethodNotFound,
			fmt.Sprintf("unknown method %q", req.Method))
	}
}

func (s *Server) handleCall(ctx context.Context, req protocol.Request) protocol.Response {
	var params protocol.CallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, codeInvalidParams,
			fmt.Sprintf("invalid tools/call params: %v", err))
	}
	if params.Name != analyst.ToolQueryDatabase {
		return protocol.NewErrorResponse(req.ID, codeInvalidParams,
			fmt.Sprintf("unknown tool %q", params.Name))
	}

	text := s.queryDatabase(ctx, params.Arguments.SQL)
	resp, err := protocol.NewResultResponse(req.ID, protocol.CallResult{
		Content: []protocol.Content{{Type: "text", Text: text}},
	})
	if err != nil {
		return protocol.NewErrorResponse(req.ID, codeInvalidRequest, err.Error())
	}
	return resp
}

// queryDatabase executes a read-only query and serializes the bounded
// result. Failures come back as text, never as a crash: safety rejections
// and engine errors are diagnostic context the model explains in the
// formatting pass.
func (s *Server) queryDatabase(ctx context.Context, query string) string {
	if !isSelect(query) {
		s.log.Warn("rejected non-SELECT input", "sql", query)
		return safetyRejection
	}

	res, err := s.store.Query(ctx, query)
	if err != nil {
		// The engine's own message, verbatim, so the model can react to it.
		return fmt.Sprintf("SQL Error: %s", err)
	}

	payload, err := s.serialize(res)
	if err != nil {
		return fmt.Sprintf("SQL Error: %s", err)
	}
	return payload
}

func (s *Server) serialize(res *store.Result) (string, error) {
	rows := res.Rows
	if rows == nil {
		rows = []map[string]any{}
	}

	var v any = rows
	if res.Truncated {
		v = map[string]any{
			"warning": fmt.Sprintf("Result truncated to first %d of %d rows for performance.",
				len(rows), res.TotalRows),
			"data": rows,
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Schema returns the data-definition statements for all user tables.
func (s *Server) Schema(ctx context.Context) (string, error) {
	return s.store.Schema(ctx)
}

// isSelect reports whether the trimmed, case-folded leading token of query
// is SELECT.
func isSelect(query string) bool {
	fields := strings.Fields(query)
	return len(fields) > 0 && strings.EqualFold(fields[0], "SELECT")
}
