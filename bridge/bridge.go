// Package bridge implements the host side of the tool exchange. Each Invoke
// spawns the tool server as a fresh child process, writes the framed
// initialize and tools/call requests to its input stream, and reads back the
// two framed responses. The subprocess is a message-passing isolation
// boundary: the host shares no memory with the server and a server crash is
// contained to one failed invocation.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fwojciec/analyst"
	"github.com/fwojciec/analyst/protocol"
)

// Interface compliance check.
var _ analyst.Invoker = (*Bridge)(nil)

// Positional correlation ids: the first response line answers initialize,
// the second answers tools/call.
const (
	initializeID = 1
	callID       = 2
)

// framingDiagnostic is the fixed string surfaced when the server produced
// fewer or less decodable response lines than the two requests written.
const framingDiagnostic = "Protocol Error: invalid server response"

// Bridge spawns and talks to the tool server. Configuration is explicit and
// immutable after construction; there is no ambient state.
type Bridge struct {
	serverPath string
	dir        string
	client     protocol.ClientInfo
	log        *slog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the diagnostic logger for captured server stderr.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bridge) { b.log = log }
}

// WithClientInfo overrides the client identity sent in the handshake.
func WithClientInfo(info protocol.ClientInfo) Option {
	return func(b *Bridge) { b.client = info }
}

// New creates a Bridge that spawns the server binary at serverPath. The
// child's working directory is pinned to the binary's own directory so the
// server finds its data store regardless of the caller's working directory.
func New(serverPath string, opts ...Option) *Bridge {
	b := &Bridge{
		serverPath: serverPath,
		dir:        filepath.Dir(serverPath),
		client:     protocol.ClientInfo{Name: "analyst-host", Version: "1.0"},
		log:        slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Invoke runs one complete exchange for the given SQL and returns the tool's
// text output. The call is synchronous and blocking: the input side is
// closed after both requests are written and Invoke waits for the child to
// exit. No timeout is enforced here; callers bound the call through ctx if
// they need one. Every failure — spawn, write, read, decode, shape — is
// converted to a single descriptive string, never a raw fault.
func (b *Bridge) Invoke(ctx context.Context, sql string) string {
	init, err := protocol.NewInitializeRequest(initializeID, b.client)
	if err != nil {
		return connectionError(err)
	}
	call, err := protocol.NewCallRequest(callID, analyst.ToolQueryDatabase, sql)
	if err != nil {
		return connectionError(err)
	}

	var input bytes.Buffer
	if err := protocol.WriteRequests(&input, init, call); err != nil {
		return connectionError(err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.serverPath)
	cmd.Dir = b.dir
	cmd.Stdin = &input
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	// Stderr is free-form diagnostics, not a failure signal by itself; the
	// authoritative signal is the response content.
	if diag := strings.TrimSpace(stderr.String()); diag != "" {
		b.log.Debug("server stderr", "output", diag)
	}
	if runErr != nil {
		return connectionError(runErr)
	}

	return b.extract(stdout.Bytes())
}

// extract correlates the response lines positionally, skips the initialize
// acknowledgment, and pulls the tool text out of the second response.
func (b *Bridge) extract(output []byte) string {
	responses, err := protocol.ReadResponses(bytes.NewReader(output))
	if err != nil {
		b.log.Error("undecodable server output", "err", err)
		return framingDiagnostic
	}
	if len(responses) < 2 {
		b.log.Error("incomplete server output", "lines", len(responses))
		return framingDiagnostic
	}

	resp := responses[1]
	if resp.Error != nil {
		return fmt.Sprintf("Database Error: %s", resp.Error.Message)
	}

	// Any shape mismatch is a bridge-level error, never a silent empty
	// result.
	var result protocol.CallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Sprintf("Bridge Error: %v: %s", analyst.ErrMalformedResult, err)
	}
	if len(result.Content) == 0 || result.Content[0].Type != "text" {
		return fmt.Sprintf("Bridge Error: %v: result carries no text content", analyst.ErrMalformedResult)
	}
	return result.Content[0].Text
}

func connectionError(err error) string {
	return fmt.Sprintf("Connection Error: %s", err)
}
