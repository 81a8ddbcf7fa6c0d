// Package protocol implements the session protocol spoken between the host
// bridge and the tool server: a newline-delimited JSON-RPC 2.0 subset with
// exactly two methods, initialize and tools/call. The codec is
// transport-agnostic; this system only ever runs it over a child process's
// standard input and output streams.
package protocol

import "encoding/json"

// Version is the protocol version sent in the initialization handshake.
const Version = "2024-11-05"

// Methods understood by the tool server. initialize must complete before
// any tools/call is valid.
const (
	MethodInitialize = "initialize"
	MethodCallTool   = "tools/call"
)

// Request is a framed method call. Immutable once sent; one response is
// expected per request, in the order requests were written.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      int64           `json:"id"`
}

// Response answers exactly one Request, carrying either a result or an
// error. Correlation is positional: the first response line answers
// initialize, the second answers tools/call.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorDetail    `json:"error,omitempty"`
}

// ErrorDetail is the error member of a failed Response.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ClientInfo identifies the host in the initialization handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams are the parameters of an initialize request.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
}

// InitializeResult acknowledges the handshake.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ClientInfo     `json:"serverInfo"`
}

// CallParams are the parameters of a tools/call request.
type CallParams struct {
	Name      string        `json:"name"`
	Arguments CallArguments `json:"arguments"`
}

// CallArguments carry the single argument of the query_database tool.
type CallArguments struct {
	SQL string `json:"sql"`
}

// CallResult is the result payload of a successful tools/call. The tool's
// output is always transported as text content.
type CallResult struct {
	Content []Content `json:"content"`
}

// Content is one block of tool output.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewInitializeRequest builds the handshake request with the fixed protocol
// version and the given client identity.
func NewInitializeRequest(id int64, client ClientInfo) (Request, error) {
	params, err := json.Marshal(InitializeParams{
		ProtocolVersion: Version,
		Capabilities:    map[string]any{},
		ClientInfo:      client,
	})
	if err != nil {
		return Request{}, err
	}
	return Request{JSONRPC: "2.0", Method: MethodInitialize, Params: params, ID: id}, nil
}

// NewCallRequest builds a tools/call request for the named tool with the
// given SQL argument.
func NewCallRequest(id int64, tool, sql string) (Request, error) {
	params, err := json.Marshal(CallParams{
		Name:      tool,
		Arguments: CallArguments{SQL: sql},
	})
	if err != nil {
		return Request{}, err
	}
	return Request{JSONRPC: "2.0", Method: MethodCallTool, Params: params, ID: id}, nil
}

// NewResultResponse builds a success response whose result is the JSON
// encoding of v.
func NewResultResponse(id int64, v any) (Response, error) {
	result, err := json.Marshal(v)
	if err != nil {
		return Response{}, err
	}
	return Response{JSONRPC: "2.0", ID: id, Result: result}, nil
}

// NewErrorResponse builds an error response with the given message.
func NewErrorResponse(id int64, code int, message string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &ErrorDetail{Code: code, Message: message}}
}
