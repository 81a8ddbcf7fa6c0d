package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fwojciec/analyst"
)

// maxLineBytes bounds a single framed message. Results are row-capped by
// the server, so a line near this size indicates a defect, not real data.
const maxLineBytes = 4 * 1024 * 1024

// EncodeRequest serializes a request as one framed line, including the
// trailing line break.
func EncodeRequest(req Request) ([]byte, error) {
	if req.JSONRPC == "" {
		req.JSONRPC = "2.0"
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return append(b, '\n'), nil
}

// WriteRequests frames each request on its own line, in order. The request
// stream for one session is the initialize line followed by the tools/call
// line.
func WriteRequests(w io.Writer, reqs ...Request) error {
	for _, req := range reqs {
		line, err := EncodeRequest(req)
		if err != nil {
			return err
		}
		if _, err := w.Write(line); err != nil {
			return fmt.Errorf("write request: %w", err)
		}
	}
	return nil
}

// DecodeRequest parses a single framed request line.
func DecodeRequest(line []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %v: %w", err, analyst.ErrFraming)
	}
	if req.Method == "" {
		return Request{}, fmt.Errorf("decode request: missing method: %w", analyst.ErrFraming)
	}
	return req, nil
}

// DecodeResponse parses a single framed response line.
func DecodeResponse(line []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %v: %w", err, analyst.ErrFraming)
	}
	return resp, nil
}

// ReadResponses decodes every non-empty line of r as a response, in order.
// A line that fails to decode is a framing error; callers verify the count
// against the number of requests they wrote.
func ReadResponses(r io.Reader) ([]Response, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var responses []Response
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		resp, err := DecodeResponse(line)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read responses: %v: %w", err, analyst.ErrFraming)
	}
	return responses, nil
}
