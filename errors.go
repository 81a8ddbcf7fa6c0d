package analyst

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrFraming indicates the response stream was malformed or incomplete.
	ErrFraming = errors.New("framing error")

	// ErrSequence indicates a tool call arrived before initialization.
	ErrSequence = errors.New("sequence error")

	// ErrMalformedResult indicates a response decoded but did not carry the
	// expected result shape.
	ErrMalformedResult = errors.New("malformed result")
)
