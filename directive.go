package analyst

import (
	"encoding/json"
	"strings"
)

// ToolQueryDatabase is the single tool this system exposes.
const ToolQueryDatabase = "query_database"

// Directive is the model's declared intent to call a tool, parsed from its
// raw planning output. It is transient and exists only within one turn.
type Directive struct {
	Tool string `json:"tool"`
	SQL  string `json:"sql"`
}

// ParseDirective extracts a tool directive from raw model output. Models
// sometimes wrap the JSON in markdown code fences despite instructions, so
// fence markers are stripped before decoding. A failed parse is not an
// error: the model is assumed to have declined or asked for clarification
// instead of calling the tool, and the raw text stands as the answer.
func ParseDirective(raw string) (Directive, bool) {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var d Directive
	if err := json.Unmarshal([]byte(cleaned), &d); err != nil {
		return Directive{}, false
	}
	if d.Tool == "" {
		return Directive{}, false
	}
	return d, true
}
