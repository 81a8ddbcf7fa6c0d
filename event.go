package analyst

// Event is a sealed interface representing a progress event emitted during
// a turn. Events are purely informational; failures surface through the
// turn's return values, not through events.
// The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// EventDirective signals that the planning pass produced a directive naming
// the known tool and the bridge is about to be invoked.
type EventDirective struct {
	Directive Directive
}

func (EventDirective) event() {}

// EventToolResult carries the raw database result text, before the
// formatting pass turns it into natural language. The text may be a result
// payload or a surfaced error string; subscribers should not assume either.
type EventToolResult struct {
	Text string
}

func (EventToolResult) event() {}

// Interface compliance checks.
var (
	_ Event = EventDirective{}
	_ Event = EventToolResult{}
)
