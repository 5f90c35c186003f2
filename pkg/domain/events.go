package domain

// EventKind defines the category of an output event.
type EventKind string

const (
	EventStream   EventKind = "stream"
	EventDisplay  EventKind = "display"
	EventResult   EventKind = "result"
	EventStatus   EventKind = "status"
	EventError    EventKind = "error"
	EventFrontend EventKind = "frontend"
)

const (
	StateBusy = "busy"
	StateIdle = "idle"
)

// Event is one output item produced while executing a cell.
// Engines produce them through the relay loop; the session produces them for
// warnings, host output and previews.
type Event struct {
	Kind EventKind `json:"kind"`

	// Name is the stream name (stdout, stderr) for stream events.
	Name string `json:"name,omitempty"`
	Text string `json:"text,omitempty"`

	// Data is a MIME bundle for display and result events, or the payload of a frontend message.
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// State is "busy" or "idle" for status events.
	State string `json:"state,omitempty"`

	// ExecutionCount is set by engines on result events; the relay overwrites it.
	ExecutionCount *int `json:"execution_count,omitempty"`

	// RequestID correlates the event with the execute request that caused it.
	RequestID string `json:"request_id,omitempty"`

	ErrorName  string   `json:"ename,omitempty"`
	ErrorValue string   `json:"evalue,omitempty"`
	Traceback  []string `json:"traceback,omitempty"`
}

// StreamEvent builds a stream event.
func StreamEvent(name, text string) Event {
	return Event{Kind: EventStream, Name: name, Text: text}
}

// DisplayEvent builds a display event from a MIME bundle.
func DisplayEvent(data map[string]any) Event {
	return Event{Kind: EventDisplay, Data: data}
}

// FrontendEvent builds the message that tells a frontend which engine a cell ran in.
// cellIndex is nil when the message is not tied to a specific cell.
func FrontendEvent(cellIndex *string, engine string) Event {
	var idx any
	if cellIndex != nil {
		idx = *cellIndex
	}
	return Event{Kind: EventFrontend, Data: map[string]any{"cell": idx, "engine": engine}}
}
