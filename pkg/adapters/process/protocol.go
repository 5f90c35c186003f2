package process

import (
	"github.com/aretw0/switchboard/pkg/domain"
)

// Message types of the line protocol.
const (
	TypeExecute  = "execute"
	TypeShutdown = "shutdown"

	TypeReady   = "ready"
	TypeStatus  = "status"
	TypeStream  = "stream"
	TypeDisplay = "display"
	TypeResult  = "result"
	TypeError   = "error"
	TypeReply   = "reply"
)

// Message is one line of the protocol spoken with a child engine.
// Every line is a single JSON object; fields not used by a type are omitted.
type Message struct {
	Type string `json:"type"`

	// ID identifies an execute request; Parent echoes it on the engine side.
	ID     string `json:"id,omitempty"`
	Parent string `json:"parent,omitempty"`

	Code   string `json:"code,omitempty"`
	Silent bool   `json:"silent,omitempty"`

	State    string         `json:"state,omitempty"`
	Name     string         `json:"name,omitempty"`
	Text     string         `json:"text,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	ExecutionCount *int          `json:"execution_count,omitempty"`
	Status         domain.Status `json:"status,omitempty"`

	EName     string   `json:"ename,omitempty"`
	EValue    string   `json:"evalue,omitempty"`
	Traceback []string `json:"traceback,omitempty"`
}

// Event converts an output message. ok is false for control messages.
func (m Message) Event() (domain.Event, bool) {
	var kind domain.EventKind
	switch m.Type {
	case TypeStatus:
		kind = domain.EventStatus
	case TypeStream:
		kind = domain.EventStream
	case TypeDisplay:
		kind = domain.EventDisplay
	case TypeResult:
		kind = domain.EventResult
	case TypeError:
		kind = domain.EventError
	default:
		return domain.Event{}, false
	}
	name := m.Name
	if kind == domain.EventStream && name == "" {
		name = domain.StreamStdout
	}
	return domain.Event{
		Kind:           kind,
		Name:           name,
		Text:           m.Text,
		Data:           m.Data,
		Metadata:       m.Metadata,
		State:          m.State,
		ExecutionCount: m.ExecutionCount,
		RequestID:      m.Parent,
		ErrorName:      m.EName,
		ErrorValue:     m.EValue,
		Traceback:      m.Traceback,
	}, true
}

// Result converts a reply message.
func (m Message) Result() domain.Result {
	res := domain.Result{
		Status:     m.Status,
		ErrorName:  m.EName,
		ErrorValue: m.EValue,
		Traceback:  m.Traceback,
	}
	if res.Status == "" {
		res.Status = domain.StatusOK
	}
	if m.ExecutionCount != nil {
		res.ExecutionCount = *m.ExecutionCount
	}
	return res
}
