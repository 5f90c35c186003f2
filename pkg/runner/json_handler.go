package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/switchboard/pkg/domain"
)

// Message types written by the JSONHandler.
const (
	MessageEvent  = "event"
	MessageResult = "result"
	MessageError  = "error"
)

// Message is one line written by the JSONHandler.
type Message struct {
	Type   string         `json:"type"`
	Event  *domain.Event  `json:"event,omitempty"`
	Result *domain.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
// Each input line is a Request object; a JSON string or plain text line is taken as code.
type JSONHandler struct {
	lines *lineReader

	mu      sync.Mutex
	Encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		lines:   newLineReader(r),
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) Input(ctx context.Context, _ int) (Request, error) {
	for {
		text, err := h.lines.next(ctx)
		if err != nil {
			return Request{}, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		req, err := parseRequest(text)
		if err != nil {
			if werr := h.write(Message{Type: MessageError, Error: err.Error()}); werr != nil {
				return Request{}, werr
			}
			continue
		}
		if req.Code, err = SanitizeInput(req.Code); err != nil {
			if werr := h.write(Message{Type: MessageError, Error: err.Error()}); werr != nil {
				return Request{}, werr
			}
			continue
		}
		return req, nil
	}
}

func parseRequest(text string) (Request, error) {
	var req Request
	switch text[0] {
	case '{':
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			return req, fmt.Errorf("invalid request: %w", err)
		}
	case '"':
		if err := json.Unmarshal([]byte(text), &req.Code); err != nil {
			return req, fmt.Errorf("invalid request: %w", err)
		}
	default:
		req.Code = text
	}
	return req, nil
}

// Send emits an event line.
func (h *JSONHandler) Send(_ context.Context, ev domain.Event) error {
	return h.write(Message{Type: MessageEvent, Event: &ev})
}

// Result emits a result line.
func (h *JSONHandler) Result(_ context.Context, res domain.Result) error {
	return h.write(Message{Type: MessageResult, Result: &res})
}

func (h *JSONHandler) write(msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Encoder.Encode(msg)
}
