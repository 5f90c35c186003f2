package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/switchboard/pkg/domain"
	"golang.org/x/term"
)

// TextHandler implements the standard text-based interface.
// A cell is read until the first blank line.
type TextHandler struct {
	lines     *lineReader
	Writer    io.Writer
	ErrWriter io.Writer
	Renderer  ContentRenderer

	// Prompt enables the "In [n]:" prompts. It defaults to true when reading from a terminal.
	Prompt bool

	mu sync.Mutex
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the markdown renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// WithTextHandlerErrWriter sends the stderr stream to w instead of the output writer.
func WithTextHandlerErrWriter(w io.Writer) TextHandlerOption {
	return func(h *TextHandler) {
		h.ErrWriter = w
	}
}

// WithTextHandlerPrompt forces prompts on or off.
func WithTextHandlerPrompt(enabled bool) TextHandlerOption {
	return func(h *TextHandler) {
		h.Prompt = enabled
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		lines:  newLineReader(r),
		Writer: w,
		Prompt: isTerminal(r),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.ErrWriter == nil {
		h.ErrWriter = h.Writer
	}
	return h
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Input reads lines until a blank line ends a non-empty cell.
func (h *TextHandler) Input(ctx context.Context, count int) (Request, error) {
	var lines []string
	for {
		h.prompt(count, len(lines))
		text, err := h.lines.next(ctx)
		if err == io.EOF && len(lines) > 0 {
			break
		}
		if err != nil {
			return Request{}, err
		}

		line := strings.TrimRight(text, "\r\n")
		if strings.TrimSpace(line) == "" {
			if len(lines) == 0 {
				continue
			}
			break
		}
		lines = append(lines, line)
	}

	code, err := SanitizeInput(strings.Join(lines, "\n"))
	if err != nil {
		fmt.Fprintf(h.ErrWriter, "Error: %v. Please try again.\n", err)
		return h.Input(ctx, count)
	}
	return Request{Code: code}, nil
}

func (h *TextHandler) prompt(count, line int) {
	if !h.Prompt {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if line == 0 {
		fmt.Fprintf(h.Writer, "In [%d]: ", count)
		return
	}
	pad := len(fmt.Sprintf("In [%d]", count)) - 3
	fmt.Fprintf(h.Writer, "%s...: ", strings.Repeat(" ", pad))
}

// Send writes one event of the running cell.
func (h *TextHandler) Send(_ context.Context, ev domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch ev.Kind {
	case domain.EventStream:
		w := h.Writer
		if ev.Name == domain.StreamStderr {
			w = h.ErrWriter
		}
		_, err := io.WriteString(w, ev.Text)
		return err
	case domain.EventDisplay, domain.EventResult:
		text := h.bundle(ev.Data)
		if text == "" {
			return nil
		}
		if ev.Kind == domain.EventResult && ev.ExecutionCount != nil && h.Prompt {
			text = fmt.Sprintf("Out[%d]: %s", *ev.ExecutionCount, text)
		}
		_, err := fmt.Fprintln(h.Writer, strings.TrimRight(text, "\n"))
		return err
	case domain.EventError:
		fmt.Fprintf(h.ErrWriter, "%s: %s\n", ev.ErrorName, ev.ErrorValue)
		for _, line := range ev.Traceback {
			fmt.Fprintln(h.ErrWriter, line)
		}
	}
	return nil
}

// bundle picks the text representation of a MIME bundle: rendered markdown
// first, then plain text, then a placeholder naming the other types.
func (h *TextHandler) bundle(data map[string]any) string {
	if md, ok := data[domain.MIMEMarkdown].(string); ok && h.Renderer != nil {
		if rendered, err := h.Renderer(md); err == nil {
			return strings.TrimSpace(rendered)
		}
	}
	if text, ok := data[domain.MIMEText].(string); ok {
		return text
	}
	if md, ok := data[domain.MIMEMarkdown].(string); ok {
		return md
	}
	if len(data) == 0 {
		return ""
	}
	types := make([]string, 0, len(data))
	for k := range data {
		types = append(types, k)
	}
	sort.Strings(types)
	return "[" + strings.Join(types, ", ") + "]"
}

// Result ends the output of a cell with an empty line when prompting.
func (h *TextHandler) Result(_ context.Context, _ domain.Result) error {
	if !h.Prompt {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.Writer)
	return err
}
