package runner

import (
	"context"
	"io"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
)

// CellMarker starts a new cell in a script.
const CellMarker = "#%%"

// SplitCells splits a script into cells at lines starting with CellMarker.
// Marker lines are dropped, as are cells holding only whitespace.
func SplitCells(src string) []string {
	var (
		cells   []string
		current []string
	)
	flush := func() {
		cell := strings.Join(current, "\n")
		if strings.TrimSpace(cell) != "" {
			cells = append(cells, strings.Trim(cell, "\n"))
		}
		current = nil
	}
	for _, line := range strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n") {
		if strings.HasPrefix(line, CellMarker) {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return cells
}

// ScriptHandler feeds the cells of a script and writes their output as text.
type ScriptHandler struct {
	*TextHandler
	cells []string
}

// NewScriptHandler creates a handler that executes src cell by cell.
func NewScriptHandler(src string, w io.Writer, opts ...TextHandlerOption) *ScriptHandler {
	opts = append([]TextHandlerOption{WithTextHandlerPrompt(false)}, opts...)
	return &ScriptHandler{
		TextHandler: NewTextHandler(strings.NewReader(""), w, opts...),
		cells:       SplitCells(src),
	}
}

// Input returns the next cell of the script.
func (h *ScriptHandler) Input(ctx context.Context, _ int) (Request, error) {
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	if len(h.cells) == 0 {
		return Request{}, io.EOF
	}
	code := h.cells[0]
	h.cells = h.cells[1:]
	return Request{Code: code}, nil
}

// Result is silent for scripts.
func (h *ScriptHandler) Result(context.Context, domain.Result) error {
	return nil
}
