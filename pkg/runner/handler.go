package runner

import (
	"context"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// Request is one cell read from the user.
type Request struct {
	Code      string  `json:"code"`
	Silent    bool    `json:"silent,omitempty"`
	CellIndex *string `json:"cell_index,omitempty"`
}

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
// The events of a running cell are delivered through Send.
type IOHandler interface {
	ports.OutputSink

	// Input reads the next cell. count is the execution count the cell will get.
	// It returns io.EOF when there is no more input.
	Input(ctx context.Context, count int) (Request, error)

	// Result presents the outcome of a cell.
	Result(ctx context.Context, res domain.Result) error
}

// ContentRenderer is a function that transforms markdown before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)
