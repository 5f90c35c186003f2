package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/session"
)

// ErrCellFailed stops a runner configured with WithStopOnError.
var ErrCellFailed = errors.New("cell failed")

// Executor runs cells. *session.Session implements it.
type Executor interface {
	Execute(ctx context.Context, cell session.Cell) domain.Result
	Counter() int
}

// Runner reads cells from an IOHandler, executes them and presents their
// events and results through the same handler.
type Runner struct {
	executor    Executor
	handler     IOHandler
	logger      *slog.Logger
	stopOnError bool
}

// NewRunner creates a Runner over executor. Without WithHandler it reads
// text from stdin and writes to stdout.
func NewRunner(executor Executor, opts ...Option) *Runner {
	r := &Runner{
		executor: executor,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.handler == nil {
		r.handler = NewTextHandler(nil, nil)
	}
	return r
}

// Run executes cells until the input ends, the user types exit or quit, or
// ctx is cancelled. Ctrl+C aborts the running cell (or discards the cell being
// typed) and the loop continues.
func (r *Runner) Run(ctx context.Context) error {
	signals := NewSignalManager(ctx)
	defer signals.Stop()

	for {
		cellCtx := signals.Context()
		req, err := r.handler.Input(cellCtx, r.executor.Counter()+1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				signals.CheckRace()
			}
			if signals.Interrupted() {
				r.logger.Debug("Input interrupted")
				signals.Reset()
				continue
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		if code := strings.TrimSpace(req.Code); code == "exit" || code == "quit" {
			return nil
		}

		res := r.executor.Execute(cellCtx, session.Cell{
			Code:      req.Code,
			Silent:    req.Silent,
			CellIndex: req.CellIndex,
			Sink:      r.handler,
		})
		if signals.Interrupted() {
			r.logger.Debug("Cell interrupted", "count", res.ExecutionCount)
			signals.Reset()
		}
		if err := r.handler.Result(ctx, res); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		if r.stopOnError && res.Status != domain.StatusOK {
			return fmt.Errorf("%w: In [%d]: %s", ErrCellFailed, res.ExecutionCount, res.Status)
		}
	}
}
