package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

var (
	// ErrParse is returned when a directive or its arguments cannot be parsed.
	ErrParse = errors.New("parse error")

	// ErrEngineStart is returned when an engine cannot be started within its timeout.
	ErrEngineStart = errors.New("engine start failed")

	// ErrEngineNotFound is returned when no transport knows the requested engine.
	ErrEngineNotFound = errors.New("engine not found")

	// ErrExchange is returned when variables cannot be transferred between Host and an engine.
	ErrExchange = errors.New("exchange failed")

	// ErrChildDead is returned when an engine dies while a request is in flight.
	ErrChildDead = errors.New("engine died")

	// ErrRelayTimeout is returned when an engine does not produce a reply in time.
	ErrRelayTimeout = errors.New("timed out waiting for reply")

	// ErrInterrupted is returned when the user cancels a running cell.
	ErrInterrupted = errors.New("interrupted")

	// ErrSandbox is returned when a sandbox directory cannot be prepared.
	ErrSandbox = errors.New("sandbox failed")

	// ErrClipboardEmpty is returned by %paste when there is nothing to paste.
	ErrClipboardEmpty = errors.New("clipboard is empty")
)

// CellError is a failure raised by the code of a cell itself (as opposed to the orchestrator).
type CellError struct {
	Name      string
	Message   string
	Traceback []string
	Err       error
}

func (e *CellError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func (e *CellError) Unwrap() error {
	return e.Err
}

// ErrorName maps an error to the name reported in an error result.
func ErrorName(err error) string {
	var cellErr *CellError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cellErr):
		return cellErr.Name
	case errors.Is(err, ErrParse):
		return "ParseError"
	case errors.Is(err, ErrEngineStart), errors.Is(err, ErrEngineNotFound):
		return "EngineStartError"
	case errors.Is(err, ErrExchange):
		return "ExchangeError"
	case errors.Is(err, ErrChildDead):
		return "ChildDeadError"
	case errors.Is(err, ErrRelayTimeout):
		return "RelayTimeoutError"
	case errors.Is(err, ErrInterrupted):
		return "Interrupted"
	case errors.Is(err, ErrSandbox):
		return "SandboxError"
	case errors.Is(err, ErrClipboardEmpty):
		return "ClipboardError"
	default:
		return "RuntimeError"
	}
}
