package domain

import "errors"

// Status is the outcome of a cell.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
	StatusAbort Status = "abort"
)

// Result is the reply to an executed cell (or engine request).
type Result struct {
	Status         Status         `json:"status"`
	ExecutionCount int            `json:"execution_count"`
	ErrorName      string         `json:"ename,omitempty"`
	ErrorValue     string         `json:"evalue,omitempty"`
	Traceback      []string       `json:"traceback,omitempty"`
	Payload        []any          `json:"payload,omitempty"`
	UserExpr       map[string]any `json:"user_expressions,omitempty"`
}

// OK builds a successful result.
func OK(count int) Result {
	return Result{Status: StatusOK, ExecutionCount: count}
}

// Abort builds an aborted result.
func Abort(count int) Result {
	return Result{Status: StatusAbort, ExecutionCount: count}
}

// Failure builds an error result from err, using ErrorName for its name.
func Failure(count int, err error) Result {
	res := Result{
		Status:         StatusError,
		ExecutionCount: count,
		ErrorName:      ErrorName(err),
		ErrorValue:     err.Error(),
	}
	var cellErr *CellError
	if errors.As(err, &cellErr) {
		res.ErrorValue = cellErr.Message
		res.Traceback = cellErr.Traceback
	}
	return res
}
