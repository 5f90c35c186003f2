package ports

import (
	"context"
	"io"

	"github.com/aretw0/switchboard/pkg/domain"
)

// HostRuntime executes code natively against the Host dictionary.
type HostRuntime interface {
	// Exec runs code with dict as its global namespace and writes changes back to dict.
	// args are the session options. The returned value is the value of a trailing
	// expression, or nil.
	Exec(ctx context.Context, code string, dict domain.Dict, args []string, stdout, stderr io.Writer) (any, error)

	// Eval evaluates a single expression against dict without modifying it.
	Eval(ctx context.Context, expr string, dict domain.Dict) (any, error)
}
