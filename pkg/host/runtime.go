package host

import (
	"context"
	"io"
	"log/slog"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
	lua "github.com/yuin/gopher-lua"
)

// ArgGlobal is the Lua global holding the session options. A dictionary key
// with this name is kept in the dictionary but is not visible to Host code.
const ArgGlobal = "arg"

// Runtime executes Host cells. The Host dictionary is the global namespace of
// the Lua state: it is installed before each run and read back afterwards.
// Lua has a single number type, so a number assigned by a cell comes back as
// int64 when it is integral; numbers the cell leaves alone keep their Go type.
type Runtime struct {
	in     *Interpreter
	logger *slog.Logger
}

// Option configures the Runtime.
type Option func(*Runtime)

// WithLogger configures a logger for the Runtime.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// New creates a Host runtime with its own Lua state.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		in:     NewInterpreter(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close releases the Lua state.
func (r *Runtime) Close() {
	r.in.Close()
}

// Exec runs code against dict and writes the resulting globals back to dict.
// Globals removed by the code (assigned nil) are removed from dict.
func (r *Runtime) Exec(ctx context.Context, code string, dict domain.Dict, args []string, stdout, stderr io.Writer) (any, error) {
	r.in.mu.Lock()
	defer r.in.mu.Unlock()

	skipped := r.install(dict)
	argv := r.in.L.NewTable()
	for _, a := range args {
		argv.Append(lua.LString(a))
	}
	r.in.L.SetGlobal(ArgGlobal, argv)

	value, _, err := r.in.run(ctx, code, stdout, stderr)

	// Globals are collected even after a failure: assignments made before the
	// error stay visible, as in an interactive interpreter.
	r.collect(dict, skipped)
	return value, err
}

// Eval evaluates expr against dict without modifying it.
func (r *Runtime) Eval(ctx context.Context, expr string, dict domain.Dict) (any, error) {
	r.in.mu.Lock()
	defer r.in.mu.Unlock()

	r.install(dict)
	value, _, err := r.in.run(ctx, "return "+expr, nil, nil)
	return value, err
}

// install replaces the user globals of the state with the content of dict.
// It returns the keys that could not be represented in Lua.
func (r *Runtime) install(dict domain.Dict) map[string]bool {
	L := r.in.L
	for name := range r.in.globals() {
		L.SetGlobal(name, lua.LNil)
	}

	skipped := make(map[string]bool)
	for _, name := range sortedNames(dict) {
		if r.in.builtins[name] || name == ArgGlobal {
			skipped[name] = true
			continue
		}
		lv, err := ToLua(L, dict[name])
		if err != nil {
			r.logger.Debug("Host value not visible to Lua", "name", name, "err", err)
			skipped[name] = true
			continue
		}
		L.SetGlobal(name, lv)
	}
	return skipped
}

func (r *Runtime) collect(dict domain.Dict, skipped map[string]bool) {
	globals := r.in.globals()
	for name := range dict {
		if _, ok := globals[name]; !ok && !skipped[name] {
			delete(dict, name)
		}
	}
	for name, lv := range globals {
		if name == ArgGlobal {
			continue
		}
		if old, ok := dict[name]; ok && sameNumber(old, lv) {
			continue
		}
		dict[name] = FromLua(lv)
	}
}

func sameNumber(old any, lv lua.LValue) bool {
	n, ok := lv.(lua.LNumber)
	if !ok {
		return false
	}
	switch x := old.(type) {
	case float64:
		return x == float64(n)
	case float32:
		return float64(x) == float64(n)
	}
	return false
}

var _ ports.HostRuntime = (*Runtime)(nil)
