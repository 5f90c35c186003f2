// Package host implements the native runtime of switchboard: Lua code executed
// in-process against the Host dictionary.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/switchboard/pkg/domain"
	lua "github.com/yuin/gopher-lua"
)

// Interpreter wraps one persistent Lua state. Globals defined by a run are
// visible to the next one. Safe for concurrent use; runs are serialized.
type Interpreter struct {
	mu       sync.Mutex
	L        *lua.LState
	stdout   io.Writer
	stderr   io.Writer
	builtins map[string]bool
}

// NewInterpreter creates a state with the Lua standard library and a print
// function bound to the writers of the current run.
func NewInterpreter() *Interpreter {
	in := &Interpreter{
		L:      lua.NewState(),
		stdout: io.Discard,
		stderr: io.Discard,
	}
	in.L.SetGlobal("print", in.L.NewFunction(in.print))
	in.snapshotBuiltins()
	return in
}

// Register exposes a Go function as a builtin global.
func (in *Interpreter) Register(name string, fn lua.LGFunction) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.L.SetGlobal(name, in.L.NewFunction(fn))
	in.builtins[name] = true
}

// Close releases the state.
func (in *Interpreter) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.L.Close()
}

// Run executes code. A chunk that compiles as an expression is evaluated and
// its value returned with ok set.
func (in *Interpreter) Run(ctx context.Context, code string, stdout, stderr io.Writer) (any, bool, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.run(ctx, code, stdout, stderr)
}

func (in *Interpreter) run(ctx context.Context, code string, stdout, stderr io.Writer) (any, bool, error) {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	in.stdout, in.stderr = stdout, stderr
	defer func() {
		in.stdout, in.stderr = io.Discard, io.Discard
	}()

	in.L.SetContext(ctx)
	defer in.L.RemoveContext()

	fn, err := in.L.LoadString("return " + code)
	if err != nil {
		fn, err = in.L.LoadString(code)
		if err != nil {
			return nil, false, &domain.CellError{Name: "SyntaxError", Message: err.Error(), Err: err}
		}
	}

	top := in.L.GetTop()
	in.L.Push(fn)
	if err := in.L.PCall(0, lua.MultRet, nil); err != nil {
		in.L.SetTop(top)
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("%w: %v", domain.ErrInterrupted, ctx.Err())
		}
		return nil, false, luaError(err)
	}

	n := in.L.GetTop() - top
	if n == 0 {
		return nil, false, nil
	}
	value := in.L.Get(top + 1)
	in.L.SetTop(top)
	if value == lua.LNil {
		return nil, false, nil
	}
	return FromLua(value), true, nil
}

// Globals returns the user defined globals.
func (in *Interpreter) Globals() map[string]lua.LValue {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.globals()
}

func (in *Interpreter) globals() map[string]lua.LValue {
	out := make(map[string]lua.LValue)
	in.L.G.Global.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok || in.builtins[string(name)] {
			return
		}
		out[string(name)] = v
	})
	return out
}

func (in *Interpreter) snapshotBuiltins() {
	in.builtins = make(map[string]bool)
	in.L.G.Global.ForEach(func(k, _ lua.LValue) {
		if name, ok := k.(lua.LString); ok {
			in.builtins[string(name)] = true
		}
	})
}

func (in *Interpreter) print(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, n)
	for i := 1; i <= n; i++ {
		parts[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	fmt.Fprintln(in.stdout, strings.Join(parts, "\t"))
	return 0
}

func luaError(err error) error {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		msg := err.Error()
		if apiErr.Object != nil {
			msg = apiErr.Object.String()
		}
		var tb []string
		if apiErr.StackTrace != "" {
			tb = strings.Split(strings.TrimSpace(apiErr.StackTrace), "\n")
		}
		return &domain.CellError{Name: "LuaError", Message: msg, Traceback: tb, Err: err}
	}
	return &domain.CellError{Name: "LuaError", Message: err.Error(), Err: err}
}

// sortedNames returns the keys of m in order, for deterministic injection.
func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
