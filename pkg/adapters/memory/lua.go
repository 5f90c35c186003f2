package memory

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/host"
	"github.com/aretw0/switchboard/pkg/lang"
	lua "github.com/yuin/gopher-lua"
)

// LuaEngine is a stateful in-process engine running Lua. Globals survive
// between requests until the engine is restarted.
type LuaEngine struct {
	in *host.Interpreter
}

// NewLuaEngine is a Factory for LuaEngine.
func NewLuaEngine() (Engine, error) {
	e := &LuaEngine{in: host.NewInterpreter()}
	e.in.Register(lang.ExportFunction, export)
	return e, nil
}

// Execute runs req.Code. A trailing expression is published as a result event
// unless the request is silent.
func (e *LuaEngine) Execute(ctx context.Context, req Request, emit func(domain.Event)) domain.Result {
	stdout := &streamWriter{name: domain.StreamStdout, emit: emit}
	stderr := &streamWriter{name: domain.StreamStderr, emit: emit}

	value, ok, err := e.in.Run(ctx, req.Code, stdout, stderr)
	if err != nil {
		res := domain.Failure(req.ExecutionCount, err)
		emit(domain.Event{
			Kind:       domain.EventError,
			ErrorName:  res.ErrorName,
			ErrorValue: res.ErrorValue,
			Traceback:  res.Traceback,
		})
		return res
	}
	if ok && !req.Silent && host.IsData(value) {
		count := req.ExecutionCount
		emit(domain.Event{
			Kind:           domain.EventResult,
			Data:           map[string]any{domain.MIMEText: host.Format(value)},
			ExecutionCount: &count,
		})
	}
	return domain.OK(req.ExecutionCount)
}

// Close releases the Lua state.
func (e *LuaEngine) Close() {
	e.in.Close()
}

// export implements __export(names, prefix): it prints a JSON object with the
// named globals, or with every data global starting with prefix when names is
// empty. Unknown names are left out.
func export(L *lua.LState) int {
	names := L.OptTable(1, L.NewTable())
	prefix := L.OptString(2, "")

	out := make(map[string]any)
	add := func(name string, v lua.LValue) {
		if v == lua.LNil {
			return
		}
		if value := host.FromLua(v); host.IsData(value) {
			out[name] = value
		}
	}

	if names.Len() > 0 {
		names.ForEach(func(_, v lua.LValue) {
			name := v.String()
			add(name, L.GetGlobal(name))
		})
	} else if prefix != "" {
		L.G.Global.ForEach(func(k, v lua.LValue) {
			if name, ok := k.(lua.LString); ok && strings.HasPrefix(string(name), prefix) {
				add(string(name), v)
			}
		})
	}

	b, err := json.Marshal(out)
	if err != nil {
		L.RaiseError("cannot export: %v", err)
		return 0
	}
	if err := L.CallByParam(lua.P{Fn: L.GetGlobal("print"), NRet: 0, Protect: true}, lua.LString(b)); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

// streamWriter turns writes into stream events.
type streamWriter struct {
	mu   sync.Mutex
	name string
	emit func(domain.Event)
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emit(domain.StreamEvent(w.name, string(p)))
	return len(p), nil
}

var _ io.Writer = (*streamWriter)(nil)

// Echo is a stateless engine that prints its code back, one stream event per
// line. Useful for wiring checks.
func Echo(_ context.Context, req Request, emit func(domain.Event)) domain.Result {
	lines := strings.SplitAfter(req.Code, "\n")
	for _, line := range lines {
		if line != "" {
			emit(domain.StreamEvent(domain.StreamStdout, line))
		}
	}
	return domain.OK(req.ExecutionCount)
}
