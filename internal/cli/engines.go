package cli

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/aretw0/switchboard/pkg/adapters/memory"
	"github.com/aretw0/switchboard/pkg/adapters/process"
	"github.com/aretw0/switchboard/pkg/adapters/router"
	"github.com/aretw0/switchboard/pkg/adapters/socketio"
	"github.com/aretw0/switchboard/pkg/config"
	"github.com/aretw0/switchboard/pkg/lang"
	"github.com/aretw0/switchboard/pkg/registry"
)

// builtins maps builtin names to in-process engine factories.
var builtins = map[string]memory.Factory{
	config.BuiltinLua: memory.NewLuaEngine,
	config.BuiltinEcho: func() (memory.Engine, error) {
		return memory.EngineFunc(memory.Echo), nil
	},
}

// buildTransport routes every configured engine to the transport that runs it.
// Builtin engines and anything unknown go to the in-process transport, which
// always serves the Lua engine so that "%use lua" works without configuration.
func buildTransport(cfg *config.File, logger *slog.Logger) (*router.Router, error) {
	mem := memory.NewTransport(memory.WithLogger(logger))
	mem.Register(config.BuiltinLua, memory.NewLuaEngine)

	procOpts := []process.Option{process.WithLogger(logger)}
	if cfg.Relay.GracePeriod > 0 {
		procOpts = append(procOpts, process.WithGracePeriod(cfg.Relay.GracePeriod))
	}
	proc := process.NewTransport(procOpts...)

	remoteOpts := []socketio.Option{socketio.WithLogger(logger)}
	for _, e := range cfg.Engines {
		if e.URL != "" {
			remoteOpts = append(remoteOpts, socketio.WithRemote(socketio.Remote{
				Name:      e.Name,
				URL:       e.URL,
				Namespace: e.Namespace,
			}))
		}
	}
	remote := socketio.NewTransport(remoteOpts...)

	r := router.New(router.WithFallback(mem))
	for _, e := range cfg.Engines {
		switch {
		case e.Builtin != "":
			factory, ok := builtins[e.Builtin]
			if !ok {
				return nil, fmt.Errorf("engine %s: unknown builtin %q", e.Name, e.Builtin)
			}
			mem.Register(e.Name, factory)
			r.Route(e.Name, mem)
		case e.Command != "":
			if err := proc.Register(e.Process()); err != nil {
				return nil, err
			}
			r.Route(e.Name, proc)
		case e.URL != "":
			r.Route(e.Name, remote)
		}
		logger.Debug("Engine configured", "engine", e.Name, "language", e.Language)
	}
	return r, nil
}

// buildAdapters returns the built-in language adapters plus one alias per
// configured engine that names a language, so that the language resolves to
// the configured engine.
func buildAdapters(cfg *config.File) (*registry.Registry, error) {
	reg := registry.NewRegistry(lang.Defaults()...)
	for _, e := range cfg.Engines {
		if e.Language == "" {
			continue
		}
		base, ok := reg.Lookup(e.Language)
		if !ok {
			return nil, fmt.Errorf("engine %s: unknown language %q", e.Name, e.Language)
		}
		reg.Register(lang.WithKernel(base, e.Name))
	}
	return reg, nil
}

// EngineInfo describes one engine known to the CLI.
type EngineInfo struct {
	Name     string
	Language string
	Kind     string
	Target   string
}

// Engines lists the configured engines followed by the built-in ones that are
// not shadowed by the configuration.
func Engines(cfg *config.File) []EngineInfo {
	var out []EngineInfo
	seen := make(map[string]bool)
	for _, e := range cfg.Engines {
		info := EngineInfo{Name: e.Name, Language: e.Language}
		switch {
		case e.Builtin != "":
			info.Kind, info.Target = "builtin", e.Builtin
		case e.Command != "":
			info.Kind, info.Target = "process", e.Command
		default:
			info.Kind, info.Target = "socketio", e.URL+e.Namespace
		}
		seen[e.Name] = true
		out = append(out, info)
	}
	if !seen[config.BuiltinLua] {
		out = append(out, EngineInfo{Name: config.BuiltinLua, Language: "Lua", Kind: "builtin", Target: config.BuiltinLua})
	}
	return out
}

// PrintEngines writes the engines and language adapters as two tables.
func PrintEngines(w io.Writer, cfg *config.File) error {
	adapters, err := buildAdapters(cfg)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENGINE\tLANGUAGE\tKIND\tTARGET")
	for _, e := range Engines(cfg) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, e.Language, e.Kind, e.Target)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "LANGUAGE\tKERNEL")
	for _, a := range adapters.Adapters() {
		fmt.Fprintf(tw, "%s\t%s\n", a.Name(), a.KernelName())
	}
	return tw.Flush()
}
