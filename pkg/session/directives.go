package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/switchboard/internal/interp"
	"github.com/aretw0/switchboard/pkg/capture"
	"github.com/aretw0/switchboard/pkg/directive"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/host"
	"github.com/aretw0/switchboard/pkg/lang"
	"github.com/aretw0/switchboard/pkg/ports"
)

func (s *Session) doDict(ctx context.Context, d domain.Directive) outcome {
	args, err := directive.ParseDictArgs(d.Args)
	if err != nil {
		return s.badArgs(ctx, err)
	}
	for _, name := range args.Vars {
		if _, ok := s.dict[name]; !ok {
			s.warn(ctx, fmt.Sprintf("Unrecognized dict option or variable name %s", name))
			return proceed(d.Remainder)
		}
	}

	switch {
	case args.Reset:
		s.dict = s.initial.Clone()
	case len(args.Delete) > 0:
		for _, name := range args.Delete {
			delete(s.dict, name)
		}
	case args.Keys:
		keys := make([]any, 0, len(s.dict))
		for _, k := range s.visibleKeys(args) {
			keys = append(keys, k)
		}
		s.result(ctx, keys)
	default:
		s.showDict(ctx, s.visibleKeys(args))
	}
	return proceed(d.Remainder)
}

// visibleKeys selects the keys %dict shows: the named ones, all of them with
// -a, or the user variables otherwise.
func (s *Session) visibleKeys(args directive.DictArgs) []string {
	if len(args.Vars) > 0 {
		keys := append([]string(nil), args.Vars...)
		sort.Strings(keys)
		return keys
	}
	keys := make([]string, 0, len(s.dict))
	for k := range s.dict {
		if args.All || (!s.originalKeys[k] && !strings.HasPrefix(k, "__")) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (s *Session) showDict(ctx context.Context, keys []string) {
	if s.silent {
		return
	}
	shown := make(map[string]any, len(keys))
	data := make(map[string]any, len(keys))
	for _, k := range keys {
		shown[k] = s.dict[k]
		if n, err := lang.Normalize(s.dict[k]); err == nil {
			data[k] = n
		}
	}
	count := s.counter
	s.send(ctx, domain.Event{
		Kind:           domain.EventResult,
		Data:           map[string]any{domain.MIMEText: host.FormatDict(shown), domain.MIMEJSON: data},
		ExecutionCount: &count,
	})
}

func (s *Session) doRestart(ctx context.Context, d domain.Directive) outcome {
	name := strings.TrimSpace(d.Args)
	switch {
	case name == "":
		names := append([]string{domain.HostEngine}, s.engines.Names()...)
		s.stdout(ctx, fmt.Sprintf("Specify one of the engines to restart: %s\n", strings.Join(names, ", ")))
	case isHost(name):
		s.warn(ctx, "Cannot restart Host from within the session.")
	default:
		kernel := s.adapters.KernelName(name)
		_, existed := s.engines.Get(kernel)
		h, err := s.engines.Restart(ctx, kernel)
		if err != nil {
			s.stdout(ctx, fmt.Sprintf("Failed to start engine %q: %v\n", kernel, err))
			break
		}
		if kernel == s.current {
			if err := s.relay.Initialize(ctx, h); err != nil {
				s.warn(ctx, fmt.Sprintf("Failed to initialize engine %s: %v", kernel, err))
			}
		}
		verb := "started"
		if existed {
			verb = "restarted"
		}
		s.stdout(ctx, fmt.Sprintf("Engine %s %s\n", kernel, verb))
	}
	return proceed(d.Remainder)
}

// doWith handles %with (switch for the rest of the cell) and %use (switch for good).
func (s *Session) doWith(ctx context.Context, d domain.Directive) outcome {
	args, err := directive.ParseSwitchArgs(d.Name, d.Args)
	if err != nil {
		return s.badArgs(ctx, err)
	}
	original := s.current
	s.Switch(ctx, args.Kernel, args.In, args.Out)
	if d.Name == "use" {
		s.hardSwitch = true
		return proceed(d.Remainder)
	}
	return scoped(d.Remainder, func(ctx context.Context, _ *domain.Result) {
		s.Switch(ctx, original, nil, nil)
	})
}

func (s *Session) doSoftWith(ctx context.Context, d domain.Directive) outcome {
	args, err := directive.ParseSoftWithArgs(d.Args)
	if err != nil {
		return s.badArgs(ctx, err)
	}
	if args.Cell != "" {
		cell := args.Cell
		s.cellIndex = &cell
	}
	if args.ListKernel {
		s.send(ctx, domain.Event{Kind: domain.EventFrontend, Data: map[string]any{"kernels": s.Kernels()}})
	}

	if s.resolveName(args.DefaultKernel) != s.current {
		s.Switch(ctx, args.DefaultKernel, nil, nil)
	}
	cellKernel := args.CellKernel
	if cellKernel == "" || cellKernel == "undefined" {
		cellKernel = args.DefaultKernel
	}

	original := s.current
	if s.resolveName(cellKernel) != s.current {
		s.Switch(ctx, cellKernel, args.In, args.Out)
	}
	return scoped(d.Remainder, func(ctx context.Context, _ *domain.Result) {
		if !s.hardSwitch {
			s.Switch(ctx, original, nil, nil)
		}
	})
}

func (s *Session) doGet(ctx context.Context, d domain.Directive) outcome {
	names, err := directive.Tokenize(d.Args)
	if err != nil {
		return s.badArgs(ctx, err)
	}
	if s.current == domain.HostEngine {
		s.warn(ctx, "%get can only be executed by engines")
		return proceed(d.Remainder)
	}
	_ = s.exchange.Get(ctx, s.current, s.dict, names)
	return proceed(d.Remainder)
}

func (s *Session) doPut(ctx context.Context, d domain.Directive) outcome {
	names, err := directive.Tokenize(d.Args)
	if err != nil {
		return s.badArgs(ctx, err)
	}
	if s.current == domain.HostEngine {
		s.warn(ctx, "%put can only be executed by engines")
		return proceed(d.Remainder)
	}
	_ = s.exchange.Put(ctx, s.current, s.dict, names)
	return proceed(d.Remainder)
}

func (s *Session) doPaste(ctx context.Context, d domain.Directive) outcome {
	if s.clipboard == nil {
		return stop(s.fail(ctx, fmt.Errorf("%w: no clipboard available", domain.ErrClipboardEmpty)))
	}
	text, err := s.clipboard.Read(ctx)
	switch {
	case errors.Is(err, domain.ErrClipboardEmpty):
		return stop(s.fail(ctx, err))
	case err != nil:
		s.warn(ctx, fmt.Sprintf("Could not get text from the clipboard: %v", err))
		return stop(domain.OK(s.counter))
	case strings.TrimSpace(text) == "":
		return stop(s.fail(ctx, domain.ErrClipboardEmpty))
	}
	s.ignoreRemainder(ctx, d)

	restore := s.prefixOptions(d.Args)
	s.stdout(ctx, strings.TrimSpace(text)+"\n## -- End pasted text --\n")
	return scoped(text, restore)
}

func (s *Session) doRun(_ context.Context, d domain.Directive) outcome {
	return scoped(d.Remainder, s.prefixOptions(d.Args))
}

func (s *Session) doRerun(ctx context.Context, d domain.Directive) outcome {
	s.ignoreRemainder(ctx, d)
	restore := s.prefixOptions(d.Args)
	if s.lastCode == "" {
		s.warn(ctx, "No saved script")
	}
	return scoped(s.lastCode, restore)
}

// prefixOptions puts args in front of the session options until the returned
// finalizer runs.
func (s *Session) prefixOptions(args string) finalizer {
	old := s.options
	s.setOptions(strings.TrimSpace(strings.TrimSpace(args) + " " + old))
	return func(context.Context, *domain.Result) {
		s.setOptions(old)
	}
}

func (s *Session) ignoreRemainder(ctx context.Context, d domain.Directive) {
	if rest := strings.TrimSpace(d.Remainder); rest != "" {
		s.warn(ctx, fmt.Sprintf("Statement %s ignored", shortRepr(rest)))
	}
}

func (s *Session) doSet(ctx context.Context, d domain.Directive) outcome {
	opts := strings.TrimSpace(d.Args)
	switch {
	case opts != "" && !strings.HasPrefix(opts, "-"):
		s.warn(ctx, fmt.Sprintf("%%set cannot set positional argument, %s provided.", opts))
	case opts != "":
		s.setOptions(opts)
		s.stdout(ctx, fmt.Sprintf("Options set to %q\n", s.options))
	case s.options != "":
		s.stdout(ctx, fmt.Sprintf("Options %q reset to \"\"\n", s.options))
		s.setOptions("")
	default:
		s.stdout(ctx, "Usage: %set sets persistent options passed to Host cells, such as -v 3\n")
	}
	return proceed(d.Remainder)
}

func (s *Session) doCd(ctx context.Context, d domain.Directive) outcome {
	target, ok := s.interpolate(ctx, d.Args, true)
	if !ok {
		return proceed(d.Remainder)
	}
	dir := expandHome(strings.TrimSpace(target))
	if err := os.Chdir(dir); err != nil {
		s.warn(ctx, fmt.Sprintf("Failed to change dir to %s: %v", dir, err))
		return proceed(d.Remainder)
	}
	if wd, err := os.Getwd(); err == nil {
		s.stdout(ctx, wd+"\n")
	}
	return proceed(d.Remainder)
}

// doShell runs `!cmd` through the configured shell; its output goes through
// the same bounded buffers as Host output.
func (s *Session) doShell(ctx context.Context, d domain.Directive) outcome {
	cmdline, ok := s.interpolate(ctx, d.Args, false)
	if !ok || strings.TrimSpace(cmdline) == "" {
		return proceed(d.Remainder)
	}

	out := ports.SinkFunc(s.send)
	stdout := capture.New(domain.StreamStdout, out)
	stderr := capture.New(domain.StreamStderr, out)

	argv := append(append([]string(nil), s.shell[1:]...), cmdline)
	cmd := exec.CommandContext(ctx, s.shell[0], argv...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()

	fctx := context.WithoutCancel(ctx)
	stdout.Flush(fctx)
	stderr.Flush(fctx)

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		s.stdout(fctx, err.Error()+"\n")
	}
	return proceed(d.Remainder)
}

// interpolate expands ${...} in text. Unless quiet, a changed text is echoed.
// ok is false when expansion failed; the failure has been warned.
func (s *Session) interpolate(ctx context.Context, text string, quiet bool) (string, bool) {
	out, err := interp.Interpolate(text, s.dict)
	if err != nil {
		s.warn(ctx, fmt.Sprintf("Failed to interpolate %s: %v", shortRepr(text), err))
		return "", false
	}
	if out != text && !quiet {
		s.stdout(ctx, strings.TrimSpace(out)+"\n## -- End interpolated command --\n")
	}
	return out, true
}

func isHost(name string) bool {
	return strings.EqualFold(name, domain.HostEngine) || strings.EqualFold(name, "sos")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func shortRepr(text string) string {
	const limit = 40
	text = strings.ReplaceAll(text, "\n", " ")
	if len(text) <= limit {
		return text
	}
	return text[:limit-3] + "..."
}

func (s *Session) doPreview(ctx context.Context, d domain.Directive) outcome {
	args, err := directive.ParsePreviewArgs(d.Args)
	if err != nil {
		return s.badArgs(ctx, err)
	}
	if args.Off {
		s.previewEnabled = false
		return proceed(d.Remainder)
	}
	s.previewEnabled = true
	raw := d.Args
	return scoped(d.Remainder, func(ctx context.Context, _ *domain.Result) {
		s.previewItems(ctx, raw)
	})
}
