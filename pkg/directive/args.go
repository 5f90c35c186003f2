package directive

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/google/shlex"
	"github.com/spf13/pflag"
)

// HelpError is returned when a directive is invoked with -h/--help.
type HelpError struct {
	Directive string
	Usage     string
}

func (e *HelpError) Error() string {
	return fmt.Sprintf("usage: %%%s", e.Directive)
}

// DictArgs are the arguments of %dict.
type DictArgs struct {
	Vars   []string
	Keys   bool
	Reset  bool
	All    bool
	Delete []string
}

// SwitchArgs are the arguments of %with and %use.
type SwitchArgs struct {
	Kernel string
	In     []string
	Out    []string
}

// SoftWithArgs are the arguments of %softwith.
type SoftWithArgs struct {
	ListKernel    bool
	DefaultKernel string
	CellKernel    string
	Cell          string
	In            []string
	Out           []string
}

// SandboxArgs are the arguments of %sandbox.
type SandboxArgs struct {
	Dir         string
	KeepDict    bool
	ExpectError bool
}

// PreviewArgs are the arguments of %preview.
type PreviewArgs struct {
	Items []string
	Off   bool
}

// Tokenize splits an argument string with shell quoting rules.
func Tokenize(args string) ([]string, error) {
	tokens, err := shlex.Split(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	return tokens, nil
}

// ParseDictArgs parses `%dict [vars...] [-k] [-r] [-a] [-d VAR...]`.
func ParseDictArgs(args string) (DictArgs, error) {
	var out DictArgs
	fs := newFlagSet("dict")
	fs.BoolVarP(&out.Keys, "keys", "k", false, "list only the keys of the dictionary")
	fs.BoolVarP(&out.Reset, "reset", "r", false, "reset the dictionary")
	fs.BoolVarP(&out.All, "all", "a", false, "include reserved and internal variables")
	fs.StringArrayVarP(&out.Delete, "del", "d", nil, "remove the listed variables")

	rest, err := parse(fs, args, "-d", "--del")
	if err != nil {
		return out, err
	}
	out.Vars = rest
	out.Delete = compact(out.Delete)
	return out, nil
}

// ParseSwitchArgs parses `%with|%use [kernel] [-i VAR...] [-o VAR...]`.
func ParseSwitchArgs(name, args string) (SwitchArgs, error) {
	var out SwitchArgs
	fs := newFlagSet(name)
	fs.StringArrayVarP(&out.In, "in", "i", nil, "variables to send to the engine")
	fs.StringArrayVarP(&out.Out, "out", "o", nil, "variables to return to Host afterwards")

	rest, err := parse(fs, args, "-i", "--in", "-o", "--out")
	if err != nil {
		return out, err
	}
	if len(rest) > 1 {
		return out, fmt.Errorf("%w: %%%s: unrecognized arguments: %s", domain.ErrParse, name, strings.Join(rest[1:], " "))
	}
	if len(rest) == 1 {
		out.Kernel = rest[0]
	}
	out.In = compact(out.In)
	out.Out = compact(out.Out)
	return out, nil
}

// ParseSoftWithArgs parses the arguments a frontend attaches to every cell.
func ParseSoftWithArgs(args string) (SoftWithArgs, error) {
	var out SoftWithArgs
	fs := newFlagSet("softwith")
	fs.BoolVar(&out.ListKernel, "list-kernel", false, "send the list of engines to the frontend")
	fs.StringVar(&out.DefaultKernel, "default-kernel", domain.HostEngine, "engine of cells without a cell engine")
	fs.StringVar(&out.CellKernel, "cell-kernel", "", "engine of this cell")
	fs.StringVar(&out.Cell, "cell", "", "index of the cell in the frontend")
	fs.StringArrayVarP(&out.In, "in", "i", nil, "variables to send to the engine")
	fs.StringArrayVarP(&out.Out, "out", "o", nil, "variables to return to Host afterwards")

	rest, err := parse(fs, args, "-i", "--in", "-o", "--out")
	if err != nil {
		return out, err
	}
	if len(rest) > 0 {
		return out, fmt.Errorf("%w: %%softwith: unrecognized arguments: %s", domain.ErrParse, strings.Join(rest, " "))
	}
	out.In = compact(out.In)
	out.Out = compact(out.Out)
	return out, nil
}

// ParseSandboxArgs parses `%sandbox [-d DIR] [-k] [-e]`.
func ParseSandboxArgs(args string) (SandboxArgs, error) {
	var out SandboxArgs
	fs := newFlagSet("sandbox")
	fs.StringVarP(&out.Dir, "dir", "d", "", "run in DIR (created if missing, kept afterwards)")
	fs.BoolVarP(&out.KeepDict, "keep-dict", "k", false, "share the Host dictionary with the sandbox")
	fs.BoolVarP(&out.ExpectError, "expect-error", "e", false, "report an error of the cell as success")

	rest, err := parse(fs, args)
	if err != nil {
		return out, err
	}
	if len(rest) > 0 {
		return out, fmt.Errorf("%w: %%sandbox: unrecognized arguments: %s", domain.ErrParse, strings.Join(rest, " "))
	}
	return out, nil
}

// ParsePreviewArgs parses `%preview [items...] [--off]`.
func ParsePreviewArgs(args string) (PreviewArgs, error) {
	var out PreviewArgs
	fs := newFlagSet("preview")
	fs.BoolVar(&out.Off, "off", false, "do not preview the output of Host cells")

	rest, err := parse(fs, args)
	if err != nil {
		return out, err
	}
	out.Items = rest
	return out, nil
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// parse tokenizes args, lets each multi-value flag consume the values that
// follow it, and returns the positional arguments.
func parse(fs *pflag.FlagSet, args string, multi ...string) ([]string, error) {
	tokens, err := Tokenize(args)
	if err != nil {
		return nil, err
	}
	if err := fs.Parse(expandMulti(tokens, multi)); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, &HelpError{Directive: fs.Name(), Usage: fs.FlagUsages()}
		}
		return nil, fmt.Errorf("%w: %%%s: %v", domain.ErrParse, fs.Name(), err)
	}
	return fs.Args(), nil
}

// expandMulti rewrites `-i a b` into `-i a -i b`. A multi-value flag without
// values gets an empty value, removed later by compact.
func expandMulti(tokens []string, multi []string) []string {
	if len(multi) == 0 {
		return tokens
	}
	isMulti := make(map[string]bool, len(multi))
	for _, m := range multi {
		isMulti[m] = true
	}

	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !isMulti[tok] {
			out = append(out, tok)
			continue
		}
		n := 0
		for i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") {
			i++
			n++
			out = append(out, tok, tokens[i])
		}
		if n == 0 {
			out = append(out, tok, "")
		}
	}
	return out
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
