// Package lang provides the built-in language adapters used by variable exchange.
//
// Each adapter renders Host values as literal statements of its language and
// reads values back by running a small export snippet whose output is JSON.
package lang

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// Defaults returns one instance of every built-in adapter.
func Defaults() []ports.Adapter {
	return []ports.Adapter{
		NewPython(),
		NewR(),
		NewJavaScript(),
		NewBash(),
		NewLua(),
	}
}

// Normalize converts a Go value into the JSON data model (nil, bool, int64,
// float64, string, []any, map[string]any). Values outside that model are
// rejected with domain.ErrExchange.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, int64, float64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", domain.ErrExchange, x)
		}
		return f, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case domain.Dict:
		return Normalize(map[string]any(x))
	}

	// Typed slices and maps ([]string, map[string]int...) and plain structs
	// go through a JSON round trip.
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %T: %v", domain.ErrExchange, v, err)
		}
		return DecodeJSON(data)
	}
	return nil, fmt.Errorf("%w: unsupported value of type %T", domain.ErrExchange, v)
}

// DecodeJSON decodes data keeping integers as int64.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExchange, err)
	}
	return Normalize(v)
}

// DecodeObject finds the last line of out that holds a JSON object and decodes it.
// Anything else is reported as a non-mapping reply.
func DecodeObject(out string) (map[string]any, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		v, err := DecodeJSON([]byte(line))
		if err != nil {
			return nil, err
		}
		m, ok := v.(map[string]any)
		if !ok {
			break
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: engine did not return a mapping: %q", domain.ErrExchange, strings.TrimSpace(out))
}

// sanitize replaces characters not allowed in an identifier.
func sanitize(name string, valid func(r rune, first bool) bool, repl rune, prefix string, reserved map[string]bool) string {
	var b strings.Builder
	for i, r := range name {
		if valid(r, i == 0) {
			b.WriteRune(r)
			continue
		}
		if i == 0 && valid(r, false) {
			b.WriteString(prefix)
			b.WriteRune(r)
			continue
		}
		b.WriteRune(repl)
	}
	out := b.String()
	if out == "" {
		out = prefix
	}
	if reserved[out] {
		out += "_"
	}
	return out
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// cIdent accepts [A-Za-z_][A-Za-z0-9_]*.
func cIdent(r rune, first bool) bool {
	if isASCIILetter(r) || r == '_' {
		return true
	}
	return !first && isDigit(r)
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isSpecial(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

func quoteNames(names []string, quote func(string) string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = quote(n)
	}
	return strings.Join(parts, ", ")
}

// kernelAlias runs a language in a differently named engine.
type kernelAlias struct {
	ports.Adapter
	kernel string
}

func (k kernelAlias) KernelName() string { return k.kernel }

// WithKernel returns a copy of a that runs in the engine named kernel.
func WithKernel(a ports.Adapter, kernel string) ports.Adapter {
	return kernelAlias{Adapter: a, kernel: kernel}
}

var commentMarkers = map[string]string{
	"Python3":    "#",
	"R":          "#",
	"Bash":       "#",
	"JavaScript": "//",
	"Lua":        "--",
}

// CommentMarker returns the line comment marker of a language, or "" when it
// is not known.
func CommentMarker(language string) string {
	return commentMarkers[language]
}
