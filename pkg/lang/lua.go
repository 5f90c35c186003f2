package lang

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aretw0/switchboard/pkg/ports"
)

var luaKeywords = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true, "end": true,
	"false": true, "for": true, "function": true, "if": true, "in": true, "local": true,
	"nil": true, "not": true, "or": true, "repeat": true, "return": true, "then": true,
	"true": true, "until": true, "while": true,
}

// ExportFunction is the global the in-process Lua engine provides to print
// globals as JSON.
const ExportFunction = "__export"

// Lua exchanges variables with the in-process Lua engine.
type Lua struct{}

// NewLua creates the Lua adapter.
func NewLua() *Lua { return &Lua{} }

func (*Lua) Name() string           { return "Lua" }
func (*Lua) KernelName() string     { return "lua" }
func (*Lua) InitStatements() string { return "" }

// ToEngine renders `name = literal`.
func (*Lua) ToEngine(name string, value any) (string, string, error) {
	v, err := Normalize(value)
	if err != nil {
		return "", "", err
	}
	newName := sanitize(name, cIdent, '_', "_", luaKeywords)
	return newName, fmt.Sprintf("%s = %s", newName, luaLiteral(v)), nil
}

// FromEngine calls the engine's export function and decodes its JSON output.
func (*Lua) FromEngine(ctx context.Context, q ports.Querier, names []string, prefix string) (map[string]any, error) {
	code := fmt.Sprintf("%s({%s}, %s)", ExportFunction, quoteNames(names, LuaQuote), LuaQuote(prefix))
	out, err := q.Query(ctx, code)
	if err != nil {
		return nil, err
	}
	return DecodeObject(out)
}

func luaLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		switch {
		case math.IsNaN(x):
			return "(0/0)"
		case math.IsInf(x, 1):
			return "math.huge"
		case math.IsInf(x, -1):
			return "-math.huge"
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return LuaQuote(x)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = luaLiteral(item)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case map[string]any:
		keys := sortedKeys(x)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = "[" + LuaQuote(k) + "] = " + luaLiteral(x[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "nil"
}

// LuaQuote quotes s as a Lua 5.1 string literal.
func LuaQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&b, "\\%03d", c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

var _ ports.Adapter = (*Lua)(nil)
