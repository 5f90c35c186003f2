package lang

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aretw0/switchboard/pkg/ports"
)

var pythonKeywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true, "assert": true,
	"async": true, "await": true, "break": true, "class": true, "continue": true, "def": true,
	"del": true, "elif": true, "else": true, "except": true, "finally": true, "for": true,
	"from": true, "global": true, "if": true, "import": true, "in": true, "is": true,
	"lambda": true, "nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
}

// Python exchanges variables with a python3 engine.
type Python struct{}

// NewPython creates the Python adapter.
func NewPython() *Python { return &Python{} }

func (*Python) Name() string           { return "Python3" }
func (*Python) KernelName() string     { return "python3" }
func (*Python) InitStatements() string { return "" }

// ToEngine renders `name = literal`.
func (*Python) ToEngine(name string, value any) (string, string, error) {
	v, err := Normalize(value)
	if err != nil {
		return "", "", err
	}
	newName := sanitize(name, cIdent, '_', "_", pythonKeywords)
	return newName, fmt.Sprintf("%s = %s", newName, pythonLiteral(v)), nil
}

// FromEngine prints the requested globals as JSON and decodes them.
func (*Python) FromEngine(ctx context.Context, q ports.Querier, names []string, prefix string) (map[string]any, error) {
	selector := fmt.Sprintf("[__k for __k in list(globals()) if __k.startswith(%s)]", strconv.Quote(prefix))
	if len(names) > 0 {
		selector = "[" + quoteNames(names, strconv.Quote) + "]"
	}
	code := strings.Join([]string{
		"import json as __sb_json",
		"print(__sb_json.dumps({__k: globals()[__k] for __k in " + selector + " if __k in globals()}, default=repr))",
	}, "\n")

	out, err := q.Query(ctx, code)
	if err != nil {
		return nil, err
	}
	return DecodeObject(out)
}

func pythonLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		switch {
		case math.IsNaN(x):
			return "float('nan')"
		case math.IsInf(x, 1):
			return "float('inf')"
		case math.IsInf(x, -1):
			return "float('-inf')"
		}
		return formatFloat(x)
	case string:
		return strconv.Quote(x)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = pythonLiteral(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := sortedKeys(x)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ": " + pythonLiteral(x[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "None"
}

var _ ports.Adapter = (*Python)(nil)
