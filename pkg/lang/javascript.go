package lang

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

var jsReserved = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true, "continue": true,
	"debugger": true, "default": true, "delete": true, "do": true, "else": true, "export": true,
	"extends": true, "finally": true, "for": true, "function": true, "if": true, "import": true,
	"in": true, "instanceof": true, "new": true, "return": true, "super": true, "switch": true,
	"this": true, "throw": true, "try": true, "typeof": true, "var": true, "void": true,
	"while": true, "with": true, "let": true, "yield": true,
}

// JavaScript exchanges variables with a Node.js engine.
type JavaScript struct{}

// NewJavaScript creates the JavaScript adapter.
func NewJavaScript() *JavaScript { return &JavaScript{} }

func (*JavaScript) Name() string           { return "JavaScript" }
func (*JavaScript) KernelName() string     { return "javascript" }
func (*JavaScript) InitStatements() string { return "" }

// ToEngine renders `var name = <json>;`.
func (*JavaScript) ToEngine(name string, value any) (string, string, error) {
	v, err := Normalize(value)
	if err != nil {
		return "", "", err
	}
	if f, ok := v.(float64); ok && isSpecial(f) {
		return "", "", fmt.Errorf("%w: %v has no JSON representation", domain.ErrExchange, f)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrExchange, err)
	}
	newName := sanitize(name, jsIdent, '_', "_", jsReserved)
	return newName, fmt.Sprintf("var %s = %s;", newName, data), nil
}

// FromEngine prints the requested globals with JSON.stringify and decodes them.
func (*JavaScript) FromEngine(ctx context.Context, q ports.Querier, names []string, prefix string) (map[string]any, error) {
	selector := fmt.Sprintf("Object.keys(globalThis).filter(k => k.startsWith(%s))", strconv.Quote(prefix))
	if len(names) > 0 {
		selector = "[" + quoteNames(names, strconv.Quote) + "]"
	}
	code := fmt.Sprintf(
		"console.log(JSON.stringify(Object.fromEntries(%s.filter(k => typeof globalThis[k] !== 'undefined').map(k => [k, globalThis[k]]))))",
		selector)

	out, err := q.Query(ctx, code)
	if err != nil {
		return nil, err
	}
	return DecodeObject(out)
}

func jsIdent(r rune, first bool) bool {
	return cIdent(r, first) || r == '$'
}

var _ ports.Adapter = (*JavaScript)(nil)
