// Package interp expands ${expr} templates against the Host dictionary.
//
// Templates use HCL template syntax, so expressions may index into lists and
// objects and call a small set of functions (upper, lower, join, format,
// jsonencode, length).
package interp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/lang"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Sigil opens an interpolated expression.
const Sigil = "${"

var functions = map[string]function.Function{
	"upper":      stdlib.UpperFunc,
	"lower":      stdlib.LowerFunc,
	"join":       stdlib.JoinFunc,
	"format":     stdlib.FormatFunc,
	"jsonencode": stdlib.JSONEncodeFunc,
	"length":     stdlib.LengthFunc,
}

// Contains reports whether text has anything to interpolate.
func Contains(text string) bool {
	return strings.Contains(text, Sigil)
}

// Interpolate evaluates text as a template with dict as its variables.
// Text without the sigil is returned unchanged.
func Interpolate(text string, dict domain.Dict) (string, error) {
	if !Contains(text) {
		return text, nil
	}

	expr, diags := hclsyntax.ParseTemplate([]byte(text), "cell", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return "", fmt.Errorf("parse template: %s", diags.Error())
	}

	val, diags := expr.Value(EvalContext(dict))
	if diags.HasErrors() {
		return "", fmt.Errorf("evaluate template: %s", diags.Error())
	}
	return render(val)
}

// EvalContext exposes the data values of dict as template variables.
// Keys that are not valid identifiers or hold non-data values are left out.
func EvalContext(dict domain.Dict) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(dict))
	for _, k := range sortedKeys(dict) {
		if !hclsyntax.ValidIdentifier(k) {
			continue
		}
		v, err := ToCty(dict[k])
		if err != nil {
			continue
		}
		vars[k] = v
	}
	return &hcl.EvalContext{Variables: vars, Functions: functions}
}

// ToCty converts a Host value into a cty value.
func ToCty(v any) (cty.Value, error) {
	n, err := lang.Normalize(v)
	if err != nil {
		return cty.NilVal, err
	}
	return toCty(n), nil
}

func toCty(v any) cty.Value {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case bool:
		return cty.BoolVal(x)
	case int64:
		return cty.NumberIntVal(x)
	case float64:
		return cty.NumberFloatVal(x)
	case string:
		return cty.StringVal(x)
	case []any:
		if len(x) == 0 {
			return cty.EmptyTupleVal
		}
		vals := make([]cty.Value, len(x))
		for i, item := range x {
			vals[i] = toCty(item)
		}
		return cty.TupleVal(vals)
	case map[string]any:
		if len(x) == 0 {
			return cty.EmptyObjectVal
		}
		attrs := make(map[string]cty.Value, len(x))
		for k, item := range x {
			attrs[k] = toCty(item)
		}
		return cty.ObjectVal(attrs)
	}
	return cty.NullVal(cty.DynamicPseudoType)
}

// render turns the template result into text. A template made of a single
// interpolation yields the raw value, which is printed as JSON unless it is
// a primitive.
func render(v cty.Value) (string, error) {
	if v.IsNull() {
		return "", nil
	}
	if !v.IsWhollyKnown() {
		return "", fmt.Errorf("template result is unknown")
	}
	if v.Type().IsPrimitiveType() {
		s, err := convert.Convert(v, cty.String)
		if err != nil {
			return "", err
		}
		return s.AsString(), nil
	}
	b, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func sortedKeys(d domain.Dict) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
