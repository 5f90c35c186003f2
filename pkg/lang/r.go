package lang

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aretw0/switchboard/pkg/ports"
)

var rReserved = map[string]bool{
	"if": true, "else": true, "repeat": true, "while": true, "function": true, "for": true,
	"next": true, "break": true, "TRUE": true, "FALSE": true, "NULL": true, "Inf": true,
	"NaN": true, "NA": true, "in": true,
}

// R exchanges variables with an IRkernel engine. It needs jsonlite installed
// in the engine to read values back.
type R struct{}

// NewR creates the R adapter.
func NewR() *R { return &R{} }

func (*R) Name() string       { return "R" }
func (*R) KernelName() string { return "ir" }

func (*R) InitStatements() string {
	return "suppressMessages(requireNamespace('jsonlite', quietly = TRUE))"
}

// ToEngine renders `name <- literal`. Names follow make.names: invalid characters
// become dots and a leading underscore or digit gets an X prefix.
func (*R) ToEngine(name string, value any) (string, string, error) {
	v, err := Normalize(value)
	if err != nil {
		return "", "", err
	}
	newName := sanitize(name, rIdent, '.', "X", rReserved)
	return newName, fmt.Sprintf("%s <- %s", newName, rLiteral(v)), nil
}

// FromEngine prints the requested objects with jsonlite and decodes them.
func (*R) FromEngine(ctx context.Context, q ports.Querier, names []string, prefix string) (map[string]any, error) {
	selector := fmt.Sprintf("ls(envir = globalenv(), pattern = %s)", strconv.Quote("^"+prefix))
	if len(names) > 0 {
		selector = "c(" + quoteNames(names, strconv.Quote) + ")"
	}
	code := fmt.Sprintf(
		"local({ .sb.n <- %s; .sb.n <- .sb.n[sapply(.sb.n, exists, envir = globalenv())]; "+
			"cat(jsonlite::toJSON(mget(.sb.n, envir = globalenv()), auto_unbox = TRUE, null = 'null', digits = NA), '\\n') })",
		selector)

	out, err := q.Query(ctx, code)
	if err != nil {
		return nil, err
	}
	return DecodeObject(out)
}

func rIdent(r rune, first bool) bool {
	if isASCIILetter(r) || r == '.' {
		return true
	}
	return !first && (isDigit(r) || r == '_')
}

func rLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int64:
		if x > math.MaxInt32 || x < -math.MaxInt32 {
			return strconv.FormatInt(x, 10)
		}
		return strconv.FormatInt(x, 10) + "L"
	case float64:
		switch {
		case math.IsNaN(x):
			return "NaN"
		case math.IsInf(x, 1):
			return "Inf"
		case math.IsInf(x, -1):
			return "-Inf"
		}
		return formatFloat(x)
	case string:
		return strconv.Quote(x)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = rLiteral(item)
		}
		if len(x) > 0 && homogeneousScalars(x) {
			return "c(" + strings.Join(parts, ", ") + ")"
		}
		return "list(" + strings.Join(parts, ", ") + ")"
	case map[string]any:
		keys := sortedKeys(x)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = "`" + strings.ReplaceAll(k, "`", "\\`") + "` = " + rLiteral(x[k])
		}
		return "list(" + strings.Join(parts, ", ") + ")"
	}
	return "NULL"
}

// homogeneousScalars reports whether items can be an atomic vector.
func homogeneousScalars(items []any) bool {
	kind := ""
	for _, item := range items {
		var k string
		switch item.(type) {
		case bool:
			k = "logical"
		case int64, float64:
			k = "numeric"
		case string:
			k = "character"
		default:
			return false
		}
		if kind != "" && kind != k {
			return false
		}
		kind = k
	}
	return true
}

var _ ports.Adapter = (*R)(nil)
