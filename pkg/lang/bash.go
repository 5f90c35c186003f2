package lang

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// Bash exchanges variables with a bash engine. Scalars become strings, flat
// lists become indexed arrays and flat mappings associative arrays.
type Bash struct{}

// NewBash creates the Bash adapter.
func NewBash() *Bash { return &Bash{} }

func (*Bash) Name() string           { return "Bash" }
func (*Bash) KernelName() string     { return "bash" }
func (*Bash) InitStatements() string { return "" }

// ToEngine renders an assignment or a declare statement.
func (*Bash) ToEngine(name string, value any) (string, string, error) {
	v, err := Normalize(value)
	if err != nil {
		return "", "", err
	}
	newName := sanitize(name, cIdent, '_', "_", nil)

	switch x := v.(type) {
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			s, err := bashScalar(item)
			if err != nil {
				return "", "", err
			}
			parts[i] = s
		}
		return newName, fmt.Sprintf("%s=(%s)", newName, strings.Join(parts, " ")), nil
	case map[string]any:
		keys := sortedKeys(x)
		parts := make([]string, len(keys))
		for i, k := range keys {
			s, err := bashScalar(x[k])
			if err != nil {
				return "", "", err
			}
			parts[i] = fmt.Sprintf("[%s]=%s", shellQuote(k), s)
		}
		return newName, fmt.Sprintf("declare -A %s=(%s)", newName, strings.Join(parts, " ")), nil
	}

	s, err := bashScalar(v)
	if err != nil {
		return "", "", err
	}
	return newName, fmt.Sprintf("%s=%s", newName, s), nil
}

// FromEngine prints NUL separated name/value pairs and decodes them as strings.
func (*Bash) FromEngine(ctx context.Context, q ports.Querier, names []string, prefix string) (map[string]any, error) {
	list := fmt.Sprintf("$(compgen -v %s)", shellQuote(prefix))
	if len(names) > 0 {
		quoted := make([]string, len(names))
		for i, n := range names {
			quoted[i] = shellQuote(n)
		}
		list = strings.Join(quoted, " ")
	}
	code := fmt.Sprintf(
		`for __sb_v in %s; do if declare -p "$__sb_v" >/dev/null 2>&1; then printf '%%s\0%%s\0' "$__sb_v" "${!__sb_v}"; fi; done`,
		list)

	out, err := q.Query(ctx, code)
	if err != nil {
		return nil, err
	}
	return decodePairs(out)
}

func decodePairs(out string) (map[string]any, error) {
	fields := strings.Split(out, "\x00")
	if len(fields) > 0 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("%w: engine did not return name/value pairs: %q", domain.ErrExchange, out)
	}
	result := make(map[string]any, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		result[strings.TrimSpace(fields[i])] = fields[i+1]
	}
	return result, nil
}

func bashScalar(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "''", nil
	case bool:
		return strconv.FormatBool(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case string:
		return shellQuote(x), nil
	}
	return "", fmt.Errorf("%w: nested value of type %T cannot be sent to bash", domain.ErrExchange, v)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var _ ports.Adapter = (*Bash)(nil)
