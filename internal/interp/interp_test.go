package interp_test

import (
	"testing"

	"github.com/aretw0/switchboard/internal/interp"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolate(t *testing.T) {
	dict := domain.Dict{
		"name":  "world",
		"n":     3,
		"items": []any{"a", "b"},
		"cfg":   map[string]any{"port": 8080},
	}

	tests := []struct {
		in   string
		want string
	}{
		{"no sigil here", "no sigil here"},
		{"hello ${name}", "hello world"},
		{"n+1 = ${n + 1}", "n+1 = 4"},
		{"${upper(name)}", "WORLD"},
		{"${join(\",\", items)}", "a,b"},
		{"port=${cfg.port}", "port=8080"},
		{"${items}", `["a","b"]`},
		{"${length(items)}", "2"},
		{"x = ${n}\nprint(x)", "x = 3\nprint(x)"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := interp.Interpolate(tt.in, dict)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterpolate_Errors(t *testing.T) {
	_, err := interp.Interpolate("${missing}", domain.Dict{})
	assert.Error(t, err)

	_, err = interp.Interpolate("${", domain.Dict{})
	assert.Error(t, err)
}

func TestEvalContext_SkipsInvalidKeys(t *testing.T) {
	ctx := interp.EvalContext(domain.Dict{"ok": 1, "1bad": 2, "fn": func() {}})
	assert.Contains(t, ctx.Variables, "ok")
	assert.NotContains(t, ctx.Variables, "1bad")
	assert.NotContains(t, ctx.Variables, "fn")
}
