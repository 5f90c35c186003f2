package directive_test

import (
	"testing"

	"github.com/aretw0/switchboard/pkg/directive"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		found bool
		want  domain.Directive
	}{
		{
			name:  "directive with remainder",
			text:  "%get x y\nprint(x)",
			found: true,
			want:  domain.Directive{Name: "get", Args: "x y", Remainder: "print(x)"},
		},
		{
			name:  "plain code",
			text:  "print(1)",
			found: false,
			want:  domain.Directive{Remainder: "print(1)"},
		},
		{
			name:  "empty text",
			text:  "",
			found: false,
			want:  domain.Directive{},
		},
		{
			name:  "whitespace only",
			text:  " \n\t\n",
			found: false,
			want:  domain.Directive{},
		},
		{
			name:  "continuation folded into first line",
			text:  "%get a \\\nb\nrest",
			found: true,
			want:  domain.Directive{Name: "get", Args: "a b", Remainder: "rest"},
		},
		{
			name:  "directive without arguments",
			text:  "%rerun",
			found: true,
			want:  domain.Directive{Name: "rerun"},
		},
		{
			name:  "unknown name is code",
			text:  "%matplotlib inline\nplot()",
			found: false,
			want:  domain.Directive{Remainder: "%matplotlib inline\nplot()"},
		},
		{
			name:  "name must be followed by whitespace",
			text:  "%getx 1",
			found: false,
			want:  domain.Directive{Remainder: "%getx 1"},
		},
		{
			name:  "shell escape",
			text:  "!ls -l\n%use R",
			found: true,
			want:  domain.Directive{Name: directive.Shell, Args: "ls -l", Remainder: "%use R"},
		},
		{
			name:  "nested directives keep the rest verbatim",
			text:  "%sandbox -e\n%with R\nstop()",
			found: true,
			want:  domain.Directive{Name: "sandbox", Args: "-e", Remainder: "%with R\nstop()"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := directive.Parse(tt.text)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripLeadingComments(t *testing.T) {
	assert.Equal(t, "%use R\n# kept", directive.StripLeadingComments("# title\n\n  # note\n%use R\n# kept", "#"))
	assert.Equal(t, "", directive.StripLeadingComments("# only\n# comments", "#"))
	assert.Equal(t, "x = 1", directive.StripLeadingComments("x = 1", "#"))

	// Lua: # is the length operator, -- starts a comment.
	assert.Equal(t, "#items", directive.StripLeadingComments("#items", "--"))
	assert.Equal(t, "%set -v", directive.StripLeadingComments("-- note\n%set -v", "--"))
	assert.Equal(t, "--[[ block\n]] x = 1", directive.StripLeadingComments("--[[ block\n]] x = 1", "--"))

	// Unknown languages only lose blank lines.
	assert.Equal(t, "# kept", directive.StripLeadingComments("\n\n# kept", ""))
}

func TestIsDirective(t *testing.T) {
	for _, name := range directive.Names {
		assert.True(t, directive.IsDirective(name), name)
	}
	assert.False(t, directive.IsDirective("matplotlib"))
}
