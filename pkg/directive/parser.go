// Package directive splits a cell into its leading directive and the remaining text,
// and parses the arguments of each directive.
package directive

import (
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
)

// Shell is the Name of a `!cmd` shell escape.
const Shell = "!"

// Names is the fixed set of directives recognized after the `%` sigil.
var Names = []string{
	"dict", "restart", "with", "use", "softwith", "get", "put",
	"paste", "run", "rerun", "sandbox", "preview", "set", "cd",
}

var known = func() map[string]bool {
	m := make(map[string]bool, len(Names))
	for _, n := range Names {
		m[n] = true
	}
	return m
}()

// IsDirective reports whether name is a recognized directive.
func IsDirective(name string) bool {
	return known[name]
}

// Parse peels the leading directive off text.
//
// The first line must start with `%name` (name in Names, followed by whitespace
// or end of line) or with `!`. Backslash-newline continuations are folded into
// the first line. When there is no directive, the whole text is the remainder;
// blank text yields no directive and an empty remainder.
func Parse(text string) (domain.Directive, bool) {
	if strings.TrimSpace(text) == "" {
		return domain.Directive{}, false
	}

	first, rest := splitFirstLine(text)
	first = strings.ReplaceAll(first, "\\\n", "")

	switch {
	case strings.HasPrefix(first, Shell):
		return domain.Directive{
			Name:      Shell,
			Args:      strings.TrimSpace(first[len(Shell):]),
			Remainder: rest,
		}, true
	case strings.HasPrefix(first, "%"):
		name, args := cutToken(first[1:])
		if known[name] {
			return domain.Directive{Name: name, Args: args, Remainder: rest}, true
		}
	}
	return domain.Directive{Remainder: text}, false
}

// StripLeadingComments drops blank lines and lines starting with marker before
// the first line of real content. An empty marker only drops blank lines.
// Lua block comments ("--[[") are content.
func StripLeadingComments(text, marker string) string {
	for text != "" {
		line, rest, found := strings.Cut(text, "\n")
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !isComment(trimmed, marker) {
			return text
		}
		if !found {
			return ""
		}
		text = rest
	}
	return text
}

func isComment(line, marker string) bool {
	if marker == "" || !strings.HasPrefix(line, marker) {
		return false
	}
	return marker != "--" || !strings.HasPrefix(line, "--[")
}

// splitFirstLine splits at the first newline that is not escaped by a backslash.
func splitFirstLine(text string) (string, string) {
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' && (i == 0 || text[i-1] != '\\') {
			return text[:i], text[i+1:]
		}
	}
	return text, ""
}

func cutToken(line string) (string, string) {
	idx := strings.IndexAny(line, " \t\r")
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx:])
}
