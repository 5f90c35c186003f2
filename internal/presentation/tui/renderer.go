package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const wrapWidth = 100

// NewRenderer returns a markdown renderer for cell results shown in the REPL.
// When no terminal style can be built the text is returned untouched.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return passthrough
	}
	return func(md string) (string, error) {
		if strings.TrimSpace(md) == "" {
			return md, nil
		}
		return r.Render(md)
	}
}

func passthrough(md string) (string, error) { return md, nil }
