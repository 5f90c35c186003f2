package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`               _ _       _     _                         _ `, "#22d3ee"},
	{` _____      __(_) |_ ___| |__ | |__   ___   __ _ _ __ __| |`, "#38bdf8"},
	{`/ __\ \ /\ / /| | __/ __| '_ \| '_ \ / _ \ / _' | '__/ _' |`, "#60a5fa"},
	{`\__ \\ V  V / | | || (__| | | | |_) | (_) | (_| | | | (_| |`, "#818cf8"},
	{`|___/ \_/\_/  |_|\__\___|_| |_|_.__/ \___/ \__,_|_|  \__,_|`, "#a78bfa"},
}

// PrintBanner writes the switchboard banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.EnvColorProfile()
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	if v := strings.TrimSpace(version); v != "" {
		fmt.Fprintln(w, termenv.String("  v"+v).Faint())
	}
	fmt.Fprintln(w)
}
