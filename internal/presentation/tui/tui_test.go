package tui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "0.3.0\n")
	assert.Contains(t, buf.String(), "v0.3.0")
	assert.Contains(t, buf.String(), `|___/ \_/\_/`)
}

func TestRenderer(t *testing.T) {
	render := NewRenderer()
	out, err := render("# Results\n\nall **green**")
	require.NoError(t, err)
	assert.Contains(t, out, "Results")
	assert.Contains(t, out, "green")
}
