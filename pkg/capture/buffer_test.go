package capture_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/aretw0/switchboard/pkg/capture"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbered(prefix string, from, to int) string {
	var b strings.Builder
	for i := from; i < to; i++ {
		fmt.Fprintf(&b, "%s%d\n", prefix, i)
	}
	return b.String()
}

func TestBuffer_ShortOutputIsVerbatim(t *testing.T) {
	ctx := context.Background()
	rec := sink.NewCollector()
	buf := capture.New(domain.StreamStdout, rec)

	content := numbered("line", 0, 50)
	for _, line := range strings.SplitAfter(content, "\n") {
		_, _ = buf.WriteString(line)
	}

	text, err := buf.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, content, text)

	text, err = buf.Flush(ctx)
	require.NoError(t, err)
	assert.Empty(t, text)

	events := rec.Events()
	require.Len(t, events, 1, "second flush must not emit")
	assert.Equal(t, domain.EventStream, events[0].Kind)
	assert.Equal(t, domain.StreamStdout, events[0].Name)
	assert.Equal(t, content, events[0].Text)
}

func TestBuffer_RunawayOutputIsElided(t *testing.T) {
	buf := capture.New(domain.StreamStdout, nil)
	for i := 0; i < 1500; i++ {
		_, _ = buf.WriteString("x\n")
	}
	assert.Equal(t, 1500, buf.Lines())

	text, err := buf.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x\n", 180)+"-- 1320 more lines --\n", text)
	assert.Equal(t, 0, buf.Lines())
}

func TestBuffer_MediumOutputKeepsHeadAndTail(t *testing.T) {
	buf := capture.New(domain.StreamStdout, nil)
	_, _ = fmt.Fprint(buf, numbered("line", 0, 300))

	text, err := buf.Flush(context.Background())
	require.NoError(t, err)

	want := strings.TrimSuffix(numbered("line", 0, 180), "\n") +
		"\n-- 110 lines --\n" +
		numbered("line", 291, 300)
	assert.Equal(t, want, text)
}

func TestBuffer_WriteCrossingLimitKeepsChunkHead(t *testing.T) {
	buf := capture.New(domain.StreamStderr, nil)
	_, _ = buf.WriteString(numbered("a", 0, 990))
	_, _ = buf.WriteString(numbered("b", 0, 500))
	assert.Equal(t, 1490, buf.Lines())

	_, _ = buf.WriteString("dropped\n")
	assert.Equal(t, 1491, buf.Lines())

	text, err := buf.Flush(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(text, "\n-- 1311 more lines --\n"), text)
	assert.NotContains(t, text, "dropped")
}

func TestBuffer_BlankOutputIsNotForwarded(t *testing.T) {
	rec := sink.NewCollector()
	buf := capture.New(domain.StreamStdout, rec)
	_, _ = buf.WriteString("  \n\n")

	text, err := buf.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "  \n\n", text)
	assert.Empty(t, rec.Events())
}
