// Package capture accumulates stream output with a bounded memory footprint.
package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

const (
	// MaxLines is the line count after which writes are dropped.
	MaxLines = 1000
	// ChunkLines is how much of a write crossing MaxLines is kept.
	ChunkLines = 200
	// HeadLines and TailLines shape the elided output of a flush.
	HeadLines = 180
	TailLines = 10
)

// Buffer collects the output of one stream (stdout or stderr) and forwards it
// to a sink on Flush. Long output is elided so that a runaway loop cannot grow
// the buffer without limit.
type Buffer struct {
	mu    sync.Mutex
	name  string
	sink  ports.OutputSink
	buf   strings.Builder
	lines int
}

// New creates a buffer for the named stream. sink may be nil.
func New(name string, sink ports.OutputSink) *Buffer {
	return &Buffer{name: name, sink: sink}
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	return b.WriteString(string(p))
}

// WriteString accumulates content. Once more than MaxLines lines were counted,
// content is dropped; a write that crosses the limit keeps its first ChunkLines lines.
// Lines are counted even when their content is dropped, so that flush can report them.
func (b *Buffer) WriteString(content string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := strings.Count(content, "\n")
	switch {
	case b.lines > MaxLines:
	case b.lines+n > MaxLines:
		parts := strings.Split(content, "\n")
		if len(parts) > ChunkLines {
			parts = parts[:ChunkLines]
		}
		b.buf.WriteString(strings.Join(parts, "\n"))
	default:
		b.buf.WriteString(content)
	}
	b.lines += n
	return len(content), nil
}

// Lines returns the number of lines counted since the last flush.
func (b *Buffer) Lines() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lines
}

// Flush returns the (possibly elided) content and resets the buffer.
// The content is sent to the sink as a stream event unless it is blank.
func (b *Buffer) Flush(ctx context.Context) (string, error) {
	b.mu.Lock()
	text := b.render()
	b.buf.Reset()
	b.lines = 0
	b.mu.Unlock()

	if strings.TrimSpace(text) == "" || b.sink == nil {
		return text, nil
	}
	return text, b.sink.Send(ctx, domain.StreamEvent(b.name, text))
}

func (b *Buffer) render() string {
	content := b.buf.String()
	switch {
	case b.lines > MaxLines:
		lines := strings.Split(content, "\n")
		return strings.Join(head(lines), "\n") +
			fmt.Sprintf("\n-- %d more lines --\n", b.lines-HeadLines)
	case b.lines > ChunkLines:
		lines := strings.Split(content, "\n")
		return strings.Join(head(lines), "\n") +
			fmt.Sprintf("\n-- %d lines --\n", b.lines-HeadLines-TailLines) +
			strings.Join(tail(lines), "\n")
	default:
		return content
	}
}

func head(lines []string) []string {
	if len(lines) > HeadLines {
		return lines[:HeadLines]
	}
	return lines
}

func tail(lines []string) []string {
	if len(lines) > TailLines {
		return lines[len(lines)-TailLines:]
	}
	return lines
}
