package runner

import (
	"bufio"
	"context"
	"io"
	"sync"
)

type lineResult struct {
	text string
	err  error
}

// lineReader reads lines on a goroutine so that a pending read can be
// abandoned when the context of a cell is cancelled. Lines are never lost:
// an abandoned line is delivered by the next call.
type lineReader struct {
	reader    *bufio.Reader
	lines     chan lineResult
	startOnce sync.Once
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{reader: bufio.NewReader(r)}
}

func (l *lineReader) pump() {
	defer close(l.lines)
	for {
		text, err := l.reader.ReadString('\n')
		if text != "" {
			l.lines <- lineResult{text: text}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			l.lines <- lineResult{err: err}
			return
		}
	}
}

// next returns the next line including its terminator, or io.EOF.
func (l *lineReader) next(ctx context.Context) (string, error) {
	l.startOnce.Do(func() {
		l.lines = make(chan lineResult)
		go l.pump()
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-l.lines:
		if !ok {
			return "", io.EOF
		}
		return res.text, res.err
	}
}
