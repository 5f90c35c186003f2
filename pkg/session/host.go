package session

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/switchboard/pkg/capture"
	"github.com/aretw0/switchboard/pkg/directive"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/host"
	"github.com/aretw0/switchboard/pkg/lang"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/aretw0/switchboard/pkg/preview"
)

// Reserved Host variables through which a cell names the files it reads and writes.
const (
	InputKey  = "input"
	OutputKey = "output"
)

// runHost executes code natively against the Host dictionary.
func (s *Session) runHost(ctx context.Context, code string) domain.Result {
	defer func() {
		delete(s.dict, InputKey)
		delete(s.dict, OutputKey)
	}()

	if code == "" {
		s.sendCellEngine(ctx)
		return domain.OK(s.counter)
	}
	s.lastCode = code

	args, err := directive.Tokenize(s.options)
	if err != nil {
		return s.fail(ctx, err)
	}

	out := ports.SinkFunc(s.send)
	stdout := capture.New(domain.StreamStdout, out)
	stderr := capture.New(domain.StreamStderr, out)
	value, err := s.host.Exec(ctx, code, s.dict, args, stdout, stderr)

	fctx := context.WithoutCancel(ctx)
	stdout.Flush(fctx)
	stderr.Flush(fctx)
	if err != nil {
		if isInterrupt(ctx, err) {
			return s.interrupted(ctx)
		}
		return s.fail(fctx, err)
	}

	s.result(ctx, value)
	s.sendCellEngine(ctx)
	if s.previewEnabled && !s.silent {
		s.previewOutput(ctx)
	}
	return domain.OK(s.counter)
}

// previewOutput previews the files a Host cell listed in its output variable.
func (s *Session) previewOutput(ctx context.Context) {
	var files []string
	switch v := s.dict[OutputKey].(type) {
	case string:
		files = []string{v}
	case []any:
		for _, item := range v {
			if f, ok := item.(string); ok {
				files = append(files, f)
			}
		}
	}
	for _, f := range files {
		if isFile(f) {
			s.previewFile(ctx, f)
		}
	}
}

// previewItems implements the effect of %preview once the rest of the cell ran.
func (s *Session) previewItems(ctx context.Context, raw string) {
	options, ok := s.interpolate(ctx, raw, true)
	if !ok {
		return
	}
	args, err := directive.ParsePreviewArgs(options)
	if err != nil {
		s.warn(ctx, err.Error())
		return
	}
	if len(args.Items) == 0 || args.Off {
		return
	}

	s.send(ctx, domain.DisplayEvent(map[string]any{
		domain.MIMEText:     "## %preview " + options + "\n",
		domain.MIMEMarkdown: "`## %preview " + options + "`",
	}))
	for _, item := range args.Items {
		if isFile(item) {
			s.previewFile(ctx, item)
			continue
		}
		s.previewValue(ctx, item)
	}
}

func (s *Session) previewFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		s.warn(ctx, fmt.Sprintf("\n> %s does not exist", path))
		return
	}
	s.send(ctx, domain.DisplayEvent(map[string]any{
		domain.MIMEText: fmt.Sprintf("\n> %s (%s):\n", path, preview.PrettySize(info.Size())),
	}))

	content, err := s.previews.Preview(ctx, path)
	switch {
	case err != nil:
		s.warn(ctx, fmt.Sprintf("Failed to preview %s: %v", path, err))
	case len(content.Data) > 0:
		s.send(ctx, domain.DisplayEvent(content.Data))
	case content.Text != "":
		s.stdout(ctx, content.Text)
	}
}

// previewValue shows a Host variable or expression.
func (s *Session) previewValue(ctx context.Context, item string) {
	v, err := s.host.Eval(ctx, item, s.dict)
	if err != nil {
		s.warn(ctx, fmt.Sprintf("\n> Failed to preview file or expression %s", item))
		return
	}
	s.send(ctx, domain.DisplayEvent(map[string]any{domain.MIMEText: ">>> " + item + ":\n"}))

	data := map[string]any{domain.MIMEText: host.Format(v)}
	if n, err := lang.Normalize(v); err == nil {
		data[domain.MIMEJSON] = n
	}
	count := s.counter
	s.send(ctx, domain.Event{Kind: domain.EventDisplay, Data: data, ExecutionCount: &count})
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
