package session

import (
	"log/slog"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/metrics"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/aretw0/switchboard/pkg/preview"
	"github.com/aretw0/switchboard/pkg/registry"
)

// Option configures the Session.
type Option func(*Session)

// WithLogger configures a logger for the Session and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMetrics records cells, switches, engine starts and relays.
func WithMetrics(m *metrics.Collectors) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithAdapters sets the language adapters used for variable exchange.
func WithAdapters(adapters *registry.Registry) Option {
	return func(s *Session) {
		s.adapters = adapters
	}
}

// WithHostRuntime replaces the native runtime.
func WithHostRuntime(rt ports.HostRuntime) Option {
	return func(s *Session) {
		s.host = rt
	}
}

// WithPreviewers sets the file previewers.
func WithPreviewers(previews *preview.Registry) Option {
	return func(s *Session) {
		s.previews = previews
	}
}

// WithClipboard sets the source of %paste.
func WithClipboard(c ports.Clipboard) Option {
	return func(s *Session) {
		s.clipboard = c
	}
}

// WithSink sets the default output sink.
func WithSink(sink ports.OutputSink) Option {
	return func(s *Session) {
		s.defaultSink = sink
	}
}

// WithPersister saves the Host dictionary after every top-level cell.
func WithPersister(p Persister) Option {
	return func(s *Session) {
		s.persister = p
	}
}

// WithDict sets the initial Host dictionary. Its keys are treated as
// reserved: they are hidden by %dict and never sent by default.
func WithDict(dict domain.Dict) Option {
	return func(s *Session) {
		s.dict = dict
	}
}

// WithStartupTimeout bounds engine starts.
func WithStartupTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.startupTimeout = d
	}
}

// WithReplyTimeout bounds the reply fetch of relayed requests.
func WithReplyTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.replyTimeout = d
	}
}

// WithPollWait sets how long one event poll waits.
func WithPollWait(d time.Duration) Option {
	return func(s *Session) {
		s.pollWait = d
	}
}

// WithPrefix changes the prefix of variables exchanged by default.
func WithPrefix(prefix string) Option {
	return func(s *Session) {
		s.prefix = prefix
	}
}

// WithShell sets the command line used for shell escapes (default `sh -c`).
func WithShell(argv ...string) Option {
	return func(s *Session) {
		s.shell = argv
	}
}
