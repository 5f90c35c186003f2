package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/switchboard/pkg/config"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/lang"
	"github.com/aretw0/switchboard/pkg/metrics"
	"github.com/aretw0/switchboard/pkg/persistence"
	"github.com/aretw0/switchboard/pkg/session"
)

// environment is a session together with everything it was built from.
type environment struct {
	cfg     *config.File
	logger  *slog.Logger
	session *session.Session
	store   *persistence.Manager
	closer  io.Closer
	resumed bool
}

// newEnvironment loads the configuration and builds a session from it. When
// opts names a session, its saved dictionary is loaded and every top-level
// cell saves it back.
func newEnvironment(ctx context.Context, opts Options, logger *slog.Logger, collectors *metrics.Collectors, extra ...session.Option) (*environment, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	transport, err := buildTransport(cfg, logger)
	if err != nil {
		return nil, err
	}
	adapters, err := buildAdapters(cfg)
	if err != nil {
		return nil, err
	}

	env := &environment{cfg: cfg, logger: logger, closer: nopCloser{}}
	dict, err := parseContext(opts.Context)
	if err != nil {
		return nil, err
	}

	if opts.SessionID != "" {
		env.store, env.closer, err = openStore(cfg.Store, opts.Store, logger)
		if err != nil {
			return nil, err
		}
		if opts.Fresh {
			if err := env.store.Delete(ctx, opts.SessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
				env.closer.Close()
				return nil, fmt.Errorf("failed to reset session: %w", err)
			}
		}
		saved, err := env.store.Load(ctx, opts.SessionID)
		switch {
		case err == nil:
			env.resumed = true
			for k, v := range dict {
				saved[k] = v
			}
			dict = saved
		case !errors.Is(err, domain.ErrSessionNotFound):
			env.closer.Close()
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
	}

	sessOpts := []session.Option{
		session.WithLogger(logger),
		session.WithMetrics(collectors),
		session.WithAdapters(adapters),
		session.WithClipboard(newClipboard()),
		session.WithDict(dict),
	}
	if env.store != nil {
		sessOpts = append(sessOpts, session.WithPersister(env.store.Bind(opts.SessionID)))
	}
	if cfg.Exchange.Prefix != "" {
		sessOpts = append(sessOpts, session.WithPrefix(cfg.Exchange.Prefix))
	}
	if len(cfg.Shell) > 0 {
		sessOpts = append(sessOpts, session.WithShell(cfg.Shell...))
	}
	if cfg.Relay.StartupTimeout > 0 {
		sessOpts = append(sessOpts, session.WithStartupTimeout(cfg.Relay.StartupTimeout))
	}
	if cfg.Relay.ReplyTimeout > 0 {
		sessOpts = append(sessOpts, session.WithReplyTimeout(cfg.Relay.ReplyTimeout))
	}
	if cfg.Relay.PollWait > 0 {
		sessOpts = append(sessOpts, session.WithPollWait(cfg.Relay.PollWait))
	}
	sessOpts = append(sessOpts, extra...)

	env.session = session.New(transport, sessOpts...)
	return env, nil
}

// Close shuts the engines down and releases the store.
func (e *environment) Close(ctx context.Context) error {
	err := e.session.Close(ctx)
	if cerr := e.closer.Close(); err == nil {
		err = cerr
	}
	return err
}

// parseContext decodes a JSON object given on the command line.
func parseContext(raw string) (domain.Dict, error) {
	if raw == "" {
		return domain.Dict{}, nil
	}
	v, err := lang.DecodeJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("error parsing --context JSON: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("error parsing --context JSON: not an object")
	}
	return domain.Dict(m), nil
}
