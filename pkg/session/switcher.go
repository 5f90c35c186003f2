package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
)

// Switch makes target the current engine.
//
// in names Host variables sent to the engine on entry (together with the
// default prefixed ones); out names engine variables returned to Host when the
// session switches back. A transition between two engines always goes through
// Host. Failures are warned and leave the current engine unchanged.
func (s *Session) Switch(ctx context.Context, target string, in, out []string) {
	name := strings.TrimSpace(target)
	switch {
	case name == "":
		s.stdout(ctx, fmt.Sprintf("Engine %q is used.\n", s.current))
		return
	case name == "undefined":
		return
	}
	s.switchTo(ctx, s.resolveName(name), in, out)
}

// resolveName maps a language or engine name to the engine it runs in.
func (s *Session) resolveName(name string) string {
	if isHost(name) {
		return domain.HostEngine
	}
	return s.adapters.KernelName(name)
}

func (s *Session) switchTo(ctx context.Context, target string, in, out []string) {
	from := s.current
	switch {
	case target == from:
		if target == domain.HostEngine || (len(in) == 0 && len(out) == 0) {
			return
		}
		s.switchTo(ctx, domain.HostEngine, nil, out)
		s.switchTo(ctx, target, in, nil)

	case target == domain.HostEngine:
		s.putBack(ctx, from, mergeNames(s.retVars, out))
		s.retVars = nil
		s.setCurrent(domain.HostEngine)
		s.metrics.Switched(from, target)
		s.logger.Debug("Switched engine", "from", from, "to", target)

	case from != domain.HostEngine:
		s.switchTo(ctx, domain.HostEngine, nil, out)
		if s.current == domain.HostEngine {
			s.switchTo(ctx, target, in, nil)
		}

	default:
		h, err := s.engines.Ensure(ctx, target)
		if err != nil {
			s.warn(ctx, fmt.Sprintf("Failed to start engine %q: %v", target, err))
			return
		}
		s.setCurrent(target)
		s.retVars = out
		s.metrics.Switched(from, target)
		s.logger.Debug("Switched engine", "from", from, "to", target)

		if err := s.relay.Initialize(ctx, h); err != nil {
			s.warn(ctx, fmt.Sprintf("Failed to initialize engine %s: %v", target, err))
		}
		_ = s.exchange.Get(ctx, target, s.dict, in)
	}
}

// putBack returns variables from engine to Host. Engines without variable
// exchange are skipped unless variables were asked for explicitly.
func (s *Session) putBack(ctx context.Context, engine string, names []string) {
	if !s.exchange.Supports(engine) && len(names) == 0 {
		return
	}
	if h, ok := s.engines.Get(engine); !ok || !s.engines.IsAlive(h) {
		if len(names) > 0 {
			s.warn(ctx, fmt.Sprintf("Engine %s is not running, variables %s are not returned", engine, strings.Join(names, ", ")))
		}
		return
	}
	_ = s.exchange.Put(ctx, engine, s.dict, names)
}

func mergeNames(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, n := range list {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}
