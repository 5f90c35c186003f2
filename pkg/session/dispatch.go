package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/switchboard/pkg/directive"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/lang"
)

// finalizer undoes the effect of a scoped directive once the rest of the cell
// has run. It may rewrite the result (%sandbox -e).
type finalizer func(ctx context.Context, res *domain.Result)

// outcome is what a directive handler asks the dispatch loop to do next:
// continue with next (pushing finalize first), or stop with result.
type outcome struct {
	next     string
	finalize finalizer
	result   *domain.Result
}

func proceed(next string) outcome {
	return outcome{next: next}
}

func scoped(next string, fin finalizer) outcome {
	return outcome{next: next, finalize: fin}
}

func stop(res domain.Result) outcome {
	return outcome{result: &res}
}

type handler func(s *Session, ctx context.Context, d domain.Directive) outcome

var handlers = map[string]handler{
	"dict":          (*Session).doDict,
	"restart":       (*Session).doRestart,
	"with":          (*Session).doWith,
	"use":           (*Session).doWith,
	"softwith":      (*Session).doSoftWith,
	"get":           (*Session).doGet,
	"put":           (*Session).doPut,
	"paste":         (*Session).doPaste,
	"run":           (*Session).doRun,
	"rerun":         (*Session).doRerun,
	"sandbox":       (*Session).doSandbox,
	"preview":       (*Session).doPreview,
	"set":           (*Session).doSet,
	"cd":            (*Session).doCd,
	directive.Shell: (*Session).doShell,
}

// dispatch peels directives off text one at a time until plain code remains,
// then runs that code in the current engine. Scoped directives push a
// finalizer; finalizers run in reverse order on every exit path, with a
// context that is no longer cancelled.
func (s *Session) dispatch(ctx context.Context, text string) (res domain.Result) {
	var finalizers []finalizer
	defer func() {
		fctx := context.WithoutCancel(ctx)
		for i := len(finalizers) - 1; i >= 0; i-- {
			finalizers[i](fctx, &res)
		}
	}()

	for {
		if ctx.Err() != nil {
			return s.interrupted(ctx)
		}

		d, ok := directive.Parse(directive.StripLeadingComments(text, s.commentMarker()))
		if !ok {
			return s.run(ctx, d.Remainder)
		}

		s.logger.Debug("Directive", "name", d.Name, "args", d.Args)
		out := handlers[d.Name](s, ctx, d)
		if out.finalize != nil {
			finalizers = append(finalizers, out.finalize)
		}
		if out.result != nil {
			return *out.result
		}
		text = out.next
	}
}

// commentMarker is the line comment marker of the current engine's language.
func (s *Session) commentMarker() string {
	if s.current == domain.HostEngine {
		return lang.CommentMarker("Lua")
	}
	if a, ok := s.adapters.Lookup(s.current); ok {
		return lang.CommentMarker(a.Name())
	}
	return ""
}

// run executes plain code in the current engine.
func (s *Session) run(ctx context.Context, code string) domain.Result {
	if s.current == domain.HostEngine {
		return s.runHost(ctx, code)
	}
	return s.runEngine(ctx, code)
}

func (s *Session) runEngine(ctx context.Context, code string) domain.Result {
	if code != "" {
		s.lastCode = code
	}
	code, ok := s.interpolate(ctx, code, false)
	s.sendCellEngine(ctx)
	if !ok || code == "" {
		return domain.OK(s.counter)
	}

	res, err := s.relay.Run(ctx, s.current, code)
	if err != nil {
		if isInterrupt(ctx, err) {
			return s.interrupted(ctx)
		}
		return s.fail(ctx, err)
	}
	return res
}

// sendCellEngine tells the frontend which engine the indexed cell ran in.
func (s *Session) sendCellEngine(ctx context.Context) {
	if s.cellIndex == nil {
		return
	}
	s.send(ctx, domain.FrontendEvent(s.cellIndex, s.current))
	s.cellIndex = nil
}

// badArgs turns an argument error into the outcome of the directive.
// A help request prints the usage and ends the cell successfully.
func (s *Session) badArgs(ctx context.Context, err error) outcome {
	var help *directive.HelpError
	if errors.As(err, &help) {
		s.stdout(ctx, fmt.Sprintf("usage: %%%s [options]\n%s", help.Directive, help.Usage))
		return stop(domain.OK(s.counter))
	}
	return stop(s.fail(ctx, err))
}
