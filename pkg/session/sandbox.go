package session

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/switchboard/pkg/directive"
	"github.com/aretw0/switchboard/pkg/domain"
)

// sandboxScope remembers what %sandbox changed so that exit can undo it.
type sandboxScope struct {
	s           *Session
	oldDir      string
	tempDir     string
	oldDict     domain.Dict
	swapped     bool
	expectError bool
}

func (s *Session) doSandbox(ctx context.Context, d domain.Directive) outcome {
	args, err := directive.ParseSandboxArgs(d.Args)
	if err != nil {
		return s.badArgs(ctx, err)
	}
	scope, err := s.enterSandbox(args)
	if err != nil {
		return stop(s.fail(ctx, err))
	}
	return scoped(d.Remainder, scope.exit)
}

func (s *Session) enterSandbox(args directive.SandboxArgs) (*sandboxScope, error) {
	oldDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSandbox, err)
	}
	scope := &sandboxScope{s: s, oldDir: oldDir, expectError: args.ExpectError}

	dir := expandHome(args.Dir)
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSandbox, err)
		}
	} else {
		dir, err = os.MkdirTemp("", "switchboard-sandbox-")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSandbox, err)
		}
		scope.tempDir = dir
	}

	if err := os.Chdir(dir); err != nil {
		if scope.tempDir != "" {
			_ = os.RemoveAll(scope.tempDir)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSandbox, err)
	}

	if !args.KeepDict {
		scope.oldDict = s.dict
		scope.swapped = true
		s.dict = s.initial.Clone()
	}
	s.sandboxDepth++
	s.logger.Debug("Entered sandbox", "dir", dir, "depth", s.sandboxDepth)
	return scope, nil
}

func (sc *sandboxScope) exit(ctx context.Context, res *domain.Result) {
	s := sc.s
	if sc.swapped {
		s.dict = sc.oldDict
	}
	if err := os.Chdir(sc.oldDir); err != nil {
		s.warn(ctx, fmt.Sprintf("Failed to restore working directory %s: %v", sc.oldDir, err))
	}
	if sc.tempDir != "" {
		if err := os.RemoveAll(sc.tempDir); err != nil {
			s.warn(ctx, fmt.Sprintf("Failed to remove sandbox directory %s: %v", sc.tempDir, err))
		}
	}
	s.sandboxDepth--

	if sc.expectError && res.Status == domain.StatusError {
		*res = domain.Result{Status: domain.StatusOK, ExecutionCount: res.ExecutionCount, Payload: []any{}}
	}
}
