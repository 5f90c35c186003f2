package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/switchboard"
	"github.com/aretw0/switchboard/internal/presentation/tui"
	"github.com/aretw0/switchboard/pkg/runner"
)

// Run executes cells read from stdin (or from opts.Script) until the input
// ends. Output goes to stdout; errors and stderr streams go to stderr.
func Run(ctx context.Context, opts RunOptions, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	logger := createLogger(opts.Options)
	quiet := opts.JSON || opts.Headless || opts.Script != ""

	ctx, stop := newTermContext(ctx)
	defer stop()

	var handler runner.IOHandler
	switch {
	case opts.JSON:
		handler = runner.NewJSONHandler(stdin, stdout)
	case opts.Script != "":
		src, err := os.ReadFile(opts.Script)
		if err != nil {
			return fmt.Errorf("failed to read script: %w", err)
		}
		handler = runner.NewScriptHandler(string(src), stdout, runner.WithTextHandlerErrWriter(stderr))
	default:
		textOpts := []runner.TextHandlerOption{runner.WithTextHandlerErrWriter(stderr)}
		if opts.Headless {
			textOpts = append(textOpts, runner.WithTextHandlerPrompt(false))
		} else {
			textOpts = append(textOpts, runner.WithTextHandlerRenderer(tui.NewRenderer()))
		}
		handler = runner.NewTextHandler(stdin, stdout, textOpts...)
	}

	env, err := newEnvironment(ctx, opts.Options, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := env.Close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if !quiet {
		tui.PrintBanner(stdout, switchboard.Version)
	}
	logSessionStatus(stdout, logger, opts.SessionID, env.resumed, quiet)

	r := runner.NewRunner(env.session,
		runner.WithLogger(logger),
		runner.WithHandler(handler),
		runner.WithStopOnError(opts.StopOnError || opts.Script != ""),
	)
	return r.Run(ctx)
}
