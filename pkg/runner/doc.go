/*
Package runner implements the read-execute-print loop of switchboard.

It is the bridge between a session and a terminal or a structured client.
Cells are read through pluggable handlers and executed one at a time; the
events a cell produces are written back through the same handler.

# Key Components

  - Runner: reads cells, executes them and re-arms Ctrl+C after each cell.
  - TextHandler: interactive text mode; a blank line ends a cell.
  - JSONHandler: NDJSON requests in, NDJSON events and results out.
  - ScriptHandler: runs a file whose cells are separated by "#%%" lines.

# Usage

	r := runner.NewRunner(sess,
		runner.WithHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)

	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}
*/
package runner
