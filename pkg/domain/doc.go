/*
Package domain contains the core types shared by every layer of switchboard.

It defines what flows between the session, the engines and the outside world:
cell results, relay events, parsed directives and the error taxonomy. The package
is kept free of I/O so that ports and adapters can depend on it without cycles.

# Key Entities

  - Result: The outcome of a cell (ok, error or abort) plus its execution count.
  - Event: An output item produced by an engine or by the host (stream, display, status...).
  - Directive: A parsed `%name args` line and the text that follows it.
  - Dict: The Host dictionary, the shared variable namespace of a session.
*/
package domain
