/*
Package switchboard is a polyglot execution orchestrator: one session, many
language engines, and a Host dictionary that carries variables between them.

A session reads cells. Each cell may start with directives ("%use R",
"%get x", "%with python3 -i df", "%dict", "%cd", "!ls", ...) that switch the
current engine, move variables, or change session settings; the rest of the
cell runs in the current engine. Engines are started lazily through a
transport: in-process (the bundled Lua engine), child processes speaking
line-delimited JSON, or remote Socket.IO servers. Their output is relayed to
the caller as ordered events.

# Packages

  - pkg/session: the orchestrator (directive dispatch, switching, sandbox).
  - pkg/engine, pkg/relay, pkg/exchange: engine handles, output relay, variable exchange.
  - pkg/lang, pkg/registry: language adapters and their index.
  - pkg/host: the native Host runtime (Lua).
  - pkg/adapters/...: transports, dictionary stores and the HTTP/MCP surfaces.
  - pkg/runner: the REPL loop used by the CLI.

# Usage

	tr := memory.NewTransport(memory.WithEngine("lua", memory.NewLuaEngine))
	sess := session.New(tr)
	defer sess.Close(ctx)

	res := sess.Execute(ctx, session.Cell{Code: "sosX = 21 * 2", Sink: sink})
	res = sess.Execute(ctx, session.Cell{Code: "%use lua\nprint(sosX)", Sink: sink})

The switchboard command (cmd/switchboard) wires sessions to a configuration
file and exposes them as a REPL, an HTTP API or an MCP server.
*/
package switchboard
