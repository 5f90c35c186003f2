/*
Package ports defines the driven ports (interfaces) of switchboard.

These interfaces decouple the session and its dispatch loop from the concrete
engines, language adapters, output surfaces and storage backends.

# Key Interfaces

  - Transport: Starts engines and moves execute requests, events and replies.
  - Adapter: Converts Host values into engine statements and back.
  - OutputSink: Receives the events produced while a cell runs.
  - HostRuntime: Executes code natively against the Host dictionary.
  - DictStore: Persists Host dictionary snapshots between processes.
  - Locker: serializes snapshot writes across processes.
*/
package ports
