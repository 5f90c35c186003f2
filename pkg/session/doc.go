/*
Package session implements the orchestrating session: the directive dispatch
loop, the engine switcher and the scoped sandbox.

A Session owns the Host dictionary, the engine registry and the process
working directory. Cells are executed one at a time; surfaces that serve
concurrent clients share a Session and are serialized by it.
*/
package session
