// Package agent implements the per-attempt connection state machine: one
// Conn per (mirror, dispatch attempt), driven through Unused -> Connecting
// -> Handshake -> Established -> Queried -> Prereply -> Reply by pkg/driver
// as the readiness poller reports socket events.
//
// Conn owns the wire framing (handshake version exchange, optional
// command-persist prelude, request send, reply header/body read) and the
// failure-attribution plumbing: every Fail call bills the right dashboard
// outcome and, for persistent connections, decides whether the underlying
// descriptor is worth keeping or must be closed. pkg/agent never touches a
// poller directly — it exposes plain methods that return what happened, and
// pkg/driver is the one registering/re-registering file descriptors.
package agent
