// Package driver implements the two-phase, poller-driven query loop that
// advances a batch of agent.Conn attempts from Connecting through to a
// parsed reply: QueryAgents drives connect/handshake/send-request, and
// WaitForAgents drives reply-header/body accumulation and final status
// translation. Both phases share one deadline and one caller-owned
// poller.Poller; pkg/dispatch is the one that decides how many of each to
// run concurrently.
package driver
