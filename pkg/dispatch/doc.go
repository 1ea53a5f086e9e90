// Package dispatch implements the worker-pool orchestrator and dispatcher
// façade layered over pkg/agent/pkg/driver: given one or more mirror groups,
// it drives each group's chosen attempt through connect/query/reply, retries
// a failed attempt against the group's next mirror until its retry budget
// is spent, and reports one Result per group.
//
// AgentConnection binds a mirror.Group to the pooling/persistence options
// and index list that apply to every mirror in it. Orchestrator runs the
// sequential (single shared poller, one round across every attempt) or
// parallel (bounded worker pool, one poller per worker) execution mode.
// Dispatcher is the composition root a caller (CLI or embedding front-end)
// actually calls.
package dispatch
