// Package dashboard tracks per-host health statistics for the mirror
// selection strategies in pkg/mirror and the billing counters exported by
// pkg/metrics.
//
// A HostDashboard holds a fixed ring of 15 time-bucketed AgentDash
// snapshots, one per karma period (default 60s); the permanent AgentStats
// counter block that never rolls off is held by each mirror, not by the
// dashboard. Storage interns one HostDashboard per canonical host URL with
// simple reference counting, so every mirror group referencing the same
// physical host shares one dashboard; selection weights stay per group.
package dashboard
