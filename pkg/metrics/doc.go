/*
Package metrics exposes the dispatcher's outcome taxonomy and per-mirror
dashboard snapshots as Prometheus metrics, plus a small health-check registry
for the process's own liveness/readiness endpoints.

Unlike a process-wide exporter registering against the global
prometheus.DefaultRegisterer, Registry owns a private prometheus.Registry: a
dispatcher is a library embedded by cmd/dispatchctl and exercised directly by
tests in the same binary, and two Registry instances must not collide over
global collector names.

# Metrics

	shardha_outcomes_total{host,kind}   counter   - one increment per billed
	                                      attempt outcome (dashboard.Outcome)
	shardha_agent_avg_latency_ms{host}  gauge     - rolling average latency
	                                      from the mirror's dashboard
	shardha_agent_max_latency_ms{host}  gauge     - rolling max latency
	shardha_reply_wait_seconds{host}    histogram - wall time of each
	                                      finished attempt, successful or not

Registry.RecordOutcome implements pkg/dispatch.OutcomeRecorder directly, so a
Dispatcher can export metrics without pkg/dispatch importing this package.
Registry.RecordDashboard periodically snapshots a mirror's HostDashboard into
the latency gauges; callers drive this from their own polling loop.

# Timer

Timer is a small stopwatch helper for observing a duration into a histogram
without hand-computing it at each call site.

# Health

HealthChecker derives health directly from the domain objects this process
owns rather than from a caller-asserted name/healthy registry: RegisterDispatcher
wires the dashboard.Storage intern table ("dispatcher" reports unhealthy once
storage is nil), RegisterPersistence wires the optional internal/persist.Store
("storage" reports unhealthy once a configured store is nil or its Ping fails).
/healthz, /readyz and /livez read this state for an operator or orchestrator
probe, independent of the Prometheus registry above.
*/
package metrics
