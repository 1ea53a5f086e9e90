/*
Package log provides structured logging for the dispatcher using zerolog.

It wraps zerolog to give every dispatcher component (poller, pool, dashboard,
mirror, agent, driver, dispatch) its own component-scoped child logger, with a
single global level/format configuration set once at process start.

	┌──────────────── LOGGING SYSTEM ────────────────┐
	│  Global Logger (zerolog.Logger, log.Init)        │
	│        │                                         │
	│        ├─ WithComponent("dashboard")             │
	│        ├─ WithHost("db1.example.com:9312")       │
	│        └─ WithAttempt(requestID, mirror)         │
	│        │                                         │
	│        ▼                                         │
	│  JSON or console output (stdout, file, …)        │
	└───────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	dashLog := log.WithComponent("dashboard")
	dashLog.Debug().Str("host", host).Msg("bucket reset")

	attemptLog := log.WithAttempt(requestID, mirrorIndex)
	attemptLog.Warn().Err(err).Msg("attempt failed, rescheduling")

Debug is reserved for per-attempt state transitions and bucket housekeeping;
Warn/Error is reserved for billed failures (§7 of the outcome taxonomy) and
retry exhaustion. Never log the agent-spec host string at Info level in a hot
loop — use Debug, or the Prometheus counters in pkg/metrics for aggregate
visibility instead.
*/
package log
