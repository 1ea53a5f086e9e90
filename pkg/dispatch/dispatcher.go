package dispatch

import (
	"context"
	"time"

	"github.com/cuemby/shardha/pkg/config"
	"github.com/cuemby/shardha/pkg/dashboard"
	"github.com/cuemby/shardha/pkg/driver"
	"github.com/cuemby/shardha/pkg/mirror"
)

// OutcomeRecorder observes one billed attempt outcome, for export to an
// external metrics sink. pkg/metrics.Registry satisfies this interface.
type OutcomeRecorder interface {
	RecordOutcome(host string, outcome dashboard.Outcome, d time.Duration)
}

// SnapshotPersister durably saves dashboard state between runs.
// internal/persist.Store satisfies this interface.
type SnapshotPersister interface {
	SaveDashboard(host string, dash *dashboard.HostDashboard) error
}

// GroupSpec is the caller-supplied description of one mirror group to
// dispatch against: its parsed agent spec plus the resolved URL each
// mirror is interned under in the dashboard storage.
type GroupSpec struct {
	Mirrors []config.Address
	URLs    []string
	Options config.Options
	Indexes []string
}

// Dispatcher is the composition root: it owns the process-wide dashboard
// intern table and config, and turns a batch of GroupSpecs into billed,
// retried dispatch attempts.
type Dispatcher struct {
	Storage   *dashboard.Storage
	Config    *config.Config
	Recorder  OutcomeRecorder
	Persister SnapshotPersister
}

// NewDispatcher builds a Dispatcher over a fresh dashboard intern table.
func NewDispatcher(cfg *config.Config) *Dispatcher {
	return &Dispatcher{Storage: dashboard.NewStorage(), Config: cfg}
}

// Run dispatches one attempt per spec concurrently (opts.Workers determines
// sequential vs. parallel execution), retrying each against its group's
// next mirror until its retry budget is exhausted or it succeeds, and
// returns one Result per spec in input order.
func (d *Dispatcher) Run(ctx context.Context, specs []GroupSpec, builder driver.RequestBuilder, parser driver.ReplyParser, opts Options) ([]Result, error) {
	connections := make([]*AgentConnection, len(specs))
	attempts := make([]*attempt, len(specs))

	pingInterval := time.Duration(d.Config.PingIntervalMS) * time.Millisecond
	karma := d.Config.KarmaPeriod()

	for i, spec := range specs {
		mirrors := make([]mirror.Mirror, len(spec.Mirrors))
		for j, addr := range spec.Mirrors {
			url := spec.URLs[j]
			dash := d.Storage.Acquire(url, karma, pingInterval)
			mirrors[j] = mirror.Mirror{
				Addr:      addr,
				URL:       url,
				Dashboard: dash,
				Stats:     &dashboard.AgentStats{},
			}
		}
		group := mirror.NewGroup(mirrors, spec.Options.Strategy, spec.Options.RetryCount, karma)
		conn := NewAgentConnection(group, spec.Options, spec.Indexes, d.Config.PersistentPoolCapacity)
		connections[i] = conn
		attempts[i] = newAttempt(i, conn)
	}

	defer func() {
		for i, conn := range connections {
			conn.Shutdown()
			for _, url := range specs[i].URLs {
				d.Storage.Release(url)
			}
		}
	}()

	o := run(ctx, attempts, builder, parser, opts)
	for !o.IsDone() {
		if err := o.WaitAgentsEvent(ctx); err != nil {
			break
		}
	}

	results := make([]Result, len(attempts))
	for i, a := range attempts {
		if !a.done {
			a.failures = append(a.failures, "dispatch cancelled before completion")
			a.finish()
		}
		results[i] = a.result
		d.record(a)
	}
	return results, ctx.Err()
}

// record reports one finished attempt's final billed outcome and duration
// to the optional Recorder.
func (d *Dispatcher) record(a *attempt) {
	if d.Recorder == nil || a.conn == nil {
		return
	}
	d.Recorder.RecordOutcome(a.result.Host, a.conn.LastOutcome(), a.conn.LastDuration())
}
