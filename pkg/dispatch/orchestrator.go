package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/shardha/pkg/agent"
	"github.com/cuemby/shardha/pkg/driver"
	"github.com/cuemby/shardha/pkg/log"
	"github.com/cuemby/shardha/pkg/poller"
)

var orchLog = log.WithComponent("dispatch")

// Options controls one orchestrator run.
type Options struct {
	Workers    int           // 1 = sequential mode, >1 = parallel worker pool
	Timeout    time.Duration // per-round deadline passed to driver.QueryAgents/WaitForAgents
	RetryDelay time.Duration // sleep before an attempt is retried against its next mirror
}

// Orchestrator tracks completion of a batch of attempts, exposing both a
// polling API (IsDone/HasReadyAgents) and a blocking one (WaitAgentsEvent)
// — the idiomatic Go equivalent of the reference design's atomic
// agents-done counter plus completion event.
type Orchestrator struct {
	mu        sync.Mutex
	cond      *sync.Cond
	total     int
	completed int
	gen       uint64
}

func newOrchestrator(total int) *Orchestrator {
	o := &Orchestrator{total: total}
	o.cond = sync.NewCond(&o.mu)
	return o
}

func (o *Orchestrator) markDone(n int) {
	o.mu.Lock()
	o.completed += n
	o.gen++
	o.cond.Broadcast()
	o.mu.Unlock()
}

// IsDone reports whether every attempt in this run has reached a terminal
// state.
func (o *Orchestrator) IsDone() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed >= o.total
}

// HasReadyAgents reports whether at least one attempt has completed since
// the run started, without the run as a whole being done yet.
func (o *Orchestrator) HasReadyAgents() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed > 0 && o.completed < o.total
}

// WaitAgentsEvent blocks until either another attempt completes, the run
// finishes, or ctx is cancelled.
func (o *Orchestrator) WaitAgentsEvent(ctx context.Context) error {
	o.mu.Lock()
	gen := o.gen
	finished := o.completed >= o.total
	o.mu.Unlock()
	if finished {
		return nil
	}

	woken := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(woken)
		o.mu.Lock()
		for o.gen == gen && o.completed < o.total {
			select {
			case <-stopped:
				o.mu.Unlock()
				return
			default:
			}
			o.cond.Wait()
		}
		o.mu.Unlock()
	}()

	select {
	case <-woken:
		return nil
	case <-ctx.Done():
		close(stopped)
		o.mu.Lock()
		o.cond.Broadcast()
		o.mu.Unlock()
		return ctx.Err()
	}
}

// run drives attempts to completion per opts, blocking until every attempt
// is done or ctx is cancelled, and returns the orchestrator the caller can
// still poll/wait on (completed == total on a clean return).
func run(ctx context.Context, attempts []*attempt, builder driver.RequestBuilder, parser driver.ReplyParser, opts Options) *Orchestrator {
	o := newOrchestrator(len(attempts))
	if len(attempts) == 0 {
		return o
	}
	if opts.Workers <= 1 {
		runSequential(ctx, o, attempts, builder, parser, opts)
	} else {
		runParallel(ctx, o, attempts, builder, parser, opts)
	}
	return o
}

// runSequential drives every attempt together under one shared poller, one
// round at a time: connect whatever is Unused/Retry, run phase 1 and phase
// 2 over the whole batch, then sleep once for every attempt still needing
// a retry before looping — ported from the reference design's
// ThdWorkSequental.
func runSequential(ctx context.Context, o *Orchestrator, attempts []*attempt, builder driver.RequestBuilder, parser driver.ReplyParser, opts Options) {
	p, err := poller.New()
	if err != nil {
		orchLog.Error().Err(err).Msg("sequential worker: poller init failed")
		for _, a := range attempts {
			a.failures = append(a.failures, "poller init failed: "+err.Error())
			a.finish()
			o.markDone(1)
		}
		return
	}
	defer p.Close()

	pending := attempts
	for len(pending) > 0 {
		if ctx.Err() != nil {
			for _, a := range pending {
				a.failures = append(a.failures, ctx.Err().Error())
				a.finish()
				o.markDone(1)
			}
			return
		}

		conns := make([]*agent.Conn, 0, len(pending))
		for _, a := range pending {
			c := a.newConn()
			c.FailFromError(c.Connect())
			if !c.State().IsNonQuery() {
				conns = append(conns, c)
			}
		}

		if len(conns) > 0 {
			driver.QueryAgents(p, conns, opts.Timeout, builder)
			driver.WaitForAgents(p, conns, opts.Timeout, parser)
		}

		var retrying []*attempt
		for _, a := range pending {
			if a.conn.Success() {
				a.finish()
				o.markDone(1)
				continue
			}
			if a.recordFailure() {
				a.advanceMirror()
				retrying = append(retrying, a)
				continue
			}
			a.finish()
			o.markDone(1)
		}

		pending = retrying
		if len(pending) > 0 {
			select {
			case <-time.After(opts.RetryDelay):
			case <-ctx.Done():
			}
		}
	}
}

// runParallel drives attempts through a bounded pool of phase1Workers that
// only connect and run phase 1 (QueryAgents), handing each attempt off once
// it leaves phase 1 to a single phase2Consumer that batches phase 2
// (WaitForAgents) over every attempt that has reached Queried so far. This
// mirrors the reference design: ThdWorkParallel/ThdWorkSequental call only
// RemoteConnectToAgent/RemoteQueryAgents, never RemoteWaitForAgents — that
// is invoked exactly once, collectively, by the external caller over the
// whole AgentsVector, "may work in parallel with RemoteQueryAgents". A
// worker occupying its pool slot for a whole connect+send+await-reply round
// trip would let a slow repliers throttle how many new connections can be
// opened while `opts.Workers < len(attempts)`; splitting the phases keeps a
// worker free to start the next attempt's connect as soon as its own
// request is sent.
//
// A transiently failed attempt (in either phase) is rescheduled onto the
// shared queue with a future wake time rather than retried inline. The
// worker that next picks it up blocks until that wake time before
// connecting, so while it waits out the retry delay it does not start any
// other attempt.
func runParallel(ctx context.Context, o *Orchestrator, attempts []*attempt, builder driver.RequestBuilder, parser driver.ReplyParser, opts Options) {
	items := make(chan *attempt, len(attempts))
	for _, a := range attempts {
		items <- a
	}

	ready := make(chan *attempt, len(attempts))
	remaining := int64(len(attempts))
	stop := make(chan struct{})

	var workers sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			phase1Worker(ctx, items, ready, stop, builder, opts)
		}()
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		phase2Consumer(ctx, items, ready, stop, &remaining, o, parser, opts)
	}()

	workers.Wait()
	close(ready)
	<-consumerDone
}

// phase1Worker pulls attempts off the shared queue and drives connect +
// phase 1 only, then hands the attempt to the phase2Consumer over ready
// regardless of outcome — an attempt that never reached Queried is still
// sent so the consumer can finish or retry it without running phase 2.
func phase1Worker(ctx context.Context, items chan *attempt, ready chan<- *attempt, stop <-chan struct{}, builder driver.RequestBuilder, opts Options) {
	p, err := poller.New()
	if err != nil {
		orchLog.Error().Err(err).Msg("phase 1 worker: poller init failed")
		return
	}
	defer p.Close()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case a := <-items:
			if wait := time.Until(a.wakeAt); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return
				case <-stop:
					timer.Stop()
					return
				}
			}

			c := a.newConn()
			c.FailFromError(c.Connect())
			if !c.State().IsNonQuery() {
				driver.QueryAgents(p, []*agent.Conn{c}, opts.Timeout, builder)
			}

			select {
			case ready <- a:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// phase2Consumer owns the one poller that drives phase 2, collecting
// whatever attempts phase1Workers have handed off since its last round and
// running a single driver.WaitForAgents call over all of them together —
// the batching the reference design's collective RemoteWaitForAgents pass
// describes — instead of one call per attempt. Attempts that never reached
// Queried ride along in the same batch; WaitForAgents simply skips any conn
// that isn't in a waiting state.
func phase2Consumer(ctx context.Context, items chan<- *attempt, ready <-chan *attempt, stop chan struct{}, remaining *int64, o *Orchestrator, parser driver.ReplyParser, opts Options) {
	p, err := poller.New()
	if err != nil {
		orchLog.Error().Err(err).Msg("phase 2 consumer: poller init failed")
		return
	}
	defer p.Close()

	finish := func(a *attempt) {
		a.finish()
		o.markDone(1)
		if atomic.AddInt64(remaining, -1) == 0 {
			close(stop)
		}
	}

	retry := func(a *attempt) {
		a.advanceMirror()
		a.wakeAt = time.Now().Add(opts.RetryDelay)
		select {
		case items <- a:
		case <-stop:
		case <-ctx.Done():
		}
	}

	for {
		var first *attempt
		select {
		case first = <-ready:
			if first == nil {
				return
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}

		batch := []*attempt{first}
	drain:
		for {
			select {
			case next, ok := <-ready:
				if !ok || next == nil {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		conns := make([]*agent.Conn, len(batch))
		for i, a := range batch {
			conns[i] = a.conn
		}
		driver.WaitForAgents(p, conns, opts.Timeout, parser)

		for _, a := range batch {
			if a.conn.Success() {
				finish(a)
				continue
			}
			if a.recordFailure() {
				retry(a)
				continue
			}
			finish(a)
		}
	}
}
