package dispatch

import (
	"strings"
	"time"

	"github.com/cuemby/shardha/pkg/agent"
	"github.com/cuemby/shardha/pkg/dashboard"
)

// Result is one group's dispatch outcome.
type Result struct {
	Success bool
	Host    string
	Wall    time.Duration
	Body    []byte
	Warned  bool
	Failure string
}

// attempt tracks one group's in-flight dispatch: the mirror currently
// targeted, the live connection against it, and the accumulated retry
// state. Its zero value is never used directly — see newAttempt.
type attempt struct {
	index      int
	connection *AgentConnection
	mirrorIdx  int
	conn       *agent.Conn
	retries    int
	retryLim   int
	failures   []string
	wakeAt     time.Time
	result     Result
	done       bool
}

func newAttempt(index int, ac *AgentConnection) *attempt {
	return &attempt{
		index:      index,
		connection: ac,
		mirrorIdx:  ac.Group.Choose(),
		retryLim:   ac.retryLimit(),
	}
}

// newConn allocates a fresh agent.Conn against the attempt's current
// mirror, replacing any previous one.
func (a *attempt) newConn() *agent.Conn {
	a.conn = agent.NewConn(a.connection.descFor(a.mirrorIdx), false)
	return a.conn
}

// advanceMirror picks the next mirror to retry against, via the group's
// own selection strategy — the same call a fresh dispatch would make,
// matching the reference design's NextMirror/ChooseAgent relationship.
func (a *attempt) advanceMirror() {
	a.mirrorIdx = a.connection.Group.Choose()
}

// recordFailure appends the conn's failure message and reports whether the
// attempt still has retry budget left.
func (a *attempt) recordFailure() bool {
	if a.conn.Failure() != "" {
		a.failures = append(a.failures, a.conn.Failure())
	}
	a.retries++
	return a.retries < a.retryLim
}

// finish fills in the attempt's terminal Result. Caller ensures this is
// called exactly once.
func (a *attempt) finish() {
	m := a.connection.Group.Mirror(a.mirrorIdx)
	a.done = true
	if a.conn != nil && a.conn.Success() {
		a.result = Result{
			Success: true,
			Host:    m.URL,
			Wall:    a.conn.LastDuration(),
			Body:    a.conn.ReplyBody(),
			Warned:  a.conn.LastOutcome() == dashboard.NetworkCritical,
		}
		return
	}
	a.result = Result{
		Success: false,
		Host:    m.URL,
		Failure: strings.Join(a.failures, "; "),
	}
}
