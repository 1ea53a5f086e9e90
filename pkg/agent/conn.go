package agent

import (
	"errors"
	"time"

	"github.com/cuemby/shardha/pkg/dashboard"
	"github.com/cuemby/shardha/pkg/pool"
)

// wireFailure pairs the outcome a failed step should be billed under with
// a human-readable cause. Step methods return it (wrapped in the usual
// error interface) instead of calling Fail themselves, so a caller that
// wants to inspect the outcome before acting still can.
type wireFailure struct {
	outcome dashboard.Outcome
	msg     string
}

func (f *wireFailure) Error() string { return f.msg }

func fail(o dashboard.Outcome, msg string) error {
	return &wireFailure{outcome: o, msg: msg}
}

// Conn is one attempt's live connection against a single mirror. A fresh
// Conn is Unused; Connect, the readiness-driven step methods, and Fail/
// Close move it through the rest of the State machine.
type Conn struct {
	desc *Desc

	fd    int
	state State

	fresh            bool // true if fd was freshly dialed this attempt
	persistentAttach bool // true if this attempt is actually using pooling

	ping bool // true if this attempt is a background health ping, not a query

	startQuery time.Time
	endQuery   time.Time
	wall       time.Duration

	failure      string
	success      bool
	lastOutcome  dashboard.Outcome
	lastDuration time.Duration

	reply     replyHeader
	replyBuf  []byte
	replyRead int32
}

// NewConn builds an unattached Conn for desc. ping marks this attempt as a
// background dashboard probe rather than a real query, which suppresses
// wall-clock billing on success.
func NewConn(desc *Desc, ping bool) *Conn {
	return &Conn{desc: desc, fd: pool.NoFD, state: Unused, ping: ping}
}

// FD returns the underlying socket descriptor, or pool.NoFD if none is
// currently open.
func (c *Conn) FD() int { return c.fd }

// State returns the current connection state.
func (c *Conn) State() State { return c.state }

// Failure returns the most recent failure message, if any.
func (c *Conn) Failure() string { return c.failure }

// Success reports whether this attempt completed with a clean reply.
func (c *Conn) Success() bool { return c.success }

// LastOutcome returns the outcome billed by the most recent Fail or
// FinishSuccess call, for callers (pkg/dispatch) that export a running
// metrics counter alongside the dashboard's own rolling buckets.
func (c *Conn) LastOutcome() dashboard.Outcome { return c.lastOutcome }

// LastDuration returns the wall-clock span billed by the most recent Fail
// or FinishSuccess call.
func (c *Conn) LastDuration() time.Duration { return c.lastDuration }

// Desc returns the descriptor this Conn is attempting against.
func (c *Conn) Desc() *Desc { return c.desc }

// Connect starts (or resumes, from a pooled descriptor) a connection
// attempt. On return the state is one of Connecting (async connect in
// flight — the caller must register fd for writability), Handshake (a
// synchronous connect succeeded and the handshake word is already on the
// wire — register for readability) or Established (a pooled, still-live
// descriptor was reused — register for writability to send the request
// directly).
func (c *Conn) Connect() error {
	c.state = Unused

	if c.fd >= 0 {
		if !socketClosedByPeer(c.fd) {
			c.state = Established
			c.startQuery = time.Now()
			return nil
		}
		c.closeFD()
	}

	c.success = false
	c.persistentAttach = c.desc.Persistent && c.desc.Pool != nil

	if c.persistentAttach {
		fd, outcome := c.desc.Pool.Rent()
		switch outcome {
		case pool.RentReused:
			if fd >= 0 && !socketClosedByPeer(fd) {
				c.fd = fd
				c.fresh = false
				c.state = Established
				c.startQuery = time.Now()
				return nil
			}
			if fd >= 0 {
				closeFD(fd)
			}
		case pool.RentCapacityReached:
			c.persistentAttach = false
		case pool.RentMustConnect:
		}
	}

	c.fresh = true

	fd, err := dialSocket(c.desc.Addr)
	if err != nil {
		return fail(dashboard.ConnectFailures, err.Error())
	}
	c.fd = fd
	c.startQuery = time.Now()
	c.wall = 0

	sa, err := buildSockaddr(c.desc.Addr)
	if err != nil {
		c.closeFD()
		return fail(dashboard.ConnectFailures, err.Error())
	}

	if err := connectSocket(fd, sa); err != nil {
		if errors.Is(err, errConnectInProgress) {
			c.state = Connecting
			return nil
		}
		c.closeFD()
		return fail(dashboard.ConnectFailures, err.Error())
	}

	// connect() succeeded synchronously.
	c.desc.Dashboard.TrackProcessingTime(time.Since(c.startQuery))
	if err := writeHandshake(c.fd); err != nil {
		c.closeFD()
		return fail(dashboard.NetworkErrors, "sending client_version: "+err.Error())
	}
	c.state = Handshake
	return nil
}

// CompleteConnect finishes an asynchronous connect once the poller reports
// fd writable. connErr, if non-nil, carries the error bit the poller
// observed (hangup/error condition).
func (c *Conn) CompleteConnect(connErr bool) error {
	if connErr {
		err := socketError(c.fd)
		c.closeFD()
		return fail(dashboard.ConnectFailures, "connect() failed: "+err.Error())
	}

	c.desc.Dashboard.TrackProcessingTime(time.Since(c.startQuery))
	if err := writeHandshake(c.fd); err != nil {
		if err == ErrWouldBlock {
			return err
		}
		c.closeFD()
		return fail(dashboard.NetworkErrors, "sending client_version: "+err.Error())
	}
	c.state = Handshake
	return nil
}

// CheckRemoteVersion reads the handshake reply once fd is readable. On
// success it also sends the command-persist prelude (if this is a fresh
// persistent attempt) and advances to Established.
func (c *Conn) CheckRemoteVersion() error {
	version, n, err := readHandshakeVersion(c.fd)
	if err != nil {
		if err == ErrWouldBlock {
			return err
		}
		return fail(dashboard.NetworkErrors, "handshake failure: "+err.Error())
	}
	if n == 0 {
		// remote closed right after accept(); worth a retry, not a hard
		// failure.
		return fail(dashboard.UnexpectedClose, "handshake failure (connection closed before reply)")
	}
	if !isAcceptedVersion(version) {
		return fail(dashboard.WrongReplies, "handshake failure (unexpected protocol version)")
	}

	if c.fresh && c.persistentAttach {
		if err := writeCommandPersist(c.fd); err != nil {
			if err == ErrWouldBlock {
				return err
			}
			return fail(dashboard.NetworkErrors, "sending command_persist: "+err.Error())
		}
		c.fresh = false
	}

	c.state = Established
	return nil
}

// SendRequest writes payload (a fully built request frame from pkg/driver's
// request builder) and advances to Queried.
func (c *Conn) SendRequest(payload []byte) error {
	if err := rawWrite(c.fd, payload); err != nil {
		if err == ErrWouldBlock {
			return err
		}
		return fail(dashboard.NetworkErrors, "sending request: "+err.Error())
	}
	c.state = Queried
	return nil
}

// NotePrereply marks that a reply arrived for this Conn while the driver
// was still walking other agents for outbound readiness (phase 1). The
// wall-clock accounting is adjusted so the time spent waiting in phase 2
// isn't double counted.
func (c *Conn) NotePrereply() {
	c.wall += time.Since(c.startQuery)
	c.state = Prereply
}

// ResumeFromPrereply transitions a Prereply Conn back to Queried at the
// start of phase 2, so the regular Queried-state header read runs next.
func (c *Conn) ResumeFromPrereply() {
	if c.state == Prereply {
		c.startQuery = time.Now()
		c.state = Queried
	}
}

// CheckReplyHeader reads the 8-byte reply header and allocates the body
// buffer, advancing to Reply.
func (c *Conn) CheckReplyHeader() error {
	hdr, err := readReplyHeader(c.fd)
	if err != nil {
		if err == ErrWouldBlock {
			return err
		}
		return fail(dashboard.NetworkErrors, "failed to receive reply header: "+err.Error())
	}
	c.reply = hdr
	c.replyBuf = make([]byte, hdr.length)
	c.replyRead = 0
	c.state = Reply
	return nil
}

// ReadReplyChunk accumulates one more slice of the reply body. It returns
// (true, nil) once the whole body has arrived.
func (c *Conn) ReadReplyChunk() (bool, error) {
	n, err := rawReadFull(c.fd, c.replyBuf[c.replyRead:])
	if err != nil {
		if err == ErrWouldBlock {
			return false, err
		}
		return false, fail(dashboard.NetworkErrors, "failed to receive reply body: "+err.Error())
	}
	c.replyRead += int32(n)
	if n == 0 && c.replyRead != c.reply.length {
		return false, fail(dashboard.WrongReplies, "eof while reading reply body")
	}
	return c.replyRead == c.reply.length, nil
}

// ReplyComplete reports whether the full reply body has already arrived —
// true immediately after CheckReplyHeader for a zero-length body, sparing
// the caller a pointless empty read.
func (c *Conn) ReplyComplete() bool { return c.replyRead == c.reply.length }

// ReplyStatus returns the status word carried by the reply header read by
// CheckReplyHeader.
func (c *Conn) ReplyStatus() ReplyStatus { return c.reply.status }

// ReplyBody returns the fully received reply body bytes.
func (c *Conn) ReplyBody() []byte { return c.replyBuf }

// FinishSuccess marks a clean reply: bills NetworkCritical if warned is
// true (a successful reply that still carried a warning), NetworkNonCritical
// otherwise, and closes the attempt without forcing a persistent
// descriptor shut. The reply body stays readable through ReplyBody.
func (c *Conn) FinishSuccess(warned bool) {
	outcome := dashboard.NetworkNonCritical
	if warned {
		outcome = dashboard.NetworkCritical
	}
	c.bill(outcome)
	c.success = true
	body := c.replyBuf
	c.Close(false)
	c.replyBuf = body
}

// Fail attributes outcome against this attempt's dashboard/stats, records
// msg, and transitions to Retry. Unlike the step methods (which wrap a
// wireFailure for the caller to unwrap), Fail is the terminal action: call
// it once a step method's error has been classified.
func (c *Conn) Fail(outcome dashboard.Outcome, msg string) {
	c.state = Retry
	c.Close(false)
	c.failure = msg
	c.bill(outcome)
}

// FailFromError classifies err (as returned by any step method) and calls
// Fail with the right outcome. ErrWouldBlock and nil are no-ops.
func (c *Conn) FailFromError(err error) {
	if err == nil || err == ErrWouldBlock {
		return
	}
	var wf *wireFailure
	if errors.As(err, &wf) {
		c.Fail(wf.outcome, wf.msg)
		return
	}
	c.Fail(dashboard.NetworkErrors, err.Error())
}

// bill increments both the permanent per-descriptor stats and the rolling
// dashboard bucket for outcome.
func (c *Conn) bill(outcome dashboard.Outcome) {
	c.endQuery = time.Now()
	if c.startQuery.IsZero() {
		c.startQuery = c.endQuery
	}
	c.lastOutcome = outcome
	c.lastDuration = c.endQuery.Sub(c.startQuery)
	if c.desc.Stats != nil {
		c.desc.Stats.Counters[outcome]++
		if !c.ping {
			c.desc.Stats.Host[dashboard.TotalMsecs] += uint64(c.endQuery.Sub(c.startQuery).Microseconds())
		}
	}
	c.desc.Dashboard.AgentStatsInc(outcome, c.ping, c.startQuery, c.endQuery)
}

// Close releases this attempt's descriptor: parked back into the
// persistent pool when pooling applies and closePersist is false, closed
// outright otherwise. Safe to call on an already-closed Conn.
func (c *Conn) Close(closePersist bool) {
	c.replyBuf = nil
	if c.fd < 0 {
		return
	}

	if closePersist || !c.persistentAttach {
		closeFD(c.fd)
		c.fd = pool.NoFD
		c.fresh = true
	} else {
		c.desc.Pool.Return(c.fd)
		c.fd = pool.NoFD
	}

	if c.state != Retry {
		c.state = Unused
	}
}

func (c *Conn) closeFD() {
	if c.fd >= 0 {
		closeFD(c.fd)
		c.fd = pool.NoFD
	}
}
