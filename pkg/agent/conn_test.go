package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/cuemby/shardha/pkg/config"
	"github.com/cuemby/shardha/pkg/dashboard"
	"github.com/cuemby/shardha/pkg/pool"
)

func newTestPool(capacity int) *pool.ConnPool {
	return pool.New(capacity)
}

func newTestDesc() *Desc {
	return &Desc{
		Addr:      config.Address{Family: config.FamilyInet, Host: "127.0.0.1", Port: 9312},
		URL:       "127.0.0.1:9312",
		Dashboard: dashboard.NewHostDashboard("127.0.0.1:9312", time.Minute, time.Second),
		Stats:     &dashboard.AgentStats{},
	}
}

func TestCheckRemoteVersionSendsPersistPreludeWhenFresh(t *testing.T) {
	client, server := socketPair(t)

	desc := newTestDesc()
	desc.Persistent = true
	c := NewConn(desc, false)
	c.fd = server
	c.fresh = true
	c.persistentAttach = true
	c.state = Handshake

	require.NoError(t, writeHandshake(client))

	err := c.CheckRemoteVersion()
	require.NoError(t, err)
	assert.Equal(t, Established, c.State())
	assert.False(t, c.fresh)

	buf := make([]byte, 12)
	n, err := rawReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestCheckRemoteVersionRejectsBadVersion(t *testing.T) {
	client, server := socketPair(t)

	desc := newTestDesc()
	c := NewConn(desc, false)
	c.fd = server
	c.state = Handshake

	var junk [4]byte
	junk[0] = 0xFF
	require.NoError(t, rawWrite(client, junk[:]))

	err := c.CheckRemoteVersion()
	require.Error(t, err)
	var wf *wireFailure
	require.ErrorAs(t, err, &wf)
	assert.Equal(t, dashboard.WrongReplies, wf.outcome)
}

func TestSendRequestThenReplyRoundTrip(t *testing.T) {
	client, server := socketPair(t)

	desc := newTestDesc()
	c := NewConn(desc, false)
	c.fd = server
	c.state = Established
	c.startQuery = time.Now()

	require.NoError(t, c.SendRequest([]byte("request-body")))
	assert.Equal(t, Queried, c.State())

	got := make([]byte, len("request-body"))
	n, err := rawReadFull(client, got)
	require.NoError(t, err)
	assert.Equal(t, "request-body", string(got[:n]))

	// server sends back a reply frame
	body := []byte("hello")
	var hdr [replyHeaderSize]byte
	hdr[0], hdr[1] = 0, 0 // status OK
	hdr[4], hdr[5], hdr[6], hdr[7] = 0, 0, 0, byte(len(body))
	require.NoError(t, rawWrite(client, hdr[:]))
	require.NoError(t, rawWrite(client, body))

	require.NoError(t, c.CheckReplyHeader())
	assert.Equal(t, Reply, c.State())
	assert.Equal(t, StatusOK, c.ReplyStatus())

	done, err := c.ReadReplyChunk()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, body, c.ReplyBody())

	c.FinishSuccess(false)
	assert.True(t, c.Success())
	stat := desc.Dashboard.GetCollectedStat(2)
	assert.Equal(t, uint64(1), stat.Counters[dashboard.NetworkNonCritical])
}

func TestFailTransitionsToRetryAndBillsOutcome(t *testing.T) {
	desc := newTestDesc()
	c := NewConn(desc, false)
	client, server := socketPair(t)
	_ = client
	c.fd = server
	c.state = Queried

	c.Fail(dashboard.TimeoutsQuery, "query timed out")

	assert.Equal(t, Retry, c.State())
	assert.Equal(t, "query timed out", c.Failure())
	assert.Equal(t, uint64(1), desc.Stats.Counters[dashboard.TimeoutsQuery])

	stat := desc.Dashboard.GetCollectedStat(2)
	assert.Equal(t, uint64(1), stat.Counters[dashboard.TimeoutsQuery])
}

func TestCloseNonPersistentClosesDescriptorImmediately(t *testing.T) {
	desc := newTestDesc()
	c := NewConn(desc, false)
	_, server := socketPair(t)
	c.fd = server
	c.persistentAttach = false

	c.Close(false)
	assert.Equal(t, -1, c.FD())

	// fd was actually closed: a second close must fail.
	err := unix.Close(server)
	assert.Error(t, err)
}

func TestClosePersistentParksIntoPool(t *testing.T) {
	desc := newTestDesc()
	desc.Persistent = true
	desc.Pool = newTestPool(1)

	c := NewConn(desc, false)
	_, server := socketPair(t)
	c.fd = server
	c.persistentAttach = true

	c.Close(false)
	assert.Equal(t, -1, c.FD())
	assert.Equal(t, 1, desc.Pool.Len())
}
