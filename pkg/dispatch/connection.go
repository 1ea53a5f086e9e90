package dispatch

import (
	"strings"

	"github.com/cuemby/shardha/pkg/agent"
	"github.com/cuemby/shardha/pkg/config"
	"github.com/cuemby/shardha/pkg/mirror"
	"github.com/cuemby/shardha/pkg/pool"
)

// AgentConnection is the dispatch-time binding of one configured mirror
// group to the sockets an attempt against it will use: the group itself,
// the options that apply to every mirror in it (persistence, blackhole,
// the index list the request targets), and — when persistence is on — one
// connection pool per mirror.
type AgentConnection struct {
	Group   *mirror.Group
	Options config.Options
	Indexes []string
	Pools   []*pool.ConnPool // parallel to Group's mirrors; nil when Options.Persistent is false
}

// NewAgentConnection builds an AgentConnection over group, allocating a
// per-mirror pool of poolCapacity when opts.Persistent is set.
func NewAgentConnection(group *mirror.Group, opts config.Options, indexes []string, poolCapacity int) *AgentConnection {
	ac := &AgentConnection{Group: group, Options: opts, Indexes: indexes}
	if opts.Persistent {
		ac.Pools = make([]*pool.ConnPool, group.Len())
		for i := range ac.Pools {
			ac.Pools[i] = pool.New(poolCapacity)
		}
	}
	return ac
}

// descFor builds the agent.Desc for mirror index i.
func (ac *AgentConnection) descFor(i int) *agent.Desc {
	m := ac.Group.Mirror(i)
	var p *pool.ConnPool
	if ac.Pools != nil {
		p = ac.Pools[i]
	}
	return &agent.Desc{
		Addr:       m.Addr,
		URL:        m.URL,
		Index:      strings.Join(ac.Indexes, ","),
		Persistent: ac.Options.Persistent,
		Blackhole:  ac.Options.Blackhole,
		Dashboard:  m.Dashboard,
		Stats:      m.Stats,
		Pool:       p,
	}
}

// retryLimit is abs(Options.RetryCount) * mirror count: a negative
// RetryCount preserves its sign-magnitude meaning of "force this many
// retries per mirror" rather than being clamped to zero.
func (ac *AgentConnection) retryLimit() int {
	n := ac.Options.RetryCount
	if n < 0 {
		n = -n
	}
	return n * ac.Group.Len()
}

// Shutdown closes every pool this connection owns, releasing any parked
// persistent descriptors.
func (ac *AgentConnection) Shutdown() {
	for _, p := range ac.Pools {
		if p != nil {
			p.Shutdown()
		}
	}
}
