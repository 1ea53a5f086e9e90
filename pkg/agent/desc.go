package agent

import (
	"github.com/cuemby/shardha/pkg/config"
	"github.com/cuemby/shardha/pkg/dashboard"
	"github.com/cuemby/shardha/pkg/pool"
)

// Desc is the immutable descriptor behind every attempt against one
// mirror: its address, whether connections to it are pooled, and the
// health bookkeeping shared by every attempt. One Desc is built per mirror
// when a Group is configured and reused for its whole lifetime.
type Desc struct {
	Addr       config.Address
	URL        string
	Index      string
	Persistent bool
	Blackhole  bool

	Dashboard *dashboard.HostDashboard
	Stats     *dashboard.AgentStats
	Pool      *pool.ConnPool // nil when Persistent is false
}
