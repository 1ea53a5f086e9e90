package persist

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shardha/pkg/dashboard"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dashboards.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveDashboardRoundTrip(t *testing.T) {
	s := openTestStore(t)

	dash := dashboard.NewHostDashboard("db1:9312", time.Minute, time.Second)
	now := time.Now()
	dash.AgentStatsInc(dashboard.ConnectFailures, false, now, now.Add(5*time.Millisecond))
	dash.AgentStatsInc(dashboard.NetworkNonCritical, false, now, now.Add(10*time.Millisecond))

	require.NoError(t, s.SaveDashboard("db1:9312", dash))

	snap, found, err := s.Load("db1:9312")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "db1:9312", snap.Host)
	assert.Equal(t, uint64(1), snap.Counters[dashboard.ConnectFailures])
	assert.Equal(t, uint64(1), snap.Counters[dashboard.NetworkNonCritical])
}

func TestLoadMissingHostReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, found, err := s.Load("nowhere:9312")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoadAllReturnsEverySavedHost(t *testing.T) {
	s := openTestStore(t)

	dash1 := dashboard.NewHostDashboard("db1:9312", time.Minute, time.Second)
	dash2 := dashboard.NewHostDashboard("db2:9312", time.Minute, time.Second)
	require.NoError(t, s.SaveDashboard("db1:9312", dash1))
	require.NoError(t, s.SaveDashboard("db2:9312", dash2))

	all, err := s.LoadAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Contains(t, all, "db1:9312")
	assert.Contains(t, all, "db2:9312")
}

func TestSeedRestoresAgentStats(t *testing.T) {
	snap := DashboardSnapshot{
		Host:           "db1:9312",
		Counters:       []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9},
		HostAggregates: []uint64{100, 2, 50, 25},
	}

	stats := &dashboard.AgentStats{}
	Seed(stats, snap)

	assert.Equal(t, uint64(3), stats.Counters[dashboard.ConnectFailures])
	assert.Equal(t, uint64(100), stats.Host[dashboard.TotalMsecs])
}

func TestPingReportsOpenAndClosedStore(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Ping())

	require.NoError(t, s.Close())
	assert.Error(t, s.Ping())
}

func TestReopenPersistsAcrossStoreInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboards.db")

	s1, err := Open(path)
	require.NoError(t, err)
	dash := dashboard.NewHostDashboard("db1:9312", time.Minute, time.Second)
	now := time.Now()
	dash.AgentStatsInc(dashboard.WrongReplies, false, now, now.Add(time.Millisecond))
	require.NoError(t, s1.SaveDashboard("db1:9312", dash))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	snap, found, err := s2.Load("db1:9312")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(1), snap.Counters[dashboard.WrongReplies])
}
