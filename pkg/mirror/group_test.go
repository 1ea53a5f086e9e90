package mirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shardha/pkg/config"
	"github.com/cuemby/shardha/pkg/dashboard"
)

func newTestMirrors(n int) []Mirror {
	mirrors := make([]Mirror, n)
	for i := range mirrors {
		url := string(rune('a' + i))
		mirrors[i] = Mirror{
			URL:       url,
			Dashboard: dashboard.NewHostDashboard(url, time.Minute, time.Second),
			Stats:     &dashboard.AgentStats{},
		}
	}
	return mirrors
}

func TestSingleMirrorGroupShortCircuits(t *testing.T) {
	g := NewGroup(newTestMirrors(1), config.StrategyRandom, 1, time.Minute)
	assert.False(t, g.IsHA())
	for i := 0; i < 10; i++ {
		assert.Equal(t, 0, g.Choose())
	}
}

func TestRoundRobinFairness(t *testing.T) {
	g := NewGroup(newTestMirrors(4), config.StrategyRoundRobin, 1, time.Minute)

	counts := make(map[int]int)
	const trials = 4000
	for i := 0; i < trials; i++ {
		counts[g.roundRobin()]++
	}
	require.Len(t, counts, 4)
	for _, c := range counts {
		assert.Equal(t, trials/4, c)
	}
}

func TestWeightedRandomBounds(t *testing.T) {
	g := NewGroup(newTestMirrors(3), config.StrategyRandom, 1, time.Minute)
	g.weights = []uint16{40000, 20000, 5535}

	const trials = 20000
	counts := make(map[int]int)
	for i := 0; i < trials; i++ {
		winner := g.chooseWeightedRandom(0, []int{1, 2})
		assert.Contains(t, []int{0, 1, 2}, winner)
		counts[winner]++
	}

	total := float64(g.weights[0]) + float64(g.weights[1]) + float64(g.weights[2])
	for idx, share := range []float64{float64(g.weights[0]) / total, float64(g.weights[1]) / total, float64(g.weights[2]) / total} {
		observed := float64(counts[idx]) / trials
		assert.InDelta(t, share, observed, 0.03)
	}
}

func TestDefaultRebalancerPreservesSum(t *testing.T) {
	weights := make([]uint16, 4)
	DefaultRebalancer([]int64{100, 50, 0, 200}, weights)

	var sum uint32
	for _, w := range weights {
		sum += uint32(w)
	}
	assert.Equal(t, uint32(TotalWeight), sum)

	// lower latency (weights[2], timer 0) must not get a smaller weight
	// than a higher-latency mirror (weights[3], timer 200).
	assert.GreaterOrEqual(t, weights[2], weights[3])
}

func TestAvoidDeadFallsBackToRandomWhenNoStats(t *testing.T) {
	g := NewGroup(newTestMirrors(3), config.StrategyAvoidDead, 1, time.Minute)
	winner := g.Choose()
	assert.GreaterOrEqual(t, winner, 0)
	assert.Less(t, winner, 3)
}

func TestAvoidErrorsSkipsMirrorWithNoSuccesses(t *testing.T) {
	mirrors := newTestMirrors(2)
	now := time.Now()
	// mirror 0 has only failures, mirror 1 has a clean success.
	mirrors[0].Dashboard.AgentStatsInc(dashboard.NetworkErrors, false, now, now)
	mirrors[1].Dashboard.AgentStatsInc(dashboard.NetworkNonCritical, false, now, now.Add(time.Millisecond))

	g := NewGroup(mirrors, config.StrategyAvoidErrors, 1, time.Minute)
	winner := g.Choose()
	assert.Equal(t, 1, winner)
}
