package mirror

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/shardha/pkg/config"
	"github.com/cuemby/shardha/pkg/dashboard"
)

// TotalWeight is the fixed sum every group's weight vector preserves.
const TotalWeight = 65535

// deadThreshold is the consecutive-errors-a-row value at or below which a
// mirror still counts as "alive" for the avoid-dead strategy.
const deadThreshold = 3

// allowedErrorRate is the error-rate floor for the avoid-errors strategy:
// rates at or below this are treated as zero.
const allowedErrorRate = 0.03

// collectedStatPeriods is how many dashboard buckets the ranking strategies
// look back over — roughly the last 1-2 karma periods of traffic.
const collectedStatPeriods = 2

// Mirror is one replica in a Group: its address, the dashboard tracking its
// health, and its permanent stats block.
type Mirror struct {
	Addr      config.Address
	URL       string
	Dashboard *dashboard.HostDashboard
	Stats     *dashboard.AgentStats
}

// Rebalancer derives a new weight vector from per-mirror average latency.
// Implementations must preserve TotalWeight as the vector's sum and must be
// monotonic: a lower timer value must never receive a smaller weight than a
// higher one.
type Rebalancer func(timers []int64, weights []uint16)

// Group is a set of replicas serving one shard, together with a selection
// strategy and retry policy.
type Group struct {
	mirrors    []Mirror
	strategy   config.Strategy
	retryCount int

	karmaPeriod time.Duration

	rrCounter atomic.Uint64

	weightsMu  sync.RWMutex
	weights    []uint16
	lastRecalc uint32
}

// NewGroup constructs a Group over mirrors with an initial uniform weight
// split. If there is more than one mirror, every mirror's dashboard is
// marked as needing proactive pings.
func NewGroup(mirrors []Mirror, strategy config.Strategy, retryCount int, karmaPeriod time.Duration) *Group {
	g := &Group{
		mirrors:     mirrors,
		strategy:    strategy,
		retryCount:  retryCount,
		karmaPeriod: karmaPeriod,
		weights:     make([]uint16, len(mirrors)),
	}

	if len(mirrors) > 0 {
		frac := uint16(TotalWeight / len(mirrors))
		for i := range g.weights {
			g.weights[i] = frac
		}
	}

	if g.IsHA() {
		for _, m := range mirrors {
			m.Dashboard.SetNeedsPing(true)
		}
	}
	return g
}

// IsHA reports whether this group has more than one mirror and therefore
// actually exercises a selection strategy rather than short-circuiting.
func (g *Group) IsHA() bool {
	return len(g.mirrors) > 1
}

// Len returns the number of mirrors in the group.
func (g *Group) Len() int {
	return len(g.mirrors)
}

// Mirror returns the mirror at index i.
func (g *Group) Mirror(i int) Mirror {
	return g.mirrors[i]
}

// Choose picks an index into the group's mirror list according to its
// configured strategy, applying the default Rebalancer when a weight
// recalculation is due.
func (g *Group) Choose() int {
	return g.ChooseWith(DefaultRebalancer)
}

// ChooseWith is like Choose but lets the caller supply the Rebalancer used
// if a weight recalculation fires during this selection.
func (g *Group) ChooseWith(rebalancer Rebalancer) int {
	if !g.IsHA() {
		return 0
	}

	switch g.strategy {
	case config.StrategyAvoidDead:
		return g.avoidDead(rebalancer)
	case config.StrategyAvoidErrors:
		return g.avoidErrors(rebalancer)
	case config.StrategyRoundRobin:
		return g.roundRobin()
	default:
		return g.random()
	}
}

func (g *Group) random() int {
	return rand.Intn(len(g.mirrors))
}

// roundRobin atomically advances a shared counter and wraps it into
// [0, N-1] via compare-and-swap, avoiding drift under concurrent callers.
func (g *Group) roundRobin() int {
	n := uint64(len(g.mirrors))
	for {
		cur := g.rrCounter.Load()
		if cur+1 >= n {
			if g.rrCounter.CompareAndSwap(cur, 0) {
				return int(cur % n)
			}
		} else if g.rrCounter.CompareAndSwap(cur, cur+1) {
			return int(cur)
		}
	}
}

// collectedQueryCount sums every outcome counter in stat — the total
// number of observations (queries and pings) recorded in the window.
func collectedQueryCount(stat dashboard.AgentDash) uint64 {
	var n uint64
	for _, c := range stat.Counters {
		n += c
	}
	return n
}

func (g *Group) avoidDead(rebalancer Rebalancer) int {
	timers := make([]int64, len(g.mirrors))
	best := -1
	bestErrARow := int64(-1)
	var candidates []int

	for i, m := range g.mirrors {
		stat := m.Dashboard.GetCollectedStat(collectedStatPeriods)
		queries := collectedQueryCount(stat)
		if queries > 0 {
			timers[i] = int64(stat.Host[dashboard.TotalMsecs] / queries)
		}

		errARow := int64(m.Dashboard.ConsecutiveErrors())
		if errARow <= deadThreshold {
			errARow = 0
		}

		switch {
		case bestErrARow < 0:
			bestErrARow = errARow
			best = i
		case bestErrARow > errARow:
			candidates = candidates[:0]
			best = i
			bestErrARow = errARow
		case bestErrARow == errARow:
			if best >= 0 {
				candidates = append(candidates, best)
			}
			best = i
		}
	}

	g.Rebalance(timers, rebalancer)

	if best < 0 {
		return g.random()
	}
	if len(candidates) == 0 {
		return best
	}
	return g.chooseWeightedRandom(best, candidates)
}

func (g *Group) avoidErrors(rebalancer Rebalancer) int {
	timers := make([]int64, len(g.mirrors))
	best := -1
	bestCritical := 1.0
	bestAll := 1.0
	var candidates []int

	for i, m := range g.mirrors {
		stat := m.Dashboard.GetCollectedStat(collectedStatPeriods)

		var running, critical, all, successes uint64
		for j, c := range stat.Counters {
			switch dashboard.Outcome(j) {
			case dashboard.NetworkCritical:
				critical = running
			case dashboard.NetworkNonCritical:
				all = running
				successes = c
			}
			running += c
		}
		queries := running

		if queries > 0 {
			timers[i] = int64(stat.Host[dashboard.TotalMsecs] / queries)
		}

		if successes == 0 {
			continue
		}
		if queries == 0 {
			continue
		}

		criticalRate := float64(critical) / float64(queries)
		allRate := float64(all) / float64(queries)
		if criticalRate <= allowedErrorRate {
			criticalRate = 0
		}
		if allRate <= allowedErrorRate {
			allRate = 0
		}

		switch {
		case criticalRate < bestCritical:
			candidates = candidates[:0]
			best = i
			bestCritical = criticalRate
			bestAll = allRate
		case criticalRate == bestCritical:
			switch {
			case allRate < bestAll:
				candidates = candidates[:0]
				best = i
				bestAll = allRate
			case allRate == bestAll:
				if best >= 0 {
					candidates = append(candidates, best)
				}
				best = i
			}
		}
	}

	g.Rebalance(timers, rebalancer)

	if best < 0 {
		return g.random()
	}
	if len(candidates) == 0 {
		return best
	}
	return g.chooseWeightedRandom(best, candidates)
}

// chooseWeightedRandom draws uniformly over the combined weight of best and
// candidates, then walks the running prefix sum (best first) to find the
// winner.
func (g *Group) chooseWeightedRandom(best int, candidates []int) int {
	g.weightsMu.RLock()
	defer g.weightsMu.RUnlock()

	bound := uint32(g.weights[best])
	limit := bound
	for _, c := range candidates {
		limit += uint32(g.weights[c])
	}
	if limit == 0 {
		return best
	}
	chance := uint32(rand.Int63n(int64(limit)))

	if chance <= bound {
		return best
	}
	winner := best
	for _, c := range candidates {
		bound += uint32(g.weights[c])
		winner = c
		if chance <= bound {
			break
		}
	}
	return winner
}

// Rebalance recalculates the group's weight vector from timers if a half
// karma-period has elapsed since the last recalculation; otherwise it is a
// no-op.
func (g *Group) Rebalance(timers []int64, rebalancer Rebalancer) {
	if !dashboard.IsHalfPeriodChanged(&g.lastRecalc, g.karmaPeriod) {
		return
	}

	g.weightsMu.RLock()
	next := make([]uint16, len(g.weights))
	copy(next, g.weights)
	g.weightsMu.RUnlock()

	rebalancer(timers, next)

	g.weightsMu.Lock()
	g.weights = next
	g.weightsMu.Unlock()
}

// Weights returns a copy of the group's current weight vector.
func (g *Group) Weights() []uint16 {
	g.weightsMu.RLock()
	defer g.weightsMu.RUnlock()
	out := make([]uint16, len(g.weights))
	copy(out, g.weights)
	return out
}

// DefaultRebalancer assigns weight inversely proportional to average
// latency: lower-latency mirrors get a larger share. Mirrors with no
// samples (timer == 0) are treated as the fastest possible. The sum is
// preserved exactly by assigning every mirror but the last its
// proportional share and giving the last the remainder.
func DefaultRebalancer(timers []int64, weights []uint16) {
	n := len(weights)
	if n == 0 {
		return
	}
	if n == 1 {
		weights[0] = TotalWeight
		return
	}

	scores := make([]float64, n)
	var sum float64
	for i, t := range timers {
		s := 1.0 / float64(t+1)
		scores[i] = s
		sum += s
	}
	if sum == 0 {
		frac := uint16(TotalWeight / n)
		for i := range weights {
			weights[i] = frac
		}
		return
	}

	var assigned uint32
	for i := 0; i < n-1; i++ {
		w := uint16(float64(TotalWeight) * scores[i] / sum)
		weights[i] = w
		assigned += uint32(w)
	}
	weights[n-1] = uint16(uint32(TotalWeight) - assigned)
}
