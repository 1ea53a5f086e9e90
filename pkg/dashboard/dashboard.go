package dashboard

import (
	"sync"
	"time"

	"github.com/cuemby/shardha/pkg/log"
)

// BucketCount is the number of time buckets a HostDashboard's ring holds
// (the reference daemon's STATS_DASH_TIME).
const BucketCount = 15

// AgentDash is one ring bucket: the outcome counters and host aggregates
// observed during a single karma period.
type AgentDash struct {
	Timestamp uint64 // period index this bucket currently holds, 0 = never used
	Counters  [outcomeCount]uint64
	Host      [hostAggregateCount]uint64
}

func (b *AgentDash) reset(period uint64) {
	*b = AgentDash{Timestamp: period}
}

// add accumulates other's counters into b. Host aggregates are summed
// too — GetCollectedStat reports a simple total, not a re-averaged mean,
// matching the reference source's HostStatSnapshot_t aggregation.
func (b *AgentDash) add(other *AgentDash) {
	for i := range b.Counters {
		b.Counters[i] += other.Counters[i]
	}
	for i := range b.Host {
		b.Host[i] += other.Host[i]
	}
}

// HostDashboard is the per-host health record: a ring of BucketCount
// AgentDash snapshots plus consecutive-error and ping bookkeeping. One
// instance is interned per canonical host URL by Storage.
type HostDashboard struct {
	URL string

	karmaPeriod  time.Duration
	pingInterval time.Duration

	mu                sync.RWMutex
	buckets           [BucketCount]AgentDash
	consecutiveErrors int
	lastQueryTime     time.Time
	lastAnswerTime    time.Time
	needsPing         bool
	lastRecalc        uint32

	refs int32
}

// NewHostDashboard constructs a dashboard for url, ticking buckets every
// karmaPeriod and considering the host stale after pingInterval of
// silence.
func NewHostDashboard(url string, karmaPeriod, pingInterval time.Duration) *HostDashboard {
	now := time.Now()
	return &HostDashboard{
		URL:            url,
		karmaPeriod:    karmaPeriod,
		pingInterval:   pingInterval,
		lastQueryTime:  now.Add(-pingInterval),
		lastAnswerTime: now.Add(-pingInterval),
	}
}

func periodIndex(t time.Time, karmaPeriod time.Duration) uint64 {
	if karmaPeriod <= 0 {
		karmaPeriod = time.Second
	}
	return uint64(t.UnixNano()) / uint64(karmaPeriod)
}

// IsStale reports whether no answer has been seen from this host within
// its ping interval — the trigger for sending an out-of-band ping.
func (d *HostDashboard) IsStale(now time.Time) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return now.Sub(d.lastAnswerTime) > d.pingInterval
}

// currentBucket returns the ring bucket for the current period, resetting
// it first if the slot holds a stale (reused) period. Caller must hold mu
// for writing.
func (d *HostDashboard) currentBucket(now time.Time) *AgentDash {
	period := periodIndex(now, d.karmaPeriod)
	idx := int(period % BucketCount)
	bucket := &d.buckets[idx]
	if bucket.Timestamp != period {
		dashLog.Debug().Str("host", d.URL).Uint64("period", period).Msg("bucket reset")
		bucket.reset(period)
	}
	return bucket
}

// AgentStatsInc bills one outcome against the current bucket, updates the
// consecutive-error streak, and — for non-ping attempts — folds the
// query's wall-clock duration into TotalMsecs.
func (d *HostDashboard) AgentStatsInc(o Outcome, isPing bool, start, end time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	bucket := d.currentBucket(end)
	bucket.Counters[o]++

	if !o.isError() {
		d.consecutiveErrors = 0
	} else {
		d.consecutiveErrors++
	}

	d.lastQueryTime = start
	d.lastAnswerTime = end

	if !isPing {
		bucket.Host[TotalMsecs] += uint64(end.Sub(start).Microseconds())
	}
}

// TrackProcessingTime bills a successful connect against the current
// bucket's ConnTries/MaxMsecs/AverageMsecs aggregates.
func (d *HostDashboard) TrackProcessingTime(connDuration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	bucket := d.currentBucket(time.Now())
	sample := uint64(connDuration.Microseconds())

	bucket.Host[ConnTries]++
	if sample > bucket.Host[MaxMsecs] {
		bucket.Host[MaxMsecs] = sample
	}
	tries := bucket.Host[ConnTries]
	if tries > 1 {
		bucket.Host[AverageMsecs] = (bucket.Host[AverageMsecs]*(tries-1) + sample) / tries
	} else {
		bucket.Host[AverageMsecs] = sample
	}
}

// GetCollectedStat sums up to min(periods, BucketCount) of the most recent
// buckets. If the wall clock is more than half a period into the current
// bucket, one extra trailing bucket is included to smooth the boundary.
func (d *HostDashboard) GetCollectedStat(periods int) AgentDash {
	d.mu.RLock()
	defer d.mu.RUnlock()

	now := time.Now()
	karmaSeconds := int64(d.karmaPeriod / time.Second)
	if karmaSeconds <= 0 {
		karmaSeconds = 1
	}
	if now.Unix()%karmaSeconds > karmaSeconds/2 {
		periods++
	}
	if periods > BucketCount {
		periods = BucketCount
	}

	period := periodIndex(now, d.karmaPeriod)
	idx := int(period % BucketCount)

	var accum AgentDash
	for ; periods > 0; periods-- {
		bucket := &d.buckets[idx]
		if bucket.Timestamp == period {
			accum.add(bucket)
		}
		period--
		idx--
		if idx < 0 {
			idx = BucketCount - 1
		}
	}
	return accum
}

// ConsecutiveErrors returns the current consecutive-error streak.
func (d *HostDashboard) ConsecutiveErrors() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.consecutiveErrors
}

// SetNeedsPing marks this host as part of a multi-mirror group, which the
// reference daemon always pings to keep its dashboard warm.
func (d *HostDashboard) SetNeedsPing(v bool) {
	d.mu.Lock()
	d.needsPing = v
	d.mu.Unlock()
}

// NeedsPing reports whether this host should be proactively pinged.
func (d *HostDashboard) NeedsPing() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.needsPing
}

// IsHalfPeriodChanged is a monotonic edge detector: it reports true at most
// once per half karma-period, advancing last on each true report. Used to
// rate-limit mirror-group weight recalculation. last is caller-owned state
// (one per mirror group, not per dashboard), matching the reference
// daemon's IsHalfPeriodChanged(DWORD *pLast).
func IsHalfPeriodChanged(last *uint32, karmaPeriod time.Duration) bool {
	seconds := uint32(time.Now().Unix())
	halfPeriod := uint32(karmaPeriod/time.Second) / 2
	if seconds-*last > halfPeriod {
		*last = seconds
		return true
	}
	return false
}

func (d *HostDashboard) acquire() {
	d.mu.Lock()
	d.refs++
	d.mu.Unlock()
}

func (d *HostDashboard) release() int32 {
	d.mu.Lock()
	d.refs--
	n := d.refs
	d.mu.Unlock()
	return n
}

var dashLog = log.WithComponent("dashboard")
