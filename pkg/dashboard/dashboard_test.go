package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentStatsIncUpdatesConsecutiveErrors(t *testing.T) {
	d := NewHostDashboard("db1:9312", time.Minute, time.Second)

	now := time.Now()
	d.AgentStatsInc(NetworkErrors, false, now, now.Add(10*time.Millisecond))
	d.AgentStatsInc(TimeoutsQuery, false, now, now.Add(10*time.Millisecond))
	assert.Equal(t, 2, d.ConsecutiveErrors())

	d.AgentStatsInc(NetworkNonCritical, false, now, now.Add(10*time.Millisecond))
	assert.Equal(t, 0, d.ConsecutiveErrors())
}

func TestAgentStatsIncSkipsPingDuration(t *testing.T) {
	d := NewHostDashboard("db1:9312", time.Minute, time.Second)
	now := time.Now()
	d.AgentStatsInc(NetworkNonCritical, true, now, now.Add(50*time.Millisecond))

	stat := d.GetCollectedStat(1)
	assert.Equal(t, uint64(0), stat.Host[TotalMsecs])
	assert.Equal(t, uint64(1), stat.Counters[NetworkNonCritical])
}

func TestTrackProcessingTimeRunningAverage(t *testing.T) {
	d := NewHostDashboard("db1:9312", time.Minute, time.Second)
	d.TrackProcessingTime(10 * time.Millisecond)
	d.TrackProcessingTime(20 * time.Millisecond)

	stat := d.GetCollectedStat(1)
	require.Equal(t, uint64(2), stat.Host[ConnTries])
	assert.Equal(t, uint64(20000), stat.Host[MaxMsecs])
	assert.Equal(t, uint64(15000), stat.Host[AverageMsecs])
}

func TestDashboardRingOverwritesStaleBucketOnReuse(t *testing.T) {
	d := NewHostDashboard("db1:9312", time.Millisecond, time.Second)

	base := time.Now()
	for i := 0; i < BucketCount+5; i++ {
		at := base.Add(time.Duration(i) * time.Millisecond)
		d.mu.Lock()
		bucket := d.currentBucket(at)
		bucket.Counters[NetworkNonCritical]++
		d.mu.Unlock()
	}

	var total uint64
	for _, b := range d.buckets {
		total += b.Counters[NetworkNonCritical]
	}
	// Each of the BucketCount+5 writes landed in one of only BucketCount
	// slots; periods that reused a slot reset it first, so the live total
	// can never exceed one observation per slot.
	assert.LessOrEqual(t, total, uint64(BucketCount))
}

func TestIsHalfPeriodChanged(t *testing.T) {
	var last uint32
	karma := 10 * time.Second
	assert.True(t, IsHalfPeriodChanged(&last, karma))
	assert.False(t, IsHalfPeriodChanged(&last, karma))
}
