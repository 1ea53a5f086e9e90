package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuemby/shardha/pkg/dashboard"
)

// Registry owns every metric this process exports, registered against a
// private prometheus.Registry rather than the package-global
// DefaultRegisterer, so more than one Registry can coexist in the same
// binary (a CLI invocation plus a test, say) without a duplicate-collector
// panic.
type Registry struct {
	reg *prometheus.Registry

	OutcomesTotal   *prometheus.CounterVec
	AgentAvgLatency *prometheus.GaugeVec
	AgentMaxLatency *prometheus.GaugeVec
	ReplyWait       *prometheus.HistogramVec
}

// NewRegistry builds a Registry with every collector created and registered.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.OutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardha_outcomes_total",
			Help: "Total billed dispatch outcomes by mirror host and outcome kind",
		},
		[]string{"host", "kind"},
	)

	r.AgentAvgLatency = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardha_agent_avg_latency_ms",
			Help: "Rolling average round-trip latency reported by a mirror's dashboard",
		},
		[]string{"host"},
	)

	r.AgentMaxLatency = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardha_agent_max_latency_ms",
			Help: "Rolling max round-trip latency reported by a mirror's dashboard",
		},
		[]string{"host"},
	)

	r.ReplyWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shardha_reply_wait_seconds",
			Help:    "Wall-clock duration of one finished dispatch attempt, successful or not",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host"},
	)

	r.reg.MustRegister(r.OutcomesTotal, r.AgentAvgLatency, r.AgentMaxLatency, r.ReplyWait)
	return r
}

// RecordOutcome implements pkg/dispatch.OutcomeRecorder: it bumps the
// outcome counter and observes the attempt's wall time, both labeled by
// mirror host.
func (r *Registry) RecordOutcome(host string, outcome dashboard.Outcome, d time.Duration) {
	r.OutcomesTotal.WithLabelValues(host, outcome.String()).Inc()
	r.ReplyWait.WithLabelValues(host).Observe(d.Seconds())
}

// RecordDashboard snapshots a mirror's rolling average/max latency
// (GetCollectedStat over the given number of periods) into the latency
// gauges. Callers drive this from their own polling loop; it is not wired
// to every AgentStatsInc call because the gauges only need to move as often
// as a human or alert rule actually looks at them.
func (r *Registry) RecordDashboard(host string, dash *dashboard.HostDashboard, periods int) {
	stat := dash.GetCollectedStat(periods)
	tries := stat.Host[dashboard.ConnTries]
	if tries > 0 {
		// Dashboard aggregates are in microseconds; the gauges report ms.
		r.AgentAvgLatency.WithLabelValues(host).Set(float64(stat.Host[dashboard.TotalMsecs]) / float64(tries) / 1000)
	}
	r.AgentMaxLatency.WithLabelValues(host).Set(float64(stat.Host[dashboard.MaxMsecs]) / 1000)
}

// Handler returns the HTTP handler serving this registry's metrics in
// Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Timer is a small stopwatch for observing a duration into a histogram
// without hand-computing it at the call site.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer running now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
