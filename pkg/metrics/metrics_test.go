package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cuemby/shardha/pkg/dashboard"
)

func TestRecordOutcome(t *testing.T) {
	r := NewRegistry()
	r.RecordOutcome("10.0.0.1:9312", dashboard.NetworkNonCritical, 15*time.Millisecond)
	r.RecordOutcome("10.0.0.1:9312", dashboard.ConnectFailures, 5*time.Millisecond)

	if got := testutil.ToFloat64(r.OutcomesTotal.WithLabelValues("10.0.0.1:9312", "network_non_critical")); got != 1 {
		t.Errorf("expected 1 network_non_critical outcome, got %v", got)
	}
	if got := testutil.ToFloat64(r.OutcomesTotal.WithLabelValues("10.0.0.1:9312", "connect_failures")); got != 1 {
		t.Errorf("expected 1 connect_failures outcome, got %v", got)
	}
}

func TestRecordDashboard(t *testing.T) {
	r := NewRegistry()
	dash := dashboard.NewHostDashboard("agent1", time.Minute, time.Second)

	now := time.Now()
	dash.AgentStatsInc(dashboard.NetworkNonCritical, false, now, now.Add(20*time.Millisecond))
	dash.TrackProcessingTime(20 * time.Millisecond)

	r.RecordDashboard("agent1", dash, 2)

	if got := testutil.ToFloat64(r.AgentMaxLatency.WithLabelValues("agent1")); got <= 0 {
		t.Errorf("expected positive max latency gauge, got %v", got)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	r := NewRegistry()
	r.RecordOutcome("host", dashboard.NetworkNonCritical, time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.Len() == 0 {
		t.Error("expected non-empty metrics body")
	}
}
