package metrics

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentiles(t *testing.T) {
	lt := NewLatencyTracker(100)
	for i := 1; i <= 100; i++ {
		lt.Record(time.Duration(i) * time.Millisecond)
	}

	s := lt.Stats()
	if s.Count != 100 {
		t.Fatalf("Count = %d", s.Count)
	}
	if s.Min != time.Millisecond || s.Max != 100*time.Millisecond {
		t.Errorf("Min/Max = %v/%v", s.Min, s.Max)
	}
	if s.P50 != 50*time.Millisecond {
		t.Errorf("P50 = %v", s.P50)
	}
}

func TestLatencyTrackerWindow(t *testing.T) {
	lt := NewLatencyTracker(10)
	for i := 0; i < 25; i++ {
		lt.Record(time.Millisecond)
	}
	if s := lt.Stats(); s.Count > 10 {
		t.Errorf("Count = %d, window is 10", s.Count)
	}
}

func TestRegistryCounters(t *testing.T) {
	r := NewRegistry(10)
	r.Inc("triage.processed")
	r.Inc("triage.processed")
	r.Inc("triage.skipped")

	if got := r.Count("triage.processed"); got != 2 {
		t.Errorf("processed = %d", got)
	}
	snap := r.Snapshot()
	if _, ok := snap["counters"]; !ok {
		t.Error("snapshot missing counters")
	}
}

func TestAssessDBPoolHealth(t *testing.T) {
	tests := []struct {
		stats DBPoolStats
		want  PoolHealthStatus
	}{
		{DBPoolStats{}, PoolHealthy},
		{DBPoolStats{AcquiredConns: 2, MaxConns: 10}, PoolHealthy},
		{DBPoolStats{AcquiredConns: 9, MaxConns: 10}, PoolDegraded},
		{DBPoolStats{AcquiredConns: 10, MaxConns: 10}, PoolUnhealthy},
	}
	for _, tt := range tests {
		if got := AssessDBPoolHealth(tt.stats).Status; got != tt.want {
			t.Errorf("AssessDBPoolHealth(%+v) = %s, want %s", tt.stats, got, tt.want)
		}
	}
}
