package sched

import (
	"testing"
	"time"
)

type recordingFaultSink struct {
	raised bool
	reason string
}

func (r *recordingFaultSink) RaiseSystemFault(reason string) {
	r.raised = true
	r.reason = reason
}

func TestSchedulerOverrunEscalation(t *testing.T) {
	cycle, _ := newTestCycle(t)
	sink := &recordingFaultSink{}
	// a budget of 1ns guarantees every cycle is judged an overrun without
	// needing to actually block a goroutine for real wall-clock time
	s := NewScheduler(cycle, 1*time.Nanosecond, 0, sink)

	for i := 0; i < MaxConsecutiveOverruns-1; i++ {
		s.runOneCycle(2)
		if sink.raised {
			t.Fatalf("fault raised too early at overrun %d", i+1)
		}
	}
	if s.OverrunCount() != MaxConsecutiveOverruns-1 {
		t.Fatalf("expected overrun count %d, got %d", MaxConsecutiveOverruns-1, s.OverrunCount())
	}

	s.runOneCycle(2)
	if !sink.raised {
		t.Fatal("expected system fault to be raised after 5 consecutive overruns")
	}
	if s.OverrunCount() != MaxConsecutiveOverruns {
		t.Fatalf("expected overrun count %d, got %d", MaxConsecutiveOverruns, s.OverrunCount())
	}
}

func TestSchedulerOverrunResetsOnGoodCycle(t *testing.T) {
	cycle, _ := newTestCycle(t)
	sink := &recordingFaultSink{}
	s := NewScheduler(cycle, 1*time.Nanosecond, 0, sink)

	s.runOneCycle(2)
	s.runOneCycle(2)
	if s.consecutiveOverrun != 2 {
		t.Fatalf("expected 2 consecutive overruns, got %d", s.consecutiveOverrun)
	}

	// a long budget means this cycle will not be judged an overrun
	s.period = time.Hour
	s.runOneCycle(2)
	if s.consecutiveOverrun != 0 {
		t.Fatalf("expected consecutive overrun counter to reset, got %d", s.consecutiveOverrun)
	}
	if sink.raised {
		t.Fatal("fault must not be raised once the streak is broken")
	}
}

func TestSchedulerTelemetryRateLimiting(t *testing.T) {
	cycle, _ := newTestCycle(t)
	s := NewScheduler(cycle, 2*time.Millisecond, 1000, nil)

	allowed := 0
	for i := 0; i < 10; i++ {
		if s.AllowTelemetryPush() {
			allowed++
		}
	}
	if allowed == 0 {
		t.Fatal("expected at least the initial burst to be allowed")
	}
}

func TestSchedulerNoLimiterAlwaysAllows(t *testing.T) {
	cycle, _ := newTestCycle(t)
	s := NewScheduler(cycle, 2*time.Millisecond, 0, nil)
	for i := 0; i < 100; i++ {
		if !s.AllowTelemetryPush() {
			t.Fatal("expected unthrottled scheduler to always allow telemetry pushes")
		}
	}
}
