package sched

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// MaxConsecutiveOverruns is N in spec §7's fatal escalation: "cycle overrun
// beyond N consecutive cycles (N=5) raises the system fault status."
const MaxConsecutiveOverruns = 5

// FaultSink is notified when the scheduler escalates a run of consecutive
// cycle overruns into the system-fatal fault of §7 ("... and triggers load
// shedding"); shedding itself is the caller's responsibility (typically
// disabling every non-critical actuation.Output), this just raises the flag.
type FaultSink interface {
	RaiseSystemFault(reason string)
}

// Scheduler drives a Cycle on a fixed-period time.Ticker, tracking
// accumulated dt and the cycle_overrun counter of §5/§7. Grounded on
// envsrv.Envmon's time.Ticker + stop-channel runner, generalized from
// "sample one device on a timer" to "run one full core cycle on a timer."
type Scheduler struct {
	cycle  *Cycle
	period time.Duration
	fault  FaultSink

	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}

	telemetryLimiter *rate.Limiter

	overrunCount      int64
	consecutiveOverrun int
	nowMS             int64
}

// NewScheduler builds a Scheduler driving cycle at period, throttling any
// telemetry push stream to telemetryHz (0 disables throttling). Mirrors
// nkt.go's rate.NewLimiter(r, burst) pacing of outbound telegrams, reused
// here to bound how often telemetry pushes compete with the core task.
func NewScheduler(cycle *Cycle, period time.Duration, telemetryHz float64, fault FaultSink) *Scheduler {
	var limiter *rate.Limiter
	if telemetryHz > 0 {
		limiter = rate.NewLimiter(rate.Limit(telemetryHz), 1)
	}
	return &Scheduler{
		cycle:            cycle,
		period:           period,
		fault:            fault,
		telemetryLimiter: limiter,
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}
}

// Start begins the periodic run loop in its own goroutine.
func (s *Scheduler) Start() {
	s.ticker = time.NewTicker(s.period)
	go s.run()
}

// Stop halts the run loop and waits for it to exit.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)
	periodMS := s.period.Milliseconds()
	last := time.Now()
	for {
		select {
		case tick := <-s.ticker.C:
			dtMS := tick.Sub(last).Milliseconds()
			if dtMS <= 0 {
				dtMS = periodMS
			}
			last = tick
			s.runOneCycle(dtMS)
		case <-s.stop:
			s.ticker.Stop()
			return
		}
	}
}

// runOneCycle runs a single cycle, applying the overrun policy of §5: if the
// cycle takes longer than its budget, the next tick is effectively skipped
// (time.Ticker already drops ticks it can't deliver) and the accumulated dt
// is passed through so wall-clock-correct state still advances.
func (s *Scheduler) runOneCycle(dtMS int64) {
	budget := s.period
	start := time.Now()

	s.nowMS += dtMS
	s.cycle.Run(s.nowMS, dtMS)

	elapsed := time.Since(start)
	if elapsed > budget {
		atomic.AddInt64(&s.overrunCount, 1)
		s.consecutiveOverrun++
		if s.consecutiveOverrun >= MaxConsecutiveOverruns && s.fault != nil {
			s.fault.RaiseSystemFault("cycle overrun exceeded 5 consecutive cycles")
		}
	} else {
		s.consecutiveOverrun = 0
	}
}

// OverrunCount returns the total number of cycles that exceeded budget.
func (s *Scheduler) OverrunCount() int64 {
	return atomic.LoadInt64(&s.overrunCount)
}

// AllowTelemetryPush reports whether a telemetry push may proceed now
// without exceeding the configured rate, never blocking the caller.
func (s *Scheduler) AllowTelemetryPush() bool {
	if s.telemetryLimiter == nil {
		return true
	}
	return s.telemetryLimiter.Allow()
}
