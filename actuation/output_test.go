package actuation

import (
	"testing"

	"github.com/bdube/pmu/channel"
	"github.com/bdube/pmu/io/hal"
)

const testSetpointID uint16 = 1

func newOutputTestStore(t *testing.T, setpoint int32) *channel.Store {
	t.Helper()
	store := channel.NewStore()
	if err := store.Register(channel.Channel{
		ID:        testSetpointID,
		Name:      "sp",
		Direction: channel.Output,
		Class:     channel.ClassOutputFunction,
		Flags:     channel.Enabled,
		MinValue:  -1000,
		MaxValue:  1000,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.ForceValue(testSetpointID, setpoint); err != nil {
		t.Fatal(err)
	}
	return store
}

// TestSoftStartOvercurrentRetry implements scenario S4: ramp_up_ms=100,
// max_current=5A, inrush_current=8A, inrush_time_ms=200, retry_count=3,
// retry_interval_ms=1000, with a simulated 6A continuous load.
func TestSoftStartOvercurrentRetry(t *testing.T) {
	cfg := Config{
		Name:               "pump",
		SetpointChannel:    testSetpointID,
		MergedPins:         []int{0},
		SoftStartRampMS:    100,
		InrushCurrentMA:    8000,
		InrushTimeMS:       200,
		MaxCurrentMA:       5000,
		MinCurrentMA:       0,
		OverTempThresholdC: 1000,
		MaxRetries:         3,
		RetryIntervalMS:    1000,
	}
	store := newOutputTestStore(t, 1000)
	driver := hal.NewFake(1)
	driver.CurrentMA[0] = 6000
	out := NewOutput(cfg)

	const dt = int64(10)
	var now int64

	step := func() {
		out.Step(store, driver, now, dt)
		now += dt
	}

	// t=0: setpoint goes non-zero -> STARTING begins
	step()
	if out.State != StateStarting {
		t.Fatalf("expected STARTING at t=0, got %v", out.State)
	}

	// Ramp through to just before completion (t in (0,100))
	for now < 100 {
		step()
		if out.Applied < 0 || out.Applied > out.Setpoint {
			t.Fatalf("applied %d out of ramp bounds at t=%d", out.Applied, now)
		}
	}

	// t=100: ramp complete -> ON, still within inrush window (6A < 8A OK)
	step()
	if out.State != StateOn {
		t.Fatalf("expected ON at t=100, got %v", out.State)
	}
	if out.Applied != out.Setpoint {
		t.Fatalf("expected full duty %d applied at ramp completion, got %d", out.Setpoint, out.Applied)
	}

	// 100 < t < 200: still within inrush window, no fault (6A < 8A)
	for now < 200 {
		step()
		if out.State != StateOn {
			t.Fatalf("unexpected state %v inside inrush window at t=%d", out.State, now)
		}
	}

	// t=200: inrush window has ended, 6A > max_current(5A) -> OVERCURRENT
	step()
	if out.State != StateOvercurrent {
		t.Fatalf("expected OVERCURRENT at t=200, got %v", out.State)
	}
	if out.Applied != 0 {
		t.Fatalf("testable property #8 violated: applied=%d within one cycle of fault entry", out.Applied)
	}
	if out.RetryCount != 1 {
		t.Fatalf("expected retry_count=1 after first fault, got %d", out.RetryCount)
	}
	if out.nextRetryDeadline != 1200 {
		t.Fatalf("expected next retry deadline at t=1200 (200+retry_interval_ms), got %d", out.nextRetryDeadline)
	}

	// Retries do not get a fresh ramp/inrush grace period: the 6A load is
	// still present, so the output must re-fault on the exact cycle each
	// retry is attempted, at literal t=1200/2200/3200ms (retry_interval_ms
	// apart, not retry_interval_ms plus another ramp+inrush allowance).
	for _, deadline := range []int64{1200, 2200, 3200} {
		for now < deadline {
			step()
			if out.State != StateOvercurrent {
				t.Fatalf("expected to stay in OVERCURRENT waiting out the retry backoff at t=%d, got %v", now, out.State)
			}
		}
		step()
		if deadline < 3200 {
			wantRetries := int(deadline/1000) + 1
			if out.State != StateOvercurrent {
				t.Fatalf("expected immediate re-fault to OVERCURRENT at t=%d, got %v", deadline, out.State)
			}
			if out.RetryCount != wantRetries {
				t.Fatalf("expected retry_count=%d at t=%d, got %d", wantRetries, deadline, out.RetryCount)
			}
			if out.Applied != 0 {
				t.Fatalf("applied must be 0 immediately on re-fault at t=%d, got %d", deadline, out.Applied)
			}
		}
	}

	// t=3200: MaxRetries(3) already reached, so this deadline latches into
	// terminal FAULT instead of granting a 4th retry attempt.
	if out.State != StateFault {
		t.Fatalf("expected terminal FAULT at t=3200 after exhausting retries, got %v", out.State)
	}
	if out.RetryCount != cfg.MaxRetries {
		t.Fatalf("expected retry_count to stop at MaxRetries=%d, got %d", cfg.MaxRetries, out.RetryCount)
	}
	if out.Applied != 0 {
		t.Fatalf("applied must be 0 in terminal FAULT, got %d", out.Applied)
	}

	// Further stepping must never leave FAULT or retry again.
	preCount := out.RetryCount
	for i := 0; i < 50; i++ {
		step()
	}
	if out.State != StateFault || out.RetryCount != preCount {
		t.Fatalf("terminal FAULT must not retry further, got state=%v retry_count=%d", out.State, out.RetryCount)
	}
}

// TestOutputSafetyOnFaultEntry covers testable property #8 directly: any
// fault entry must force applied_value to 0 within one cycle.
func TestOutputSafetyOnFaultEntry(t *testing.T) {
	cfg := Config{
		Name:               "fan",
		SetpointChannel:    testSetpointID,
		MergedPins:         []int{0},
		InrushCurrentMA:    8000,
		InrushTimeMS:       0,
		MaxCurrentMA:       1000,
		OverTempThresholdC: 900,
		MaxRetries:         1,
		RetryIntervalMS:    500,
	}
	store := newOutputTestStore(t, 1000)
	driver := hal.NewFake(1)
	out := NewOutput(cfg)

	out.Step(store, driver, 0, 10)
	if out.State != StateOn {
		t.Fatalf("expected ON, got %v", out.State)
	}
	if out.Applied != 1000 {
		t.Fatalf("expected applied=1000, got %d", out.Applied)
	}

	// Inject an overtemp fault and step once more.
	driver.TempC[0] = 950
	out.Step(store, driver, 10, 10)
	if out.State != StateOvertemp {
		t.Fatalf("expected OVERTEMP, got %v", out.State)
	}
	if out.Applied != 0 {
		t.Fatalf("applied must drop to 0 within one cycle of fault entry, got %d", out.Applied)
	}
}

// TestPinMergeSum covers testable property #9: for a merged output with N
// physical pins, reported current equals the sum of the N physical currents.
func TestPinMergeSum(t *testing.T) {
	cfg := Config{
		Name:               "merged",
		SetpointChannel:    testSetpointID,
		MergedPins:         []int{0, 1, 2},
		InrushCurrentMA:    100000,
		InrushTimeMS:       0,
		MaxCurrentMA:       100000,
		OverTempThresholdC: 1000,
	}
	store := newOutputTestStore(t, 1000)
	driver := hal.NewFake(3)
	driver.CurrentMA[0] = 1000
	driver.CurrentMA[1] = 1500
	driver.CurrentMA[2] = 2250
	out := NewOutput(cfg)

	out.Step(store, driver, 0, 10)

	const want = int32(1000 + 1500 + 2250)
	if out.MeasuredCurrentMA != want {
		t.Fatalf("expected merged current %d, got %d", want, out.MeasuredCurrentMA)
	}
	for _, pin := range cfg.MergedPins {
		if driver.AppliedDuty(pin) != out.Setpoint {
			t.Fatalf("pin %d not driven in lockstep: applied %d want %d", pin, driver.AppliedDuty(pin), out.Setpoint)
		}
	}
}
