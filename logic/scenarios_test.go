package logic

import (
	"testing"

	"github.com/bdube/pmu/channel"
)

const (
	testIn1  uint16 = 1
	testIn2  uint16 = 2
	testOut  uint16 = 3
	testOut2 uint16 = 4
)

func newScenarioStore(t *testing.T) *channel.Store {
	t.Helper()
	store := channel.NewStore()
	for _, id := range []uint16{testIn1, testIn2} {
		if err := store.Register(channel.Channel{
			ID: id, Direction: channel.Input, Class: channel.ClassInputAnalog,
		}); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range []uint16{testOut, testOut2} {
		if err := store.Register(channel.Channel{
			ID: id, Direction: channel.Output, Class: channel.ClassOutputFunction,
			Flags: channel.Enabled, MinValue: -100000, MaxValue: 100000,
		}); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func newScenarioEngine(t *testing.T, f *Function) *Engine {
	t.Helper()
	e := NewEngine()
	if err := e.Add(f); err != nil {
		t.Fatal(err)
	}
	return e
}

// TestScenarioS1Hysteresis implements spec §8 Scenario S1: HYSTERESIS with
// threshold_on=900, threshold_off=800 against the sequence
// {700,850,910,870,820,790,850}, expecting output {0,0,1,1,1,0,0}.
func TestScenarioS1Hysteresis(t *testing.T) {
	store := newScenarioStore(t)
	f := &Function{
		FunctionID: 1,
		Kind:       KindHysteresis,
		Inputs:     []uint16{testIn1},
		Output:     testOut,
		Enabled:    true,
	}
	f.Params.Filter.ThresholdOn = 900
	f.Params.Filter.ThresholdOff = 800
	e := newScenarioEngine(t, f)

	seq := []int32{700, 850, 910, 870, 820, 790, 850}
	want := []int32{0, 0, 1, 1, 1, 0, 0}

	var now int64
	for i, v := range seq {
		if err := store.ForceValue(testIn1, v); err != nil {
			t.Fatal(err)
		}
		e.Step(store, now, 10)
		now += 10
		if got := store.GetValue(testOut); got != want[i] {
			t.Fatalf("step %d: input=%d got output=%d, want %d", i, v, got, want[i])
		}
	}
}

// TestScenarioS2DelayOff implements spec §8 Scenario S2: DELAY_OFF with
// cycle_ms=2, delay_ms=100, input going false starting at cycle 50. Output
// must stay 1 through cycle 99 and fall to 0 only at cycle 100.
func TestScenarioS2DelayOff(t *testing.T) {
	store := newScenarioStore(t)
	f := &Function{
		FunctionID: 1,
		Kind:       KindDelayOff,
		Inputs:     []uint16{testIn1},
		Output:     testOut,
		Enabled:    true,
	}
	f.Params.StateOp.DelayMS = 100
	e := newScenarioEngine(t, f)

	const cycleMS = int64(2)
	var now int64
	for cycle := 0; cycle <= 100; cycle++ {
		v := int32(1)
		if cycle >= 50 {
			v = 0
		}
		if err := store.ForceValue(testIn1, v); err != nil {
			t.Fatal(err)
		}
		e.Step(store, now, cycleMS)
		now += cycleMS

		got := store.GetValue(testOut)
		switch {
		case cycle < 99:
			if got != 1 {
				t.Fatalf("cycle %d: expected output=1 (still within delay_ms), got %d", cycle, got)
			}
		case cycle == 99:
			if got != 1 {
				t.Fatalf("cycle 99: expected output=1 (delay not yet elapsed), got %d", got)
			}
		case cycle == 100:
			if got != 0 {
				t.Fatalf("cycle 100: expected output=0 (delay_ms elapsed), got %d", got)
			}
		}
	}
}

// TestDelayOnRisesAfterDelay covers Testable Property #4: DELAY_ON's output
// rises ceil(delay_ms/cycle_ms) cycles after the input first goes true, not
// one cycle early.
func TestDelayOnRisesAfterDelay(t *testing.T) {
	store := newScenarioStore(t)
	f := &Function{
		FunctionID: 1,
		Kind:       KindDelayOn,
		Inputs:     []uint16{testIn1},
		Output:     testOut,
		Enabled:    true,
	}
	f.Params.StateOp.DelayMS = 100
	e := newScenarioEngine(t, f)

	if err := store.ForceValue(testIn1, 1); err != nil {
		t.Fatal(err)
	}

	const cycleMS = int64(2)
	var now int64
	for cycle := 0; cycle <= 50; cycle++ {
		e.Step(store, now, cycleMS)
		now += cycleMS
		got := store.GetValue(testOut)
		if cycle < 50 {
			if got != 0 {
				t.Fatalf("cycle %d: expected output=0 before delay_ms elapsed, got %d", cycle, got)
			}
		} else if cycle == 50 {
			if got != 1 {
				t.Fatalf("cycle 50 (delay_ms/cycle_ms cycles after input went true): expected output=1, got %d", got)
			}
		}
	}
}

// TestScenarioS3PID implements spec §8 Scenario S3: PID with Kp=2.0, Ki=0.1,
// Kd=0, dt=10ms, setpoint=500, pv held at a constant error of 100. Output
// must saturate at output_max=1000 within 100 cycles (1s), and anti-windup
// must prevent overshoot when the error then reverses.
func TestScenarioS3PID(t *testing.T) {
	store := newScenarioStore(t)
	f := &Function{
		FunctionID: 1,
		Kind:       KindPID,
		Inputs:     []uint16{testIn1, testIn2},
		Output:     testOut,
		Enabled:    true,
	}
	f.Params.Control.Kp = 2000
	f.Params.Control.Ki = 100
	f.Params.Control.OutputMin = 0
	f.Params.Control.OutputMax = 1000
	e := newScenarioEngine(t, f)

	if err := store.ForceValue(testIn1, 500); err != nil {
		t.Fatal(err)
	}
	if err := store.ForceValue(testIn2, 400); err != nil {
		t.Fatal(err)
	}

	var now int64
	saturated := false
	for cycle := 0; cycle < 100; cycle++ {
		e.Step(store, now, 10)
		now += 10
		if store.GetValue(testOut) == 1000 {
			saturated = true
			break
		}
	}
	if !saturated {
		t.Fatalf("PID output never saturated at output_max within 100 cycles (integrator truncation regression)")
	}
	if got := store.GetValue(testOut); got > 1000 {
		t.Fatalf("PID output exceeded output_max: %d", got)
	}

	// Reverse the error; anti-windup must prevent a clamped integrator from
	// holding the output pinned at max for long past the reversal.
	if err := store.ForceValue(testIn2, 520); err != nil {
		t.Fatal(err)
	}
	e.Step(store, now, 10)
	now += 10
	if got := store.GetValue(testOut); got >= 1000 {
		t.Fatalf("expected output to move off output_max within one cycle of error reversal, got %d", got)
	}
}

// TestScenarioS5Table1D implements spec §8 Scenario S5: TABLE_1D linear
// interpolation, lookup(625)=600 and lookup(125)=50 against the breakpoint
// axis from spec §8.
func TestScenarioS5Table1D(t *testing.T) {
	store := newScenarioStore(t)
	f := &Function{
		FunctionID: 1,
		Kind:       KindTable1D,
		Inputs:     []uint16{testIn1},
		Output:     testOut,
		Enabled:    true,
	}
	f.Params.Table.X = []int32{0, 250, 500, 750, 1000}
	f.Params.Table.Y1D = []int32{0, 100, 400, 800, 1000}
	f.Params.Table.Mode = InterpLinear
	e := newScenarioEngine(t, f)

	cases := []struct {
		x, want int32
	}{
		{625, 600},
		{125, 50},
	}
	var now int64
	for _, c := range cases {
		if err := store.ForceValue(testIn1, c.x); err != nil {
			t.Fatal(err)
		}
		e.Step(store, now, 10)
		now += 10
		if got := store.GetValue(testOut); got != c.want {
			t.Fatalf("lookup(%d): got %d, want %d", c.x, got, c.want)
		}
	}
}

// TestScenarioS6RedundancyCheck implements spec §8 Scenario S6:
// REDUNDANCY_CHECK with max_deviation=100: a=500/b=520 reads fault=0 and
// avg=510; a=500/b=650 reads fault=1; returning to a=500/b=520 clears the
// fault within one cycle (no latching).
func TestScenarioS6RedundancyCheck(t *testing.T) {
	store := newScenarioStore(t)
	f := &Function{
		FunctionID: 1,
		Kind:       KindRedundancyCheck,
		Inputs:     []uint16{testIn1, testIn2},
		Output:     testOut,
		Output2:    testOut2,
		Enabled:    true,
	}
	f.Params.ChannelOps.MaxDeviation = 100
	e := newScenarioEngine(t, f)

	step := func(a, b int32) (avg, fault int32) {
		if err := store.ForceValue(testIn1, a); err != nil {
			t.Fatal(err)
		}
		if err := store.ForceValue(testIn2, b); err != nil {
			t.Fatal(err)
		}
		e.Step(store, 0, 10)
		return store.GetValue(testOut), store.GetValue(testOut2)
	}

	if avg, fault := step(500, 520); avg != 510 || fault != 0 {
		t.Fatalf("a=500,b=520: got avg=%d fault=%d, want avg=510 fault=0", avg, fault)
	}
	if avg, fault := step(500, 650); avg != 575 || fault != 1 {
		t.Fatalf("a=500,b=650: got avg=%d fault=%d, want avg=575 fault=1", avg, fault)
	}
	if avg, fault := step(500, 520); avg != 510 || fault != 0 {
		t.Fatalf("fault must clear within one cycle once deviation drops back in band, got avg=%d fault=%d", avg, fault)
	}
}
