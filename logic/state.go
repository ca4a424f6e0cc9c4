package logic

import "github.com/bdube/pmu/channel"

// EdgeMode selects which transition COUNTER reacts to
type EdgeMode uint8

const (
	EdgeRising EdgeMode = iota
	EdgeFalling
	EdgeBoth
)

// Transition is one entry of STATE_MACHINE's transition table: from state
// (current_state, event_index) to next state (spec §4.2 "State machine")
type Transition struct {
	FromState  int32
	EventIndex int
	ToState    int32
}

// StateOpParams configures the state family (spec §4.2, 0xC0-0xCF)
type StateOpParams struct {
	// PulseMS is PULSE's retrigger duration
	PulseMS int64
	// DelayMS is DELAY_ON/DELAY_OFF's hold time
	DelayMS int64

	// FlasherOnMS/FlasherOffMS set FLASHER's duty cycle
	FlasherOnMS, FlasherOffMS int64

	// CounterEdge selects COUNTER's trigger edge; CounterWrap bounds its count
	CounterEdge EdgeMode
	CounterWrap int32

	// Transitions is STATE_MACHINE's lookup table; InitialState seeds State.Value
	Transitions  []Transition
	InitialState int32
}

// StateOpState holds the state family's persistent memory. A given Function
// only exercises the fields its Kind needs.
type StateOpState struct {
	Latched bool

	PrevInput int32
	HasPrev   bool

	PulseRemainingMS int64

	TrueSinceMS  int64
	FalseSinceMS int64
	HasBeenTrue  bool
	HasBeenFalse bool

	PhaseMS int64

	Count int32

	TimerRunning  bool
	TimerElapsed  int64

	Value int32
	Held  bool

	Peak int32
	Min  int32
	HasSample bool
}

func init() {
	register(KindSRLatch, opSRLatch)
	register(KindToggle, opToggle)
	register(KindPulse, opPulse)
	register(KindDelayOn, opDelayOn)
	register(KindDelayOff, opDelayOff)
	register(KindFlasher, opFlasher)
	register(KindCounter, opCounter)
	register(KindTimer, opTimer)
	register(KindStateMachine, opStateMachine)
	register(KindMemory, opMemory)
	register(KindPeakHold, opPeakHold)
	register(KindMinHold, opMinHold)
}

// opSRLatch: inputs[0]=set, inputs[1]=reset, reset has priority
func opSRLatch(store *channel.Store, f *Function, nowMS, dtMS int64) {
	s := &f.State.StateOp
	if truthy(input(store, f, 1)) {
		s.Latched = false
	} else if truthy(input(store, f, 0)) {
		s.Latched = true
	}
	writeOutput(store, f.Output, boolToInt32(s.Latched))
}

// opToggle flips output on every 0->nonzero transition of inputs[0]
func opToggle(store *channel.Store, f *Function, nowMS, dtMS int64) {
	s := &f.State.StateOp
	v := truthy(input(store, f, 0))
	if v && (!s.HasPrev || s.PrevInput == 0) {
		s.Latched = !s.Latched
	}
	s.PrevInput = boolToInt32(v)
	s.HasPrev = true
	writeOutput(store, f.Output, boolToInt32(s.Latched))
}

// opPulse: rising edge on inputs[0] (re)starts a PulseMS timer; output is
// true while the timer runs (retriggerable)
func opPulse(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.StateOp
	s := &f.State.StateOp
	v := truthy(input(store, f, 0))
	if v && (!s.HasPrev || s.PrevInput == 0) {
		s.PulseRemainingMS = p.PulseMS
	}
	s.PrevInput = boolToInt32(v)
	s.HasPrev = true
	if s.PulseRemainingMS > 0 {
		s.PulseRemainingMS -= dtMS
		writeOutput(store, f.Output, 1)
		return
	}
	writeOutput(store, f.Output, 0)
}

// opDelayOn: output rises only after inputs[0] has been continuously true
// for DelayMS; falls immediately (spec §4.2 "DELAY_ON / DELAY_OFF")
func opDelayOn(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.StateOp
	s := &f.State.StateOp
	v := truthy(input(store, f, 0))
	if !v {
		s.HasBeenTrue = false
		s.TrueSinceMS = 0
		writeOutput(store, f.Output, 0)
		return
	}
	if !s.HasBeenTrue {
		s.HasBeenTrue = true
		s.TrueSinceMS = 0
	} else {
		s.TrueSinceMS += dtMS
	}
	writeOutput(store, f.Output, boolToInt32(s.TrueSinceMS >= p.DelayMS))
}

// opDelayOff: output rises immediately when inputs[0] is true; falls only
// after it has been continuously false for DelayMS
func opDelayOff(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.StateOp
	s := &f.State.StateOp
	v := truthy(input(store, f, 0))
	if v {
		s.HasBeenFalse = false
		s.FalseSinceMS = 0
		s.Latched = true
		writeOutput(store, f.Output, 1)
		return
	}
	if !s.HasBeenFalse {
		s.HasBeenFalse = true
		s.FalseSinceMS = 0
	} else {
		s.FalseSinceMS += dtMS
	}
	if s.FalseSinceMS >= p.DelayMS {
		s.Latched = false
	}
	writeOutput(store, f.Output, boolToInt32(s.Latched))
}

// opFlasher: while inputs[0] is true, phase advances by the cycle period;
// output = (phase mod (on+off)) < on_ms (spec §4.2 "FLASHER")
func opFlasher(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.StateOp
	s := &f.State.StateOp
	period := p.FlasherOnMS + p.FlasherOffMS
	if !truthy(input(store, f, 0)) || period <= 0 {
		s.PhaseMS = 0
		writeOutput(store, f.Output, 0)
		return
	}
	s.PhaseMS = (s.PhaseMS + dtMS) % period
	writeOutput(store, f.Output, boolToInt32(s.PhaseMS < p.FlasherOnMS))
}

// opCounter increments on the configured edge of inputs[0], wrapping at CounterWrap
func opCounter(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.StateOp
	s := &f.State.StateOp
	v := truthy(input(store, f, 0))
	prev := s.PrevInput != 0
	rising := v && !prev
	falling := !v && prev && s.HasPrev
	fire := false
	switch p.CounterEdge {
	case EdgeRising:
		fire = rising && s.HasPrev
	case EdgeFalling:
		fire = falling
	case EdgeBoth:
		fire = (rising && s.HasPrev) || falling
	}
	if fire {
		s.Count++
		if p.CounterWrap > 0 && s.Count >= p.CounterWrap {
			s.Count = 0
		}
	}
	s.PrevInput = boolToInt32(v)
	s.HasPrev = true
	writeOutput(store, f.Output, s.Count)
}

// opTimer: inputs[0]=run, inputs[1]=reset; accumulates elapsed ms while running
func opTimer(store *channel.Store, f *Function, nowMS, dtMS int64) {
	s := &f.State.StateOp
	if truthy(input(store, f, 1)) {
		s.TimerElapsed = 0
	}
	if truthy(input(store, f, 0)) {
		s.TimerElapsed += dtMS
	}
	writeOutput(store, f.Output, saturate32(s.TimerElapsed))
}

// opStateMachine scans event inputs in order; the first truthy one whose
// (state, index) has a matching transition fires it (spec §4.2 "State machine")
func opStateMachine(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.StateOp
	s := &f.State.StateOp
	if !s.HasPrev {
		s.Value = p.InitialState
		s.HasPrev = true
	}
	for i := range f.Inputs {
		if !truthy(input(store, f, i)) {
			continue
		}
		for _, tr := range p.Transitions {
			if tr.FromState == s.Value && tr.EventIndex == i {
				s.Value = tr.ToState
				writeOutput(store, f.Output, s.Value)
				return
			}
		}
	}
	writeOutput(store, f.Output, s.Value)
}

// opMemory: sample-and-hold. inputs[0]=sample trigger, inputs[1]=value
func opMemory(store *channel.Store, f *Function, nowMS, dtMS int64) {
	s := &f.State.StateOp
	if truthy(input(store, f, 0)) || !s.Held {
		s.Value = input(store, f, 1)
		s.Held = true
	}
	writeOutput(store, f.Output, s.Value)
}

func opPeakHold(store *channel.Store, f *Function, nowMS, dtMS int64) {
	s := &f.State.StateOp
	v := input(store, f, 0)
	if !s.HasSample || v > s.Peak {
		s.Peak = v
		s.HasSample = true
	}
	writeOutput(store, f.Output, s.Peak)
}

func opMinHold(store *channel.Store, f *Function, nowMS, dtMS int64) {
	s := &f.State.StateOp
	v := input(store, f, 0)
	if !s.HasSample || v < s.Min {
		s.Min = v
		s.HasSample = true
	}
	writeOutput(store, f.Output, s.Min)
}
