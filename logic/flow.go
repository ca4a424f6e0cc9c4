package logic

import "github.com/bdube/pmu/channel"

// CaseEntry pairs a match value with the output to drive when inputs[0]
// equals it (SWITCH_CASE).
type CaseEntry struct {
	Value  int32
	Output int32
}

// FlowParams configures the control-flow family (spec §4.2, 0x50-0x5F)
type FlowParams struct {
	// SelectorChannel is the channel id MUX reads to choose among Inputs,
	// independent of the Inputs list itself (unlike SELECT, whose index is
	// inputs[0])
	SelectorChannel uint16

	// Cases is the match table for SWITCH_CASE, tested in order
	Cases []CaseEntry
	// Default is SWITCH_CASE's output when no case matches
	Default int32

	// Thresholds are ascending breakpoints for THRESHOLD_SELECT; Outputs has
	// len(Thresholds)+1 entries, one per bucket
	Thresholds []int32
	Outputs    []int32

	// DisabledValue is CONDITIONAL_ENABLE's output while inputs[0] is false
	DisabledValue int32

	// Steps is the ordered list of (value, hold_ms) pairs for SEQUENCE
	Steps []SequenceStep
	// Loop restarts SEQUENCE from step 0 after the last step's hold expires
	Loop bool
}

// SequenceStep is one step of a SEQUENCE function
type SequenceStep struct {
	Value  int32
	HoldMS int64
}

// FlowState holds SEQUENCE's persistent step/elapsed-time counters
type FlowState struct {
	Step       int
	ElapsedMS  int64
	Done       bool
}

func init() {
	register(KindIfThenElse, opIfThenElse)
	register(KindSelect, opSelect)
	register(KindMux, opMux)
	register(KindPriorityEncoder, opPriorityEncoder)
	register(KindSwitchCase, opSwitchCase)
	register(KindThresholdSelect, opThresholdSelect)
	register(KindConditionalEnable, opConditionalEnable)
	register(KindSequence, opSequence)
}

// opIfThenElse: inputs[0]=condition, inputs[1]=then, inputs[2]=else
func opIfThenElse(store *channel.Store, f *Function, nowMS, dtMS int64) {
	if truthy(input(store, f, 0)) {
		writeOutput(store, f.Output, input(store, f, 1))
	} else {
		writeOutput(store, f.Output, input(store, f, 2))
	}
}

// opSelect: inputs[0]=index, inputs[1:]=candidates
func opSelect(store *channel.Store, f *Function, nowMS, dtMS int64) {
	idx := int(input(store, f, 0))
	candidates := len(f.Inputs) - 1
	if idx < 0 || idx >= candidates {
		return
	}
	writeOutput(store, f.Output, input(store, f, 1+idx))
}

// opMux: selector read from a configured channel, independent of Inputs
func opMux(store *channel.Store, f *Function, nowMS, dtMS int64) {
	idx := int(store.GetValue(f.Params.Flow.SelectorChannel))
	if idx < 0 || idx >= len(f.Inputs) {
		return
	}
	writeOutput(store, f.Output, input(store, f, idx))
}

// opPriorityEncoder: output is the index of the first truthy input, or -1
func opPriorityEncoder(store *channel.Store, f *Function, nowMS, dtMS int64) {
	for i := range f.Inputs {
		if truthy(input(store, f, i)) {
			writeOutput(store, f.Output, int32(i))
			return
		}
	}
	writeOutput(store, f.Output, -1)
}

func opSwitchCase(store *channel.Store, f *Function, nowMS, dtMS int64) {
	v := input(store, f, 0)
	p := f.Params.Flow
	for _, c := range p.Cases {
		if c.Value == v {
			writeOutput(store, f.Output, c.Output)
			return
		}
	}
	writeOutput(store, f.Output, p.Default)
}

func opThresholdSelect(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Flow
	if len(p.Outputs) != len(p.Thresholds)+1 {
		return
	}
	v := input(store, f, 0)
	bucket := len(p.Thresholds)
	for i, t := range p.Thresholds {
		if v < t {
			bucket = i
			break
		}
	}
	writeOutput(store, f.Output, p.Outputs[bucket])
}

// opConditionalEnable: inputs[0]=enable, inputs[1]=value
func opConditionalEnable(store *channel.Store, f *Function, nowMS, dtMS int64) {
	if truthy(input(store, f, 0)) {
		writeOutput(store, f.Output, input(store, f, 1))
		return
	}
	writeOutput(store, f.Output, f.Params.Flow.DisabledValue)
}

// opSequence steps through a configured value/hold_ms list, advancing when
// the current step's hold expires
func opSequence(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Flow
	s := &f.State.Flow
	if len(p.Steps) == 0 {
		return
	}
	if s.Done {
		return
	}
	if s.Step >= len(p.Steps) {
		s.Step = len(p.Steps) - 1
	}
	writeOutput(store, f.Output, p.Steps[s.Step].Value)
	s.ElapsedMS += dtMS
	if s.ElapsedMS >= p.Steps[s.Step].HoldMS {
		s.ElapsedMS = 0
		s.Step++
		if s.Step >= len(p.Steps) {
			if p.Loop {
				s.Step = 0
			} else {
				s.Step = len(p.Steps) - 1
				s.Done = true
			}
		}
	}
}
