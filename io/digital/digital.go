// Package digital adapts physical digital inputs (state, frequency, rpm) per
// spec §6.2: "state(index) -> {low,high}; frequency(index) -> Hz; rpm(index)
// -> rpm (with teeth and multiplier/divider applied)".
package digital

import "github.com/bdube/pmu/channel"

// Reader is the narrow digital-input source interface.
type Reader interface {
	State(index int) (bool, error)
	FrequencyHz(index int) (int32, error)
	RPM(index int) (int32, error)
}

// Kind selects which of a digital input's three readings a Mapping exposes.
type Kind uint8

const (
	KindState Kind = iota
	KindFrequency
	KindRPM
)

// Mapping binds one physical digital index/kind to one input channel id.
// Teeth and RatioNum/RatioDen implement the "teeth and multiplier/divider"
// transform spec §6.2 requires of RPM readings; RatioDen of 0 disables the
// ratio (pass RPM through as read).
type Mapping struct {
	ChannelID uint16
	Index     int
	Kind      Kind

	Teeth              int32
	RatioNum, RatioDen int32
}

// Adapter samples a Reader for each configured Mapping once per cycle.
type Adapter struct {
	Source   Reader
	Mappings []Mapping
}

// Sample implements sched.Sampler.
func (a *Adapter) Sample(store *channel.Store, nowMS int64) {
	for _, m := range a.Mappings {
		switch m.Kind {
		case KindState:
			if v, err := a.Source.State(m.Index); err == nil {
				store.ForceValue(m.ChannelID, boolToInt32(v))
			}
		case KindFrequency:
			if v, err := a.Source.FrequencyHz(m.Index); err == nil {
				store.ForceValue(m.ChannelID, v)
			}
		case KindRPM:
			if v, err := a.Source.RPM(m.Index); err == nil {
				store.ForceValue(m.ChannelID, applyRatio(v, m))
			}
		}
	}
}

func applyRatio(rpm int32, m Mapping) int32 {
	if m.Teeth > 1 {
		rpm /= m.Teeth
	}
	if m.RatioDen != 0 {
		rpm = rpm * m.RatioNum / m.RatioDen
	}
	return rpm
}

func boolToInt32(v bool) int32 {
	if v {
		return 1
	}
	return 0
}
