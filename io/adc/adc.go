// Package adc adapts physical analog-to-digital channels into the channel
// store's input side (spec §6.2: "sample_raw(index) -> 12-bit,
// sample_scaled(index) -> signed int in configured format").
package adc

import "github.com/bdube/pmu/channel"

// Sampler is the small, capability-scoped interface the core expects of an
// ADC source, grounded on comm.SendRecver's "narrow interface per concern"
// shape rather than one fat device interface.
type Sampler interface {
	SampleRaw(index int) (uint16, error)
	SampleScaled(index int) (int32, error)
}

// Mapping binds one physical ADC index to one input channel id.
type Mapping struct {
	ChannelID uint16
	Index     int
}

// Adapter samples a Sampler for each configured Mapping once per cycle and
// force-writes the result into the channel store (spec §3.1: input channels
// are written only by the sampling layer).
type Adapter struct {
	Source   Sampler
	Mappings []Mapping
}

// Sample implements sched.Sampler.
func (a *Adapter) Sample(store *channel.Store, nowMS int64) {
	for _, m := range a.Mappings {
		v, err := a.Source.SampleScaled(m.Index)
		if err != nil {
			continue
		}
		store.ForceValue(m.ChannelID, v)
	}
}
