// Package sched drives the core real-time task: one fixed-order pass of
// sample -> logic -> actuate -> handlers per cycle, plus the ticker loop and
// overrun policy of spec §5.
package sched

import (
	"github.com/bdube/pmu/actuation"
	"github.com/bdube/pmu/channel"
	"github.com/bdube/pmu/handler"
	"github.com/bdube/pmu/logic"
)

// Sampler pushes fresh input values into store for one cycle. Adapters in
// io/adc, io/digital, and io/can each implement this over their own source.
type Sampler interface {
	Sample(store *channel.Store, nowMS int64)
}

// Cycle bundles the owning-object-per-region stack of §5 ("exactly one
// writer per region") and runs them in the fixed phase order of §5's
// ordering guarantees: inputs sampled -> logic evaluated -> outputs actuated
// -> feedback written -> handlers drained.
type Cycle struct {
	Store     *channel.Store
	Samplers  []Sampler
	Engine    *logic.Engine
	Actuation *actuation.Manager
	Watcher   *handler.Watcher
	Handlers  *handler.Registry
	Queue     *handler.Queue
}

// Run executes one cycle. nowMS is the monotonic cycle timestamp; dtMS is
// the elapsed time to advance time-based state by (the accumulated dt of
// §7's overrun policy, not necessarily the nominal period).
func (c *Cycle) Run(nowMS, dtMS int64) {
	for _, s := range c.Samplers {
		s.Sample(c.Store, nowMS)
	}
	c.Engine.Step(c.Store, nowMS, dtMS)
	c.Actuation.Step(c.Store, nowMS, dtMS)
	if c.Watcher != nil && c.Queue != nil {
		c.Watcher.Step(c.Store, c.Queue)
	}
	if c.Handlers != nil && c.Queue != nil {
		c.Handlers.Dispatch(c.Store, c.Queue)
	}
}

