package handler

import "github.com/bdube/pmu/channel"

// Watch tracks one channel's value and fault flag across cycles so Watcher
// can detect the edges spec §4.4 raises events on.
type Watch struct {
	ChannelID uint16

	lastValue int32
	lastFault bool
	seen      bool
}

// Watcher raises EventTransition and EventFault events by comparing each
// watched channel's value and Fault flag against its previous cycle's,
// mirroring the sampling-layer/logic-engine event sources spec §4.4
// describes. It runs after logic evaluation and before Registry.Dispatch
// drains the queue it feeds.
type Watcher struct {
	Watches []Watch
}

// Step inspects every watched channel and pushes any detected transition or
// fault onto q. A channel that does not exist in store is skipped rather
// than erroring, matching the rest of the cycle's "absent input is inert"
// handling.
func (w *Watcher) Step(store *channel.Store, q *Queue) {
	if q == nil {
		return
	}
	for i := range w.Watches {
		wt := &w.Watches[i]
		info, ok := store.GetInfo(wt.ChannelID)
		if !ok {
			continue
		}
		val := store.GetValue(wt.ChannelID)
		fault := info.Flags.Has(channel.Fault)
		if wt.seen {
			if val != wt.lastValue {
				q.Push(Event{Kind: EventTransition, ChannelID: wt.ChannelID, Value: val})
			}
			if fault && !wt.lastFault {
				q.Push(Event{Kind: EventFault, ChannelID: wt.ChannelID, Value: val})
			}
		}
		wt.lastValue = val
		wt.lastFault = fault
		wt.seen = true
	}
}
