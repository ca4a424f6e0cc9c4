package actuation

import "github.com/bdube/pmu/channel"

// writeFeedback continuously writes an output's sub-channels so downstream
// logic can react to feedback (spec §4.3.5: "{name}.status, .current, .dc,
// .fault"). Channel ids of 0 are skipped (not every output configures every
// sub-channel).
func writeFeedback(store *channel.Store, status, current, duty, fault uint16, statusVal, currentVal, dutyVal, faultVal int32) {
	if status != 0 {
		store.ForceValue(status, statusVal)
	}
	if current != 0 {
		store.ForceValue(current, currentVal)
	}
	if duty != 0 {
		store.ForceValue(duty, dutyVal)
	}
	if fault != 0 {
		store.ForceValue(fault, faultVal)
	}
}
