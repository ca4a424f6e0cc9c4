package logic

import "github.com/bdube/pmu/channel"

// BooleanParams configures the boolean family (spec §4.2, 0x40-0x4F). None of
// the ops take configuration beyond their input list; kept for symmetry with
// the other families and for future extension.
type BooleanParams struct{}

func init() {
	register(KindAnd, opAnd)
	register(KindOr, opOr)
	register(KindXor, opXor)
	register(KindNand, opNand)
	register(KindNor, opNor)
	register(KindNot, opNot)
	register(KindIsTrue, opIsTrue)
	register(KindIsFalse, opIsFalse)
}

func opAnd(store *channel.Store, f *Function, nowMS, dtMS int64) {
	result := len(f.Inputs) > 0
	for i := range f.Inputs {
		if !truthy(input(store, f, i)) {
			result = false
			break
		}
	}
	writeOutput(store, f.Output, boolToInt32(result))
}

func opOr(store *channel.Store, f *Function, nowMS, dtMS int64) {
	result := false
	for i := range f.Inputs {
		if truthy(input(store, f, i)) {
			result = true
			break
		}
	}
	writeOutput(store, f.Output, boolToInt32(result))
}

func opXor(store *channel.Store, f *Function, nowMS, dtMS int64) {
	count := 0
	for i := range f.Inputs {
		if truthy(input(store, f, i)) {
			count++
		}
	}
	writeOutput(store, f.Output, boolToInt32(count%2 == 1))
}

func opNand(store *channel.Store, f *Function, nowMS, dtMS int64) {
	result := len(f.Inputs) > 0
	for i := range f.Inputs {
		if !truthy(input(store, f, i)) {
			result = false
			break
		}
	}
	writeOutput(store, f.Output, boolToInt32(!result))
}

func opNor(store *channel.Store, f *Function, nowMS, dtMS int64) {
	result := false
	for i := range f.Inputs {
		if truthy(input(store, f, i)) {
			result = true
			break
		}
	}
	writeOutput(store, f.Output, boolToInt32(!result))
}

func opNot(store *channel.Store, f *Function, nowMS, dtMS int64) {
	writeOutput(store, f.Output, boolToInt32(!truthy(input(store, f, 0))))
}

func opIsTrue(store *channel.Store, f *Function, nowMS, dtMS int64) {
	writeOutput(store, f.Output, boolToInt32(truthy(input(store, f, 0))))
}

func opIsFalse(store *channel.Store, f *Function, nowMS, dtMS int64) {
	writeOutput(store, f.Output, boolToInt32(!truthy(input(store, f, 0))))
}
