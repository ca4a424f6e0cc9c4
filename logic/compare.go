package logic

import "github.com/bdube/pmu/channel"

// CompareParams configures the comparison family (spec §4.2, 0x20-0x2F). All
// outputs are boolean 0/1.
type CompareParams struct {
	// Tolerance bounds EQ: |a-b| <= Tolerance is considered equal
	Tolerance int32

	// RangeMin/RangeMax bound IN_RANGE/OUT_OF_RANGE, inclusive
	RangeMin, RangeMax int32
}

func init() {
	register(KindGT, opGT)
	register(KindGE, opGE)
	register(KindLT, opLT)
	register(KindLE, opLE)
	register(KindEQ, opEQ)
	register(KindNE, opNE)
	register(KindInRange, opInRange)
	register(KindOutOfRange, opOutOfRange)
}

func opGT(store *channel.Store, f *Function, nowMS, dtMS int64) {
	writeOutput(store, f.Output, boolToInt32(input(store, f, 0) > input(store, f, 1)))
}

func opGE(store *channel.Store, f *Function, nowMS, dtMS int64) {
	writeOutput(store, f.Output, boolToInt32(input(store, f, 0) >= input(store, f, 1)))
}

func opLT(store *channel.Store, f *Function, nowMS, dtMS int64) {
	writeOutput(store, f.Output, boolToInt32(input(store, f, 0) < input(store, f, 1)))
}

func opLE(store *channel.Store, f *Function, nowMS, dtMS int64) {
	writeOutput(store, f.Output, boolToInt32(input(store, f, 0) <= input(store, f, 1)))
}

func opEQ(store *channel.Store, f *Function, nowMS, dtMS int64) {
	d := input(store, f, 0) - input(store, f, 1)
	if d < 0 {
		d = -d
	}
	writeOutput(store, f.Output, boolToInt32(d <= f.Params.Compare.Tolerance))
}

func opNE(store *channel.Store, f *Function, nowMS, dtMS int64) {
	d := input(store, f, 0) - input(store, f, 1)
	if d < 0 {
		d = -d
	}
	writeOutput(store, f.Output, boolToInt32(d > f.Params.Compare.Tolerance))
}

func opInRange(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Compare
	v := input(store, f, 0)
	writeOutput(store, f.Output, boolToInt32(v >= p.RangeMin && v <= p.RangeMax))
}

func opOutOfRange(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Compare
	v := input(store, f, 0)
	writeOutput(store, f.Output, boolToInt32(v < p.RangeMin || v > p.RangeMax))
}
