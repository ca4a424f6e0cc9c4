package logic

import (
	"math"

	"github.com/bdube/pmu/channel"
)

// ArithParams configures the arithmetic family (spec §4.2, 0x00-0x0F)
type ArithParams struct {
	// ScaleFactor divides MUL's product to avoid overflow (x*y/ScaleFactor).
	// A zero value is treated as 1 (no scaling).
	ScaleFactor int32

	// Weights parallels Inputs for WEIGHTED_AVG, same length, in thousandths
	Weights []int32

	// WrapMin/WrapMax bound INCR/DECR with wraparound
	WrapMin, WrapMax int32

	// Step is the increment/decrement amount for INCR/DECR
	Step int32
}

func init() {
	register(KindAdd, opAdd)
	register(KindSub, opSub)
	register(KindMul, opMul)
	register(KindDiv, opDiv)
	register(KindMin, opMin)
	register(KindMax, opMax)
	register(KindAvg, opAvg)
	register(KindWeightedAvg, opWeightedAvg)
	register(KindNegate, opNegate)
	register(KindIncr, opIncr)
	register(KindDecr, opDecr)
}

func opAdd(store *channel.Store, f *Function, nowMS, dtMS int64) {
	var sum int64
	for i := range f.Inputs {
		sum += int64(input(store, f, i))
	}
	writeOutput(store, f.Output, saturate32(sum))
}

func opSub(store *channel.Store, f *Function, nowMS, dtMS int64) {
	writeOutput(store, f.Output, saturate32(int64(input(store, f, 0))-int64(input(store, f, 1))))
}

func opMul(store *channel.Store, f *Function, nowMS, dtMS int64) {
	scale := f.Params.Arith.ScaleFactor
	if scale == 0 {
		scale = 1
	}
	product := int64(input(store, f, 0)) * int64(input(store, f, 1))
	writeOutput(store, f.Output, saturate32(product/int64(scale)))
}

func opDiv(store *channel.Store, f *Function, nowMS, dtMS int64) {
	num := input(store, f, 0)
	den := input(store, f, 1)
	if den == 0 {
		writeOutput(store, f.Output, math.MaxInt32)
		return
	}
	writeOutput(store, f.Output, num/den)
}

func opMin(store *channel.Store, f *Function, nowMS, dtMS int64) {
	if len(f.Inputs) == 0 {
		return
	}
	m := input(store, f, 0)
	for i := 1; i < len(f.Inputs); i++ {
		if v := input(store, f, i); v < m {
			m = v
		}
	}
	writeOutput(store, f.Output, m)
}

func opMax(store *channel.Store, f *Function, nowMS, dtMS int64) {
	if len(f.Inputs) == 0 {
		return
	}
	m := input(store, f, 0)
	for i := 1; i < len(f.Inputs); i++ {
		if v := input(store, f, i); v > m {
			m = v
		}
	}
	writeOutput(store, f.Output, m)
}

// opAvg implements AVG over 2-8 inputs (spec §4.2)
func opAvg(store *channel.Store, f *Function, nowMS, dtMS int64) {
	n := len(f.Inputs)
	if n == 0 {
		return
	}
	var sum int64
	for i := 0; i < n; i++ {
		sum += int64(input(store, f, i))
	}
	writeOutput(store, f.Output, saturate32(sum/int64(n)))
}

func opWeightedAvg(store *channel.Store, f *Function, nowMS, dtMS int64) {
	weights := f.Params.Arith.Weights
	n := len(f.Inputs)
	if n == 0 || len(weights) != n {
		return
	}
	var num, den int64
	for i := 0; i < n; i++ {
		num += int64(input(store, f, i)) * int64(weights[i])
		den += int64(weights[i])
	}
	if den == 0 {
		writeOutput(store, f.Output, 0)
		return
	}
	writeOutput(store, f.Output, saturate32(num/den))
}

func opNegate(store *channel.Store, f *Function, nowMS, dtMS int64) {
	writeOutput(store, f.Output, saturate32(-int64(input(store, f, 0))))
}

func opIncr(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Arith
	step := p.Step
	if step == 0 {
		step = 1
	}
	v := store.GetValue(f.Output) + step
	if p.WrapMax > p.WrapMin && v > p.WrapMax {
		v = p.WrapMin
	}
	writeOutput(store, f.Output, v)
}

func opDecr(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Arith
	step := p.Step
	if step == 0 {
		step = 1
	}
	v := store.GetValue(f.Output) - step
	if p.WrapMax > p.WrapMin && v < p.WrapMin {
		v = p.WrapMax
	}
	writeOutput(store, f.Output, v)
}

// saturate32 clamps a 64-bit intermediate to the int32 range rather than
// silently wrapping, matching the spirit of DIV's overflow handling
func saturate32(v int64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}
