package logic

import (
	"github.com/bdube/pmu/channel"
	"github.com/bdube/pmu/mathx"
)

// ScaleParams configures the I/O-scaling family (spec §4.2, 0xE0-0xEF). Note:
// DEADBAND is implemented once, in the filter family (KindDeadband); this
// family covers the rest of the 0xE0-0xEF range.
type ScaleParams struct {
	// Factor/Offset implement SCALE: y = x*Factor/1000 + Offset
	Factor, Offset int32

	// ClampMin/ClampMax bound CLAMP
	ClampMin, ClampMax int32

	// InvertAround implements INVERT: y = InvertAround - x (e.g. a channel's
	// max value, for symmetry with the store's own inversion)
	InvertAround int32

	// MAP's input range maps linearly onto its output range
	InMin, InMax   int32
	OutMin, OutMax int32
}

func init() {
	register(KindCopy, opCopy)
	register(KindScale, opScale)
	register(KindClamp, opClamp)
	register(KindInvert, opInvert)
	register(KindMap, opMap)
	register(KindAbs, opAbs)
	register(KindSign, opSign)
}

func opCopy(store *channel.Store, f *Function, nowMS, dtMS int64) {
	writeOutput(store, f.Output, input(store, f, 0))
}

func opScale(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Scale
	factor := p.Factor
	if factor == 0 {
		factor = 1000
	}
	v := mathx.Round(float64(input(store, f, 0))*float64(factor)/1000, 1) + float64(p.Offset)
	writeOutput(store, f.Output, saturate32(int64(v)))
}

func opClamp(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Scale
	v := input(store, f, 0)
	if p.ClampMax > p.ClampMin {
		if v < p.ClampMin {
			v = p.ClampMin
		}
		if v > p.ClampMax {
			v = p.ClampMax
		}
	}
	writeOutput(store, f.Output, v)
}

func opInvert(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Scale
	writeOutput(store, f.Output, p.InvertAround-input(store, f, 0))
}

func opMap(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Scale
	if p.InMax <= p.InMin {
		return
	}
	v := input(store, f, 0)
	if v <= p.InMin {
		writeOutput(store, f.Output, p.OutMin)
		return
	}
	if v >= p.InMax {
		writeOutput(store, f.Output, p.OutMax)
		return
	}
	out := int64(p.OutMin) + int64(v-p.InMin)*int64(p.OutMax-p.OutMin)/int64(p.InMax-p.InMin)
	writeOutput(store, f.Output, saturate32(out))
}

func opAbs(store *channel.Store, f *Function, nowMS, dtMS int64) {
	v := input(store, f, 0)
	if v < 0 {
		v = -v
	}
	writeOutput(store, f.Output, v)
}

func opSign(store *channel.Store, f *Function, nowMS, dtMS int64) {
	v := input(store, f, 0)
	switch {
	case v > 0:
		writeOutput(store, f.Output, 1)
	case v < 0:
		writeOutput(store, f.Output, -1)
	default:
		writeOutput(store, f.Output, 0)
	}
}
