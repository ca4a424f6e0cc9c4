package logic

import "github.com/bdube/pmu/channel"

// MaxMovingAvgWindow bounds MOVING_AVG's ring buffer (spec §4.2 "fixed-size
// ring buffer, max window 32")
const MaxMovingAvgWindow = 32

// FilterParams configures the filter family (spec §4.2, 0x70-0x8F)
type FilterParams struct {
	// Window is MOVING_AVG's sample count, 1..MaxMovingAvgWindow
	Window int

	// Alpha is EXPONENTIAL_FILTER's smoothing coefficient in thousandths
	// (1000 = no smoothing, passthrough)
	Alpha int32

	// MaxStepPerCycle bounds RATE_LIMIT's per-cycle change
	MaxStepPerCycle int32

	// Band is DEADBAND's half-width around the held value
	Band int32

	// MedianWindow is MEDIAN's sample count, odd, 3..9
	MedianWindow int

	// ThresholdOn/ThresholdOff are HYSTERESIS's Schmitt trigger points
	ThresholdOn, ThresholdOff int32

	// ResetChannel, if nonzero, zeroes INTEGRAL's accumulator when truthy
	ResetChannel uint16
	// Min/Max saturate INTEGRAL's accumulator
	Min, Max int32
}

// FilterState holds each filter kind's persistent accumulator. A given
// Function only ever exercises one of these, selected by its Kind.
type FilterState struct {
	Ring      [MaxMovingAvgWindow]int32
	RingFill  int
	RingPos   int
	RingSum   int64

	Filtered int32
	HasPrev  bool

	Prev int32

	Held     int32
	HasHeld  bool

	MedianBuf [9]int32

	Latched bool

	Accum int32
}

func init() {
	register(KindMovingAvg, opMovingAvg)
	register(KindExponentialFilter, opExponentialFilter)
	register(KindRateLimit, opRateLimit)
	register(KindDeadband, opDeadband)
	register(KindMedian, opMedian)
	register(KindHysteresis, opHysteresis)
	register(KindDerivative, opDerivative)
	register(KindIntegral, opIntegral)
}

func opMovingAvg(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := &f.Params.Filter
	s := &f.State.Filter
	window := p.Window
	if window <= 0 {
		window = 1
	}
	if window > MaxMovingAvgWindow {
		window = MaxMovingAvgWindow
	}
	v := input(store, f, 0)

	if s.RingFill < window {
		s.Ring[s.RingPos] = v
		s.RingSum += int64(v)
		s.RingFill++
	} else {
		old := s.Ring[s.RingPos]
		s.RingSum += int64(v) - int64(old)
		s.Ring[s.RingPos] = v
	}
	s.RingPos = (s.RingPos + 1) % window
	writeOutput(store, f.Output, int32(s.RingSum/int64(s.RingFill)))
}

func opExponentialFilter(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := &f.Params.Filter
	s := &f.State.Filter
	v := input(store, f, 0)
	if !s.HasPrev {
		s.Filtered = v
		s.HasPrev = true
	} else {
		alpha := p.Alpha
		if alpha <= 0 {
			alpha = 1000
		}
		s.Filtered = s.Filtered + (alpha*(v-s.Filtered))/1000
	}
	writeOutput(store, f.Output, s.Filtered)
}

func opRateLimit(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := &f.Params.Filter
	s := &f.State.Filter
	v := input(store, f, 0)
	if !s.HasPrev {
		s.Prev = v
		s.HasPrev = true
		writeOutput(store, f.Output, v)
		return
	}
	max := p.MaxStepPerCycle
	delta := v - s.Prev
	if max > 0 {
		if delta > max {
			delta = max
		}
		if delta < -max {
			delta = -max
		}
	}
	s.Prev = s.Prev + delta
	writeOutput(store, f.Output, s.Prev)
}

func opDeadband(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := &f.Params.Filter
	s := &f.State.Filter
	v := input(store, f, 0)
	if !s.HasHeld {
		s.Held = v
		s.HasHeld = true
	}
	d := v - s.Held
	if d < 0 {
		d = -d
	}
	if d > p.Band {
		s.Held = v
	}
	writeOutput(store, f.Output, s.Held)
}

func opMedian(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := &f.Params.Filter
	s := &f.State.Filter
	window := p.MedianWindow
	if window < 3 {
		window = 3
	}
	if window > len(s.MedianBuf) {
		window = len(s.MedianBuf)
	}
	v := input(store, f, 0)
	copy(s.MedianBuf[1:window], s.MedianBuf[0:window-1])
	s.MedianBuf[0] = v

	sorted := make([]int32, window)
	copy(sorted, s.MedianBuf[:window])
	for i := 1; i < window; i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	writeOutput(store, f.Output, sorted[window/2])
}

func opHysteresis(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := &f.Params.Filter
	s := &f.State.Filter
	v := input(store, f, 0)
	if v >= p.ThresholdOn {
		s.Latched = true
	} else if v <= p.ThresholdOff {
		s.Latched = false
	}
	writeOutput(store, f.Output, boolToInt32(s.Latched))
}

func opDerivative(store *channel.Store, f *Function, nowMS, dtMS int64) {
	s := &f.State.Filter
	v := input(store, f, 0)
	if !s.HasPrev || dtMS <= 0 {
		s.Prev = v
		s.HasPrev = true
		writeOutput(store, f.Output, 0)
		return
	}
	rate := int64(v-s.Prev) * 1000 / dtMS
	s.Prev = v
	writeOutput(store, f.Output, saturate32(rate))
}

func opIntegral(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := &f.Params.Filter
	s := &f.State.Filter
	if p.ResetChannel != 0 && truthy(store.GetValue(p.ResetChannel)) {
		s.Accum = 0
	}
	v := input(store, f, 0)
	acc := int64(s.Accum) + int64(v)*dtMS/1000
	if p.Max > p.Min {
		if acc > int64(p.Max) {
			acc = int64(p.Max)
		}
		if acc < int64(p.Min) {
			acc = int64(p.Min)
		}
	}
	s.Accum = int32(acc)
	writeOutput(store, f.Output, s.Accum)
}
