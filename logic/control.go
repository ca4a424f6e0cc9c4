package logic

import "github.com/bdube/pmu/channel"

// PWMCurve selects PWM_DUTY's mapping shape
type PWMCurve uint8

const (
	CurveLinear PWMCurve = iota
	CurveExponential
	CurveSCurve
)

// ControlParams configures the control family (spec §4.2, 0xA0-0xAF)
type ControlParams struct {
	// PID/PI/P-only gains, fixed-point thousandths
	Kp, Ki, Kd int32
	// Deadband: |error| below this is treated as 0
	Deadband int32
	// DerivativeAlpha low-pass-filters the D term, thousandths (1000 = unfiltered)
	DerivativeAlpha int32
	// OutputMin/OutputMax bound PID's total output
	OutputMin, OutputMax int32
	// FeedForward and CustomTerm are added unconditionally to the PID sum
	FeedForward, CustomTerm int32
	// Inverted flips the sign of error (reverse-acting control)
	Inverted bool
	// ActivationChannel, if nonzero, must read truthy for P/I/D to run; when
	// false the output is feed_forward+custom_term and the integrator resets
	ActivationChannel uint16

	// BangBang hysteresis band around the setpoint
	BangBandHigh, BangBandLow int32

	// Curve selects PWM_DUTY's response shape; RangeMin/RangeMax bound the
	// input, mapped onto 0-1000 duty
	Curve              PWMCurve
	RangeMin, RangeMax int32

	// RampMS is SOFT_START's 0->target ramp duration
	RampMS int64

	// CurrentLimit bounds CURRENT_LIMITER's pass-through; feedback is read
	// from FeedbackChannel
	CurrentLimit    int32
	FeedbackChannel uint16
	// BackoffStep is how much CURRENT_LIMITER reduces its output per cycle
	// while over limit
	BackoffStep int32

	// WiperTravelMS is the full end-to-end travel time for WIPER_SEQUENCER
	WiperTravelMS int64

	// CruiseGain/BoostThreshold/BoostRampMS/LambdaGain/LambdaBand configure
	// the named PID-family variants (spec supplement: thin PID variants)
	CruiseGain     int32
	BoostThreshold int32
	BoostRampMS    int64
	LambdaGain     int32
	LambdaBand     int32
}

// ControlState holds the control family's persistent accumulators
type ControlState struct {
	// IntegratorFine accumulates ki*errv*dt at full precision (not divided by
	// the thousandths fixed-point scale every cycle) so a per-cycle
	// contribution smaller than the scale still carries forward instead of
	// truncating to zero forever.
	IntegratorFine int64
	PrevError      int32
	FilteredD    int32
	HasPrevError bool

	BangLatched bool

	SoftStartApplied int32
	SoftStartElapsed int64

	LimiterOutput int32

	WiperPosition int32

	BoostElapsed int64
	BoostActive  bool
}

func init() {
	register(KindPID, opPID)
	register(KindPI, opPI)
	register(KindPOnly, opPOnly)
	register(KindBangBang, opBangBang)
	register(KindPWMDuty, opPWMDuty)
	register(KindSoftStart, opSoftStart)
	register(KindCurrentLimiter, opCurrentLimiter)
	register(KindHBridgeDir, opHBridgeDir)
	register(KindWiperSequencer, opWiperSequencer)
	register(KindCruise, opCruise)
	register(KindBoost, opBoost)
	register(KindLambda, opLambda)
}

// runPID implements the shared PID/PI/P-only core (spec §4.2 "PID"); pass
// kd=0 for PI and ki=0 in addition for P-only.
func runPID(store *channel.Store, f *Function, dtMS int64, kp, ki, kd int32) int32 {
	p := &f.Params.Control
	s := &f.State.Control

	if p.ActivationChannel != 0 && !truthy(store.GetValue(p.ActivationChannel)) {
		s.IntegratorFine = 0
		s.HasPrevError = false
		out := p.FeedForward + p.CustomTerm
		return clampControl(out, p.OutputMin, p.OutputMax)
	}

	setpoint := input(store, f, 0)
	pv := input(store, f, 1)
	errv := setpoint - pv
	if p.Inverted {
		errv = -errv
	}
	if errv < p.Deadband && errv > -p.Deadband {
		errv = 0
	}

	dt := dtMS
	if dt <= 0 {
		dt = 1
	}

	pTerm := int64(kp) * int64(errv) / 1000

	iTerm := int64(0)
	if ki != 0 {
		s.IntegratorFine += int64(ki) * int64(errv) * dt
		iTerm = s.IntegratorFine / 1000
	}

	dTerm := int64(0)
	if kd != 0 {
		var raw int32
		if s.HasPrevError {
			raw = int32(int64(errv-s.PrevError) * 1000 / dt)
		}
		s.PrevError = errv
		s.HasPrevError = true
		alpha := p.DerivativeAlpha
		if alpha <= 0 {
			alpha = 1000
		}
		s.FilteredD = s.FilteredD + (alpha*(raw-s.FilteredD))/1000
		dTerm = int64(kd) * int64(s.FilteredD) / 1000
	}

	total := pTerm + iTerm + dTerm + int64(p.FeedForward) + int64(p.CustomTerm)
	clamped := clampControl(saturate32(total), p.OutputMin, p.OutputMax)

	// Integral clamp anti-windup: if the unclamped sum would exceed the
	// bound, hold the integrator rather than let it keep growing (spec
	// §4.2, §9 "saturation must not cause integral growth")
	if ki != 0 && int64(clamped) != total {
		s.IntegratorFine -= (total - int64(clamped)) * 1000
	}

	return clamped
}

func clampControl(v, lo, hi int32) int32 {
	if lo == 0 && hi == 0 {
		return v
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func opPID(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Control
	writeOutput(store, f.Output, runPID(store, f, dtMS, p.Kp, p.Ki, p.Kd))
}

func opPI(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Control
	writeOutput(store, f.Output, runPID(store, f, dtMS, p.Kp, p.Ki, 0))
}

func opPOnly(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Control
	writeOutput(store, f.Output, runPID(store, f, dtMS, p.Kp, 0, 0))
}

// opBangBang: inputs[0]=setpoint, inputs[1]=pv; hysteresis band around setpoint
func opBangBang(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := &f.Params.Control
	s := &f.State.Control
	setpoint := input(store, f, 0)
	pv := input(store, f, 1)
	if pv < setpoint-p.BangBandLow {
		s.BangLatched = true
	} else if pv > setpoint+p.BangBandHigh {
		s.BangLatched = false
	}
	writeOutput(store, f.Output, boolToInt32(s.BangLatched))
}

// opPWMDuty maps inputs[0] in [RangeMin,RangeMax] onto a 0-1000 duty per Curve
func opPWMDuty(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Control
	v := input(store, f, 0)
	if p.RangeMax <= p.RangeMin {
		return
	}
	if v <= p.RangeMin {
		writeOutput(store, f.Output, 0)
		return
	}
	if v >= p.RangeMax {
		writeOutput(store, f.Output, 1000)
		return
	}
	frac := int64(v-p.RangeMin) * 1000 / int64(p.RangeMax-p.RangeMin)
	switch p.Curve {
	case CurveExponential:
		frac = frac * frac / 1000
	case CurveSCurve:
		// 3t^2 - 2t^3, fixed-point thousandths
		t := frac
		frac = (3*t*t/1000 - 2*t*t/1000*t/1000)
	}
	writeOutput(store, f.Output, int32(frac))
}

// opSoftStart ramps output linearly from 0 to inputs[0] over RampMS (spec §9
// open question: the source's `*2` factor is a documented bug; this is a
// strict linear ramp)
func opSoftStart(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Control
	s := &f.State.Control
	target := input(store, f, 0)

	if target == 0 {
		s.SoftStartApplied = 0
		s.SoftStartElapsed = 0
		writeOutput(store, f.Output, 0)
		return
	}
	if p.RampMS <= 0 {
		writeOutput(store, f.Output, target)
		return
	}
	s.SoftStartElapsed += dtMS
	if s.SoftStartElapsed >= p.RampMS {
		s.SoftStartApplied = target
	} else {
		s.SoftStartApplied = int32(int64(target) * s.SoftStartElapsed / p.RampMS)
	}
	writeOutput(store, f.Output, s.SoftStartApplied)
}

// opCurrentLimiter passes through inputs[0] but backs it off by BackoffStep
// per cycle while FeedbackChannel reads above CurrentLimit
func opCurrentLimiter(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Control
	s := &f.State.Control
	target := input(store, f, 0)
	measured := store.GetValue(p.FeedbackChannel)

	if s.LimiterOutput == 0 {
		s.LimiterOutput = target
	}
	if measured > p.CurrentLimit {
		step := p.BackoffStep
		if step <= 0 {
			step = 1
		}
		s.LimiterOutput -= step
		if s.LimiterOutput < 0 {
			s.LimiterOutput = 0
		}
	} else if s.LimiterOutput < target {
		s.LimiterOutput = target
	}
	if s.LimiterOutput > target {
		s.LimiterOutput = target
	}
	writeOutput(store, f.Output, s.LimiterOutput)
}

// opHBridgeDir combines inputs[0]=magnitude (0-1000), inputs[1]=direction
// (truthy=forward) into a signed -1000..1000 drive value
func opHBridgeDir(store *channel.Store, f *Function, nowMS, dtMS int64) {
	mag := input(store, f, 0)
	dir := truthy(input(store, f, 1))
	if mag < 0 {
		mag = 0
	}
	if mag > 1000 {
		mag = 1000
	}
	if !dir {
		mag = -mag
	}
	writeOutput(store, f.Output, mag)
}

// opWiperSequencer drives a position output toward inputs[0] (target 0-1000)
// at a constant rate set by WiperTravelMS for the full 0-1000 span
func opWiperSequencer(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Control
	s := &f.State.Control
	target := input(store, f, 0)
	if p.WiperTravelMS <= 0 {
		s.WiperPosition = target
		writeOutput(store, f.Output, target)
		return
	}
	maxStep := int32(1000 * dtMS / p.WiperTravelMS)
	if maxStep < 1 {
		maxStep = 1
	}
	if s.WiperPosition < target {
		s.WiperPosition += maxStep
		if s.WiperPosition > target {
			s.WiperPosition = target
		}
	} else if s.WiperPosition > target {
		s.WiperPosition -= maxStep
		if s.WiperPosition < target {
			s.WiperPosition = target
		}
	}
	writeOutput(store, f.Output, s.WiperPosition)
}

// opCruise holds inputs[1] (velocity feedback) at inputs[0] (setpoint) while
// inputs[2] (engage) is truthy, via the shared PID core (spec supplement:
// "CRUISE holds a velocity channel at setpoint with a resume/engage input")
func opCruise(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := &f.Params.Control
	s := &f.State.Control
	if !truthy(input(store, f, 2)) {
		s.IntegratorFine = 0
		s.HasPrevError = false
		writeOutput(store, f.Output, 0)
		return
	}
	writeOutput(store, f.Output, runPID(store, f, dtMS, p.CruiseGain, p.Ki, 0))
}

// opBoost gates a secondary output above BoostThreshold with its own ramp
// (spec supplement: "BOOST gates a secondary output above a threshold with
// its own ramp")
func opBoost(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Control
	s := &f.State.Control
	v := input(store, f, 0)
	if v >= p.BoostThreshold {
		s.BoostActive = true
	} else {
		s.BoostActive = false
		s.BoostElapsed = 0
		writeOutput(store, f.Output, 0)
		return
	}
	if p.BoostRampMS <= 0 {
		writeOutput(store, f.Output, 1000)
		return
	}
	s.BoostElapsed += dtMS
	if s.BoostElapsed >= p.BoostRampMS {
		writeOutput(store, f.Output, 1000)
		return
	}
	writeOutput(store, f.Output, int32(1000*s.BoostElapsed/p.BoostRampMS))
}

// opLambda closes a loop against a narrow-band sensor reading (inputs[0])
// with a fixed gain, output clamped within LambdaBand of the setpoint (spec
// supplement: "LAMBDA closes a loop against a narrow-band sensor reading
// with a fixed gain table")
func opLambda(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Control
	setpoint := input(store, f, 1)
	pv := input(store, f, 0)
	errv := setpoint - pv
	correction := int64(p.LambdaGain) * int64(errv) / 1000
	out := saturate32(int64(setpoint) + correction)
	if out > setpoint+p.LambdaBand {
		out = setpoint + p.LambdaBand
	}
	if out < setpoint-p.LambdaBand {
		out = setpoint - p.LambdaBand
	}
	writeOutput(store, f.Output, out)
}
