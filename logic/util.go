package logic

import (
	"github.com/bdube/pmu/channel"
	"github.com/bdube/pmu/util"
)

// TimeUnit selects SYSTEM_TIME's reporting granularity
type TimeUnit uint8

const (
	TimeMS TimeUnit = iota
	TimeSec
	TimeMin
	TimeHour
)

// UtilityParams configures the utility family (spec §4.2, 0xF0-0xFF)
type UtilityParams struct {
	// Unit selects SYSTEM_TIME's granularity
	Unit TimeUnit

	// WatchdogTimeoutMS is how long WATCHDOG tolerates a stuck (unchanged)
	// input before declaring it faulted
	WatchdogTimeoutMS int64

	// HeartbeatPeriodMS is HEARTBEAT's toggle period
	HeartbeatPeriodMS int64

	// BitIndex selects which bit BIT_EXTRACT reads
	BitIndex uint
	// BitCount bounds BIT_PACK to <=8 input flags (spec §4.2)
	BitCount int

	// ConditionThreshold is the count CONDITION_COUNT compares against for
	// its boolean output
	ConditionThreshold int32

	// RampRatePerSec is RAMP_GENERATOR's slew rate
	RampRatePerSec int32
	// RampTarget is RAMP_GENERATOR's destination value; inputs[0] overrides
	// it when the function has an input wired
	RampTarget int32

	// PWMPeriodMS/PWMDutyPermil configure the software PWM_GENERATOR
	PWMPeriodMS    int64
	PWMDutyPermil  int32

	// StatusChannel is read by CHANNEL_STATUS to report enabled/fault flags
	StatusChannel uint16

	// RandomSeed seeds RANDOM's deterministic xorshift32 (no math/rand, so cycles
	// stay reproducible across runs -- spec §9 "determinism")
	RandomSeed  uint32
	RandomMin   int32
	RandomMax   int32

	// RTCOffsetMS is added to SystemTime's ms reading for RTC
	RTCOffsetMS int64

	// ConstantValue is CONSTANT's literal output
	ConstantValue int32
}

// UtilityState holds the utility family's persistent memory
type UtilityState struct {
	WatchdogLastValue  int32
	WatchdogStableMS   int64
	WatchdogHasSample  bool

	HeartbeatPhaseMS int64
	HeartbeatOn      bool

	RampCurrent int32
	RampHasInit bool

	PWMPhaseMS int64

	RandomState uint32
}

func init() {
	register(KindConstant, opConstant)
	register(KindSystemTime, opSystemTime)
	register(KindRTC, opRTC)
	register(KindRandom, opRandom)
	register(KindWatchdog, opWatchdog)
	register(KindHeartbeat, opHeartbeat)
	register(KindBitExtract, opBitExtract)
	register(KindBitPack, opBitPack)
	register(KindConditionCount, opConditionCount)
	register(KindRampGenerator, opRampGenerator)
	register(KindPWMGenerator, opPWMGenerator)
	register(KindChannelStatus, opChannelStatus)
	register(KindNop, opNop)
}

// opConstant writes its configured literal to Output every cycle; a CONSTANT
// function never reads an input
func opConstant(store *channel.Store, f *Function, nowMS, dtMS int64) {
	writeOutput(store, f.Output, f.Params.Utility.ConstantValue)
}

func opSystemTime(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Utility
	var v int64
	switch p.Unit {
	case TimeSec:
		v = nowMS / 1000
	case TimeMin:
		v = nowMS / 60000
	case TimeHour:
		v = nowMS / 3600000
	default:
		v = nowMS
	}
	writeOutput(store, f.Output, saturate32(v))
}

func opRTC(store *channel.Store, f *Function, nowMS, dtMS int64) {
	writeOutput(store, f.Output, saturate32(nowMS+f.Params.Utility.RTCOffsetMS))
}

// opRandom is a deterministic xorshift32 generator, not math/rand, so cycles
// stay reproducible across identical seeds (spec §9 determinism)
func opRandom(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Utility
	s := &f.State.Utility
	if s.RandomState == 0 {
		s.RandomState = p.RandomSeed
		if s.RandomState == 0 {
			s.RandomState = 1
		}
	}
	x := s.RandomState
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	s.RandomState = x

	span := p.RandomMax - p.RandomMin
	if span <= 0 {
		writeOutput(store, f.Output, p.RandomMin)
		return
	}
	writeOutput(store, f.Output, p.RandomMin+int32(x%uint32(span+1)))
}

// opWatchdog declares a fault if inputs[0] has not changed in WatchdogTimeoutMS
func opWatchdog(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Utility
	s := &f.State.Utility
	v := input(store, f, 0)
	if !s.WatchdogHasSample || v != s.WatchdogLastValue {
		s.WatchdogLastValue = v
		s.WatchdogStableMS = 0
		s.WatchdogHasSample = true
	} else {
		s.WatchdogStableMS += dtMS
	}
	writeOutput(store, f.Output, boolToInt32(s.WatchdogStableMS >= p.WatchdogTimeoutMS))
}

func opHeartbeat(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Utility
	s := &f.State.Utility
	if p.HeartbeatPeriodMS <= 0 {
		writeOutput(store, f.Output, 0)
		return
	}
	half := p.HeartbeatPeriodMS / 2
	s.HeartbeatPhaseMS += dtMS
	if s.HeartbeatPhaseMS >= half {
		s.HeartbeatPhaseMS -= half
		s.HeartbeatOn = !s.HeartbeatOn
	}
	writeOutput(store, f.Output, boolToInt32(s.HeartbeatOn))
}

func opBitExtract(store *channel.Store, f *Function, nowMS, dtMS int64) {
	v := input(store, f, 0)
	bit := util.GetBit(byte(v), f.Params.Utility.BitIndex)
	writeOutput(store, f.Output, boolToInt32(bit))
}

// opBitPack packs up to 8 boolean inputs into one byte-valued channel (spec
// §4.2 "BIT_PACK (<=8 flags -> byte)")
func opBitPack(store *channel.Store, f *Function, nowMS, dtMS int64) {
	count := f.Params.Utility.BitCount
	if count <= 0 || count > 8 {
		count = len(f.Inputs)
	}
	if count > 8 {
		count = 8
	}
	var b byte
	for i := 0; i < count; i++ {
		b = util.SetBit(b, uint(i), truthy(input(store, f, i)))
	}
	writeOutput(store, f.Output, int32(b))
}

// opConditionCount counts truthy inputs and compares against ConditionThreshold
func opConditionCount(store *channel.Store, f *Function, nowMS, dtMS int64) {
	var count int32
	for i := range f.Inputs {
		if truthy(input(store, f, i)) {
			count++
		}
	}
	writeOutput(store, f.Output, boolToInt32(count >= f.Params.Utility.ConditionThreshold))
}

// opRampGenerator slews toward inputs[0] (if wired) or RampTarget at RampRatePerSec
func opRampGenerator(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Utility
	s := &f.State.Utility
	target := p.RampTarget
	if len(f.Inputs) > 0 {
		target = input(store, f, 0)
	}
	if !s.RampHasInit {
		s.RampCurrent = target
		s.RampHasInit = true
	}
	maxStep := int64(p.RampRatePerSec) * dtMS / 1000
	if maxStep < 1 {
		maxStep = 1
	}
	delta := int64(target) - int64(s.RampCurrent)
	if delta > maxStep {
		delta = maxStep
	}
	if delta < -maxStep {
		delta = -maxStep
	}
	s.RampCurrent = saturate32(int64(s.RampCurrent) + delta)
	writeOutput(store, f.Output, s.RampCurrent)
}

// opPWMGenerator is a software square-wave generator, independent of the
// hardware PWM the actuation layer drives (spec §4.2 "software PWM_GENERATOR")
func opPWMGenerator(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Utility
	s := &f.State.Utility
	if p.PWMPeriodMS <= 0 {
		writeOutput(store, f.Output, 0)
		return
	}
	onMS := p.PWMPeriodMS * int64(p.PWMDutyPermil) / 1000
	s.PWMPhaseMS = (s.PWMPhaseMS + dtMS) % p.PWMPeriodMS
	writeOutput(store, f.Output, boolToInt32(s.PWMPhaseMS < onMS))
}

func opChannelStatus(store *channel.Store, f *Function, nowMS, dtMS int64) {
	c, ok := store.GetInfo(f.Params.Utility.StatusChannel)
	if !ok {
		writeOutput(store, f.Output, 0)
		return
	}
	writeOutput(store, f.Output, int32(c.Flags))
}

func opNop(store *channel.Store, f *Function, nowMS, dtMS int64) {}
