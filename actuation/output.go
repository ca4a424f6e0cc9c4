// Package actuation translates logical output-channel setpoints into safe,
// soft-started, current-limited hardware drive, and feeds current/temperature
// /fault state back into the channel store (spec §4.3).
package actuation

import (
	"github.com/bdube/pmu/channel"
	"github.com/bdube/pmu/io/hal"
)

// State is one state of the high-side switch output state machine (spec §3,
// §4.3.1: OFF -> STARTING -> ON/PWM -> {fault states} -> (retry) -> OFF).
type State uint8

const (
	StateOff State = iota
	StateStarting
	StateOn
	StateOvercurrent
	StateOvertemp
	StateShort
	StateOpenLoad
	StateDisabled
	StateFault
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StateStarting:
		return "STARTING"
	case StateOn:
		return "ON"
	case StateOvercurrent:
		return "OVERCURRENT"
	case StateOvertemp:
		return "OVERTEMP"
	case StateShort:
		return "SHORT"
	case StateOpenLoad:
		return "OPEN_LOAD"
	case StateDisabled:
		return "DISABLED"
	case StateFault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// IsFault reports whether s is one of the retryable fault states
// (OVERCURRENT, OVERTEMP, SHORT) whose entry forces applied_value to 0 and
// schedules a retry. OPEN_LOAD (warning-only) and terminal FAULT are not
// included.
func (s State) IsFault() bool {
	switch s {
	case StateOvercurrent, StateOvertemp, StateShort:
		return true
	default:
		return false
	}
}

// Config is the output driver descriptor the loader supplies (spec §6.1).
type Config struct {
	Name string

	// SetpointChannel is the logic-engine-written setpoint (control_source)
	SetpointChannel uint16

	// MergedPins are the 1-3 physical driver indices backing this logical
	// output (spec §4.3.3)
	MergedPins []int

	PWMFrequencyHz int

	// SoftStartRampMS is ramp_up_ms; 0 disables soft-start (jump straight to ON/PWM)
	SoftStartRampMS int64

	InrushCurrentMA int32
	InrushTimeMS    int64
	MaxCurrentMA    int32
	MinCurrentMA    int32

	OverTempThresholdC int32

	// OpenLoadGraceMS is the startup grace period before OPEN_LOAD is evaluated
	OpenLoadGraceMS int64

	MaxRetries      int
	RetryIntervalMS int64
	RetryForever    bool

	// Telemetry sub-channels (spec §4.3.5): {name}.status/.current/.dc/.fault
	StatusChannel  uint16
	CurrentChannel uint16
	DutyChannel    uint16
	FaultChannel   uint16
}

// Output is one logical output's runtime record (spec §3).
type Output struct {
	Config Config

	State State

	Setpoint          int32
	Applied           int32
	MeasuredCurrentMA int32
	PeakCurrentMA     int32
	DriverTempC       int32
	FaultFlags        uint8

	RetryCount        int
	nextRetryDeadline int64
	inrushDeadline    int64

	rampElapsedMS    int64
	sinceStartedMS   int64
	retry            *retryState
}

// NewOutput constructs a fresh Output in the OFF state.
func NewOutput(cfg Config) *Output {
	return &Output{Config: cfg, State: StateOff, retry: newRetryState(cfg.RetryIntervalMS)}
}

// ForceRetryNow clears the backoff deadline so the next Step re-attempts
// immediately rather than waiting out retry_interval_ms, for an operator who
// has fixed the underlying fault and does not want to wait (spec §6.4
// "force a retry").
func (o *Output) ForceRetryNow() {
	o.nextRetryDeadline = 0
}

// SetpointChannelID returns the channel id driving this output's setpoint,
// for a control surface that needs to disable/enable it directly.
func (o *Output) SetpointChannelID() uint16 {
	return o.Config.SetpointChannel
}

// Step runs one cycle of the output state machine against driver. It reads
// feedback from every pin in MergedPins (current summed, hottest temperature,
// fault flags OR-ed) and drives all of them in lockstep (spec §4.3.3).
func (o *Output) Step(store *channel.Store, driver hal.Driver, nowMS, dtMS int64) {
	cfg := &o.Config
	o.Setpoint = store.GetValue(cfg.SetpointChannel)
	enabled := true
	if c, ok := store.GetInfo(cfg.SetpointChannel); ok {
		enabled = c.Flags.Has(channel.Enabled)
	}

	o.readFeedback(driver)

	switch o.State {
	case StateOff, StateDisabled:
		if o.Setpoint != 0 && enabled {
			o.sinceStartedMS = 0
			o.inrushDeadline = nowMS + cfg.InrushTimeMS
			if cfg.SoftStartRampMS > 0 {
				o.State = StateStarting
				o.rampElapsedMS = 0
				o.drive(driver, 0)
			} else {
				o.State = StateOn
				o.drive(driver, o.Setpoint)
			}
		} else if !enabled {
			o.State = StateDisabled
			o.drive(driver, 0)
		} else {
			o.State = StateOff
			o.drive(driver, 0)
		}

	case StateStarting:
		if o.Setpoint == 0 || !enabled {
			o.State = StateOff
			o.drive(driver, 0)
			return
		}
		o.rampElapsedMS += dtMS
		if o.rampElapsedMS >= cfg.SoftStartRampMS {
			o.State = StateOn
			o.drive(driver, o.Setpoint)
			return
		}
		applied := int32(int64(o.Setpoint) * o.rampElapsedMS / cfg.SoftStartRampMS)
		o.drive(driver, applied)

	case StateOn:
		if o.Setpoint == 0 || !enabled {
			o.State = StateOff
			o.drive(driver, 0)
			return
		}
		o.sinceStartedMS += dtMS
		if fault := o.checkFaults(nowMS); fault != StateOn {
			o.enterFault(fault, nowMS)
			o.drive(driver, 0)
			return
		}
		o.drive(driver, o.Setpoint)

	case StateOvercurrent, StateOvertemp, StateShort:
		o.drive(driver, 0)
		if nowMS >= o.nextRetryDeadline && (o.RetryCount < cfg.MaxRetries || cfg.RetryForever) {
			o.retryNow(driver, nowMS)
		} else if nowMS >= o.nextRetryDeadline {
			o.State = StateFault
		}

	case StateOpenLoad:
		// warning only; output remains on (spec §4.3.1)
		if o.Setpoint == 0 || !enabled {
			o.State = StateOff
			o.drive(driver, 0)
			return
		}
		if fault := o.checkFaults(nowMS); fault != StateOn && fault != StateOpenLoad {
			o.enterFault(fault, nowMS)
			o.drive(driver, 0)
			return
		}
		o.drive(driver, o.Setpoint)

	case StateFault:
		o.drive(driver, 0)
	}
}

// checkFaults evaluates the ON/PWM protection checks of spec §4.3.1 and
// returns the state that should be entered (StateOn if nothing tripped).
func (o *Output) checkFaults(nowMS int64) State {
	cfg := &o.Config
	if o.MeasuredCurrentMA > cfg.InrushCurrentMA {
		return StateOvercurrent
	}
	if nowMS < o.inrushDeadline {
		if o.MeasuredCurrentMA > cfg.InrushCurrentMA {
			return StateOvercurrent
		}
	} else if o.MeasuredCurrentMA > cfg.MaxCurrentMA {
		return StateOvercurrent
	}
	if o.DriverTempC > cfg.OverTempThresholdC {
		return StateOvertemp
	}
	if o.FaultFlags&uint8(hal.FaultShort) != 0 {
		return StateShort
	}
	if o.Setpoint > 0 && o.MeasuredCurrentMA < cfg.MinCurrentMA && o.sinceStartedMS > cfg.OpenLoadGraceMS {
		return StateOpenLoad
	}
	return StateOn
}

// retryNow re-enters the running state without granting a fresh soft-start
// ramp or inrush grace period. A retry is a recovery attempt, not a new
// power-up: a persistent fault must be caught on the very cycle the retry is
// attempted rather than hidden behind another startup allowance (spec §8 S4's
// exact retry cadence).
func (o *Output) retryNow(driver hal.Driver, nowMS int64) {
	cfg := &o.Config
	o.sinceStartedMS = cfg.OpenLoadGraceMS + 1
	o.inrushDeadline = nowMS
	o.State = StateOn
	if fault := o.checkFaults(nowMS); fault != StateOn {
		o.enterFault(fault, nowMS)
		o.drive(driver, 0)
		return
	}
	o.drive(driver, o.Setpoint)
}

func (o *Output) enterFault(s State, nowMS int64) {
	o.State = s
	if s.IsFault() {
		o.Applied = 0
		o.nextRetryDeadline = nowMS + o.retry.next()
		o.RetryCount++
	}
}

func (o *Output) readFeedback(driver hal.Driver) {
	cfg := &o.Config
	var sumCurrent int32
	var maxTemp int32
	var faults uint8
	for _, pin := range cfg.MergedPins {
		if c, err := driver.ReadOutputCurrentMA(pin); err == nil {
			sumCurrent += c
		}
		if t, err := driver.ReadOutputTempC(pin); err == nil && t > maxTemp {
			maxTemp = t
		}
		if fb, err := driver.ReadOutputFaultFlags(pin); err == nil {
			faults |= uint8(fb)
		}
	}
	o.MeasuredCurrentMA = sumCurrent
	if sumCurrent > o.PeakCurrentMA {
		o.PeakCurrentMA = sumCurrent
	}
	o.DriverTempC = maxTemp
	o.FaultFlags = faults
}

// drive writes applied across every merged physical pin in lockstep (spec
// §4.3.3: "all driven in lockstep").
func (o *Output) drive(driver hal.Driver, applied int32) {
	applied = ResolveDuty(applied)
	o.Applied = applied
	for _, pin := range o.Config.MergedPins {
		if applied <= 0 {
			driver.SetOutputOff(pin)
		} else {
			driver.SetOutputDuty(pin, applied, o.Config.PWMFrequencyHz)
		}
	}
}
