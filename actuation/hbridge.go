package actuation

import "github.com/bdube/pmu/channel"
import "github.com/bdube/pmu/io/hal"

// HBridgeMode selects which of §4.3.4's additional modes an HBridge runs in.
type HBridgeMode uint8

const (
	// ModeBasic drives direction+duty straight from the setpoint channel
	ModeBasic HBridgeMode = iota
	// ModeWiper runs the fixed intermittent sweep schedule
	ModeWiper
	// ModePositionPID follows an external PID function's setpoint
	ModePositionPID
)

// WiperState is one of wiper mode's five command states (spec §4.3.4).
type WiperState uint8

const (
	WiperPark WiperState = iota
	WiperIntermittent
	WiperLow
	WiperHigh
	WiperWash
)

// HBridgeConfig is the H-bridge analog of Config (spec §4.3.4).
type HBridgeConfig struct {
	Name string

	SetpointChannel uint16
	Pin             int
	Mode            HBridgeMode

	// Deadband is the coast/brake zone around zero, default 20 per-mil (spec default)
	Deadband int32
	// Acceleration bounds |delta setpoint| per cycle
	Acceleration int32

	OverCurrentForwardMA int32
	OverCurrentReverseMA int32
	StallThresholdMA     int32
	StallTimeMS          int64
	OverTempThresholdC   int32

	MaxRetries      int
	RetryIntervalMS int64
	RetryForever    bool

	// ParkSwitchChannel reads truthy when the park (home) switch is asserted
	ParkSwitchChannel uint16
	// IntermittentOnMS/OffMS set the wiper intermittent sweep schedule
	IntermittentOnMS, IntermittentOffMS int64

	// PositionChannel, if nonzero, feeds stall detection with a physical
	// position reading independent of current (loader-supplied)
	PositionChannel uint16

	StatusChannel  uint16
	CurrentChannel uint16
	DutyChannel    uint16
	FaultChannel   uint16
}

// HBridge is one H-bridge output's runtime record.
type HBridge struct {
	Config HBridgeConfig

	State State
	Wiper WiperState

	Applied      int32
	prevSetpoint int32

	MeasuredCurrentMA int32
	DriverTempC       int32
	FaultFlags        uint8

	lastPosition   int32
	stallElapsedMS int64

	retry             *retryState
	RetryCount        int
	nextRetryDeadline int64

	wiperPhaseMS int64
}

// NewHBridge constructs a fresh HBridge with a default 20 per-mil deadband
// if Deadband was left unset.
func NewHBridge(cfg HBridgeConfig) *HBridge {
	if cfg.Deadband == 0 {
		cfg.Deadband = 20
	}
	return &HBridge{Config: cfg, State: StateOff, retry: newRetryState(cfg.RetryIntervalMS)}
}

// ForceRetryNow clears the backoff deadline so the next Step re-attempts
// immediately (spec §6.4 "force a retry"), mirroring Output.ForceRetryNow.
func (h *HBridge) ForceRetryNow() {
	h.nextRetryDeadline = 0
}

// SetpointChannelID returns the channel id driving this H-bridge's
// setpoint, for a control surface that needs to disable/enable it directly.
func (h *HBridge) SetpointChannelID() uint16 {
	return h.Config.SetpointChannel
}

// Step runs one cycle of the H-bridge state machine.
func (h *HBridge) Step(store *channel.Store, driver hal.HBridgeDriver, nowMS, dtMS int64) {
	h.readFeedback(driver)

	target := store.GetValue(h.Config.SetpointChannel)

	if h.State.IsFault() {
		h.driveHBridge(driver, 0)
		if nowMS >= h.nextRetryDeadline && (h.RetryCount < h.Config.MaxRetries || h.Config.RetryForever) {
			h.State = StateOff
		} else if nowMS >= h.nextRetryDeadline {
			h.State = StateFault
		}
		return
	}

	switch h.Config.Mode {
	case ModeWiper:
		target = h.wiperTarget(store, dtMS)
	}

	limited := h.applyAccelLimit(target)
	limited = h.applyDeadband(limited)

	position := h.currentPosition(store)
	stalled := h.MeasuredCurrentMA > h.Config.StallThresholdMA && position == h.lastPosition
	if stalled {
		h.stallElapsedMS += dtMS
	} else {
		h.stallElapsedMS = 0
	}
	h.lastPosition = position

	if fault := h.checkFaults(limited, stalled); fault != StateOn {
		h.State = fault
		h.nextRetryDeadline = nowMS + h.retry.next()
		h.RetryCount++
		h.driveHBridge(driver, 0)
		return
	}
	h.State = StateOn
	h.driveHBridge(driver, limited)
}

// applyAccelLimit bounds the per-cycle change in setpoint (spec §4.3.4
// "Acceleration limit").
func (h *HBridge) applyAccelLimit(target int32) int32 {
	if h.Config.Acceleration <= 0 {
		h.prevSetpoint = target
		return target
	}
	delta := target - h.prevSetpoint
	if delta > h.Config.Acceleration {
		delta = h.Config.Acceleration
	}
	if delta < -h.Config.Acceleration {
		delta = -h.Config.Acceleration
	}
	h.prevSetpoint += delta
	return h.prevSetpoint
}

// applyDeadband forces a coast/brake zone around zero to prevent
// shoot-through on direction reversal (spec §4.3.4).
func (h *HBridge) applyDeadband(v int32) int32 {
	if v > -h.Config.Deadband && v < h.Config.Deadband {
		return 0
	}
	return v
}

func (h *HBridge) checkFaults(v int32, stalled bool) State {
	cfg := &h.Config
	if v > 0 && h.MeasuredCurrentMA > cfg.OverCurrentForwardMA {
		return StateOvercurrent
	}
	if v < 0 && h.MeasuredCurrentMA > cfg.OverCurrentReverseMA {
		return StateOvercurrent
	}
	if h.DriverTempC > cfg.OverTempThresholdC {
		return StateOvertemp
	}
	if h.FaultFlags&uint8(hal.FaultShort) != 0 {
		return StateShort
	}
	if stalled && h.stallElapsedMS >= cfg.StallTimeMS {
		return StateFault
	}
	return StateOn
}

func (h *HBridge) currentPosition(store *channel.Store) int32 {
	if store == nil {
		return h.lastPosition
	}
	return store.GetValue(h.Config.PositionChannel)
}

// wiperTarget maps Wiper command state to a signed drive value; intermittent
// mode runs a fixed on/off sweep schedule (spec §4.3.4 "Wiper mode").
func (h *HBridge) wiperTarget(store *channel.Store, dtMS int64) int32 {
	switch h.Wiper {
	case WiperPark:
		if truthy32(store.GetValue(h.Config.ParkSwitchChannel)) {
			return 0
		}
		return 1000
	case WiperLow:
		return 500
	case WiperHigh:
		return 1000
	case WiperWash:
		return 1000
	case WiperIntermittent:
		period := h.Config.IntermittentOnMS + h.Config.IntermittentOffMS
		if period <= 0 {
			return 0
		}
		h.wiperPhaseMS = (h.wiperPhaseMS + dtMS) % period
		if h.wiperPhaseMS < h.Config.IntermittentOnMS {
			return 1000
		}
		return 0
	default:
		return 0
	}
}

func truthy32(v int32) bool { return v != 0 }

func (h *HBridge) readFeedback(driver hal.HBridgeDriver) {
	cfg := &h.Config
	if c, err := driver.ReadOutputCurrentMA(cfg.Pin); err == nil {
		h.MeasuredCurrentMA = c
	}
	if t, err := driver.ReadOutputTempC(cfg.Pin); err == nil {
		h.DriverTempC = t
	}
	if fb, err := driver.ReadOutputFaultFlags(cfg.Pin); err == nil {
		h.FaultFlags = uint8(fb)
	}
}

func (h *HBridge) driveHBridge(driver hal.HBridgeDriver, v int32) {
	h.Applied = v
	forward := v >= 0
	mag := v
	if mag < 0 {
		mag = -mag
	}
	if mag == 0 {
		driver.SetOutputOff(h.Config.Pin)
		return
	}
	driver.SetHBridge(h.Config.Pin, forward, mag)
}
