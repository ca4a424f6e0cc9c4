package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	"github.com/bdube/pmu/actuation"
	"github.com/bdube/pmu/channel"
	"github.com/bdube/pmu/handler"
	"github.com/bdube/pmu/io/hal"
	"github.com/bdube/pmu/logic"
	"github.com/bdube/pmu/util"
)

// Tables is the set of runtime objects a Document builds (spec §3, §4): the
// channel store plus the three subsystems that read/write it each cycle.
type Tables struct {
	Store     *channel.Store
	Engine    *logic.Engine
	Actuation *actuation.Manager
	Handlers  *handler.Registry

	ADCMappings     []ADCMappingSpec
	DigitalMappings []DigitalMappingSpec
	CANSignals      []CANSignalSpec

	CyclePeriodMS int64
	TelemetryHz   float64
	TelemetryAddr string
	ControlAddr   string
}

// Load reads path (if present) over the framework defaults and builds the
// runtime Tables it describes. Mirrors andorhttp2's
// defaults-then-file-overlay koanf pattern: missing files are not an error,
// so a deployment can run on pure defaults.
func Load(path string, newDriver func() hal.HBridgeDriver) (Tables, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return Tables{}, err
	}
	return Build(doc, newDriver)
}

// LoadDocument resolves path (if present) over the framework defaults into a
// Document without building the runtime Tables, for callers that only want
// to inspect or re-emit the resolved configuration (e.g. cmd/pmu's "conf").
func LoadDocument(path string) (Document, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "yaml"), nil); err != nil {
		return Document{}, fmt.Errorf("config: loading defaults: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") {
			return Document{}, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}
	var doc Document
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return Document{}, fmt.Errorf("config: unmarshalling: %w", err)
	}
	return doc, nil
}

// Build translates a decoded Document into live Tables, registering every
// channel, function, output, H-bridge and handler it describes. newDriver
// builds the HAL driver the actuation manager drives; the concrete driver
// (fake vs a real bus-backed one) is an operational choice made by the
// caller, not the document. Every entry is attempted even after an earlier
// one fails, and every failure is reported together via util.MergeErrors,
// so a document with three bad channels doesn't take three edit-reload
// cycles to fix.
func Build(doc Document, newDriver func() hal.HBridgeDriver) (Tables, error) {
	var errs []error

	if err := validateUniqueNames(doc); err != nil {
		errs = append(errs, err)
	}
	if err := validateNoOverlappingPins(doc); err != nil {
		errs = append(errs, err)
	}

	store := channel.NewStore()
	if err := store.Bootstrap(); err != nil {
		errs = append(errs, fmt.Errorf("config: bootstrapping system channels: %w", err))
	}
	for _, cs := range doc.Channels {
		c, err := buildChannel(cs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := store.Register(c); err != nil {
			errs = append(errs, fmt.Errorf("config: channel %q: %w", cs.Name, err))
		}
	}

	engine := logic.NewEngine()
	for _, fs := range doc.Functions {
		fn, err := buildFunction(fs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := engine.Add(fn); err != nil {
			errs = append(errs, fmt.Errorf("config: function %d: %w", fs.FunctionID, err))
		}
	}

	var mgr *actuation.Manager
	if newDriver != nil {
		mgr = actuation.NewManager(newDriver())
	} else {
		mgr = actuation.NewManager(nil)
	}
	for _, os := range doc.Outputs {
		cfg, err := buildOutput(os)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		mgr.AddOutput(cfg)
	}
	for _, hs := range doc.HBridges {
		hb, err := buildHBridge(hs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		mgr.AddHBridge(hb)
	}

	reg := &handler.Registry{}
	for _, hs := range doc.Handlers {
		h, err := buildHandler(hs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reg.Add(h)
	}

	if err := util.MergeErrors(errs); err != nil {
		return Tables{}, err
	}

	return Tables{
		Store: store, Engine: engine, Actuation: mgr, Handlers: reg,
		ADCMappings: doc.ADCMappings, DigitalMappings: doc.DigitalMappings, CANSignals: doc.CANSignals,
		CyclePeriodMS: doc.CyclePeriodMS, TelemetryHz: doc.TelemetryHz,
		TelemetryAddr: doc.TelemetryAddr, ControlAddr: doc.ControlAddr,
	}, nil
}

// validateUniqueNames rejects a document whose outputs or H-bridges share a
// name: telemetry/control.go's FindOutput/FindHBridge resolve by name, and a
// duplicate would make the second one permanently unreachable.
func validateUniqueNames(doc Document) error {
	var names []string
	for _, os := range doc.Outputs {
		names = append(names, os.Name)
	}
	for _, hs := range doc.HBridges {
		names = append(names, hs.Name)
	}
	if unique := util.UniqueString(names); len(unique) != len(names) {
		return fmt.Errorf("config: duplicate output/hbridge name among %v", names)
	}
	return nil
}

// validateNoOverlappingPins rejects a document where two outputs claim the
// same physical merged pin, which would make both drive the same hardware
// line independently and race.
func validateNoOverlappingPins(doc Document) error {
	var seen []uint
	for _, os := range doc.Outputs {
		for _, pin := range os.MergedPins {
			p := uint(pin)
			if util.UintSliceContains(seen, p) {
				return fmt.Errorf("config: output %q reuses pin %d already claimed by another output", os.Name, pin)
			}
			seen = append(seen, p)
		}
	}
	return nil
}

var directionByName = map[string]channel.Direction{
	"input":  channel.Input,
	"output": channel.Output,
}

var classByName = map[string]channel.Class{
	"input_analog":      channel.ClassInputAnalog,
	"input_digital":     channel.ClassInputDigital,
	"input_can":         channel.ClassInputCAN,
	"input_calculated":  channel.ClassInputCalculated,
	"output_power":      channel.ClassOutputPower,
	"output_pwm":        channel.ClassOutputPWM,
	"output_hbridge":    channel.ClassOutputHBridge,
	"output_function":   channel.ClassOutputFunction,
	"output_table":      channel.ClassOutputTable,
	"system":            channel.ClassSystem,
	"constant":          channel.ClassConstant,
}

var formatByName = map[string]channel.Format{
	"raw":          channel.FormatRaw,
	"voltage_mv":   channel.FormatVoltageMV,
	"current_ma":   channel.FormatCurrentMA,
	"temperature_dc": channel.FormatTemperatureDC,
	"percent_dpct": channel.FormatPercentDPct,
	"rpm":          channel.FormatRPM,
	"frequency_hz": channel.FormatFrequencyHz,
	"count":        channel.FormatCount,
	"boolean":      channel.FormatBoolean,
}

func buildChannel(cs ChannelSpec) (channel.Channel, error) {
	dir, ok := directionByName[strings.ToLower(cs.Direction)]
	if !ok {
		return channel.Channel{}, fmt.Errorf("config: channel %q: unknown direction %q", cs.Name, cs.Direction)
	}
	class, ok := classByName[strings.ToLower(cs.Class)]
	if !ok {
		return channel.Channel{}, fmt.Errorf("config: channel %q: unknown class %q", cs.Name, cs.Class)
	}
	format := channel.FormatRaw
	if cs.Format != "" {
		format, ok = formatByName[strings.ToLower(cs.Format)]
		if !ok {
			return channel.Channel{}, fmt.Errorf("config: channel %q: unknown format %q", cs.Name, cs.Format)
		}
	}
	if dir == channel.Output && !class.IsOutput() {
		return channel.Channel{}, fmt.Errorf("config: channel %q: direction %q is not consistent with class %q",
			cs.Name, cs.Direction, cs.Class)
	}
	if dir == channel.Input && !(class.IsInput() || class == channel.ClassSystem || class == channel.ClassConstant) {
		return channel.Channel{}, fmt.Errorf("config: channel %q: direction %q is not consistent with class %q",
			cs.Name, cs.Direction, cs.Class)
	}
	var flags channel.Flags
	flags = flags.Set(channel.Enabled, cs.Enabled)
	flags = flags.Set(channel.Inverted, cs.Inverted)
	return channel.Channel{
		ID: cs.ID, Name: cs.Name, Direction: dir, Class: class, Format: format,
		PhysicalIndex: cs.PhysicalIndex, Value: cs.InitialValue,
		MinValue: cs.MinValue, MaxValue: cs.MaxValue, Flags: flags, Unit: cs.Unit,
	}, nil
}

// kindByName maps a function block's declared "kind" string onto its
// logic.Kind. Names are the operation name, lowercased with underscores
// (spec §4.2's naming).
var kindByName = map[string]logic.Kind{
	"add": logic.KindAdd, "sub": logic.KindSub, "mul": logic.KindMul, "div": logic.KindDiv,
	"min": logic.KindMin, "max": logic.KindMax, "avg": logic.KindAvg, "weighted_avg": logic.KindWeightedAvg,
	"negate": logic.KindNegate, "incr": logic.KindIncr, "decr": logic.KindDecr,

	"gt": logic.KindGT, "ge": logic.KindGE, "lt": logic.KindLT, "le": logic.KindLE,
	"eq": logic.KindEQ, "ne": logic.KindNE, "in_range": logic.KindInRange, "out_of_range": logic.KindOutOfRange,

	"and": logic.KindAnd, "or": logic.KindOr, "xor": logic.KindXor, "nand": logic.KindNand,
	"nor": logic.KindNor, "not": logic.KindNot, "is_true": logic.KindIsTrue, "is_false": logic.KindIsFalse,

	"if_then_else": logic.KindIfThenElse, "select": logic.KindSelect, "mux": logic.KindMux,
	"priority_encoder": logic.KindPriorityEncoder, "switch_case": logic.KindSwitchCase,
	"threshold_select": logic.KindThresholdSelect, "conditional_enable": logic.KindConditionalEnable,
	"sequence": logic.KindSequence,

	"table_1d": logic.KindTable1D, "table_2d": logic.KindTable2D, "curve_fit": logic.KindCurveFit,

	"moving_avg": logic.KindMovingAvg, "exponential_filter": logic.KindExponentialFilter,
	"rate_limit": logic.KindRateLimit, "deadband": logic.KindDeadband, "median": logic.KindMedian,
	"hysteresis": logic.KindHysteresis, "derivative": logic.KindDerivative, "integral": logic.KindIntegral,

	"pid": logic.KindPID, "pi": logic.KindPI, "p_only": logic.KindPOnly, "bang_bang": logic.KindBangBang,
	"pwm_duty": logic.KindPWMDuty, "soft_start": logic.KindSoftStart, "current_limiter": logic.KindCurrentLimiter,
	"hbridge_dir": logic.KindHBridgeDir, "wiper_sequencer": logic.KindWiperSequencer,
	"cruise": logic.KindCruise, "boost": logic.KindBoost, "lambda": logic.KindLambda,

	"sr_latch": logic.KindSRLatch, "toggle": logic.KindToggle, "pulse": logic.KindPulse,
	"delay_on": logic.KindDelayOn, "delay_off": logic.KindDelayOff, "flasher": logic.KindFlasher,
	"counter": logic.KindCounter, "timer": logic.KindTimer, "state_machine": logic.KindStateMachine,
	"memory": logic.KindMemory, "peak_hold": logic.KindPeakHold, "min_hold": logic.KindMinHold,

	"channel_sum": logic.KindChannelSum, "channel_min": logic.KindChannelMin, "channel_max": logic.KindChannelMax,
	"channel_avg": logic.KindChannelAvg, "diff": logic.KindDiff, "redundancy_check": logic.KindRedundancyCheck,
	"sensor_select": logic.KindSensorSelect, "channel_sync": logic.KindChannelSync,
	"gang_control": logic.KindGangControl, "load_balance": logic.KindLoadBalance,
	"fault_aggregate": logic.KindFaultAggregate, "current_limit_manager": logic.KindCurrentLimitManager,

	"copy": logic.KindCopy, "scale": logic.KindScale, "clamp": logic.KindClamp, "invert": logic.KindInvert,
	"map": logic.KindMap, "abs": logic.KindAbs, "sign": logic.KindSign,

	"constant": logic.KindConstant, "system_time": logic.KindSystemTime, "rtc": logic.KindRTC,
	"random": logic.KindRandom, "watchdog": logic.KindWatchdog, "heartbeat": logic.KindHeartbeat,
	"bit_extract": logic.KindBitExtract, "bit_pack": logic.KindBitPack,
	"condition_count": logic.KindConditionCount, "ramp_generator": logic.KindRampGenerator,
	"pwm_generator": logic.KindPWMGenerator, "channel_status": logic.KindChannelStatus, "nop": logic.KindNop,
}

func buildFunction(fs FunctionSpec) (*logic.Function, error) {
	kind, ok := kindByName[strings.ToLower(fs.Kind)]
	if !ok {
		return nil, unknownKind(fs.Kind)
	}
	var params logic.Params
	if fs.Arith != nil {
		params.Arith = *fs.Arith
	}
	if fs.Compare != nil {
		params.Compare = *fs.Compare
	}
	if fs.Boolean != nil {
		params.Boolean = *fs.Boolean
	}
	if fs.Flow != nil {
		params.Flow = *fs.Flow
	}
	if fs.Table != nil {
		params.Table = *fs.Table
	}
	if fs.Filter != nil {
		params.Filter = *fs.Filter
	}
	if fs.Control != nil {
		params.Control = *fs.Control
	}
	if fs.State != nil {
		params.State = *fs.State
	}
	if fs.ChannelOps != nil {
		params.ChannelOps = *fs.ChannelOps
	}
	if fs.Scale != nil {
		params.Scale = *fs.Scale
	}
	if fs.Utility != nil {
		params.Utility = *fs.Utility
	}
	return &logic.Function{
		FunctionID: fs.FunctionID, Kind: kind, Inputs: fs.Inputs,
		Output: fs.Output, Output2: fs.Output2, Enabled: fs.Enabled, Params: params,
	}, nil
}

func buildOutput(os OutputSpec) (actuation.Config, error) {
	if os.PWMFrequencyHz != 0 && !validPWMFrequency(os.PWMFrequencyHz) {
		return actuation.Config{}, fmt.Errorf("config: output %q: pwm_frequency_hz %d is not one of %v",
			os.Name, os.PWMFrequencyHz, actuation.ValidPWMFrequencies)
	}
	return actuation.Config{
		Name: os.Name, SetpointChannel: os.SetpointChannel, MergedPins: os.MergedPins,
		PWMFrequencyHz: os.PWMFrequencyHz, SoftStartRampMS: os.SoftStartRampMS,
		InrushCurrentMA: os.InrushCurrentMA, InrushTimeMS: os.InrushTimeMS,
		MaxCurrentMA: os.MaxCurrentMA, MinCurrentMA: os.MinCurrentMA,
		OverTempThresholdC: os.OverTempThresholdC, OpenLoadGraceMS: os.OpenLoadGraceMS,
		MaxRetries: os.MaxRetries, RetryIntervalMS: os.RetryIntervalMS, RetryForever: os.RetryForever,
		StatusChannel: os.StatusChannel, CurrentChannel: os.CurrentChannel,
		DutyChannel: os.DutyChannel, FaultChannel: os.FaultChannel,
	}, nil
}

func validPWMFrequency(hz int) bool {
	for _, v := range actuation.ValidPWMFrequencies {
		if v == hz {
			return true
		}
	}
	return false
}

var hbridgeModeByName = map[string]actuation.HBridgeMode{
	"basic": actuation.ModeBasic, "wiper": actuation.ModeWiper, "position_pid": actuation.ModePositionPID,
}

func buildHBridge(hs HBridgeSpec) (actuation.HBridgeConfig, error) {
	mode := actuation.ModeBasic
	if hs.Mode != "" {
		var ok bool
		mode, ok = hbridgeModeByName[strings.ToLower(hs.Mode)]
		if !ok {
			return actuation.HBridgeConfig{}, fmt.Errorf("config: hbridge %q: unknown mode %q", hs.Name, hs.Mode)
		}
	}
	return actuation.HBridgeConfig{
		Name: hs.Name, SetpointChannel: hs.SetpointChannel, Pin: hs.Pin, Mode: mode,
		Deadband: hs.Deadband, Acceleration: hs.Acceleration,
		OverCurrentForwardMA: hs.OverCurrentForwardMA, OverCurrentReverseMA: hs.OverCurrentReverseMA,
		StallThresholdMA: hs.StallThresholdMA, StallTimeMS: hs.StallTimeMS,
		OverTempThresholdC: hs.OverTempThresholdC,
		MaxRetries: hs.MaxRetries, RetryIntervalMS: hs.RetryIntervalMS, RetryForever: hs.RetryForever,
		ParkSwitchChannel: hs.ParkSwitchChannel,
		IntermittentOnMS: hs.IntermittentOnMS, IntermittentOffMS: hs.IntermittentOffMS,
		PositionChannel: hs.PositionChannel,
		StatusChannel: hs.StatusChannel, CurrentChannel: hs.CurrentChannel,
		DutyChannel: hs.DutyChannel, FaultChannel: hs.FaultChannel,
	}, nil
}

var eventKindByName = map[string]handler.EventKind{
	"transition": handler.EventTransition, "fault": handler.EventFault,
	"timeout": handler.EventTimeout, "custom": handler.EventCustom,
}

var actionByName = map[string]handler.Action{
	"write_channel": handler.ActionWriteChannel, "set_output": handler.ActionSetOutput,
	"emit_frame": handler.ActionEmitFrame, "invoke_function": handler.ActionInvokeFunction,
}

func buildHandler(hs HandlerSpec) (handler.Handler, error) {
	ek, ok := eventKindByName[strings.ToLower(hs.EventKind)]
	if !ok {
		return handler.Handler{}, fmt.Errorf("config: handler %q: unknown event_kind %q", hs.Name, hs.EventKind)
	}
	act, ok := actionByName[strings.ToLower(hs.Action)]
	if !ok {
		return handler.Handler{}, fmt.Errorf("config: handler %q: unknown action %q", hs.Name, hs.Action)
	}
	return handler.Handler{
		Name: hs.Name, EventKind: ek, SourceChannel: hs.SourceChannel,
		ConditionChannel: hs.ConditionChannel, Action: act, TargetChannel: hs.TargetChannel,
	}, nil
}
