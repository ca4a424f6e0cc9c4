// Package config decodes a YAML configuration document into the runtime
// tables that seed the channel store, logic engine, actuation manager and
// handler registry at boot (spec §3, §4).
package config

import (
	"fmt"

	"github.com/bdube/pmu/logic"
)

// ChannelSpec describes one channel.Channel descriptor.
type ChannelSpec struct {
	ID            uint16 `yaml:"id"`
	Name          string `yaml:"name"`
	Direction     string `yaml:"direction"` // "input" or "output"
	Class         string `yaml:"class"`
	Format        string `yaml:"format"`
	PhysicalIndex int    `yaml:"physical_index"`
	InitialValue  int32  `yaml:"initial_value"`
	MinValue      int32  `yaml:"min_value"`
	MaxValue      int32  `yaml:"max_value"`
	Enabled       bool   `yaml:"enabled"`
	Inverted      bool   `yaml:"inverted"`
	Unit          string `yaml:"unit"`
}

// FunctionSpec describes one logic.Function. Exactly one of the family
// pointer fields below should be set, matching Kind's family; the loader
// copies whichever is non-nil into the corresponding field of logic.Params
// and leaves the rest at their zero value (spec §9's per-Kind family
// selection, resolved at load time rather than by the engine).
type FunctionSpec struct {
	FunctionID uint8    `yaml:"function_id"`
	Kind       string   `yaml:"kind"`
	Inputs     []uint16 `yaml:"inputs"`
	Output     uint16   `yaml:"output"`
	Output2    uint16   `yaml:"output2"`
	Enabled    bool     `yaml:"enabled"`

	Arith      *logic.ArithParams      `yaml:"arith,omitempty"`
	Compare    *logic.CompareParams    `yaml:"compare,omitempty"`
	Boolean    *logic.BooleanParams    `yaml:"boolean,omitempty"`
	Flow       *logic.FlowParams       `yaml:"flow,omitempty"`
	Table      *logic.TableParams      `yaml:"table,omitempty"`
	Filter     *logic.FilterParams     `yaml:"filter,omitempty"`
	Control    *logic.ControlParams    `yaml:"control,omitempty"`
	State      *logic.StateOpParams    `yaml:"state,omitempty"`
	ChannelOps *logic.ChannelOpsParams `yaml:"channel_ops,omitempty"`
	Scale      *logic.ScaleParams      `yaml:"scale,omitempty"`
	Utility    *logic.UtilityParams    `yaml:"utility,omitempty"`
}

// OutputSpec describes one actuation.Config high-side switch/PWM output.
type OutputSpec struct {
	Name            string `yaml:"name"`
	SetpointChannel uint16 `yaml:"setpoint_channel"`
	MergedPins      []int  `yaml:"merged_pins"`
	PWMFrequencyHz  int    `yaml:"pwm_frequency_hz"`
	SoftStartRampMS int64  `yaml:"soft_start_ramp_ms"`

	InrushCurrentMA int32 `yaml:"inrush_current_ma"`
	InrushTimeMS    int64 `yaml:"inrush_time_ms"`
	MaxCurrentMA    int32 `yaml:"max_current_ma"`
	MinCurrentMA    int32 `yaml:"min_current_ma"`

	OverTempThresholdC int32 `yaml:"over_temp_threshold_c"`
	OpenLoadGraceMS    int64 `yaml:"open_load_grace_ms"`

	MaxRetries      int   `yaml:"max_retries"`
	RetryIntervalMS int64 `yaml:"retry_interval_ms"`
	RetryForever    bool  `yaml:"retry_forever"`

	StatusChannel  uint16 `yaml:"status_channel"`
	CurrentChannel uint16 `yaml:"current_channel"`
	DutyChannel    uint16 `yaml:"duty_channel"`
	FaultChannel   uint16 `yaml:"fault_channel"`
}

// HBridgeSpec describes one actuation.HBridgeConfig output.
type HBridgeSpec struct {
	Name            string `yaml:"name"`
	SetpointChannel uint16 `yaml:"setpoint_channel"`
	Pin             int    `yaml:"pin"`
	Mode            string `yaml:"mode"` // "basic", "wiper", "position_pid"

	Deadband     int32 `yaml:"deadband"`
	Acceleration int32 `yaml:"acceleration"`

	OverCurrentForwardMA int32 `yaml:"over_current_forward_ma"`
	OverCurrentReverseMA int32 `yaml:"over_current_reverse_ma"`
	StallThresholdMA     int32 `yaml:"stall_threshold_ma"`
	StallTimeMS          int64 `yaml:"stall_time_ms"`
	OverTempThresholdC   int32 `yaml:"over_temp_threshold_c"`

	MaxRetries      int   `yaml:"max_retries"`
	RetryIntervalMS int64 `yaml:"retry_interval_ms"`
	RetryForever    bool  `yaml:"retry_forever"`

	ParkSwitchChannel    uint16 `yaml:"park_switch_channel"`
	IntermittentOnMS     int64  `yaml:"intermittent_on_ms"`
	IntermittentOffMS    int64  `yaml:"intermittent_off_ms"`
	PositionChannel      uint16 `yaml:"position_channel"`

	StatusChannel  uint16 `yaml:"status_channel"`
	CurrentChannel uint16 `yaml:"current_channel"`
	DutyChannel    uint16 `yaml:"duty_channel"`
	FaultChannel   uint16 `yaml:"fault_channel"`
}

// HandlerSpec describes one handler.Handler record.
type HandlerSpec struct {
	Name             string `yaml:"name"`
	EventKind        string `yaml:"event_kind"`
	SourceChannel    uint16 `yaml:"source_channel"`
	ConditionChannel uint16 `yaml:"condition_channel"`
	Action           string `yaml:"action"`
	TargetChannel    uint16 `yaml:"target_channel"`
}

// ADCMappingSpec maps one ADC sample index onto a channel (spec §6.2).
type ADCMappingSpec struct {
	ChannelID uint16 `yaml:"channel_id"`
	Index     int    `yaml:"index"`
}

// DigitalMappingSpec maps one digital input index onto a channel, optionally
// through the teeth/ratio RPM transform (spec §6.2).
type DigitalMappingSpec struct {
	ChannelID uint16 `yaml:"channel_id"`
	Index     int    `yaml:"index"`
	Kind      string `yaml:"kind"` // "state", "frequency", "rpm"
	Teeth     int32  `yaml:"teeth"`
	RatioNum  int32  `yaml:"ratio_num"`
	RatioDen  int32  `yaml:"ratio_den"`
}

// CANSignalSpec describes one CAN signal-to-channel binding (spec §6.2).
type CANSignalSpec struct {
	SignalID     uint32 `yaml:"signal_id"`
	ChannelID    uint16 `yaml:"channel_id"`
	TimeoutMS    int64  `yaml:"timeout_ms"`
	DefaultValue int32  `yaml:"default_value"`
}

// Document is the top-level decoded configuration file shape.
type Document struct {
	Channels []ChannelSpec `yaml:"channels"`
	Functions []FunctionSpec `yaml:"functions"`
	Outputs   []OutputSpec   `yaml:"outputs"`
	HBridges  []HBridgeSpec  `yaml:"hbridges"`
	Handlers  []HandlerSpec  `yaml:"handlers"`

	ADCMappings     []ADCMappingSpec     `yaml:"adc_mappings"`
	DigitalMappings []DigitalMappingSpec `yaml:"digital_mappings"`
	CANSignals      []CANSignalSpec      `yaml:"can_signals"`

	CyclePeriodMS   int64   `yaml:"cycle_period_ms"`
	TelemetryHz     float64 `yaml:"telemetry_hz"`
	TelemetryAddr   string  `yaml:"telemetry_addr"`
	ControlAddr     string  `yaml:"control_addr"`
}

// Default returns a Document populated with the framework's defaults, loaded
// via structs.Provider before any file overlay (mirrors andorhttp2's
// setupconfig default-then-overlay pattern).
func Default() Document {
	return Document{
		CyclePeriodMS: 10,
		TelemetryHz:   10,
		TelemetryAddr: ":8080",
		ControlAddr:   ":8081",
	}
}

func unknownKind(name string) error {
	return fmt.Errorf("config: unknown function kind %q", name)
}
