package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bdube/pmu/channel"
	"github.com/bdube/pmu/handler"
	"github.com/bdube/pmu/io/hal"
	"github.com/bdube/pmu/logic"
)

func TestBuildRegistersChannelsFunctionsOutputsHandlers(t *testing.T) {
	doc := Document{
		Channels: []ChannelSpec{
			{ID: 21, Name: "setpoint", Direction: "output", Class: "output_function", Enabled: true, MinValue: -1000, MaxValue: 1000},
			{ID: 22, Name: "raw_in", Direction: "input", Class: "input_analog", Format: "current_ma"},
			{ID: 23, Name: "heater.enable", Direction: "output", Class: "output_power", Enabled: true, MinValue: 0, MaxValue: 1000},
		},
		Functions: []FunctionSpec{
			{
				FunctionID: 1, Kind: "pid", Inputs: []uint16{22}, Output: 21, Enabled: true,
				Control: &logic.ControlParams{Kp: 1000, OutputMin: -1000, OutputMax: 1000},
			},
		},
		Outputs: []OutputSpec{
			{Name: "heater", SetpointChannel: 21, MergedPins: []int{0}, MaxRetries: 3, RetryIntervalMS: 1000},
		},
		Handlers: []HandlerSpec{
			{Name: "notify", EventKind: "fault", SourceChannel: 23, Action: "write_channel", TargetChannel: 22},
		},
	}

	tables, err := Build(doc, func() hal.HBridgeDriver { return hal.NewFake(1) })
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, ok := tables.Store.GetInfo(21); !ok {
		t.Fatal("expected channel 21 registered")
	}
	if got := len(tables.Engine.Functions()); got != 1 {
		t.Fatalf("expected 1 function, got %d", got)
	}
	fn := tables.Engine.Functions()[0]
	if fn.Kind != logic.KindPID {
		t.Fatalf("expected KindPID, got %v", fn.Kind)
	}
	if fn.Params.Control.Kp != 1000 {
		t.Fatalf("expected Control.Kp=1000, got %d", fn.Params.Control.Kp)
	}
	if got := len(tables.Actuation.Outputs()); got != 1 {
		t.Fatalf("expected 1 output, got %d", got)
	}
	if got := len(tables.Handlers.Handlers()); got != 1 {
		t.Fatalf("expected 1 handler, got %d", got)
	}
	if tables.Handlers.Handlers()[0].Action != handler.ActionWriteChannel {
		t.Fatal("expected ActionWriteChannel")
	}
}

func TestBuildUnknownKindErrors(t *testing.T) {
	doc := Document{Functions: []FunctionSpec{{FunctionID: 1, Kind: "not_a_real_kind"}}}
	if _, err := Build(doc, nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestBuildUnknownChannelClassErrors(t *testing.T) {
	doc := Document{Channels: []ChannelSpec{{ID: 1, Name: "x", Direction: "input", Class: "bogus"}}}
	if _, err := Build(doc, nil); err == nil {
		t.Fatal("expected error for unknown class")
	}
}

func TestBuildDuplicateOutputNameErrors(t *testing.T) {
	doc := Document{Outputs: []OutputSpec{
		{Name: "heater", MergedPins: []int{0}},
		{Name: "heater", MergedPins: []int{1}},
	}}
	if _, err := Build(doc, nil); err == nil {
		t.Fatal("expected error for duplicate output name")
	}
}

func TestBuildOverlappingPinsErrors(t *testing.T) {
	doc := Document{Outputs: []OutputSpec{
		{Name: "heater", MergedPins: []int{0, 1}},
		{Name: "fan", MergedPins: []int{1}},
	}}
	if _, err := Build(doc, nil); err == nil {
		t.Fatal("expected error for overlapping pins")
	}
}

func TestBuildInvalidPWMFrequencyErrors(t *testing.T) {
	doc := Document{Outputs: []OutputSpec{
		{Name: "heater", MergedPins: []int{0}, PWMFrequencyHz: 777},
	}}
	if _, err := Build(doc, nil); err == nil {
		t.Fatal("expected error for an unsupported pwm_frequency_hz")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	tables, err := Load(filepath.Join(t.TempDir(), "missing.yml"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tables.CyclePeriodMS != 10 {
		t.Fatalf("expected default cycle_period_ms=10, got %d", tables.CyclePeriodMS)
	}
	if tables.TelemetryAddr != ":8080" {
		t.Fatalf("expected default telemetry_addr, got %q", tables.TelemetryAddr)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pmu.yml")
	yml := `
cycle_period_ms: 20
telemetry_hz: 5
channels:
  - id: 21
    name: coolant_temp
    direction: input
    class: input_analog
    format: temperature_dc
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	tables, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tables.CyclePeriodMS != 20 {
		t.Fatalf("expected overlaid cycle_period_ms=20, got %d", tables.CyclePeriodMS)
	}
	c, ok := tables.Store.GetInfo(21)
	if !ok {
		t.Fatal("expected channel 21 registered from file")
	}
	if c.Format != channel.FormatTemperatureDC || c.Name != "coolant_temp" {
		t.Fatalf("unexpected channel decoded: %+v", c)
	}
}
