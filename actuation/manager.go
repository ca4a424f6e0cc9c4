package actuation

import (
	"github.com/bdube/pmu/channel"
	"github.com/bdube/pmu/io/hal"
)

// Manager owns every configured logical output and H-bridge and runs their
// state machines once per cycle (spec §4.3, single-owner-per-region per §5).
type Manager struct {
	driver  hal.HBridgeDriver
	outputs []*Output
	bridges []*HBridge
}

// NewManager returns an empty Manager bound to driver.
func NewManager(driver hal.HBridgeDriver) *Manager {
	return &Manager{driver: driver}
}

// AddOutput registers a high-side switch output.
func (m *Manager) AddOutput(cfg Config) *Output {
	o := NewOutput(cfg)
	m.outputs = append(m.outputs, o)
	return o
}

// AddHBridge registers an H-bridge output.
func (m *Manager) AddHBridge(cfg HBridgeConfig) *HBridge {
	h := NewHBridge(cfg)
	m.bridges = append(m.bridges, h)
	return h
}

// Outputs returns the managed high-side switch outputs (telemetry enumeration).
func (m *Manager) Outputs() []*Output { return m.outputs }

// HBridges returns the managed H-bridge outputs (telemetry enumeration).
func (m *Manager) HBridges() []*HBridge { return m.bridges }

// FindOutput returns the named high-side switch output, for the control
// surface to act on (spec §6.4-adjacent operator actions).
func (m *Manager) FindOutput(name string) *Output {
	for _, o := range m.outputs {
		if o.Config.Name == name {
			return o
		}
	}
	return nil
}

// FindHBridge returns the named H-bridge output.
func (m *Manager) FindHBridge(name string) *HBridge {
	for _, h := range m.bridges {
		if h.Config.Name == name {
			return h
		}
	}
	return nil
}

// Step runs every output and H-bridge's state machine once and writes their
// feedback sub-channels (spec §4.3.5).
func (m *Manager) Step(store *channel.Store, nowMS, dtMS int64) {
	for _, o := range m.outputs {
		o.Step(store, m.driver, nowMS, dtMS)
		writeFeedback(store, o.Config.StatusChannel, o.Config.CurrentChannel, o.Config.DutyChannel, o.Config.FaultChannel,
			int32(o.State), o.MeasuredCurrentMA, o.Applied, int32(o.FaultFlags))
	}
	for _, h := range m.bridges {
		h.Step(store, m.driver, nowMS, dtMS)
		writeFeedback(store, h.Config.StatusChannel, h.Config.CurrentChannel, h.Config.DutyChannel, h.Config.FaultChannel,
			int32(h.State), h.MeasuredCurrentMA, h.Applied, int32(h.FaultFlags))
	}
}
