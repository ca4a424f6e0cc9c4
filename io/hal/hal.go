// Package hal wraps the output-driver hardware (high-side switches and
// H-bridges) behind a Go interface, so the actuation state machine can run
// against a real board or a test-time fake interchangeably (spec §9
// "Hardware HAL wrapping").
package hal

// FaultBits mirrors the hardware driver's raw fault-pin readout; the
// actuation layer maps these onto its own OutputState, it does not forward
// them verbatim.
type FaultBits uint8

const (
	FaultShort FaultBits = 1 << iota
	FaultOpenLoad
	FaultOverTemp
)

// Driver is the actuation-side hardware adapter (spec §6.3 "Actuation
// adapters"): set/read per physical output index.
type Driver interface {
	// SetOutputDuty drives physical_index at dutyPermil (0-1000) and the
	// given switching frequency.
	SetOutputDuty(physicalIndex int, dutyPermil int32, frequencyHz int) error
	// SetOutputOff forces physical_index off immediately.
	SetOutputOff(physicalIndex int) error
	// ReadOutputCurrentMA returns the measured current draw of physical_index.
	ReadOutputCurrentMA(physicalIndex int) (int32, error)
	// ReadOutputTempC returns the driver die/board temperature near physical_index.
	ReadOutputTempC(physicalIndex int) (int32, error)
	// ReadOutputFaultFlags returns the raw hardware fault bitset for physical_index.
	ReadOutputFaultFlags(physicalIndex int) (FaultBits, error)
}

// HBridgeDriver extends Driver with the combined direction+duty write an
// H-bridge output needs (spec §6.3 "For H-bridges: set_hbridge(...)").
type HBridgeDriver interface {
	Driver
	// SetHBridge drives physical_index in the given direction (true=forward)
	// at dutyPermil (0-1000).
	SetHBridge(physicalIndex int, forward bool, dutyPermil int32) error
}
