package channel

// Well-known constant channel ids (spec §3.1)
const (
	IDZero uint16 = 0
	IDOne  uint16 = 1
)

// System channel ids (spec §6.5). These are a fixed block reserved for the
// sampling layer; logic and outputs never write them.
const (
	IDBatteryMV      uint16 = 10
	IDBoardTempL     uint16 = 11
	IDBoardTempR     uint16 = 12
	IDSupply5VMV     uint16 = 13
	IDSupply3V3MV    uint16 = 14
	IDTotalCurrentMA uint16 = 15
	IDUptimeMS       uint16 = 16
	IDStatusBits     uint16 = 17
	IDUserError      uint16 = 18
	IDIsTurningOff   uint16 = 19
)

// Status bits carried in IDStatusBits (spec §7 "runtime fatal")
const (
	StatusOK uint32 = 0
	// StatusFault is raised on cycle-overrun escalation or hardware abort
	StatusFault uint32 = 1 << 0
	// StatusUndervoltage is raised by the sampling layer on supply undervoltage
	StatusUndervoltage uint32 = 1 << 1
	// StatusOvervoltage is raised by the sampling layer on supply overvoltage
	StatusOvervoltage uint32 = 1 << 2
	// StatusLoadShed is raised when all non-critical outputs have been forced off
	StatusLoadShed uint32 = 1 << 3
)

// Bootstrap registers the two well-known constants and the system channel
// block. It is idempotent only on a fresh Store; callers that re-run it on a
// populated store will get ErrDupID back, which they should treat as fatal
// configuration-time error per spec §7.
func (s *Store) Bootstrap() error {
	constants := []Channel{
		{ID: IDZero, Name: "zero", Direction: Input, Class: ClassConstant, Format: FormatRaw, Value: 0, Flags: Enabled},
		{ID: IDOne, Name: "one", Direction: Input, Class: ClassConstant, Format: FormatRaw, Value: 1000, Flags: Enabled},
	}
	system := []Channel{
		{ID: IDBatteryMV, Name: "battery_mV", Direction: Input, Class: ClassSystem, Format: FormatVoltageMV, Unit: "mV", Flags: Enabled},
		{ID: IDBoardTempL, Name: "board_temp_L", Direction: Input, Class: ClassSystem, Format: FormatTemperatureDC, Unit: "dC", Flags: Enabled},
		{ID: IDBoardTempR, Name: "board_temp_R", Direction: Input, Class: ClassSystem, Format: FormatTemperatureDC, Unit: "dC", Flags: Enabled},
		{ID: IDSupply5VMV, Name: "supply_5V_mV", Direction: Input, Class: ClassSystem, Format: FormatVoltageMV, Unit: "mV", Flags: Enabled},
		{ID: IDSupply3V3MV, Name: "supply_3V3_mV", Direction: Input, Class: ClassSystem, Format: FormatVoltageMV, Unit: "mV", Flags: Enabled},
		{ID: IDTotalCurrentMA, Name: "total_current_mA", Direction: Input, Class: ClassSystem, Format: FormatCurrentMA, Unit: "mA", Flags: Enabled},
		{ID: IDUptimeMS, Name: "uptime_ms", Direction: Input, Class: ClassSystem, Format: FormatRaw, Unit: "ms", Flags: Enabled},
		{ID: IDStatusBits, Name: "status_bits", Direction: Input, Class: ClassSystem, Format: FormatRaw, Flags: Enabled},
		{ID: IDUserError, Name: "user_error", Direction: Input, Class: ClassSystem, Format: FormatRaw, Flags: Enabled},
		{ID: IDIsTurningOff, Name: "is_turning_off", Direction: Input, Class: ClassSystem, Format: FormatBoolean, Flags: Enabled},
	}
	for _, c := range append(constants, system...) {
		if err := s.Register(c); err != nil {
			return err
		}
	}
	return nil
}
