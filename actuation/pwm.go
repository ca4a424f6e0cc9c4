package actuation

// ValidPWMFrequencies lists the supported switching frequencies a loader may
// configure per output (spec §4.3.2: "typical: 100, 125, 200, 500, 1000 Hz;
// up to 25 kHz where the hardware supports it").
var ValidPWMFrequencies = []int{100, 125, 200, 500, 1000, 2000, 5000, 10000, 25000}

// ResolveDuty clamps a raw setpoint into the 0-1000 per-mil duty range and
// applies the two special cases of spec §4.3.2: 0 forces off, 1000 is
// continuous-on (callers may still pass 1000 straight through to hal, this
// just guards against out-of-range setpoints reaching the driver).
func ResolveDuty(setpoint int32) int32 {
	if setpoint <= 0 {
		return 0
	}
	if setpoint >= 1000 {
		return 1000
	}
	return setpoint
}
