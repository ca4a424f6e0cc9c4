package logic

import "github.com/bdube/pmu/channel"

// Interp selects TABLE_1D's interpolation mode
type Interp uint8

const (
	InterpLinear Interp = iota
	InterpStep
)

// TableParams configures the table family (spec §4.2, 0x60-0x6F). Axis
// values must be monotonically increasing; out-of-range inputs clamp to the
// endpoint value (spec §4.2 "Table lookup").
type TableParams struct {
	// X is the 1D/2D-x breakpoint axis, Y1D its values for TABLE_1D
	X   []int32
	Y1D []int32
	Mode Interp

	// Y is the 2D row axis; Z is row-major [len(Y)][len(X)] for TABLE_2D
	Y []int32
	Z [][]int32

	// Coeffs is the polynomial coefficient list for CURVE_FIT, ascending
	// power: y = sum(Coeffs[i] * x^i), evaluated with a fixed-point
	// thousandths scale per coefficient
	Coeffs []int32
}

func init() {
	register(KindTable1D, opTable1D)
	register(KindTable2D, opTable2D)
	register(KindCurveFit, opCurveFit)
}

// lookup1D returns the interpolated/stepped value of axis X->Y at x,
// clamping to the endpoints outside the axis range.
func lookup1D(x []int32, y []int32, mode Interp, v int32) int32 {
	n := len(x)
	if n == 0 || len(y) != n {
		return 0
	}
	if v <= x[0] {
		return y[0]
	}
	if v >= x[n-1] {
		return y[n-1]
	}
	for i := 0; i < n-1; i++ {
		if v >= x[i] && v <= x[i+1] {
			if mode == InterpStep {
				return y[i]
			}
			span := x[i+1] - x[i]
			if span == 0 {
				return y[i]
			}
			return y[i] + (v-x[i])*(y[i+1]-y[i])/span
		}
	}
	return y[n-1]
}

func opTable1D(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Table
	v := lookup1D(p.X, p.Y1D, p.Mode, input(store, f, 0))
	writeOutput(store, f.Output, v)
}

// opTable2D bilinearly interpolates: interpolate along x at both bracketing
// y-rows, then interpolate those two results along y (spec §4.2)
func opTable2D(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Table
	ny := len(p.Y)
	if ny == 0 || len(p.Z) != ny {
		return
	}
	xv := input(store, f, 0)
	yv := input(store, f, 1)

	if yv <= p.Y[0] {
		writeOutput(store, f.Output, lookup1D(p.X, p.Z[0], InterpLinear, xv))
		return
	}
	if yv >= p.Y[ny-1] {
		writeOutput(store, f.Output, lookup1D(p.X, p.Z[ny-1], InterpLinear, xv))
		return
	}
	for i := 0; i < ny-1; i++ {
		if yv >= p.Y[i] && yv <= p.Y[i+1] {
			rLo := lookup1D(p.X, p.Z[i], InterpLinear, xv)
			rHi := lookup1D(p.X, p.Z[i+1], InterpLinear, xv)
			span := p.Y[i+1] - p.Y[i]
			if span == 0 {
				writeOutput(store, f.Output, rLo)
				return
			}
			writeOutput(store, f.Output, rLo+(yv-p.Y[i])*(rHi-rLo)/span)
			return
		}
	}
}

// opCurveFit evaluates a fixed-point polynomial, each coefficient scaled by
// 1000 to carry fractional precision through integer math
func opCurveFit(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.Table
	x := int64(input(store, f, 0))
	var acc, power int64 = 0, 1
	for _, c := range p.Coeffs {
		acc += int64(c) * power
		power *= x
	}
	writeOutput(store, f.Output, saturate32(acc/1000))
}
