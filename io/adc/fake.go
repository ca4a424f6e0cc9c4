package adc

import (
	"context"

	"golang.org/x/time/rate"
)

// Fake is a bench Sampler returning operator-injected values, paced by a
// rate.Limiter the way nkt.go's AddressScan paces outbound telegrams
// (rate.NewLimiter(r, burst) + blocking Wait), simulating a source that
// cannot be read faster than its physical conversion rate.
type Fake struct {
	Raw    []uint16
	Scaled []int32

	limiter *rate.Limiter
}

// NewFake allocates a Fake sized for n channels, capped at sampleHz reads
// per second (0 disables the limiter).
func NewFake(n int, sampleHz float64) *Fake {
	f := &Fake{Raw: make([]uint16, n), Scaled: make([]int32, n)}
	if sampleHz > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(sampleHz), 1)
	}
	return f
}

func (f *Fake) SampleRaw(index int) (uint16, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(context.Background()); err != nil {
			return 0, err
		}
	}
	return f.Raw[index], nil
}

func (f *Fake) SampleScaled(index int) (int32, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(context.Background()); err != nil {
			return 0, err
		}
	}
	return f.Scaled[index], nil
}
