package digital

// Fake is a bench Reader returning operator-injected values.
type Fake struct {
	States []bool
	Freqs  []int32
	RPMs   []int32
}

// NewFake allocates a Fake sized for n channels.
func NewFake(n int) *Fake {
	return &Fake{States: make([]bool, n), Freqs: make([]int32, n), RPMs: make([]int32, n)}
}

func (f *Fake) State(index int) (bool, error)        { return f.States[index], nil }
func (f *Fake) FrequencyHz(index int) (int32, error) { return f.Freqs[index], nil }
func (f *Fake) RPM(index int) (int32, error)          { return f.RPMs[index], nil }
