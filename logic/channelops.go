package logic

import "github.com/bdube/pmu/channel"

// LoadBalanceMode selects LOAD_BALANCE's distribution strategy
type LoadBalanceMode uint8

const (
	BalanceRoundRobin LoadBalanceMode = iota
	BalanceSequential
	BalanceProportional
)

// PriorityOutput pairs an output channel with a shed priority for
// CURRENT_LIMIT_MANAGER (lower sheds first)
type PriorityOutput struct {
	Channel  uint16
	Priority int
}

// ChannelOpsParams configures the channel-ops family (spec §4.2, 0xD0-0xDF)
type ChannelOpsParams struct {
	// MaxDeviation bounds REDUNDANCY_CHECK's |a-b|
	MaxDeviation int32
	// REDUNDANCY_CHECK's secondary fault channel is Function.Output2, not a
	// field here

	// OutlierReject enables SENSOR_SELECT's reject-and-median behavior rather
	// than plain median
	OutlierReject bool
	// OutlierBand is the deviation from the median beyond which a sample is
	// excluded from the re-averaged result
	OutlierBand int32

	// StaggerMS is the per-input delay applied by CHANNEL_SYNC
	StaggerMS int64

	// Mode selects LOAD_BALANCE's strategy; Outputs are the driven channels;
	// Weights parallels Outputs for BalanceProportional
	Mode       LoadBalanceMode
	Outputs    []uint16
	Weights    []int32
	CycleEveryMS int64

	// Managed lists CURRENT_LIMIT_MANAGER's outputs in shedding priority
	// order; TotalLimit bounds their combined setpoint
	Managed    []PriorityOutput
	TotalLimit int32
}

// ChannelOpsState holds the channel-ops family's persistent memory
type ChannelOpsState struct {
	SyncBuf      [MaxInputs][]int32
	SyncElapsed  int64

	BalanceIndex int
	BalanceElapsedMS int64
}

func init() {
	register(KindChannelSum, opChannelSum)
	register(KindChannelMin, opChannelMin)
	register(KindChannelMax, opChannelMax)
	register(KindChannelAvg, opChannelAvg)
	register(KindDiff, opDiff)
	register(KindRedundancyCheck, opRedundancyCheck)
	register(KindSensorSelect, opSensorSelect)
	register(KindChannelSync, opChannelSync)
	register(KindGangControl, opGangControl)
	register(KindLoadBalance, opLoadBalance)
	register(KindFaultAggregate, opFaultAggregate)
	register(KindCurrentLimitManager, opCurrentLimitManager)
}

func opChannelSum(store *channel.Store, f *Function, nowMS, dtMS int64) {
	var sum int64
	for i := range f.Inputs {
		sum += int64(input(store, f, i))
	}
	writeOutput(store, f.Output, saturate32(sum))
}

func opChannelMin(store *channel.Store, f *Function, nowMS, dtMS int64) {
	opMin(store, f, nowMS, dtMS)
}

func opChannelMax(store *channel.Store, f *Function, nowMS, dtMS int64) {
	opMax(store, f, nowMS, dtMS)
}

func opChannelAvg(store *channel.Store, f *Function, nowMS, dtMS int64) {
	opAvg(store, f, nowMS, dtMS)
}

func opDiff(store *channel.Store, f *Function, nowMS, dtMS int64) {
	writeOutput(store, f.Output, saturate32(int64(input(store, f, 0))-int64(input(store, f, 1))))
}

// opRedundancyCheck: |a-b| > max_deviation sets the fault output (Output2) to
// 1; the primary output is always (a+b)/2 (spec §4.2 "REDUNDANCY_CHECK")
func opRedundancyCheck(store *channel.Store, f *Function, nowMS, dtMS int64) {
	a := input(store, f, 0)
	b := input(store, f, 1)
	avg := int32((int64(a) + int64(b)) / 2)
	writeOutput(store, f.Output, avg)

	d := a - b
	if d < 0 {
		d = -d
	}
	fault := boolToInt32(d > f.Params.ChannelOps.MaxDeviation)
	writeOutput(store, f.Output2, fault)
}

// opSensorSelect: median of inputs, optionally re-averaging after excluding
// samples that deviate from the median by more than OutlierBand
func opSensorSelect(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.ChannelOps
	n := len(f.Inputs)
	if n == 0 {
		return
	}
	vals := make([]int32, n)
	for i := 0; i < n; i++ {
		vals[i] = input(store, f, i)
	}
	sorted := append([]int32(nil), vals...)
	for i := 1; i < n; i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	median := sorted[n/2]
	if !p.OutlierReject {
		writeOutput(store, f.Output, median)
		return
	}
	var sum int64
	var count int64
	for _, v := range vals {
		d := v - median
		if d < 0 {
			d = -d
		}
		if d <= p.OutlierBand {
			sum += int64(v)
			count++
		}
	}
	if count == 0 {
		writeOutput(store, f.Output, median)
		return
	}
	writeOutput(store, f.Output, saturate32(sum/count))
}

// opChannelSync applies a per-input stagger delay before summing, by
// shifting each input through its own small FIFO (spec's "staggered delays")
func opChannelSync(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.ChannelOps
	s := &f.State.ChannelOps
	depth := 1
	if p.StaggerMS > 0 && dtMS > 0 {
		depth = int(p.StaggerMS/dtMS) + 1
	}
	var sum int64
	for i := range f.Inputs {
		buf := s.SyncBuf[i]
		buf = append(buf, input(store, f, i))
		if len(buf) > depth {
			buf = buf[len(buf)-depth:]
		}
		s.SyncBuf[i] = buf
		sum += int64(buf[0])
	}
	writeOutput(store, f.Output, saturate32(sum))
}

// opGangControl mirrors inputs[0] onto every configured output channel
func opGangControl(store *channel.Store, f *Function, nowMS, dtMS int64) {
	v := input(store, f, 0)
	for _, id := range f.Params.ChannelOps.Outputs {
		writeOutput(store, id, v)
	}
}

// opLoadBalance distributes inputs[0] across Outputs per Mode
func opLoadBalance(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.ChannelOps
	s := &f.State.ChannelOps
	v := input(store, f, 0)
	n := len(p.Outputs)
	if n == 0 {
		return
	}
	switch p.Mode {
	case BalanceProportional:
		var total int32
		for _, w := range p.Weights {
			total += w
		}
		if total == 0 || len(p.Weights) != n {
			return
		}
		for i, id := range p.Outputs {
			writeOutput(store, id, int32(int64(v)*int64(p.Weights[i])/int64(total)))
		}
	case BalanceSequential:
		s.BalanceElapsedMS += dtMS
		if p.CycleEveryMS > 0 && s.BalanceElapsedMS >= p.CycleEveryMS {
			s.BalanceElapsedMS = 0
			s.BalanceIndex = (s.BalanceIndex + 1) % n
		}
		for i, id := range p.Outputs {
			if i == s.BalanceIndex {
				writeOutput(store, id, v)
			} else {
				writeOutput(store, id, 0)
			}
		}
	default: // BalanceRoundRobin
		for i, id := range p.Outputs {
			if i == s.BalanceIndex {
				writeOutput(store, id, v)
			} else {
				writeOutput(store, id, 0)
			}
		}
		s.BalanceIndex = (s.BalanceIndex + 1) % n
	}
}

func opFaultAggregate(store *channel.Store, f *Function, nowMS, dtMS int64) {
	any := false
	for i := range f.Inputs {
		if truthy(input(store, f, i)) {
			any = true
			break
		}
	}
	writeOutput(store, f.Output, boolToInt32(any))
}

// opCurrentLimitManager sheds managed outputs lowest-priority-first until
// their summed setpoint fits TotalLimit
func opCurrentLimitManager(store *channel.Store, f *Function, nowMS, dtMS int64) {
	p := f.Params.ChannelOps
	managed := append([]PriorityOutput(nil), p.Managed...)
	for i := 1; i < len(managed); i++ {
		for j := i; j > 0 && managed[j-1].Priority > managed[j].Priority; j-- {
			managed[j-1], managed[j] = managed[j], managed[j-1]
		}
	}
	var total int64
	for _, m := range managed {
		total += int64(store.GetValue(m.Channel))
	}
	shedFault := int32(0)
	for _, m := range managed {
		if total <= int64(p.TotalLimit) {
			break
		}
		v := store.GetValue(m.Channel)
		total -= int64(v)
		store.ForceValue(m.Channel, 0)
		shedFault = 1
	}
	writeOutput(store, f.Output, shedFault)
}
