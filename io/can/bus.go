// Package can adapts CAN bus signals into the channel store's input side
// (spec §6.2 "CAN RX"), over either a serial gateway (serial.go, framed with
// an XMODEM CRC exactly as nkt's telegram protocol) or a USB-CAN dongle
// (usbcan.go, via google/gousb).
package can

import (
	"github.com/bdube/pmu/channel"
	"github.com/bdube/pmu/handler"
)

// Frame is one decoded CAN signal extraction: (signal_id, extracted_value,
// timestamp_ms) per spec §6.2.
type Frame struct {
	SignalID    uint32
	Value       int32
	TimestampMS int64
}

// Signal maps one CAN signal id onto one input channel, with the per-signal
// staleness timeout of spec §6.2/§7.
type Signal struct {
	SignalID     uint32
	ChannelID    uint16
	TimeoutMS    int64
	DefaultValue int32

	lastSeenMS int64
	everSeen   bool
	stale      bool
}

// Gateway is the narrow source interface a CAN transport provides: received
// frames are pushed onto Frames (buffered, single-producer), matching spec
// §5's "hardware interrupts ... deposit samples ... into lock-free
// single-producer/single-consumer buffers consumed at the start of the next
// cycle."
type Gateway interface {
	Frames() <-chan Frame
}

// Bus adapts a Gateway's incoming frames into the channel store once per
// cycle, and expires any signal that has gone silent past its timeout.
type Bus struct {
	Gateway Gateway
	Signals []Signal

	// Queue, if set, receives an EventTimeout each time a signal first goes
	// stale (not re-raised every cycle it stays stale).
	Queue *handler.Queue

	byID map[uint32]*Signal
}

// Sample implements sched.Sampler: drain every frame buffered since the last
// cycle, write its mapped channel and reset its staleness timer; then mark
// any signal that has exceeded its timeout STALE and reset it to its
// configured default (spec §6.2, §7 "CAN signal timeout").
func (b *Bus) Sample(store *channel.Store, nowMS int64) {
	b.ensureIndex()

	drain := b.Gateway.Frames()
draining:
	for {
		select {
		case f := <-drain:
			if sig, ok := b.byID[f.SignalID]; ok {
				sig.lastSeenMS = nowMS
				sig.everSeen = true
				sig.stale = false
				store.ForceValue(sig.ChannelID, f.Value)
				store.SetFlag(sig.ChannelID, channel.Stale, false)
			}
		default:
			break draining
		}
	}

	for i := range b.Signals {
		sig := &b.Signals[i]
		if sig.TimeoutMS <= 0 {
			continue
		}
		age := nowMS - sig.lastSeenMS
		if !sig.everSeen || age > sig.TimeoutMS {
			store.ForceValue(sig.ChannelID, sig.DefaultValue)
			store.SetFlag(sig.ChannelID, channel.Stale, true)
			if !sig.stale && b.Queue != nil {
				b.Queue.Push(handler.Event{Kind: handler.EventTimeout, ChannelID: sig.ChannelID, Value: sig.DefaultValue})
			}
			sig.stale = true
		}
	}
}

func (b *Bus) ensureIndex() {
	if b.byID != nil {
		return
	}
	b.byID = make(map[uint32]*Signal, len(b.Signals))
	for i := range b.Signals {
		b.byID[b.Signals[i].SignalID] = &b.Signals[i]
	}
}
