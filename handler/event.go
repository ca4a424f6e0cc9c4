// Package handler implements the event/handler subsystem: a bounded queue of
// channel-transition events drained once per cycle against a registry of
// named handler records (spec §4.4).
package handler

// EventKind classifies why an Event was raised.
type EventKind uint8

const (
	// EventTransition marks a channel's value crossing a configured edge or
	// threshold (raised by the sampling layer or the logic engine).
	EventTransition EventKind = iota
	// EventFault marks an output or sensor entering a fault state.
	EventFault
	// EventTimeout marks a CAN signal or sensor watchdog expiring.
	EventTimeout
	// EventCustom is a user/loader-defined event kind for scripted handlers.
	EventCustom
)

// Event is one queued (event_kind, channel_id, value) record.
type Event struct {
	Kind      EventKind
	ChannelID uint16
	Value     int32
}

// MinQueueCapacity is the minimum bounded queue capacity spec §4.4 requires.
const MinQueueCapacity = 64

// Queue is a bounded FIFO of pending events. Push is non-blocking and drops
// the event if the queue is full (bounded per spec); Drain pulls everything
// currently queued without blocking, mirroring the select-on-channel-with-
// default non-blocking drain loop the teacher uses to pump a playback buffer
// (fsm.Disturbance.Play), adapted here from "pump a goroutine every DT" to
// "drain everything queued so far, once, at the handler phase of a cycle."
type Queue struct {
	ch chan Event
}

// NewQueue allocates a Queue with at least MinQueueCapacity slots.
func NewQueue(capacity int) *Queue {
	if capacity < MinQueueCapacity {
		capacity = MinQueueCapacity
	}
	return &Queue{ch: make(chan Event, capacity)}
}

// Push enqueues e, returning false if the queue was full and e was dropped.
func (q *Queue) Push(e Event) bool {
	select {
	case q.ch <- e:
		return true
	default:
		return false
	}
}

// Drain pulls every event currently queued, in FIFO order, without blocking.
func (q *Queue) Drain() []Event {
	var out []Event
	for {
		select {
		case e := <-q.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

// Len reports how many events are currently queued.
func (q *Queue) Len() int { return len(q.ch) }
