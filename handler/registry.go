package handler

import "github.com/bdube/pmu/channel"

// Action is what a Handler does when its event fires.
type Action uint8

const (
	// ActionWriteChannel forces the event's value onto TargetChannel.
	ActionWriteChannel Action = iota
	// ActionSetOutput routes the event's value through the normal
	// output/enabled-checked SetValue path.
	ActionSetOutput
	// ActionEmitFrame hands the event to an external CAN/serial sink.
	ActionEmitFrame
	// ActionInvokeFunction calls a loader-registered scripted callback.
	ActionInvokeFunction
)

// FrameSink is the external sink a handler's ActionEmitFrame writes a
// CAN/serial frame to; the wire encoding itself belongs to io/can.
type FrameSink interface {
	EmitFrame(channelID uint16, value int32) error
}

// Handler is one named record matched on (EventKind, SourceChannel) (spec
// §4.4). ConditionChannel, if nonzero, gates dispatch: the handler is
// skipped for an event cycle in which that channel's value is zero.
type Handler struct {
	Name string

	EventKind     EventKind
	SourceChannel uint16

	ConditionChannel uint16

	Action        Action
	TargetChannel uint16

	FrameSink FrameSink
	Function  func(store *channel.Store, e Event)
}

// Registry holds the configured handler records and dispatches drained
// events against them once per cycle, after logic evaluation (spec §4.4,
// §5 ordering: "... -> handlers drained").
type Registry struct {
	handlers []Handler
}

// Add registers h.
func (r *Registry) Add(h Handler) {
	r.handlers = append(r.handlers, h)
}

// Handlers returns the registered handler records (telemetry enumeration).
func (r *Registry) Handlers() []Handler { return r.handlers }

// Dispatch drains q and runs every matching, enabled handler against each
// event in FIFO order.
func (r *Registry) Dispatch(store *channel.Store, q *Queue) {
	for _, e := range q.Drain() {
		r.dispatchOne(store, e)
	}
}

func (r *Registry) dispatchOne(store *channel.Store, e Event) {
	for i := range r.handlers {
		h := &r.handlers[i]
		if h.EventKind != e.Kind || h.SourceChannel != e.ChannelID {
			continue
		}
		if h.ConditionChannel != 0 && store.GetValue(h.ConditionChannel) == 0 {
			continue
		}
		run(store, h, e)
	}
}

func run(store *channel.Store, h *Handler, e Event) {
	switch h.Action {
	case ActionWriteChannel:
		store.ForceValue(h.TargetChannel, e.Value)
	case ActionSetOutput:
		store.SetValue(h.TargetChannel, e.Value)
	case ActionEmitFrame:
		if h.FrameSink != nil {
			h.FrameSink.EmitFrame(e.ChannelID, e.Value)
		}
	case ActionInvokeFunction:
		if h.Function != nil {
			h.Function(store, e)
		}
	}
}
