package can

import (
	"testing"

	"github.com/bdube/pmu/channel"
	"github.com/bdube/pmu/handler"
)

type fakeGateway struct {
	ch chan Frame
}

func newFakeGateway() *fakeGateway { return &fakeGateway{ch: make(chan Frame, 16)} }

func (g *fakeGateway) Frames() <-chan Frame { return g.ch }

func newBusTestStore(t *testing.T) *channel.Store {
	t.Helper()
	store := channel.NewStore()
	if err := store.Register(channel.Channel{
		ID: 1, Name: "rpm", Direction: channel.Input, Class: channel.ClassInputCAN,
	}); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestBusWritesChannelOnFrame(t *testing.T) {
	store := newBusTestStore(t)
	gw := newFakeGateway()
	bus := &Bus{Gateway: gw, Signals: []Signal{
		{SignalID: 100, ChannelID: 1, TimeoutMS: 500, DefaultValue: -1},
	}}

	gw.ch <- Frame{SignalID: 100, Value: 1234}
	bus.Sample(store, 0)

	if v := store.GetValue(1); v != 1234 {
		t.Fatalf("expected channel 1 = 1234, got %d", v)
	}
	if c, _ := store.GetInfo(1); c.Flags.Has(channel.Stale) {
		t.Fatal("expected channel not stale after a fresh frame")
	}
}

func TestBusMarksStaleAfterTimeout(t *testing.T) {
	store := newBusTestStore(t)
	gw := newFakeGateway()
	bus := &Bus{Gateway: gw, Signals: []Signal{
		{SignalID: 100, ChannelID: 1, TimeoutMS: 100, DefaultValue: -1},
	}}

	gw.ch <- Frame{SignalID: 100, Value: 1234}
	bus.Sample(store, 0)

	bus.Sample(store, 50) // within timeout, no frame
	if c, _ := store.GetInfo(1); c.Flags.Has(channel.Stale) {
		t.Fatal("should not be stale before the timeout elapses")
	}

	bus.Sample(store, 200) // timeout exceeded, no new frame
	c, _ := store.GetInfo(1)
	if !c.Flags.Has(channel.Stale) {
		t.Fatal("expected channel to be marked STALE after timeout")
	}
	if c.Value != -1 {
		t.Fatalf("expected channel reset to default -1, got %d", c.Value)
	}
}

func TestBusNeverSeenStartsStale(t *testing.T) {
	store := newBusTestStore(t)
	gw := newFakeGateway()
	bus := &Bus{Gateway: gw, Signals: []Signal{
		{SignalID: 100, ChannelID: 1, TimeoutMS: 100, DefaultValue: -1},
	}}

	bus.Sample(store, 0)
	c, _ := store.GetInfo(1)
	if !c.Flags.Has(channel.Stale) {
		t.Fatal("expected a never-seen signal to start STALE")
	}
	if c.Value != -1 {
		t.Fatalf("expected default value -1, got %d", c.Value)
	}
}

func TestBusPushesTimeoutEventOnceOnStaleTransition(t *testing.T) {
	store := newBusTestStore(t)
	gw := newFakeGateway()
	q := handler.NewQueue(0)
	bus := &Bus{Gateway: gw, Signals: []Signal{
		{SignalID: 100, ChannelID: 1, TimeoutMS: 100, DefaultValue: -1},
	}, Queue: q}

	gw.ch <- Frame{SignalID: 100, Value: 1234}
	bus.Sample(store, 0)
	if q.Len() != 0 {
		t.Fatalf("expected no event while fresh, got %d queued", q.Len())
	}

	bus.Sample(store, 200) // timeout exceeded
	events := q.Drain()
	if len(events) != 1 || events[0].Kind != handler.EventTimeout || events[0].ChannelID != 1 {
		t.Fatalf("expected one EventTimeout(channel=1), got %+v", events)
	}

	bus.Sample(store, 300) // still stale, no repeat frame
	if q.Len() != 0 {
		t.Fatal("expected no repeat EventTimeout while signal stays stale")
	}
}
