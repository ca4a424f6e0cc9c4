package adc

import (
	"testing"

	"github.com/bdube/pmu/channel"
)

func TestAdapterWritesScaledValue(t *testing.T) {
	store := channel.NewStore()
	if err := store.Register(channel.Channel{
		ID: 1, Name: "pressure", Direction: channel.Input, Class: channel.ClassInputAnalog,
	}); err != nil {
		t.Fatal(err)
	}

	src := NewFake(1, 0)
	src.Scaled[0] = 4200

	a := &Adapter{Source: src, Mappings: []Mapping{{ChannelID: 1, Index: 0}}}
	a.Sample(store, 0)

	if v := store.GetValue(1); v != 4200 {
		t.Fatalf("expected channel 1 = 4200, got %d", v)
	}
}
