package digital

import (
	"testing"

	"github.com/bdube/pmu/channel"
)

func TestAdapterRPMAppliesTeethAndRatio(t *testing.T) {
	store := channel.NewStore()
	if err := store.Register(channel.Channel{
		ID: 1, Name: "wheel_rpm", Direction: channel.Input, Class: channel.ClassInputDigital,
	}); err != nil {
		t.Fatal(err)
	}

	src := NewFake(1)
	src.RPMs[0] = 2400 // raw pulses/min equivalent before teeth division

	a := &Adapter{Source: src, Mappings: []Mapping{
		{ChannelID: 1, Index: 0, Kind: KindRPM, Teeth: 4, RatioNum: 1, RatioDen: 2},
	}}
	a.Sample(store, 0)

	// 2400 / 4 teeth = 600, then * 1/2 ratio = 300
	if v := store.GetValue(1); v != 300 {
		t.Fatalf("expected channel 1 = 300, got %d", v)
	}
}

func TestAdapterStateAndFrequency(t *testing.T) {
	store := channel.NewStore()
	regs := []channel.Channel{
		{ID: 1, Name: "door", Direction: channel.Input, Class: channel.ClassInputDigital},
		{ID: 2, Name: "tach", Direction: channel.Input, Class: channel.ClassInputDigital},
	}
	for _, c := range regs {
		if err := store.Register(c); err != nil {
			t.Fatal(err)
		}
	}

	src := NewFake(1)
	src.States[0] = true
	src.Freqs[0] = 150

	a := &Adapter{Source: src, Mappings: []Mapping{
		{ChannelID: 1, Index: 0, Kind: KindState},
		{ChannelID: 2, Index: 0, Kind: KindFrequency},
	}}
	a.Sample(store, 0)

	if v := store.GetValue(1); v != 1 {
		t.Fatalf("expected door state channel = 1, got %d", v)
	}
	if v := store.GetValue(2); v != 150 {
		t.Fatalf("expected tach frequency channel = 150, got %d", v)
	}
}
