// Command pmu boots the power management unit's core cycle (channel store,
// logic engine, actuation manager, handler registry) from a YAML config
// document and serves its read-only and control HTTP surfaces. Mirrors the
// command-string-dispatch shape of cmd/andorhttp2 and the
// goji.NewMux-then-ListenAndServe shape of cmd/envsrv, generalized from "one
// instrument" to "one scheduled cycle plus two HTTP muxes."
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/theckman/yacspin"
	yml "gopkg.in/yaml.v2"

	"github.com/bdube/pmu/actuation"
	"github.com/bdube/pmu/channel"
	"github.com/bdube/pmu/config"
	"github.com/bdube/pmu/handler"
	"github.com/bdube/pmu/io/adc"
	"github.com/bdube/pmu/io/can"
	"github.com/bdube/pmu/io/digital"
	"github.com/bdube/pmu/io/hal"
	"github.com/bdube/pmu/sched"
	"github.com/bdube/pmu/telemetry"
)

var (
	// Version is injected via ldflags at build time.
	Version = "1"

	// ConfigFileName is the document Load looks for in the working directory.
	ConfigFileName = "pmu.yml"
)

func root() {
	fmt.Println(`pmu runs a power management unit's real-time control cycle
and exposes it over HTTP for telemetry and operator control.

Usage:
	pmu <command>

Commands:
	run
	conf
	mkconf
	help
	version`)
}

func help() {
	fmt.Println(`pmu is configured via pmu.yml in the working directory; a
missing file is not an error, the framework's built-in defaults apply
instead (config.Default).

The running cycle samples inputs, evaluates every configured logic
function, steps every configured output and H-bridge, then drains any
handler events, once per cycle_period_ms. Read-only state is served at
the configured telemetry_addr (/channels, /channels/:id, /functions,
/outputs); operator actions (force a retry, disable/enable an output) are
served at control_addr.

With no hardware wired in, pmu runs entirely against in-memory fakes
(io/hal.Fake, io/adc.Fake, io/digital.Fake, io/can.FakeGateway), which is
enough to exercise the full cycle on a bench with no physical I/O attached.`)
}

func pversion() {
	fmt.Printf("pmu version %v\n", Version)
}

// printconf resolves ConfigFileName over the built-in defaults and prints
// the result as YAML, mirroring andorhttp2's printconf/mkconf split: "conf"
// shows what would actually run, "mkconf" writes it to disk as a starting
// point for editing.
func printconf() {
	doc, err := config.LoadDocument(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	if err := yml.NewEncoder(os.Stdout).Encode(doc); err != nil {
		log.Fatal(err)
	}
}

func mkconf() {
	doc, err := config.LoadDocument(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := yml.NewEncoder(f).Encode(doc); err != nil {
		log.Fatal(err)
	}
}

// systemFault implements sched.FaultSink: on a sustained cycle overrun it
// disables every configured output and H-bridge's setpoint channel, the
// load-shedding spec §7 describes the scheduler as triggering but leaves to
// the caller.
type systemFault struct {
	store     *channel.Store
	actuation *actuation.Manager
}

func (f *systemFault) RaiseSystemFault(reason string) {
	color.Red("SYSTEM FAULT: %s -- shedding load", reason)
	for _, o := range f.actuation.Outputs() {
		f.store.SetEnabled(o.SetpointChannelID(), false)
	}
	for _, h := range f.actuation.HBridges() {
		f.store.SetEnabled(h.SetpointChannelID(), false)
	}
}

// newFakeDriver builds the bench hal.HBridgeDriver used when no real bus is
// configured. Sized generously; physical indices beyond what's configured
// are simply never touched.
func newFakeDriver() hal.HBridgeDriver {
	return hal.NewFake(64)
}

// buildSamplers wires the configured mapping tables onto in-memory fakes.
// A deployment with real ADC/digital/CAN hardware swaps these Sampler
// sources for bus-backed ones (io/can.NewSerialGateway, io/can.NewUSBGateway)
// without touching the mapping tables themselves.
func buildSamplers(t config.Tables, queue *handler.Queue) []sched.Sampler {
	var samplers []sched.Sampler

	if len(t.ADCMappings) > 0 {
		mappings := make([]adc.Mapping, len(t.ADCMappings))
		for i, m := range t.ADCMappings {
			mappings[i] = adc.Mapping{ChannelID: m.ChannelID, Index: m.Index}
		}
		samplers = append(samplers, &adc.Adapter{Source: adc.NewFake(32, 0), Mappings: mappings})
	}

	if len(t.DigitalMappings) > 0 {
		mappings := make([]digital.Mapping, len(t.DigitalMappings))
		for i, m := range t.DigitalMappings {
			mappings[i] = digital.Mapping{
				ChannelID: m.ChannelID, Index: m.Index, Kind: digitalKindByName(m.Kind),
				Teeth: m.Teeth, RatioNum: m.RatioNum, RatioDen: m.RatioDen,
			}
		}
		samplers = append(samplers, &digital.Adapter{Source: digital.NewFake(32), Mappings: mappings})
	}

	if len(t.CANSignals) > 0 {
		signals := make([]can.Signal, len(t.CANSignals))
		for i, s := range t.CANSignals {
			signals[i] = can.Signal{
				SignalID: s.SignalID, ChannelID: s.ChannelID,
				TimeoutMS: s.TimeoutMS, DefaultValue: s.DefaultValue,
			}
		}
		samplers = append(samplers, &can.Bus{Gateway: can.NewFakeGateway(256), Signals: signals, Queue: queue})
	}

	return samplers
}

// buildWatcher watches every registered channel for value transitions and
// fault-flag edges, feeding the handler subsystem (spec §4.4).
func buildWatcher(store *channel.Store) *handler.Watcher {
	chans := store.All()
	watches := make([]handler.Watch, len(chans))
	for i, c := range chans {
		watches[i] = handler.Watch{ChannelID: c.ID}
	}
	return &handler.Watcher{Watches: watches}
}

func digitalKindByName(name string) digital.Kind {
	switch strings.ToLower(name) {
	case "frequency":
		return digital.KindFrequency
	case "rpm":
		return digital.KindRPM
	default:
		return digital.KindState
	}
}

func run() {
	spinner, _ := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " booting pmu",
		SuffixAutoColon: true,
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
	})
	if spinner != nil {
		spinner.Start()
	}

	tables, err := config.Load(ConfigFileName, func() hal.HBridgeDriver { return newFakeDriver() })
	if err != nil {
		if spinner != nil {
			spinner.StopFailMessage(err.Error())
			spinner.StopFail()
		}
		log.Fatal(err)
	}

	queue := handler.NewQueue(handler.MinQueueCapacity)
	cycle := &sched.Cycle{
		Store:     tables.Store,
		Samplers:  buildSamplers(tables, queue),
		Engine:    tables.Engine,
		Actuation: tables.Actuation,
		Watcher:   buildWatcher(tables.Store),
		Handlers:  tables.Handlers,
		Queue:     queue,
	}

	fault := &systemFault{store: tables.Store, actuation: tables.Actuation}
	period := time.Duration(tables.CyclePeriodMS) * time.Millisecond
	scheduler := sched.NewScheduler(cycle, period, tables.TelemetryHz, fault)
	scheduler.Start()

	reader := telemetry.Reader{Store: tables.Store, Engine: tables.Engine, Actuation: tables.Actuation}
	control := telemetry.Control{Store: tables.Store, Actuation: tables.Actuation}

	if spinner != nil {
		spinner.StopMessage("boot complete")
		spinner.Stop()
	}
	color.Green("telemetry listening on %s, control on %s", tables.TelemetryAddr, tables.ControlAddr)

	errs := make(chan error, 2)
	go func() { errs <- http.ListenAndServe(tables.TelemetryAddr, telemetry.NewReadMux(reader)) }()
	go func() { errs <- http.ListenAndServe(tables.ControlAddr, telemetry.NewControlMux(control)) }()
	log.Fatal(<-errs)
}

func main() {
	if len(os.Args) == 1 {
		root()
		return
	}
	switch strings.ToLower(os.Args[1]) {
	case "help":
		help()
	case "version":
		pversion()
	case "conf":
		printconf()
	case "mkconf":
		mkconf()
	case "run":
		run()
	default:
		log.Fatal("unknown command")
	}
}
