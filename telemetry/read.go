// Package telemetry exposes the channel table, function table and output
// aggregate over HTTP (spec §6.4): a read-only goji.io mux for polling/
// dashboard consumption, and a separate go-chi control mux (control.go) for
// the small set of mutating operator actions.
package telemetry

import (
	"encoding/json"
	"net/http"
	"strconv"

	"goji.io"
	"goji.io/pat"

	"github.com/bdube/pmu/actuation"
	"github.com/bdube/pmu/channel"
	"github.com/bdube/pmu/logic"
)

// Reader is the minimal view of the running system the telemetry mux reads
// from each request: the live *channel.Store, *logic.Engine and
// *actuation.Manager, held directly as concrete pointers.
type Reader struct {
	Store     *channel.Store
	Engine    *logic.Engine
	Actuation *actuation.Manager
}

// NewReadMux builds a goji.Mux exposing /channels, /channels/:id,
// /functions and /outputs as JSON (spec §6.4 "read-only view... output-state
// aggregate"), grounded on envsrv's goji.NewMux()+pat route binding.
func NewReadMux(r Reader) *goji.Mux {
	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/channels"), r.listChannels)
	mux.HandleFunc(pat.Get("/channels/:id"), r.getChannel)
	mux.HandleFunc(pat.Get("/functions"), r.listFunctions)
	mux.HandleFunc(pat.Get("/outputs"), r.listOutputs)
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (r Reader) listChannels(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, r.Store.All())
}

func (r Reader) getChannel(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseUint(pat.Param(req, "id"), 10, 16)
	if err != nil {
		http.Error(w, "invalid channel id", http.StatusBadRequest)
		return
	}
	c, ok := r.Store.GetInfo(uint16(id))
	if !ok {
		http.Error(w, "no such channel", http.StatusNotFound)
		return
	}
	writeJSON(w, c)
}

// functionView is a JSON-friendly projection of logic.Function: the raw
// struct embeds every family's Params/State, which is an implementation
// detail callers of this endpoint shouldn't need to know about.
type functionView struct {
	FunctionID uint8    `json:"function_id"`
	Kind       uint16   `json:"kind"`
	Inputs     []uint16 `json:"inputs"`
	Output     uint16   `json:"output"`
	Output2    uint16   `json:"output2,omitempty"`
	Enabled    bool     `json:"enabled"`
}

func (r Reader) listFunctions(w http.ResponseWriter, req *http.Request) {
	fns := r.Engine.Functions()
	out := make([]functionView, len(fns))
	for i, f := range fns {
		out[i] = functionView{
			FunctionID: f.FunctionID, Kind: uint16(f.Kind), Inputs: f.Inputs,
			Output: f.Output, Output2: f.Output2, Enabled: f.Enabled,
		}
	}
	writeJSON(w, out)
}

// outputView is the output-state aggregate spec §6.4 asks for, common
// across both high-side switch outputs and H-bridges.
type outputView struct {
	Name              string `json:"name"`
	State             string `json:"state"`
	Setpoint          int32  `json:"setpoint"`
	Applied           int32  `json:"applied"`
	MeasuredCurrentMA int32  `json:"measured_current_ma"`
	DriverTempC       int32  `json:"driver_temp_c"`
	FaultFlags        uint8  `json:"fault_flags"`
	RetryCount        int    `json:"retry_count"`
}

func (r Reader) listOutputs(w http.ResponseWriter, req *http.Request) {
	out := make([]outputView, 0, len(r.Actuation.Outputs())+len(r.Actuation.HBridges()))
	for _, o := range r.Actuation.Outputs() {
		out = append(out, outputView{
			Name: o.Config.Name, State: o.State.String(), Setpoint: o.Setpoint, Applied: o.Applied,
			MeasuredCurrentMA: o.MeasuredCurrentMA, DriverTempC: o.DriverTempC,
			FaultFlags: o.FaultFlags, RetryCount: o.RetryCount,
		})
	}
	for _, h := range r.Actuation.HBridges() {
		out = append(out, outputView{
			Name: h.Config.Name, State: h.State.String(), Setpoint: h.Applied, Applied: h.Applied,
			MeasuredCurrentMA: h.MeasuredCurrentMA, DriverTempC: h.DriverTempC,
			FaultFlags: h.FaultFlags, RetryCount: h.RetryCount,
		})
	}
	writeJSON(w, out)
}
