package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bdube/pmu/actuation"
	"github.com/bdube/pmu/channel"
	"github.com/bdube/pmu/io/hal"
	"github.com/bdube/pmu/logic"
)

func newTestReader(t *testing.T) Reader {
	t.Helper()
	store := channel.NewStore()
	if err := store.Register(channel.Channel{
		ID: 1, Name: "coolant_temp", Direction: channel.Input, Class: channel.ClassInputAnalog,
		Format: channel.FormatTemperatureDC, Value: 425,
	}); err != nil {
		t.Fatal(err)
	}
	engine := logic.NewEngine()
	if err := engine.Add(&logic.Function{FunctionID: 1, Kind: logic.KindCopy, Inputs: []uint16{1}, Output: 1, Enabled: true}); err != nil {
		t.Fatal(err)
	}
	mgr := actuation.NewManager(hal.NewFake(1))
	mgr.AddOutput(actuation.Config{Name: "heater", MergedPins: []int{0}})
	return Reader{Store: store, Engine: engine, Actuation: mgr}
}

func TestListChannels(t *testing.T) {
	mux := NewReadMux(newTestReader(t))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/channels", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out []channel.Channel
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Name != "coolant_temp" {
		t.Fatalf("unexpected channels response: %+v", out)
	}
}

func TestGetChannelByID(t *testing.T) {
	mux := NewReadMux(newTestReader(t))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/channels/1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var c channel.Channel
	if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
		t.Fatal(err)
	}
	if c.Value != 425 {
		t.Fatalf("expected value 425, got %d", c.Value)
	}
}

func TestGetChannelNotFound(t *testing.T) {
	mux := NewReadMux(newTestReader(t))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/channels/999", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListFunctions(t *testing.T) {
	mux := NewReadMux(newTestReader(t))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/functions", nil))
	var out []functionView
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Kind != uint16(logic.KindCopy) {
		t.Fatalf("unexpected functions response: %+v", out)
	}
}

func TestListOutputs(t *testing.T) {
	mux := NewReadMux(newTestReader(t))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/outputs", nil))
	var out []outputView
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Name != "heater" || out[0].State != "OFF" {
		t.Fatalf("unexpected outputs response: %+v", out)
	}
}
