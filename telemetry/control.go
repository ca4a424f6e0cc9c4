package telemetry

import (
	"net/http"

	"github.com/go-chi/chi"

	"github.com/bdube/pmu/actuation"
	"github.com/bdube/pmu/channel"
)

// Control is the narrow mutating surface an operator needs: force a faulted
// output to retry immediately, or disable/enable an output's setpoint
// channel outright. Grounded on generichttp/motion's chi.URLParam-based
// per-resource routes, the other router family the teacher uses alongside
// goji.io/pat.
type Control struct {
	Store     *channel.Store
	Actuation *actuation.Manager
}

// Retryable is satisfied by *actuation.Output and *actuation.HBridge.
type Retryable interface {
	ForceRetryNow()
	SetpointChannelID() uint16
}

// NewControlMux builds a chi.Router exposing the mutating control routes.
func NewControlMux(c Control) chi.Router {
	r := chi.NewRouter()
	r.Post("/outputs/{name}/retry", c.forceRetry)
	r.Post("/outputs/{name}/enable", c.setEnabled(true))
	r.Post("/outputs/{name}/disable", c.setEnabled(false))
	return r
}

func (c Control) findRetryable(name string) Retryable {
	if o := c.Actuation.FindOutput(name); o != nil {
		return o
	}
	if h := c.Actuation.FindHBridge(name); h != nil {
		return h
	}
	return nil
}

func (c Control) forceRetry(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	out := c.findRetryable(name)
	if out == nil {
		http.Error(w, "no such output", http.StatusNotFound)
		return
	}
	out.ForceRetryNow()
	w.WriteHeader(http.StatusOK)
}

// setEnabled returns a handler toggling the named output's setpoint
// channel's Enabled flag (the state machine reads this same flag every
// cycle, spec §4.3.1's "channel is disabled" transition).
func (c Control) setEnabled(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		out := c.findRetryable(name)
		if out == nil {
			http.Error(w, "no such output", http.StatusNotFound)
			return
		}
		if err := c.Store.SetEnabled(out.SetpointChannelID(), on); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
