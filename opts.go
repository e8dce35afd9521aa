package livequery

import (
	"github.com/autom8ter/machine/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Opt is an option for configuring an Invalidator
type Opt func(i *Invalidator)

// WithLogger sets the invalidator's logger
func WithLogger(logger Logger) Opt {
	return func(i *Invalidator) {
		i.logger = logger
	}
}

// WithRegisterer sets the prometheus registerer metrics are registered on when Config.Metrics is enabled
func WithRegisterer(registerer prometheus.Registerer) Opt {
	return func(i *Invalidator) {
		i.registerer = registerer
	}
}

// WithMachine sets the machine used to run refreshes and publish events.
// Event delivery holds one of its routines for the invalidator's lifetime, and Close leaves it open.
func WithMachine(m machine.Machine) Opt {
	return func(i *Invalidator) {
		i.machine = m
	}
}
