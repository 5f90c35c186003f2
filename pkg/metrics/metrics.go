// Package metrics exposes Prometheus collectors for cells, engine switches,
// engine lifecycles and relayed events.
//
// All methods are safe on a nil *Collectors, so components can record
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups the metrics recorded by a session.
type Collectors struct {
	cells         *prometheus.CounterVec
	switches      *prometheus.CounterVec
	engineStarts  *prometheus.CounterVec
	relayEvents   *prometheus.CounterVec
	relayDuration *prometheus.HistogramVec
	exchanges     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		cells: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_cells_total",
				Help: "Total number of executed cells by status",
			},
			[]string{"status"},
		),
		switches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_engine_switches_total",
				Help: "Total number of engine switches",
			},
			[]string{"from", "to"},
		),
		engineStarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_engine_starts_total",
				Help: "Total number of engine starts and restarts by outcome",
			},
			[]string{"engine", "outcome"},
		),
		relayEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_relay_events_total",
				Help: "Total number of events forwarded from engines",
			},
			[]string{"engine", "kind"},
		),
		relayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "switchboard_relay_duration_seconds",
				Help:    "Duration of requests relayed to engines",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"engine"},
		),
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_exchanges_total",
				Help: "Total number of variable exchanges by direction and outcome",
			},
			[]string{"direction", "outcome"},
		),
	}
	reg.MustRegister(c.cells, c.switches, c.engineStarts, c.relayEvents, c.relayDuration, c.exchanges)
	return c
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// CellDone counts a finished top-level cell.
func (c *Collectors) CellDone(status string) {
	if c == nil {
		return
	}
	c.cells.WithLabelValues(status).Inc()
}

// Switched counts an engine transition.
func (c *Collectors) Switched(from, to string) {
	if c == nil {
		return
	}
	c.switches.WithLabelValues(from, to).Inc()
}

// EngineStarted counts an engine start attempt.
func (c *Collectors) EngineStarted(engine string, err error) {
	if c == nil {
		return
	}
	c.engineStarts.WithLabelValues(engine, outcome(err)).Inc()
}

// RelayEvent counts an event forwarded from an engine.
func (c *Collectors) RelayEvent(engine, kind string) {
	if c == nil {
		return
	}
	c.relayEvents.WithLabelValues(engine, kind).Inc()
}

// ObserveRelay records how long a relayed request took.
func (c *Collectors) ObserveRelay(engine string, d time.Duration) {
	if c == nil {
		return
	}
	c.relayDuration.WithLabelValues(engine).Observe(d.Seconds())
}

// Exchange counts a get or put exchange.
func (c *Collectors) Exchange(direction string, err error) {
	if c == nil {
		return
	}
	c.exchanges.WithLabelValues(direction, outcome(err)).Inc()
}
