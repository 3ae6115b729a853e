// Package metrics holds the Prometheus collectors the bot updates while it
// trades. They are registered in init() and served on /metrics by the API
// server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Phase is the phase the controller is currently trading.
	Phase = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "phasebot_phase",
			Help: "Current trading phase",
		},
	)

	// PhaseProfit is the last recomputed sum of open-position profit.
	PhaseProfit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "phasebot_phase_profit",
			Help: "Open profit of the current phase",
		},
	)

	// Orders counts order submissions by direction and result (ok|error).
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phasebot_orders_total",
			Help: "Orders submitted",
		},
		[]string{"direction", "result"},
	)

	// Closes counts position closes by result (ok|error).
	Closes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phasebot_closes_total",
			Help: "Position closes attempted",
		},
		[]string{"result"},
	)

	// Ticks counts control-loop ticks by outcome.
	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phasebot_ticks_total",
			Help: "Control loop ticks",
		},
		[]string{"outcome"},
	)

	// Retries counts retried venue operations.
	Retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phasebot_retries_total",
			Help: "Retried external operations",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(Phase, PhaseProfit, Orders, Closes, Ticks, Retries)
}
