// Package metrics exposes Prometheus instrumentation for the risk core:
//
//	riskgate_decisions_total{outcome,code} – choke-point decisions
//	riskgate_exits_total{trigger,side}     – managed exits by trigger
//	riskgate_loss_pauses_total             – loss-streak pause activations
//	riskgate_active_positions              – managed positions being monitored
//
// Registered in init() and served in Prometheus text format by Handler().
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_decisions_total",
			Help: "Choke-point decisions by outcome and reason code",
		},
		[]string{"outcome", "code"},
	)

	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_exits_total",
			Help: "Managed exits by trigger and position side",
		},
		[]string{"trigger", "side"},
	)

	lossPauses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "riskgate_loss_pauses_total",
			Help: "Loss-streak pause activations",
		},
	)

	activePositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskgate_active_positions",
			Help: "Managed positions currently being monitored",
		},
	)
)

func init() {
	prometheus.MustRegister(decisions, exits, lossPauses, activePositions)
}

func DecisionObserved(outcome, code string) {
	if code == "" {
		code = "none"
	}
	decisions.WithLabelValues(outcome, code).Inc()
}

func ExitTriggered(trigger, side string) {
	exits.WithLabelValues(trigger, side).Inc()
}

func PauseActivated() {
	lossPauses.Inc()
}

func SetActivePositions(n int) {
	activePositions.Set(float64(n))
}

// Handler serves the default registry; mount it at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
