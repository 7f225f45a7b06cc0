// Copyright 2025 Smart Transaction
//
// Prometheus collectors for the blockclock backend.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AttestationsTotal counts inbound attestations by outcome
	// (admitted, malformed, unauthorized, backend_error).
	AttestationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockclock",
		Name:      "attestations_total",
		Help:      "Inbound time attestations by outcome.",
	}, []string{"outcome"})

	// PoolSize tracks the number of pending attestations.
	PoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blockclock",
		Name:      "pool_size",
		Help:      "Pending attestations in the signature pool.",
	})

	// TicksTotal counts aggregator ticks by outcome (empty, duplicate,
	// backend_error, dry_run, dispatched, primary_failed, skipped_busy).
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockclock",
		Name:      "ticks_total",
		Help:      "Aggregator ticks by outcome.",
	}, []string{"outcome"})

	// DispatchTotal counts chain dispatches by chain and result.
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockclock",
		Name:      "dispatch_total",
		Help:      "Envelope dispatches by chain and result.",
	}, []string{"chain", "result"})
)

// Handler serves the default registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
