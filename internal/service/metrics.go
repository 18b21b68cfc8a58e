package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var attributionOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "attribution_outcomes_total",
		Help: "Attribution invocation outcomes per platform",
	},
	[]string{"platform", "outcome"},
)

var reconcilerRequeues = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "reconciler_requeued_jobs_total",
		Help: "Attribution jobs re-enqueued by the reconciliation sweep",
	},
)
