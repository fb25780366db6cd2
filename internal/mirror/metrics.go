package mirror

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chargesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chargemirror_charges_fetched_total",
		Help: "Charges fetched from the upstream API",
	}, []string{"org"})

	chargesUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chargemirror_charges_upserted_total",
		Help: "Charges written to the local ledger",
	}, []string{"org"})

	syncErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chargemirror_sync_errors_total",
		Help: "Per-key sync failures",
	}, []string{"org"})

	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chargemirror_sync_duration_seconds",
		Help:    "Wall-clock duration of one key sync",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"org"})
)
