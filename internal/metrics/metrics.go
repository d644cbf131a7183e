// Package metrics exposes prometheus instruments for the ingestion path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

type Metrics struct {
	ReadingsIngested *prometheus.CounterVec
	IngestDuration   prometheus.Histogram
	AlertsOpened     *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the instruments against the given registerer so tests
// can use an isolated registry.
func NewWith(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		ReadingsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aquameter_readings_ingested_total",
			Help: "Ingest submissions by outcome: stored, rejected or unauthorized.",
		}, []string{"outcome"}),
		IngestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aquameter_ingest_duration_seconds",
			Help:    "End-to-end ingestion latency.",
			Buckets: prometheus.DefBuckets,
		}),
		AlertsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aquameter_alerts_opened_total",
			Help: "Alerts opened, by alert type.",
		}, []string{"alert_type"}),
	}
}

var Module = fx.Module("metrics",
	fx.Provide(New),
)
