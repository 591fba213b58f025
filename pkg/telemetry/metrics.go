package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dcs_presence"

type metrics struct {
	received  prometheus.Counter
	discarded *prometheus.CounterVec
	events    *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Total UDP datagrams read from the telemetry socket.",
		}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_discarded_total",
			Help:      "Total datagrams discarded without producing an event, by reason.",
		}, []string{"reason"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_events_total",
			Help:      "Total telemetry events handed to the presence machine, by type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.received, m.discarded, m.events)
	}
	return m
}
