package presence

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	publish *prometheus.CounterVec
	linkUp  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		publish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dcs_presence",
			Name:      "publish_total",
			Help:      "Total calls to the presence service, by operation and result.",
		}, []string{"op", "result"}),
		linkUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dcs_presence",
			Name:      "link_up",
			Help:      "Whether the link to the presence service is established.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.publish, m.linkUp)
	}
	return m
}

func (m *metrics) observe(op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.publish.WithLabelValues(op, result).Inc()
}
